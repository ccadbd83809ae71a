// Package decider provides Decider implementations for deployments where
// the consent prompt lives outside the process.
package decider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"custodia/internal/consent/models"
	dErrors "custodia/pkg/domain-errors"
)

// Webhook forwards consent prompts to an external endpoint and maps its
// answer to a Verdict. The engine has already sanitized the content and
// bounded the call with its callback timeout.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook builds a webhook decider for the given endpoint. The client
// timeout is a backstop; the engine's context deadline governs.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type promptPayload struct {
	Preview   string `json:"preview"`
	Layer     string `json:"layer"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Purpose   string `json:"purpose,omitempty"`
	SessionID string `json:"session_id"`
}

type verdictPayload struct {
	Approved bool   `json:"approved"`
	Scope    string `json:"scope,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Decide implements engine.Decider.
func (d *Webhook) Decide(ctx context.Context, req models.Request) (models.Verdict, error) {
	payload, err := json.Marshal(promptPayload{
		Preview:   req.Content,
		Layer:     string(req.Layer),
		Level:     req.EffectiveLevel().String(),
		Category:  req.Category,
		Purpose:   req.Purpose,
		SessionID: req.SessionID,
	})
	if err != nil {
		return models.Verdict{}, dErrors.Wrap(dErrors.CodeInternal, "encode prompt", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return models.Verdict{}, dErrors.Wrap(dErrors.CodeInternal, "build prompt request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return models.Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Verdict{}, dErrors.New(dErrors.CodeInternal,
			fmt.Sprintf("decider endpoint returned %d", resp.StatusCode))
	}

	var verdict verdictPayload
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return models.Verdict{}, dErrors.Wrap(dErrors.CodeInternal, "decode verdict", err)
	}

	if !verdict.Approved {
		return models.Deny(verdict.Reason), nil
	}

	scope := models.Scope(verdict.Scope)
	if !scope.IsValid() {
		scope = models.ScopeSingle
	}
	return models.Verdict{Approved: true, Scope: scope}, nil
}
