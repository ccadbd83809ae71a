package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/consent/models"
	"custodia/internal/platform/middleware"
	"custodia/internal/revocation"
	jsonutil "custodia/internal/transport/http/json"
	"custodia/internal/transport/http/shared"
	dErrors "custodia/pkg/domain-errors"
)

// RevocationService is the part of the ledger the revocation endpoints need.
type RevocationService interface {
	Revoke(ctx context.Context, req revocation.RevokeRequest) (*revocation.RevokeResult, error)
	Recover(ctx context.Context, entryIDs []string, sessionID string) (*revocation.RecoveryResult, error)
	PurgeSoftDeleted(ctx context.Context) (int, error)
}

// RevocationHandler handles revoke, recover, and purge endpoints.
type RevocationHandler struct {
	logger *slog.Logger
	ledger RevocationService
}

func NewRevocationHandler(ledger RevocationService, logger *slog.Logger) *RevocationHandler {
	return &RevocationHandler{ledger: ledger, logger: logger}
}

func (h *RevocationHandler) Register(r chi.Router) {
	r.Post("/v1/revocation/revoke", h.handleRevoke)
	r.Post("/v1/revocation/recover", h.handleRecover)
	r.Post("/v1/revocation/purge", h.handlePurge)
}

type revokeRequest struct {
	EntryIDs     []string `json:"entry_ids,omitempty"`
	Layer        string   `json:"layer,omitempty"`
	All          bool     `json:"all,omitempty"`
	SoftDelete   bool     `json:"soft_delete,omitempty"`
	RecoveryDays int      `json:"recovery_days,omitempty"`
	Force        bool     `json:"force,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

type revokeResponse struct {
	SoftDeleted       []string `json:"soft_deleted"`
	Purged            []string `json:"purged"`
	RelationalWarning bool     `json:"relational_warning,omitempty"`
	AffectedCount     int      `json:"affected_count"`
	TotalActive       int      `json:"total_active"`
}

func (h *RevocationHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return
	}

	var body revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	req := revocation.RevokeRequest{
		EntryIDs:     body.EntryIDs,
		All:          body.All,
		SoftDelete:   body.SoftDelete,
		RecoveryDays: body.RecoveryDays,
		Force:        body.Force,
		Reason:       body.Reason,
		SessionID:    sessionID,
	}
	if body.Layer != "" {
		layer := models.Layer(body.Layer)
		if !layer.IsValid() {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid memory layer"))
			return
		}
		req.Layer = &layer
	}

	result, err := h.ledger.Revoke(r.Context(), req)
	if err != nil {
		var warning *revocation.UtilityWarning
		if errors.As(err, &warning) {
			jsonutil.WriteJSON(w, http.StatusPreconditionFailed, map[string]any{
				"error":              string(dErrors.CodeUtilityWarning),
				"utility_percentage": warning.Percentage,
				"affected_count":     warning.AffectedCount,
				"total_active":       warning.TotalActive,
			})
			return
		}
		shared.WriteError(w, err)
		return
	}

	jsonutil.WriteJSON(w, http.StatusOK, revokeResponse{
		SoftDeleted:       result.SoftDeleted,
		Purged:            result.Purged,
		RelationalWarning: result.RelationalWarning,
		AffectedCount:     result.AffectedCount,
		TotalActive:       result.TotalActive,
	})
}

type recoverRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

type recoverResponse struct {
	Recovered []string      `json:"recovered"`
	Failed    []failedEntry `json:"failed"`
}

type failedEntry struct {
	EntryID string `json:"entry_id"`
	Code    string `json:"code"`
}

func (h *RevocationHandler) handleRecover(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return
	}

	var body recoverRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.ledger.Recover(r.Context(), body.EntryIDs, sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := recoverResponse{Recovered: result.Recovered, Failed: []failedEntry{}}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, failedEntry{EntryID: f.EntryID, Code: string(f.Code)})
	}
	jsonutil.WriteJSON(w, http.StatusOK, resp)
}

func (h *RevocationHandler) handlePurge(w http.ResponseWriter, r *http.Request) {
	purged, err := h.ledger.PurgeSoftDeleted(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	jsonutil.WriteJSON(w, http.StatusOK, map[string]int{"purged": purged})
}
