package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/consent/batch"
	"custodia/internal/consent/models"
	jsonutil "custodia/internal/transport/http/json"
	"custodia/internal/transport/http/shared"
	dErrors "custodia/pkg/domain-errors"
)

// BatchService is the part of the engine the batch endpoints need.
type BatchService interface {
	PendingBatches() map[string][]batch.Pending
	ApproveBatch(ctx context.Context, category string, scope models.Scope) ([]models.Decision, error)
	CancelPending(id string) bool
}

// BatchHandler handles batched-prompt inspection and approval endpoints.
type BatchHandler struct {
	logger *slog.Logger
	batch  BatchService
}

func NewBatchHandler(b BatchService, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{batch: b, logger: logger}
}

func (h *BatchHandler) Register(r chi.Router) {
	r.Get("/v1/batch/pending", h.handlePending)
	r.Post("/v1/batch/approve", h.handleApprove)
	r.Delete("/v1/batch/{id}", h.handleCancel)
}

type pendingItem struct {
	ID         string    `json:"id"`
	Preview    string    `json:"preview"`
	Layer      string    `json:"layer"`
	Category   string    `json:"category"`
	SessionID  string    `json:"session_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (h *BatchHandler) handlePending(w http.ResponseWriter, r *http.Request) {
	groups := h.batch.PendingBatches()

	resp := make(map[string][]pendingItem, len(groups))
	for group, queue := range groups {
		items := make([]pendingItem, 0, len(queue))
		for _, p := range queue {
			items = append(items, pendingItem{
				ID:         p.ID,
				Preview:    p.Request.Content,
				Layer:      string(p.Request.Layer),
				Category:   p.Request.Category,
				SessionID:  p.Request.SessionID,
				EnqueuedAt: p.EnqueuedAt,
			})
		}
		resp[group] = items
	}

	jsonutil.WriteJSON(w, http.StatusOK, resp)
}

type approveRequest struct {
	Category string `json:"category"`
	Scope    string `json:"scope,omitempty"`
}

func (h *BatchHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body approveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Category == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "category required"))
		return
	}

	scope := models.ScopeSession
	if body.Scope != "" {
		scope = models.Scope(body.Scope)
	}

	decisions, err := h.batch.ApproveBatch(r.Context(), body.Category, scope)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := make([]evaluateResponse, 0, len(decisions))
	for i := range decisions {
		resp = append(resp, toEvaluateResponse(&decisions[i]))
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{
		"category":  body.Category,
		"approved":  len(resp),
		"decisions": resp,
	})
}

func (h *BatchHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.batch.CancelPending(id) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no pending request with that id"))
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"cancelled": id})
}
