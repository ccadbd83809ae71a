package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/audit"
	jsonutil "custodia/internal/transport/http/json"
	"custodia/internal/transport/http/shared"
)

const defaultAuditLimit = 100

// AuditHandler exposes read-only access to the audit trail.
type AuditHandler struct {
	logger *slog.Logger
	store  audit.Store
}

func NewAuditHandler(store audit.Store, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logger}
}

func (h *AuditHandler) Register(r chi.Router) {
	r.Get("/v1/audit", h.handleList)
	r.Get("/v1/audit/{sessionID}", h.handleListBySession)
}

type auditEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Action    string    `json:"action"`
	Level     string    `json:"level"`
	Layer     string    `json:"layer,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	Preview   string    `json:"preview,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Client    string    `json:"client,omitempty"`
}

func (h *AuditHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.store.List(r.Context(), limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	jsonutil.WriteJSON(w, http.StatusOK, toAuditEntries(entries))
}

func (h *AuditHandler) handleListBySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	entries, err := h.store.ListBySession(r.Context(), sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	jsonutil.WriteJSON(w, http.StatusOK, toAuditEntries(entries))
}

func toAuditEntries(entries []audit.Entry) []auditEntry {
	out := make([]auditEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntry{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			SessionID: e.SessionID,
			Action:    string(e.Action),
			Level:     e.Level.String(),
			Layer:     string(e.Layer),
			Scope:     string(e.Scope),
			Preview:   e.Preview,
			Reason:    e.Reason,
			Client:    e.Client,
		})
	}
	return out
}
