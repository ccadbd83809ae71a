package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/consent/models"
	"custodia/internal/platform/middleware"
	"custodia/internal/revocation"
	jsonutil "custodia/internal/transport/http/json"
	"custodia/internal/transport/http/shared"
	dErrors "custodia/pkg/domain-errors"
)

// ConsentService is the part of the engine the consent endpoints need.
type ConsentService interface {
	Evaluate(ctx context.Context, req models.Request) (*models.Decision, error)
	RegisterStored(ctx context.Context, entryID, decisionID string, layer models.Layer, relational bool) error
	Object(ctx context.Context, entryID, sessionID string) (*revocation.RevokeResult, error)
	EndSession(sessionID string)
}

// ConsentHandler handles consent evaluation and objection endpoints.
type ConsentHandler struct {
	logger  *slog.Logger
	consent ConsentService
}

func NewConsentHandler(consent ConsentService, logger *slog.Logger) *ConsentHandler {
	return &ConsentHandler{consent: consent, logger: logger}
}

func (h *ConsentHandler) Register(r chi.Router) {
	r.Post("/v1/consent/evaluate", h.handleEvaluate)
	r.Post("/v1/consent/stored", h.handleRegisterStored)
	r.Post("/v1/consent/object", h.handleObject)
	r.Post("/v1/consent/end-session", h.handleEndSession)
}

type evaluateRequest struct {
	Content        string `json:"content"`
	Layer          string `json:"layer"`
	RequestedLevel string `json:"requested_level,omitempty"`
	Purpose        string `json:"purpose,omitempty"`
	TTLSeconds     int64  `json:"ttl_seconds,omitempty"`
	Relational     bool   `json:"relational,omitempty"`
	Category       string `json:"category,omitempty"`
}

type evaluateResponse struct {
	DecisionID         string                  `json:"decision_id"`
	Approved           bool                    `json:"approved"`
	Level              string                  `json:"level"`
	Scope              string                  `json:"scope"`
	DenialReason       string                  `json:"denial_reason,omitempty"`
	Objectable         bool                    `json:"objectable,omitempty"`
	Cached             bool                    `json:"cached"`
	TTLOverrideSeconds int64                   `json:"ttl_override_seconds,omitempty"`
	Metadata           *models.StorageMetadata `json:"metadata,omitempty"`
}

func (h *ConsentHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return
	}

	var body evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	level := models.LevelAuto
	if body.RequestedLevel != "" {
		parsed, ok := models.ParseLevel(body.RequestedLevel)
		if !ok {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown consent level"))
			return
		}
		level = parsed
	}

	decision, err := h.consent.Evaluate(r.Context(), models.Request{
		Content:        body.Content,
		Layer:          models.Layer(body.Layer),
		RequestedLevel: level,
		Purpose:        body.Purpose,
		TTL:            time.Duration(body.TTLSeconds) * time.Second,
		Relational:     body.Relational,
		Category:       body.Category,
		SessionID:      sessionID,
		MFAVerified:    middleware.GetMFAVerified(r.Context()),
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	jsonutil.WriteJSON(w, http.StatusOK, toEvaluateResponse(decision))
}

func toEvaluateResponse(d *models.Decision) evaluateResponse {
	return evaluateResponse{
		DecisionID:         d.ID,
		Approved:           d.Approved,
		Level:              d.Level.String(),
		Scope:              string(d.Scope),
		DenialReason:       d.DenialReason,
		Objectable:         d.Objectable,
		Cached:             d.Cached,
		TTLOverrideSeconds: int64(d.TTLOverride / time.Second),
		Metadata:           d.Metadata,
	}
}

type registerStoredRequest struct {
	EntryID    string `json:"entry_id"`
	DecisionID string `json:"decision_id"`
	Layer      string `json:"layer"`
	Relational bool   `json:"relational,omitempty"`
}

func (h *ConsentHandler) handleRegisterStored(w http.ResponseWriter, r *http.Request) {
	var body registerStoredRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if body.EntryID == "" || body.DecisionID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entry_id and decision_id required"))
		return
	}

	layer := models.Layer(body.Layer)
	if !layer.IsValid() {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid memory layer"))
		return
	}

	if err := h.consent.RegisterStored(r.Context(), body.EntryID, body.DecisionID, layer, body.Relational); err != nil {
		shared.WriteError(w, err)
		return
	}

	jsonutil.WriteJSON(w, http.StatusCreated, map[string]string{"entry_id": body.EntryID})
}

type objectRequest struct {
	EntryID string `json:"entry_id"`
}

func (h *ConsentHandler) handleObject(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return
	}

	var body objectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.EntryID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entry_id required"))
		return
	}

	result, err := h.consent.Object(r.Context(), body.EntryID, sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{
		"entry_id":     body.EntryID,
		"soft_deleted": len(result.SoftDeleted) > 0,
		"purged":       len(result.Purged) > 0,
	})
}

func (h *ConsentHandler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return
	}

	h.consent.EndSession(sessionID)
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}
