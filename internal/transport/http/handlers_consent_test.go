package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"custodia/internal/audit"
	"custodia/internal/consent/batch"
	"custodia/internal/consent/models"
	"custodia/internal/platform/middleware"
	"custodia/internal/revocation"
	dErrors "custodia/pkg/domain-errors"
)

var testSigningKey = []byte("test-signing-key")

// stubConsent records calls and returns canned responses.
type stubConsent struct {
	lastRequest models.Request
	lastClient  string
	decision    *models.Decision
	err         error
	ended       []string
}

func (s *stubConsent) Evaluate(ctx context.Context, req models.Request) (*models.Decision, error) {
	s.lastRequest = req
	s.lastClient = audit.ClientFromContext(ctx)
	return s.decision, s.err
}

func (s *stubConsent) RegisterStored(context.Context, string, string, models.Layer, bool) error {
	return s.err
}

func (s *stubConsent) Object(context.Context, string, string) (*revocation.RevokeResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &revocation.RevokeResult{SoftDeleted: []string{"entry-1"}}, nil
}

func (s *stubConsent) EndSession(sessionID string) {
	s.ended = append(s.ended, sessionID)
}

type stubRevocation struct {
	revokeResult  *revocation.RevokeResult
	recoverResult *revocation.RecoveryResult
	purged        int
	err           error
}

func (s *stubRevocation) Revoke(context.Context, revocation.RevokeRequest) (*revocation.RevokeResult, error) {
	return s.revokeResult, s.err
}

func (s *stubRevocation) Recover(context.Context, []string, string) (*revocation.RecoveryResult, error) {
	return s.recoverResult, s.err
}

func (s *stubRevocation) PurgeSoftDeleted(context.Context) (int, error) {
	return s.purged, s.err
}

type stubBatch struct {
	pending   map[string][]batch.Pending
	decisions []models.Decision
	err       error
	cancelled bool
}

func (s *stubBatch) PendingBatches() map[string][]batch.Pending { return s.pending }

func (s *stubBatch) ApproveBatch(context.Context, string, models.Scope) ([]models.Decision, error) {
	return s.decisions, s.err
}

func (s *stubBatch) CancelPending(string) bool { return s.cancelled }

type HandlersSuite struct {
	suite.Suite
	consent *stubConsent
	ledger  *stubRevocation
	batch   *stubBatch
	router  http.Handler
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.consent = &stubConsent{decision: &models.Decision{
		ID:       "d1",
		Approved: true,
		Level:    models.LevelExplicit,
		Scope:    models.ScopeSession,
	}}
	s.ledger = &stubRevocation{}
	s.batch = &stubBatch{}
	s.router = NewRouter(RouterConfig{
		Consent:    s.consent,
		Revocation: s.ledger,
		Batch:      s.batch,
		Audit:      NewAuditHandler(audit.NewInMemoryStore(), logger),
		SigningKey: testSigningKey,
		Logger:     logger,
	})
}

func (s *HandlersSuite) token(sessionID string, mfa bool) string {
	claims := middleware.SessionClaims{
		SessionID: sessionID,
		MFA:       mfa,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	s.Require().NoError(err)
	return token
}

func (s *HandlersSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Evaluate Endpoint Tests
// =============================================================================

func (s *HandlersSuite) TestEvaluate() {
	token := s.token("sess-1", false)

	s.Run("valid request reaches the engine with session context", func() {
		rec := s.do(http.MethodPost, "/v1/consent/evaluate", token, map[string]any{
			"content":     "the user lives in Lisbon",
			"layer":       "semantic",
			"category":    "location",
			"ttl_seconds": 3600,
		})
		s.Equal(http.StatusOK, rec.Code)

		s.Equal("sess-1", s.consent.lastRequest.SessionID)
		s.Equal(models.LayerSemantic, s.consent.lastRequest.Layer)
		s.Equal(time.Hour, s.consent.lastRequest.TTL)
		s.False(s.consent.lastRequest.MFAVerified)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("d1", resp["decision_id"])
		s.Equal(true, resp["approved"])
		s.Equal("session", resp["scope"])
	})

	s.Run("mfa claim flows through", func() {
		rec := s.do(http.MethodPost, "/v1/consent/evaluate", s.token("sess-1", true), map[string]any{
			"content": "vault item",
			"layer":   "protected",
		})
		s.Equal(http.StatusOK, rec.Code)
		s.True(s.consent.lastRequest.MFAVerified)
	})

	s.Run("missing token is rejected", func() {
		rec := s.do(http.MethodPost, "/v1/consent/evaluate", "", map[string]any{
			"content": "x", "layer": "working",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("forged token is rejected", func() {
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.SessionClaims{SessionID: "sess-1"}).
			SignedString([]byte("wrong-key"))
		s.Require().NoError(err)
		rec := s.do(http.MethodPost, "/v1/consent/evaluate", forged, map[string]any{
			"content": "x", "layer": "working",
		})
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("unknown level is rejected", func() {
		rec := s.do(http.MethodPost, "/v1/consent/evaluate", token, map[string]any{
			"content": "x", "layer": "working", "requested_level": "root",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("condensed user agent reaches the audit context", func() {
		data, err := json.Marshal(map[string]any{
			"content": "the user lives in Lisbon", "layer": "semantic", "category": "location",
		})
		s.Require().NoError(err)
		req := httptest.NewRequest(http.MethodPost, "/v1/consent/evaluate", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:140.0) Gecko/20100101 Firefox/140.0")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Equal(http.StatusOK, rec.Code)
		s.Contains(s.consent.lastClient, "Firefox/140")
	})

	s.Run("domain errors map to http statuses", func() {
		s.consent.err = dErrors.New(dErrors.CodeConfiguration, "category required")
		s.consent.decision = nil
		rec := s.do(http.MethodPost, "/v1/consent/evaluate", token, map[string]any{
			"content": "x", "layer": "semantic",
		})
		s.Equal(http.StatusBadRequest, rec.Code)

		var resp map[string]string
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("configuration_error", resp["error"])
	})
}

// =============================================================================
// Objection Endpoint Tests
// =============================================================================

func (s *HandlersSuite) TestObject() {
	token := s.token("sess-1", false)

	s.Run("objection round-trips", func() {
		rec := s.do(http.MethodPost, "/v1/consent/object", token, map[string]string{"entry_id": "entry-1"})
		s.Equal(http.StatusOK, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(true, resp["soft_deleted"])
	})

	s.Run("missing entry id rejected", func() {
		rec := s.do(http.MethodPost, "/v1/consent/object", token, map[string]string{})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlersSuite) TestEndSession() {
	rec := s.do(http.MethodPost, "/v1/consent/end-session", s.token("sess-9", false), nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal([]string{"sess-9"}, s.consent.ended)
}

// =============================================================================
// Health Endpoint Tests
// =============================================================================

func (s *HandlersSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, rec.Code)
}
