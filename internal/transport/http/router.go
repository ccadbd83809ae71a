package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	jsonutil "custodia/internal/transport/http/json"
)

// RouterConfig carries the dependencies the router wires into handlers.
type RouterConfig struct {
	Consent    ConsentService
	Revocation RevocationService
	Batch      BatchService
	Audit      *AuditHandler
	Metrics    *metrics.Metrics
	SigningKey []byte
	Logger     *slog.Logger
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Latency(cfg.Metrics))
	r.Use(middleware.Client)
	r.Use(middleware.Session(cfg.SigningKey))

	NewConsentHandler(cfg.Consent, cfg.Logger).Register(r)
	NewRevocationHandler(cfg.Revocation, cfg.Logger).Register(r)
	NewBatchHandler(cfg.Batch, cfg.Logger).Register(r)
	cfg.Audit.Register(r)

	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
