package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Consent pipeline
	Decisions        *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	PromptsIssued    prometheus.Counter
	RequestsQueued   prometheus.Counter
	BatchesApproved  prometheus.Counter
	PendingBatchSize prometheus.Gauge
	EvaluateLatency  prometheus.Histogram

	// Revocation lifecycle
	Revocations     *prometheus.CounterVec
	Recoveries      prometheus.Counter
	Purges          prometheus.Counter
	UtilityWarnings prometheus.Counter

	// Transport
	EndpointLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_decisions_total",
			Help: "Total consent decisions, labeled by outcome and level",
		}, []string{"outcome", "level"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_cache_hits_total",
			Help: "Total consent cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_cache_misses_total",
			Help: "Total consent cache misses",
		}),
		PromptsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_prompts_issued_total",
			Help: "Total decision callback invocations",
		}),
		RequestsQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_requests_queued_total",
			Help: "Total requests queued after exceeding the session prompt budget",
		}),
		BatchesApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_batches_approved_total",
			Help: "Total batch approvals",
		}),
		PendingBatchSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "custodia_pending_batch_size",
			Help: "Current number of queued consent requests",
		}),
		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodia_evaluate_latency_seconds",
			Help:    "Latency of consent evaluation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		Revocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_revocations_total",
			Help: "Total entries revoked, labeled by mode (soft or hard)",
		}, []string{"mode"}),
		Recoveries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_recoveries_total",
			Help: "Total soft-deleted entries recovered",
		}),
		Purges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_purges_total",
			Help: "Total entries purged after the recovery window expired",
		}),
		UtilityWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_utility_warnings_total",
			Help: "Total utility warnings raised by bulk revocations",
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodia_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// IncrementDecisions increments the decision counter for an outcome/level pair.
func (m *Metrics) IncrementDecisions(outcome, level string) {
	m.Decisions.WithLabelValues(outcome, level).Inc()
}

func (m *Metrics) IncrementCacheHits() {
	m.CacheHits.Inc()
}

func (m *Metrics) IncrementCacheMisses() {
	m.CacheMisses.Inc()
}

func (m *Metrics) IncrementPromptsIssued() {
	m.PromptsIssued.Inc()
}

func (m *Metrics) IncrementRequestsQueued() {
	m.RequestsQueued.Inc()
}

func (m *Metrics) IncrementBatchesApproved() {
	m.BatchesApproved.Inc()
}

func (m *Metrics) SetPendingBatchSize(size int) {
	m.PendingBatchSize.Set(float64(size))
}

func (m *Metrics) ObserveEvaluateLatency(seconds float64) {
	m.EvaluateLatency.Observe(seconds)
}

// IncrementRevocations counts revoked entries by mode ("soft" or "hard").
func (m *Metrics) IncrementRevocations(mode string, count int) {
	m.Revocations.WithLabelValues(mode).Add(float64(count))
}

func (m *Metrics) IncrementRecoveries(count int) {
	m.Recoveries.Add(float64(count))
}

func (m *Metrics) IncrementPurges(count int) {
	m.Purges.Add(float64(count))
}

func (m *Metrics) IncrementUtilityWarnings() {
	m.UtilityWarnings.Inc()
}

func (m *Metrics) ObserveEndpointLatency(endpoint string, seconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(seconds)
}
