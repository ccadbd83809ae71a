// Package engine implements the consent decision pipeline: level resolution,
// caching, prompt budgeting with batch queueing, and audit emission. The
// engine mediates between a content-producing caller and a storage backend;
// it never stores content itself.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"custodia/internal/audit"
	"custodia/internal/consent/batch"
	"custodia/internal/consent/cache"
	"custodia/internal/consent/models"
	"custodia/internal/platform/metrics"
	"custodia/internal/revocation"
	"custodia/internal/sanitize"
	dErrors "custodia/pkg/domain-errors"
)

const (
	// DefaultMaxPrompts bounds decision callbacks per session before
	// requests queue for batch approval.
	DefaultMaxPrompts = 2

	// DefaultCallbackTimeout bounds a single decision callback invocation.
	DefaultCallbackTimeout = 30 * time.Second
)

// Decider is the caller-supplied decision strategy. It receives a request
// whose content has already been replaced by its sanitized preview and must
// not call back into the engine.
type Decider interface {
	Decide(ctx context.Context, req models.Request) (models.Verdict, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, req models.Request) (models.Verdict, error)

func (f DeciderFunc) Decide(ctx context.Context, req models.Request) (models.Verdict, error) {
	return f(ctx, req)
}

// Option configures the Engine.
type Option func(*Engine)

// WithMaxPrompts overrides the per-session prompt budget.
func WithMaxPrompts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPrompts = n
		}
	}
}

// WithCallbackTimeout bounds decider invocations. Zero disables the bound;
// the caller then owns timeout discipline.
func WithCallbackTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.callbackTimeout = d
	}
}

// WithSmartDefaults toggles the opt-out model for implicit-level requests.
// When disabled, implicit requests prompt like explicit ones.
func WithSmartDefaults(enabled bool) Option {
	return func(e *Engine) {
		e.smartDefaults = enabled
	}
}

// WithMetrics sets the metrics instance for the engine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLedger wires the revocation ledger so opt-out objections can
// retroactively revoke stored entries.
func WithLedger(l *revocation.Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithTracer injects a custom OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine orchestrates consent evaluation. Safe for concurrent use: racing
// evaluations on the same cache key serialize around the callback through a
// singleflight group, so one prompt serves every concurrent caller.
type Engine struct {
	decider   Decider
	cache     *cache.Cache
	batch     *batch.Coordinator
	sanitizer *sanitize.Engine
	auditor   *audit.Publisher
	ledger    *revocation.Ledger
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	maxPrompts      int
	callbackTimeout time.Duration
	smartDefaults   bool
	now             func() time.Time

	flight singleflight.Group

	mu      sync.Mutex
	prompts map[string]int
	// objectable holds implicit-level decisions until the caller binds them
	// to a stored entry id; bound holds the reverse index used by Object.
	objectable map[string]models.Decision
	bound      map[string]models.Decision
}

func New(decider Decider, c *cache.Cache, b *batch.Coordinator, s *sanitize.Engine, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		decider:         decider,
		cache:           c,
		batch:           b,
		sanitizer:       s,
		auditor:         auditor,
		logger:          logger,
		maxPrompts:      DefaultMaxPrompts,
		callbackTimeout: DefaultCallbackTimeout,
		smartDefaults:   true,
		now:             time.Now,
		prompts:         make(map[string]int),
		objectable:      make(map[string]models.Decision),
		bound:           make(map[string]models.Decision),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("custodia/consent")
	}
	return e
}

// Evaluate resolves whether the requested content may be stored, at what
// level, and under which scope. Approvals carry the metadata block the
// caller hands to the storage collaborator.
func (e *Engine) Evaluate(ctx context.Context, req models.Request) (*models.Decision, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "consent.evaluate",
		trace.WithAttributes(
			attribute.String("layer", string(req.Layer)),
			attribute.Bool("relational", req.Relational),
		),
	)
	decision, err := e.evaluate(ctx, req)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	e.observeEvaluateLatency(e.now().Sub(start))
	return decision, err
}

func (e *Engine) evaluate(ctx context.Context, req models.Request) (*models.Decision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	level := req.EffectiveLevel()
	if !e.smartDefaults && level == models.LevelImplicit {
		level = models.LevelExplicit
	}

	switch level {
	case models.LevelAuto:
		// Frictionless tier: no callback, no cache write.
		decision := e.approved(req, level, models.ScopeSingle, false)
		e.audit(ctx, req, decision, "")
		e.incrementDecisions("granted", level)
		return decision, nil

	case models.LevelImplicit:
		// Opt-out model: storing is the default, but the decision stays
		// objectable so a later opt-out can retroactively revoke it.
		decision := e.approved(req, level, models.ScopeSingle, true)
		e.rememberObjectable(*decision)
		e.audit(ctx, req, decision, "")
		e.incrementDecisions("granted", level)
		return decision, nil
	}

	// Explicit and protected levels prompt, which makes the category a
	// required cache/batch key.
	if req.Category == "" {
		return nil, dErrors.New(dErrors.CodeConfiguration, "category required for consent level "+level.String())
	}

	// Absent MFA proof denies protected requests outright. The callback is
	// never consulted, and a cached approval cannot override the proof
	// requirement.
	if level == models.LevelProtected && !req.MFAVerified {
		decision := e.denied(req, level, models.ReasonMFARequired)
		e.audit(ctx, req, decision, models.ReasonMFARequired)
		e.incrementDecisions("denied", level)
		return decision, nil
	}

	if decision, ok := e.cacheLookup(ctx, req, level); ok {
		return decision, nil
	}

	if e.decider == nil {
		return nil, dErrors.New(dErrors.CodeCallbackMissing, "no decision callback registered")
	}

	// Concurrent evaluations racing on the same key share one callback
	// invocation; late arrivals observe the freshly written cache entry via
	// the recheck inside the flight.
	key := cache.SessionKey(req.SessionID, req.Category, req.Layer)
	result, err, _ := e.flight.Do(key.Fingerprint(), func() (any, error) {
		return e.resolveMiss(ctx, req, level, key)
	})
	if err != nil {
		return nil, err
	}
	decision := result.(models.Decision)
	return &decision, nil
}

// cacheLookup tries the session-scoped key first, then the cross-session
// category key: a category-wide approval is strictly broader than a session
// one, so it satisfies session-scoped lookups too.
func (e *Engine) cacheLookup(ctx context.Context, req models.Request, level models.Level) (*models.Decision, bool) {
	keys := []cache.Key{
		cache.SessionKey(req.SessionID, req.Category, req.Layer),
		cache.CategoryKey(req.Category, req.Layer),
	}
	for _, key := range keys {
		entry, ok := e.cache.Get(key)
		if !ok {
			continue
		}
		e.incrementCacheHits()
		decision := entry.Decision
		decision.ID = uuid.New().String()
		decision.SessionID = req.SessionID
		decision.Cached = true
		decision.DecidedAt = e.now()
		if decision.Approved {
			decision.Metadata = e.metadataFor(req, decision.Level, decision.Scope)
			e.audit(ctx, req, &decision, "cache")
			e.incrementDecisions("granted", level)
		} else {
			// The original denial reason replays as-is; Cached alone marks
			// the decision as cache-sourced.
			e.audit(ctx, req, &decision, "cache")
			e.incrementDecisions("denied", level)
		}
		return &decision, true
	}
	e.incrementCacheMisses()
	return nil, false
}

// resolveMiss runs inside the singleflight and owns the prompt budget check,
// the callback invocation, and the cache write.
func (e *Engine) resolveMiss(ctx context.Context, req models.Request, level models.Level, key cache.Key) (models.Decision, error) {
	// A flight that finished between our lookup and Do() has already written
	// the cache; honor it instead of prompting again.
	if entry, ok := e.cache.Get(key); ok {
		decision := entry.Decision
		decision.Cached = true
		return decision, nil
	}

	if !e.reservePrompt(req.SessionID) {
		id := e.batch.Enqueue(req)
		decision := e.denied(req, level, models.ReasonQueued)
		decision.ID = id
		e.audit(ctx, req, decision, models.ReasonQueued)
		e.incrementRequestsQueued()
		e.setPendingBatchSize()
		return *decision, nil
	}
	e.incrementPromptsIssued()

	verdict, err := e.invokeDecider(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// Recovered locally as a denial; never cached so a retry can
			// prompt again.
			decision := e.denied(req, level, models.ReasonCallbackTimeout)
			e.audit(ctx, req, decision, models.ReasonCallbackTimeout)
			e.incrementDecisions("denied", level)
			return *decision, nil
		}
		return models.Decision{}, dErrors.Wrap(dErrors.CodeInternal, "decision callback failed", err)
	}

	var decision *models.Decision
	if verdict.Approved {
		scope := verdict.Scope
		if !scope.IsValid() {
			scope = models.ScopeSingle
		}
		decision = e.approved(req, level, scope, false)
		e.incrementDecisions("granted", level)
	} else {
		decision = e.denied(req, level, verdict.Reason)
		decision.Scope = verdict.Scope
		e.incrementDecisions("denied", level)
	}

	e.cacheWrite(req, *decision)
	e.audit(ctx, req, decision, verdict.Reason)
	return *decision, nil
}

// invokeDecider calls the callback with a copy of the request whose content
// has been replaced by its sanitized preview. Raw content never crosses the
// callback boundary.
func (e *Engine) invokeDecider(ctx context.Context, req models.Request) (models.Verdict, error) {
	if e.callbackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.callbackTimeout)
		defer cancel()
	}

	sanitized := req
	sanitized.Content = e.sanitizer.Sanitize(req.Content)

	ctx, span := e.tracer.Start(ctx, "consent.callback")
	verdict, err := e.decider.Decide(ctx, sanitized)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	return verdict, err
}

// cacheWrite persists session- and category-scoped decisions. Single-scope
// decisions never reach the cache.
func (e *Engine) cacheWrite(req models.Request, decision models.Decision) {
	switch decision.Scope {
	case models.ScopeSession:
		e.cache.Put(cache.SessionKey(req.SessionID, req.Category, req.Layer), decision)
	case models.ScopeCategory:
		e.cache.Put(cache.CategoryKey(req.Category, req.Layer), decision)
	}
}

// reservePrompt atomically checks and consumes one unit of the session's
// prompt budget.
func (e *Engine) reservePrompt(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.prompts[sessionID] >= e.maxPrompts {
		return false
	}
	e.prompts[sessionID]++
	return true
}

// EndSession releases a session's prompt budget, drops its session-scoped
// cache entries, and discards its objectable decisions that were never bound
// to a stored entry. Session approvals expire at the earlier of session end
// or the cache TTL.
func (e *Engine) EndSession(sessionID string) {
	e.mu.Lock()
	delete(e.prompts, sessionID)
	for id, decision := range e.objectable {
		if decision.SessionID == sessionID {
			delete(e.objectable, id)
		}
	}
	e.mu.Unlock()
	e.cache.DropSession(sessionID)
}

// EvictExpired sweeps the decision cache; exposed for periodic maintenance.
func (e *Engine) EvictExpired() int {
	return e.cache.EvictExpired()
}

func (e *Engine) approved(req models.Request, level models.Level, scope models.Scope, objectable bool) *models.Decision {
	now := e.now()
	decision := &models.Decision{
		ID:         uuid.New().String(),
		SessionID:  req.SessionID,
		Category:   req.Category,
		Layer:      req.Layer,
		Level:      level,
		Approved:   true,
		Scope:      scope,
		Objectable: objectable,
		DecidedAt:  now,
		Metadata:   e.metadataFor(req, level, scope),
	}
	// Relational content never auto-decays, so no TTL override survives.
	if req.TTL > 0 && !req.Relational {
		decision.TTLOverride = req.TTL
	}
	return decision
}

func (e *Engine) denied(req models.Request, level models.Level, reason string) *models.Decision {
	return &models.Decision{
		ID:           uuid.New().String(),
		SessionID:    req.SessionID,
		Category:     req.Category,
		Layer:        req.Layer,
		Level:        level,
		Approved:     false,
		Scope:        models.ScopeSingle,
		DenialReason: reason,
		DecidedAt:    e.now(),
	}
}

func (e *Engine) metadataFor(req models.Request, level models.Level, scope models.Scope) *models.StorageMetadata {
	return &models.StorageMetadata{
		ConsentLevel: level,
		ConsentedAt:  e.now(),
		ConsentScope: scope,
		Purpose:      req.Purpose,
		Relational:   req.Relational,
	}
}
