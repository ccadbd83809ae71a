// Package revocation implements the right-to-be-forgotten side of consent
// governance: soft deletion with a bounded recovery window, hard purging, and
// the utility gate that keeps bulk erasure from silently destroying most of
// the memory store.
package revocation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"custodia/internal/audit"
	"custodia/internal/consent/models"
	"custodia/internal/platform/metrics"
	dErrors "custodia/pkg/domain-errors"
)

const (
	// DefaultRecoveryDays bounds how long a soft-deleted entry stays
	// recoverable before purge_soft_deleted may claim it.
	DefaultRecoveryDays = 30

	// utilityThreshold is the fraction of active memory above which a bulk
	// revoke without force aborts with a UtilityWarning.
	utilityThreshold = 0.5
)

// Option configures the Ledger.
type Option func(*Ledger)

// WithMetrics sets the metrics instance for the ledger.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithRecoveryDays overrides the default recovery window.
func WithRecoveryDays(days int) Option {
	return func(l *Ledger) {
		if days > 0 {
			l.recoveryDays = days
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithTracer injects a custom OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(l *Ledger) {
		l.tracer = t
	}
}

// Ledger tracks the lifecycle of stored memory entries. All mutating
// operations serialize on one mutex so a recover can never race a purge on
// the same entry.
type Ledger struct {
	store        Store
	auditor      *audit.Publisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	recoveryDays int
	now          func() time.Time

	// mu serializes revoke/recover/purge so a recover can never race a purge
	// on the same entry.
	mu sync.Mutex
}

func NewLedger(store Store, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		auditor:      auditor,
		logger:       logger,
		recoveryDays: DefaultRecoveryDays,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.tracer == nil {
		l.tracer = otel.Tracer("custodia/revocation")
	}
	return l
}

// Register records a newly stored entry as active. The caller invokes it
// after the storage collaborator accepts the content.
func (l *Ledger) Register(ctx context.Context, entryID string, layer models.Layer, relational bool) error {
	if entryID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "entry id required")
	}
	if !layer.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid memory layer")
	}
	return l.store.Register(ctx, &Record{
		EntryID:    entryID,
		Layer:      layer,
		State:      StateActive,
		Relational: relational,
		CreatedAt:  l.now(),
	})
}

// RevokeRequest targets either explicit entry ids or a whole layer (nil
// Layer with All set means every layer).
type RevokeRequest struct {
	EntryIDs     []string
	Layer        *models.Layer
	All          bool
	SoftDelete   bool
	RecoveryDays int
	Force        bool
	Reason       string
	SessionID    string
}

func (r RevokeRequest) bulk() bool {
	return len(r.EntryIDs) == 0 && (r.Layer != nil || r.All)
}

// RevokeResult reports what a revoke call committed.
type RevokeResult struct {
	SoftDeleted []string
	Purged      []string
	// RelationalWarning flags that at least one revoked entry was relational
	// content. Revocation proceeds regardless.
	RelationalWarning bool
	AffectedCount     int
	TotalActive       int
}

// Revoke transitions the targeted entries out of active state. Protected-
// layer entries always purge immediately; no recovery window exists for
// them. The whole call is atomic: on any failure, including the utility
// gate, nothing transitions.
func (l *Ledger) Revoke(ctx context.Context, req RevokeRequest) (*RevokeResult, error) {
	ctx, span := l.tracer.Start(ctx, "revocation.revoke",
		trace.WithAttributes(
			attribute.Bool("soft_delete", req.SoftDelete),
			attribute.Bool("bulk", req.bulk()),
		),
	)
	result, err := l.revoke(ctx, req)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	return result, err
}

func (l *Ledger) revoke(ctx context.Context, req RevokeRequest) (*RevokeResult, error) {
	if len(req.EntryIDs) == 0 && req.Layer == nil && !req.All {
		return nil, dErrors.New(dErrors.CodeBadRequest, "revoke needs entry ids or a layer")
	}
	if req.Layer != nil && !req.Layer.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid memory layer")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	targets, err := l.resolveTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	totalActive, err := l.store.CountByState(ctx, StateActive)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to count active entries", err)
	}

	if req.bulk() && totalActive > 0 {
		ratio := float64(len(targets)) / float64(totalActive)
		if ratio > utilityThreshold {
			warning := &UtilityWarning{
				Percentage:    ratio * 100,
				AffectedCount: len(targets),
				TotalActive:   totalActive,
			}
			l.emitAudit(ctx, audit.Entry{
				SessionID: req.SessionID,
				Action:    audit.ActionWarned,
				Reason:    warning.Error(),
			})
			l.incrementUtilityWarnings()
			if !req.Force {
				l.logRevoke(ctx, slog.LevelWarn, "bulk revoke aborted by utility gate",
					"affected", len(targets), "total_active", totalActive)
				return nil, warning
			}
			l.logRevoke(ctx, slog.LevelWarn, "utility gate bypassed with force",
				"affected", len(targets), "total_active", totalActive)
		}
	}

	now := l.now()
	recoveryDays := req.RecoveryDays
	if recoveryDays <= 0 {
		recoveryDays = l.recoveryDays
	}
	deadline := now.Add(time.Duration(recoveryDays) * 24 * time.Hour)

	result := &RevokeResult{AffectedCount: len(targets), TotalActive: totalActive}
	var updated []*Record
	for _, record := range targets {
		record.RevokedAt = &now
		record.Reason = req.Reason
		if record.Relational {
			result.RelationalWarning = true
		}
		// Protected entries never get a recovery window.
		if req.SoftDelete && record.Layer != models.LayerProtected {
			d := deadline
			record.State = StateSoftDeleted
			record.SoftDeleteDeadline = &d
			result.SoftDeleted = append(result.SoftDeleted, record.EntryID)
		} else {
			record.State = StatePurged
			record.SoftDeleteDeadline = nil
			result.Purged = append(result.Purged, record.EntryID)
		}
		updated = append(updated, record)
	}

	if err := l.store.Apply(ctx, updated); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to commit revocation", err)
	}

	for _, record := range updated {
		action := audit.ActionRevoked
		if record.State == StatePurged {
			action = audit.ActionPurged
		}
		l.emitAudit(ctx, audit.Entry{
			SessionID: req.SessionID,
			Action:    action,
			Layer:     record.Layer,
			Reason:    req.Reason,
		})
	}
	l.incrementRevocations(req.SoftDelete, len(updated))
	l.logRevoke(ctx, slog.LevelInfo, "revocation committed",
		"soft_deleted", len(result.SoftDeleted),
		"purged", len(result.Purged),
		"relational_warning", result.RelationalWarning,
	)
	return result, nil
}

// resolveTargets loads the records a revoke call will transition. Explicit
// ids must all exist; already purged or soft-deleted entries targeted by a
// soft revoke drop out silently so bulk revokes stay idempotent.
func (l *Ledger) resolveTargets(ctx context.Context, req RevokeRequest) ([]*Record, error) {
	if len(req.EntryIDs) > 0 {
		var targets []*Record
		for _, entryID := range req.EntryIDs {
			record, err := l.store.Get(ctx, entryID)
			if err != nil {
				return nil, dErrors.Wrap(dErrors.CodeNotFound, "unknown entry "+entryID, err)
			}
			switch record.State {
			case StatePurged:
				continue
			case StateSoftDeleted:
				// Hard-delete escalation moves soft-deleted entries to purged;
				// re-soft-deleting is a no-op.
				if req.SoftDelete {
					continue
				}
			}
			targets = append(targets, record)
		}
		return targets, nil
	}

	active := StateActive
	filter := Filter{State: &active}
	if req.Layer != nil {
		filter.Layer = req.Layer
	}
	targets, err := l.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list entries", err)
	}
	return targets, nil
}

// ItemFailure reports a per-entry recovery failure inside a partial-success
// result.
type ItemFailure struct {
	EntryID string
	Code    dErrors.Code
}

// RecoveryResult lists per-id outcomes of a recover call.
type RecoveryResult struct {
	Recovered []string
	Failed    []ItemFailure
}

// Recover returns soft-deleted entries to active state. Past-deadline or
// non-soft-deleted targets fail per entry without aborting the batch; the
// recovered subset commits atomically.
func (l *Ledger) Recover(ctx context.Context, entryIDs []string, sessionID string) (*RecoveryResult, error) {
	ctx, span := l.tracer.Start(ctx, "revocation.recover",
		trace.WithAttributes(attribute.Int("entry_count", len(entryIDs))),
	)
	result, err := l.recover(ctx, entryIDs, sessionID)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	return result, err
}

func (l *Ledger) recover(ctx context.Context, entryIDs []string, sessionID string) (*RecoveryResult, error) {
	if len(entryIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "recover needs entry ids")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	result := &RecoveryResult{}
	var updated []*Record
	for _, entryID := range entryIDs {
		record, err := l.store.Get(ctx, entryID)
		if err != nil {
			result.Failed = append(result.Failed, ItemFailure{EntryID: entryID, Code: dErrors.CodeNotFound})
			continue
		}
		if record.State != StateSoftDeleted {
			result.Failed = append(result.Failed, ItemFailure{EntryID: entryID, Code: dErrors.CodeNotRevoked})
			continue
		}
		if !record.CanRecover(now) {
			result.Failed = append(result.Failed, ItemFailure{EntryID: entryID, Code: dErrors.CodeRecoveryWindowExpired})
			continue
		}
		record.State = StateActive
		record.SoftDeleteDeadline = nil
		record.RevokedAt = nil
		record.Reason = ""
		updated = append(updated, record)
		result.Recovered = append(result.Recovered, entryID)
	}

	if len(updated) > 0 {
		if err := l.store.Apply(ctx, updated); err != nil {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to commit recovery", err)
		}
		for _, record := range updated {
			l.emitAudit(ctx, audit.Entry{
				SessionID: sessionID,
				Action:    audit.ActionRecovered,
				Layer:     record.Layer,
			})
		}
		l.incrementRecoveries(len(updated))
	}
	return result, nil
}

// PurgeSoftDeleted finalizes every soft-deleted entry whose recovery deadline
// has passed and returns how many were purged. Running it again with no new
// expirations purges zero.
func (l *Ledger) PurgeSoftDeleted(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	soft := StateSoftDeleted
	records, err := l.store.List(ctx, Filter{State: &soft})
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeInternal, "failed to list soft-deleted entries", err)
	}

	now := l.now()
	var expired []*Record
	for _, record := range records {
		if record.SoftDeleteDeadline != nil && !now.Before(*record.SoftDeleteDeadline) {
			record.State = StatePurged
			record.SoftDeleteDeadline = nil
			expired = append(expired, record)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := l.store.Apply(ctx, expired); err != nil {
		return 0, dErrors.Wrap(dErrors.CodeInternal, "failed to commit purge", err)
	}
	for _, record := range expired {
		l.emitAudit(ctx, audit.Entry{
			Action: audit.ActionPurged,
			Layer:  record.Layer,
			Reason: "recovery window expired",
		})
	}
	l.incrementPurges(len(expired))
	return len(expired), nil
}

// Get exposes a single ledger record, mainly for transport and CLI listings.
func (l *Ledger) Get(ctx context.Context, entryID string) (*Record, error) {
	return l.store.Get(ctx, entryID)
}

func (l *Ledger) emitAudit(ctx context.Context, entry audit.Entry) {
	if l.auditor == nil {
		return
	}
	_ = l.auditor.Emit(ctx, entry)
}

func (l *Ledger) logRevoke(ctx context.Context, level slog.Level, msg string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Log(ctx, level, msg, args...)
}

func (l *Ledger) incrementRevocations(soft bool, count int) {
	if l.metrics != nil {
		mode := "hard"
		if soft {
			mode = "soft"
		}
		l.metrics.IncrementRevocations(mode, count)
	}
}

func (l *Ledger) incrementRecoveries(count int) {
	if l.metrics != nil {
		l.metrics.IncrementRecoveries(count)
	}
}

func (l *Ledger) incrementPurges(count int) {
	if l.metrics != nil {
		l.metrics.IncrementPurges(count)
	}
}

func (l *Ledger) incrementUtilityWarnings() {
	if l.metrics != nil {
		l.metrics.IncrementUtilityWarnings()
	}
}
