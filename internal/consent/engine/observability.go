package engine

import (
	"context"
	"time"

	"custodia/internal/audit"
	"custodia/internal/consent/models"
)

// Observability helpers for logging, auditing, and metrics.
// These methods are on *Engine to access logger, auditor, and metrics.

// audit appends the decision trail entry for an evaluation. The preview is
// always the sanitized form; raw request content never reaches the auditor.
func (e *Engine) audit(ctx context.Context, req models.Request, decision *models.Decision, reason string) {
	action := audit.ActionGranted
	if !decision.Approved {
		action = audit.ActionDenied
	}
	e.emitAudit(ctx, audit.Entry{
		SessionID: req.SessionID,
		Action:    action,
		Level:     decision.Level,
		Layer:     req.Layer,
		Scope:     decision.Scope,
		Preview:   e.sanitizer.Sanitize(req.Content),
		Reason:    reason,
	})

	if e.logger != nil {
		e.logger.InfoContext(ctx, "consent decision",
			"session_id", req.SessionID,
			"layer", req.Layer,
			"level", decision.Level.String(),
			"approved", decision.Approved,
			"scope", decision.Scope,
			"cached", decision.Cached,
			"reason", reason,
		)
	}
}

func (e *Engine) emitAudit(ctx context.Context, entry audit.Entry) {
	if e.auditor == nil {
		return
	}
	_ = e.auditor.Emit(ctx, entry)
}

func (e *Engine) logObjection(ctx context.Context, entryID string, level models.Level) {
	if e.logger == nil {
		return
	}
	e.logger.InfoContext(ctx, "opt_out objection honored",
		"entry_id", entryID,
		"level", level.String(),
	)
}

func (e *Engine) incrementDecisions(outcome string, level models.Level) {
	if e.metrics != nil {
		e.metrics.IncrementDecisions(outcome, level.String())
	}
}

func (e *Engine) incrementCacheHits() {
	if e.metrics != nil {
		e.metrics.IncrementCacheHits()
	}
}

func (e *Engine) incrementCacheMisses() {
	if e.metrics != nil {
		e.metrics.IncrementCacheMisses()
	}
}

func (e *Engine) incrementPromptsIssued() {
	if e.metrics != nil {
		e.metrics.IncrementPromptsIssued()
	}
}

func (e *Engine) incrementRequestsQueued() {
	if e.metrics != nil {
		e.metrics.IncrementRequestsQueued()
	}
}

func (e *Engine) incrementBatchesApproved() {
	if e.metrics != nil {
		e.metrics.IncrementBatchesApproved()
	}
}

func (e *Engine) setPendingBatchSize() {
	if e.metrics != nil {
		e.metrics.SetPendingBatchSize(e.batch.Len())
	}
}

func (e *Engine) observeEvaluateLatency(d time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveEvaluateLatency(d.Seconds())
	}
}
