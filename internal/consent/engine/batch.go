package engine

import (
	"context"

	"github.com/google/uuid"

	"custodia/internal/audit"
	"custodia/internal/consent/batch"
	"custodia/internal/consent/models"
	dErrors "custodia/pkg/domain-errors"
)

// PendingBatches returns the queued requests grouped by category, FIFO per
// group, with content replaced by sanitized previews.
func (e *Engine) PendingBatches() map[string][]batch.Pending {
	pending := e.batch.Pending()
	for group, queue := range pending {
		for i := range queue {
			queue[i].Request.Content = e.sanitizer.Sanitize(queue[i].Request.Content)
		}
		pending[group] = queue
	}
	return pending
}

// ApproveBatch drains the category's queue and approves every request in it
// under one shared scope. The drain is atomic: requests enqueued during the
// approval start a fresh batch. One summary audit entry covers the batch,
// plus one entry per item.
func (e *Engine) ApproveBatch(ctx context.Context, category string, scope models.Scope) ([]models.Decision, error) {
	if !scope.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid scope")
	}

	drained := e.batch.Drain(category)
	if len(drained) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no pending requests for category")
	}

	e.emitAudit(ctx, audit.Entry{
		SessionID: drained[0].Request.SessionID,
		Action:    audit.ActionGranted,
		Level:     drained[0].Request.EffectiveLevel(),
		Layer:     drained[0].Request.Layer,
		Scope:     scope,
		Reason:    "batch approval",
		Preview:   category,
	})

	decisions := make([]models.Decision, 0, len(drained))
	for _, pending := range drained {
		req := pending.Request
		level := req.EffectiveLevel()
		decision := models.Decision{
			ID:        uuid.New().String(),
			SessionID: req.SessionID,
			Category:  req.Category,
			Layer:     req.Layer,
			Level:     level,
			Approved:  true,
			Scope:     scope,
			DecidedAt: e.now(),
			Metadata:  e.metadataFor(req, level, scope),
		}
		if req.TTL > 0 && !req.Relational {
			decision.TTLOverride = req.TTL
		}
		e.cacheWrite(req, decision)
		e.audit(ctx, req, &decision, "batch approval")
		e.incrementDecisions("granted", level)
		decisions = append(decisions, decision)
	}

	e.incrementBatchesApproved()
	e.setPendingBatchSize()
	return decisions, nil
}

// CancelPending withdraws a queued request by its pending id. No side
// effects beyond removal from the queue.
func (e *Engine) CancelPending(id string) bool {
	ok := e.batch.Cancel(id)
	if ok {
		e.setPendingBatchSize()
	}
	return ok
}
