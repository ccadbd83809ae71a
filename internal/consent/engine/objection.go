package engine

import (
	"context"

	"custodia/internal/consent/models"
	"custodia/internal/revocation"
	dErrors "custodia/pkg/domain-errors"
)

// rememberObjectable parks an implicit-level decision until the caller binds
// it to a stored entry id.
func (e *Engine) rememberObjectable(decision models.Decision) {
	e.mu.Lock()
	e.objectable[decision.ID] = decision
	e.mu.Unlock()
}

// RegisterStored records that the caller persisted content under entryID
// following the given decision. It registers the entry as active in the
// revocation ledger and, for objectable decisions, indexes them so a later
// opt-out can revoke without re-running the pipeline.
func (e *Engine) RegisterStored(ctx context.Context, entryID, decisionID string, layer models.Layer, relational bool) error {
	if e.ledger == nil {
		return dErrors.New(dErrors.CodeConfiguration, "no revocation ledger wired")
	}
	if err := e.ledger.Register(ctx, entryID, layer, relational); err != nil {
		return err
	}

	e.mu.Lock()
	if decision, ok := e.objectable[decisionID]; ok {
		delete(e.objectable, decisionID)
		e.bound[entryID] = decision
	}
	e.mu.Unlock()
	return nil
}

// Object executes the opt-out reverse path for an implicit-level storage:
// the entry is soft-deleted through the ledger, without re-evaluating
// consent. Entries stored under non-objectable decisions cannot be objected
// to here; callers revoke those explicitly.
func (e *Engine) Object(ctx context.Context, entryID, sessionID string) (*revocation.RevokeResult, error) {
	if e.ledger == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "no revocation ledger wired")
	}

	e.mu.Lock()
	decision, ok := e.bound[entryID]
	e.mu.Unlock()
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "no objectable decision for entry")
	}

	result, err := e.ledger.Revoke(ctx, revocation.RevokeRequest{
		EntryIDs:   []string{entryID},
		SoftDelete: true,
		Reason:     "opt_out",
		SessionID:  sessionID,
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	delete(e.bound, entryID)
	e.mu.Unlock()

	e.logObjection(ctx, entryID, decision.Level)
	return result, nil
}
