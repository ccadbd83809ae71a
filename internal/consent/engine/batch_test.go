package engine

import (
	"context"

	"custodia/internal/audit"
	"custodia/internal/consent/models"
	"custodia/internal/revocation"
	"custodia/internal/sanitize"
	dErrors "custodia/pkg/domain-errors"
)

// =============================================================================
// Batch Approval Tests
// =============================================================================

// exhaustBudget burns the session's prompt budget so further requests queue.
func (s *EngineSuite) exhaustBudget(ctx context.Context) {
	s.verdict = models.Approve()
	for _, category := range []string{"warmup-a", "warmup-b"} {
		_, err := s.engine.Evaluate(ctx, s.request(models.LayerSemantic, category))
		s.Require().NoError(err)
	}
}

func (s *EngineSuite) TestApproveBatch() {
	ctx := context.Background()
	s.exhaustBudget(ctx)

	for i := 0; i < 3; i++ {
		decision, err := s.engine.Evaluate(ctx, s.request(models.LayerSemantic, "travel plans"))
		s.Require().NoError(err)
		s.Equal(models.ReasonQueued, decision.DenialReason)
	}

	decisions, err := s.engine.ApproveBatch(ctx, "travel plans", models.ScopeSession)
	s.Require().NoError(err)
	s.Require().Len(decisions, 3)

	s.Run("every queued request is approved under the shared scope", func() {
		for _, d := range decisions {
			s.True(d.Approved)
			s.Equal(models.ScopeSession, d.Scope)
			s.Equal(models.LevelExplicit, d.Level)
			s.NotNil(d.Metadata)
		}
	})

	s.Run("queue is drained", func() {
		s.Zero(s.coord.Len())
	})

	s.Run("approval is cached for the session", func() {
		before := s.calls.Load()
		decision, err := s.engine.Evaluate(ctx, s.request(models.LayerSemantic, "travel plans"))
		s.Require().NoError(err)
		s.True(decision.Approved)
		s.True(decision.Cached)
		s.Equal(before, s.calls.Load())
	})

	s.Run("summary plus per-item audit entries", func() {
		entries, err := s.auditStore.ListBySession(ctx, "sess-1")
		s.Require().NoError(err)
		batchEntries := 0
		for _, e := range entries {
			if e.Reason == "batch approval" {
				batchEntries++
			}
		}
		s.Equal(4, batchEntries) // 1 summary + 3 items
	})
}

func (s *EngineSuite) TestApproveBatchEmptyCategory() {
	_, err := s.engine.ApproveBatch(context.Background(), "nothing here", models.ScopeSession)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestApproveBatchInvalidScope() {
	_, err := s.engine.ApproveBatch(context.Background(), "travel", models.Scope("galaxy"))
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *EngineSuite) TestPendingBatchesSanitizesPreviews() {
	ctx := context.Background()
	s.exhaustBudget(ctx)

	req := s.request(models.LayerSemantic, "contacts")
	req.Content = "reach me at jane.doe@example.com"
	decision, err := s.engine.Evaluate(ctx, req)
	s.Require().NoError(err)
	s.Equal(models.ReasonQueued, decision.DenialReason)

	pending := s.engine.PendingBatches()
	s.Require().Len(pending["contacts"], 1)
	s.Equal("reach me at j***@example.com", pending["contacts"][0].Request.Content)
}

// =============================================================================
// Objection (Opt-Out) Tests
// =============================================================================

func (s *EngineSuite) TestObjectionFlow() {
	ctx := context.Background()

	decision, err := s.engine.Evaluate(ctx, s.request(models.LayerEpisodic, ""))
	s.Require().NoError(err)
	s.Require().True(decision.Objectable)

	s.Require().NoError(s.engine.RegisterStored(ctx, "entry-1", decision.ID, models.LayerEpisodic, false))

	s.Run("objection soft-deletes the stored entry", func() {
		result, err := s.engine.Object(ctx, "entry-1", "sess-1")
		s.Require().NoError(err)
		s.Equal([]string{"entry-1"}, result.SoftDeleted)

		record, err := s.ledger.Get(ctx, "entry-1")
		s.Require().NoError(err)
		s.Equal(revocation.StateSoftDeleted, record.State)
	})

	s.Run("objection reason lands in the audit trail", func() {
		entries, err := s.auditStore.ListBySession(ctx, "sess-1")
		s.Require().NoError(err)
		var found bool
		for _, e := range entries {
			if e.Action == audit.ActionRevoked && e.Reason == "opt_out" {
				found = true
			}
		}
		s.True(found)
	})

	s.Run("second objection finds nothing to object to", func() {
		_, err := s.engine.Object(ctx, "entry-1", "sess-1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *EngineSuite) TestObjectionRequiresBinding() {
	ctx := context.Background()

	s.Run("unbound entry cannot be objected to", func() {
		_, err := s.engine.Object(ctx, "never-stored", "sess-1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("explicit decisions are not objectable", func() {
		s.verdict = models.ApproveForSession()
		decision, err := s.engine.Evaluate(ctx, s.request(models.LayerSemantic, "location"))
		s.Require().NoError(err)
		s.False(decision.Objectable)

		s.Require().NoError(s.engine.RegisterStored(ctx, "entry-2", decision.ID, models.LayerSemantic, false))
		_, err = s.engine.Object(ctx, "entry-2", "sess-1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *EngineSuite) TestEndSessionDropsUnboundObjectables() {
	ctx := context.Background()

	decision, err := s.engine.Evaluate(ctx, s.request(models.LayerEpisodic, ""))
	s.Require().NoError(err)
	s.Require().True(decision.Objectable)

	s.engine.EndSession("sess-1")

	// Binding after session end still registers the entry, but the lapsed
	// decision is no longer indexed, so the opt-out path is closed.
	s.Require().NoError(s.engine.RegisterStored(ctx, "entry-late", decision.ID, models.LayerEpisodic, false))
	_, err = s.engine.Object(ctx, "entry-late", "sess-1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Run("other sessions keep their pending objectables", func() {
		other := s.request(models.LayerEpisodic, "")
		other.SessionID = "sess-2"
		kept, err := s.engine.Evaluate(ctx, other)
		s.Require().NoError(err)

		s.engine.EndSession("sess-1")

		s.Require().NoError(s.engine.RegisterStored(ctx, "entry-kept", kept.ID, models.LayerEpisodic, false))
		result, err := s.engine.Object(ctx, "entry-kept", "sess-2")
		s.Require().NoError(err)
		s.Equal([]string{"entry-kept"}, result.SoftDeleted)
	})
}

func (s *EngineSuite) TestRegisterStoredWithoutLedger() {
	engine := New(nil, s.cache, s.coord, sanitize.New(), nil, nil)
	err := engine.RegisterStored(context.Background(), "e1", "d1", models.LayerEpisodic, false)
	s.True(dErrors.HasCode(err, dErrors.CodeConfiguration))
}
