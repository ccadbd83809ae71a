package httptransport

import (
	"encoding/json"
	"net/http"

	"custodia/internal/consent/batch"
	"custodia/internal/consent/models"
	"custodia/internal/revocation"
	dErrors "custodia/pkg/domain-errors"
)

// =============================================================================
// Revocation Endpoint Tests
// =============================================================================

func (s *HandlersSuite) TestRevoke() {
	token := s.token("sess-1", false)

	s.Run("successful revoke returns the result", func() {
		s.ledger.revokeResult = &revocation.RevokeResult{
			SoftDeleted:   []string{"e1", "e2"},
			AffectedCount: 2,
			TotalActive:   10,
		}
		rec := s.do(http.MethodPost, "/v1/revocation/revoke", token, map[string]any{
			"entry_ids":   []string{"e1", "e2"},
			"soft_delete": true,
		})
		s.Equal(http.StatusOK, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Len(resp["soft_deleted"], 2)
		s.Equal(float64(2), resp["affected_count"])
	})

	s.Run("utility warning surfaces as precondition failed", func() {
		s.ledger.revokeResult = nil
		s.ledger.err = &revocation.UtilityWarning{Percentage: 60, AffectedCount: 6, TotalActive: 10}
		rec := s.do(http.MethodPost, "/v1/revocation/revoke", token, map[string]any{
			"layer": "episodic", "soft_delete": true,
		})
		s.Equal(http.StatusPreconditionFailed, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("utility_warning", resp["error"])
		s.Equal(float64(60), resp["utility_percentage"])
	})

	s.Run("invalid layer rejected before the ledger", func() {
		rec := s.do(http.MethodPost, "/v1/revocation/revoke", token, map[string]any{
			"layer": "scratch",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("missing token rejected", func() {
		rec := s.do(http.MethodPost, "/v1/revocation/revoke", "", map[string]any{"all": true})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlersSuite) TestRecover() {
	token := s.token("sess-1", false)

	s.ledger.recoverResult = &revocation.RecoveryResult{
		Recovered: []string{"e1"},
		Failed: []revocation.ItemFailure{
			{EntryID: "e2", Code: dErrors.CodeRecoveryWindowExpired},
		},
	}
	rec := s.do(http.MethodPost, "/v1/revocation/recover", token, map[string]any{
		"entry_ids": []string{"e1", "e2"},
	})
	s.Equal(http.StatusOK, rec.Code)

	var resp recoverResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal([]string{"e1"}, resp.Recovered)
	s.Require().Len(resp.Failed, 1)
	s.Equal("recovery_window_expired", resp.Failed[0].Code)
}

func (s *HandlersSuite) TestPurge() {
	s.ledger.purged = 3
	rec := s.do(http.MethodPost, "/v1/revocation/purge", s.token("sess-1", false), nil)
	s.Equal(http.StatusOK, rec.Code)

	var resp map[string]int
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(3, resp["purged"])
}

// =============================================================================
// Batch Endpoint Tests
// =============================================================================

func (s *HandlersSuite) TestBatchEndpoints() {
	s.Run("pending returns grouped previews", func() {
		s.batch.pending = map[string][]batch.Pending{
			"travel plans": {{
				ID: "p1",
				Request: models.Request{
					Content:   "trip to j***@example.com",
					Layer:     models.LayerSemantic,
					Category:  "travel plans",
					SessionID: "sess-1",
				},
			}},
		}
		rec := s.do(http.MethodGet, "/v1/batch/pending", "", nil)
		s.Equal(http.StatusOK, rec.Code)

		var resp map[string][]pendingItem
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Require().Len(resp["travel plans"], 1)
		s.Equal("p1", resp["travel plans"][0].ID)
	})

	s.Run("approve drains and reports decisions", func() {
		s.batch.decisions = []models.Decision{
			{ID: "d1", Approved: true, Scope: models.ScopeSession, Level: models.LevelExplicit},
			{ID: "d2", Approved: true, Scope: models.ScopeSession, Level: models.LevelExplicit},
		}
		rec := s.do(http.MethodPost, "/v1/batch/approve", "", map[string]string{
			"category": "travel plans",
		})
		s.Equal(http.StatusOK, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(float64(2), resp["approved"])
	})

	s.Run("approve without category rejected", func() {
		rec := s.do(http.MethodPost, "/v1/batch/approve", "", map[string]string{})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("empty category approval is not found", func() {
		s.batch.decisions = nil
		s.batch.err = dErrors.New(dErrors.CodeNotFound, "no pending requests for category")
		rec := s.do(http.MethodPost, "/v1/batch/approve", "", map[string]string{
			"category": "nothing",
		})
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("cancel known id", func() {
		s.batch.cancelled = true
		rec := s.do(http.MethodDelete, "/v1/batch/p1", "", nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("cancel unknown id", func() {
		s.batch.cancelled = false
		rec := s.do(http.MethodDelete, "/v1/batch/ghost", "", nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}
