package batch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"custodia/internal/consent/models"
)

type BatchSuite struct {
	suite.Suite
	coord *Coordinator
}

func TestBatchSuite(t *testing.T) {
	suite.Run(t, new(BatchSuite))
}

func (s *BatchSuite) SetupTest() {
	s.coord = New()
}

func (s *BatchSuite) request(category, content string) models.Request {
	return models.Request{
		Content:   content,
		Layer:     models.LayerSemantic,
		Category:  category,
		SessionID: "sess-1",
	}
}

// =============================================================================
// Queue Tests
// =============================================================================

func (s *BatchSuite) TestEnqueueGroupsByCategory() {
	s.coord.Enqueue(s.request("travel", "first"))
	s.coord.Enqueue(s.request("travel", "second"))
	s.coord.Enqueue(s.request("health", "third"))

	pending := s.coord.Pending()
	s.Len(pending, 2)
	s.Len(pending["travel"], 2)
	s.Len(pending["health"], 1)
}

func (s *BatchSuite) TestFIFOOrder() {
	s.coord.Enqueue(s.request("travel", "first"))
	s.coord.Enqueue(s.request("travel", "second"))
	s.coord.Enqueue(s.request("travel", "third"))

	drained := s.coord.Drain("travel")
	s.Require().Len(drained, 3)
	s.Equal("first", drained[0].Request.Content)
	s.Equal("second", drained[1].Request.Content)
	s.Equal("third", drained[2].Request.Content)
}

func (s *BatchSuite) TestNormalizedGrouping() {
	s.coord.Enqueue(s.request("Travel Plans", "a"))
	s.coord.Enqueue(s.request("travel  plans", "b"))

	pending := s.coord.Pending()
	s.Len(pending, 1)
	s.Len(pending["travel plans"], 2)
}

func (s *BatchSuite) TestFuzzyGrouping() {
	s.Run("near-identical categories share a queue", func() {
		s.coord.Enqueue(s.request("travel plans", "a"))
		s.coord.Enqueue(s.request("travel planss", "b"))
		s.Len(s.coord.Pending(), 1)
	})

	s.Run("unrelated categories stay apart", func() {
		s.coord.Enqueue(s.request("finances", "c"))
		s.Len(s.coord.Pending(), 2)
	})

	s.Run("threshold of zero disables fuzzy grouping", func() {
		strict := New(WithSimilarityThreshold(0))
		strict.Enqueue(s.request("travel plans", "a"))
		strict.Enqueue(s.request("travel planss", "b"))
		s.Len(strict.Pending(), 2)
	})
}

// =============================================================================
// Drain / Cancel Tests
// =============================================================================

func (s *BatchSuite) TestDrainIsAtomic() {
	s.coord.Enqueue(s.request("travel", "a"))

	drained := s.coord.Drain("travel")
	s.Len(drained, 1)

	s.Run("drained group is gone", func() {
		s.Empty(s.coord.Drain("travel"))
		s.Zero(s.coord.Len())
	})

	s.Run("new enqueue starts a fresh batch", func() {
		s.coord.Enqueue(s.request("travel", "b"))
		s.Equal(1, s.coord.Len())
	})
}

func (s *BatchSuite) TestCancel() {
	id := s.coord.Enqueue(s.request("travel", "a"))
	s.coord.Enqueue(s.request("travel", "b"))

	s.Run("known id is removed", func() {
		s.True(s.coord.Cancel(id))
		s.Equal(1, s.coord.Len())
	})

	s.Run("unknown id is a no-op", func() {
		s.False(s.coord.Cancel("nope"))
		s.Equal(1, s.coord.Len())
	})

	s.Run("cancelling the last entry removes the group", func() {
		remaining := s.coord.Drain("travel")
		s.Require().Len(remaining, 1)
		s.Equal("b", remaining[0].Request.Content)
	})
}

func (s *BatchSuite) TestConcurrentEnqueueAndDrain() {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.coord.Enqueue(s.request("travel", "x"))
		}()
	}
	wg.Wait()

	total := len(s.coord.Drain("travel"))
	s.Equal(10, total)
}

// =============================================================================
// Similarity Tests
// =============================================================================

func (s *BatchSuite) TestSimilarity() {
	s.Equal(1.0, Similarity("travel", "travel"))
	s.Equal(0.0, Similarity("a", "travel"))
	s.Zero(Similarity("ab", "cd"))
	s.Greater(Similarity("travel plans", "travel plan"), 0.8)
	s.Less(Similarity("travel", "finance"), 0.3)
}

func (s *BatchSuite) TestNormalize() {
	s.Equal("travel plans", Normalize("  Travel   PLANS "))
	s.Equal("", Normalize("   "))
}
