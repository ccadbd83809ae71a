// Package batch groups queued consent requests by category so one approval
// can resolve many prompts, the main lever against consent fatigue.
package batch

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"custodia/internal/consent/models"
)

// DefaultSimilarityThreshold controls fuzzy category grouping. Exact matches
// on the normalized category always group; fuzzy matching is a convenience on
// top.
const DefaultSimilarityThreshold = 0.8

// Pending is a queued request awaiting batch resolution.
type Pending struct {
	ID         string
	Request    models.Request
	EnqueuedAt time.Time
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithSimilarityThreshold overrides the fuzzy-grouping threshold.
// Values outside (0, 1] disable fuzzy grouping entirely.
func WithSimilarityThreshold(t float64) Option {
	return func(c *Coordinator) {
		c.threshold = t
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// Coordinator holds per-category FIFO queues of requests that exceeded the
// session prompt budget. Draining a category is atomic: requests enqueued
// concurrently with a drain land in a fresh queue and are never lost or
// swept into the closing batch.
type Coordinator struct {
	mu        sync.Mutex
	groups    map[string][]Pending
	threshold float64
	now       func() time.Time
}

func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		groups:    make(map[string][]Pending),
		threshold: DefaultSimilarityThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue appends the request to its category group and returns the pending
// id the caller can later cancel with.
func (c *Coordinator) Enqueue(req models.Request) string {
	id := uuid.New().String()
	c.mu.Lock()
	defer c.mu.Unlock()

	group := c.groupFor(req.Category)
	c.groups[group] = append(c.groups[group], Pending{
		ID:         id,
		Request:    req,
		EnqueuedAt: c.now(),
	})
	return id
}

// Pending returns a snapshot of all queued requests keyed by group, each
// group in FIFO order.
func (c *Coordinator) Pending() map[string][]Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string][]Pending, len(c.groups))
	for group, queue := range c.groups {
		out[group] = append([]Pending{}, queue...)
	}
	return out
}

// Drain removes and returns the whole queue for category, in FIFO order.
// The group entry is deleted under the lock, so a concurrent Enqueue starts
// a new batch instead of joining the drained one.
func (c *Coordinator) Drain(category string) []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	group := c.groupFor(category)
	queue := c.groups[group]
	delete(c.groups, group)
	return queue
}

// Cancel withdraws a pending request by id. It reports whether anything was
// removed; cancellation has no other side effects.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for group, queue := range c.groups {
		for i, p := range queue {
			if p.ID == id {
				c.groups[group] = append(queue[:i:i], queue[i+1:]...)
				if len(c.groups[group]) == 0 {
					delete(c.groups, group)
				}
				return true
			}
		}
	}
	return false
}

// Len reports the total number of queued requests across groups.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, queue := range c.groups {
		n += len(queue)
	}
	return n
}

// groupFor resolves the queue a category belongs to. Caller must hold c.mu.
// An exact normalized match wins; otherwise an existing group close enough
// under the similarity threshold absorbs the request.
func (c *Coordinator) groupFor(category string) string {
	norm := Normalize(category)
	if _, ok := c.groups[norm]; ok {
		return norm
	}
	if c.threshold > 0 && c.threshold <= 1 {
		for group := range c.groups {
			if Similarity(norm, group) >= c.threshold {
				return group
			}
		}
	}
	return norm
}

// Normalize lowercases a category and collapses interior whitespace so
// "Travel Plans" and "travel  plans" share a queue.
func Normalize(category string) string {
	return strings.Join(strings.Fields(strings.ToLower(category)), " ")
}

// Similarity computes the Sorensen-Dice coefficient over character bigrams of
// the two normalized strings. Identical strings score 1, disjoint ones 0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) < 2 || len(b) < 2 {
		return 0
	}
	bigrams := func(s string) map[string]int {
		m := make(map[string]int, len(s))
		for i := 0; i+2 <= len(s); i++ {
			m[s[i:i+2]]++
		}
		return m
	}
	ba, bb := bigrams(a), bigrams(b)
	overlap := 0
	for gram, count := range ba {
		if other, ok := bb[gram]; ok {
			if other < count {
				count = other
			}
			overlap += count
		}
	}
	return 2 * float64(overlap) / float64(len(a)-1+len(b)-1)
}
