// Package cache remembers prompt outcomes so the engine does not re-ask the
// user for the same logical decision. It stores decisions only, never raw
// content.
package cache

import (
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"custodia/internal/consent/models"
)

// DefaultTTL bounds cached decisions independently of the content's own
// retention.
const DefaultTTL = 24 * time.Hour

// Key addresses a cached decision. Session-scoped entries carry the session
// id; category-scoped entries leave it empty so they apply across sessions.
type Key struct {
	SessionID string
	Category  string
	Layer     models.Layer
}

// SessionKey builds the session-scoped key for a request.
func SessionKey(sessionID, category string, layer models.Layer) Key {
	return Key{SessionID: sessionID, Category: category, Layer: layer}
}

// CategoryKey builds the cross-session key for a category approval.
func CategoryKey(category string, layer models.Layer) Key {
	return Key{Category: category, Layer: layer}
}

// Fingerprint returns an opaque digest of the key for logs, audit entries,
// and singleflight grouping. Key parts never appear verbatim outside the
// engine.
func (k Key) Fingerprint() string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(k.SessionID))
	h.Write([]byte{0})
	h.Write([]byte(k.Category))
	h.Write([]byte{0})
	h.Write([]byte(k.Layer))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:12])
}

// Entry pairs a cached decision with its expiry.
type Entry struct {
	Decision  models.Decision
	ExpiresAt time.Time
}

// Option configures the Cache.
type Option func(*Cache)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache is an in-memory decision cache. Reads and writes on the same key are
// linearizable: a single mutex guards the map, so every operation observes
// the latest committed state.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]Entry
	ttl     time.Duration
	now     func() time.Time
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]Entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached entry for key. Expiry is checked lazily: an expired
// entry is dropped and reported as absent.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	if !entry.ExpiresAt.After(c.now()) {
		delete(c.entries, key)
		return Entry{}, false
	}
	return entry, true
}

// Put caches a decision under key. Single-scope decisions are never written;
// the invariant lives here so no caller can break it.
func (c *Cache) Put(key Key, decision models.Decision) {
	if decision.Scope == models.ScopeSingle {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{
		Decision:  decision,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// EvictExpired drops all expired entries and returns how many were removed.
// Expiry is lazy on read; this exists for periodic maintenance.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for key, entry := range c.entries {
		if !entry.ExpiresAt.After(now) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// DropSession removes every session-scoped entry for the given session.
// Session approvals expire at the earlier of session end or the cache TTL.
func (c *Cache) DropSession(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key := range c.entries {
		if key.SessionID == sessionID {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live entries, expired ones included until the
// next read or eviction touches them.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
