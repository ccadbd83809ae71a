package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Publisher captures structured audit entries. It is append-only and uses
// the storage layer for persistence so tests can swap sinks easily.
//
// Per-session ordering holds in both modes: synchronous emits append in call
// order, and the async path funnels every entry through one goroutine.
type Publisher struct {
	store  Store
	events chan Entry
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Entries are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Entry, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEntries()
	}
	return p
}

func (p *Publisher) processEntries() {
	defer p.wg.Done()
	for entry := range p.events {
		if err := p.store.Append(context.Background(), entry); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to persist audit entry",
					"error", err,
					"action", entry.Action,
					"session_id", entry.SessionID,
				)
			}
		}
	}
}

// Close shuts down the async publisher and waits for pending entries to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit appends an entry, assigning timestamp, ULID, and the context's client
// label when absent.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.Client == "" {
		entry.Client = ClientFromContext(ctx)
	}
	if p.async {
		// Non-blocking send; drop the entry if the buffer is full to avoid
		// blocking the decision hot path.
		select {
		case p.events <- entry:
			return nil
		default:
			if p.logger != nil {
				p.logger.Warn("audit buffer full, entry dropped",
					"action", entry.Action,
					"session_id", entry.SessionID,
				)
			}
			return nil
		}
	}
	return p.store.Append(ctx, entry)
}

// ListBySession returns a session's entries in append order.
func (p *Publisher) ListBySession(ctx context.Context, sessionID string) ([]Entry, error) {
	return p.store.ListBySession(ctx, sessionID)
}
