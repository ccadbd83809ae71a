package audit

import (
	"context"

	dErrors "custodia/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "audit entry not found")

// Store persists audit entries. Implementations must preserve per-session
// append order; no global total order is promised.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListBySession(ctx context.Context, sessionID string) ([]Entry, error)
	List(ctx context.Context, limit int) ([]Entry, error)
}
