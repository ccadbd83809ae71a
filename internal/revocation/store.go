package revocation

import (
	"context"

	"custodia/internal/consent/models"
	dErrors "custodia/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "ledger record not found")

// Filter narrows ledger listings.
type Filter struct {
	Layer *models.Layer
	State *State
}

// Store defines the persistence interface for ledger records.
// Error Contract:
// - Get returns ErrNotFound when no record exists
// - Apply is atomic: either every record transitions or none do
// - Other methods return nil on success or wrapped errors on failure
type Store interface {
	Register(ctx context.Context, record *Record) error
	Get(ctx context.Context, entryID string) (*Record, error)
	List(ctx context.Context, filter Filter) ([]*Record, error)
	CountByState(ctx context.Context, state State) (int, error)
	Apply(ctx context.Context, records []*Record) error
}
