package revocation

import (
	"fmt"
	"time"

	"custodia/internal/consent/models"
)

// State is the lifecycle position of a memory entry in the ledger.
//
// Transitions: active -> soft_deleted (revoke with recovery) or -> purged
// (hard revoke); soft_deleted -> active (recover before deadline) or ->
// purged (deadline passed or explicit escalation). Protected-layer entries
// skip soft_deleted entirely.
type State string

const (
	StateActive      State = "active"
	StateSoftDeleted State = "soft_deleted"
	StatePurged      State = "purged"
)

// IsValid checks if the state is one of the supported enum values.
func (s State) IsValid() bool {
	return s == StateActive || s == StateSoftDeleted || s == StatePurged
}

// Record tracks one memory entry's revocation lifecycle. The ledger never
// holds content, only the entry identifier the storage collaborator knows.
type Record struct {
	EntryID    string
	Layer      models.Layer
	State      State
	Relational bool
	// SoftDeleteDeadline is set only while State is soft_deleted.
	SoftDeleteDeadline *time.Time
	RevokedAt          *time.Time
	Reason             string
	CreatedAt          time.Time
}

// CanRecover reports whether the entry is inside its recovery window.
func (r Record) CanRecover(now time.Time) bool {
	return r.State == StateSoftDeleted &&
		r.SoftDeleteDeadline != nil &&
		now.Before(*r.SoftDeleteDeadline)
}

// UtilityWarning signals that a bulk revocation would remove a majority of
// active memory. It is a gate, not a hard block: retrying with force always
// proceeds. No state changes when it is returned.
type UtilityWarning struct {
	Percentage    float64
	AffectedCount int
	TotalActive   int
}

func (w *UtilityWarning) Error() string {
	return fmt.Sprintf("revocation would remove %.0f%% of active memory (%d of %d entries); pass force to proceed",
		w.Percentage, w.AffectedCount, w.TotalActive)
}
