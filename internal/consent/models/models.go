package models

import "time"

// Denial reasons carried on ConsentDecision.DenialReason. They are data, not
// error values, so callers can handle every denial uniformly.
const (
	ReasonQueued          = "queued"
	ReasonMFARequired     = "mfa_required"
	ReasonCallbackTimeout = "callback_timeout"
)

// Decision is the engine's answer to a Request.
//
// Invariant: DenialReason is set iff Approved is false.
type Decision struct {
	ID        string
	SessionID string
	Category  string
	Layer     Layer
	Level     Level
	Approved  bool
	Scope     Scope
	// TTLOverride, when non-zero, replaces the caller's retention for the
	// stored entry. Always zero for relational content.
	TTLOverride  time.Duration
	DenialReason string
	// Objectable marks implicit-level approvals that a later opt-out call may
	// retroactively revoke.
	Objectable bool
	// Cached reports the decision was served from the consent cache rather
	// than a fresh callback.
	Cached    bool
	DecidedAt time.Time
	// Metadata is the block the caller attaches when invoking the storage
	// layer. Present only on approvals.
	Metadata *StorageMetadata
}

// StorageMetadata travels with approved content into the storage
// collaborator. The engine never writes content itself.
type StorageMetadata struct {
	ConsentLevel Level     `json:"consent_level"`
	ConsentedAt  time.Time `json:"consented_at"`
	ConsentScope Scope     `json:"consent_scope"`
	Purpose      string    `json:"purpose,omitempty"`
	Relational   bool      `json:"is_relational"`
}

// Verdict is what a decision callback returns. Scope narrows or widens how
// the approval is cached; denials always carry a reason.
type Verdict struct {
	Approved bool
	Scope    Scope
	Reason   string
}

// Approve grants the single request only.
func Approve() Verdict {
	return Verdict{Approved: true, Scope: ScopeSingle}
}

// ApproveForSession grants the request and caches the approval for the rest
// of the session.
func ApproveForSession() Verdict {
	return Verdict{Approved: true, Scope: ScopeSession}
}

// ApproveForCategory grants the request and caches the approval for the whole
// category across sessions.
func ApproveForCategory() Verdict {
	return Verdict{Approved: true, Scope: ScopeCategory}
}

// Deny refuses the request with a caller-visible reason.
func Deny(reason string) Verdict {
	return Verdict{Approved: false, Scope: ScopeSingle, Reason: reason}
}
