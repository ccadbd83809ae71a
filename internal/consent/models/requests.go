package models

import (
	"time"

	dErrors "custodia/pkg/domain-errors"
)

// Request is an immutable consent evaluation request. Content is the raw
// candidate text; it never leaves the engine unsanitized.
type Request struct {
	Content        string
	Layer          Layer
	RequestedLevel Level
	Purpose        string
	// TTL bounds how long the content may live once stored. Zero means
	// indefinite. Relational content ignores it (no auto-decay).
	TTL time.Duration
	// Relational marks content describing the user-system relationship
	// itself. It forces elevation to at least LevelExplicit.
	Relational bool
	// Category keys the cache and batch grouping. Required whenever the
	// effective level can prompt (explicit or protected).
	Category  string
	SessionID string
	// MFAVerified reports whether the caller supplied a valid proof-of-MFA
	// token. The engine treats the proof as a boolean; validating the token
	// itself is the transport's job.
	MFAVerified bool
}

// Validate enforces the request invariants that do not depend on level
// resolution. Category presence is checked by the engine once the effective
// level is known.
func (r Request) Validate() error {
	if !r.Layer.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid memory layer")
	}
	if !r.RequestedLevel.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid consent level")
	}
	if r.SessionID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "session id required")
	}
	return nil
}

// EffectiveLevel resolves the level the engine must enforce: the maximum of
// the requested level, the layer default, and the relational floor. The
// engine never silently downgrades.
func (r Request) EffectiveLevel() Level {
	relational := LevelAuto
	if r.Relational {
		relational = LevelExplicit
	}
	return MaxLevel(r.RequestedLevel, r.Layer.DefaultLevel(), relational)
}
