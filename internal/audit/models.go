package audit

import (
	"time"

	"custodia/internal/consent/models"
)

// Action labels what happened to a piece of content or a consent decision.
type Action string

const (
	ActionGranted   Action = "granted"
	ActionDenied    Action = "denied"
	ActionRevoked   Action = "revoked"
	ActionRecovered Action = "recovered"
	ActionPurged    Action = "purged"
	ActionWarned    Action = "warned"
)

// Entry is one append-only audit record. The preview field always holds
// sanitized content; raw content never reaches this package. Entries are
// ordered per session, not globally.
type Entry struct {
	// ID is a ULID, so lexical order matches emission order within a session.
	ID        string
	Timestamp time.Time
	SessionID string
	Action    Action
	Level     models.Level
	Layer     models.Layer
	Scope     models.Scope
	Preview   string
	Reason    string
	// Client is a condensed user-agent summary supplied by the transport.
	Client string
}
