package domain

import "time"

// AuditEntry is one append-only record of a webhook handling attempt.
// An entry is written before the event is dispatched and a second one on
// failure, so the trail survives regardless of business-logic success.
type AuditEntry struct {
	ID          int64
	SessionID   string
	Action      string
	Description string
	Payload     []byte // raw request body
	CreatedAt   time.Time
}
