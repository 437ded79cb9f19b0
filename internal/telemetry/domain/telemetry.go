package domain

import "time"

// Event is one wallet result or lifecycle event mirrored to telemetry.
type Event struct {
	ID        string
	UserID    string // empty when no principal is signed in
	AttemptID string
	EventType string // e.g. result.success, attempt.committed
	Source    string
	Message   string
	Metadata  []byte // JSON
	CreatedAt time.Time
}
