package domain

import "time"

// AuditLog is one recorded authorization attempt transition.
type AuditLog struct {
	ID        string
	UserID    string
	AttemptID string
	Action    string
	Resource  string
	Metadata  string
	CreatedAt time.Time
}
