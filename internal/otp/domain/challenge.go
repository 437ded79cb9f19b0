package domain

import "time"

// Purpose tags why a code was requested. Together with the subject it keys a challenge.
type Purpose string

const (
	PurposeTransaction    Purpose = "TRANSACTION"
	PurposeAddMoney       Purpose = "ADD_MONEY"
	PurposeLogin          Purpose = "LOGIN"
	PurposePasswordChange Purpose = "PASSWORD_CHANGE"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeTransaction, PurposeAddMoney, PurposeLogin, PurposePasswordChange:
		return true
	}
	return false
}

// Challenge is the active one-time code for a (subject, purpose) pair. Only the code hash is kept.
type Challenge struct {
	ID                string
	SubjectUserID     string
	Purpose           Purpose
	CodeHash          string
	DeliveredVia      string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	ResendAvailableAt time.Time
	// FailedAttempts counts wrong codes submitted against this challenge.
	FailedAttempts int
}

// Key returns the composite store key for subject and purpose.
func Key(subjectUserID string, purpose Purpose) string {
	return subjectUserID + "_" + string(purpose)
}

// Expired reports whether the challenge is past its deadline at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
