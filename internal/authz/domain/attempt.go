package domain

import (
	"time"

	identitydomain "paywallet/internal/identity/domain"
	intentdomain "paywallet/internal/intent/domain"
	ledgerdomain "paywallet/internal/ledger/domain"
)

// State of an authorization attempt.
type State string

const (
	StateDraft        State = "Draft"
	StateOTPRequested State = "OTPRequested"
	StateOTPVerified  State = "OTPVerified"
	StateCommitted    State = "Committed"
	StateFailed       State = "Failed"
	StateExpired      State = "Expired"
	StateCancelled    State = "Cancelled"
)

// Terminal reports whether no further transition is defined from s.
func (s State) Terminal() bool {
	switch s {
	case StateCommitted, StateFailed, StateExpired, StateCancelled:
		return true
	default:
		return false
	}
}

// Attempt is a point-in-time copy of one authorization attempt.
type Attempt struct {
	ID     string
	State  State
	Intent *intentdomain.Intent

	// Challenge reference; zero until a challenge was issued.
	ChallengeID       string
	DeliveredVia      string
	ExpiresAt         time.Time
	ResendAvailableAt time.Time

	// LastError is the most recent failure: InvalidCode while retrying, the cause when Failed or Expired.
	LastError error

	// Outcome of a commit. Record is set for SEND and ADD, Principal for LOGIN. Snapshot is the
	// ledger state reconciled right after the commit.
	Record    *ledgerdomain.Record
	Principal *identitydomain.Principal
	Snapshot  *ledgerdomain.Snapshot

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the attempt is finished.
func (a Attempt) Terminal() bool { return a.State.Terminal() }
