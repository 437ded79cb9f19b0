package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a record relative to the viewing user.
const (
	TypeSent     = "sent"
	TypeReceived = "received"
)

// SystemUserID is the sender id the ledger uses for deposits.
const SystemUserID = "SYSTEM"

// Record is one committed transaction as shown to a user.
type Record struct {
	ID          string
	Type        string
	Amount      decimal.Decimal
	Currency    string
	FromUserID  string
	ToUserID    string
	From        string
	To          string
	Description string
	Status      string
	Category    string
	Reference   string
	CreatedAt   time.Time
}

// Snapshot is a read-through copy of a user's ledger state. The ledger service owns the truth.
type Snapshot struct {
	UserID       string
	Balance      decimal.Decimal
	Transactions []Record
	FetchedAt    time.Time
	// Stale is set when the snapshot is a cached copy served because a refresh failed.
	Stale bool
}

// Head returns the most recent record, if any.
func (s *Snapshot) Head() (Record, bool) {
	if s == nil || len(s.Transactions) == 0 {
		return Record{}, false
	}
	return s.Transactions[0], true
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Transactions = append([]Record(nil), s.Transactions...)
	return &c
}
