package ledger

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paywallet/internal/ledger/domain"
)

// transactionJSON is the backend transaction document.
type transactionJSON struct {
	TransactionID   string          `json:"transactionId"`
	FromUserID      string          `json:"fromUserId"`
	ToUserID        string          `json:"toUserId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Type            string          `json:"type"`
	Status          string          `json:"status"`
	Description     string          `json:"description"`
	ReferenceNumber string          `json:"referenceNumber"`
	CreatedAt       string          `json:"createdAt"`
	FromUserName    string          `json:"fromUserName"`
	ToUserName      string          `json:"toUserName"`
}

type balanceJSON struct {
	Balance decimal.Decimal `json:"balance"`
}

// Timestamps arrive either zoned (RFC 3339) or as zone-less local date-times, read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// normalize converts a backend document into a record as seen by viewerID.
func normalize(t transactionJSON, viewerID string) domain.Record {
	r := domain.Record{
		ID:          t.TransactionID,
		Amount:      t.Amount,
		Currency:    t.Currency,
		FromUserID:  t.FromUserID,
		ToUserID:    t.ToUserID,
		From:        t.FromUserName,
		To:          t.ToUserName,
		Description: t.Description,
		Status:      strings.ToLower(t.Status),
		Category:    strings.ToLower(t.Type),
		Reference:   t.ReferenceNumber,
		CreatedAt:   parseTime(t.CreatedAt),
	}
	if t.FromUserID == viewerID {
		r.Type = domain.TypeSent
	} else {
		r.Type = domain.TypeReceived
	}
	if r.From == "" {
		if t.FromUserID == domain.SystemUserID {
			r.From = "System"
		} else {
			r.From = "Unknown User"
		}
	}
	if r.To == "" {
		r.To = "Unknown User"
	}
	if r.Description == "" {
		r.Description = "Transfer"
	}
	if r.Currency == "" {
		r.Currency = "INR"
	}
	return r
}

// normalizeAll normalizes docs and orders them most-recent-first.
func normalizeAll(docs []transactionJSON, viewerID string) []domain.Record {
	out := make([]domain.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, normalize(d, viewerID))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// amountJSON sends a decimal as a JSON number.
func amountJSON(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
