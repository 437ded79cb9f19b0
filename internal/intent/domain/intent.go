package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	otpdomain "paywallet/internal/otp/domain"
)

// Kind is the closed set of OTP-gated actions.
type Kind string

const (
	KindSend           Kind = "SEND"
	KindAdd            Kind = "ADD"
	KindPasswordChange Kind = "PASSWORD_CHANGE"
	KindLogin          Kind = "LOGIN"
)

// Kinds lists every Kind.
var Kinds = []Kind{KindSend, KindAdd, KindPasswordChange, KindLogin}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindSend, KindAdd, KindPasswordChange, KindLogin:
		return k, nil
	}
	return "", fmt.Errorf("intent: unknown kind %q", s)
}

// Purpose returns the OTP purpose a challenge for this kind is issued under.
func (k Kind) Purpose() otpdomain.Purpose {
	switch k {
	case KindSend:
		return otpdomain.PurposeTransaction
	case KindAdd:
		return otpdomain.PurposeAddMoney
	case KindPasswordChange:
		return otpdomain.PurposePasswordChange
	case KindLogin:
		return otpdomain.PurposeLogin
	}
	panic(fmt.Sprintf("intent: unhandled kind %q", string(k)))
}

// MovesMoney reports whether the kind carries an amount.
func (k Kind) MovesMoney() bool {
	switch k {
	case KindSend, KindAdd:
		return true
	case KindPasswordChange, KindLogin:
		return false
	}
	panic(fmt.Sprintf("intent: unhandled kind %q", string(k)))
}

// DefaultDescription is used when the caller leaves the description blank.
func (k Kind) DefaultDescription() string {
	switch k {
	case KindSend:
		return "Money transfer"
	case KindAdd:
		return "Balance added"
	case KindPasswordChange:
		return "Password change"
	case KindLogin:
		return "Sign in"
	}
	panic(fmt.Sprintf("intent: unhandled kind %q", string(k)))
}

// Counterparty is the resolved recipient of a SEND.
type Counterparty struct {
	UserID string
	Email  string
	Name   string
}

// Intent is a validated, immutable description of a requested action. Build it with New.
type Intent struct {
	id            string
	kind          Kind
	subjectUserID string
	amount        decimal.Decimal
	counterparty  *Counterparty
	description   string
	accountEmail  string
	newPassword   string
	createdAt     time.Time
}

// Params carries the fields of a new Intent.
type Params struct {
	ID            string
	Kind          Kind
	SubjectUserID string
	Amount        decimal.Decimal
	Counterparty  *Counterparty
	Description   string
	AccountEmail  string
	NewPassword   string
	CreatedAt     time.Time
}

// New returns an Intent holding a copy of p. Validation is the builder's job.
func New(p Params) *Intent {
	var cp *Counterparty
	if p.Counterparty != nil {
		c := *p.Counterparty
		cp = &c
	}
	return &Intent{
		id:            p.ID,
		kind:          p.Kind,
		subjectUserID: p.SubjectUserID,
		amount:        p.Amount,
		counterparty:  cp,
		description:   p.Description,
		accountEmail:  p.AccountEmail,
		newPassword:   p.NewPassword,
		createdAt:     p.CreatedAt,
	}
}

func (i *Intent) ID() string                 { return i.id }
func (i *Intent) Kind() Kind                 { return i.kind }
func (i *Intent) SubjectUserID() string      { return i.subjectUserID }
func (i *Intent) Amount() decimal.Decimal    { return i.amount }
func (i *Intent) Description() string        { return i.description }
func (i *Intent) AccountEmail() string       { return i.accountEmail }
func (i *Intent) NewPassword() string        { return i.newPassword }
func (i *Intent) CreatedAt() time.Time       { return i.createdAt }
func (i *Intent) Purpose() otpdomain.Purpose { return i.kind.Purpose() }

// Counterparty returns a copy of the resolved recipient, or nil for kinds without one.
func (i *Intent) Counterparty() *Counterparty {
	if i.counterparty == nil {
		return nil
	}
	c := *i.counterparty
	return &c
}

// SameParameters reports whether o requests the same action as i, ignoring id and creation time.
func (i *Intent) SameParameters(o *Intent) bool {
	if o == nil {
		return false
	}
	if i.kind != o.kind || i.subjectUserID != o.subjectUserID || !i.amount.Equal(o.amount) ||
		i.description != o.description || i.accountEmail != o.accountEmail || i.newPassword != o.newPassword {
		return false
	}
	switch {
	case i.counterparty == nil && o.counterparty == nil:
		return true
	case i.counterparty == nil || o.counterparty == nil:
		return false
	}
	return i.counterparty.Email == o.counterparty.Email
}

// String never includes the new password.
func (i *Intent) String() string {
	s := fmt.Sprintf("%s %s by %s", i.kind, i.id, i.subjectUserID)
	if i.kind.MovesMoney() {
		s += " amount=" + i.amount.StringFixed(2)
	}
	if i.counterparty != nil {
		s += " to=" + i.counterparty.Email
	}
	return s
}
