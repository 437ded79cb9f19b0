// Package intent turns raw user input into validated, immutable transaction intents.
// It is the client-side gate before any OTP is spent.
package intent

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paywallet/internal/failure"
	"paywallet/internal/intent/domain"
	"paywallet/internal/intent/policy"
)

// plainAmount accepts digits with an optional fraction. Exponent notation is rejected before
// parsing: decimal comparisons rescale to a common exponent, so "1e99999999" would never finish.
var plainAmount = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// DefaultMaxAmount is the business ceiling used when no limits evaluator is configured.
var DefaultMaxAmount = decimal.NewFromInt(100000)

const (
	maxFractionDigits = 2
	minPasswordLength = 6
)

// RawFields is the unvalidated user input. Fields not used by a kind are ignored.
type RawFields struct {
	// SubjectUserID is the acting principal. For LOGIN it is the email or mobile being signed in.
	SubjectUserID string `validate:"required"`
	Amount        string
	// Recipient is the counterparty email for SEND.
	Recipient   string `validate:"omitempty,email"`
	Description string `validate:"max=140"`
	// AccountEmail is the principal's email, required for PASSWORD_CHANGE.
	AccountEmail string `validate:"omitempty,email"`
	NewPassword  string
}

// Directory resolves a recipient email to a known user. ok is false when no user matches.
type Directory interface {
	ResolveRecipient(ctx context.Context, email string) (cp domain.Counterparty, ok bool, err error)
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(ctx context.Context, email string) (domain.Counterparty, bool, error)

func (f DirectoryFunc) ResolveRecipient(ctx context.Context, email string) (domain.Counterparty, bool, error) {
	return f(ctx, email)
}

// BalanceSource exposes the cached balance for advisory checks only.
type BalanceSource interface {
	CachedBalance(userID string) (decimal.Decimal, bool)
}

// LimitsEvaluator returns the limits that apply to an intent.
type LimitsEvaluator interface {
	Evaluate(ctx context.Context, kind domain.Kind, amount decimal.Decimal) policy.Limits
}

// Builder validates raw input into intents.
type Builder struct {
	directory Directory
	balances  BalanceSource
	limits    LimitsEvaluator
	validate  *validator.Validate
	nowF      func() time.Time
}

// NewBuilder returns a Builder. balances and limits may be nil; without limits the ceiling is
// DefaultMaxAmount and the balance check applies to SEND only.
func NewBuilder(directory Directory, balances BalanceSource, limits LimitsEvaluator) *Builder {
	return &Builder{
		directory: directory,
		balances:  balances,
		limits:    limits,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Build validates raw for kind and returns a new Intent, or a failure.ErrValidation error
// (failure.ErrUnknownRecipient when a SEND recipient does not resolve).
func (b *Builder) Build(ctx context.Context, kind domain.Kind, raw RawFields) (*domain.Intent, error) {
	raw = trimFields(raw)
	if _, err := domain.ParseKind(string(kind)); err != nil {
		return nil, failure.Invalid("kind", "Unknown action %q", string(kind))
	}
	if err := b.validate.Struct(raw); err != nil {
		return nil, fieldError(err)
	}

	p := domain.Params{
		ID:            uuid.New().String(),
		Kind:          kind,
		SubjectUserID: raw.SubjectUserID,
		Description:   raw.Description,
		CreatedAt:     b.nowF(),
	}
	if p.Description == "" {
		p.Description = kind.DefaultDescription()
	}

	switch kind {
	case domain.KindSend:
		amount, err := b.amount(ctx, kind, raw)
		if err != nil {
			return nil, err
		}
		cp, err := b.recipient(ctx, raw)
		if err != nil {
			return nil, err
		}
		p.Amount = amount
		p.Counterparty = &cp
	case domain.KindAdd:
		amount, err := b.amount(ctx, kind, raw)
		if err != nil {
			return nil, err
		}
		p.Amount = amount
	case domain.KindPasswordChange:
		if raw.AccountEmail == "" {
			return nil, failure.Invalid("email", "Please enter a valid email address")
		}
		if len(raw.NewPassword) < minPasswordLength {
			return nil, failure.Invalid("newPassword", "Password must be at least %d characters", minPasswordLength)
		}
		p.AccountEmail = raw.AccountEmail
		p.NewPassword = raw.NewPassword
	case domain.KindLogin:
		p.AccountEmail = raw.SubjectUserID
	}
	return domain.New(p), nil
}

func (b *Builder) amount(ctx context.Context, kind domain.Kind, raw RawFields) (decimal.Decimal, error) {
	if raw.Amount == "" {
		return decimal.Decimal{}, failure.Invalid("amount", "Amount must be greater than 0")
	}
	if !plainAmount.MatchString(raw.Amount) {
		return decimal.Decimal{}, failure.Invalid("amount", "Please enter a valid amount")
	}
	whole, frac, _ := strings.Cut(raw.Amount, ".")
	frac = strings.TrimRight(frac, "0")
	if len(frac) > maxFractionDigits {
		return decimal.Decimal{}, failure.Invalid("amount", "Amount can have at most %d decimal places", maxFractionDigits)
	}
	text := whole
	if frac != "" {
		text += "." + frac
	}
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, failure.Invalid("amount", "Please enter a valid amount")
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, failure.Invalid("amount", "Amount must be greater than 0")
	}

	limits := policy.Limits{MaxAmount: DefaultMaxAmount, BalanceCheck: kind == domain.KindSend}
	if b.limits != nil {
		limits = b.limits.Evaluate(ctx, kind, amount)
	}
	if amount.GreaterThan(limits.MaxAmount) {
		return decimal.Decimal{}, failure.Invalid("amount", "Amount cannot exceed %s", limits.MaxAmount.String())
	}
	if limits.BalanceCheck && b.balances != nil {
		if balance, ok := b.balances.CachedBalance(raw.SubjectUserID); ok && amount.GreaterThan(balance) {
			return decimal.Decimal{}, failure.Invalid("amount", "Insufficient balance")
		}
	}
	return amount, nil
}

func (b *Builder) recipient(ctx context.Context, raw RawFields) (domain.Counterparty, error) {
	if raw.Recipient == "" {
		return domain.Counterparty{}, failure.Invalid("recipient", "Please select a recipient")
	}
	if b.directory == nil {
		return domain.Counterparty{}, failure.New(failure.ErrUnknownRecipient, "Recipient %s is not a registered user", raw.Recipient)
	}
	cp, ok, err := b.directory.ResolveRecipient(ctx, raw.Recipient)
	if err != nil {
		return domain.Counterparty{}, failure.Wrap(failure.ErrUnknownRecipient, err, "Could not verify recipient %s", raw.Recipient)
	}
	if !ok {
		e := failure.New(failure.ErrUnknownRecipient, "Recipient %s is not a registered user", raw.Recipient)
		e.Field = "recipient"
		return domain.Counterparty{}, e
	}
	if cp.UserID != "" && cp.UserID == raw.SubjectUserID {
		return domain.Counterparty{}, failure.Invalid("recipient", "You cannot send money to yourself")
	}
	return cp, nil
}

func trimFields(raw RawFields) RawFields {
	raw.SubjectUserID = strings.TrimSpace(raw.SubjectUserID)
	raw.Amount = strings.TrimSpace(raw.Amount)
	raw.Recipient = strings.ToLower(strings.TrimSpace(raw.Recipient))
	raw.Description = strings.TrimSpace(raw.Description)
	raw.AccountEmail = strings.ToLower(strings.TrimSpace(raw.AccountEmail))
	return raw
}

var fieldNames = map[string]string{
	"SubjectUserID": "subjectUserId",
	"Recipient":     "recipient",
	"Description":   "description",
	"AccountEmail":  "email",
}

func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return failure.Wrap(failure.ErrValidation, err, "Invalid input")
	}
	fe := verrs[0]
	field := fieldNames[fe.Field()]
	switch fe.Tag() {
	case "required":
		return failure.Invalid(field, "%s is required", field)
	case "email":
		return failure.Invalid(field, "Please enter a valid email address")
	case "max":
		return failure.Invalid(field, "%s must be at most %s characters", field, fe.Param())
	}
	return failure.Invalid(field, "%s is invalid", field)
}
