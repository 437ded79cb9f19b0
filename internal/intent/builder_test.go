package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"paywallet/internal/failure"
	"paywallet/internal/intent/domain"
	"paywallet/internal/intent/policy"
)

type fakeDirectory struct {
	users map[string]domain.Counterparty
	err   error
	calls int
}

func (d *fakeDirectory) ResolveRecipient(ctx context.Context, email string) (domain.Counterparty, bool, error) {
	d.calls++
	if d.err != nil {
		return domain.Counterparty{}, false, d.err
	}
	cp, ok := d.users[email]
	return cp, ok, nil
}

type fixedBalance map[string]decimal.Decimal

func (f fixedBalance) CachedBalance(userID string) (decimal.Decimal, bool) {
	b, ok := f[userID]
	return b, ok
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{users: map[string]domain.Counterparty{
		"bob@example.com": {UserID: "u2", Email: "bob@example.com", Name: "Bob Builder"},
		"me@example.com":  {UserID: "u1", Email: "me@example.com", Name: "Me"},
	}}
}

func TestBuild_ValidAmounts(t *testing.T) {
	b := NewBuilder(newDirectory(), nil, nil)
	for _, a := range []string{"0.01", "1", "500", "99999.99", "100000", "100000.00", " 42.5 ", "1.500", "007"} {
		in, err := b.Build(context.Background(), domain.KindAdd, RawFields{SubjectUserID: "u1", Amount: a})
		if err != nil {
			t.Errorf("Build(amount=%q): %v", a, err)
			continue
		}
		if !in.Amount().IsPositive() {
			t.Errorf("Build(amount=%q) amount = %s", a, in.Amount())
		}
	}
}

func TestBuild_InvalidAmounts(t *testing.T) {
	dir := newDirectory()
	b := NewBuilder(dir, nil, nil)
	for _, a := range []string{"", "0", "0.00", "-1", "-0.01", "100000.01", "150000", "abc", "1.005", "1e3x",
		"1e3", "1E5", "1e99999999", "1e-99999999", "0.5e1", "1.", ".5", "+5", "1_000"} {
		_, err := b.Build(context.Background(), domain.KindSend, RawFields{SubjectUserID: "u1", Amount: a, Recipient: "bob@example.com"})
		if !errors.Is(err, failure.ErrValidation) {
			t.Errorf("Build(amount=%q) = %v, want ErrValidation", a, err)
			continue
		}
		var fe *failure.Error
		if errors.As(err, &fe) && fe.Field != "amount" {
			t.Errorf("Build(amount=%q) field = %q, want amount", a, fe.Field)
		}
	}
	if dir.calls != 0 {
		t.Errorf("directory calls = %d, want 0 when the amount is invalid", dir.calls)
	}
}

func TestBuild_SendResolvesRecipient(t *testing.T) {
	b := NewBuilder(newDirectory(), nil, nil)
	in, err := b.Build(context.Background(), domain.KindSend, RawFields{SubjectUserID: "u1", Amount: "500", Recipient: " Bob@Example.com "})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cp := in.Counterparty()
	if cp == nil || cp.UserID != "u2" || cp.Name != "Bob Builder" {
		t.Fatalf("Counterparty = %+v", cp)
	}
	if in.Description() != "Money transfer" {
		t.Errorf("Description = %q, want default", in.Description())
	}
	if in.ID() == "" || in.CreatedAt().IsZero() {
		t.Error("ID and CreatedAt must be set")
	}
	if in.Purpose() != "TRANSACTION" {
		t.Errorf("Purpose = %q", in.Purpose())
	}
}

func TestBuild_UnknownRecipient(t *testing.T) {
	b := NewBuilder(newDirectory(), nil, nil)
	_, err := b.Build(context.Background(), domain.KindSend, RawFields{SubjectUserID: "u1", Amount: "5", Recipient: "nobody@example.com"})
	if !errors.Is(err, failure.ErrUnknownRecipient) {
		t.Fatalf("err = %v, want ErrUnknownRecipient", err)
	}
	if !errors.Is(err, failure.ErrValidation) {
		t.Error("unknown recipient is a validation error")
	}
}

func TestBuild_DirectoryFailureIsUnknownRecipient(t *testing.T) {
	dir := newDirectory()
	dir.err = errors.New("directory unavailable")
	_, err := NewBuilder(dir, nil, nil).Build(context.Background(), domain.KindSend, RawFields{SubjectUserID: "u1", Amount: "5", Recipient: "bob@example.com"})
	if !errors.Is(err, failure.ErrUnknownRecipient) {
		t.Fatalf("err = %v, want ErrUnknownRecipient", err)
	}
}

func TestBuild_SendToSelf(t *testing.T) {
	_, err := NewBuilder(newDirectory(), nil, nil).Build(context.Background(), domain.KindSend, RawFields{SubjectUserID: "u1", Amount: "5", Recipient: "me@example.com"})
	if !errors.Is(err, failure.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestBuild_RecipientFormat(t *testing.T) {
	b := NewBuilder(newDirectory(), nil, nil)
	for _, r := range []string{"", "not-an-email"} {
		_, err := b.Build(context.Background(), domain.KindSend, RawFields{SubjectUserID: "u1", Amount: "5", Recipient: r})
		if !errors.Is(err, failure.ErrValidation) || errors.Is(err, failure.ErrUnknownRecipient) {
			t.Errorf("recipient %q: err = %v, want plain ErrValidation", r, err)
		}
	}
}

func TestBuild_SoftBalanceCheck(t *testing.T) {
	b := NewBuilder(newDirectory(), fixedBalance{"u1": decimal.NewFromInt(100)}, nil)
	ctx := context.Background()

	if _, err := b.Build(ctx, domain.KindSend, RawFields{SubjectUserID: "u1", Amount: "100", Recipient: "bob@example.com"}); err != nil {
		t.Errorf("amount == balance: %v", err)
	}
	_, err := b.Build(ctx, domain.KindSend, RawFields{SubjectUserID: "u1", Amount: "100.01", Recipient: "bob@example.com"})
	if !errors.Is(err, failure.ErrValidation) || failure.Message(err) != "Insufficient balance" {
		t.Errorf("amount > balance: %v", err)
	}
	if _, err := b.Build(ctx, domain.KindAdd, RawFields{SubjectUserID: "u1", Amount: "5000"}); err != nil {
		t.Errorf("ADD ignores the balance: %v", err)
	}
	if _, err := b.Build(ctx, domain.KindSend, RawFields{SubjectUserID: "u9", Amount: "5000", Recipient: "bob@example.com"}); err != nil {
		t.Errorf("no cached balance means no check: %v", err)
	}
}

type ceiling decimal.Decimal

func (c ceiling) Evaluate(ctx context.Context, kind domain.Kind, amount decimal.Decimal) policy.Limits {
	return policy.Limits{MaxAmount: decimal.Decimal(c)}
}

func TestBuild_LimitsEvaluator(t *testing.T) {
	b := NewBuilder(newDirectory(), nil, ceiling(decimal.NewFromInt(50)))
	if _, err := b.Build(context.Background(), domain.KindAdd, RawFields{SubjectUserID: "u1", Amount: "50"}); err != nil {
		t.Errorf("at ceiling: %v", err)
	}
	_, err := b.Build(context.Background(), domain.KindAdd, RawFields{SubjectUserID: "u1", Amount: "50.01"})
	if !errors.Is(err, failure.ErrValidation) || failure.Message(err) != "Amount cannot exceed 50" {
		t.Errorf("over ceiling: %v", err)
	}
}

func TestBuild_OPALimits(t *testing.T) {
	ctx := context.Background()
	e, err := policy.NewEvaluator(ctx, decimal.NewFromInt(100000), "", nil)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	b := NewBuilder(newDirectory(), fixedBalance{"u1": decimal.NewFromInt(10)}, e)
	if _, err := b.Build(ctx, domain.KindAdd, RawFields{SubjectUserID: "u1", Amount: "150000"}); !errors.Is(err, failure.ErrValidation) {
		t.Errorf("150000: err = %v, want ErrValidation", err)
	}
	if _, err := b.Build(ctx, domain.KindSend, RawFields{SubjectUserID: "u1", Amount: "11", Recipient: "bob@example.com"}); !errors.Is(err, failure.ErrValidation) {
		t.Errorf("SEND over balance: err = %v, want ErrValidation", err)
	}
}

func TestBuild_Descriptions(t *testing.T) {
	b := NewBuilder(newDirectory(), nil, nil)
	in, err := b.Build(context.Background(), domain.KindAdd, RawFields{SubjectUserID: "u1", Amount: "5", Description: "  "})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if in.Description() != "Balance added" {
		t.Errorf("Description = %q, want Balance added", in.Description())
	}
	in, _ = b.Build(context.Background(), domain.KindAdd, RawFields{SubjectUserID: "u1", Amount: "5", Description: "Salary"})
	if in.Description() != "Salary" {
		t.Errorf("Description = %q, want Salary", in.Description())
	}
	long := make([]byte, 141)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := b.Build(context.Background(), domain.KindAdd, RawFields{SubjectUserID: "u1", Amount: "5", Description: string(long)}); !errors.Is(err, failure.ErrValidation) {
		t.Errorf("long description: %v", err)
	}
}

func TestBuild_PasswordChange(t *testing.T) {
	b := NewBuilder(nil, nil, nil)
	ctx := context.Background()
	in, err := b.Build(ctx, domain.KindPasswordChange, RawFields{SubjectUserID: "u1", AccountEmail: "Me@Example.com", NewPassword: "secret1"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if in.AccountEmail() != "me@example.com" || in.NewPassword() != "secret1" {
		t.Errorf("intent = %v", in)
	}
	if !in.Amount().IsZero() || in.Counterparty() != nil {
		t.Error("password change carries no amount or counterparty")
	}
	if _, err := b.Build(ctx, domain.KindPasswordChange, RawFields{SubjectUserID: "u1", AccountEmail: "me@example.com", NewPassword: "12345"}); !errors.Is(err, failure.ErrValidation) {
		t.Errorf("short password: %v", err)
	}
	if _, err := b.Build(ctx, domain.KindPasswordChange, RawFields{SubjectUserID: "u1", NewPassword: "secret1"}); !errors.Is(err, failure.ErrValidation) {
		t.Errorf("missing email: %v", err)
	}
}

func TestBuild_LoginAndMissingSubject(t *testing.T) {
	b := NewBuilder(nil, nil, nil)
	in, err := b.Build(context.Background(), domain.KindLogin, RawFields{SubjectUserID: "me@example.com"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if in.Purpose() != "LOGIN" || in.AccountEmail() != "me@example.com" {
		t.Errorf("intent = %v", in)
	}
	_, err = b.Build(context.Background(), domain.KindLogin, RawFields{})
	var fe *failure.Error
	if !errors.As(err, &fe) || fe.Field != "subjectUserId" {
		t.Errorf("missing subject: %v", err)
	}
	if _, err := b.Build(context.Background(), domain.Kind("REFUND"), RawFields{SubjectUserID: "u1"}); !errors.Is(err, failure.ErrValidation) {
		t.Errorf("unknown kind: %v", err)
	}
}
