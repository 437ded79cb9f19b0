package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := New(ErrRemoteRejected, "Insufficient balance")
	if !errors.Is(err, ErrRemoteRejected) {
		t.Error("errors.Is(err, ErrRemoteRejected) = false, want true")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("remote rejection should not match ErrValidation")
	}
}

func TestIs_CodeNarrowsMatch(t *testing.T) {
	unknown := New(ErrUnknownRecipient, "no user with email %s", "x@example.com")
	if !errors.Is(unknown, ErrValidation) {
		t.Error("unknown recipient should also match the validation kind")
	}
	if !errors.Is(unknown, ErrUnknownRecipient) {
		t.Error("unknown recipient should match its own sentinel")
	}
	plain := Invalid("amount", "Amount must be greater than 0")
	if errors.Is(plain, ErrUnknownRecipient) {
		t.Error("a plain validation error must not match ErrUnknownRecipient")
	}
}

func TestWrap_KeepsCauseAndMatchesThroughFmt(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("commit: %w", Wrap(ErrRemoteRejected, cause, "ledger unavailable"))
	if !errors.Is(err, ErrRemoteRejected) {
		t.Error("wrapped error should match ErrRemoteRejected")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if got := KindOf(err); got != KindRemoteRejected {
		t.Errorf("KindOf = %q, want %q", got, KindRemoteRejected)
	}
	if got := Message(err); got != "ledger unavailable" {
		t.Errorf("Message = %q, want %q", got, "ledger unavailable")
	}
}

func TestError_FieldPrefix(t *testing.T) {
	err := Invalid("amount", "Amount cannot exceed 100000")
	if got := err.Error(); got != "amount: Amount cannot exceed 100000" {
		t.Errorf("Error() = %q", got)
	}
	if got := ErrCooldownActive.Error(); got != "cooldown_active" {
		t.Errorf("sentinel Error() = %q", got)
	}
}

func TestRecoverable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{New(ErrMismatch, "Invalid OTP"), true},
		{New(ErrCooldownActive, "wait"), true},
		{New(ErrDelivery, "sms down"), true},
		{New(ErrExpired, "expired"), false},
		{New(ErrNotFound, "no challenge"), false},
		{New(ErrRemoteRejected, "Insufficient balance"), false},
		{errors.New("raw"), false},
	}
	for _, c := range cases {
		if got := Recoverable(c.err); got != c.want {
			t.Errorf("Recoverable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
