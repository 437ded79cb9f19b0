package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"paywallet/internal/intent/domain"
)

func TestEvaluate_Defaults(t *testing.T) {
	ctx := context.Background()
	e, err := NewEvaluator(ctx, decimal.NewFromInt(100000), "", nil)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if err := e.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	send := e.Evaluate(ctx, domain.KindSend, decimal.NewFromInt(500))
	if !send.MaxAmount.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("SEND MaxAmount = %s, want 100000", send.MaxAmount)
	}
	if !send.BalanceCheck {
		t.Error("SEND should apply the balance check")
	}

	add := e.Evaluate(ctx, domain.KindAdd, decimal.NewFromInt(500))
	if add.BalanceCheck {
		t.Error("ADD should not apply the balance check")
	}
}

func TestEvaluate_ConfiguredCeiling(t *testing.T) {
	ctx := context.Background()
	e, err := NewEvaluator(ctx, decimal.NewFromInt(2500), "", nil)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	got := e.Evaluate(ctx, domain.KindAdd, decimal.NewFromInt(1))
	if !got.MaxAmount.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("MaxAmount = %s, want 2500", got.MaxAmount)
	}
}

func TestEvaluate_CustomPolicyFile(t *testing.T) {
	ctx := context.Background()
	src := `package paywallet.limits

default max_amount = 100000
default balance_check = true

max_amount = 1000 if {
	input.intent.kind == "ADD"
}
`
	path := filepath.Join(t.TempDir(), "limits.rego")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	e, err := NewEvaluator(ctx, decimal.NewFromInt(100000), path, nil)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	add := e.Evaluate(ctx, domain.KindAdd, decimal.NewFromInt(10))
	if !add.MaxAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("ADD MaxAmount = %s, want 1000", add.MaxAmount)
	}
	if !add.BalanceCheck {
		t.Error("custom policy enables the balance check for every kind")
	}
	send := e.Evaluate(ctx, domain.KindSend, decimal.NewFromInt(10))
	if !send.MaxAmount.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("SEND MaxAmount = %s, want 100000", send.MaxAmount)
	}
}

func TestNewEvaluator_InvalidPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rego")
	if err := os.WriteFile(path, []byte("package paywallet.limits\n\nmax_amount = {"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	if _, err := NewEvaluator(context.Background(), decimal.NewFromInt(1), path, nil); err == nil {
		t.Error("NewEvaluator should fail on a policy that does not compile")
	}
	if _, err := NewEvaluator(context.Background(), decimal.NewFromInt(1), filepath.Join(t.TempDir(), "missing.rego"), nil); err == nil {
		t.Error("NewEvaluator should fail on a missing policy file")
	}
}

func TestToDecimal(t *testing.T) {
	for _, v := range []interface{}{float64(12), int64(12), 12} {
		d, err := toDecimal(v)
		if err != nil || !d.Equal(decimal.NewFromInt(12)) {
			t.Errorf("toDecimal(%T) = %s, %v", v, d, err)
		}
	}
	if _, err := toDecimal("12"); err == nil {
		t.Error("toDecimal(string) should fail")
	}
}
