// Package policy evaluates per-kind intent limits with OPA Rego.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paywallet/internal/intent/domain"
	"paywallet/internal/logging"
)

const limitsQuery = "data.paywallet.limits"

// Built-in policy: a single ceiling for money-moving kinds and the soft balance check for SEND only.
const defaultRegoPolicy = `package paywallet.limits

default max_amount = 100000
default balance_check = false

max_amount = input.config.max_amount if {
	input.config.max_amount > 0
}

balance_check if {
	input.intent.kind == "SEND"
}
`

// Limits is the outcome of a policy evaluation for one intent.
type Limits struct {
	MaxAmount decimal.Decimal
	// BalanceCheck enables the advisory amount <= cached balance rule.
	BalanceCheck bool
}

// Evaluator evaluates the limits policy. Evaluation errors fall back to the built-in defaults.
type Evaluator struct {
	query     rego.PreparedEvalQuery
	maxAmount decimal.Decimal
	logger    *zap.Logger
}

// NewEvaluator compiles the built-in policy, or the Rego file at policyFile when non-empty.
// maxAmount is exposed to the policy as input.config.max_amount.
func NewEvaluator(ctx context.Context, maxAmount decimal.Decimal, policyFile string, logger *zap.Logger) (*Evaluator, error) {
	src := defaultRegoPolicy
	if policyFile != "" {
		b, err := os.ReadFile(policyFile)
		if err != nil {
			return nil, fmt.Errorf("read limits policy: %w", err)
		}
		src = string(b)
	}
	compiler, err := ast.CompileModules(map[string]string{"limits.rego": src})
	if err != nil {
		return nil, fmt.Errorf("compile limits policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(limitsQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare limits policy: %w", err)
	}
	return &Evaluator{query: pq, maxAmount: maxAmount, logger: logging.OrNop(logger).Named("policy")}, nil
}

// Defaults returns the limits used when the policy cannot be evaluated.
func (e *Evaluator) Defaults(kind domain.Kind) Limits {
	return Limits{MaxAmount: e.maxAmount, BalanceCheck: kind == domain.KindSend}
}

// Evaluate returns the limits for an intent of kind with the given amount.
func (e *Evaluator) Evaluate(ctx context.Context, kind domain.Kind, amount decimal.Decimal) Limits {
	out, err := e.evaluate(ctx, kind, amount)
	if err != nil {
		e.logger.Warn("limits evaluation failed, using defaults", zap.String("kind", string(kind)), zap.Error(err))
		return e.Defaults(kind)
	}
	return out
}

// HealthCheck evaluates the compiled policy against a minimal SEND input.
func (e *Evaluator) HealthCheck(ctx context.Context) error {
	_, err := e.evaluate(ctx, domain.KindSend, decimal.NewFromInt(1))
	return err
}

func (e *Evaluator) evaluate(ctx context.Context, kind domain.Kind, amount decimal.Decimal) (Limits, error) {
	input := map[string]interface{}{
		"intent": map[string]interface{}{
			"kind":   string(kind),
			"amount": amount.InexactFloat64(),
		},
		"config": map[string]interface{}{
			"max_amount": e.maxAmount.InexactFloat64(),
		},
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Limits{}, fmt.Errorf("eval limits policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Limits{}, fmt.Errorf("limits policy returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Limits{}, fmt.Errorf("limits policy returned %T", rs[0].Expressions[0].Value)
	}

	out := e.Defaults(kind)
	if v, ok := doc["max_amount"]; ok {
		d, err := toDecimal(v)
		if err != nil {
			return Limits{}, fmt.Errorf("max_amount: %w", err)
		}
		if d.IsPositive() {
			out.MaxAmount = d
		}
	}
	if v, ok := doc["balance_check"].(bool); ok {
		out.BalanceCheck = v
	}
	return out, nil
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	}
	return decimal.Decimal{}, fmt.Errorf("unexpected type %T", v)
}
