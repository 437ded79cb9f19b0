package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instruments are the tracer and counters recorded by the authorization flow and reconciliation.
type Instruments struct {
	tracer        trace.Tracer
	transitions   otelmetric.Int64Counter
	verifications otelmetric.Int64Counter
	stale         otelmetric.Int64Counter
	mismatches    otelmetric.Int64Counter
}

// NewInstruments creates the wallet instruments from the given providers.
func NewInstruments(tp trace.TracerProvider, mp otelmetric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(instrumentationName)
	transitions, err := meter.Int64Counter("paywallet.attempt.transitions",
		otelmetric.WithDescription("Authorization attempt state transitions"))
	if err != nil {
		return nil, err
	}
	verifications, err := meter.Int64Counter("paywallet.otp.verifications",
		otelmetric.WithDescription("OTP verification outcomes"))
	if err != nil {
		return nil, err
	}
	stale, err := meter.Int64Counter("paywallet.reconcile.stale",
		otelmetric.WithDescription("Reconciliations served from the cached snapshot"))
	if err != nil {
		return nil, err
	}
	mismatches, err := meter.Int64Counter("paywallet.reconcile.mismatches",
		otelmetric.WithDescription("Authoritative balances differing from the optimistic expectation"))
	if err != nil {
		return nil, err
	}
	return &Instruments{
		tracer:        tp.Tracer(instrumentationName),
		transitions:   transitions,
		verifications: verifications,
		stale:         stale,
		mismatches:    mismatches,
	}, nil
}

// Tracer returns the wallet tracer.
func (i *Instruments) Tracer() trace.Tracer { return i.tracer }

// Transition counts one attempt state change.
func (i *Instruments) Transition(ctx context.Context, kind, from, to string) {
	i.transitions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// Verification counts one OTP verify outcome (verified, mismatch, expired, not_found).
func (i *Instruments) Verification(ctx context.Context, result string) {
	i.verifications.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("result", result)))
}

// StaleFallback counts a reconciliation that fell back to the cached snapshot.
func (i *Instruments) StaleFallback(ctx context.Context) { i.stale.Add(ctx, 1) }

// BalanceMismatch counts an optimistic-vs-authoritative balance difference.
func (i *Instruments) BalanceMismatch(ctx context.Context) { i.mismatches.Add(ctx, 1) }
