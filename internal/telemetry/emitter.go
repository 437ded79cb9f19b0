package telemetry

import (
	"context"

	"paywallet/internal/telemetry/domain"
)

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event *domain.Event) error

func (f EmitterFunc) Emit(ctx context.Context, event *domain.Event) error { return f(ctx, event) }
