package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"paywallet/internal/telemetry"
	"paywallet/internal/telemetry/domain"
)

// instrumentationName scopes every tracer, meter and logger created by this package.
const instrumentationName = "paywallet"

// RecordEmitter is the subset of otellog.Logger used by the event emitter.
type RecordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(instrumentationName + ".results")}
}

// NewEventEmitterWithLogger is NewEventEmitter over an arbitrary record sink.
func NewEventEmitterWithLogger(logger RecordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type otelEmitter struct {
	logger RecordEmitter
}

// Emit converts the event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	switch {
	case len(event.Metadata) > 0:
		rec.SetBody(otellog.BytesValue(event.Metadata))
	case event.Message != "":
		rec.SetBody(otellog.StringValue(event.Message))
	}
	rec.SetSeverity(severityOf(event.EventType))
	for _, kv := range []struct{ k, v string }{
		{"event_id", event.ID},
		{"user_id", event.UserID},
		{"attempt_id", event.AttemptID},
		{"event_type", event.EventType},
		{"source", event.Source},
	} {
		if kv.v != "" {
			rec.AddAttributes(otellog.String(kv.k, kv.v))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func severityOf(eventType string) otellog.Severity {
	switch eventType {
	case "result.error":
		return otellog.SeverityError
	case "result.warning":
		return otellog.SeverityWarn
	default:
		return otellog.SeverityInfo
	}
}
