package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, Config{ServiceName: "paywallet-test"}, nil)
	if err != nil {
		t.Fatalf("NewProviders empty endpoint: %v", err)
	}
	if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
		t.Fatal("all providers should be set")
	}
	if err := providers.Shutdown(ctx); err != nil {
		t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
	}
}

func TestNewProviders_WhitespaceEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), Config{Endpoint: "   "}, nil); err != nil {
		t.Fatalf("NewProviders whitespace endpoint: %v", err)
	}
}

func TestNewProviders_InvalidURL(t *testing.T) {
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		if _, err := NewProviders(context.Background(), Config{Endpoint: endpoint}, nil); err == nil {
			t.Errorf("NewProviders(%q) should return error", endpoint)
		}
	}
}

func TestNewProviders_WithEndpoint(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, Config{Endpoint: "localhost:4317", ServiceName: "paywallet-test", ServiceVersion: "dev"}, nil)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	// Exporters dial lazily, so shutdown may fail against a missing collector.
	_ = providers.Shutdown(ctx)
}

func TestSetGlobal(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	p := &Providers{TracerProvider: tp}
	p.SetGlobal()
	if otel.GetTracerProvider() != tp {
		t.Error("global tracer provider not set")
	}
}

func TestParseCollector(t *testing.T) {
	tests := []struct {
		endpoint  string
		insecure  bool
		target    string
		plaintext bool
	}{
		{"localhost:4317", false, "localhost:4317", true},
		{"http://collector:4317/v1", false, "collector:4317", true},
		{"https://collector:4317", false, "collector:4317", false},
		{"https://collector:4317", true, "collector:4317", true},
	}
	for _, tt := range tests {
		got, err := parseCollector(tt.endpoint, tt.insecure)
		if err != nil {
			t.Fatalf("parseCollector(%q): %v", tt.endpoint, err)
		}
		if got.target != tt.target || got.plaintext != tt.plaintext {
			t.Errorf("parseCollector(%q, %t) = %+v, want target %q plaintext %t", tt.endpoint, tt.insecure, got, tt.target, tt.plaintext)
		}
	}
}
