package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.ServiceName != "callrelay" {
		t.Errorf("expected service name 'callrelay', got '%s'", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestTraceWebSocketMessage(t *testing.T) {
	ctx, span := TraceWebSocketMessage(context.Background(), "offer", "conn-1")
	if span == nil {
		t.Fatal("expected non-nil span")
	}
	defer span.End()

	AddSpanAttributes(ctx, RecipientsKey.Int(2), attribute.String("test.key", "value"))
	RecordError(ctx, errors.New("relay failed"))
}

func TestTraceHTTPRequest(t *testing.T) {
	_, span := TraceHTTPRequest(context.Background(), "GET", "/health")
	if span == nil {
		t.Fatal("expected non-nil span")
	}
	span.End()
}
