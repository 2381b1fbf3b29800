package telemetry

import (
	"context"
	"testing"

	"github.com/anna0613/linebot-control-plane/internal/config"
)

func TestSetupDisabledReturnsNoOpShutdown(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Setup(disabled): %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown should not error, got %v", err)
	}
}

func TestSetupEnabledWithoutEndpointReturnsNoOpShutdown(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true, OTLPEndpoint: ""})
	if err != nil {
		t.Fatalf("Setup(no endpoint): %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown should not error, got %v", err)
	}
}

func TestTracerReturnsUsableTracerWithoutSetup(t *testing.T) {
	tr := Tracer()
	_, span := tr.Start(context.Background(), "test-span")
	defer span.End()
	if span == nil {
		t.Fatal("expected a non-nil span from the fallback no-op tracer")
	}
}
