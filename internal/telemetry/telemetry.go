// Package telemetry wires the optional OpenTelemetry tracer for the
// webhook pipeline, grounded on intelligencedev-manifold's
// internal/telemetry/otel.go Setup pattern (OTLP exporter + resource +
// batch span processor, disabled when no endpoint is configured).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/anna0613/linebot-control-plane/internal/config"
)

// Setup initializes the global TracerProvider when telemetry is enabled
// and returns a shutdown func that must be deferred by the caller. A
// disabled or unconfigured telemetry section is a valid no-op, not an
// error — tracing is an optional ambient concern, never a webhook-path
// dependency (spec §5 "non-goals").
func Setup(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled || cfg.OTLPEndpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "linebot-control-plane"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the webhook pipeline's tracer. Safe to call even when
// Setup was never invoked (falls back to a no-op tracer).
func Tracer() trace.Tracer {
	return otel.Tracer("linebot-control-plane/orchestrator")
}
