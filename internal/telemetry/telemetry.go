// Package telemetry wires the OpenTelemetry SDK behind the global
// delegating providers that every other package already registers its
// tracer and meter against at init time (internal/loss, internal/oracle,
// internal/datum/doltlog all call otel.Tracer/otel.Meter package-level,
// following the teacher's internal/storage/dolt/store.go pattern). Until
// Init runs those calls resolve to OTel's no-op implementation; nothing
// elsewhere needs to change when telemetry is turned on or off.
//
// The provider construction itself (resource, batched exporter, sampler)
// is grounded on the SAGE-ADK example's observability/tracing package,
// adapted from its Jaeger exporter to the stdout exporters already
// vendored for this module (go.opentelemetry.io/otel/exporters/stdout/...),
// since no collector endpoint is part of this system's scope.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config controls telemetry emission. The zero value disables tracing
// and metrics entirely; Init still succeeds and returns a no-op shutdown.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	SamplingRatio  float64 // 0.0-1.0; ignored unless Enabled

	// Writer receives the stdout-exported spans and metrics. Defaults to
	// io.Discard when nil, so Enabled can be turned on in tests without
	// spamming output.
	Writer io.Writer
}

// DefaultConfig returns a disabled configuration; callers set Enabled
// before calling Init.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "dual-track-substrate",
		ServiceVersion: "0.1.0",
		Enabled:        false,
		SamplingRatio:  1.0,
	}
}

// Init installs the OTel SDK's tracer and meter providers as the global
// providers so every package-level otel.Tracer/otel.Meter call elsewhere
// starts forwarding. The returned shutdown func flushes and releases
// both providers; callers should defer it from main.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	writer := cfg.Writer
	if writer == nil {
		writer = io.Discard
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(writer))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRatio)),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(writer))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExp)),
	)
	otel.SetMeterProvider(mp)

	return func(shutdownCtx context.Context) error {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("telemetry: tracer shutdown: %w", err)
		}
		if err := mp.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("telemetry: meter shutdown: %w", err)
		}
		return nil
	}, nil
}
