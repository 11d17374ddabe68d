// Package observability wires the daemon's RED metrics (rate, errors,
// duration) and span tracking through OpenTelemetry's SDK. Providers are
// constructed in-process with no OTLP exporter: the daemon runs as a
// single stdio connection per process, not a fleet behind a collector,
// so the SDK's own aggregation is the consumer of record for now.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the Provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// DefaultConfig returns the daemon's defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "requiemd",
		ServiceVersion: "0.1.0",
		Environment:    "development",
	}
}

// Provider holds the tracer, meter, and RED instruments for one process.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	callCounter  metric.Int64Counter
	errorCounter metric.Int64Counter
	durationHist metric.Float64Histogram
	activeCalls  metric.Int64UpDownCounter
}

// New builds a Provider and installs it as the process-global tracer
// and meter provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	logger := slog.Default().With("component", "observability")

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	p := &Provider{
		config:         cfg,
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         otel.Tracer("requiem.core"),
		meter:          otel.Meter("requiem.core"),
		logger:         logger,
	}

	if err := p.initREDMetrics(); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "observability initialized",
		"service", cfg.ServiceName, "environment", cfg.Environment)
	return p, nil
}

func (p *Provider) initREDMetrics() error {
	var err error
	if p.callCounter, err = p.meter.Int64Counter("requiem.tool_calls.total",
		metric.WithDescription("Total number of tool invocations dispatched through the gate"),
		metric.WithUnit("{call}"),
	); err != nil {
		return err
	}
	if p.errorCounter, err = p.meter.Int64Counter("requiem.tool_call_errors.total",
		metric.WithDescription("Total number of tool invocations that returned an error"),
		metric.WithUnit("{error}"),
	); err != nil {
		return err
	}
	if p.durationHist, err = p.meter.Float64Histogram("requiem.tool_call.duration",
		metric.WithDescription("Tool invocation duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return err
	}
	if p.activeCalls, err = p.meter.Int64UpDownCounter("requiem.tool_calls.active",
		metric.WithDescription("Number of tool invocations currently in flight"),
		metric.WithUnit("{call}"),
	); err != nil {
		return err
	}
	return nil
}

// Shutdown flushes and stops both providers. Safe to call on a Provider
// built with New even if no exporter was ever attached.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "tracer provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "meter provider shutdown failed", "error", err)
		}
	}
	return nil
}

// TrackToolCall starts a span and the RED instruments for a single
// name@version invocation, returning a function to call with the
// invocation's outcome once it completes.
func (p *Provider) TrackToolCall(ctx context.Context, toolName, version string) (context.Context, func(err error)) {
	attrs := []attribute.KeyValue{
		attribute.String("tool.name", toolName),
		attribute.String("tool.version", version),
	}
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "tool_call", trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))

	p.activeCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.callCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	return ctx, func(err error) {
		p.activeCalls.Add(ctx, -1, metric.WithAttributes(attrs...))
		p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		if err != nil {
			span.RecordError(err)
			p.errorCounter.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.kind", fmt.Sprintf("%T", err)))...))
		}
		span.End()
	}
}
