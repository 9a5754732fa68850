package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zero-day-ai/provgraph/cmd/provxform"

// telemetry owns the tracer and meter providers of one CLI invocation.
type telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader
}

// newTelemetry builds the providers. With traceOut set, spans are exported
// to it as JSON; otherwise they are recorded and dropped.
func newTelemetry(traceOut io.Writer) (*telemetry, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", "provxform"),
	)

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if traceOut != nil {
		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(traceOut),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		// Synchronous export keeps short CLI runs from losing spans.
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}

	reader := sdkmetric.NewManualReader()
	return &telemetry{
		tracerProvider: sdktrace.NewTracerProvider(opts...),
		meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)),
		reader:         reader,
	}, nil
}

func (t *telemetry) tracer() trace.Tracer {
	return t.tracerProvider.Tracer(instrumentationName)
}

func (t *telemetry) meter() metric.Meter {
	return t.meterProvider.Meter(instrumentationName)
}

// report logs every int64 counter data point collected so far.
func (t *telemetry) report(ctx context.Context, logger *slog.Logger) error {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				args := []any{"metric", m.Name, "value", dp.Value}
				for _, kv := range dp.Attributes.ToSlice() {
					args = append(args, string(kv.Key), kv.Value.Emit())
				}
				logger.InfoContext(ctx, "operator metric", args...)
			}
		}
	}
	return nil
}

func (t *telemetry) shutdown(ctx context.Context) error {
	return errors.Join(
		t.tracerProvider.Shutdown(ctx),
		t.meterProvider.Shutdown(ctx),
	)
}
