package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the global OpenTelemetry SDK.
type ProviderConfig struct {
	// ServiceName reported in telemetry. Default: "hark".
	ServiceName string

	// ServiceVersion reported in telemetry, normally the build version
	// stamped into main.
	ServiceVersion string

	// TraceExporter receives finished spans. When nil, pipeline spans
	// (utterance capture, transcription, model exchanges) are still
	// recorded for correlation IDs but never leave the process. An OTLP
	// exporter slots in here when a collector is available.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider installs the global meter and tracer providers.
//
// Metrics always flow through a Prometheus reader; the metrics listener
// serves them on /metrics. Tracing export is optional per
// [ProviderConfig.TraceExporter].
//
// The returned shutdown function flushes both providers; defer it from
// main with a short timeout.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "hark"
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	reader, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return shutdown, nil
}

// newResource describes this process to telemetry backends.
func newResource(cfg ProviderConfig) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}
