// Package observe provides application-wide observability primitives for
// hark: OpenTelemetry metrics, tracing, structured logging helpers, and HTTP
// middleware for the metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hark metrics.
const meterName = "github.com/harkvoice/hark"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// UtteranceDuration tracks the audio length of closed utterances.
	UtteranceDuration metric.Float64Histogram

	// TranscriptionDuration tracks final-transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// FirstTokenLatency tracks time from submission to the first streamed
	// model token.
	FirstTokenLatency metric.Float64Histogram

	// HTTPRequestDuration tracks metrics/health endpoint latency. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// PreviewsDropped counts preview transcripts displaced before delivery.
	// Previews are lossy by contract; this measures how lossy.
	PreviewsDropped metric.Int64Counter

	// Finals counts final transcriptions by status ("ok" or "error").
	Finals metric.Int64Counter

	// BargeIns counts playback interruptions by overlapping user speech.
	BargeIns metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks in-flight model exchanges (0 or 1 in normal
	// operation; the instrument exists to catch leaks).
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.UtteranceDuration, err = m.Float64Histogram("hark.utterance.duration",
		metric.WithDescription("Audio length of closed utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("hark.transcription.duration",
		metric.WithDescription("Latency of final transcription requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FirstTokenLatency, err = m.Float64Histogram("hark.llm.first_token",
		metric.WithDescription("Time from submission to first streamed token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("hark.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.PreviewsDropped, err = m.Int64Counter("hark.previews.dropped",
		metric.WithDescription("Preview transcripts displaced before delivery."),
	); err != nil {
		return nil, err
	}
	if met.Finals, err = m.Int64Counter("hark.finals",
		metric.WithDescription("Final transcriptions by status."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("hark.bargeins",
		metric.WithDescription("Playback interruptions by overlapping speech."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("hark.active_sessions",
		metric.WithDescription("In-flight model exchanges."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// The methods below satisfy the per-package Metrics interfaces of
// transcribe, session, and crosstalk, so one *Metrics wires the whole
// pipeline.

// UtteranceClosed records the audio length of a finished utterance.
func (m *Metrics) UtteranceClosed(ctx context.Context, dur time.Duration) {
	m.UtteranceDuration.Record(ctx, dur.Seconds())
}

// PreviewDropped counts one displaced preview.
func (m *Metrics) PreviewDropped(ctx context.Context) {
	m.PreviewsDropped.Add(ctx, 1)
}

// FinalDone records one final transcription attempt.
func (m *Metrics) FinalDone(ctx context.Context, latency time.Duration, err error) {
	m.TranscriptionDuration.Record(ctx, latency.Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Finals.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// SessionStarted marks one model exchange in flight.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded marks one model exchange finished.
func (m *Metrics) SessionEnded(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}

// FirstToken records submission-to-first-token latency.
func (m *Metrics) FirstToken(ctx context.Context, latency time.Duration) {
	m.FirstTokenLatency.Record(ctx, latency.Seconds())
}

// BargeIn counts one playback interruption.
func (m *Metrics) BargeIn(ctx context.Context) {
	m.BargeIns.Add(ctx, 1)
}
