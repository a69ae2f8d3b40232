// Package observe provides application-wide observability primitives for
// Earshot: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Earshot metrics.
const meterName = "github.com/earshot-voice/earshot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// RecognizerDuration tracks the latency of one recognizer AcceptFrame
	// round trip.
	RecognizerDuration metric.Float64Histogram

	// UtteranceDuration tracks the length of completed utterances (gate open
	// to gate close).
	UtteranceDuration metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts frames through the pipeline. Use with attribute:
	//   attribute.String("routed", "recognizer"|"preroll"|"discarded")
	FramesProcessed metric.Int64Counter

	// GateTransitions counts gate state changes. Use with attribute:
	//   attribute.String("to", "open"|"closed")
	GateTransitions metric.Int64Counter

	// Utterances counts finalized utterance results. Use with attribute:
	//   attribute.String("kind", "final"|"partial")
	Utterances metric.Int64Counter

	// --- Error counters ---

	// PipelineErrors counts recovered pipeline faults. Use with attribute:
	//   attribute.String("stage", "read"|"classify"|"recognize")
	PipelineErrors metric.Int64Counter

	// --- Gauges ---

	// GateOpen tracks whether the gate is currently open (0 or 1).
	GateOpen metric.Int64UpDownCounter

	// PreRollDepth tracks the number of frames held in the pre-roll buffer.
	PreRollDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecognizerDuration, err = m.Float64Histogram("earshot.recognizer.duration",
		metric.WithDescription("Latency of one recognizer frame round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("earshot.utterance.duration",
		metric.WithDescription("Length of completed utterances from gate open to close."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("earshot.frames.processed",
		metric.WithDescription("Total frames through the pipeline by routing outcome."),
	); err != nil {
		return nil, err
	}
	if met.GateTransitions, err = m.Int64Counter("earshot.gate.transitions",
		metric.WithDescription("Total gate state changes by target state."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("earshot.utterances",
		metric.WithDescription("Total emitted recognition results by kind."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PipelineErrors, err = m.Int64Counter("earshot.pipeline.errors",
		metric.WithDescription("Total recovered pipeline faults by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.GateOpen, err = m.Int64UpDownCounter("earshot.gate.open",
		metric.WithDescription("Whether the gate is currently open."),
	); err != nil {
		return nil, err
	}
	if met.PreRollDepth, err = m.Int64UpDownCounter("earshot.preroll.depth",
		metric.WithDescription("Frames currently held in the pre-roll buffer."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame is a convenience method that counts one processed frame with
// its routing outcome ("recognizer", "preroll", or "discarded").
func (m *Metrics) RecordFrame(ctx context.Context, routed string) {
	m.FramesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("routed", routed)),
	)
}

// RecordGateTransition is a convenience method that counts one gate state
// change and keeps the GateOpen gauge in step.
func (m *Metrics) RecordGateTransition(ctx context.Context, opened bool) {
	to := "closed"
	delta := int64(-1)
	if opened {
		to = "open"
		delta = 1
	}
	m.GateTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("to", to)),
	)
	m.GateOpen.Add(ctx, delta)
}

// RecordUtterance is a convenience method that counts one emitted result
// ("final" or "partial").
func (m *Metrics) RecordUtterance(ctx context.Context, kind string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordPipelineError is a convenience method that counts one recovered fault
// by pipeline stage.
func (m *Metrics) RecordPipelineError(ctx context.Context, stage string) {
	m.PipelineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
