// Package observe provides application-wide observability primitives for
// voxnote: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so they can be scraped via
// the /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxnote metrics.
const meterName = "github.com/MrWong99/voxnote"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Notes ---

	// NotesSaved counts notes appended to the collection.
	NotesSaved metric.Int64Counter

	// NotesDeleted counts notes removed from the collection.
	NotesDeleted metric.Int64Counter

	// StorageFailures counts failed durable-storage operations. Use with
	// attribute.String("op", "load"|"write").
	StorageFailures metric.Int64Counter

	// StorageWriteDuration tracks how long a write-through of the full
	// collection takes.
	StorageWriteDuration metric.Float64Histogram

	// --- Dictation ---

	// DictationSessions counts dictation start attempts. Use with
	// attribute.String("status", "started"|"unsupported"|"error").
	DictationSessions metric.Int64Counter

	// ActiveDictations tracks the number of live dictation sessions.
	ActiveDictations metric.Int64UpDownCounter

	// TranscriptUpdates counts cumulative transcript updates delivered to the
	// controller.
	TranscriptUpdates metric.Int64Counter

	// StreamErrors counts non-fatal errors reported by transcription streams.
	StreamErrors metric.Int64Counter

	// BreakerTransitions counts speech-to-text circuit breaker state changes.
	// Use with attribute.String("backend", ...), attribute.String("state", ...).
	BreakerTransitions metric.Int64Counter

	// --- Capture ---

	// CaptureNotices counts user-facing notices. Use with
	// attribute.String("code", ...).
	CaptureNotices metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// writeBuckets defines histogram bucket boundaries (in seconds) for local
// storage writes.
var writeBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.NotesSaved, err = m.Int64Counter("voxnote.notes.saved",
		metric.WithDescription("Total notes appended to the collection."),
	); err != nil {
		return nil, err
	}
	if met.NotesDeleted, err = m.Int64Counter("voxnote.notes.deleted",
		metric.WithDescription("Total notes removed from the collection."),
	); err != nil {
		return nil, err
	}
	if met.StorageFailures, err = m.Int64Counter("voxnote.storage.failures",
		metric.WithDescription("Failed durable-storage operations by op."),
	); err != nil {
		return nil, err
	}
	if met.StorageWriteDuration, err = m.Float64Histogram("voxnote.storage.write.duration",
		metric.WithDescription("Latency of writing the full note collection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(writeBuckets...),
	); err != nil {
		return nil, err
	}

	if met.DictationSessions, err = m.Int64Counter("voxnote.dictation.sessions",
		metric.WithDescription("Dictation start attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveDictations, err = m.Int64UpDownCounter("voxnote.dictation.active",
		metric.WithDescription("Number of live dictation sessions."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptUpdates, err = m.Int64Counter("voxnote.dictation.transcript_updates",
		metric.WithDescription("Cumulative transcript updates delivered."),
	); err != nil {
		return nil, err
	}
	if met.StreamErrors, err = m.Int64Counter("voxnote.dictation.stream_errors",
		metric.WithDescription("Non-fatal transcription stream errors."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("voxnote.dictation.breaker.transitions",
		metric.WithDescription("Speech-to-text circuit breaker state changes by backend and new state."),
	); err != nil {
		return nil, err
	}

	if met.CaptureNotices, err = m.Int64Counter("voxnote.capture.notices",
		metric.WithDescription("User-facing notices by code."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxnote.http.request.duration",
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
// pointer. Panics if instrument creation fails.
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

// RecordStorageFailure records a failed storage operation.
func (m *Metrics) RecordStorageFailure(ctx context.Context, op string) {
	m.StorageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordDictationSession records a dictation start attempt with its outcome.
func (m *Metrics) RecordDictationSession(ctx context.Context, status string) {
	m.DictationSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordNotice records a user-facing notice.
func (m *Metrics) RecordNotice(ctx context.Context, code string) {
	m.CaptureNotices.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordBreakerTransition records a circuit breaker moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("state", state),
	))
}
