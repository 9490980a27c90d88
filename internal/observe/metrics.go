// Package observe provides observability primitives for Costumier:
// OpenTelemetry metric instruments, a Prometheus exporter bridge, and HTTP
// middleware tying request metrics to structured logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
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

// meterName is the instrumentation scope name used for all Costumier
// metrics.
const meterName = "github.com/sceneloom/costumier"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ScanDuration tracks one detector pass over a session buffer.
	ScanDuration metric.Float64Histogram

	// Detections counts raw detections. Use with attribute:
	//   attribute.String("kind", ...)
	Detections metric.Int64Counter

	// Switches counts issued costume switches. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Switches metric.Int64Counter

	// Skips counts decision-engine skips. Use with attribute:
	//   attribute.String("reason", ...)
	Skips metric.Int64Counter

	// CompileErrors counts profile compilations that failed.
	CompileErrors metric.Int64Counter

	// ActiveSessions tracks the number of in-flight stream messages.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// scanBuckets defines histogram bucket boundaries (in seconds) sized for a
// per-token hot path: scans are expected in the sub-millisecond range.
var scanBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation
// fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ScanDuration, err = m.Float64Histogram("costumier.scan.duration",
		metric.WithDescription("Latency of one detector pass over a session buffer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(scanBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("costumier.detections",
		metric.WithDescription("Total detections by signal kind."),
	); err != nil {
		return nil, err
	}
	if met.Switches, err = m.Int64Counter("costumier.switches",
		metric.WithDescription("Total issued costume switches by status."),
	); err != nil {
		return nil, err
	}
	if met.Skips, err = m.Int64Counter("costumier.skips",
		metric.WithDescription("Total decision skips by reason."),
	); err != nil {
		return nil, err
	}
	if met.CompileErrors, err = m.Int64Counter("costumier.compile.errors",
		metric.WithDescription("Total failed profile compilations."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("costumier.active_sessions",
		metric.WithDescription("Number of in-flight stream messages."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("costumier.http.request.duration",
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

// RecordDetection records one detection of the given kind.
func (m *Metrics) RecordDetection(ctx context.Context, kind string) {
	m.Detections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordSwitch records an issued switch outcome.
func (m *Metrics) RecordSwitch(ctx context.Context, status string) {
	m.Switches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSkip records a decision skip by reason.
func (m *Metrics) RecordSkip(ctx context.Context, reason string) {
	m.Skips.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
