// Package observetest provides helpers for asserting metric emission in
// tests of packages that record through [observe.Metrics].
package observetest

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voxnote/internal/observe"
)

// Recorder pairs a Metrics instance with the ManualReader that collects it.
type Recorder struct {
	*observe.Metrics
	reader *sdkmetric.ManualReader
}

// New returns a Recorder backed by a fresh MeterProvider that is shut down
// when the test ends.
func New(t testing.TB) *Recorder {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return &Recorder{Metrics: m, reader: reader}
}

// Sum returns the total of all data points of the int64 sum named name
// whose attributes include every pair in kv (given as key, value, key,
// value...). Missing metrics count as zero.
func (r *Recorder) Sum(t testing.TB, name string, kv ...string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				if matches(dp.Attributes, kv) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func matches(set attribute.Set, kv []string) bool {
	for i := 0; i+1 < len(kv); i += 2 {
		v, ok := set.Value(attribute.Key(kv[i]))
		if !ok || v.AsString() != kv[i+1] {
			return false
		}
	}
	return true
}
