package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"tidelink.node.ping", m.NodePing},
		{"tidelink.rest.duration", m.RestDuration},
		{"tidelink.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestTrackLoadsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLoad(ctx, "track")
	m.RecordLoad(ctx, "track")
	m.RecordLoad(ctx, "empty")

	rm := collect(t, reader)
	met := findMetric(rm, "tidelink.track.loads")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}

	// Find the data point with loadType=track.
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "loadType" && kv.Value.AsString() == "track" {
				if dp.Value != 2 {
					t.Errorf("counter value = %d, want 2", dp.Value)
				}
				return
			}
		}
	}
	t.Error("data point with loadType=track not found")
}

func TestPlaybackErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPlaybackError(ctx, "stuck")
	m.RecordPlaybackError(ctx, "exception")
	m.RecordPlaybackError(ctx, "stuck")

	rm := collect(t, reader)
	met := findMetric(rm, "tidelink.playback.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}

	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "kind" && kv.Value.AsString() == "stuck" {
				if dp.Value != 2 {
					t.Errorf("counter value = %d, want 2", dp.Value)
				}
				return
			}
		}
	}
	t.Error("data point with kind=stuck not found")
}

func TestSnapshotSavesCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSnapshotSave(ctx, true)
	m.RecordSnapshotSave(ctx, false)

	rm := collect(t, reader)
	met := findMetric(rm, "tidelink.snapshot.saves")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}

	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "status" && kv.Value.AsString() == "fail" {
				if dp.Value != 1 {
					t.Errorf("counter value = %d, want 1", dp.Value)
				}
				return
			}
		}
	}
	t.Error("data point with status=fail not found")
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)

	nodes, active, playing := int64(2), int64(4), int64(3)
	reg, err := m.RegisterGauges(
		func() int64 { return nodes },
		func() int64 { return active },
		func() int64 { return playing },
	)
	if err != nil {
		t.Fatalf("RegisterGauges: %v", err)
	}
	t.Cleanup(func() { _ = reg.Unregister() })

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"tidelink.nodes.connected", 2},
		{"tidelink.players.active", 4},
		{"tidelink.players.playing", 3},
	}

	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			g, ok := met.Data.(metricdata.Gauge[int64])
			if !ok {
				t.Fatalf("metric %q is not a gauge", tc.name)
			}
			if len(g.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := g.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRecordRestAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRest(ctx, "node-eu-1", "loadtracks", 0.07)

	rm := collect(t, reader)
	met := findMetric(rm, "tidelink.rest.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	dp := hist.DataPoints[0]
	if v, found := dp.Attributes.Value(attribute.Key("node")); !found || v.AsString() != "node-eu-1" {
		t.Errorf("node attribute = %v, want node-eu-1", v)
	}
	if v, found := dp.Attributes.Value(attribute.Key("op")); !found || v.AsString() != "loadtracks" {
		t.Errorf("op attribute = %v, want loadtracks", v)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}

func TestRecordPingAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordPing(context.Background(), "node-eu-1", 0.031)

	rm := collect(t, reader)
	met := findMetric(rm, "tidelink.node.ping")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	dp := hist.DataPoints[0]
	if v, found := dp.Attributes.Value(attribute.Key("node")); !found || v.AsString() != "node-eu-1" {
		t.Errorf("node attribute = %v, want node-eu-1", v)
	}
}

func TestTrackStartAndMigrationCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTrackStart(ctx)
	m.RecordTrackStart(ctx)
	m.RecordMigration(ctx)

	rm := collect(t, reader)
	counters := []struct {
		name string
		want int64
	}{
		{"tidelink.track.starts", 2},
		{"tidelink.player.migrations", 1},
	}
	for _, tc := range counters {
		met := findMetric(rm, tc.name)
		if met == nil {
			t.Fatalf("metric %q not found", tc.name)
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok {
			t.Fatalf("metric %q is not a sum", tc.name)
		}
		if got := sum.DataPoints[0].Value; got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestNilMetricsHelpersAreNoOps(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.RecordPing(ctx, "n", 0.1)
	m.RecordRest(ctx, "n", "info", 0.1)
	m.RecordLoad(ctx, "track")
	m.RecordTrackStart(ctx)
	m.RecordMigration(ctx)
	m.RecordPlaybackError(ctx, "stuck")
	m.RecordSnapshotSave(ctx, true)
	if _, err := m.RegisterGauges(nil, nil, nil); err != nil {
		t.Fatalf("RegisterGauges on nil receiver: %v", err)
	}
}
