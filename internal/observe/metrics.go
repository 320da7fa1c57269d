// Package observe provides the client's observability primitives:
// OpenTelemetry metric instruments exported through the Prometheus bridge,
// and HTTP middleware for the daemon's endpoints.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tidelink metrics.
const meterName = "github.com/tidelink-audio/tidelink"

// Metrics holds all OpenTelemetry metric instruments for the client. All
// fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	meter metric.Meter

	// --- Latency histograms ---

	// NodePing tracks worker node REST probe round-trip time.
	NodePing metric.Float64Histogram

	// RestDuration tracks worker REST call latency. Use with attributes:
	//   attribute.String("node", ...), attribute.String("op", ...)
	RestDuration metric.Float64Histogram

	// --- Counters ---

	// TrackLoads counts loadtracks calls. Use with attribute:
	//   attribute.String("loadType", ...)
	TrackLoads metric.Int64Counter

	// TrackStarts counts tracks that began playing.
	TrackStarts metric.Int64Counter

	// PlaybackErrors counts track exceptions and load failures. Use with
	// attribute: attribute.String("kind", ...)
	PlaybackErrors metric.Int64Counter

	// Migrations counts player moves between nodes.
	Migrations metric.Int64Counter

	// SnapshotSaves counts snapshot store writes. Use with attribute:
	//   attribute.String("status", ...)
	SnapshotSaves metric.Int64Counter

	// --- Gauges ---
	//
	// The fleet gauges are observable: [Metrics.RegisterGauges] binds them
	// to live sources polled on every collection.

	// ConnectedNodes tracks the number of nodes with an open WebSocket.
	ConnectedNodes metric.Int64ObservableGauge

	// ActivePlayers tracks the number of allocated players.
	ActivePlayers metric.Int64ObservableGauge

	// PlayingPlayers tracks the number of players with an active track.
	PlayingPlayers metric.Int64ObservableGauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// REST round trips to audio workers.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.NodePing, err = m.Float64Histogram("tidelink.node.ping",
		metric.WithDescription("Round-trip time of worker node health probes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RestDuration, err = m.Float64Histogram("tidelink.rest.duration",
		metric.WithDescription("Latency of worker REST calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TrackLoads, err = m.Int64Counter("tidelink.track.loads",
		metric.WithDescription("Number of loadtracks calls by load type."),
	); err != nil {
		return nil, err
	}
	if met.TrackStarts, err = m.Int64Counter("tidelink.track.starts",
		metric.WithDescription("Number of tracks that began playing."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackErrors, err = m.Int64Counter("tidelink.playback.errors",
		metric.WithDescription("Number of playback failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.Migrations, err = m.Int64Counter("tidelink.player.migrations",
		metric.WithDescription("Number of player moves between nodes."),
	); err != nil {
		return nil, err
	}
	if met.SnapshotSaves, err = m.Int64Counter("tidelink.snapshot.saves",
		metric.WithDescription("Number of snapshot store writes by status."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedNodes, err = m.Int64ObservableGauge("tidelink.nodes.connected",
		metric.WithDescription("Number of worker nodes with an open WebSocket."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlayers, err = m.Int64ObservableGauge("tidelink.players.active",
		metric.WithDescription("Number of allocated players."),
	); err != nil {
		return nil, err
	}
	if met.PlayingPlayers, err = m.Int64ObservableGauge("tidelink.players.playing",
		metric.WithDescription("Number of players with an active track."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("tidelink.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance backed by the
// global OTel meter provider. The first call creates the instruments;
// creation errors fall back to no-op instruments from the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RegisterGauges binds the fleet gauges to live sources. Each callback is
// polled on every metrics collection; a nil callback leaves its gauge
// unreported. Returns the registration so the caller can unregister on
// shutdown.
func (m *Metrics) RegisterGauges(nodes, active, playing func() int64) (metric.Registration, error) {
	if m == nil || m.meter == nil {
		return nil, nil
	}
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if nodes != nil {
			o.ObserveInt64(m.ConnectedNodes, nodes())
		}
		if active != nil {
			o.ObserveInt64(m.ActivePlayers, active())
		}
		if playing != nil {
			o.ObserveInt64(m.PlayingPlayers, playing())
		}
		return nil
	}, m.ConnectedNodes, m.ActivePlayers, m.PlayingPlayers)
}

// RecordPing records one node health probe round trip.
func (m *Metrics) RecordPing(ctx context.Context, node string, seconds float64) {
	if m == nil || m.NodePing == nil {
		return
	}
	m.NodePing.Record(ctx, seconds, metric.WithAttributes(attribute.String("node", node)))
}

// RecordRest records one worker REST call.
func (m *Metrics) RecordRest(ctx context.Context, node, op string, seconds float64) {
	if m == nil || m.RestDuration == nil {
		return
	}
	m.RestDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("node", node), attribute.String("op", op)))
}

// RecordLoad records one loadtracks call by result shape.
func (m *Metrics) RecordLoad(ctx context.Context, loadType string) {
	if m == nil || m.TrackLoads == nil {
		return
	}
	m.TrackLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("loadType", loadType)))
}

// RecordTrackStart records one track that began playing.
func (m *Metrics) RecordTrackStart(ctx context.Context) {
	if m == nil || m.TrackStarts == nil {
		return
	}
	m.TrackStarts.Add(ctx, 1)
}

// RecordMigration records one player move between nodes.
func (m *Metrics) RecordMigration(ctx context.Context) {
	if m == nil || m.Migrations == nil {
		return
	}
	m.Migrations.Add(ctx, 1)
}

// RecordPlaybackError records one playback failure by kind
// ("exception", "stuck", "loadFailed").
func (m *Metrics) RecordPlaybackError(ctx context.Context, kind string) {
	if m == nil || m.PlaybackErrors == nil {
		return
	}
	m.PlaybackErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSnapshotSave records one snapshot write outcome.
func (m *Metrics) RecordSnapshotSave(ctx context.Context, ok bool) {
	if m == nil || m.SnapshotSaves == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "fail"
	}
	m.SnapshotSaves.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
