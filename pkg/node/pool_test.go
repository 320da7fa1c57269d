package node

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tidelink-audio/tidelink/pkg/protocol"
)

func newTestNode(t *testing.T, id, region string) *Node {
	t.Helper()
	n, err := New(Config{
		Identifier: id,
		Host:       "127.0.0.1",
		Port:       1, // nothing listens here; probes must fail fast
		Password:   "secret",
		Region:     region,
	}, "123", "tidelink/test", Hooks{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.rest.sleep = func(context.Context, time.Duration) error { return nil }
	return n
}

func markConnected(n *Node) {
	n.mu.Lock()
	n.connected = true
	n.lastPingOK = time.Now()
	n.mu.Unlock()
}

func setStats(n *Node, s protocol.Stats) {
	n.mu.Lock()
	n.stats = &s
	n.statsAt = time.Now()
	n.mu.Unlock()
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Host: "h", Port: 2333, Password: "p"}, false},
		{"missing host", Config{Port: 2333, Password: "p"}, true},
		{"port zero", Config{Host: "h", Password: "p"}, true},
		{"port too large", Config{Host: "h", Port: 70000, Password: "p"}, true},
		{"missing password", Config{Host: "h", Port: 2333}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Host: "lava.example.com", Port: 2333, Password: "p"}
	got := cfg.withDefaults()

	if got.Identifier != "lava.example.com:2333" {
		t.Errorf("Identifier = %q, want host:port fallback", got.Identifier)
	}
	if got.RetryDelay != defaultRetryDelay {
		t.Errorf("RetryDelay = %v, want %v", got.RetryDelay, defaultRetryDelay)
	}
	if got.RetryAmount != defaultRetryAmount {
		t.Errorf("RetryAmount = %d, want %d", got.RetryAmount, defaultRetryAmount)
	}

	// Negative means unlimited and must survive defaulting.
	cfg.RetryAmount = -1
	if got := cfg.withDefaults(); got.RetryAmount != -1 {
		t.Errorf("RetryAmount = %d, want -1 preserved", got.RetryAmount)
	}
}

func TestConfigURLs(t *testing.T) {
	cfg := Config{Host: "h", Port: 2333, Password: "p"}
	if got := cfg.wsURL(); got != "ws://h:2333/v4/websocket" {
		t.Errorf("wsURL() = %q", got)
	}
	if got := cfg.restURL(); got != "http://h:2333" {
		t.Errorf("restURL() = %q", got)
	}

	cfg.Secure = true
	if got := cfg.wsURL(); got != "wss://h:2333/v4/websocket" {
		t.Errorf("secure wsURL() = %q", got)
	}
	if got := cfg.restURL(); got != "https://h:2333" {
		t.Errorf("secure restURL() = %q", got)
	}
}

func TestScoreWithoutStats(t *testing.T) {
	n := newTestNode(t, "a", "")
	if got := n.Score(); got != 0 {
		t.Errorf("Score() = %v, want 0 before any call", got)
	}
	for i := 0; i < 500; i++ {
		n.countCall()
	}
	if got := n.Score(); got != 0.5 {
		t.Errorf("Score() = %v, want 0.5 from call count alone", got)
	}
}

func TestScoreFormula(t *testing.T) {
	n := newTestNode(t, "a", "")
	setStats(n, protocol.Stats{
		Players:        4,
		PlayingPlayers: 2,
		Memory:         protocol.Memory{Used: 50, Reservable: 100},
		CPU:            protocol.CPU{SystemLoad: 0.5},
		FrameStats:     protocol.FrameStats{Deficit: 1, Nulled: 1},
	})

	// 2*2 + 4*0.5 + 0.5*100*1.5 + 0.5*100*0.5 + 2*10 = 126
	if got := n.Score(); math.Abs(got-126) > 1e-9 {
		t.Errorf("Score() = %v, want 126", got)
	}
}

func TestHealthy(t *testing.T) {
	n := newTestNode(t, "a", "")
	if n.Healthy() {
		t.Error("Healthy() = true before connect")
	}

	markConnected(n)
	if !n.Healthy() {
		t.Error("Healthy() = false with fresh ping")
	}

	n.mu.Lock()
	n.lastPingOK = time.Now().Add(-2 * time.Minute)
	n.mu.Unlock()
	if n.Healthy() {
		t.Error("Healthy() = true with stale ping")
	}
}

func TestPoolAddRemoveGet(t *testing.T) {
	p := NewPool()
	a := newTestNode(t, "a", "")

	p.Add(a)
	if !p.Has("a") {
		t.Error("Has(a) = false after Add")
	}
	if got := p.Get("a"); got != a {
		t.Errorf("Get(a) = %v, want added node", got)
	}
	if p.Size() != 1 {
		t.Errorf("Size() = %d, want 1", p.Size())
	}

	if got := p.Remove("a"); got != a {
		t.Errorf("Remove(a) = %v, want removed node", got)
	}
	if p.Has("a") {
		t.Error("Has(a) = true after Remove")
	}
	if got := p.Remove("missing"); got != nil {
		t.Errorf("Remove(missing) = %v, want nil", got)
	}
}

func TestPoolConnectedCount(t *testing.T) {
	p := NewPool()
	a := newTestNode(t, "a", "")
	b := newTestNode(t, "b", "")
	p.Add(a)
	p.Add(b)

	if got := p.ConnectedCount(); got != 0 {
		t.Errorf("ConnectedCount() = %d, want 0", got)
	}
	markConnected(a)
	if got := p.ConnectedCount(); got != 1 {
		t.Errorf("ConnectedCount() = %d, want 1", got)
	}
}

func TestPickLeastLoaded(t *testing.T) {
	p := NewPool()
	if _, err := p.PickLeastLoaded(); !errors.Is(err, ErrNoNodeAvailable) {
		t.Errorf("empty pool: err = %v, want ErrNoNodeAvailable", err)
	}

	busy := newTestNode(t, "busy", "")
	idle := newTestNode(t, "idle", "")
	offline := newTestNode(t, "offline", "")
	markConnected(busy)
	markConnected(idle)
	setStats(busy, protocol.Stats{PlayingPlayers: 10})
	setStats(idle, protocol.Stats{PlayingPlayers: 1})
	setStats(offline, protocol.Stats{})
	p.Add(busy)
	p.Add(idle)
	p.Add(offline)

	got, err := p.PickLeastLoaded()
	if err != nil {
		t.Fatalf("PickLeastLoaded: %v", err)
	}
	if got != idle {
		t.Errorf("PickLeastLoaded() = %s, want idle", got.Identifier())
	}
}

func TestPickByRegion(t *testing.T) {
	p := NewPool()
	eu := newTestNode(t, "eu", "rotterdam")
	us := newTestNode(t, "us", "us-central")
	markConnected(eu)
	markConnected(us)
	setStats(eu, protocol.Stats{PlayingPlayers: 10})
	setStats(us, protocol.Stats{PlayingPlayers: 1})
	p.Add(eu)
	p.Add(us)

	// Region match wins even when more loaded.
	got, err := p.PickByRegion("rotterdam")
	if err != nil {
		t.Fatalf("PickByRegion: %v", err)
	}
	if got != eu {
		t.Errorf("PickByRegion(rotterdam) = %s, want eu", got.Identifier())
	}

	// No regional match falls back to the least-loaded node.
	got, err = p.PickByRegion("singapore")
	if err != nil {
		t.Fatalf("PickByRegion fallback: %v", err)
	}
	if got != us {
		t.Errorf("PickByRegion(singapore) = %s, want us fallback", got.Identifier())
	}
}

func TestPickForNewPlayer(t *testing.T) {
	p := NewPool()
	if _, err := p.PickForNewPlayer(""); !errors.Is(err, ErrNoNodeAvailable) {
		t.Errorf("empty pool: err = %v, want ErrNoNodeAvailable", err)
	}

	a := newTestNode(t, "a", "rotterdam")
	b := newTestNode(t, "b", "")
	markConnected(a)
	markConnected(b)
	setStats(a, protocol.Stats{PlayingPlayers: 5})
	setStats(b, protocol.Stats{PlayingPlayers: 1})
	p.Add(a)
	p.Add(b)

	got, err := p.PickForNewPlayer("rotterdam")
	if err != nil {
		t.Fatalf("PickForNewPlayer: %v", err)
	}
	if got != a {
		t.Errorf("PickForNewPlayer(rotterdam) = %s, want region match", got.Identifier())
	}

	got, err = p.PickForNewPlayer("")
	if err != nil {
		t.Fatalf("PickForNewPlayer: %v", err)
	}
	if got != b {
		t.Errorf("PickForNewPlayer(\"\") = %s, want least loaded", got.Identifier())
	}
}

func TestHealthCheckCounts(t *testing.T) {
	p := NewPool()
	a := newTestNode(t, "a", "")
	b := newTestNode(t, "b", "")
	markConnected(a)
	p.Add(a)
	p.Add(b)

	report := p.HealthCheck(t.Context())
	if report.Total != 2 {
		t.Errorf("Total = %d, want 2", report.Total)
	}
	if report.Connected != 1 || report.Disconnected != 1 {
		t.Errorf("Connected/Disconnected = %d/%d, want 1/1", report.Connected, report.Disconnected)
	}
	// No worker is listening, so both probes must record their failure.
	for id, h := range report.Nodes {
		if h.Healthy {
			t.Errorf("node %s reported healthy without a reachable endpoint", id)
		}
		if h.Error == "" {
			t.Errorf("node %s missing probe error", id)
		}
	}
}
