// Package node maintains the connection to a fleet of audio worker nodes:
// a typed REST client, one persistent WebSocket session per node with
// reconnect and health probing, and a pool with load-balanced selection
// and failure migration.
package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidelink-audio/tidelink/internal/observe"
	"github.com/tidelink-audio/tidelink/pkg/protocol"
)

// Default session parameters.
const (
	defaultRetryDelay   = 5 * time.Second
	defaultRetryAmount  = 5
	maxReconnectDelay   = 30 * time.Second
	pingInterval        = 30 * time.Second
	pingTimeout         = 5 * time.Second
	pingWarnThreshold   = 500 * time.Millisecond
	unhealthyAfter      = 60 * time.Second
)

// Config describes one worker node. Host, Port and Password are required.
type Config struct {
	// Identifier uniquely names the node; defaults to "host:port".
	Identifier string

	Host     string
	Port     int
	Password string

	// Secure selects wss/https transport.
	Secure bool

	// Region is an optional placement tag matched by Pool.PickByRegion.
	Region string

	// ResumeKey is forwarded in the WebSocket handshake so a worker can
	// resume a prior session. Optional.
	ResumeKey string

	// RetryDelay is the base reconnect delay, multiplied by the attempt
	// count and capped at 30s. Defaults to 5s.
	RetryDelay time.Duration

	// RetryAmount bounds reconnect attempts; negative means unlimited.
	// Defaults to 5.
	RetryAmount int
}

// Validate fails fast on configuration that can never connect.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("node %q: host must not be empty", c.Identifier)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("node %q: invalid port %d", c.Identifier, c.Port)
	}
	if c.Password == "" {
		return fmt.Errorf("node %q: password must not be empty", c.Identifier)
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Identifier == "" {
		out.Identifier = fmt.Sprintf("%s:%d", out.Host, out.Port)
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = defaultRetryDelay
	}
	if out.RetryAmount == 0 {
		out.RetryAmount = defaultRetryAmount
	}
	return out
}

func (c *Config) wsURL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/v4/websocket", scheme, c.Host, c.Port)
}

func (c *Config) restURL() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Hooks receives a node's inbound traffic and lifecycle transitions. All
// callbacks run on the node's read goroutine and must not block. Nil
// callbacks are skipped.
type Hooks struct {
	OnConnect      func(n *Node)
	OnReady        func(n *Node, r protocol.Ready)
	OnDisconnect   func(n *Node, code int, reason string)
	OnError        func(n *Node, err error)
	OnStats        func(n *Node, s protocol.Stats)
	OnPlayerUpdate func(n *Node, u protocol.PlayerUpdate)
	OnEvent        func(n *Node, e protocol.Event)
}

// Node is one worker: a REST client plus a self-healing WebSocket session.
// All exported methods are safe for concurrent use.
type Node struct {
	cfg        Config
	rest       *Rest
	userID     string
	clientName string
	hooks      Hooks
	metrics    *observe.Metrics

	calls atomic.Int64

	mu                sync.RWMutex
	connected         bool
	sessionID         string
	stats             *protocol.Stats
	statsAt           time.Time
	ping              time.Duration
	lastPingOK        time.Time
	reconnectAttempts int

	// send serializes all outbound WebSocket writes through one goroutine.
	sendMu sync.Mutex
	send   chan []byte

	lifecycle sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Node from cfg. userID and clientName are forwarded in the
// WebSocket handshake headers. The node does not connect until [Node.Start].
func New(cfg Config, userID, clientName string, hooks Hooks) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := cfg.withDefaults()
	return &Node{
		cfg:        c,
		rest:       NewRest(c.Identifier, c.restURL(), c.Password),
		userID:     userID,
		clientName: clientName,
		hooks:      hooks,
		metrics:    observe.DefaultMetrics(),
		done:       make(chan struct{}),
	}, nil
}

// Identifier returns the node's unique name.
func (n *Node) Identifier() string { return n.cfg.Identifier }

// Region returns the configured placement tag, possibly empty.
func (n *Node) Region() string { return n.cfg.Region }

// Rest returns the node's REST client.
func (n *Node) Rest() *Rest { return n.rest }

// Connected reports whether the WebSocket is currently open.
func (n *Node) Connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

// SessionID returns the worker-assigned session ID, or "" before ready.
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Stats returns the latest load snapshot, or false when none arrived yet.
func (n *Node) Stats() (protocol.Stats, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stats == nil {
		return protocol.Stats{}, false
	}
	return *n.stats, true
}

// Ping returns the most recent REST probe round-trip time.
func (n *Node) Ping() time.Duration {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ping
}

// Healthy reports whether the node is connected and a ping probe succeeded
// within the last minute.
func (n *Node) Healthy() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected && !n.lastPingOK.IsZero() && time.Since(n.lastPingOK) <= unhealthyAfter
}

// Calls returns the number of REST operations routed through this node.
// Used as the load-balancing tie-break.
func (n *Node) Calls() int64 { return n.calls.Load() }

// countCall bumps the tie-break counter.
func (n *Node) countCall() { n.calls.Add(1) }

// Score computes the load score; lower is better. Nodes without a stats
// snapshot are ranked by call count alone.
func (n *Node) Score() float64 {
	n.mu.RLock()
	stats := n.stats
	n.mu.RUnlock()

	tieBreak := float64(n.calls.Load()) / 1000
	if stats == nil {
		return tieBreak
	}
	memFraction := 0.0
	if stats.Memory.Reservable > 0 {
		memFraction = float64(stats.Memory.Used) / float64(stats.Memory.Reservable)
	}
	return float64(stats.PlayingPlayers)*2 +
		float64(stats.Players)*0.5 +
		stats.CPU.SystemLoad*100*1.5 +
		memFraction*100*0.5 +
		float64(stats.FrameStats.Deficit+stats.FrameStats.Nulled)*10 +
		tieBreak
}

// --- REST passthrough with session wiring and call accounting ---

// timeRest records the latency of one REST passthrough.
func (n *Node) timeRest(ctx context.Context, op string, start time.Time) {
	n.metrics.RecordRest(ctx, n.cfg.Identifier, op, time.Since(start).Seconds())
}

// LoadTracks resolves an identifier through this node.
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*protocol.LoadResponse, error) {
	n.countCall()
	defer n.timeRest(ctx, "loadTracks", time.Now())
	return n.rest.LoadTracks(ctx, identifier)
}

// UpdatePlayer patches the worker-side player of guildID on this node.
func (n *Node) UpdatePlayer(ctx context.Context, guildID string, patch protocol.UpdatePlayer, noReplace bool) (*protocol.PlayerInfo, error) {
	n.countCall()
	defer n.timeRest(ctx, "updatePlayer", time.Now())
	return n.rest.UpdatePlayer(ctx, n.SessionID(), guildID, patch, noReplace)
}

// DestroyPlayer removes the worker-side player of guildID on this node.
func (n *Node) DestroyPlayer(ctx context.Context, guildID string) error {
	n.countCall()
	defer n.timeRest(ctx, "destroyPlayer", time.Now())
	return n.rest.DestroyPlayer(ctx, n.SessionID(), guildID)
}

// DecodeTrack resolves an encoded blob through this node.
func (n *Node) DecodeTrack(ctx context.Context, encoded string) (*protocol.Track, error) {
	n.countCall()
	defer n.timeRest(ctx, "decodeTrack", time.Now())
	return n.rest.DecodeTrack(ctx, encoded)
}

// DecodeTracks resolves a batch of encoded blobs through this node.
func (n *Node) DecodeTracks(ctx context.Context, encoded []string) ([]protocol.Track, error) {
	n.countCall()
	defer n.timeRest(ctx, "decodeTracks", time.Now())
	return n.rest.DecodeTracks(ctx, encoded)
}

// Info fetches worker metadata through this node.
func (n *Node) Info(ctx context.Context) (*protocol.Info, error) {
	n.countCall()
	defer n.timeRest(ctx, "info", time.Now())
	return n.rest.Info(ctx)
}
