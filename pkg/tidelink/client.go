// Package tidelink is the orchestrator facade: it owns the node pool, the
// voice handshake tracker and the player registry, consumes the chat
// platform's voice events, and exposes the search-then-play API.
package tidelink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/tidelink-audio/tidelink/internal/observe"
	"github.com/tidelink-audio/tidelink/pkg/events"
	"github.com/tidelink-audio/tidelink/pkg/gateway"
	"github.com/tidelink-audio/tidelink/pkg/node"
	"github.com/tidelink-audio/tidelink/pkg/player"
	"github.com/tidelink-audio/tidelink/pkg/protocol"
	"github.com/tidelink-audio/tidelink/pkg/storage"
	"github.com/tidelink-audio/tidelink/pkg/track"
	"github.com/tidelink-audio/tidelink/pkg/voice"
)

// Version is reported to worker nodes in the Client-Name handshake header.
const Version = "0.4.0"

// DefaultPrefix keys player snapshots in the configured store.
const DefaultPrefix = "tidelink:player:"

// Config wires a Client.
type Config struct {
	// Nodes is the worker fleet. At least one entry is required.
	Nodes []node.Config

	// Gateway is the chat platform session.
	Gateway gateway.Gateway

	// Store persists player snapshots. Nil keeps players in memory only.
	Store  storage.Store
	Prefix string

	// SearchEngine identifies queries (phase 1); PlaybackEngine resolves
	// them (phase 2). Defaults: spotify / youtubemusic.
	SearchEngine   string
	PlaybackEngine string

	// PlayerDefaults seeds every new player's options. Per-guild fields
	// are overwritten at create time.
	PlayerDefaults player.Options

	Log *slog.Logger
}

func (c *Config) validate() error {
	if len(c.Nodes) == 0 {
		return fmt.Errorf("tidelink: at least one node is required")
	}
	if c.Gateway == nil {
		return fmt.Errorf("tidelink: gateway is required")
	}
	for i := range c.Nodes {
		if err := c.Nodes[i].Validate(); err != nil {
			return fmt.Errorf("tidelink: %w", err)
		}
	}
	return nil
}

// Client is the top-level orchestrator. Safe for concurrent use.
type Client struct {
	cfg     Config
	log     *slog.Logger
	gw      gateway.Gateway
	bus     *events.Bus
	pool    *node.Pool
	voice   *voice.Tracker
	players *player.Registry
	metrics *observe.Metrics

	gaugeReg metric.Registration

	readyOnce sync.Once
	closeOnce sync.Once
}

var _ gateway.Handler = (*Client)(nil)

// New assembles a client. Nodes do not connect until [Client.Start].
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.SearchEngine == "" {
		cfg.SearchEngine = "spotify"
	}
	if cfg.PlaybackEngine == "" {
		cfg.PlaybackEngine = "youtubemusic"
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		cfg:     cfg,
		log:     log,
		gw:      cfg.Gateway,
		bus:     events.NewBus(),
		pool:    node.NewPool(),
		metrics: observe.DefaultMetrics(),
	}
	c.voice = voice.NewTracker(voice.Hooks{
		OnReady: func(guildID string, cred protocol.VoiceState) {
			log.Debug("voice credential ready", "guild", guildID, "endpoint", cred.Endpoint)
		},
		OnDisconnect: func(guildID string) {
			c.bus.Emit(events.VoiceDisconnect{GuildID: guildID})
		},
	})
	c.players = player.NewRegistry(player.RegistryConfig{
		Pool:    c.pool,
		Gateway: cfg.Gateway,
		Voice:   c.voice,
		Bus:     c.bus,
		Log:     log,
		Store:   cfg.Store,
		Prefix:  cfg.Prefix,
		Search:  c.autoplaySearch,
	})

	clientName := "tidelink/" + Version
	for _, nc := range cfg.Nodes {
		n, err := node.New(nc, cfg.Gateway.UserID(), clientName, c.nodeHooks())
		if err != nil {
			return nil, fmt.Errorf("tidelink: %w", err)
		}
		c.pool.Add(n)
	}

	reg, err := c.metrics.RegisterGauges(
		func() int64 { return int64(c.pool.ConnectedCount()) },
		func() int64 { return int64(c.players.Size()) },
		func() int64 { return int64(c.players.Aggregate().Playing) },
	)
	if err != nil {
		log.Warn("gauge registration failed", "error", err)
	}
	c.gaugeReg = reg
	return c, nil
}

func (c *Client) nodeHooks() node.Hooks {
	return node.Hooks{
		OnConnect: func(n *node.Node) {
			c.bus.Emit(events.NodeConnect{Node: n.Identifier()})
			c.readyOnce.Do(func() { c.bus.Emit(events.Ready{}) })
		},
		OnReady: func(n *node.Node, r protocol.Ready) {
			c.bus.Emit(events.NodeReady{
				Node: n.Identifier(), SessionID: r.SessionID, Resumed: r.Resumed,
			})
		},
		OnDisconnect: func(n *node.Node, code int, reason string) {
			c.bus.Emit(events.NodeDisconnect{Node: n.Identifier(), Code: code, Reason: reason})
			go c.players.MigrateFrom(context.Background(), n.Identifier())
		},
		OnError: func(n *node.Node, err error) {
			c.bus.Emit(events.NodeError{Node: n.Identifier(), Err: err})
		},
		OnStats: func(n *node.Node, s protocol.Stats) {
			c.bus.Emit(events.NodeStats{Node: n.Identifier(), Stats: s})
		},
		OnPlayerUpdate: func(_ *node.Node, u protocol.PlayerUpdate) {
			c.players.DispatchPlayerUpdate(u)
		},
		OnEvent: func(_ *node.Node, e protocol.Event) {
			c.players.DispatchEvent(e)
		},
	}
}

// Start connects every configured node. Returns immediately; connection
// progress arrives as node events.
func (c *Client) Start(ctx context.Context) {
	for _, n := range c.pool.All() {
		n.Start(ctx)
	}
}

// Close destroys all players, disconnects all nodes and stops event
// delivery.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.gaugeReg != nil {
			_ = c.gaugeReg.Unregister()
		}
		c.players.DestroyAll("client shutdown")
		c.pool.CloseAll()
		c.bus.Emit(events.Destroy{})
		c.bus.Close()
	})
}

// Subscribe registers a listener for all client events.
func (c *Client) Subscribe(fn events.Listener) { c.bus.Subscribe(fn) }

// Nodes returns the node pool.
func (c *Client) Nodes() *node.Pool { return c.pool }

// Players returns the player registry.
func (c *Client) Players() *player.Registry { return c.players }

// --- gateway.Handler ---

// HandleVoiceStateUpdate splices the bot's own voice-state packets into the
// handshake tracker. Other users' updates are ignored.
func (c *Client) HandleVoiceStateUpdate(guildID, userID, sessionID, channelID string) {
	if userID != c.gw.UserID() {
		return
	}
	c.bus.Emit(events.VoiceStateUpdate{GuildID: guildID, ChannelID: channelID, SessionID: sessionID})
	c.voice.HandleVoiceState(guildID, sessionID, channelID)
	if p := c.players.Get(guildID); p != nil {
		p.SetVoiceChannel(channelID)
	}
}

// HandleVoiceServerUpdate splices voice-server packets into the tracker.
func (c *Client) HandleVoiceServerUpdate(guildID, token, endpoint string) {
	c.bus.Emit(events.VoiceServerUpdate{GuildID: guildID, Endpoint: endpoint})
	c.voice.HandleVoiceServer(guildID, token, endpoint)
}

// --- player facade ---

// GetPlayer returns the guild's player or nil.
func (c *Client) GetPlayer(guildID string) *player.Player {
	return c.players.Get(guildID)
}

// DestroyPlayer tears down the guild's player.
func (c *Client) DestroyPlayer(guildID string) bool {
	return c.players.Destroy(guildID, "destroy requested")
}

// Join creates (or fetches) the guild's player and connects it to the
// voice channel.
func (c *Client) Join(ctx context.Context, guildID, channelID string) (*player.Player, error) {
	p, err := c.playerFor(guildID, channelID, "")
	if err != nil {
		return nil, err
	}
	p.SetVoiceChannel(channelID)
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Leave disconnects the guild's player from voice. The player survives.
func (c *Client) Leave(ctx context.Context, guildID string) error {
	p := c.players.Get(guildID)
	if p == nil {
		return node.ErrNotFound
	}
	return p.Disconnect(ctx)
}

func (c *Client) playerFor(guildID, voiceChannelID, textChannelID string) (*player.Player, error) {
	opts := c.cfg.PlayerDefaults
	opts.GuildID = guildID
	if voiceChannelID != "" {
		opts.VoiceChannelID = voiceChannelID
	}
	if textChannelID != "" {
		opts.TextChannelID = textChannelID
	}
	return c.players.Create(opts)
}

// PlayRequest describes one play command. Exactly one of Track, Tracks,
// Result or Query should be set; they are consulted in that order.
type PlayRequest struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	Requester      *track.Requester

	Track  *track.Track
	Tracks []track.Track
	Result *LoadResult
	Query  string

	// StartTimeMs begins the first track mid-way.
	StartTimeMs int64
}

// Play resolves the request to tracks, obtains the guild's player, joins
// voice and enqueues. An idle player starts playing immediately.
func (c *Client) Play(ctx context.Context, req PlayRequest) (*player.Player, error) {
	if req.GuildID == "" {
		return nil, fmt.Errorf("tidelink: play needs a guild ID")
	}

	var (
		tracks   []track.Track
		playlist string
	)
	switch {
	case req.Track != nil:
		tracks = []track.Track{*req.Track}
	case len(req.Tracks) > 0:
		tracks = req.Tracks
	case req.Result != nil:
		tracks = req.Result.Tracks
		if req.Result.Playlist != nil {
			playlist = req.Result.Playlist.Name
		}
	case strings.TrimSpace(req.Query) != "":
		res, err := c.Search(ctx, req.Query, SearchOptions{Requester: req.Requester})
		if err != nil {
			return nil, err
		}
		if res.Type == protocol.LoadError {
			return nil, fmt.Errorf("tidelink: load failed: %s", res.Error.Message)
		}
		if len(res.Tracks) == 0 {
			return nil, fmt.Errorf("tidelink: nothing found for %q", req.Query)
		}
		if res.Playlist != nil {
			tracks = res.Tracks
			playlist = res.Playlist.Name
		} else {
			tracks = res.Tracks[:1]
		}
	default:
		return nil, fmt.Errorf("tidelink: play needs a track, tracks, result or query")
	}

	if req.Requester != nil {
		for i := range tracks {
			tracks[i].Requester = req.Requester
		}
	}

	p, err := c.playerFor(req.GuildID, req.VoiceChannelID, req.TextChannelID)
	if err != nil {
		return nil, err
	}
	wasActive := p.Playing() || p.Paused()

	switch {
	case playlist != "":
		if _, err := p.AddTracksBatched(ctx, tracks, playlist); err != nil {
			return nil, err
		}
	case len(tracks) > 1:
		if _, err := p.AddTracks(tracks); err != nil {
			return nil, err
		}
	default:
		if err := p.AddTrack(tracks[0]); err != nil {
			return nil, err
		}
	}

	if !wasActive {
		if _, err := p.Play(ctx, nil, player.PlayOptions{StartTimeMs: req.StartTimeMs}); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// RestorePlayers rebuilds players from stored snapshots. Returns how many
// were restored; individual failures are logged and skipped.
func (c *Client) RestorePlayers(ctx context.Context) (int, error) {
	if c.cfg.Store == nil {
		return 0, nil
	}
	all, err := c.cfg.Store.All(ctx, c.cfg.Prefix)
	if err != nil {
		return 0, fmt.Errorf("tidelink: list snapshots: %w", err)
	}
	restored := 0
	for key, raw := range all {
		var snap player.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			c.log.Warn("corrupt player snapshot, skipping", "key", key, "error", err)
			continue
		}
		if snap.GuildID == "" || snap.VoiceChannelID == "" {
			c.log.Debug("snapshot without voice target, skipping", "key", key)
			continue
		}
		// Unknown listener counts restore optimistically; a player for a
		// vanished guild fails its first play and idles out.
		if c.gw.ListenerCount(snap.GuildID, snap.VoiceChannelID) < 0 {
			c.log.Debug("voice channel not observable, restoring anyway",
				"guild", snap.GuildID, "channel", snap.VoiceChannelID)
		}
		opts := snap.Options
		opts.GuildID = snap.GuildID
		opts.VoiceChannelID = snap.VoiceChannelID
		p, err := c.players.Create(opts)
		if err != nil {
			c.log.Warn("restore create failed", "guild", snap.GuildID, "error", err)
			continue
		}
		if err := p.RestoreFrom(ctx, snap); err != nil {
			c.log.Warn("restore failed", "guild", snap.GuildID, "error", err)
			continue
		}
		restored++
	}
	if restored > 0 {
		c.log.Info("players restored from storage", "count", restored)
	}
	return restored, nil
}

// autoplaySearch backs player autoplay: a plain playback-engine search
// returning ranked candidates.
func (c *Client) autoplaySearch(ctx context.Context, query string) ([]track.Track, error) {
	res, err := c.Search(ctx, query, SearchOptions{})
	if err != nil {
		return nil, err
	}
	return res.Tracks, nil
}
