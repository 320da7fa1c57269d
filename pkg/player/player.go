// Package player implements the per-guild playback state machine: the play
// pipeline, pause/seek/volume/loop controls, stuck recovery, a periodic
// health monitor, centralized idle handling and node migration. A Registry
// owns all players of a client and routes worker events to them.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidelink-audio/tidelink/internal/observe"
	"github.com/tidelink-audio/tidelink/pkg/events"
	"github.com/tidelink-audio/tidelink/pkg/filters"
	"github.com/tidelink-audio/tidelink/pkg/gateway"
	"github.com/tidelink-audio/tidelink/pkg/protocol"
	"github.com/tidelink-audio/tidelink/pkg/storage"
	"github.com/tidelink-audio/tidelink/pkg/track"
	"github.com/tidelink-audio/tidelink/pkg/voice"
)

// State is a player's lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StatePlaying    State = "playing"
	StatePaused     State = "paused"
	StateStuck      State = "stuck"
	StateErrored    State = "errored"
	StateDestroyed  State = "destroyed"
)

// Tunables of the state machine.
const (
	defaultVolume          = 80
	maxVolume              = 1000
	stuckRetrySpacing      = 2 * time.Second
	positionOptimismMs     = 200
	progressHealthyRatio   = 0.9
	commandQueueSize       = 16
	defaultBatchSize       = 100
	defaultHistorySize     = 50
	defaultMaxQueueSize    = 1000
	defaultMaxPlaylistSize = 500
	defaultStuckRetries    = 3
	defaultMonitorInterval = 15 * time.Second
	defaultAutoLeaveDelay  = 5 * time.Minute
	defaultEmptyDelay      = time.Minute
	defaultIdleTimeout     = 5 * time.Minute
)

// credentialWait bounds how long a play waits for the voice handshake.
var credentialWait = 2 * time.Second

// Worker is the subset of a node the player drives. Satisfied by
// [node.Node]; tests use fakes.
type Worker interface {
	Identifier() string
	Connected() bool
	LoadTracks(ctx context.Context, identifier string) (*protocol.LoadResponse, error)
	UpdatePlayer(ctx context.Context, guildID string, patch protocol.UpdatePlayer, noReplace bool) (*protocol.PlayerInfo, error)
	DestroyPlayer(ctx context.Context, guildID string) error
}

// Options configures one player. Zero values take the documented defaults.
type Options struct {
	GuildID        string `json:"guildId"`
	VoiceChannelID string `json:"voiceChannelId,omitempty"`
	TextChannelID  string `json:"textChannelId,omitempty"`

	// Region is a placement hint for node selection.
	Region string `json:"region,omitempty"`

	SelfMute bool `json:"selfMute,omitempty"`
	SelfDeaf bool `json:"selfDeaf,omitempty"`

	// Volume is the initial volume in [0, 1000]. Defaults to 80.
	Volume int `json:"volume,omitempty"`

	// AutoPlay searches for a related track when the queue empties.
	AutoPlay bool `json:"autoPlay,omitempty"`

	// AutoLeave leaves voice after AutoLeaveDelay of an empty queue.
	// Defaults to true / 5m.
	AutoLeave      *bool         `json:"autoLeave,omitempty"`
	AutoLeaveDelay time.Duration `json:"autoLeaveDelay,omitempty"`

	// LeaveOnEmpty leaves voice after the channel had no listeners for
	// LeaveOnEmptyDelay. Defaults to false / 1m.
	LeaveOnEmpty      bool          `json:"leaveOnEmpty,omitempty"`
	LeaveOnEmptyDelay time.Duration `json:"leaveOnEmptyDelay,omitempty"`

	// LeaveOnEnd leaves voice immediately when the queue ends.
	LeaveOnEnd bool `json:"leaveOnEnd,omitempty"`

	// IdleTimeout destroys the player after this long idle; negative
	// disables. Defaults to 5m.
	IdleTimeout time.Duration `json:"idleTimeout,omitempty"`

	// HistorySize caps the per-player history. Defaults to 50.
	HistorySize int `json:"historySize,omitempty"`

	// MaxQueueSize and MaxPlaylistSize cap enqueues. Default 1000 / 500.
	MaxQueueSize    int `json:"maxQueueSize,omitempty"`
	MaxPlaylistSize int `json:"maxPlaylistSize,omitempty"`

	// AllowDuplicates permits the same title+author twice in the queue.
	// Defaults to true.
	AllowDuplicates *bool `json:"allowDuplicates,omitempty"`

	// RetryOnStuck runs the stuck recovery protocol. Defaults to true,
	// with MaxStuckRetries 3.
	RetryOnStuck    *bool `json:"retryOnStuck,omitempty"`
	MaxStuckRetries int   `json:"maxStuckRetries,omitempty"`

	// HealthMonitor runs the periodic self-check. Defaults to true / 15s.
	HealthMonitor         *bool         `json:"healthMonitor,omitempty"`
	HealthMonitorInterval time.Duration `json:"healthMonitorInterval,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (o Options) withDefaults() Options {
	if o.Volume == 0 {
		o.Volume = defaultVolume
	}
	if o.AutoLeaveDelay <= 0 {
		o.AutoLeaveDelay = defaultAutoLeaveDelay
	}
	if o.LeaveOnEmptyDelay <= 0 {
		o.LeaveOnEmptyDelay = defaultEmptyDelay
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = defaultIdleTimeout
	}
	if o.HistorySize <= 0 {
		o.HistorySize = defaultHistorySize
	}
	if o.MaxQueueSize <= 0 {
		o.MaxQueueSize = defaultMaxQueueSize
	}
	if o.MaxPlaylistSize <= 0 {
		o.MaxPlaylistSize = defaultMaxPlaylistSize
	}
	if o.MaxStuckRetries <= 0 {
		o.MaxStuckRetries = defaultStuckRetries
	}
	if o.HealthMonitorInterval <= 0 {
		o.HealthMonitorInterval = defaultMonitorInterval
	}
	return o
}

// SearchFunc resolves a free-text query to candidate tracks. Used by
// autoplay; wired by the orchestrator.
type SearchFunc func(ctx context.Context, query string) ([]track.Track, error)

// PickNodeFunc returns a migration target, excluding the named node.
type PickNodeFunc func(exclude string) (Worker, error)

// Deps are the player's collaborators.
type Deps struct {
	Node    Worker
	Gateway gateway.Gateway
	Voice   *voice.Tracker
	Bus     *events.Bus
	Log     *slog.Logger

	// Store receives snapshots under StoreKey. Nil disables persistence.
	Store    storage.Store
	StoreKey string

	Search   SearchFunc
	PickNode PickNodeFunc
}

// Player is the per-guild playback state machine. All exported methods are
// safe for concurrent use; commands beyond the bounded admission window
// fail with [ErrBusy].
type Player struct {
	opts     Options
	gw       gateway.Gateway
	voice    *voice.Tracker
	bus      *events.Bus
	log      *slog.Logger
	searchFn SearchFunc
	pickNode PickNodeFunc
	saver    *saver
	metrics  *observe.Metrics

	// tickets bounds command admission; restMu serializes all worker REST
	// traffic for this guild.
	tickets chan struct{}
	restMu  sync.Mutex

	// sleep is replaced in tests to skip recovery spacing.
	sleep func(ctx context.Context, d time.Duration) error

	mu             sync.Mutex
	state          State
	node           Worker
	queue          *track.Queue
	activeFilters  protocol.Filters
	volume         int
	paused         bool
	autoPlay       bool
	positionMs     int64
	pendingStartMs int64
	posAt          time.Time
	voiceChannelID string
	createdAt      time.Time
	stuckRetries   int
	migrating      bool
	idleGen        int
	idleTimer      *time.Timer
	healthTrack    string
	healthPos      int64
	healthAt       time.Time

	fc *filters.Controller

	healthStop chan struct{}
	destroyed  sync.Once
}

// New creates a player bound to deps.Node. The health monitor starts
// immediately when enabled.
func New(opts Options, deps Deps) (*Player, error) {
	if opts.GuildID == "" {
		return nil, fmt.Errorf("player: guild ID must not be empty")
	}
	if deps.Node == nil {
		return nil, fmt.Errorf("player %s: no node", opts.GuildID)
	}
	if opts.Volume < 0 || opts.Volume > maxVolume {
		return nil, fmt.Errorf("player %s: %w", opts.GuildID, ErrInvalidVolume)
	}
	o := opts.withDefaults()

	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	p := &Player{
		opts:           o,
		gw:             deps.Gateway,
		voice:          deps.Voice,
		bus:            deps.Bus,
		log:            log.With("guild", o.GuildID),
		searchFn:       deps.Search,
		pickNode:       deps.PickNode,
		metrics:        observe.DefaultMetrics(),
		tickets:        make(chan struct{}, commandQueueSize),
		sleep:          sleepCtx,
		state:          StateIdle,
		node:           deps.Node,
		volume:         o.Volume,
		autoPlay:       o.AutoPlay,
		voiceChannelID: o.VoiceChannelID,
		createdAt:      time.Now(),
		healthStop:     make(chan struct{}),
	}
	p.queue = track.NewQueue(track.QueueConfig{
		HistorySize:     o.HistorySize,
		MaxSize:         o.MaxQueueSize,
		AllowDuplicates: o.AllowDuplicates,
	})
	p.fc = filters.NewController(p.sendFilters)
	if deps.Store != nil {
		p.saver = newSaver(deps.Store, deps.StoreKey, p.takeSnapshot, p.warn)
	}
	if boolOr(o.HealthMonitor, true) {
		go p.monitor()
	}
	return p, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GuildID returns the guild this player belongs to.
func (p *Player) GuildID() string { return p.opts.GuildID }

// Options returns the player's effective configuration.
func (p *Player) Options() Options { return p.opts }

// State returns the current lifecycle phase.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Node returns the currently bound worker.
func (p *Player) Node() Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.node
}

// Playing reports whether a track is actively playing (not paused).
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StatePlaying && !p.paused
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Volume returns the current volume.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// VoiceChannelID returns the bound voice channel, possibly empty.
func (p *Player) VoiceChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceChannelID
}

// Current returns the current track.
func (p *Player) Current() (track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Current()
}

// Upcoming returns a copy of the queued tracks.
func (p *Player) Upcoming() []track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Upcoming()
}

// History returns a copy of the played tracks, oldest first.
func (p *Player) History() []track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.History()
}

// QueueLen returns the number of upcoming tracks.
func (p *Player) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Loop returns the loop mode.
func (p *Player) Loop() track.LoopMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Loop()
}

// CurrentPositionMs extrapolates the playback position from the last
// worker report, with a small optimistic offset for buffering lag, clamped
// to the track duration. All position consumers go through this method.
func (p *Player) CurrentPositionMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() int64 {
	pos := p.positionMs
	if p.state == StatePlaying && !p.paused && !p.posAt.IsZero() {
		pos += time.Since(p.posAt).Milliseconds() + positionOptimismMs
	}
	if cur, ok := p.queue.Current(); ok && !cur.IsStream && cur.DurationMs > 0 && pos > cur.DurationMs {
		pos = cur.DurationMs
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// admit takes a command ticket and the per-guild REST lock. The returned
// release must be called when the command finishes.
func (p *Player) admit() (func(), error) {
	select {
	case p.tickets <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	p.restMu.Lock()
	return func() {
		p.restMu.Unlock()
		<-p.tickets
	}, nil
}

// emit publishes e unless the player is destroyed.
func (p *Player) emit(e events.Event) {
	if p.bus == nil {
		return
	}
	p.mu.Lock()
	dead := p.state == StateDestroyed
	p.mu.Unlock()
	if dead {
		if _, ok := e.(events.PlayerDestroy); !ok {
			return
		}
	}
	p.bus.Emit(e)
}

func (p *Player) warn(msg string, err error) {
	p.log.Warn(msg, "error", err)
	p.emit(events.Warn{Message: msg, Err: err})
}

// save requests a coalesced snapshot write. Never blocks playback.
func (p *Player) save() {
	if p.saver != nil {
		p.saver.request()
	}
}

// --- worker event intake (called from the node's read goroutine) ---

// HandlePlayerUpdate ingests a worker position report.
func (p *Player) HandlePlayerUpdate(s protocol.PlayerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return
	}
	p.positionMs = s.PositionMs
	p.posAt = time.Now()
}

// HandleEvent dispatches a per-guild lifecycle event from the worker.
// Recovery work is handed off to new goroutines so the node's read loop
// never blocks.
func (p *Player) HandleEvent(e protocol.Event) {
	if p.State() == StateDestroyed {
		return
	}
	switch e.Type {
	case protocol.EventTrackStart:
		p.onTrackStart(e)
	case protocol.EventTrackEnd:
		p.onTrackEnd(e)
	case protocol.EventTrackException:
		p.onTrackException(e)
	case protocol.EventTrackStuck:
		p.onTrackStuck(e)
	case protocol.EventWebSocketClosed:
		p.log.Warn("worker voice websocket closed",
			"code", e.Code, "reason", e.Reason, "byRemote", e.ByRemote)
	default:
		p.log.Debug("unknown worker event", "type", string(e.Type))
	}
}

func (p *Player) onTrackStart(e protocol.Event) {
	p.mu.Lock()
	if p.paused {
		p.state = StatePaused
	} else {
		p.state = StatePlaying
	}
	p.stuckRetries = 0
	// A start issued mid-track (snapshot restore, migration re-issue)
	// begins at the requested offset, not zero.
	p.positionMs = p.pendingStartMs
	p.pendingStartMs = 0
	p.posAt = time.Now()
	cur, ok := p.queue.Current()
	p.mu.Unlock()

	if !ok && e.Track != nil {
		cur = track.FromWire(*e.Track, nil)
	}
	p.cancelIdle()
	p.metrics.RecordTrackStart(context.Background())
	p.emit(events.TrackStart{GuildID: p.opts.GuildID, Track: cur})
	p.save()
}

// onTrackEnd advances the queue for natural ends. Ends reported for a
// track that is no longer current (the worker acknowledging a replace)
// are ignored.
func (p *Player) onTrackEnd(e protocol.Event) {
	p.mu.Lock()
	cur, hasCur := p.queue.Current()
	if e.Track != nil && hasCur && e.Track.Encoded != cur.Encoded {
		p.mu.Unlock()
		return
	}
	ended := cur
	if !hasCur && e.Track != nil {
		ended = track.FromWire(*e.Track, nil)
	}
	p.mu.Unlock()

	if e.Reason == protocol.EndLoadFailed {
		p.metrics.RecordPlaybackError(context.Background(), "loadFailed")
	}
	p.emit(events.TrackEnd{GuildID: p.opts.GuildID, Track: ended, Reason: e.Reason})

	if e.Reason.MayStartNext() {
		go p.playNext(context.Background())
		return
	}
	p.mu.Lock()
	if p.state != StateDestroyed {
		p.state = StateIdle
	}
	p.mu.Unlock()
	p.scheduleIdle()
}

func (p *Player) onTrackException(e protocol.Event) {
	p.mu.Lock()
	cur, _ := p.queue.Current()
	p.state = StateErrored
	p.mu.Unlock()

	exc := protocol.Exception{Message: "unknown playback exception"}
	if e.Exception != nil {
		exc = *e.Exception
	}
	p.log.Error("track raised exception",
		"title", cur.Title, "message", exc.Message, "severity", exc.Severity)
	p.metrics.RecordPlaybackError(context.Background(), "exception")
	p.emit(events.TrackError{GuildID: p.opts.GuildID, Track: cur, Exception: exc})
	go p.playNext(context.Background())
}

func (p *Player) onTrackStuck(e protocol.Event) {
	p.mu.Lock()
	cur, ok := p.queue.Current()
	p.state = StateStuck
	retry := boolOr(p.opts.RetryOnStuck, true)
	p.mu.Unlock()

	p.metrics.RecordPlaybackError(context.Background(), "stuck")
	p.emit(events.TrackStuck{GuildID: p.opts.GuildID, Track: cur, ThresholdMs: e.ThresholdMs})
	if !ok {
		return
	}
	if retry {
		go p.recoverStuck(context.Background())
	} else {
		go p.playNext(context.Background())
	}
}
