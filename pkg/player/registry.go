package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tidelink-audio/tidelink/pkg/events"
	"github.com/tidelink-audio/tidelink/pkg/gateway"
	"github.com/tidelink-audio/tidelink/pkg/node"
	"github.com/tidelink-audio/tidelink/pkg/protocol"
	"github.com/tidelink-audio/tidelink/pkg/storage"
	"github.com/tidelink-audio/tidelink/pkg/voice"
)

// RegistryConfig wires a Registry's collaborators.
type RegistryConfig struct {
	Pool    *node.Pool
	Gateway gateway.Gateway
	Voice   *voice.Tracker
	Bus     *events.Bus
	Log     *slog.Logger

	// Store persists player snapshots under Prefix+guildID. Nil disables
	// persistence.
	Store  storage.Store
	Prefix string

	// Search backs autoplay; wired by the orchestrator.
	Search SearchFunc
}

// Registry owns all players of a client, one per guild. Reads dominate
// writes; a RWMutex guards the map.
type Registry struct {
	cfg RegistryConfig
	log *slog.Logger

	mu      sync.RWMutex
	players map[string]*Player
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cfg:     cfg,
		log:     log,
		players: make(map[string]*Player),
	}
}

// Create returns the guild's existing player or allocates one on the best
// node for the region hint. Idempotent per guild: a second Create with
// different options returns the first player unchanged.
func (r *Registry) Create(opts Options) (*Player, error) {
	if opts.GuildID == "" {
		return nil, fmt.Errorf("player: guild ID must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[opts.GuildID]; ok {
		return p, nil
	}

	n, err := r.cfg.Pool.PickForNewPlayer(opts.Region)
	if err != nil {
		return nil, err
	}
	p, err := New(opts, Deps{
		Node:     n,
		Gateway:  r.cfg.Gateway,
		Voice:    r.cfg.Voice,
		Bus:      r.cfg.Bus,
		Log:      r.log,
		Store:    r.cfg.Store,
		StoreKey: r.cfg.Prefix + opts.GuildID,
		Search:   r.cfg.Search,
		PickNode: r.pickExcluding,
	})
	if err != nil {
		return nil, err
	}
	r.players[opts.GuildID] = p
	if r.cfg.Bus != nil {
		r.cfg.Bus.Emit(events.PlayerCreate{GuildID: opts.GuildID})
	}
	return p, nil
}

// pickExcluding chooses the lowest-score connected node other than the
// excluded one. Used as the players' migration target picker.
func (r *Registry) pickExcluding(exclude string) (Worker, error) {
	var best *node.Node
	bestScore := 0.0
	for _, n := range r.cfg.Pool.Connected() {
		if n.Identifier() == exclude {
			continue
		}
		if s := n.Score(); best == nil || s < bestScore {
			best, bestScore = n, s
		}
	}
	if best == nil {
		return nil, node.ErrNoNodeAvailable
	}
	return best, nil
}

// Get returns the guild's player or nil.
func (r *Registry) Get(guildID string) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.players[guildID]
}

// Has reports whether the guild has a player.
func (r *Registry) Has(guildID string) bool { return r.Get(guildID) != nil }

// All returns every player.
func (r *Registry) All() []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	return out
}

// Playing returns the players with an actively playing track.
func (r *Registry) Playing() []*Player {
	var out []*Player
	for _, p := range r.All() {
		if p.Playing() {
			out = append(out, p)
		}
	}
	return out
}

// Idle returns the players without an actively playing track.
func (r *Registry) Idle() []*Player {
	var out []*Player
	for _, p := range r.All() {
		if !p.Playing() {
			out = append(out, p)
		}
	}
	return out
}

// Size returns the player count.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Destroy tears down and unregisters the guild's player.
func (r *Registry) Destroy(guildID, reason string) bool {
	r.mu.Lock()
	p, ok := r.players[guildID]
	delete(r.players, guildID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	p.Destroy(reason)
	return true
}

// DestroyAll tears down every player.
func (r *Registry) DestroyAll(reason string) {
	r.mu.Lock()
	ps := r.players
	r.players = make(map[string]*Player)
	r.mu.Unlock()
	for _, p := range ps {
		p.Destroy(reason)
	}
}

// ForNode returns the players currently bound to the named node.
func (r *Registry) ForNode(identifier string) []*Player {
	var out []*Player
	for _, p := range r.All() {
		if p.Node().Identifier() == identifier {
			out = append(out, p)
		}
	}
	return out
}

// MigrateFrom moves every player bound to the named node to the best
// remaining node. Players that cannot be placed stay bound and alive; the
// health monitor retries once capacity returns.
func (r *Registry) MigrateFrom(ctx context.Context, identifier string) {
	bound := r.ForNode(identifier)
	if len(bound) == 0 {
		return
	}
	r.log.Warn("migrating players off node", "node", identifier, "players", len(bound))
	for _, p := range bound {
		target, err := r.pickExcluding(identifier)
		if err != nil {
			r.log.Warn("no migration target, player stays bound",
				"guild", p.GuildID(), "node", identifier)
			continue
		}
		if err := p.MoveToNode(ctx, target); err != nil {
			r.log.Warn("player migration failed", "guild", p.GuildID(), "error", err)
		}
	}
}

// DispatchEvent routes a worker lifecycle event to its guild's player.
func (r *Registry) DispatchEvent(e protocol.Event) {
	if p := r.Get(e.GuildID); p != nil {
		p.HandleEvent(e)
	}
}

// DispatchPlayerUpdate routes a worker position report.
func (r *Registry) DispatchPlayerUpdate(u protocol.PlayerUpdate) {
	if p := r.Get(u.GuildID); p != nil {
		p.HandlePlayerUpdate(u.State)
	}
}

// AggregateStats summarizes the registry for health endpoints.
type AggregateStats struct {
	Players int
	Playing int
	Paused  int
	Queued  int
}

// Aggregate computes totals across all players.
func (r *Registry) Aggregate() AggregateStats {
	var agg AggregateStats
	for _, p := range r.All() {
		s := p.GetStats()
		agg.Players++
		if s.Playing {
			agg.Playing++
		}
		if s.Paused {
			agg.Paused++
		}
		agg.Queued += s.QueueLen
	}
	return agg
}
