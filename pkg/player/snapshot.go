package player

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tidelink-audio/tidelink/internal/observe"
	"github.com/tidelink-audio/tidelink/pkg/protocol"
	"github.com/tidelink-audio/tidelink/pkg/storage"
	"github.com/tidelink-audio/tidelink/pkg/track"
)

// saveCoalesceWindow batches snapshot writes: rapid mutation bursts end up
// as one store write.
const saveCoalesceWindow = 200 * time.Millisecond

// Snapshot is the persisted form of a player, sufficient to rebuild it
// after a process restart.
type Snapshot struct {
	GuildID        string           `json:"guildId"`
	VoiceChannelID string           `json:"voiceChannelId,omitempty"`
	TextChannelID  string           `json:"textChannelId,omitempty"`
	State          State            `json:"state"`
	Playing        bool             `json:"playing"`
	Paused         bool             `json:"paused"`
	Volume         int              `json:"volume"`
	PositionMs     int64            `json:"positionMs"`
	Options        Options          `json:"options"`
	Loop           track.LoopMode   `json:"loop"`
	Current        *track.Track     `json:"current,omitempty"`
	Queue          []track.Track    `json:"queue"`
	History        []track.Track    `json:"history,omitempty"`
	Filters        protocol.Filters `json:"filters,omitempty"`
	Node           string           `json:"node"`
	CreatedAtMs    int64            `json:"createdAtMs"`
}

// Snapshot captures the player's persistable state.
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		GuildID:        p.opts.GuildID,
		VoiceChannelID: p.voiceChannelID,
		TextChannelID:  p.opts.TextChannelID,
		State:          p.state,
		Playing:        p.state == StatePlaying && !p.paused,
		Paused:         p.paused,
		Volume:         p.volume,
		PositionMs:     p.positionLocked(),
		Options:        p.opts,
		Loop:           p.queue.Loop(),
		Queue:          p.queue.Upcoming(),
		History:        p.queue.History(),
		Filters:        p.activeFilters,
		Node:           p.node.Identifier(),
		CreatedAtMs:    p.createdAt.UnixMilli(),
	}
	if cur, ok := p.queue.Current(); ok {
		c := cur
		snap.Current = &c
	}
	return snap
}

func (p *Player) takeSnapshot() ([]byte, error) {
	return json.Marshal(p.Snapshot())
}

// RestoreFrom rebuilds the player from a snapshot: volume, queue, loop and
// filters are restored, then the saved current track resumes at its saved
// position. Filters ride along in the play patch, so restore issues a
// single flush.
func (p *Player) RestoreFrom(ctx context.Context, snap Snapshot) error {
	release, err := p.admit()
	if err != nil {
		return err
	}
	defer release()

	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	if snap.Volume >= 0 && snap.Volume <= maxVolume {
		p.volume = snap.Volume
	}
	if snap.VoiceChannelID != "" {
		p.voiceChannelID = snap.VoiceChannelID
	}
	p.queue.SetUpcoming(snap.Queue)
	p.queue.SetHistory(snap.History)
	if snap.Loop.IsValid() {
		_ = p.queue.SetLoop(snap.Loop)
	}
	p.activeFilters = snap.Filters
	p.fc.SetActive(snap.Filters)
	if snap.CreatedAtMs > 0 {
		p.createdAt = time.UnixMilli(snap.CreatedAtMs)
	}
	if snap.Current != nil {
		p.queue.SetCurrent(*snap.Current)
	}
	p.mu.Unlock()
	p.save()

	if snap.Current == nil || !snap.Current.Playable() {
		p.scheduleIdle()
		return nil
	}
	return p.startTrack(ctx, *snap.Current, PlayOptions{
		StartTimeMs: snap.PositionMs,
		Paused:      snap.Paused,
	})
}

// saver coalesces snapshot writes within a 200ms window and performs them
// off the caller's goroutine, so persistence never blocks playback.
type saver struct {
	store   storage.Store
	key     string
	take    func() ([]byte, error)
	warn    func(msg string, err error)
	metrics *observe.Metrics

	mu      sync.Mutex
	pending bool
	stopped bool
	timer   *time.Timer
}

func newSaver(store storage.Store, key string, take func() ([]byte, error), warn func(string, error)) *saver {
	return &saver{store: store, key: key, take: take, warn: warn, metrics: observe.DefaultMetrics()}
}

// request schedules a write unless one is already pending. The snapshot is
// taken at fire time so the write reflects the latest state.
func (s *saver) request() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.pending {
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(saveCoalesceWindow, s.fire)
}

func (s *saver) fire() {
	s.mu.Lock()
	s.pending = false
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	data, err := s.take()
	if err != nil {
		s.warn("snapshot serialize failed", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = s.store.Set(ctx, s.key, data)
	s.metrics.RecordSnapshotSave(ctx, err == nil)
	if err != nil {
		s.warn("snapshot save failed", err)
	}
}

func (s *saver) stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}

func (s *saver) delete(ctx context.Context) {
	if err := s.store.Delete(ctx, s.key); err != nil {
		s.warn("snapshot delete failed", err)
	}
}
