package player

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/tidelink-audio/tidelink/pkg/events"
	"github.com/tidelink-audio/tidelink/pkg/protocol"
	"github.com/tidelink-audio/tidelink/pkg/track"
)

// PlayOptions modifies a single play call.
type PlayOptions struct {
	// StartTimeMs begins playback mid-track.
	StartTimeMs int64

	// NoReplace makes the worker keep an already playing track.
	NoReplace bool

	// Paused starts the track paused.
	Paused bool
}

// Play starts the given track, or the next queued one when t is nil.
// Returns false without error when nothing is queued.
func (p *Player) Play(ctx context.Context, t *track.Track, opts PlayOptions) (bool, error) {
	release, err := p.admit()
	if err != nil {
		return false, err
	}
	defer release()

	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return false, ErrDestroyed
	}
	var chosen track.Track
	if t == nil {
		c, ok := p.queue.Shift()
		if !ok {
			p.mu.Unlock()
			return false, nil
		}
		chosen = c
	} else {
		chosen = *t
		p.queue.ReplaceCurrent(chosen)
	}
	p.mu.Unlock()

	if err := p.startTrack(ctx, chosen, opts); err != nil {
		return false, err
	}
	return true, nil
}

// startTrack runs the play pipeline for a track that is already current.
// Caller holds restMu.
func (p *Player) startTrack(ctx context.Context, t track.Track, opts PlayOptions) error {
	if !t.Playable() {
		return fmt.Errorf("player %s: track %q has no encoded form", p.opts.GuildID, t.Title)
	}
	cred, err := p.ensureConnected(ctx)
	if err != nil {
		p.mu.Lock()
		p.state = StateErrored
		p.mu.Unlock()
		p.emit(events.Error{GuildID: p.opts.GuildID, Err: err})
		return err
	}

	p.mu.Lock()
	n := p.node
	vol := p.volume
	f := p.activeFilters
	p.mu.Unlock()

	enc := &t.Encoded
	pos := opts.StartTimeMs
	paused := opts.Paused
	patch := protocol.UpdatePlayer{
		EncodedTrack: &enc,
		PositionMs:   &pos,
		Volume:       &vol,
		Paused:       &paused,
		Voice:        &cred,
	}
	if !f.IsZero() {
		patch.Filters = &f
	}
	if _, err := n.UpdatePlayer(ctx, p.opts.GuildID, patch, opts.NoReplace); err != nil {
		p.mu.Lock()
		p.state = StateErrored
		p.mu.Unlock()
		p.log.Error("update player failed", "node", n.Identifier(), "title", t.Title, "error", err)
		p.emit(events.Error{GuildID: p.opts.GuildID, Err: err})
		return fmt.Errorf("player %s: play %q: %w", p.opts.GuildID, t.Title, err)
	}

	p.mu.Lock()
	p.paused = paused
	p.positionMs = opts.StartTimeMs
	p.pendingStartMs = opts.StartTimeMs
	p.posAt = time.Now()
	if paused {
		p.state = StatePaused
	} else {
		p.state = StatePlaying
	}
	p.mu.Unlock()
	p.cancelIdle()
	p.save()
	return nil
}

// ensureConnected returns the guild's voice credential, triggering a voice
// join and waiting a bounded time when none is present yet.
func (p *Player) ensureConnected(ctx context.Context) (protocol.VoiceState, error) {
	if cred, ok := p.voice.Credential(p.opts.GuildID); ok {
		return cred, nil
	}
	p.mu.Lock()
	ch := p.voiceChannelID
	if p.state == StateIdle || p.state == StateErrored {
		p.state = StateConnecting
	}
	p.mu.Unlock()
	if ch == "" {
		return protocol.VoiceState{}, ErrNoVoiceChannel
	}
	if err := p.gw.SendVoiceUpdate(p.opts.GuildID, ch, p.opts.SelfMute, p.opts.SelfDeaf); err != nil {
		return protocol.VoiceState{}, fmt.Errorf("player %s: voice join: %w", p.opts.GuildID, err)
	}
	p.emit(events.PlayerJoin{GuildID: p.opts.GuildID, ChannelID: ch})

	wctx, cancel := context.WithTimeout(ctx, credentialWait)
	defer cancel()
	cred, err := p.voice.WaitReady(wctx, p.opts.GuildID)
	if err != nil {
		return protocol.VoiceState{}, fmt.Errorf("%w: %v", ErrVoiceLost, err)
	}
	return cred, nil
}

// Connect joins the configured voice channel without starting playback.
func (p *Player) Connect(ctx context.Context) error {
	release, err := p.admit()
	if err != nil {
		return err
	}
	defer release()
	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	if _, err := p.ensureConnected(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	if p.state == StateConnecting || p.state == StateIdle {
		p.state = StateConnected
	}
	p.mu.Unlock()
	return nil
}

// Disconnect leaves voice and stops the worker-side track. The player and
// its queue survive.
func (p *Player) Disconnect(ctx context.Context) error {
	release, err := p.admit()
	if err != nil {
		return err
	}
	defer release()
	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	return p.leaveLocked(ctx, "disconnect requested")
}

// leaveLocked leaves voice. Caller holds restMu.
func (p *Player) leaveLocked(ctx context.Context, reason string) error {
	p.mu.Lock()
	ch := p.voiceChannelID
	n := p.node
	p.queue.ClearCurrent()
	if p.state != StateDestroyed {
		p.state = StateIdle
	}
	p.paused = false
	p.mu.Unlock()

	var null *string
	if n.Connected() {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if _, err := n.UpdatePlayer(sctx, p.opts.GuildID, protocol.UpdatePlayer{EncodedTrack: &null}, false); err != nil {
			p.log.Debug("stop on leave failed", "error", err)
		}
		cancel()
	}
	if err := p.gw.SendVoiceUpdate(p.opts.GuildID, "", false, false); err != nil {
		return fmt.Errorf("player %s: voice leave: %w", p.opts.GuildID, err)
	}
	p.log.Info("left voice channel", "channel", ch, "reason", reason)
	p.emit(events.PlayerLeave{GuildID: p.opts.GuildID, ChannelID: ch})
	return nil
}

// SetVoiceChannel retargets future joins. Takes effect on the next connect.
func (p *Player) SetVoiceChannel(channelID string) {
	p.mu.Lock()
	p.voiceChannelID = channelID
	p.mu.Unlock()
}

// playNext acquires the REST lock and advances to the next track.
func (p *Player) playNext(ctx context.Context) {
	p.restMu.Lock()
	defer p.restMu.Unlock()
	p.playNextLocked(ctx)
}

// playNextLocked shifts the queue (consulting autoplay on exhaustion) and
// starts the result. Caller holds restMu.
func (p *Player) playNextLocked(ctx context.Context) {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return
	}
	next, ok := p.queue.Shift()
	p.mu.Unlock()

	if !ok {
		if t, found := p.autoplayPick(ctx); found {
			p.mu.Lock()
			p.queue.ReplaceCurrent(t)
			p.mu.Unlock()
			next, ok = t, true
		}
	}
	if !ok {
		p.emit(events.QueueEnd{GuildID: p.opts.GuildID})
		p.mu.Lock()
		if p.state != StateDestroyed {
			p.state = StateIdle
		}
		p.mu.Unlock()
		p.save()
		p.scheduleIdle()
		return
	}
	if err := p.startTrack(ctx, next, PlayOptions{}); err != nil {
		p.log.Warn("next track failed to start", "title", next.Title, "error", err)
	}
}

// autoplayPick searches for a follow-up based on the last played track,
// skipping anything already in history or current.
func (p *Player) autoplayPick(ctx context.Context) (track.Track, bool) {
	p.mu.Lock()
	enabled := p.autoPlay && p.searchFn != nil
	hist := p.queue.History()
	cur, hasCur := p.queue.Current()
	p.mu.Unlock()
	if !enabled {
		return track.Track{}, false
	}
	seed, hasSeed := cur, hasCur
	if !hasSeed && len(hist) > 0 {
		seed, hasSeed = hist[len(hist)-1], true
	}
	if !hasSeed {
		return track.Track{}, false
	}

	query := strings.TrimSpace(seed.Title + " " + seed.Author)
	results, err := p.searchFn(ctx, query)
	if err != nil {
		p.warn("autoplay search failed", err)
		return track.Track{}, false
	}
	seen := make(map[string]bool, len(hist)+1)
	for _, h := range hist {
		seen[h.Identifier] = true
	}
	if hasCur {
		seen[cur.Identifier] = true
	}
	for _, r := range results {
		if !seen[r.Identifier] && r.Playable() {
			p.log.Debug("autoplay picked", "title", r.Title, "author", r.Author)
			return r, true
		}
	}
	return track.Track{}, false
}

// Pause suspends playback.
func (p *Player) Pause(ctx context.Context) error {
	return p.setPaused(ctx, true)
}

// Resume continues paused playback.
func (p *Player) Resume(ctx context.Context) error {
	return p.setPaused(ctx, false)
}

func (p *Player) setPaused(ctx context.Context, paused bool) error {
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
	if p.paused == paused {
		p.mu.Unlock()
		return nil
	}
	n := p.node
	pos := p.positionLocked()
	p.mu.Unlock()

	pv := paused
	if _, err := n.UpdatePlayer(ctx, p.opts.GuildID, protocol.UpdatePlayer{Paused: &pv}, false); err != nil {
		return fmt.Errorf("player %s: pause=%t: %w", p.opts.GuildID, paused, err)
	}

	p.mu.Lock()
	p.paused = paused
	p.positionMs = pos
	p.posAt = time.Now()
	if paused {
		p.state = StatePaused
	} else if p.state == StatePaused {
		p.state = StatePlaying
	}
	p.mu.Unlock()
	if paused {
		p.emit(events.Pause{GuildID: p.opts.GuildID})
	} else {
		p.emit(events.Resume{GuildID: p.opts.GuildID})
	}
	p.save()
	return nil
}

// Stop halts playback and clears the current track; the queue is kept.
func (p *Player) Stop(ctx context.Context) error {
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
	n := p.node
	p.mu.Unlock()

	var null *string
	if _, err := n.UpdatePlayer(ctx, p.opts.GuildID, protocol.UpdatePlayer{EncodedTrack: &null}, false); err != nil {
		return fmt.Errorf("player %s: stop: %w", p.opts.GuildID, err)
	}
	p.mu.Lock()
	p.queue.ClearCurrent()
	p.state = StateIdle
	p.paused = false
	p.positionMs = 0
	p.mu.Unlock()
	p.emit(events.Stop{GuildID: p.opts.GuildID})
	p.save()
	p.scheduleIdle()
	return nil
}

// Skip drops n-1 upcoming tracks and starts the next one. n < 1 is
// treated as 1.
func (p *Player) Skip(ctx context.Context, n int) error {
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
	if n > 1 {
		up := p.queue.Upcoming()
		if drop := n - 1; drop < len(up) {
			p.queue.SetUpcoming(up[drop:])
		} else {
			p.queue.Clear()
		}
	}
	p.mu.Unlock()
	p.playNextLocked(ctx)
	return nil
}

// Seek jumps to positionMs within the current track. Seeking at or past
// the duration skips to the next track.
func (p *Player) Seek(ctx context.Context, positionMs int64) error {
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
	cur, ok := p.queue.Current()
	p.mu.Unlock()
	if !ok {
		return ErrNoCurrentTrack
	}
	if cur.IsStream || !cur.IsSeekable {
		return ErrNotSeekable
	}
	if positionMs < 0 {
		positionMs = 0
	}
	if cur.DurationMs > 0 && positionMs >= cur.DurationMs {
		p.playNextLocked(ctx)
		return nil
	}
	if err := p.seekRaw(ctx, positionMs); err != nil {
		return err
	}
	p.emit(events.Seek{GuildID: p.opts.GuildID, PositionMs: positionMs})
	return nil
}

// seekRaw issues the position patch. Caller holds restMu.
func (p *Player) seekRaw(ctx context.Context, positionMs int64) error {
	p.mu.Lock()
	n := p.node
	p.mu.Unlock()
	pos := positionMs
	if _, err := n.UpdatePlayer(ctx, p.opts.GuildID, protocol.UpdatePlayer{PositionMs: &pos}, false); err != nil {
		return fmt.Errorf("player %s: seek to %dms: %w", p.opts.GuildID, positionMs, err)
	}
	p.mu.Lock()
	p.positionMs = positionMs
	p.posAt = time.Now()
	p.mu.Unlock()
	return nil
}

// SeekForward seeks d further into the current track.
func (p *Player) SeekForward(ctx context.Context, d time.Duration) error {
	return p.Seek(ctx, p.CurrentPositionMs()+d.Milliseconds())
}

// SeekBackward seeks d back, clamped to the track start.
func (p *Player) SeekBackward(ctx context.Context, d time.Duration) error {
	return p.Seek(ctx, p.CurrentPositionMs()-d.Milliseconds())
}

// SetVolume sets the playback volume in [0, 1000].
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > maxVolume {
		return fmt.Errorf("%w: %d", ErrInvalidVolume, volume)
	}
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
	n := p.node
	p.mu.Unlock()

	v := volume
	if _, err := n.UpdatePlayer(ctx, p.opts.GuildID, protocol.UpdatePlayer{Volume: &v}, false); err != nil {
		return fmt.Errorf("player %s: set volume %d: %w", p.opts.GuildID, volume, err)
	}
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	p.emit(events.VolumeChange{GuildID: p.opts.GuildID, Volume: volume})
	p.save()
	return nil
}

// SetLoop sets the queue loop mode.
func (p *Player) SetLoop(mode track.LoopMode) error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	err := p.queue.SetLoop(mode)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.emit(events.LoopChange{GuildID: p.opts.GuildID, Loop: mode})
	p.save()
	return nil
}

// Replay restarts the current track from the beginning.
func (p *Player) Replay(ctx context.Context) error {
	return p.restartAt(ctx, 0)
}

// Restart resumes the current track at the saved position.
func (p *Player) Restart(ctx context.Context) error {
	return p.restartAt(ctx, p.CurrentPositionMs())
}

func (p *Player) restartAt(ctx context.Context, positionMs int64) error {
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
	cur, ok := p.queue.Current()
	p.mu.Unlock()
	if !ok {
		return ErrNoCurrentTrack
	}
	return p.startTrack(ctx, cur, PlayOptions{StartTimeMs: positionMs})
}

// Back steps to the most recent history entry and plays it.
func (p *Player) Back(ctx context.Context) error {
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
	prev, ok := p.queue.BackOne()
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("player %s: history is empty", p.opts.GuildID)
	}
	return p.startTrack(ctx, prev, PlayOptions{})
}

// JumpTo discards all upcoming tracks before index i and plays the track
// at i.
func (p *Player) JumpTo(ctx context.Context, i int) error {
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
	up := p.queue.Upcoming()
	if i < 0 || i >= len(up) {
		p.mu.Unlock()
		return track.ErrIndexOutOfRange
	}
	p.queue.SetUpcoming(up[i:])
	p.mu.Unlock()
	p.playNextLocked(ctx)
	return nil
}

// --- queue mutation ---

// AddTrack enqueues one track.
func (p *Player) AddTrack(t track.Track) error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	err := p.queue.Add(t)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.emit(events.TrackAdd{GuildID: p.opts.GuildID, Track: t})
	p.save()
	return nil
}

// AddTracks enqueues a batch, stopping at the queue cap. Returns the
// number actually added.
func (p *Player) AddTracks(ts []track.Track) (int, error) {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return 0, ErrDestroyed
	}
	added, err := p.queue.AddMany(ts)
	p.mu.Unlock()
	if added > 0 {
		p.emit(events.TracksAdd{GuildID: p.opts.GuildID, Tracks: ts[:added]})
		p.save()
	}
	return added, err
}

// AddTracksBatched enqueues a large set in chunks, yielding the scheduler
// between chunks and reporting progress, so a huge playlist never starves
// other players. The playlist cap applies to the whole set.
func (p *Player) AddTracksBatched(ctx context.Context, ts []track.Track, playlistName string) (int, error) {
	if len(ts) > p.opts.MaxPlaylistSize {
		ts = ts[:p.opts.MaxPlaylistSize]
	}
	total := len(ts)
	added := 0
	for start := 0; start < total; start += defaultBatchSize {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		end := start + defaultBatchSize
		if end > total {
			end = total
		}
		p.mu.Lock()
		if p.state == StateDestroyed {
			p.mu.Unlock()
			return added, ErrDestroyed
		}
		n, err := p.queue.AddMany(ts[start:end])
		p.mu.Unlock()
		added += n
		if err != nil {
			p.emit(events.PlaylistProgress{GuildID: p.opts.GuildID, Added: added, Total: total})
			p.save()
			return added, err
		}
		p.emit(events.PlaylistProgress{GuildID: p.opts.GuildID, Added: added, Total: total})
		runtime.Gosched()
	}
	if added > 0 {
		p.emit(events.TrackAddPlaylist{GuildID: p.opts.GuildID, Title: playlistName, Tracks: ts[:added]})
		p.save()
	}
	return added, nil
}

// RemoveTrack removes the upcoming track at index i.
func (p *Player) RemoveTrack(i int) (track.Track, error) {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return track.Track{}, ErrDestroyed
	}
	t, err := p.queue.RemoveAt(i)
	p.mu.Unlock()
	if err != nil {
		return track.Track{}, err
	}
	p.emit(events.TrackRemove{GuildID: p.opts.GuildID, Track: t})
	p.save()
	return t, nil
}

// ClearQueue drops all upcoming tracks.
func (p *Player) ClearQueue() {
	p.mu.Lock()
	p.queue.Clear()
	p.mu.Unlock()
	p.save()
}

// ShuffleQueue permutes the upcoming tracks.
func (p *Player) ShuffleQueue() {
	p.mu.Lock()
	p.queue.Shuffle()
	p.mu.Unlock()
	p.save()
}

// MoveTrack moves the upcoming track at from to position to.
func (p *Player) MoveTrack(from, to int) error {
	p.mu.Lock()
	err := p.queue.MoveFromTo(from, to)
	p.mu.Unlock()
	if err == nil {
		p.save()
	}
	return err
}

// RemoveDuplicates drops repeated title+author pairs from the queue.
func (p *Player) RemoveDuplicates() int {
	p.mu.Lock()
	n := p.queue.RemoveDuplicates()
	p.mu.Unlock()
	if n > 0 {
		p.save()
	}
	return n
}

// RemoveByRequester drops every queued track requested by userID.
func (p *Player) RemoveByRequester(userID string) int {
	p.mu.Lock()
	n := p.queue.RemoveWhere(func(t track.Track) bool { return t.RequesterID() == userID })
	p.mu.Unlock()
	if n > 0 {
		p.save()
	}
	return n
}

// ClearHistory drops the play history.
func (p *Player) ClearHistory() {
	p.mu.Lock()
	p.queue.ClearHistory()
	p.mu.Unlock()
}

// SetAutoplay toggles related-track autoplay on queue end.
func (p *Player) SetAutoplay(enabled bool) {
	p.mu.Lock()
	p.autoPlay = enabled
	p.mu.Unlock()
}

// --- filters ---

// ApplyFilters overlays the given blocks onto the active set and flushes.
func (p *Player) ApplyFilters(patch protocol.Filters) error {
	release, err := p.admit()
	if err != nil {
		return err
	}
	defer release()
	return p.fc.Apply(patch)
}

// RemoveFilter deletes one named block and flushes.
func (p *Player) RemoveFilter(name string) error {
	release, err := p.admit()
	if err != nil {
		return err
	}
	defer release()
	return p.fc.Remove(name)
}

// ClearFilters resets all blocks and flushes.
func (p *Player) ClearFilters() error {
	release, err := p.admit()
	if err != nil {
		return err
	}
	defer release()
	return p.fc.Clear()
}

// ApplyPreset applies a named preset recipe.
func (p *Player) ApplyPreset(name string) error {
	release, err := p.admit()
	if err != nil {
		return err
	}
	defer release()
	return p.fc.ApplyPreset(name)
}

// Filters returns the active filter blocks.
func (p *Player) Filters() protocol.Filters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeFilters
}

// sendFilters is the controller's flusher. Runs with restMu held (all
// filter entry points admit first).
func (p *Player) sendFilters(f protocol.Filters) error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	n := p.node
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fv := f
	if _, err := n.UpdatePlayer(ctx, p.opts.GuildID, protocol.UpdatePlayer{Filters: &fv}, false); err != nil {
		return fmt.Errorf("player %s: flush filters: %w", p.opts.GuildID, err)
	}
	p.mu.Lock()
	p.activeFilters = f
	p.mu.Unlock()
	p.save()
	return nil
}

// --- lifecycle ---

// Stats is a point-in-time summary of a player.
type Stats struct {
	GuildID    string
	State      State
	Playing    bool
	Paused     bool
	Volume     int
	PositionMs int64
	QueueLen   int
	HistoryLen int
	Loop       track.LoopMode
	Node       string
	UptimeMs   int64
}

// GetStats returns a snapshot of the player's counters.
func (p *Player) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		GuildID:    p.opts.GuildID,
		State:      p.state,
		Playing:    p.state == StatePlaying && !p.paused,
		Paused:     p.paused,
		Volume:     p.volume,
		PositionMs: p.positionLocked(),
		QueueLen:   p.queue.Len(),
		HistoryLen: len(p.queue.History()),
		Loop:       p.queue.Loop(),
		Node:       p.node.Identifier(),
		UptimeMs:   time.Since(p.createdAt).Milliseconds(),
	}
}

// Destroy tears the player down: timers cancelled, worker-side player
// removed best-effort, snapshot deleted. Terminal; all later commands
// return [ErrDestroyed]. Never waits on the network.
func (p *Player) Destroy(reason string) {
	p.destroyed.Do(func() {
		p.mu.Lock()
		p.state = StateDestroyed
		n := p.node
		p.idleGen++
		if p.idleTimer != nil {
			p.idleTimer.Stop()
			p.idleTimer = nil
		}
		p.mu.Unlock()

		close(p.healthStop)
		if p.saver != nil {
			p.saver.stop()
		}
		p.log.Info("player destroyed", "reason", reason)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := n.DestroyPlayer(ctx, p.opts.GuildID); err != nil {
				p.log.Debug("worker-side destroy failed", "error", err)
			}
			if err := p.gw.SendVoiceUpdate(p.opts.GuildID, "", false, false); err != nil {
				p.log.Debug("voice leave on destroy failed", "error", err)
			}
			if p.saver != nil {
				p.saver.delete(ctx)
			}
		}()

		if p.bus != nil {
			p.bus.Emit(events.PlayerDestroy{GuildID: p.opts.GuildID, Reason: reason})
		}
	})
}
