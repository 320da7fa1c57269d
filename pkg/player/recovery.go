package player

import (
	"context"
	"time"

	"github.com/tidelink-audio/tidelink/pkg/events"
	"github.com/tidelink-audio/tidelink/pkg/protocol"
)

// recoverStuck runs the stuck recovery protocol: up to MaxStuckRetries
// attempts spaced 2s apart, each trying a seek to the stall position and
// falling back to a replay from zero. Any success resets the counter;
// exhaustion advances the queue.
func (p *Player) recoverStuck(ctx context.Context) {
	p.restMu.Lock()
	defer p.restMu.Unlock()

	for {
		p.mu.Lock()
		if p.state == StateDestroyed {
			p.mu.Unlock()
			return
		}
		if p.state != StateStuck {
			// Something else already moved the machine on.
			p.mu.Unlock()
			return
		}
		if p.stuckRetries >= p.opts.MaxStuckRetries {
			p.stuckRetries = 0
			p.mu.Unlock()
			p.log.Warn("stuck recovery exhausted, skipping track")
			p.playNextLocked(ctx)
			return
		}
		p.stuckRetries++
		attempt := p.stuckRetries
		pos := p.positionMs
		_, hasCur := p.queue.Current()
		p.mu.Unlock()

		if !hasCur {
			return
		}
		if err := p.sleep(ctx, stuckRetrySpacing); err != nil {
			return
		}
		p.log.Info("stuck recovery attempt", "attempt", attempt, "position", pos)
		if p.seekRaw(ctx, pos) == nil || p.seekRaw(ctx, 0) == nil {
			p.mu.Lock()
			p.stuckRetries = 0
			p.state = StatePlaying
			p.mu.Unlock()
			return
		}
	}
}

// monitor is the periodic self-check goroutine. Runs until Destroy.
func (p *Player) monitor() {
	ticker := time.NewTicker(p.opts.HealthMonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.healthStop:
			return
		case <-ticker.C:
			p.CheckHealth(context.Background())
		}
	}
}

// CheckHealth runs one health pass: migrate off a dead node, and verify
// that playback position progresses at least 90% of wall clock; a stalled
// player is corrected by a small seek, then a replay, then a skip.
func (p *Player) CheckHealth(ctx context.Context) {
	p.mu.Lock()
	state := p.state
	paused := p.paused
	n := p.node
	migrating := p.migrating
	pos := p.positionLocked()
	cur, hasCur := p.queue.Current()
	prevTrack, prevPos, prevAt := p.healthTrack, p.healthPos, p.healthAt
	if hasCur {
		p.healthTrack = cur.Encoded
	} else {
		p.healthTrack = ""
	}
	p.healthPos = pos
	p.healthAt = time.Now()
	p.mu.Unlock()

	if state == StateDestroyed {
		return
	}
	if !n.Connected() && !migrating {
		p.migrateToBest(ctx)
		return
	}
	if state != StatePlaying || paused || !hasCur || cur.IsStream {
		return
	}
	// Need two samples of the same track for a progress verdict, and at
	// least a few seconds between them.
	if prevTrack != cur.Encoded || prevAt.IsZero() {
		return
	}
	elapsed := time.Since(prevAt)
	if elapsed < 5*time.Second {
		return
	}
	expected := elapsed.Milliseconds()
	actual := pos - prevPos
	if float64(actual) >= progressHealthyRatio*float64(expected) {
		return
	}

	p.log.Warn("playback stalled",
		"title", cur.Title, "expectedMs", expected, "actualMs", actual)
	p.restMu.Lock()
	defer p.restMu.Unlock()
	if p.seekRaw(ctx, pos+1000) == nil {
		return
	}
	if p.startTrack(ctx, cur, PlayOptions{StartTimeMs: pos}) == nil {
		return
	}
	p.log.Warn("stall correction failed, skipping track", "title", cur.Title)
	p.playNextLocked(ctx)
}

// migrateToBest asks the node picker for a replacement and moves there.
// With no node available the player survives un-destroyed and the next
// pass retries.
func (p *Player) migrateToBest(ctx context.Context) {
	if p.pickNode == nil {
		return
	}
	p.mu.Lock()
	exclude := p.node.Identifier()
	p.mu.Unlock()

	target, err := p.pickNode(exclude)
	if err != nil || target == nil {
		p.log.Warn("no migration target available", "from", exclude, "error", err)
		return
	}
	if err := p.MoveToNode(ctx, target); err != nil {
		p.warn("node migration failed", err)
	}
}

// MoveToNode rebinds the player to target and resumes the current track at
// the saved position with filters re-applied. Old-node cleanup is best
// effort; its failure never fails the move.
func (p *Player) MoveToNode(ctx context.Context, target Worker) error {
	if target == nil {
		return ErrDestroyed
	}
	p.restMu.Lock()
	defer p.restMu.Unlock()

	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	if p.migrating {
		p.mu.Unlock()
		return ErrMigrationInFlight
	}
	p.migrating = true
	old := p.node
	wasActive := p.state == StatePlaying || p.state == StatePaused || p.state == StateStuck
	paused := p.paused
	cur, hasCur := p.queue.Current()
	pos := p.positionLocked()
	vol := p.volume
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.migrating = false
		p.mu.Unlock()
	}()

	if old.Connected() {
		t := true
		octx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if _, err := old.UpdatePlayer(octx, p.opts.GuildID, protocol.UpdatePlayer{Paused: &t}, false); err != nil {
			p.log.Debug("pause on old node failed", "node", old.Identifier(), "error", err)
		}
		cancel()
	}

	p.mu.Lock()
	p.node = target
	p.mu.Unlock()

	if wasActive && hasCur && cur.Playable() {
		enc := &cur.Encoded
		patch := protocol.UpdatePlayer{
			EncodedTrack: &enc,
			PositionMs:   &pos,
			Volume:       &vol,
			Paused:       &paused,
		}
		if cred, ok := p.voice.Credential(p.opts.GuildID); ok {
			patch.Voice = &cred
		}
		if f := p.fc.Active(); !f.IsZero() {
			patch.Filters = &f
		}
		if _, err := target.UpdatePlayer(ctx, p.opts.GuildID, patch, false); err != nil {
			p.emit(events.Error{GuildID: p.opts.GuildID, Err: err})
			return err
		}
		p.mu.Lock()
		p.positionMs = pos
		p.posAt = time.Now()
		p.mu.Unlock()
	}

	p.log.Info("player migrated", "from", old.Identifier(), "to", target.Identifier())
	p.metrics.RecordMigration(ctx)
	p.emit(events.PlayerMoved{
		GuildID:  p.opts.GuildID,
		FromNode: old.Identifier(),
		ToNode:   target.Identifier(),
	})
	p.save()
	return nil
}
