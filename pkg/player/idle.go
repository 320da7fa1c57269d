package player

import (
	"context"
	"time"
)

// scheduleIdle evaluates the leave policies. Called whenever the player
// stops playing. Every armed timer re-checks its preconditions at fire
// time; a stale timer generation is a no-op.
func (p *Player) scheduleIdle() {
	p.mu.Lock()
	if p.state == StateDestroyed || p.state == StatePlaying || p.state == StatePaused {
		p.mu.Unlock()
		return
	}
	p.idleGen++
	gen := p.idleGen
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
	queueEmpty := p.queue.Len() == 0
	ch := p.voiceChannelID
	p.mu.Unlock()

	o := p.opts
	switch {
	case o.LeaveOnEnd && queueEmpty:
		// Leave on the timer goroutine: callers such as Stop still hold
		// restMu, which fireQueueEndLeave needs to take.
		p.armIdle(gen, 0, p.fireQueueEndLeave)
	case o.LeaveOnEmpty && ch != "" && p.gw.ListenerCount(p.opts.GuildID, ch) == 0:
		p.armIdle(gen, o.LeaveOnEmptyDelay, p.fireEmptyLeave)
	case boolOr(o.AutoLeave, true) && queueEmpty:
		p.armIdle(gen, o.AutoLeaveDelay, p.fireAutoLeave)
	case o.IdleTimeout > 0 && queueEmpty:
		p.armIdle(gen, o.IdleTimeout, p.fireIdleDestroy)
	}
}

// cancelIdle invalidates any pending idle timer.
func (p *Player) cancelIdle() {
	p.mu.Lock()
	p.idleGen++
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
	p.mu.Unlock()
}

func (p *Player) armIdle(gen int, d time.Duration, fire func(gen int)) {
	p.mu.Lock()
	if gen != p.idleGen || p.state == StateDestroyed {
		p.mu.Unlock()
		return
	}
	p.idleTimer = time.AfterFunc(d, func() { fire(gen) })
	p.mu.Unlock()
}

// idleStillValid re-checks the shared preconditions when a timer fires.
func (p *Player) idleStillValid(gen int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.idleGen || p.state == StateDestroyed {
		return false
	}
	return p.state != StatePlaying && p.state != StatePaused
}

func (p *Player) fireQueueEndLeave(gen int) {
	if !p.idleStillValid(gen) {
		return
	}
	p.restMu.Lock()
	err := p.leaveLocked(context.Background(), "queue ended")
	p.restMu.Unlock()
	if err != nil {
		p.warn("leave on queue end failed", err)
	}
}

func (p *Player) fireEmptyLeave(gen int) {
	if !p.idleStillValid(gen) {
		return
	}
	p.mu.Lock()
	ch := p.voiceChannelID
	p.mu.Unlock()
	if ch == "" || p.gw.ListenerCount(p.opts.GuildID, ch) != 0 {
		// Listeners came back while the timer ran.
		p.scheduleIdle()
		return
	}
	p.restMu.Lock()
	err := p.leaveLocked(context.Background(), "voice channel empty")
	p.restMu.Unlock()
	if err != nil {
		p.warn("leave on empty channel failed", err)
	}
}

func (p *Player) fireAutoLeave(gen int) {
	if !p.idleStillValid(gen) {
		return
	}
	p.mu.Lock()
	queueEmpty := p.queue.Len() == 0
	p.mu.Unlock()
	if !queueEmpty {
		return
	}
	p.restMu.Lock()
	err := p.leaveLocked(context.Background(), "idle auto-leave")
	p.restMu.Unlock()
	if err != nil {
		p.warn("auto-leave failed", err)
	}
	// Escalate to a full destroy once the idle timeout also elapses.
	p.scheduleIdleDestroy()
}

// scheduleIdleDestroy arms only the destroy stage, used after an
// auto-leave already left voice.
func (p *Player) scheduleIdleDestroy() {
	if p.opts.IdleTimeout <= 0 {
		return
	}
	p.mu.Lock()
	p.idleGen++
	gen := p.idleGen
	p.mu.Unlock()
	p.armIdle(gen, p.opts.IdleTimeout, p.fireIdleDestroy)
}

func (p *Player) fireIdleDestroy(gen int) {
	if !p.idleStillValid(gen) {
		return
	}
	p.mu.Lock()
	queueEmpty := p.queue.Len() == 0
	p.mu.Unlock()
	if !queueEmpty {
		return
	}
	p.Destroy("idle timeout")
}
