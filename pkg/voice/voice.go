// Package voice splices the chat platform's two asynchronous voice streams
// (the voice-state update carrying the session ID and the voice-server
// update carrying token and endpoint) into one atomic credential per
// guild.
//
// The two streams are concurrent and may arrive in either order, possibly
// with duplicates. Handlers mutate the per-guild state under a lock and
// evaluate completeness exactly once per event, so the emitted credential
// is identical regardless of arrival order.
package voice

import (
	"context"
	"sync"

	"github.com/tidelink-audio/tidelink/pkg/protocol"
)

// Hooks receives credential transitions. Nil callbacks are skipped; they
// run on the gateway's event goroutine and must not block.
type Hooks struct {
	// OnReady fires each time a guild's credential becomes complete.
	OnReady func(guildID string, cred protocol.VoiceState)

	// OnDisconnect fires when a null-channel voice state discards the
	// credential.
	OnDisconnect func(guildID string)
}

// guildState is one guild's handshake progress.
type guildState struct {
	cred      protocol.VoiceState
	channelID string

	// ready is closed when the credential is complete and replaced when
	// it is discarded again.
	ready chan struct{}
}

// Tracker accumulates voice credentials for all guilds. Safe for
// concurrent use.
type Tracker struct {
	hooks Hooks

	mu     sync.Mutex
	guilds map[string]*guildState
}

// NewTracker creates an empty tracker.
func NewTracker(hooks Hooks) *Tracker {
	return &Tracker{
		hooks:  hooks,
		guilds: make(map[string]*guildState),
	}
}

func (t *Tracker) state(guildID string) *guildState {
	s := t.guilds[guildID]
	if s == nil {
		s = &guildState{ready: make(chan struct{})}
		t.guilds[guildID] = s
	}
	return s
}

// HandleVoiceState ingests a voice-state update for this bot's user. An
// empty channelID signals a disconnect: the credential is discarded.
func (t *Tracker) HandleVoiceState(guildID, sessionID, channelID string) {
	t.mu.Lock()
	s := t.state(guildID)

	if channelID == "" {
		s.cred = protocol.VoiceState{}
		s.channelID = ""
		// Replace the ready gate so later waiters block again.
		select {
		case <-s.ready:
			s.ready = make(chan struct{})
		default:
		}
		t.mu.Unlock()
		if t.hooks.OnDisconnect != nil {
			t.hooks.OnDisconnect(guildID)
		}
		return
	}

	s.cred.SessionID = sessionID
	s.channelID = channelID
	t.finish(guildID, s)
}

// HandleVoiceServer ingests a voice-server update.
func (t *Tracker) HandleVoiceServer(guildID, token, endpoint string) {
	t.mu.Lock()
	s := t.state(guildID)
	s.cred.Token = token
	s.cred.Endpoint = endpoint
	t.finish(guildID, s)
}

// finish checks completeness and fires OnReady once per completion.
// Called with t.mu held; releases it.
func (t *Tracker) finish(guildID string, s *guildState) {
	if !s.cred.Complete() {
		t.mu.Unlock()
		return
	}
	alreadyReady := false
	select {
	case <-s.ready:
		alreadyReady = true
	default:
		close(s.ready)
	}
	cred := s.cred
	t.mu.Unlock()

	// Duplicate events after completion do not re-fire; one completion
	// cycle emits exactly one ready.
	if t.hooks.OnReady != nil && !alreadyReady {
		t.hooks.OnReady(guildID, cred)
	}
}

// Credential returns the guild's credential and whether it is complete.
func (t *Tracker) Credential(guildID string) (protocol.VoiceState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.guilds[guildID]
	if s == nil {
		return protocol.VoiceState{}, false
	}
	return s.cred, s.cred.Complete()
}

// ChannelID returns the last reported voice channel for the guild.
func (t *Tracker) ChannelID(guildID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.guilds[guildID]; s != nil {
		return s.channelID
	}
	return ""
}

// WaitReady blocks until the guild's credential is complete or ctx ends.
func (t *Tracker) WaitReady(ctx context.Context, guildID string) (protocol.VoiceState, error) {
	t.mu.Lock()
	s := t.state(guildID)
	ready := s.ready
	t.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return protocol.VoiceState{}, ctx.Err()
	}

	cred, ok := t.Credential(guildID)
	if !ok {
		// Disconnected between ready and read; treat as cancelled.
		return protocol.VoiceState{}, context.Canceled
	}
	return cred, nil
}

// Forget drops all state for a guild. Used on player destroy.
func (t *Tracker) Forget(guildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.guilds, guildID)
}
