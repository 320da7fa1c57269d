// Package gateway abstracts the chat platform connection the orchestrator
// needs: receiving raw voice events and sending the single outbound
// voice-state frame. The discord subpackage provides the production
// implementation; tests use fakes.
package gateway

// Handler consumes the two raw voice event streams. Implemented by the
// client; registered with a Gateway at wiring time.
type Handler interface {
	// HandleVoiceStateUpdate delivers a VOICE_STATE_UPDATE. channelID is
	// empty when the user left voice.
	HandleVoiceStateUpdate(guildID, userID, sessionID, channelID string)

	// HandleVoiceServerUpdate delivers a VOICE_SERVER_UPDATE.
	HandleVoiceServerUpdate(guildID, token, endpoint string)
}

// Gateway is the outbound half: the platform session owned by the bot
// layer.
type Gateway interface {
	// UserID returns the bot user's ID, forwarded to worker nodes in the
	// WebSocket handshake.
	UserID() string

	// SendVoiceUpdate emits the opcode-4 voice-state frame. An empty
	// channelID leaves the guild's voice channel.
	SendVoiceUpdate(guildID, channelID string, selfMute, selfDeaf bool) error

	// ListenerCount returns the number of non-bot members in the given
	// voice channel. Used by the empty-channel leave policy. Returns a
	// negative count when unknown.
	ListenerCount(guildID, channelID string) int
}
