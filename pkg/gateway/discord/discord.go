// Package discord provides a [gateway.Gateway] implementation backed by a
// bwmarrin/discordgo session owned by the bot layer. It forwards the two
// voice event streams to the registered handler and emits the opcode-4
// voice-state frame via the session's gateway connection.
package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/tidelink-audio/tidelink/pkg/gateway"
)

// Compile-time interface assertion.
var _ gateway.Gateway = (*Gateway)(nil)

// Gateway adapts a *discordgo.Session. Safe for concurrent use; discordgo
// serializes its own gateway writes.
type Gateway struct {
	session *discordgo.Session
}

// New wraps the given session. The session must be opened by the caller;
// its lifecycle stays with the bot layer.
func New(session *discordgo.Session) *Gateway {
	return &Gateway{session: session}
}

// Attach registers the voice event forwarders for h. Call once before the
// session receives events.
func (g *Gateway) Attach(h gateway.Handler) {
	g.session.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
		h.HandleVoiceStateUpdate(e.GuildID, e.UserID, e.SessionID, e.ChannelID)
	})
	g.session.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
		h.HandleVoiceServerUpdate(e.GuildID, e.Token, e.Endpoint)
	})
}

// UserID returns the bot user's ID.
func (g *Gateway) UserID() string {
	if g.session.State != nil && g.session.State.User != nil {
		return g.session.State.User.ID
	}
	return ""
}

// SendVoiceUpdate emits the opcode-4 voice-state frame. An empty channelID
// disconnects from voice.
func (g *Gateway) SendVoiceUpdate(guildID, channelID string, selfMute, selfDeaf bool) error {
	err := g.session.ChannelVoiceJoinManual(guildID, channelID, selfMute, selfDeaf)
	if err != nil {
		return fmt.Errorf("discord: voice update for guild %s: %w", guildID, err)
	}
	return nil
}

// ListenerCount counts non-bot members currently in the voice channel
// using the session's state cache. Returns -1 when the guild is not cached.
func (g *Gateway) ListenerCount(guildID, channelID string) int {
	guild, err := g.session.State.Guild(guildID)
	if err != nil {
		return -1
	}
	count := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		member, err := g.session.State.Member(guildID, vs.UserID)
		if err != nil || member.User == nil || member.User.Bot {
			continue
		}
		count++
	}
	return count
}
