// Package events defines the closed, typed set of events emitted by the
// tidelink client and a small fan-out bus for delivering them to listeners.
//
// Every event is a concrete struct implementing [Event]; the marker method
// keeps the set closed so that an unknown event name is a compile-time
// error rather than a silently dropped string.
package events

import (
	"github.com/tidelink-audio/tidelink/pkg/protocol"
	"github.com/tidelink-audio/tidelink/pkg/track"
)

// Event is implemented by every event variant in this package.
type Event interface {
	// Name returns the stable external event name (part of the contract).
	Name() string

	isEvent()
}

// Ready fires once the client has connected its first worker node.
type Ready struct{}

// NodeConnect fires when a node's WebSocket opens.
type NodeConnect struct{ Node string }

// NodeReady fires when a node delivers its session ID.
type NodeReady struct {
	Node      string
	SessionID string
	Resumed   bool
}

// NodeDisconnect fires when a node's WebSocket closes.
type NodeDisconnect struct {
	Node   string
	Code   int
	Reason string
}

// NodeError reports a node-level failure. Never fatal to the process.
type NodeError struct {
	Node string
	Err  error
}

// NodeStats carries a fresh load snapshot from a node.
type NodeStats struct {
	Node  string
	Stats protocol.Stats
}

// PlayerCreate fires when a guild player is allocated.
type PlayerCreate struct{ GuildID string }

// PlayerDestroy fires when a guild player is torn down.
type PlayerDestroy struct {
	GuildID string
	Reason  string
}

// PlayerJoin fires after a voice channel join was requested.
type PlayerJoin struct {
	GuildID   string
	ChannelID string
}

// PlayerLeave fires after the player left its voice channel.
type PlayerLeave struct {
	GuildID   string
	ChannelID string
}

// PlayerMoved fires after a player migrated between nodes.
type PlayerMoved struct {
	GuildID  string
	FromNode string
	ToNode   string
}

// TrackStart fires when a worker begins playing a track.
type TrackStart struct {
	GuildID string
	Track   track.Track
}

// TrackEnd fires when a track stops for any worker-reported reason.
type TrackEnd struct {
	GuildID string
	Track   track.Track
	Reason  protocol.EndReason
}

// TrackError fires when a track raised a playback exception.
type TrackError struct {
	GuildID   string
	Track     track.Track
	Exception protocol.Exception
}

// TrackStuck fires when a worker reports no audio progress past threshold.
type TrackStuck struct {
	GuildID     string
	Track       track.Track
	ThresholdMs int64
}

// QueueEnd fires when the queue is exhausted and nothing else will play.
type QueueEnd struct{ GuildID string }

// TrackAdd fires for a single enqueue.
type TrackAdd struct {
	GuildID string
	Track   track.Track
}

// TracksAdd fires for a bulk enqueue.
type TracksAdd struct {
	GuildID string
	Tracks  []track.Track
}

// TrackAddPlaylist fires once for an entire playlist enqueue.
type TrackAddPlaylist struct {
	GuildID string
	Title   string
	Tracks  []track.Track
}

// TrackRemove fires when a track is removed from the queue.
type TrackRemove struct {
	GuildID string
	Track   track.Track
}

// PlaylistProgress reports batched-enqueue progress.
type PlaylistProgress struct {
	GuildID string
	Added   int
	Total   int
}

// Pause fires when playback is paused.
type Pause struct{ GuildID string }

// Resume fires when playback resumes.
type Resume struct{ GuildID string }

// Stop fires when playback is stopped explicitly.
type Stop struct{ GuildID string }

// Seek fires after a successful seek.
type Seek struct {
	GuildID    string
	PositionMs int64
}

// VolumeChange fires after the volume changed.
type VolumeChange struct {
	GuildID string
	Volume  int
}

// LoopChange fires after the loop mode changed.
type LoopChange struct {
	GuildID string
	Loop    track.LoopMode
}

// VoiceStateUpdate mirrors the raw voice-state packet for this bot user.
type VoiceStateUpdate struct {
	GuildID   string
	ChannelID string
	SessionID string
}

// VoiceServerUpdate mirrors the raw voice-server packet.
type VoiceServerUpdate struct {
	GuildID  string
	Endpoint string
}

// VoiceDisconnect fires when the platform reports the bot left voice.
type VoiceDisconnect struct{ GuildID string }

// Debug carries diagnostic text.
type Debug struct{ Message string }

// Warn carries a recoverable anomaly.
type Warn struct {
	Message string
	Err     error
}

// Error carries an unrecoverable (for the operation) failure.
type Error struct {
	GuildID string
	Err     error
}

// Destroy fires once when the whole client shuts down.
type Destroy struct{}

func (Ready) Name() string            { return "ready" }
func (NodeConnect) Name() string      { return "nodeConnect" }
func (NodeReady) Name() string        { return "nodeReady" }
func (NodeDisconnect) Name() string   { return "nodeDisconnect" }
func (NodeError) Name() string        { return "nodeError" }
func (NodeStats) Name() string        { return "nodeStats" }
func (PlayerCreate) Name() string     { return "playerCreate" }
func (PlayerDestroy) Name() string    { return "playerDestroy" }
func (PlayerJoin) Name() string       { return "playerJoin" }
func (PlayerLeave) Name() string      { return "playerLeave" }
func (PlayerMoved) Name() string      { return "playerMoved" }
func (TrackStart) Name() string       { return "trackStart" }
func (TrackEnd) Name() string         { return "trackEnd" }
func (TrackError) Name() string       { return "trackError" }
func (TrackStuck) Name() string       { return "trackStuck" }
func (QueueEnd) Name() string         { return "queueEnd" }
func (TrackAdd) Name() string         { return "trackAdd" }
func (TracksAdd) Name() string        { return "tracksAdd" }
func (TrackAddPlaylist) Name() string { return "trackAddPlaylist" }
func (TrackRemove) Name() string      { return "trackRemove" }
func (PlaylistProgress) Name() string { return "playlistProgress" }
func (Pause) Name() string            { return "pause" }
func (Resume) Name() string           { return "resume" }
func (Stop) Name() string             { return "stop" }
func (Seek) Name() string             { return "seek" }
func (VolumeChange) Name() string     { return "volumeChange" }
func (LoopChange) Name() string       { return "loopChange" }
func (VoiceStateUpdate) Name() string { return "voiceStateUpdate" }
func (VoiceServerUpdate) Name() string { return "voiceServerUpdate" }
func (VoiceDisconnect) Name() string  { return "voiceDisconnect" }
func (Debug) Name() string            { return "debug" }
func (Warn) Name() string             { return "warn" }
func (Error) Name() string            { return "error" }
func (Destroy) Name() string          { return "destroy" }

func (Ready) isEvent()            {}
func (NodeConnect) isEvent()      {}
func (NodeReady) isEvent()        {}
func (NodeDisconnect) isEvent()   {}
func (NodeError) isEvent()        {}
func (NodeStats) isEvent()        {}
func (PlayerCreate) isEvent()     {}
func (PlayerDestroy) isEvent()    {}
func (PlayerJoin) isEvent()       {}
func (PlayerLeave) isEvent()      {}
func (PlayerMoved) isEvent()      {}
func (TrackStart) isEvent()       {}
func (TrackEnd) isEvent()         {}
func (TrackError) isEvent()       {}
func (TrackStuck) isEvent()       {}
func (QueueEnd) isEvent()         {}
func (TrackAdd) isEvent()         {}
func (TracksAdd) isEvent()        {}
func (TrackAddPlaylist) isEvent() {}
func (TrackRemove) isEvent()      {}
func (PlaylistProgress) isEvent() {}
func (Pause) isEvent()            {}
func (Resume) isEvent()           {}
func (Stop) isEvent()             {}
func (Seek) isEvent()             {}
func (VolumeChange) isEvent()     {}
func (LoopChange) isEvent()       {}
func (VoiceStateUpdate) isEvent() {}
func (VoiceServerUpdate) isEvent() {}
func (VoiceDisconnect) isEvent()  {}
func (Debug) isEvent()            {}
func (Warn) isEvent()             {}
func (Error) isEvent()            {}
func (Destroy) isEvent()          {}
