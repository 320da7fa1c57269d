// Package protocol defines the wire types exchanged with an audio worker
// node: the WebSocket message envelope and its payloads, the REST request
// and response bodies, and the filter blocks accepted by the player update
// endpoint.
//
// All types are plain data and safe to copy. The package has no behaviour
// beyond JSON (de)serialization helpers.
package protocol

import "encoding/json"

// Op identifies the kind of an inbound WebSocket message.
type Op string

const (
	OpReady        Op = "ready"
	OpStats        Op = "stats"
	OpPlayerUpdate Op = "playerUpdate"
	OpEvent        Op = "event"
)

// Message is the envelope of every inbound WebSocket frame. Payload fields
// beyond the envelope are decoded lazily from Raw by the dispatcher.
type Message struct {
	Op      Op     `json:"op"`
	GuildID string `json:"guildId,omitempty"`

	// Raw holds the full frame for second-pass decoding.
	Raw json.RawMessage `json:"-"`
}

// Ready is the payload of the first message a worker sends after the
// WebSocket handshake. SessionID is required for all REST player operations.
type Ready struct {
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`
}

// Stats is a periodic load snapshot pushed by a worker.
type Stats struct {
	Players        int        `json:"players"`
	PlayingPlayers int        `json:"playingPlayers"`
	UptimeMs       int64      `json:"uptime"`
	Memory         Memory     `json:"memory"`
	CPU            CPU        `json:"cpu"`
	FrameStats     FrameStats `json:"frameStats"`
}

// Memory reports worker heap usage in bytes.
type Memory struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

// CPU reports worker processor load. Loads are fractions in [0, 1].
type CPU struct {
	Cores       int     `json:"cores"`
	SystemLoad  float64 `json:"systemLoad"`
	ProcessLoad float64 `json:"lavalinkLoad"`
}

// FrameStats reports audio frame accounting over the last minute.
type FrameStats struct {
	Sent    int64 `json:"sent"`
	Nulled  int64 `json:"nulled"`
	Deficit int64 `json:"deficit"`
}

// PlayerUpdate carries the per-guild position report pushed by a worker.
type PlayerUpdate struct {
	GuildID string      `json:"guildId"`
	State   PlayerState `json:"state"`
}

// PlayerState is the realtime playback state inside a PlayerUpdate.
type PlayerState struct {
	TimeMs     int64 `json:"time"`
	PositionMs int64 `json:"position"`
	Connected  bool  `json:"connected"`
	PingMs     int64 `json:"ping"`
}

// EventType identifies a per-guild track lifecycle event.
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
)

// EndReason specifies why a track stopped playing.
type EndReason string

const (
	EndFinished   EndReason = "finished"
	EndLoadFailed EndReason = "loadFailed"
	EndStopped    EndReason = "stopped"
	EndReplaced   EndReason = "replaced"
	EndCleanup    EndReason = "cleanup"
)

// MayStartNext reports whether the player should advance to the next queued
// track after a track ended for this reason.
func (r EndReason) MayStartNext() bool {
	return r == EndFinished || r == EndLoadFailed
}

// Event is a decoded per-guild lifecycle event frame.
type Event struct {
	Type      EventType  `json:"type"`
	GuildID   string     `json:"guildId"`
	Track     *Track     `json:"track,omitempty"`
	Reason    EndReason  `json:"reason,omitempty"`
	Exception *Exception `json:"exception,omitempty"`

	// ThresholdMs is set for TrackStuckEvent.
	ThresholdMs int64 `json:"thresholdMs,omitempty"`

	// Code, ByRemote and the reuse of Reason describe WebSocketClosedEvent.
	Code     int  `json:"code,omitempty"`
	ByRemote bool `json:"byRemote,omitempty"`
}

// Exception describes a playback failure reported by a worker.
type Exception struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause,omitempty"`
}

func (e *Exception) Error() string {
	if e == nil {
		return "unknown playback exception"
	}
	return e.Message
}

// Track is the wire form of a track: an opaque encoded blob plus metadata.
type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`
}

// TrackInfo is the worker-supplied metadata of a Track.
type TrackInfo struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	LengthMs   int64  `json:"length"`
	IsSeekable bool   `json:"isSeekable"`
	IsStream   bool   `json:"isStream"`
	PositionMs int64  `json:"position"`
	URI        string `json:"uri,omitempty"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	ISRC       string `json:"isrc,omitempty"`
	SourceName string `json:"sourceName"`
}

// LoadType classifies a loadtracks response.
type LoadType string

const (
	LoadTrack    LoadType = "track"
	LoadPlaylist LoadType = "playlist"
	LoadSearch   LoadType = "search"
	LoadEmpty    LoadType = "empty"
	LoadError    LoadType = "error"
)

// LoadResponse is the raw body of GET /v4/loadtracks. Data is decoded
// according to LoadType by [LoadResponse.Decode].
type LoadResponse struct {
	LoadType LoadType        `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

// Playlist is the decoded data of a playlist load.
type Playlist struct {
	Info   PlaylistInfo `json:"info"`
	Tracks []Track      `json:"tracks"`
}

// PlaylistInfo carries playlist-level metadata.
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// Decode interprets Data according to LoadType. Exactly one of the returns
// is populated for track/playlist/search; empty loads return all zero
// values and error loads return the exception.
func (r *LoadResponse) Decode() (track *Track, playlist *Playlist, search []Track, exc *Exception, err error) {
	switch r.LoadType {
	case LoadTrack:
		var t Track
		if err = json.Unmarshal(r.Data, &t); err != nil {
			return
		}
		track = &t
	case LoadPlaylist:
		var p Playlist
		if err = json.Unmarshal(r.Data, &p); err != nil {
			return
		}
		playlist = &p
	case LoadSearch:
		err = json.Unmarshal(r.Data, &search)
	case LoadError:
		var e Exception
		if err = json.Unmarshal(r.Data, &e); err != nil {
			return
		}
		exc = &e
	case LoadEmpty:
	}
	return
}

// VoiceState is the voice credential block of an update-player request.
// All three fields must be non-empty before a worker can join voice.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// Complete reports whether every credential half has arrived.
func (v VoiceState) Complete() bool {
	return v.Token != "" && v.Endpoint != "" && v.SessionID != ""
}

// UpdatePlayer is the JSON patch body of PATCH /v4/sessions/{s}/players/{g}.
// Nil pointer fields are omitted and leave the corresponding worker state
// untouched.
type UpdatePlayer struct {
	// EncodedTrack uses a double pointer so that an explicit JSON null
	// (stop the current track) is distinguishable from field absence.
	EncodedTrack **string    `json:"encodedTrack,omitempty"`
	PositionMs   *int64      `json:"position,omitempty"`
	EndTimeMs    *int64      `json:"endTime,omitempty"`
	Volume       *int        `json:"volume,omitempty"`
	Paused       *bool       `json:"paused,omitempty"`
	Voice        *VoiceState `json:"voice,omitempty"`
	Filters      *Filters    `json:"filters,omitempty"`
}

// PlayerInfo is the player record returned by update-player.
type PlayerInfo struct {
	GuildID string      `json:"guildId"`
	Track   *Track      `json:"track,omitempty"`
	Volume  int         `json:"volume"`
	Paused  bool        `json:"paused"`
	State   PlayerState `json:"state"`
	Voice   VoiceState  `json:"voice"`
}

// Info is the worker metadata returned by GET /v4/info.
type Info struct {
	Version        InfoVersion `json:"version"`
	BuildTime      int64       `json:"buildTime"`
	JVM            string      `json:"jvm"`
	Lavaplayer     string      `json:"lavaplayer"`
	SourceManagers []string    `json:"sourceManagers"`
	Filters        []string    `json:"filters"`
	Plugins        []Plugin    `json:"plugins"`
}

// InfoVersion is the semantic version block inside Info.
type InfoVersion struct {
	Semver string `json:"semver"`
	Major  int    `json:"major"`
	Minor  int    `json:"minor"`
	Patch  int    `json:"patch"`
}

// Plugin names a worker-side plugin and its version.
type Plugin struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
