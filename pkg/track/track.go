// Package track defines the immutable track descriptor and the per-player
// queue with history, loop modes and bulk predicate operations.
package track

import (
	"time"

	"github.com/google/uuid"

	"github.com/tidelink-audio/tidelink/pkg/protocol"
)

// Requester is an opaque record identifying the end user who requested a
// track. The orchestrator never inspects it beyond the ID.
type Requester struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Track describes one playable item. It is immutable after construction;
// queue operations copy the struct by value.
//
// Encoded is the opaque worker-supplied blob required for playback. A Track
// with an empty Encoded is a pre-resolution placeholder and is rejected by
// the player.
type Track struct {
	ID         string     `json:"id"`
	Encoded    string     `json:"encoded"`
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	URI        string     `json:"uri,omitempty"`
	Identifier string     `json:"identifier"`
	DurationMs int64      `json:"durationMs"`
	IsSeekable bool       `json:"isSeekable"`
	IsStream   bool       `json:"isStream"`
	Source     string     `json:"source"`
	ISRC       string     `json:"isrc,omitempty"`
	ArtworkURI string     `json:"artworkUri,omitempty"`
	Requester  *Requester `json:"requester,omitempty"`
	AddedAtMs  int64      `json:"addedAtMs"`
}

// FromWire converts a worker wire track into a domain Track, attaching the
// requester and stamping the add time.
func FromWire(w protocol.Track, requester *Requester) Track {
	return Track{
		ID:         uuid.NewString(),
		Encoded:    w.Encoded,
		Title:      w.Info.Title,
		Author:     w.Info.Author,
		URI:        w.Info.URI,
		Identifier: w.Info.Identifier,
		DurationMs: w.Info.LengthMs,
		IsSeekable: w.Info.IsSeekable,
		IsStream:   w.Info.IsStream,
		Source:     w.Info.SourceName,
		ISRC:       w.Info.ISRC,
		ArtworkURI: w.Info.ArtworkURL,
		Requester:  requester,
		AddedAtMs:  time.Now().UnixMilli(),
	}
}

// FromWireAll converts a slice of wire tracks.
func FromWireAll(ws []protocol.Track, requester *Requester) []Track {
	out := make([]Track, 0, len(ws))
	for _, w := range ws {
		out = append(out, FromWire(w, requester))
	}
	return out
}

// Playable reports whether the track carries an encoded blob.
func (t Track) Playable() bool { return t.Encoded != "" }

// Duration returns the track length as a time.Duration.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// RequesterID returns the requesting user's ID, or "" when unattributed.
func (t Track) RequesterID() string {
	if t.Requester == nil {
		return ""
	}
	return t.Requester.ID
}
