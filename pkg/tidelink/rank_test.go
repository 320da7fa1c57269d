package tidelink

import (
	"encoding/json"
	"testing"

	"github.com/tidelink-audio/tidelink/pkg/protocol"
	"github.com/tidelink-audio/tidelink/pkg/track"
)

func titled(titles ...string) []track.Track {
	ts := make([]track.Track, len(titles))
	for i, title := range titles {
		ts[i] = track.Track{Title: title, Encoded: "enc", Identifier: title}
	}
	return ts
}

func indexOfTitle(ts []track.Track, title string) int {
	for i, t := range ts {
		if t.Title == title {
			return i
		}
	}
	return -1
}

func TestRankTracksQueryNight(t *testing.T) {
	ranked := rankTracks("night", titled(
		"Good Night", "Nightcall", "Night Changes", "Nightcall (Karaoke)",
	))

	karaoke := indexOfTitle(ranked, "Nightcall (Karaoke)")
	goodNight := indexOfTitle(ranked, "Good Night")
	for _, clean := range []string{"Nightcall", "Night Changes"} {
		i := indexOfTitle(ranked, clean)
		if i > karaoke {
			t.Errorf("%q ranked below the karaoke version: %v", clean, ranked)
		}
		if i > goodNight {
			t.Errorf("%q ranked below %q: %v", clean, "Good Night", ranked)
		}
	}
}

func TestRankScoreExactMatchDominates(t *testing.T) {
	exact := rankScore("nightcall", track.Track{Title: "Nightcall"})
	partial := rankScore("nightcall", track.Track{Title: "Nightcall (Live at Abbey Road)"})
	if exact <= partial {
		t.Errorf("exact = %.0f, partial = %.0f, want exact higher", exact, partial)
	}
}

func TestRankScorePenalizesOnlyUnrequestedKeywords(t *testing.T) {
	asked := rankScore("nightcall karaoke", track.Track{Title: "Nightcall (Karaoke)"})
	notAsked := rankScore("nightcall", track.Track{Title: "Nightcall (Karaoke)"})
	plain := rankScore("nightcall", track.Track{Title: "Nightcall"})
	if notAsked >= plain {
		t.Error("karaoke penalty missing for a query that never asked for karaoke")
	}
	if asked <= notAsked {
		t.Error("penalty applied although the query asked for karaoke")
	}
}

func TestRankTracksStableForEqualScores(t *testing.T) {
	ranked := rankTracks("x", titled("Same", "Same", "Same"))
	if len(ranked) != 3 {
		t.Fatalf("ranked length = %d, want 3", len(ranked))
	}
}

func TestNormalizeLoadShapes(t *testing.T) {
	wire := func(v any) []byte {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return raw
	}
	trk := protocol.Track{Encoded: "e1", Info: protocol.TrackInfo{Title: "A"}}

	t.Run("track", func(t *testing.T) {
		res, err := normalizeLoad(&protocol.LoadResponse{
			LoadType: protocol.LoadTrack, Data: wire(trk),
		}, nil)
		if err != nil {
			t.Fatalf("normalizeLoad: %v", err)
		}
		if res.Type != protocol.LoadTrack || len(res.Tracks) != 1 || res.Tracks[0].Title != "A" {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("playlist", func(t *testing.T) {
		res, err := normalizeLoad(&protocol.LoadResponse{
			LoadType: protocol.LoadPlaylist,
			Data: wire(protocol.Playlist{
				Info:   protocol.PlaylistInfo{Name: "P"},
				Tracks: []protocol.Track{trk, trk, trk},
			}),
		}, nil)
		if err != nil {
			t.Fatalf("normalizeLoad: %v", err)
		}
		if res.Playlist == nil || res.Playlist.Name != "P" || len(res.Tracks) != 3 {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("search with requester", func(t *testing.T) {
		req := &track.Requester{ID: "u1"}
		res, err := normalizeLoad(&protocol.LoadResponse{
			LoadType: protocol.LoadSearch, Data: wire([]protocol.Track{trk}),
		}, req)
		if err != nil {
			t.Fatalf("normalizeLoad: %v", err)
		}
		if res.Tracks[0].RequesterID() != "u1" {
			t.Error("requester not attached")
		}
	})

	t.Run("error", func(t *testing.T) {
		res, err := normalizeLoad(&protocol.LoadResponse{
			LoadType: protocol.LoadError,
			Data:     wire(protocol.Exception{Message: "boom", Severity: "common"}),
		}, nil)
		if err != nil {
			t.Fatalf("normalizeLoad: %v", err)
		}
		if res.Type != protocol.LoadError || res.Error == nil || res.Error.Message != "boom" {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("empty", func(t *testing.T) {
		res, err := normalizeLoad(&protocol.LoadResponse{LoadType: protocol.LoadEmpty}, nil)
		if err != nil {
			t.Fatalf("normalizeLoad: %v", err)
		}
		if res.Type != protocol.LoadEmpty || len(res.Tracks) != 0 {
			t.Errorf("res = %+v", res)
		}
	})
}

func TestQueryClassification(t *testing.T) {
	if !isURL("https://example.com/watch?v=1") {
		t.Error("https URL not recognized")
	}
	if isURL("never gonna give you up") {
		t.Error("plain text misclassified as URL")
	}
	if !hasSearchPrefix("ytsearch:foo") {
		t.Error("ytsearch prefix not recognized")
	}
	if hasSearchPrefix("foo bar") {
		t.Error("plain text misclassified as prefixed")
	}
}

func TestEnginePrefixes(t *testing.T) {
	for engine, want := range map[string]string{
		"spotify":      "spsearch",
		"YouTubeMusic": "ytmsearch",
		"deezer":       "dzsearch",
	} {
		got, err := enginePrefix(engine)
		if err != nil {
			t.Fatalf("enginePrefix(%s): %v", engine, err)
		}
		if got != want {
			t.Errorf("enginePrefix(%s) = %s, want %s", engine, got, want)
		}
	}
	if _, err := enginePrefix("myspace"); err == nil {
		t.Error("unknown engine accepted")
	}
}
