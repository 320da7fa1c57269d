package tidelink

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/tidelink-audio/tidelink/pkg/protocol"
	"github.com/tidelink-audio/tidelink/pkg/track"
)

// identifyThreshold is the minimum query/title similarity for an
// identification result to be trusted.
const identifyThreshold = 0.3

// searchPrefixes map engine names to worker search identifiers.
var searchPrefixes = map[string]string{
	"youtube":      "ytsearch",
	"youtubemusic": "ytmsearch",
	"soundcloud":   "scsearch",
	"spotify":      "spsearch",
	"deezer":       "dzsearch",
	"applemusic":   "amsearch",
}

func enginePrefix(engine string) (string, error) {
	p, ok := searchPrefixes[strings.ToLower(strings.TrimSpace(engine))]
	if !ok {
		return "", fmt.Errorf("tidelink: unknown search engine %q", engine)
	}
	return p, nil
}

// PlaylistData is playlist-level metadata of a load.
type PlaylistData struct {
	Name          string
	SelectedTrack int
}

// LoadResult is the normalized shape of every search and load response.
// Exactly one of Tracks/Playlist/Error is meaningful per Type; Empty loads
// carry nothing.
type LoadResult struct {
	Type     protocol.LoadType
	Tracks   []track.Track
	Playlist *PlaylistData
	Error    *protocol.Exception
}

// SearchOptions tunes one search call.
type SearchOptions struct {
	// Source overrides the identification engine.
	Source string

	// Engine overrides the playback engine.
	Engine string

	// Requester is attached to every returned track.
	Requester *track.Requester
}

// Search runs the two-phase search: identify the query on the search
// engine, then resolve it on the playback engine (preferring ISRC when
// identification found one) and rank the candidates against the original
// query. URLs and already prefixed identifiers load directly.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (LoadResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return LoadResult{}, fmt.Errorf("tidelink: empty query")
	}
	n, err := c.pool.PickLeastLoaded()
	if err != nil {
		return LoadResult{}, err
	}

	if isURL(query) || hasSearchPrefix(query) {
		resp, err := n.LoadTracks(ctx, query)
		if err != nil {
			return LoadResult{}, err
		}
		res, err := normalizeLoad(resp, opts.Requester)
		if err == nil {
			c.metrics.RecordLoad(ctx, string(res.Type))
		}
		return res, err
	}

	// Phase 1: identification.
	var ident *track.Track
	if prefix, err := enginePrefix(orDefault(opts.Source, c.cfg.SearchEngine)); err == nil {
		if resp, err := n.LoadTracks(ctx, prefix+":"+query); err == nil {
			if res, err := normalizeLoad(resp, opts.Requester); err == nil {
				if res.Playlist != nil && len(res.Tracks) > 0 {
					// The identified playlist wins outright; per-track
					// resolution is deferred to play time.
					return res, nil
				}
				if len(res.Tracks) > 0 {
					sim := matchr.JaroWinkler(
						strings.ToLower(query), strings.ToLower(res.Tracks[0].Title), false)
					if sim >= identifyThreshold {
						ident = &res.Tracks[0]
					} else {
						c.log.Debug("identification discarded",
							"query", query, "candidate", res.Tracks[0].Title, "similarity", sim)
					}
				}
			}
		} else {
			c.log.Debug("identification failed", "query", query, "error", err)
		}
	}

	// Phase 2: resolution on the playback engine.
	prefix, err := enginePrefix(orDefault(opts.Engine, c.cfg.PlaybackEngine))
	if err != nil {
		return LoadResult{}, err
	}
	resQuery := query
	if ident != nil {
		if ident.ISRC != "" {
			resQuery = ident.ISRC
		} else {
			resQuery = strings.TrimSpace(ident.Title + " " + ident.Author)
		}
	}
	resp, err := n.LoadTracks(ctx, prefix+":"+resQuery)
	if err != nil {
		if ident != nil {
			return LoadResult{Type: protocol.LoadTrack, Tracks: []track.Track{*ident}}, nil
		}
		return LoadResult{}, err
	}
	res, err := normalizeLoad(resp, opts.Requester)
	if err != nil {
		return LoadResult{}, err
	}
	c.metrics.RecordLoad(ctx, string(res.Type))
	if len(res.Tracks) == 0 && ident != nil {
		return LoadResult{Type: protocol.LoadTrack, Tracks: []track.Track{*ident}}, nil
	}
	res.Tracks = rankTracks(query, res.Tracks)
	return res, nil
}

// Suggestion is one autocomplete entry.
type Suggestion struct {
	Name  string
	Value string
}

// Autocomplete limits for chat-platform option menus.
const (
	maxSuggestions    = 25
	maxSuggestionName = 100
)

// Autocomplete searches and returns ranked name/value pairs sized for a
// platform option menu.
func (c *Client) Autocomplete(ctx context.Context, query string) ([]Suggestion, error) {
	res, err := c.Search(ctx, query, SearchOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, maxSuggestions)
	for _, t := range res.Tracks {
		out = append(out, suggestionFor(t))
		if len(out) == maxSuggestions {
			break
		}
	}
	return out, nil
}

// suggestionFor shapes one track into a menu entry within platform limits.
func suggestionFor(t track.Track) Suggestion {
	name := t.Title
	if t.Author != "" {
		name = t.Title + " - " + t.Author
	}
	if len(name) > maxSuggestionName {
		name = clipRunes(name, maxSuggestionName-len(ellipsis)) + ellipsis
	}
	value := t.URI
	if value == "" {
		value = t.Title
	}
	if len(value) > maxSuggestionName {
		value = clipRunes(value, maxSuggestionName)
	}
	return Suggestion{Name: name, Value: value}
}

const ellipsis = "…"

// clipRunes shortens s to at most max bytes without splitting a UTF-8
// sequence.
func clipRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// normalizeLoad converts every wire load shape into one LoadResult.
func normalizeLoad(resp *protocol.LoadResponse, requester *track.Requester) (LoadResult, error) {
	wt, pl, search, exc, err := resp.Decode()
	if err != nil {
		return LoadResult{}, fmt.Errorf("tidelink: decode load response: %w", err)
	}
	switch resp.LoadType {
	case protocol.LoadTrack:
		return LoadResult{
			Type:   protocol.LoadTrack,
			Tracks: []track.Track{track.FromWire(*wt, requester)},
		}, nil
	case protocol.LoadPlaylist:
		return LoadResult{
			Type:   protocol.LoadPlaylist,
			Tracks: track.FromWireAll(pl.Tracks, requester),
			Playlist: &PlaylistData{
				Name:          pl.Info.Name,
				SelectedTrack: pl.Info.SelectedTrack,
			},
		}, nil
	case protocol.LoadSearch:
		return LoadResult{
			Type:   protocol.LoadSearch,
			Tracks: track.FromWireAll(search, requester),
		}, nil
	case protocol.LoadError:
		return LoadResult{Type: protocol.LoadError, Error: exc}, nil
	default:
		return LoadResult{Type: protocol.LoadEmpty}, nil
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

func hasSearchPrefix(s string) bool {
	for _, p := range searchPrefixes {
		if strings.HasPrefix(s, p+":") {
			return true
		}
	}
	return false
}
