package tidelink

import (
	"sort"
	"strings"

	"github.com/tidelink-audio/tidelink/pkg/track"
)

// undesiredKeywords penalize results the user did not ask for.
var undesiredKeywords = []string{
	"karaoke", "instrumental", "cover", "remix", "parody", "official video",
}

// rankTracks stably reorders candidates by descending relevance to the
// original user query.
func rankTracks(query string, ts []track.Track) []track.Track {
	if len(ts) < 2 {
		return ts
	}
	type scored struct {
		t track.Track
		s float64
	}
	out := make([]scored, len(ts))
	for i, t := range ts {
		out[i] = scored{t: t, s: rankScore(query, t)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].s > out[j].s })
	ranked := make([]track.Track, len(ts))
	for i, e := range out {
		ranked[i] = e.t
	}
	return ranked
}

// rankScore rates one candidate against the query. Exact matches dominate,
// prefix and containment follow, per-word overlap breaks ties, and
// keywords the query never asked for (karaoke, remix, ...) are penalized.
func rankScore(query string, t track.Track) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	title := strings.ToLower(t.Title)
	author := strings.ToLower(t.Author)

	score := 0.0
	if title == q {
		score += 500
	}
	if strings.TrimSpace(title+" "+author) == q {
		score += 400
	}
	if strings.Contains(title, q) {
		score += 200
	}
	if strings.HasPrefix(title, q) {
		score += 100
	}
	score += wordMatchRatio(q, title) * 150

	for _, kw := range undesiredKeywords {
		if strings.Contains(title, kw) && !strings.Contains(q, kw) {
			score -= 50
		}
	}
	if strings.Contains(title, "official") && !strings.Contains(q, "cover") {
		score += 10
	}
	return score
}

// wordMatchRatio is the fraction of query words occurring in the title.
func wordMatchRatio(query, title string) float64 {
	words := strings.Fields(query)
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if strings.Contains(title, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
