package track

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// LoopMode controls how the queue advances when a track ends.
type LoopMode string

const (
	LoopOff   LoopMode = "off"
	LoopTrack LoopMode = "track"
	LoopQueue LoopMode = "queue"
)

// IsValid reports whether m is a recognised loop mode.
func (m LoopMode) IsValid() bool {
	return m == LoopOff || m == LoopTrack || m == LoopQueue
}

// SortKey selects the field used by [Queue.SortBy].
type SortKey string

const (
	SortByTitle    SortKey = "title"
	SortByAuthor   SortKey = "author"
	SortByDuration SortKey = "duration"
	SortByAddedAt  SortKey = "addedAt"
)

// DefaultHistorySize bounds the history ring when no size is configured.
const DefaultHistorySize = 50

var (
	// ErrIndexOutOfRange is returned for positional operations with an
	// index outside the upcoming list.
	ErrIndexOutOfRange = errors.New("track: index out of range")

	// ErrQueueFull is returned by Add/AddMany when the configured capacity
	// would be exceeded.
	ErrQueueFull = errors.New("track: queue is full")

	// ErrDuplicate is returned by Add when duplicates are rejected and an
	// equal track is already queued.
	ErrDuplicate = errors.New("track: duplicate track")
)

// Queue is the ordered track list owned by exactly one player. It is not
// safe for concurrent use; the owning player serializes all access.
//
// At most one track is current at a time. History is a bounded ring: the
// oldest entry is evicted on overflow.
type Queue struct {
	upcoming []Track
	current  *Track
	history  []Track

	loop        LoopMode
	historySize int

	// maxSize caps upcoming; 0 means unlimited.
	maxSize int

	// allowDuplicates permits enqueueing a track equal (by case-folded
	// title+author) to one already queued.
	allowDuplicates bool
}

// QueueConfig tunes a new [Queue]. Zero values select the defaults.
type QueueConfig struct {
	HistorySize     int
	MaxSize         int
	AllowDuplicates *bool
}

// NewQueue creates an empty queue.
func NewQueue(cfg QueueConfig) *Queue {
	hs := cfg.HistorySize
	if hs <= 0 {
		hs = DefaultHistorySize
	}
	allow := true
	if cfg.AllowDuplicates != nil {
		allow = *cfg.AllowDuplicates
	}
	return &Queue{
		loop:            LoopOff,
		historySize:     hs,
		maxSize:         cfg.MaxSize,
		allowDuplicates: allow,
	}
}

// dupKey folds a track to its duplicate-detection identity.
func dupKey(t Track) string {
	return strings.ToLower(t.Title) + "\x00" + strings.ToLower(t.Author)
}

// Add appends t to the tail of the upcoming list.
func (q *Queue) Add(t Track) error {
	if q.maxSize > 0 && len(q.upcoming) >= q.maxSize {
		return ErrQueueFull
	}
	if !q.allowDuplicates {
		key := dupKey(t)
		for _, u := range q.upcoming {
			if dupKey(u) == key {
				return ErrDuplicate
			}
		}
		if q.current != nil && dupKey(*q.current) == key {
			return ErrDuplicate
		}
	}
	q.upcoming = append(q.upcoming, t)
	return nil
}

// AddMany appends all tracks in order, stopping at the first failure.
// It returns the number of tracks actually added.
func (q *Queue) AddMany(ts []Track) (int, error) {
	for i, t := range ts {
		if err := q.Add(t); err != nil {
			return i, err
		}
	}
	return len(ts), nil
}

// RemoveAt removes and returns the track at index i of the upcoming list.
func (q *Queue) RemoveAt(i int) (Track, error) {
	if i < 0 || i >= len(q.upcoming) {
		return Track{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(q.upcoming))
	}
	t := q.upcoming[i]
	q.upcoming = append(q.upcoming[:i], q.upcoming[i+1:]...)
	return t, nil
}

// Get returns the track at index i without removing it.
func (q *Queue) Get(i int) (Track, error) {
	if i < 0 || i >= len(q.upcoming) {
		return Track{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(q.upcoming))
	}
	return q.upcoming[i], nil
}

// Clear drops every upcoming track. Current and history are untouched.
func (q *Queue) Clear() { q.upcoming = nil }

// Len returns the number of upcoming tracks.
func (q *Queue) Len() int { return len(q.upcoming) }

// Current returns the playing track, or false when none.
func (q *Queue) Current() (Track, bool) {
	if q.current == nil {
		return Track{}, false
	}
	return *q.current, true
}

// SetCurrent replaces the current track without touching history. Used by
// the player when it starts an explicitly supplied track.
func (q *Queue) SetCurrent(t Track) { c := t; q.current = &c }

// ClearCurrent drops the current track without recording it in history.
func (q *Queue) ClearCurrent() { q.current = nil }

// Loop returns the active loop mode.
func (q *Queue) Loop() LoopMode { return q.loop }

// SetLoop changes the loop mode.
func (q *Queue) SetLoop(m LoopMode) error {
	if !m.IsValid() {
		return fmt.Errorf("track: invalid loop mode %q", m)
	}
	q.loop = m
	return nil
}

// Peek returns the head of the upcoming list without consuming it.
func (q *Queue) Peek() (Track, bool) {
	if len(q.upcoming) == 0 {
		return Track{}, false
	}
	return q.upcoming[0], true
}

// Shift advances the queue and returns the new current track.
//
//   - loop=track with a current track: the current track is returned again;
//     upcoming and history are untouched.
//   - loop=queue with a current track: the current track is re-appended to
//     the tail before the head is taken.
//   - otherwise the current track (if any) moves to history.
//
// Returns false when nothing is left to play.
func (q *Queue) Shift() (Track, bool) {
	if q.loop == LoopTrack && q.current != nil {
		return *q.current, true
	}
	if q.current != nil {
		if q.loop == LoopQueue {
			q.upcoming = append(q.upcoming, *q.current)
		} else {
			q.pushHistory(*q.current)
		}
		q.current = nil
	}
	if len(q.upcoming) == 0 {
		return Track{}, false
	}
	head := q.upcoming[0]
	q.upcoming = q.upcoming[1:]
	q.current = &head
	return head, true
}

// ReplaceCurrent makes t the current track, moving the previous current
// track (if any) to history.
func (q *Queue) ReplaceCurrent(t Track) {
	if q.current != nil {
		q.pushHistory(*q.current)
	}
	c := t
	q.current = &c
}

// BackOne steps back to the most recent history entry. The current track
// (if any) is unshifted to the head of the upcoming list.
func (q *Queue) BackOne() (Track, bool) {
	if len(q.history) == 0 {
		return Track{}, false
	}
	if q.current != nil {
		q.upcoming = append([]Track{*q.current}, q.upcoming...)
	}
	last := q.history[len(q.history)-1]
	q.history = q.history[:len(q.history)-1]
	q.current = &last
	return last, true
}

func (q *Queue) pushHistory(t Track) {
	q.history = append(q.history, t)
	if over := len(q.history) - q.historySize; over > 0 {
		q.history = append([]Track(nil), q.history[over:]...)
	}
}

// History returns a copy of the history, oldest first.
func (q *Queue) History() []Track {
	return append([]Track(nil), q.history...)
}

// ClearHistory drops all history entries.
func (q *Queue) ClearHistory() { q.history = nil }

// Upcoming returns a copy of the upcoming list.
func (q *Queue) Upcoming() []Track {
	return append([]Track(nil), q.upcoming...)
}

// SetUpcoming replaces the upcoming list wholesale. Used by snapshot restore.
func (q *Queue) SetUpcoming(ts []Track) {
	q.upcoming = append([]Track(nil), ts...)
}

// SetHistory replaces the history wholesale, trimming to capacity.
func (q *Queue) SetHistory(ts []Track) {
	q.history = append([]Track(nil), ts...)
	if over := len(q.history) - q.historySize; over > 0 {
		q.history = append([]Track(nil), q.history[over:]...)
	}
}

// Shuffle permutes the upcoming list in place (Fisher-Yates).
func (q *Queue) Shuffle() {
	rand.Shuffle(len(q.upcoming), func(i, j int) {
		q.upcoming[i], q.upcoming[j] = q.upcoming[j], q.upcoming[i]
	})
}

// MoveFromTo relocates the track at index from to index to.
func (q *Queue) MoveFromTo(from, to int) error {
	n := len(q.upcoming)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d -> %d of %d", ErrIndexOutOfRange, from, to, n)
	}
	if from == to {
		return nil
	}
	t := q.upcoming[from]
	q.upcoming = append(q.upcoming[:from], q.upcoming[from+1:]...)
	q.upcoming = append(q.upcoming[:to], append([]Track{t}, q.upcoming[to:]...)...)
	return nil
}

// Swap exchanges the tracks at indices i and j.
func (q *Queue) Swap(i, j int) error {
	n := len(q.upcoming)
	if i < 0 || i >= n || j < 0 || j >= n {
		return fmt.Errorf("%w: swap %d, %d of %d", ErrIndexOutOfRange, i, j, n)
	}
	q.upcoming[i], q.upcoming[j] = q.upcoming[j], q.upcoming[i]
	return nil
}

// RemoveDuplicates keeps only the first occurrence of each case-folded
// (title, author) pair and returns the number removed.
func (q *Queue) RemoveDuplicates() int {
	seen := make(map[string]struct{}, len(q.upcoming))
	kept := q.upcoming[:0]
	removed := 0
	for _, t := range q.upcoming {
		key := dupKey(t)
		if _, dup := seen[key]; dup {
			removed++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, t)
	}
	q.upcoming = kept
	return removed
}

// RemoveWhere deletes every upcoming track matching pred and returns the
// number removed.
func (q *Queue) RemoveWhere(pred func(Track) bool) int {
	kept := q.upcoming[:0]
	removed := 0
	for _, t := range q.upcoming {
		if pred(t) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	q.upcoming = kept
	return removed
}

// FilterByRequester returns the upcoming tracks requested by userID.
func (q *Queue) FilterByRequester(userID string) []Track {
	return q.filter(func(t Track) bool { return t.RequesterID() == userID })
}

// FilterBySource returns the upcoming tracks from the given source tag.
func (q *Queue) FilterBySource(source string) []Track {
	return q.filter(func(t Track) bool {
		return strings.EqualFold(t.Source, source)
	})
}

// FilterByDurationRange returns the upcoming tracks whose duration lies in
// [min, max].
func (q *Queue) FilterByDurationRange(min, max time.Duration) []Track {
	return q.filter(func(t Track) bool {
		d := t.Duration()
		return d >= min && d <= max
	})
}

func (q *Queue) filter(pred func(Track) bool) []Track {
	var out []Track
	for _, t := range q.upcoming {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

// SearchByText returns the upcoming tracks whose title or author contains
// text, case-insensitively.
func (q *Queue) SearchByText(text string) []Track {
	needle := strings.ToLower(text)
	return q.filter(func(t Track) bool {
		return strings.Contains(strings.ToLower(t.Title), needle) ||
			strings.Contains(strings.ToLower(t.Author), needle)
	})
}

// RandomPick returns a uniformly random upcoming track without removing it.
func (q *Queue) RandomPick() (Track, bool) {
	if len(q.upcoming) == 0 {
		return Track{}, false
	}
	return q.upcoming[rand.Intn(len(q.upcoming))], true
}

// First returns up to n tracks from the head of the upcoming list.
func (q *Queue) First(n int) []Track {
	if n < 0 {
		n = 0
	}
	if n > len(q.upcoming) {
		n = len(q.upcoming)
	}
	return append([]Track(nil), q.upcoming[:n]...)
}

// Last returns up to n tracks from the tail of the upcoming list.
func (q *Queue) Last(n int) []Track {
	if n < 0 {
		n = 0
	}
	if n > len(q.upcoming) {
		n = len(q.upcoming)
	}
	return append([]Track(nil), q.upcoming[len(q.upcoming)-n:]...)
}

// Has reports whether a track with the given local ID is upcoming.
func (q *Queue) Has(id string) bool { return q.IndexOf(id) >= 0 }

// IndexOf returns the upcoming index of the track with the given local ID,
// or -1 when absent.
func (q *Queue) IndexOf(id string) int {
	for i, t := range q.upcoming {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// SortBy orders the upcoming list by the given key. asc=false reverses.
func (q *Queue) SortBy(key SortKey, asc bool) error {
	var less func(a, b Track) bool
	switch key {
	case SortByTitle:
		less = func(a, b Track) bool {
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		}
	case SortByAuthor:
		less = func(a, b Track) bool {
			return strings.ToLower(a.Author) < strings.ToLower(b.Author)
		}
	case SortByDuration:
		less = func(a, b Track) bool { return a.DurationMs < b.DurationMs }
	case SortByAddedAt:
		less = func(a, b Track) bool { return a.AddedAtMs < b.AddedAtMs }
	default:
		return fmt.Errorf("track: invalid sort key %q", key)
	}
	sort.SliceStable(q.upcoming, func(i, j int) bool {
		if asc {
			return less(q.upcoming[i], q.upcoming[j])
		}
		return less(q.upcoming[j], q.upcoming[i])
	})
	return nil
}

// TotalDuration sums the durations of all upcoming tracks.
func (q *Queue) TotalDuration() time.Duration {
	var total int64
	for _, t := range q.upcoming {
		total += t.DurationMs
	}
	return time.Duration(total) * time.Millisecond
}
