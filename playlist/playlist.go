// Package playlist manages the ordered playback queue with shuffle and repeat support.
package playlist

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/bo1ta/Illuminated/library"
)

// RepeatMode controls queue repeat behavior.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (r RepeatMode) String() string {
	switch r {
	case RepeatAll:
		return "All"
	case RepeatOne:
		return "One"
	default:
		return "Off"
	}
}

// Queue is an ordered list of tracks with a cursor. It is not safe for
// concurrent use; the player serializes access.
type Queue struct {
	tracks  []library.Track
	order   []int // indices into tracks, shuffled or sequential
	pos     int   // current position in order, -1 when empty
	shuffle bool
	repeat  RepeatMode
	rng     *rand.Rand
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{pos: -1}
}

// NewSeeded creates an empty Queue whose shuffle order is reproducible.
func NewSeeded(seed int64) *Queue {
	return &Queue{pos: -1, rng: rand.New(rand.NewSource(seed))}
}

// SetTracks replaces the sequence. The cursor moves to the first track, or
// to the empty state when tracks is empty. Shuffle, if on, is reapplied.
func (q *Queue) SetTracks(tracks []library.Track) {
	q.tracks = append([]library.Track(nil), tracks...)
	q.order = make([]int, len(q.tracks))
	for i := range q.order {
		q.order[i] = i
	}
	if len(q.tracks) == 0 {
		q.pos = -1
		return
	}
	q.pos = 0
	if q.shuffle {
		q.doShuffle()
	}
}

// Add appends tracks to the queue.
func (q *Queue) Add(tracks ...library.Track) {
	start := len(q.tracks)
	q.tracks = append(q.tracks, tracks...)
	for i := start; i < len(q.tracks); i++ {
		q.order = append(q.order, i)
	}
	if q.pos < 0 && len(q.tracks) > 0 {
		q.pos = 0
	}
}

// Len returns the number of tracks.
func (q *Queue) Len() int { return len(q.tracks) }

// Current returns the track under the cursor and its index in Tracks().
// The index is -1 when the queue is empty.
func (q *Queue) Current() (library.Track, int) {
	if q.pos < 0 {
		return library.Track{}, -1
	}
	idx := q.order[q.pos]
	return q.tracks[idx], idx
}

// Index returns the track index of the current position, or -1.
func (q *Queue) Index() int {
	if q.pos < 0 {
		return -1
	}
	return q.order[q.pos]
}

// Contains reports whether a track with id is in the queue.
func (q *Queue) Contains(id uuid.UUID) bool {
	return q.indexOf(id) >= 0
}

// SetCurrent moves the cursor to the first occurrence of the track with
// t's ID. It reports false and leaves the cursor alone if it is absent.
func (q *Queue) SetCurrent(t library.Track) bool {
	idx := q.indexOf(t.ID)
	if idx < 0 {
		return false
	}
	q.SetIndex(idx)
	return true
}

// SetIndex sets the current position to the given track index.
func (q *Queue) SetIndex(i int) {
	for pos, idx := range q.order {
		if idx == i {
			q.pos = pos
			return
		}
	}
}

// HasNext reports whether Next would return a track.
func (q *Queue) HasNext() bool {
	if q.pos < 0 {
		return false
	}
	return q.repeat != RepeatOff || q.pos+1 < len(q.order)
}

// HasPrevious reports whether Prev would return a track.
func (q *Queue) HasPrevious() bool {
	if q.pos < 0 {
		return false
	}
	return q.repeat != RepeatOff || q.pos > 0
}

// Next advances to the next track. Returns false, without moving, if at
// the end with repeat off. RepeatOne keeps the cursor in place.
func (q *Queue) Next() (library.Track, bool) { return q.step(1, true) }

// Prev moves to the previous track. Wraps around with RepeatAll and
// returns false, without moving, at the start with repeat off.
func (q *Queue) Prev() (library.Track, bool) { return q.step(-1, true) }

// Skip is Next for an explicit user request: RepeatOne behaves like
// RepeatAll so the listener can leave a repeated track.
func (q *Queue) Skip() (library.Track, bool) { return q.step(1, false) }

// SkipBack is Prev with the same RepeatOne treatment as Skip.
func (q *Queue) SkipBack() (library.Track, bool) { return q.step(-1, false) }

func (q *Queue) step(dir int, holdOne bool) (library.Track, bool) {
	if q.pos < 0 {
		return library.Track{}, false
	}
	if q.repeat == RepeatOne && holdOne {
		return q.tracks[q.order[q.pos]], true
	}
	next := q.pos + dir
	if next >= 0 && next < len(q.order) {
		q.pos = next
		return q.tracks[q.order[q.pos]], true
	}
	if q.repeat == RepeatOff {
		return library.Track{}, false
	}
	if dir > 0 {
		q.pos = 0
		if q.shuffle {
			q.doShuffle()
		}
	} else {
		q.pos = len(q.order) - 1
	}
	return q.tracks[q.order[q.pos]], true
}

// Tracks returns all tracks in insertion order.
func (q *Queue) Tracks() []library.Track { return q.tracks }

// ToggleShuffle enables or disables shuffle mode.
// Uses Fisher-Yates shuffle, preserving the current track at position 0.
func (q *Queue) ToggleShuffle() {
	q.shuffle = !q.shuffle
	if q.pos < 0 {
		return
	}
	if q.shuffle {
		q.doShuffle()
		return
	}
	cur := q.order[q.pos]
	q.order = make([]int, len(q.tracks))
	for i := range q.order {
		q.order[i] = i
	}
	q.pos = cur
}

func (q *Queue) doShuffle() {
	cur := q.order[q.pos]
	others := make([]int, 0, len(q.tracks)-1)
	for i := range len(q.tracks) {
		if i != cur {
			others = append(others, i)
		}
	}
	for i := len(others) - 1; i > 0; i-- {
		j := q.intn(i + 1)
		others[i], others[j] = others[j], others[i]
	}
	q.order = make([]int, 0, len(q.tracks))
	q.order = append(q.order, cur)
	q.order = append(q.order, others...)
	q.pos = 0
}

func (q *Queue) intn(n int) int {
	if q.rng != nil {
		return q.rng.Intn(n)
	}
	return rand.Intn(n)
}

func (q *Queue) indexOf(id uuid.UUID) int {
	for i, t := range q.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// SetRepeat sets the repeat mode.
func (q *Queue) SetRepeat(r RepeatMode) { q.repeat = r }

// CycleRepeat cycles through Off -> All -> One.
func (q *Queue) CycleRepeat() {
	q.repeat = (q.repeat + 1) % 3
}

// Shuffled returns whether shuffle is enabled.
func (q *Queue) Shuffled() bool { return q.shuffle }

// Repeat returns the current repeat mode.
func (q *Queue) Repeat() RepeatMode { return q.repeat }
