package player

import (
	"sync"
	"time"

	"github.com/bo1ta/Illuminated/library"
	"github.com/bo1ta/Illuminated/tempo"
	"github.com/bo1ta/Illuminated/waveform"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	TrackChanged EventKind = iota
	StateChanged
	ProgressChanged
	ErrorOccurred
	WaveformReady
	TempoReady
)

func (k EventKind) String() string {
	switch k {
	case TrackChanged:
		return "track"
	case StateChanged:
		return "state"
	case ProgressChanged:
		return "progress"
	case ErrorOccurred:
		return "error"
	case WaveformReady:
		return "waveform"
	case TempoReady:
		return "tempo"
	default:
		return "unknown"
	}
}

// Event is a notification from the engine. Only the fields relevant to
// Kind are set. Track is nil in a TrackChanged event when playback stopped.
type Event struct {
	Kind     EventKind
	Track    *library.Track
	State    State
	Position time.Duration
	Duration time.Duration
	Err      error
	Waveform waveform.Result
	Tempo    tempo.Estimate
}

// subscriberBuffer is the per-subscriber channel capacity. Events for a
// subscriber that falls this far behind are dropped.
const subscriberBuffer = 64

// Subscription delivers engine events on C until it is unsubscribed or the
// engine is closed, at which point C is closed.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// broadcaster fans events out to subscribers without ever blocking the
// sender.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[*Subscription]struct{})}
}

func (b *broadcaster) subscribe() *Subscription {
	ch := make(chan Event, subscriberBuffer)
	s := &Subscription{C: ch, ch: ch}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *broadcaster) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

func (b *broadcaster) emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
}
