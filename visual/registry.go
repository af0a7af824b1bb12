package visual

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var ErrDuplicatePreset = errors.New("visual: preset already registered")

// Registry is an ordered set of presets keyed by ID. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	presets []Preset
}

// NewRegistry creates a registry holding presets. Later duplicates of an ID
// are ignored.
func NewRegistry(presets ...Preset) *Registry {
	r := &Registry{}
	for _, p := range presets {
		r.Register(p)
	}
	return r
}

// Register appends p. It fails if a preset with the same ID exists.
func (r *Registry) Register(p Preset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(p.ID()) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicatePreset, p.ID())
	}
	r.presets = append(r.presets, p)
	return nil
}

// Unregister removes the preset with id and reports whether it was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return false
	}
	r.presets = slices.Delete(r.presets, i, i+1)
	return true
}

// ByID returns the preset with id.
func (r *Registry) ByID(id string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.presets[i], true
	}
	return nil, false
}

// At returns the preset at index i.
func (r *Registry) At(i int) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.presets) {
		return nil, false
	}
	return r.presets[i], true
}

// Len returns the number of presets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.presets)
}

// All returns the presets in registration order.
func (r *Registry) All() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.presets)
}

func (r *Registry) indexLocked(id string) int {
	return slices.IndexFunc(r.presets, func(p Preset) bool { return p.ID() == id })
}

// Queue cycles through a fixed list of presets, wrapping at both ends.
type Queue struct {
	presets []Preset
	index   int
}

// NewQueue creates a queue over presets, positioned at the first.
func NewQueue(presets []Preset) *Queue {
	return &Queue{presets: slices.Clone(presets)}
}

// QueueFor creates a queue over everything in r.
func QueueFor(r *Registry) *Queue { return NewQueue(r.All()) }

// Current returns the selected preset, or nil for an empty queue.
func (q *Queue) Current() Preset {
	if len(q.presets) == 0 {
		return nil
	}
	return q.presets[q.index]
}

// Index returns the selected position, or -1 for an empty queue.
func (q *Queue) Index() int {
	if len(q.presets) == 0 {
		return -1
	}
	return q.index
}

func (q *Queue) Len() int { return len(q.presets) }

// Presets returns the queued presets.
func (q *Queue) Presets() []Preset { return slices.Clone(q.presets) }

// Next selects and returns the following preset.
func (q *Queue) Next() Preset {
	if len(q.presets) == 0 {
		return nil
	}
	q.index = (q.index + 1) % len(q.presets)
	return q.presets[q.index]
}

// Previous selects and returns the preceding preset.
func (q *Queue) Previous() Preset {
	if len(q.presets) == 0 {
		return nil
	}
	q.index = (q.index - 1 + len(q.presets)) % len(q.presets)
	return q.presets[q.index]
}

// At selects the preset at i. Out-of-range indexes return nil and leave
// the selection unchanged.
func (q *Queue) At(i int) Preset {
	if i < 0 || i >= len(q.presets) {
		return nil
	}
	q.index = i
	return q.presets[i]
}

// Select selects the preset with id and reports whether it was found.
func (q *Queue) Select(id string) bool {
	i := slices.IndexFunc(q.presets, func(p Preset) bool { return p.ID() == id })
	if i < 0 {
		return false
	}
	q.index = i
	return true
}

// Reset selects the first preset.
func (q *Queue) Reset() { q.index = 0 }
