package library

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tracks map[uuid.UUID]Track
	order  []uuid.UUID
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tracks: make(map[uuid.UUID]Track),
		now:    time.Now,
	}
}

func (s *MemoryStore) Track(_ context.Context, id uuid.UUID) (Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	if !ok {
		return Track{}, fmt.Errorf("%w: track %s", ErrNotFound, id)
	}
	return t, nil
}

func (s *MemoryStore) TrackByLocation(_ context.Context, location string) (Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if t := s.tracks[id]; t.Location == location {
			return t, nil
		}
	}
	return Track{}, fmt.Errorf("%w: location %s", ErrNotFound, location)
}

// Tracks returns all tracks in insertion order.
func (s *MemoryStore) Tracks(_ context.Context) ([]Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tracks[id])
	}
	return out, nil
}

// Save inserts or replaces t, assigning an ID when it has none.
func (s *MemoryStore) Save(_ context.Context, t *Track) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.tracks {
		if id != t.ID && t.Location != "" && other.Location == t.Location {
			return fmt.Errorf("library: location %s already stored as %s", t.Location, id)
		}
	}
	if _, ok := s.tracks[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.tracks[t.ID] = *t
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[id]; !ok {
		return fmt.Errorf("%w: track %s", ErrNotFound, id)
	}
	delete(s.tracks, id)
	s.order = slices.DeleteFunc(s.order, func(o uuid.UUID) bool { return o == id })
	return nil
}

func (s *MemoryStore) SetTempo(_ context.Context, id uuid.UUID, bpm float64) error {
	return s.update(id, func(t *Track) { t.Tempo = bpm })
}

func (s *MemoryStore) SetWaveformPath(_ context.Context, id uuid.UUID, path string) error {
	return s.update(id, func(t *Track) { t.WaveformPath = path })
}

func (s *MemoryStore) IncrementPlayCount(_ context.Context, id uuid.UUID) error {
	now := s.now()
	return s.update(id, func(t *Track) {
		t.PlayCount++
		t.LastPlayed = now
	})
}

func (s *MemoryStore) update(id uuid.UUID, fn func(*Track)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return fmt.Errorf("%w: track %s", ErrNotFound, id)
	}
	fn(&t)
	s.tracks[id] = t
	return nil
}

var _ Store = (*MemoryStore)(nil)
