// Package library defines the track record shared by the player and the
// analysis components, and the collaborators that persist and resolve it.
package library

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means the track or its file does not exist.
	ErrNotFound = errors.New("library: not found")
	// ErrAccessDenied means the file exists but cannot be read.
	ErrAccessDenied = errors.New("library: access denied")
	// ErrNoSource means the track has no playable location.
	ErrNoSource = errors.New("library: track has no playable source")
)

// Track is a single playable audio item.
type Track struct {
	ID           uuid.UUID
	Title        string
	Artist       string
	Album        string
	Location     string
	Duration     time.Duration
	Tempo        float64 // BPM, 0 when not analyzed
	WaveformPath string
	PlayCount    int
	LastPlayed   time.Time
}

// TrackFromPath creates a Track with a fresh ID by parsing the filename.
// Supports "Artist - Title" format, otherwise uses the filename as title.
func TrackFromPath(path string) Track {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	t := Track{ID: uuid.New(), Location: path, Title: name}
	parts := strings.SplitN(name, " - ", 2)
	if len(parts) == 2 {
		t.Artist = strings.TrimSpace(parts[0])
		t.Title = strings.TrimSpace(parts[1])
	}
	return t
}

// DisplayName returns a formatted display string for the track.
func (t Track) DisplayName() string {
	if t.Artist != "" {
		return t.Artist + " - " + t.Title
	}
	return t.Title
}

// HasTempo reports whether a tempo has been stored for the track.
func (t Track) HasTempo() bool { return t.Tempo > 0 }

// Store persists tracks and the values computed for them.
type Store interface {
	Track(ctx context.Context, id uuid.UUID) (Track, error)
	TrackByLocation(ctx context.Context, location string) (Track, error)
	Tracks(ctx context.Context) ([]Track, error)
	Save(ctx context.Context, t *Track) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetTempo(ctx context.Context, id uuid.UUID, bpm float64) error
	SetWaveformPath(ctx context.Context, id uuid.UUID, path string) error
	IncrementPlayCount(ctx context.Context, id uuid.UUID) error
}
