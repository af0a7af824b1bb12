package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"

	"github.com/bo1ta/Illuminated/decode"
)

func TestTrackFromPath(t *testing.T) {
	tests := []struct {
		path, artist, title, display string
	}{
		{"/music/Boards of Canada - Roygbiv.mp3", "Boards of Canada", "Roygbiv", "Boards of Canada - Roygbiv"},
		{"/music/untitled.flac", "", "untitled", "untitled"},
		{"song - with - dashes.wav", "song", "with - dashes", "song - with - dashes"},
	}
	for _, tt := range tests {
		tr := TrackFromPath(tt.path)
		if tr.Artist != tt.artist || tr.Title != tt.title {
			t.Errorf("TrackFromPath(%q) = (%q, %q), want (%q, %q)", tt.path, tr.Artist, tr.Title, tt.artist, tt.title)
		}
		if got := tr.DisplayName(); got != tt.display {
			t.Errorf("DisplayName() = %q, want %q", got, tt.display)
		}
		if tr.ID == uuid.Nil {
			t.Errorf("TrackFromPath(%q) left ID unset", tt.path)
		}
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sql, err := OpenSQL(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	t.Cleanup(func() { sql.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sql":    sql,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			tr := TrackFromPath("/music/Artist - Song.mp3")
			tr.Duration = 3*time.Minute + 20*time.Second
			if err := s.Save(ctx, &tr); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := s.Track(ctx, tr.ID)
			if err != nil {
				t.Fatalf("Track: %v", err)
			}
			if got.Title != "Song" || got.Artist != "Artist" || got.Duration != tr.Duration {
				t.Errorf("Track() = %+v, want %+v", got, tr)
			}

			byLoc, err := s.TrackByLocation(ctx, tr.Location)
			if err != nil || byLoc.ID != tr.ID {
				t.Errorf("TrackByLocation = (%v, %v), want id %v", byLoc.ID, err, tr.ID)
			}

			if err := s.SetTempo(ctx, tr.ID, 128.5); err != nil {
				t.Fatalf("SetTempo: %v", err)
			}
			if err := s.SetWaveformPath(ctx, tr.ID, "/cache/x.json"); err != nil {
				t.Fatalf("SetWaveformPath: %v", err)
			}
			if err := s.IncrementPlayCount(ctx, tr.ID); err != nil {
				t.Fatalf("IncrementPlayCount: %v", err)
			}
			if err := s.IncrementPlayCount(ctx, tr.ID); err != nil {
				t.Fatalf("IncrementPlayCount: %v", err)
			}

			got, _ = s.Track(ctx, tr.ID)
			if got.Tempo != 128.5 || !got.HasTempo() {
				t.Errorf("Tempo = %v, want 128.5", got.Tempo)
			}
			if got.WaveformPath != "/cache/x.json" {
				t.Errorf("WaveformPath = %q, want /cache/x.json", got.WaveformPath)
			}
			if got.PlayCount != 2 || got.LastPlayed.IsZero() {
				t.Errorf("PlayCount = %d LastPlayed = %v, want 2 and set", got.PlayCount, got.LastPlayed)
			}

			all, err := s.Tracks(ctx)
			if err != nil || len(all) != 1 {
				t.Errorf("Tracks() = (%d, %v), want 1 track", len(all), err)
			}

			if err := s.Delete(ctx, tr.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Track(ctx, tr.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("Track after delete err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreMissingTrack(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id := uuid.New()
			if err := s.SetTempo(ctx, id, 120); !errors.Is(err, ErrNotFound) {
				t.Errorf("SetTempo err = %v, want ErrNotFound", err)
			}
			if err := s.SetWaveformPath(ctx, id, "p"); !errors.Is(err, ErrNotFound) {
				t.Errorf("SetWaveformPath err = %v, want ErrNotFound", err)
			}
			if err := s.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Errorf("Delete err = %v, want ErrNotFound", err)
			}
			if _, err := s.TrackByLocation(ctx, "/nowhere"); !errors.Is(err, ErrNotFound) {
				t.Errorf("TrackByLocation err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestFileResolver(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(file, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	src, err := FileResolver{}.Resolve(ctx, Track{Location: file})
	if err != nil || src.Path != file {
		t.Fatalf("Resolve(existing) = (%q, %v), want (%q, nil)", src.Path, err, file)
	}
	src.Release()

	tests := []struct {
		name     string
		location string
		want     error
	}{
		{"empty", "", ErrNoSource},
		{"missing", filepath.Join(dir, "gone.wav"), ErrNotFound},
		{"directory", dir, ErrNoSource},
	}
	for _, tt := range tests {
		if _, err := (FileResolver{}).Resolve(ctx, Track{Location: tt.location}); !errors.Is(err, tt.want) {
			t.Errorf("%s: Resolve err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestSourceRelease(t *testing.T) {
	released := 0
	src := NewSource("/x", func() { released++ })
	src.Release()
	if released != 1 {
		t.Errorf("release called %d times, want 1", released)
	}
	NewSource("/y", nil).Release()
}

func TestImporter(t *testing.T) {
	dir := t.TempDir()
	format := beep.Format{SampleRate: 8000, NumChannels: 2, Precision: 2}
	good := filepath.Join(dir, "Band - Tune.wav")
	if err := decode.EncodeWAV(good, decode.NewMonoMemory(make([]float64, 16000)), format); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	bad := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(bad, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewMemoryStore()
	im := &Importer{Store: store}
	tracks, err := im.Import(context.Background(), []string{good, bad, good})
	if err == nil {
		t.Error("Import err = nil, want error for unsupported file")
	}
	if len(tracks) != 2 {
		t.Fatalf("Import returned %d tracks, want 2", len(tracks))
	}
	if tracks[0].ID != tracks[1].ID {
		t.Errorf("duplicate path produced distinct ids %v and %v", tracks[0].ID, tracks[1].ID)
	}
	if tracks[0].Title != "Tune" || tracks[0].Duration != 2*time.Second {
		t.Errorf("imported %+v, want title Tune, 2s", tracks[0])
	}

	again, err := im.Import(context.Background(), []string{good})
	if err != nil || len(again) != 1 || again[0].ID != tracks[0].ID {
		t.Errorf("re-import = (%v, %v), want existing track", again, err)
	}
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mp3", "b.mp3"} {
		os.WriteFile(filepath.Join(dir, name), nil, 0o644)
	}
	got := ExpandPaths([]string{filepath.Join(dir, "*.mp3"), "/literal/missing.mp3"})
	if len(got) != 3 {
		t.Errorf("ExpandPaths = %v, want 3 entries", got)
	}
}
