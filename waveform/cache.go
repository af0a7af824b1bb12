package waveform

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const cacheVersion = 1

// ErrCacheMiss is returned by Lookup when nothing is stored for the key.
var ErrCacheMiss = errors.New("waveform: not cached")

// cacheFile is the on-disk JSON layout of a summary.
type cacheFile struct {
	Version    int     `json:"version"`
	Track      string  `json:"track"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	SampleRate int     `json:"sample_rate"`
	DurationMs int64   `json:"duration_ms"`
	Points     []Point `json:"points"`
}

// Cache stores summaries under dir as <track-uuid>/<width>x<height>.json with
// a rendered PNG next to each JSON file. Keys include the size, so the same
// track can be cached at several sizes.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir, creating it if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create waveform cache: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// Key returns the cache key for a track at a size.
func Key(id uuid.UUID, size Size) string {
	return fmt.Sprintf("%s-%dx%d", id, size.Buckets(), size.Height)
}

// Path returns where the summary for id at size is stored.
func (c *Cache) Path(id uuid.UUID, size Size) string {
	return filepath.Join(c.dir, id.String(), fmt.Sprintf("%dx%d.json", size.Buckets(), size.Height))
}

// ImagePath returns the PNG rendering path that sits next to a summary path.
func ImagePath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
}

// Save writes the summary and its rendering and returns the summary path.
func (c *Cache) Save(id uuid.UUID, size Size, sum Summary) (string, error) {
	path := c.Path(id, size)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("save waveform: %w", err)
	}

	data, err := json.Marshal(cacheFile{
		Version:    cacheVersion,
		Track:      id.String(),
		Width:      size.Buckets(),
		Height:     size.Height,
		SampleRate: sum.SampleRate,
		DurationMs: sum.Duration.Milliseconds(),
		Points:     sum.Points,
	})
	if err != nil {
		return "", fmt.Errorf("encode waveform: %w", err)
	}
	png, err := EncodePNG(Render(sum, size))
	if err != nil {
		return "", fmt.Errorf("render waveform: %w", err)
	}

	// The summary is written last: Lookup treats it as the complete entry.
	if err := writeAtomic(ImagePath(path), png); err != nil {
		return "", fmt.Errorf("save waveform image: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		os.Remove(ImagePath(path))
		return "", fmt.Errorf("save waveform: %w", err)
	}
	return path, nil
}

// Load reads a summary previously returned by Save.
func (c *Cache) Load(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("load waveform: %w", err)
	}
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Summary{}, fmt.Errorf("decode waveform %s: %w", filepath.Base(path), err)
	}
	if f.Version != cacheVersion || len(f.Points) == 0 {
		return Summary{}, fmt.Errorf("waveform %s: unsupported cache entry", filepath.Base(path))
	}
	return Summary{
		Points:     f.Points,
		SampleRate: f.SampleRate,
		Duration:   time.Duration(f.DurationMs) * time.Millisecond,
	}, nil
}

// LoadOrPlaceholder loads path and falls back to a flat summary on any error.
func (c *Cache) LoadOrPlaceholder(path string, size Size) Summary {
	sum, err := c.Load(path)
	if err != nil {
		return Placeholder(size)
	}
	return sum
}

// Lookup returns the cached summary for id at size and its path.
func (c *Cache) Lookup(id uuid.UUID, size Size) (Summary, string, error) {
	path := c.Path(id, size)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Summary{}, "", ErrCacheMiss
	}
	sum, err := c.Load(path)
	if err != nil {
		return Summary{}, "", err
	}
	return sum, path, nil
}

// RemovePath deletes one cached summary and its rendering. Missing files
// are not an error.
func (c *Cache) RemovePath(path string) error {
	for _, p := range []string{path, ImagePath(path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove waveform: %w", err)
		}
	}
	return nil
}

// Remove deletes every cached size for id.
func (c *Cache) Remove(id uuid.UUID) error {
	if err := os.RemoveAll(filepath.Join(c.dir, id.String())); err != nil {
		return fmt.Errorf("remove waveforms for %s: %w", id, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
