package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Source is a readable location for a track's audio. Release must be called
// once the caller is done reading.
type Source struct {
	Path    string
	release func()
}

// NewSource returns a Source whose Release calls release (which may be nil).
func NewSource(path string, release func()) Source {
	return Source{Path: path, release: release}
}

// Release gives back any access granted for the source.
func (s Source) Release() {
	if s.release != nil {
		s.release()
	}
}

// Resolver maps a track to a readable source.
type Resolver interface {
	Resolve(ctx context.Context, t Track) (Source, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, t Track) (Source, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, t Track) (Source, error) { return f(ctx, t) }

// FileResolver resolves tracks whose Location is a local file path.
type FileResolver struct{}

// Resolve checks that the track's file exists and is readable.
func (FileResolver) Resolve(ctx context.Context, t Track) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}
	if t.Location == "" {
		return Source{}, ErrNoSource
	}

	info, err := os.Stat(t.Location)
	if err != nil {
		return Source{}, classify(t.Location, err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%w: %s is a directory", ErrNoSource, t.Location)
	}

	f, err := os.Open(t.Location)
	if err != nil {
		return Source{}, classify(t.Location, err)
	}
	f.Close()

	return NewSource(t.Location, nil), nil
}

func classify(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrAccessDenied, path)
	default:
		return fmt.Errorf("resolve %s: %w", path, err)
	}
}
