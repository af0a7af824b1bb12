package library

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/bo1ta/Illuminated/decode"
)

// Importer adds audio files to a Store.
type Importer struct {
	Store  Store
	Logger *log.Logger
}

// ExpandPaths expands shell globs that may not have been expanded by the shell.
func ExpandPaths(args []string) []string {
	var files []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil || len(matches) == 0 {
			files = append(files, arg)
		} else {
			files = append(files, matches...)
		}
	}
	return files
}

// Import stores a track for every supported file in paths and returns them
// in the order given. Files already in the store are returned as stored.
// Unreadable or unsupported files are skipped and reported in the joined error.
func (im *Importer) Import(ctx context.Context, paths []string) ([]Track, error) {
	logger := im.Logger
	if logger == nil {
		logger = log.Default()
	}

	tracks := make([]*Track, len(paths))
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			if existing, err := im.Store.TrackByLocation(gctx, abs); err == nil {
				tracks[i] = &existing
				return nil
			}

			d, _, err := decode.Probe(abs)
			if err != nil {
				logger.Warn("skipping file", "path", abs, "err", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			t := TrackFromPath(abs)
			t.Duration = d
			tracks[i] = &t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t == nil {
			continue
		}
		if existing, err := im.Store.TrackByLocation(ctx, t.Location); err == nil {
			out = append(out, existing)
			continue
		}
		if err := im.Store.Save(ctx, t); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Debug("imported track", "track", t.ID, "path", t.Location, "duration", t.Duration)
		out = append(out, *t)
	}
	return out, errors.Join(errs...)
}
