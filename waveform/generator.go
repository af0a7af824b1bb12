package waveform

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/bo1ta/Illuminated/decode"
	"github.com/bo1ta/Illuminated/library"
)

// Result is the outcome of a Generate call.
type Result struct {
	Summary Summary
	// Path is the cached summary file, or empty when the summary could not
	// be written to the cache.
	Path string
	// Cached is true when the summary came from the cache without decoding.
	Cached bool
}

// Outcome is delivered by GenerateAsync.
type Outcome struct {
	Result Result
	Err    error
}

// Generator produces waveform summaries, serving repeated requests from
// the cache and coalescing concurrent requests for the same track and size
// into a single decode.
type Generator struct {
	cache   *Cache
	decoder decode.Decoder
	store   library.Store
	logger  *log.Logger
	group   singleflight.Group
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithStore records generated summary paths on the track.
func WithStore(s library.Store) GeneratorOption {
	return func(g *Generator) { g.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a Generator backed by cache.
func NewGenerator(cache *Cache, dec decode.Decoder, opts ...GeneratorOption) *Generator {
	g := &Generator{cache: cache, decoder: dec, logger: log.Default()}
	for _, o := range opts {
		o(g)
	}
	g.logger = g.logger.With("component", "waveform")
	return g
}

// Cache returns the generator's cache.
func (g *Generator) Cache() *Cache { return g.cache }

// Generate returns the summary of track at size, decoding source only on a
// cache miss. Concurrent calls for the same track and size share one
// decode. The shared work is not cancelled when one caller gives up; a
// caller whose ctx ends returns ctx.Err() and the result still lands in the
// cache for later callers.
func (g *Generator) Generate(ctx context.Context, track library.Track, source string, size Size) (Result, error) {
	return g.GenerateWithRelease(ctx, track, source, size, nil)
}

// GenerateWithRelease is Generate for a source that must stay readable
// until the decode is over. release runs exactly once, when no work started
// for this call still reads source. That may be after the call returns.
func (g *Generator) GenerateWithRelease(ctx context.Context, track library.Track, source string, size Size, release func()) (Result, error) {
	if release == nil {
		release = func() {}
	}
	if sum, path, err := g.cache.Lookup(track.ID, size); err == nil {
		release()
		return Result{Summary: sum, Path: path, Cached: true}, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		g.logger.Warn("discarding unreadable cache entry", "track", track.ID, "err", err)
		if err := g.cache.RemovePath(g.cache.Path(track.ID, size)); err != nil {
			g.logger.Warn("cache entry not removed", "track", track.ID, "err", err)
		}
	}

	work := context.WithoutCancel(ctx)
	ch := g.group.DoChan(Key(track.ID, size), func() (any, error) {
		return g.generate(work, track, source, size)
	})
	select {
	case <-ctx.Done():
		go func() {
			<-ch
			release()
		}()
		return Result{}, ctx.Err()
	case r := <-ch:
		release()
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

func (g *Generator) generate(ctx context.Context, track library.Track, source string, size Size) (Result, error) {
	// A flight that finished between our lookup and DoChan has already saved.
	if sum, path, err := g.cache.Lookup(track.ID, size); err == nil {
		return Result{Summary: sum, Path: path, Cached: true}, nil
	}

	s, format, err := g.decoder.Decode(ctx, source)
	if err != nil {
		return Result{}, fmt.Errorf("waveform %s: %w", track.ID, err)
	}
	defer s.Close()

	sum, err := Summarize(ctx, s, s.Len(), format, size)
	if err != nil {
		return Result{}, fmt.Errorf("waveform %s: %w", track.ID, err)
	}

	res := Result{Summary: sum}
	path, err := g.cache.Save(track.ID, size, sum)
	if err != nil {
		g.logger.Warn("waveform not cached", "track", track.ID, "err", err)
		return res, nil
	}
	res.Path = path
	g.logger.Debug("waveform generated", "track", track.ID, "points", len(sum.Points), "path", path)

	if g.store != nil {
		if err := g.store.SetWaveformPath(ctx, track.ID, path); err != nil {
			g.logger.Warn("waveform path not stored", "track", track.ID, "err", err)
		}
	}
	return res, nil
}

// GenerateAsync runs Generate in a goroutine and delivers exactly one
// Outcome on the returned channel.
func (g *Generator) GenerateAsync(ctx context.Context, track library.Track, source string, size Size) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		res, err := g.Generate(ctx, track, source, size)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}
