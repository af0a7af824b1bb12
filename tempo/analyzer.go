package tempo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bo1ta/Illuminated/decode"
	"github.com/bo1ta/Illuminated/library"
)

var errLimit = errors.New("tempo: analysis limit reached")

// Outcome is delivered by AnalyzeAsync.
type Outcome struct {
	Estimate Estimate
	Err      error
}

// Analyzer decodes tracks and estimates their tempo, recording determined
// tempos in the library.
type Analyzer struct {
	resolver library.Resolver
	decoder  decode.Decoder
	store    library.Store
	logger   *log.Logger
	limit    time.Duration
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStore persists determined tempos.
func WithStore(s library.Store) Option { return func(a *Analyzer) { a.store = s } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(a *Analyzer) { a.logger = l } }

// WithLimit bounds how much of each track is analyzed. Zero means the
// whole track.
func WithLimit(d time.Duration) Option { return func(a *Analyzer) { a.limit = d } }

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(res library.Resolver, dec decode.Decoder, opts ...Option) *Analyzer {
	a := &Analyzer{resolver: res, decoder: dec, logger: log.Default()}
	for _, o := range opts {
		o(a)
	}
	a.logger = a.logger.With("component", "tempo")
	return a
}

// Analyze resolves the track's source and estimates its tempo from the
// whole track, or from its first part when WithLimit is set.
func (a *Analyzer) Analyze(ctx context.Context, track library.Track) (Estimate, error) {
	src, err := a.resolver.Resolve(ctx, track)
	if err != nil {
		return Estimate{}, fmt.Errorf("tempo %s: %w", track.ID, err)
	}
	defer src.Release()
	return a.AnalyzeSource(ctx, track, src.Path)
}

// AnalyzeSource estimates the tempo of an already resolved source.
func (a *Analyzer) AnalyzeSource(ctx context.Context, track library.Track, source string) (Estimate, error) {
	s, format, err := a.decoder.Decode(ctx, source)
	if err != nil {
		return Estimate{}, fmt.Errorf("tempo %s: %w", track.ID, err)
	}
	defer s.Close()

	in := newInput(int(format.SampleRate), a.limit)
	err = decode.ReadMono(ctx, s, func(block []float32) error {
		if !in.add(block) {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return Estimate{}, fmt.Errorf("tempo %s: %w", track.ID, err)
	}

	est := in.estimate()
	if !est.Determined {
		a.logger.Debug("tempo undetermined", "track", track.ID, "analyzed", in.duration())
		return est, nil
	}
	a.logger.Debug("tempo estimated", "track", track.ID, "bpm", est.BPM, "confidence", est.Confidence)

	if a.store != nil {
		if err := a.store.SetTempo(ctx, track.ID, est.BPM); err != nil {
			a.logger.Warn("tempo not stored", "track", track.ID, "err", err)
		}
	}
	return est, nil
}

// AnalyzeAsync runs Analyze in a goroutine and delivers exactly one
// Outcome on the returned channel.
func (a *Analyzer) AnalyzeAsync(ctx context.Context, track library.Track) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		est, err := a.Analyze(ctx, track)
		ch <- Outcome{Estimate: est, Err: err}
	}()
	return ch
}
