package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"golang.org/x/sync/semaphore"

	"github.com/bo1ta/Illuminated/analysis"
	"github.com/bo1ta/Illuminated/decode"
	"github.com/bo1ta/Illuminated/library"
	"github.com/bo1ta/Illuminated/playlist"
	"github.com/bo1ta/Illuminated/tempo"
	"github.com/bo1ta/Illuminated/waveform"
)

var (
	ErrResolve    = errors.New("player: cannot resolve track source")
	ErrDecode     = errors.New("player: cannot decode track")
	ErrOutput     = errors.New("player: output failed")
	ErrSuperseded = errors.New("player: load superseded by a newer request")
	ErrNoTrack    = errors.New("player: no track to play")
	ErrClosed     = errors.New("player: engine closed")
)

// State is the engine's transport state.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Loading:
		return "Loading"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Idle"
	}
}

// restartThreshold is how far into a track PlayPrevious restarts it
// instead of moving back.
const restartThreshold = 3 * time.Second

// Options configures an Engine. Output is required.
type Options struct {
	Output   Output
	Decoder  decode.Decoder
	Resolver library.Resolver
	// Store, when set, records play counts.
	Store library.Store
	// Waveforms and Tempo, when set, run for every started track.
	Waveforms    *waveform.Generator
	WaveformSize waveform.Size
	Tempo        *tempo.Analyzer
	// Workers bounds concurrent waveform and tempo jobs.
	Workers          int
	AnalysisSize     int
	ProgressInterval time.Duration
	// Volume is the initial level, clamped to [0, 1]. Nil means full volume.
	Volume *float64
	Queue  *playlist.Queue
	Logger *log.Logger
}

// Engine plays one track at a time from its queue through an Output.
//
// Lock order is e.mu before the Output lock. The audio thread holds only
// the Output lock.
type Engine struct {
	out       Output
	decoder   decode.Decoder
	resolver  library.Resolver
	store     library.Store
	waveforms *waveform.Generator
	waveSize  waveform.Size
	tempo     *tempo.Analyzer
	jobs      *semaphore.Weighted
	buf       *analysis.Buffer
	taps      tapSlot
	events    *broadcaster
	logger    *log.Logger
	interval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	ended  chan uint64
	quit   chan struct{}
	wg     sync.WaitGroup

	mu         sync.Mutex
	queue      *playlist.Queue
	state      State
	current    *library.Track
	pipe       *pipeline
	source     *lease
	volume     float64
	eq         [10]float64
	loadSeq    uint64
	loadCancel context.CancelFunc
	// detached is set when the current track is no longer in the queue, or
	// nothing has played yet; the next advance starts at the queue cursor.
	detached bool
	closed   bool
}

// New creates an Engine and starts its monitor goroutine.
func New(opts Options) (*Engine, error) {
	if opts.Output == nil {
		return nil, errors.New("player: Output is required")
	}
	if opts.Decoder == nil {
		opts.Decoder = decode.FileDecoder{}
	}
	if opts.Resolver == nil {
		opts.Resolver = library.FileResolver{}
	}
	if opts.AnalysisSize <= 0 {
		opts.AnalysisSize = 1024
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 250 * time.Millisecond
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	volume := 1.0
	if opts.Volume != nil && !math.IsNaN(*opts.Volume) {
		volume = max(0, min(*opts.Volume, 1))
	}
	if opts.WaveformSize.Width <= 0 {
		opts.WaveformSize = waveform.Size{Width: 600, Height: 64}
	}
	if opts.Queue == nil {
		opts.Queue = playlist.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	buf, err := analysis.New(opts.AnalysisSize)
	if err != nil {
		return nil, fmt.Errorf("player: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		out:       opts.Output,
		decoder:   opts.Decoder,
		resolver:  opts.Resolver,
		store:     opts.Store,
		waveforms: opts.Waveforms,
		waveSize:  opts.WaveformSize,
		tempo:     opts.Tempo,
		jobs:      semaphore.NewWeighted(int64(opts.Workers)),
		buf:       buf,
		events:    newBroadcaster(),
		logger:    opts.Logger.With("component", "player"),
		interval:  opts.ProgressInterval,
		ctx:       ctx,
		cancel:    cancel,
		ended:     make(chan uint64, 8),
		quit:      make(chan struct{}),
		queue:     opts.Queue,
		volume:    volume,
		detached:  true,
	}
	e.wg.Add(1)
	go e.monitor()
	return e, nil
}

// lease releases a resolved source once playback and every job using it
// are done.
type lease struct {
	src  library.Source
	refs atomic.Int32
}

func newLease(src library.Source) *lease {
	l := &lease{src: src}
	l.refs.Store(1)
	return l
}

func (l *lease) hold() { l.refs.Add(1) }

func (l *lease) drop() {
	if l.refs.Add(-1) == 0 {
		l.src.Release()
	}
}

// Subscribe returns a new event subscription.
func (e *Engine) Subscribe() *Subscription { return e.events.subscribe() }

// Unsubscribe stops delivery to s and closes its channel.
func (e *Engine) Unsubscribe(s *Subscription) { e.events.unsubscribe(s) }

// RegisterTap installs t as the audio tap, replacing any previous one.
func (e *Engine) RegisterTap(t Tap) TapToken { return e.taps.register(t) }

// UnregisterTap removes the tap registered under token. It reports false
// when that registration was already replaced or removed.
func (e *Engine) UnregisterTap(token TapToken) bool { return e.taps.unregister(token) }

// Analysis returns the buffer holding the most recently rendered samples.
func (e *Engine) Analysis() *analysis.Buffer { return e.buf }

// SampleRate is the output sample rate.
func (e *Engine) SampleRate() beep.SampleRate { return e.out.SampleRate() }

// PlayTrack loads t and starts it, abandoning any load still in flight.
// If t is not queued it is appended to the queue.
func (e *Engine) PlayTrack(ctx context.Context, t library.Track) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	seq, jobCtx := e.beginLoadLocked()
	if !e.queue.SetCurrent(t) {
		e.queue.Add(t)
		e.queue.SetCurrent(t)
	}
	e.detached = false
	e.unloadLocked()
	e.current = nil
	e.state = Loading
	e.events.emit(Event{Kind: StateChanged, State: Loading, Track: &t})
	e.mu.Unlock()

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(jobCtx, cancel)
	defer stop()

	src, stream, format, err := e.load(loadCtx, t)

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.loadSeq {
		if err == nil {
			stream.Close()
			src.Release()
		}
		return ErrSuperseded
	}
	if err != nil {
		e.failLocked(t, err)
		return err
	}

	p := newPipeline(stream, format, e.out.SampleRate(), &e.eq, e.volume, e.buf, &e.taps)
	end := beep.Callback(func() {
		select {
		case e.ended <- seq:
		default:
		}
	})
	if err := e.out.Play(beep.Seq(p.ctrl, end)); err != nil {
		stream.Close()
		src.Release()
		err = fmt.Errorf("%w: %w", ErrOutput, err)
		e.failLocked(t, err)
		return err
	}

	e.pipe = p
	e.source = newLease(src)
	e.current = &t
	e.logger.Info("playing", "track", t.DisplayName(), "duration", format.SampleRate.D(stream.Len()).Round(time.Second))
	e.emitTrackLocked()
	e.setStateLocked(Playing)
	e.startJobsLocked(jobCtx, seq, t)
	return nil
}

// beginLoadLocked supersedes the previous load and returns the new load's
// sequence number and the context its background jobs run under.
func (e *Engine) beginLoadLocked() (uint64, context.Context) {
	e.loadSeq++
	if e.loadCancel != nil {
		e.loadCancel()
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.loadCancel = cancel
	return e.loadSeq, ctx
}

func (e *Engine) load(ctx context.Context, t library.Track) (library.Source, beep.StreamSeekCloser, beep.Format, error) {
	src, err := e.resolver.Resolve(ctx, t)
	if err != nil {
		return library.Source{}, nil, beep.Format{}, fmt.Errorf("%w %q: %w", ErrResolve, t.DisplayName(), err)
	}
	stream, format, err := e.decoder.Decode(ctx, src.Path)
	if err != nil {
		src.Release()
		return library.Source{}, nil, beep.Format{}, fmt.Errorf("%w %q: %w", ErrDecode, t.DisplayName(), err)
	}
	return src, stream, format, nil
}

func (e *Engine) failLocked(t library.Track, err error) {
	e.logger.Error("load failed", "track", t.DisplayName(), "err", err)
	e.current = nil
	e.emitTrackLocked()
	e.setStateLocked(Idle)
	e.events.emit(Event{Kind: ErrorOccurred, Track: &t, Err: err})
}

// unloadLocked detaches and closes the current pipeline. It does not
// change the state.
func (e *Engine) unloadLocked() {
	if e.pipe == nil {
		return
	}
	e.out.Clear()
	e.pipe.source.Close()
	e.pipe = nil
	e.source.drop()
	e.source = nil
	e.buf.Reset()
}

func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	e.state = s
	e.events.emit(Event{Kind: StateChanged, State: s, Track: e.currentCopyLocked()})
}

func (e *Engine) currentCopyLocked() *library.Track {
	if e.current == nil {
		return nil
	}
	t := *e.current
	return &t
}

func (e *Engine) emitTrackLocked() {
	ev := Event{Kind: TrackChanged, Track: e.currentCopyLocked()}
	if ev.Track != nil {
		ev.Duration = e.durationLocked()
	}
	e.events.emit(ev)
}

// startJobsLocked launches the play count update and the waveform and
// tempo jobs for the track that just started. Results arriving after the
// track was superseded are dropped.
func (e *Engine) startJobsLocked(ctx context.Context, seq uint64, t library.Track) {
	if e.store != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.store.IncrementPlayCount(ctx, t.ID); err != nil && !errors.Is(err, library.ErrNotFound) {
				e.logger.Warn("play count not updated", "track", t.ID, "err", err)
			}
		}()
	}

	if t.HasTempo() {
		e.events.emit(Event{Kind: TempoReady, Track: &t, Tempo: tempo.Estimate{BPM: t.Tempo, Determined: true, Confidence: 1}})
	} else if e.tempo != nil {
		e.runJob(ctx, seq, "tempo", func(src string, release func()) (Event, error) {
			defer release()
			est, err := e.tempo.AnalyzeSource(ctx, t, src)
			tr := t
			if err == nil && est.Determined {
				tr.Tempo = est.BPM
			}
			return Event{Kind: TempoReady, Track: &tr, Tempo: est}, err
		})
	}

	if e.waveforms != nil {
		size := e.waveSize
		e.runJob(ctx, seq, "waveform", func(src string, release func()) (Event, error) {
			res, err := e.waveforms.GenerateWithRelease(ctx, t, src, size, release)
			tr := t
			return Event{Kind: WaveformReady, Track: &tr, Waveform: res}, err
		})
	}
}

// runJob runs job against the current source. job must call release once
// nothing it started reads src any more, which may be after it returns.
func (e *Engine) runJob(ctx context.Context, seq uint64, name string, job func(src string, release func()) (Event, error)) {
	l := e.source
	l.hold()
	release := sync.OnceFunc(l.drop)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.jobs.Acquire(ctx, 1); err != nil {
			release()
			return
		}
		ev, err := job(l.src.Path, release)
		e.jobs.Release(1)

		e.mu.Lock()
		defer e.mu.Unlock()
		if seq != e.loadSeq || ctx.Err() != nil {
			e.logger.Debug("dropping stale result", "job", name)
			return
		}
		if err != nil {
			e.logger.Warn(name+" failed", "err", err)
			e.events.emit(Event{Kind: ErrorOccurred, Track: ev.Track, Err: err})
			return
		}
		if name == "tempo" && ev.Tempo.Determined && e.current != nil {
			e.current.Tempo = ev.Tempo.BPM
		}
		e.events.emit(ev)
	}()
}

// PlayNext starts the next queued track. When the queue is exhausted the
// engine stops and ErrNoTrack is returned.
func (e *Engine) PlayNext(ctx context.Context) error {
	return e.advance(ctx, (*playlist.Queue).Skip)
}

// PlayPrevious restarts the current track when it has played for more
// than a few seconds, otherwise it starts the previous queued track.
func (e *Engine) PlayPrevious(ctx context.Context) error {
	if e.Position() > restartThreshold {
		e.Seek(0)
		return nil
	}
	return e.advance(ctx, (*playlist.Queue).SkipBack)
}

func (e *Engine) advance(ctx context.Context, step func(*playlist.Queue) (library.Track, bool)) error {
	e.mu.Lock()
	next, ok := e.nextLocked(step)
	if !ok {
		e.stopLocked()
		e.mu.Unlock()
		return ErrNoTrack
	}
	e.mu.Unlock()
	return e.PlayTrack(ctx, next)
}

func (e *Engine) nextLocked(step func(*playlist.Queue) (library.Track, bool)) (library.Track, bool) {
	if e.detached {
		t, idx := e.queue.Current()
		return t, idx >= 0
	}
	return step(e.queue)
}

// TogglePlayPause pauses or resumes. It does nothing unless a track is
// playing or paused.
func (e *Engine) TogglePlayPause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipe == nil || (e.state != Playing && e.state != Paused) {
		return
	}
	e.out.Lock()
	e.pipe.ctrl.Paused = !e.pipe.ctrl.Paused
	paused := e.pipe.ctrl.Paused
	e.out.Unlock()
	if paused {
		e.setStateLocked(Paused)
	} else {
		e.setStateLocked(Playing)
	}
}

// Stop ends playback, abandons any in-flight load and returns to Idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.loadSeq++
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
	e.unloadLocked()
	if e.current != nil {
		e.current = nil
		e.emitTrackLocked()
	}
	e.setStateLocked(Idle)
}

// Seek moves to d, clamped to the track. It is ignored unless a track is
// playing or paused.
func (e *Engine) Seek(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipe == nil || (e.state != Playing && e.state != Paused) {
		return
	}
	d = max(0, min(d, e.durationLocked()))
	src := e.pipe.source
	frame := min(e.pipe.format.SampleRate.N(d), src.Len())

	e.out.Lock()
	err := src.Seek(frame)
	e.out.Unlock()
	if err != nil {
		e.logger.Warn("seek failed", "to", d, "err", err)
		return
	}
	e.events.emit(Event{Kind: ProgressChanged, Position: d, Duration: e.durationLocked(), Track: e.currentCopyLocked()})
}

// SeekBy moves relative to the current position.
func (e *Engine) SeekBy(d time.Duration) {
	e.Seek(e.Position() + d)
}

// Position returns the playback position, 0 when idle.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *Engine) positionLocked() time.Duration {
	if e.pipe == nil {
		return 0
	}
	e.out.Lock()
	pos := e.pipe.source.Position()
	e.out.Unlock()
	return e.pipe.format.SampleRate.D(pos)
}

// Duration returns the length of the loaded track, 0 when idle.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationLocked()
}

func (e *Engine) durationLocked() time.Duration {
	if e.pipe == nil {
		return 0
	}
	return e.pipe.format.SampleRate.D(e.pipe.source.Len())
}

// Progress returns the played fraction of the current track in [0, 1].
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.durationLocked()
	if d <= 0 {
		return 0
	}
	return min(1, float64(e.positionLocked())/float64(d))
}

// State returns the transport state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentTrack returns the loaded track.
func (e *Engine) CurrentTrack() (library.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return library.Track{}, false
	}
	return *e.current, true
}

// SetVolume sets the output level, clamped to [0, 1]. NaN is ignored.
func (e *Engine) SetVolume(v float64) {
	if math.IsNaN(v) {
		return
	}
	v = max(0, min(v, 1))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
	if e.pipe != nil {
		e.out.Lock()
		e.pipe.setVolume(v)
		e.out.Unlock()
	}
}

// Volume returns the output level in [0, 1].
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// SetEQBand sets a single EQ band's gain in dB, clamped to [-12, +12].
func (e *Engine) SetEQBand(band int, dB float64) {
	if band < 0 || band >= len(e.eq) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out.Lock()
	e.eq[band] = max(min(dB, 12), -12)
	e.out.Unlock()
}

// EQBands returns a copy of all 10 EQ band gains.
func (e *Engine) EQBands() [10]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eq
}

// SetRepeat sets the queue's repeat mode.
func (e *Engine) SetRepeat(r playlist.RepeatMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.SetRepeat(r)
}

// CycleRepeat moves to the next repeat mode and returns it.
func (e *Engine) CycleRepeat() playlist.RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.CycleRepeat()
	return e.queue.Repeat()
}

// Repeat returns the queue's repeat mode.
func (e *Engine) Repeat() playlist.RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Repeat()
}

// ToggleShuffle flips shuffle and reports whether it is now on.
func (e *Engine) ToggleShuffle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.ToggleShuffle()
	return e.queue.Shuffled()
}

// Shuffled reports whether shuffle is on.
func (e *Engine) Shuffled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Shuffled()
}

// UpdateQueue replaces the queued tracks without interrupting playback.
// If the current track is not among them it plays to its end and the
// next advance starts from the first new track.
func (e *Engine) UpdateQueue(tracks []library.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.SetTracks(tracks)
	e.detached = e.current == nil || !e.queue.SetCurrent(*e.current)
}

// SetQueueAndPlay replaces the queue and starts the track at index.
func (e *Engine) SetQueueAndPlay(ctx context.Context, tracks []library.Track, index int) error {
	if index < 0 || index >= len(tracks) {
		return ErrNoTrack
	}
	e.UpdateQueue(tracks)
	return e.PlayTrack(ctx, tracks[index])
}

// Queue returns the queued tracks and the index of the cursor.
func (e *Engine) Queue() ([]library.Track, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tracks := append([]library.Track(nil), e.queue.Tracks()...)
	return tracks, e.queue.Index()
}

// monitor advances the queue when a track ends and reports progress.
func (e *Engine) monitor() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.quit:
			return
		case seq := <-e.ended:
			e.handleEnd(seq)
		case <-ticker.C:
			e.emitProgress()
		}
	}
}

func (e *Engine) handleEnd(seq uint64) {
	e.mu.Lock()
	if seq != e.loadSeq || e.state != Playing {
		e.mu.Unlock()
		return
	}
	if err := e.streamErrLocked(); err != nil {
		t := *e.current
		err = fmt.Errorf("%w %q: %w", ErrDecode, t.DisplayName(), err)
		e.logger.Error("playback failed", "track", t.DisplayName(), "err", err)
		e.stopLocked()
		e.events.emit(Event{Kind: ErrorOccurred, Track: &t, Err: err})
		e.mu.Unlock()
		return
	}
	e.logger.Debug("track ended", "track", e.current.DisplayName())
	next, ok := e.nextLocked((*playlist.Queue).Next)
	if !ok {
		e.logger.Info("queue finished")
		e.stopLocked()
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	if err := e.PlayTrack(e.ctx, next); err != nil && !errors.Is(err, ErrSuperseded) {
		e.logger.Warn("advance failed", "err", err)
	}
}

// streamErrLocked reports the error that ended the current stream, if any.
// beep runs the end callback for failed streams as well as drained ones.
func (e *Engine) streamErrLocked() error {
	if e.pipe == nil {
		return nil
	}
	e.out.Lock()
	defer e.out.Unlock()
	return e.pipe.source.Err()
}

func (e *Engine) emitProgress() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Playing {
		return
	}
	e.events.emit(Event{
		Kind:     ProgressChanged,
		Track:    e.currentCopyLocked(),
		Position: e.positionLocked(),
		Duration: e.durationLocked(),
	})
}

// Close stops playback, waits for background work and closes the output
// and all subscriptions.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.stopLocked()
	e.mu.Unlock()

	e.cancel()
	close(e.quit)
	e.wg.Wait()
	e.events.close()
	return e.out.Close()
}
