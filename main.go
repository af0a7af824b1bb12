// Package main is the entry point for the Illuminated music player.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"golang.org/x/term"

	"github.com/bo1ta/Illuminated/config"
	"github.com/bo1ta/Illuminated/decode"
	"github.com/bo1ta/Illuminated/library"
	"github.com/bo1ta/Illuminated/player"
	"github.com/bo1ta/Illuminated/tempo"
	"github.com/bo1ta/Illuminated/ui"
	"github.com/bo1ta/Illuminated/waveform"
)

func run() error {
	cfg := config.Load()
	fixed := cfg.Validate()
	interactive := term.IsTerminal(int(os.Stdout.Fd()))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	logger, closeLog := newLogger(cfg, interactive)
	defer closeLog()
	log.SetDefault(logger)
	if len(fixed) > 0 {
		logger.Warn("invalid settings replaced with defaults", "fields", fixed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(cfg, logger)
	defer closeStore()

	args := os.Args[1:]
	var tracks []library.Track
	if len(args) > 0 {
		im := library.Importer{Store: store, Logger: logger}
		var err error
		tracks, err = im.Import(ctx, library.ExpandPaths(args))
		if err != nil {
			logger.Warn("some files were not imported", "err", err)
		}
	} else {
		// With no arguments, play the whole library.
		var err error
		if tracks, err = store.Tracks(ctx); err != nil {
			return fmt.Errorf("library: %w", err)
		}
	}
	if len(tracks) == 0 {
		return errors.New("usage: illuminated <file> [file2 ...]")
	}

	cache, err := waveform.NewCache(cfg.WaveformDir())
	if err != nil {
		return err
	}
	dec := decode.FileDecoder{}
	eng, err := newEngine(cfg, store, cache, dec, logger)
	if err != nil {
		return err
	}
	defer eng.Close()
	eng.UpdateQueue(tracks)

	if !interactive {
		return headless(ctx, eng, tracks[0], logger)
	}

	// Launch the TUI
	if err := eng.PlayTrack(ctx, tracks[0]); err != nil {
		logger.Error("cannot start playback", "track", tracks[0].Location, "err", err)
	}
	prog := tea.NewProgram(ui.NewModel(eng, nil), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func newEngine(cfg config.Config, store library.Store, cache *waveform.Cache, dec decode.Decoder, logger *log.Logger) (*player.Engine, error) {
	// Initialize audio output at the configured sample rate
	sr := beep.SampleRate(cfg.SampleRate)
	out, err := player.NewSpeakerOutput(sr, 100*time.Millisecond)
	if err != nil {
		return nil, err
	}

	return player.New(player.Options{
		Output:           out,
		Decoder:          dec,
		Resolver:         library.FileResolver{},
		Store:            store,
		Waveforms:        waveform.NewGenerator(cache, dec, waveform.WithStore(store), waveform.WithLogger(logger)),
		WaveformSize:     waveform.Size{Width: cfg.WaveformPoints, Height: cfg.WaveformHeight},
		Tempo:            tempo.NewAnalyzer(library.FileResolver{}, dec, tempo.WithStore(store), tempo.WithLogger(logger), tempo.WithLimit(cfg.TempoLimit)),
		Workers:          cfg.AnalysisWorkers,
		AnalysisSize:     cfg.AnalysisBuffer,
		ProgressInterval: cfg.ProgressInterval,
		Volume:           &cfg.Volume,
		Logger:           logger,
	})
}

// newLogger logs to stderr, or to a file while the TUI owns the terminal.
func newLogger(cfg config.Config, interactive bool) (*log.Logger, func()) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	if interactive {
		f, err := os.OpenFile(cfg.LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			w = io.Discard
		} else {
			w = f
			closeFn = func() { f.Close() }
		}
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           cfg.Level(),
		Prefix:          "illuminated",
	})
	return logger, closeFn
}

// openStore opens the library database, falling back to an in-memory store
// so playback still works without it.
func openStore(cfg config.Config, logger *log.Logger) (library.Store, func()) {
	db, err := library.OpenSQL(cfg.DB)
	if err != nil {
		logger.Warn("library database unavailable, using memory", "path", cfg.DB, "err", err)
		return library.NewMemoryStore(), func() {}
	}
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing library database", "err", err)
		}
	}
}

// headless plays the queue without a UI, logging engine events until the
// queue runs out or the process is interrupted. Tracks that fail to load
// are skipped.
func headless(ctx context.Context, eng *player.Engine, first library.Track, logger *log.Logger) error {
	sub := eng.Subscribe()
	defer eng.Unsubscribe(sub)

	if err := eng.PlayTrack(ctx, first); err != nil {
		logger.Error("cannot start playback", "track", first.Location, "err", err)
	}

	failures := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted")
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case player.TrackChanged:
				if ev.Track != nil {
					logger.Info("now playing", "track", ev.Track.DisplayName(), "duration", ev.Track.Duration.Round(time.Second))
				}
			case player.StateChanged:
				logger.Debug("state", "state", ev.State)
				switch ev.State {
				case player.Playing:
					failures = 0
				case player.Idle:
					if tracks, _ := eng.Queue(); failures >= len(tracks) && failures > 0 {
						return errors.New("no playable tracks")
					}
					if err := eng.PlayNext(ctx); errors.Is(err, player.ErrNoTrack) {
						logger.Info("queue finished")
						return nil
					}
				}
			case player.ErrorOccurred:
				failures++
				logger.Error("playback error", "err", ev.Err)
			case player.WaveformReady:
				logger.Debug("waveform ready", "track", ev.Track.ID, "points", len(ev.Waveform.Summary.Points), "cached", ev.Waveform.Cached)
			case player.TempoReady:
				if ev.Tempo.Determined {
					logger.Info("tempo", "track", ev.Track.DisplayName(), "bpm", ev.Tempo.BPM)
				} else {
					logger.Debug("tempo undetermined", "track", ev.Track.ID)
				}
			}
		}
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
