// Package config loads runtime settings from the environment.
package config

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const prefix = "ILLUMINATED_"

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Audio
	SampleRate     int // output rate in Hz
	AnalysisBuffer int // samples kept for visualization
	Volume         float64

	// Waveform summaries
	WaveformPoints int
	WaveformHeight int

	// Storage
	DataDir string
	DB      string // library database path

	ProgressInterval time.Duration
	AnalysisWorkers  int           // concurrent waveform/tempo jobs
	TempoLimit       time.Duration // audio analyzed per track, 0 for all of it
	LogLevel         string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	data := envStr("DATA_DIR", defaultDataDir())
	return Config{
		SampleRate:     envInt("SAMPLE_RATE", 44100),
		AnalysisBuffer: envInt("ANALYSIS_BUFFER", 1024),
		Volume:         envFloat("VOLUME", 0.8),

		WaveformPoints: envInt("WAVEFORM_POINTS", 600),
		WaveformHeight: envInt("WAVEFORM_HEIGHT", 64),

		DataDir: data,
		DB:      envStr("DB", filepath.Join(data, "library.db")),

		ProgressInterval: envDuration("PROGRESS_INTERVAL", 250*time.Millisecond),
		AnalysisWorkers:  envInt("ANALYSIS_WORKERS", 2),
		TempoLimit:       envDuration("TEMPO_LIMIT", 3*time.Minute),
		LogLevel:         envStr("LOG_LEVEL", "info"),
	}
}

// Validate replaces out-of-range values with their defaults and returns the
// names of the fields it repaired.
func (c *Config) Validate() []string {
	var fixed []string
	repair := func(name string, bad bool, fix func()) {
		if bad {
			fix()
			fixed = append(fixed, name)
		}
	}
	repair("SampleRate", c.SampleRate < 8000 || c.SampleRate > 192000, func() { c.SampleRate = 44100 })
	repair("AnalysisBuffer", c.AnalysisBuffer <= 0, func() { c.AnalysisBuffer = 1024 })
	repair("Volume", math.IsNaN(c.Volume) || c.Volume < 0 || c.Volume > 1, func() {
		if math.IsNaN(c.Volume) {
			c.Volume = 0.8
			return
		}
		c.Volume = max(0, min(1, c.Volume))
	})
	repair("WaveformPoints", c.WaveformPoints <= 0, func() { c.WaveformPoints = 600 })
	repair("WaveformHeight", c.WaveformHeight <= 0, func() { c.WaveformHeight = 64 })
	repair("ProgressInterval", c.ProgressInterval <= 0, func() { c.ProgressInterval = 250 * time.Millisecond })
	repair("AnalysisWorkers", c.AnalysisWorkers <= 0, func() { c.AnalysisWorkers = 2 })
	repair("TempoLimit", c.TempoLimit < 0, func() { c.TempoLimit = 3 * time.Minute })
	repair("LogLevel", !validLevel(c.LogLevel), func() { c.LogLevel = "info" })
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
		fixed = append(fixed, "DataDir")
	}
	if c.DB == "" {
		c.DB = filepath.Join(c.DataDir, "library.db")
		fixed = append(fixed, "DB")
	}
	return fixed
}

// Level returns the parsed log level.
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// WaveformDir is where waveform summaries are cached.
func (c Config) WaveformDir() string { return filepath.Join(c.DataDir, "waveforms") }

// LogFile is where logs go while the terminal UI owns the screen.
func (c Config) LogFile() string { return filepath.Join(c.DataDir, "illuminated.log") }

func validLevel(s string) bool {
	_, err := log.ParseLevel(strings.ToLower(s))
	return err == nil
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "illuminated")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "illuminated")
	}
	return filepath.Join(os.TempDir(), "illuminated")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(prefix + key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(prefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(prefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(prefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
