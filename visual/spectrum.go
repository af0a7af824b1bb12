package visual

import (
	"math"
	"math/cmplx"

	"github.com/madelynnblue/go-dsp/fft"
)

const (
	NumBands = 10
	fftSize  = 2048
)

// Frequency edges for 10 spectrum bands (Hz)
var bandEdges = [NumBands + 1]float64{20, 100, 200, 400, 800, 1600, 3200, 6400, 12800, 16000, 20000}

// Bands holds normalized band levels in [0, 1].
type Bands [NumBands]float64

// Spectrum turns analysis frames into smoothed band levels.
type Spectrum struct {
	prev Bands // previous frame for temporal smoothing
	sr   float64
	buf  []float64 // reusable FFT buffer to avoid per-frame allocation
	win  []float64
}

// NewSpectrum creates a Spectrum for the given sample rate.
func NewSpectrum(sampleRate float64) *Spectrum {
	s := &Spectrum{
		sr:  sampleRate,
		buf: make([]float64, fftSize),
		win: make([]float64, fftSize),
	}
	for i := range s.win {
		s.win[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return s
}

// Analyze runs an FFT over samples and returns the band levels.
func (s *Spectrum) Analyze(samples []float32) Bands {
	var bands Bands
	if len(samples) == 0 {
		// Decay previous values when no audio data
		for b := range NumBands {
			bands[b] = s.prev[b] * 0.8
			s.prev[b] = bands[b]
		}
		return bands
	}

	clear(s.buf)
	// Keep the newest samples when there are more than fit.
	if len(samples) > fftSize {
		samples = samples[len(samples)-fftSize:]
	}
	for i, v := range samples {
		s.buf[i] = float64(v) * s.win[i]
	}

	spectrum := fft.FFTReal(s.buf)
	binHz := s.sr / float64(fftSize)
	halfLen := len(spectrum) / 2

	// Sum magnitudes per frequency band
	for b := range NumBands {
		loIdx := max(1, int(bandEdges[b]/binHz))
		hiIdx := min(int(bandEdges[b+1]/binHz), halfLen-1)

		var sum float64
		count := 0
		for i := loIdx; i <= hiIdx; i++ {
			sum += cmplx.Abs(spectrum[i])
			count++
		}
		if count > 0 {
			sum /= float64(count)
		}

		// Convert to dB-like scale and normalize to 0-1
		if sum > 0 {
			bands[b] = (20*math.Log10(sum) + 10) / 50
		}
		bands[b] = max(0, min(1, bands[b]))

		// Temporal smoothing: fast attack, slow decay
		if bands[b] > s.prev[b] {
			bands[b] = bands[b]*0.6 + s.prev[b]*0.4
		} else {
			bands[b] = bands[b]*0.25 + s.prev[b]*0.75
		}
		s.prev[b] = bands[b]
	}

	return bands
}

// Reset clears the smoothing state.
func (s *Spectrum) Reset() { s.prev = Bands{} }
