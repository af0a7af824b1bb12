// Package player is the playback engine: it owns the queue, the audio
// pipeline feeding an Output, and the background waveform and tempo jobs
// for the current track.
package player

import (
	"math"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/bo1ta/Illuminated/analysis"
)

// EQFreqs are the center frequencies for the 10-band parametric equalizer.
var EQFreqs = [10]float64{70, 180, 320, 600, 1000, 3000, 6000, 12000, 14000, 16000}

// pipeline is one loaded track's chain of streamers:
//
//	[Decode] -> [Resample] -> [10x Biquad EQ] -> [Volume] -> [Tap] -> [Ctrl] -> Output
//
// Every stage is pulled under the Output lock, so fields read by the stages
// are only written while holding it.
type pipeline struct {
	source beep.StreamSeekCloser
	format beep.Format
	volume *effects.Volume
	ctrl   *beep.Ctrl
}

func newPipeline(source beep.StreamSeekCloser, format beep.Format, sr beep.SampleRate, eq *[10]float64, vol float64, buf *analysis.Buffer, slot *tapSlot) *pipeline {
	var s beep.Streamer = source
	if format.SampleRate != sr {
		s = beep.Resample(4, format.SampleRate, sr, s)
	}
	// Each filter reads its gain from eq[i], so EQ changes take effect on
	// the next Stream call without rebuilding the pipeline.
	for i := range eq {
		s = newBiquad(s, EQFreqs[i], 1.4, &eq[i], float64(sr))
	}
	p := &pipeline{source: source, format: format}
	p.volume = &effects.Volume{Streamer: s, Base: 2}
	p.setVolume(vol)
	p.ctrl = &beep.Ctrl{Streamer: newAnalysisTap(p.volume, buf, slot)}
	return p
}

// setVolume maps a linear level in [0, 1] onto the volume stage.
func (p *pipeline) setVolume(v float64) {
	p.volume.Silent = v <= 0
	if v > 0 {
		p.volume.Volume = math.Log2(v)
	}
}

// biquad implements a second-order IIR peaking equalizer per the Audio EQ Cookbook.
type biquad struct {
	s    beep.Streamer
	freq float64
	q    float64
	gain *float64
	sr   float64
	// Per-channel filter state
	x1, x2 [2]float64
	y1, y2 [2]float64
	// Cached coefficients
	lastGain           float64
	b0, b1, b2, a1, a2 float64
	inited             bool
}

func newBiquad(s beep.Streamer, freq, q float64, gain *float64, sr float64) *biquad {
	return &biquad{s: s, freq: freq, q: q, gain: gain, sr: sr}
}

func (b *biquad) calcCoeffs(dB float64) {
	if b.inited && dB == b.lastGain {
		return
	}
	b.lastGain = dB
	b.inited = true

	a := math.Pow(10, dB/40)
	w0 := 2 * math.Pi * b.freq / b.sr
	sinW0 := math.Sin(w0)
	cosW0 := math.Cos(w0)
	alpha := sinW0 / (2 * b.q)

	a0 := 1 + alpha/a
	b.b0 = (1 + alpha*a) / a0
	b.b1 = -2 * cosW0 / a0
	b.b2 = (1 - alpha*a) / a0
	b.a1 = -2 * cosW0 / a0
	b.a2 = (1 - alpha/a) / a0
}

func (b *biquad) Stream(samples [][2]float64) (int, bool) {
	n, ok := b.s.Stream(samples)
	dB := *b.gain

	// Bands above Nyquist and flat bands pass through untouched.
	if (dB > -0.1 && dB < 0.1) || b.freq >= b.sr/2 {
		return n, ok
	}

	b.calcCoeffs(dB)

	for i := range n {
		for ch := range 2 {
			x := samples[i][ch]
			y := b.b0*x + b.b1*b.x1[ch] + b.b2*b.x2[ch] - b.a1*b.y1[ch] - b.a2*b.y2[ch]
			b.x2[ch] = b.x1[ch]
			b.x1[ch] = x
			b.y2[ch] = b.y1[ch]
			b.y1[ch] = y
			samples[i][ch] = y
		}
	}
	return n, ok
}

func (b *biquad) Err() error { return b.s.Err() }
