// Package tempo estimates the tempo of a track from its onset envelope.
package tempo

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/madelynnblue/go-dsp/fft"
)

const (
	MinBPM = 60.0
	MaxBPM = 200.0

	analysisRate = 11025
	frameSize    = 1024
	hopSize      = 256

	// Below this RMS the input is treated as silence.
	silenceRMS = 1e-4
	// Shorter input does not hold enough beats to measure.
	minDuration = 4 * time.Second
	// Preferred tempo and the spread, in octaves, of the preference.
	preferredBPM   = 120.0
	preferenceSpan = 0.8
)

var smoothing = []float64{1, 2, 3, 2, 1}

// Estimate is the outcome of tempo detection. BPM is only meaningful when
// Determined is true.
type Estimate struct {
	BPM        float64
	Determined bool
	// Confidence is the normalized autocorrelation at the chosen period.
	Confidence float64
}

// input accumulates mono samples, tracking their energy and block-averaging
// them down to roughly analysisRate.
type input struct {
	rate   int
	factor int
	sumSq  float64
	n      int
	acc    float64
	accN   int
	down   []float32
	limit  int
}

func newInput(rate int, limit time.Duration) *input {
	factor := max(1, int(math.Round(float64(rate)/analysisRate)))
	in := &input{rate: rate, factor: factor}
	if limit > 0 {
		in.limit = int(limit.Seconds() * float64(rate))
	}
	return in
}

// add consumes samples and reports false once the limit is reached.
func (in *input) add(samples []float32) bool {
	for _, v := range samples {
		if in.limit > 0 && in.n >= in.limit {
			return false
		}
		in.sumSq += float64(v) * float64(v)
		in.n++
		in.acc += float64(v)
		in.accN++
		if in.accN == in.factor {
			in.down = append(in.down, float32(in.acc/float64(in.factor)))
			in.acc, in.accN = 0, 0
		}
	}
	return true
}

func (in *input) duration() time.Duration {
	if in.rate <= 0 {
		return 0
	}
	return time.Duration(float64(in.n) / float64(in.rate) * float64(time.Second))
}

func (in *input) estimate() Estimate {
	if in.n == 0 || in.rate <= 0 {
		return Estimate{}
	}
	if math.Sqrt(in.sumSq/float64(in.n)) < silenceRMS {
		return Estimate{}
	}
	if in.duration() < minDuration {
		return Estimate{}
	}
	frameRate := float64(in.rate) / float64(in.factor) / hopSize
	return fromEnvelope(onsetEnvelope(in.down), frameRate)
}

// Detect estimates the tempo of mono samples at the given sample rate.
func Detect(samples []float32, sampleRate int) Estimate {
	in := newInput(sampleRate, 0)
	in.add(samples)
	return in.estimate()
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// onsetEnvelope returns the half-wave rectified spectral flux per hop.
// The first frame only seeds the previous spectrum.
func onsetEnvelope(samples []float32) []float64 {
	frames := (len(samples)-frameSize)/hopSize + 1
	if frames < 2 {
		return nil
	}
	window := hann(frameSize)
	frame := make([]float64, frameSize)
	prev := make([]float64, frameSize/2+1)
	mag := make([]float64, frameSize/2+1)
	onset := make([]float64, frames-1)

	for i := range frames {
		start := i * hopSize
		for j := range frame {
			frame[j] = float64(samples[start+j]) * window[j]
		}
		bins := fft.FFTReal(frame)
		for j := range mag {
			mag[j] = cmplx.Abs(bins[j])
		}
		if i > 0 {
			var flux float64
			for j := range mag {
				if d := mag[j] - prev[j]; d > 0 {
					flux += d
				}
			}
			onset[i-1] = flux
		}
		copy(prev, mag)
	}
	return onset
}

// fromEnvelope picks the autocorrelation peak of the mean-removed onset
// envelope within [MinBPM, MaxBPM].
func fromEnvelope(onset []float64, frameRate float64) Estimate {
	if len(onset) == 0 {
		return Estimate{}
	}
	onset = smooth(onset)
	var mean float64
	for _, v := range onset {
		mean += v
	}
	mean /= float64(len(onset))
	env := make([]float64, len(onset))
	var energy float64
	for i, v := range onset {
		env[i] = v - mean
		energy += env[i] * env[i]
	}
	energy /= float64(len(env))
	if energy <= 1e-12*(mean*mean+1e-12) {
		return Estimate{}
	}

	minLag := max(1, int(math.Floor(60*frameRate/MaxBPM)))
	maxLag := int(math.Ceil(60 * frameRate / MinBPM))
	if maxLag+1 >= len(env) {
		return Estimate{}
	}

	// One extra lag on each side so the peak can be interpolated at the edges.
	lo, hi := max(1, minLag-1), maxLag+1
	score := make([]float64, hi-lo+1)
	raw := make([]float64, hi-lo+1)
	for lag := lo; lag <= hi; lag++ {
		var corr float64
		for i := 0; i+lag < len(env); i++ {
			corr += env[i] * env[i+lag]
		}
		corr /= float64(len(env) - lag)
		raw[lag-lo] = corr
		score[lag-lo] = corr * preference(60*frameRate/float64(lag))
	}

	best := -1
	for lag := minLag; lag <= maxLag; lag++ {
		if best < 0 || score[lag-lo] > score[best-lo] {
			best = lag
		}
	}
	if score[best-lo] <= 0 {
		return Estimate{}
	}

	period := float64(best)
	if best > lo && best < hi {
		y0, y1, y2 := score[best-lo-1], score[best-lo], score[best-lo+1]
		if d := y0 - 2*y1 + y2; d < 0 {
			period += max(-0.5, min(0.5, 0.5*(y0-y2)/d))
		}
	}

	bpm := 60 * frameRate / period
	for bpm > MaxBPM {
		bpm /= 2
	}
	for bpm < MinBPM {
		bpm *= 2
	}
	return Estimate{
		BPM:        math.Round(bpm*10) / 10,
		Determined: true,
		Confidence: max(0, min(1, raw[best-lo]/energy)),
	}
}

// preference weights a candidate tempo by its distance in octaves from
// preferredBPM.
func preference(bpm float64) float64 {
	d := math.Log2(bpm/preferredBPM) / preferenceSpan
	return 0.4 + 0.6*math.Exp(-0.5*d*d)
}

// smooth convolves the envelope with a short triangular kernel so that
// beats falling between hops still line up at neighbouring lags.
func smooth(env []float64) []float64 {
	half := len(smoothing) / 2
	out := make([]float64, len(env))
	for i := range env {
		var sum, w float64
		for k, c := range smoothing {
			j := i + k - half
			if j < 0 || j >= len(env) {
				continue
			}
			sum += env[j] * c
			w += c
		}
		out[i] = sum / w
	}
	return out
}
