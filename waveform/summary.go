// Package waveform computes down-sampled peak/RMS summaries of whole tracks,
// renders them, and caches them on disk keyed by track and size.
package waveform

import (
	"context"
	"math"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/bo1ta/Illuminated/decode"
)

// Size is the requested display size of a waveform. Width is the number of
// time buckets; Height is only used when rendering.
type Size struct {
	Width  int
	Height int
}

// Buckets returns the number of points a summary of this size holds.
func (s Size) Buckets() int { return max(1, s.Width) }

// Point is the peak and RMS level of one time bucket, both in [0, 1].
type Point struct {
	Peak float32 `json:"p"`
	RMS  float32 `json:"r"`
}

// Summary is an immutable waveform overview of a track.
type Summary struct {
	Points     []Point
	SampleRate int
	Duration   time.Duration
}

// Empty reports whether every point is silent.
func (s Summary) Empty() bool {
	for _, p := range s.Points {
		if p.Peak > 0 {
			return false
		}
	}
	return true
}

// Placeholder returns a flat summary used when nothing better is available.
func Placeholder(size Size) Summary {
	return Summary{Points: make([]Point, size.Buckets())}
}

// accumulator folds a known number of samples into fixed buckets.
type accumulator struct {
	total   int
	buckets int
	seen    int
	peak    []float32
	sumSq   []float64
	count   []int
}

func newAccumulator(total, buckets int) *accumulator {
	return &accumulator{
		total:   total,
		buckets: buckets,
		peak:    make([]float32, buckets),
		sumSq:   make([]float64, buckets),
		count:   make([]int, buckets),
	}
}

func (a *accumulator) add(block []float32) {
	for _, v := range block {
		if a.seen >= a.total {
			return
		}
		b := int(int64(a.seen) * int64(a.buckets) / int64(a.total))
		abs := float32(math.Abs(float64(v)))
		if abs > a.peak[b] {
			a.peak[b] = abs
		}
		a.sumSq[b] += float64(v) * float64(v)
		a.count[b]++
		a.seen++
	}
}

func (a *accumulator) points() []Point {
	pts := make([]Point, a.buckets)
	for i := range pts {
		pts[i].Peak = min(a.peak[i], 1)
		if a.count[i] > 0 {
			pts[i].RMS = min(float32(math.Sqrt(a.sumSq[i]/float64(a.count[i]))), 1)
		}
	}
	return pts
}

// FromSamples summarizes mono samples into buckets points.
func FromSamples(samples []float32, buckets int) []Point {
	buckets = max(1, buckets)
	if len(samples) == 0 {
		return make([]Point, buckets)
	}
	acc := newAccumulator(len(samples), buckets)
	acc.add(samples)
	return acc.points()
}

// Summarize reads s to the end and buckets its mono mix. total is the
// stream length in frames.
func Summarize(ctx context.Context, s beep.Streamer, total int, format beep.Format, size Size) (Summary, error) {
	sum := Summary{SampleRate: int(format.SampleRate)}
	if total <= 0 {
		sum.Points = make([]Point, size.Buckets())
		return sum, nil
	}
	acc := newAccumulator(total, size.Buckets())
	err := decode.ReadMono(ctx, s, func(block []float32) error {
		acc.add(block)
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	sum.Points = acc.points()
	if format.SampleRate > 0 {
		sum.Duration = format.SampleRate.D(acc.seen)
	}
	return sum, nil
}
