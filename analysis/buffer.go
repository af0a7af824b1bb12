// Package analysis holds the real-time analysis frame shared between the
// audio render path and visualization readers.
package analysis

import (
	"errors"
	"math"
	"sync"
)

// Decay is the smoothing factor applied to the amplitude on every update.
const Decay = 0.8

// ErrInvalidSize is returned by New for a non-positive buffer size.
var ErrInvalidSize = errors.New("analysis: buffer size must be positive")

// Frame is a consistent copy of the buffer at one point in time.
type Frame struct {
	Samples   []float32
	Valid     int
	Amplitude float32
	Seq       uint64
}

// Buffer keeps the most recent chunk of mono samples and a smoothed RMS
// amplitude. There is a single writer (the audio render path) and any number
// of readers. The lock is only ever held for one frame copy, so the writer
// never waits on a reader for longer than that.
type Buffer struct {
	mu        sync.Mutex
	samples   []float32
	valid     int
	amplitude float32
	seq       uint64
}

// New allocates a zero-filled buffer holding size samples.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return &Buffer{
		samples: make([]float32, size),
		valid:   size,
	}, nil
}

// Size returns the fixed capacity in samples.
func (b *Buffer) Size() int { return len(b.samples) }

// Update stores the newest samples of chunk and folds its RMS into the
// amplitude. Chunks longer than the buffer keep only their last Size()
// samples. It does not allocate.
func (b *Buffer) Update(chunk []float32) {
	if len(chunk) == 0 {
		return
	}
	level := rms(chunk)
	if len(chunk) > len(b.samples) {
		chunk = chunk[len(chunk)-len(b.samples):]
	}

	b.mu.Lock()
	n := copy(b.samples, chunk)
	clear(b.samples[n:])
	b.valid = n
	b.amplitude = b.amplitude*Decay + level*(1-Decay)
	b.seq++
	b.mu.Unlock()
}

// CopySamples copies the valid samples of the current frame into dst,
// oldest first. If dst is shorter than the frame, the most recent len(dst)
// samples are copied. It reports false and copies nothing for an empty dst.
func (b *Buffer) CopySamples(dst []float32) (int, bool) {
	n, _, _, ok := b.CopyFrame(dst)
	return n, ok
}

// CopyFrame is CopySamples that also returns the amplitude and sequence
// number of the copied frame, all read under one lock. It does not allocate.
func (b *Buffer) CopyFrame(dst []float32) (n int, amp float32, seq uint64, ok bool) {
	if len(dst) == 0 {
		return 0, 0, 0, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	start := max(0, b.valid-len(dst))
	n = copy(dst, b.samples[start:b.valid])
	return n, b.amplitude, b.seq, true
}

// Samples returns a copy of the valid samples of the current frame.
func (b *Buffer) Samples() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float32, b.valid)
	copy(out, b.samples[:b.valid])
	return out
}

// Snapshot returns the samples, amplitude and sequence of one frame together.
func (b *Buffer) Snapshot() Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := Frame{
		Samples:   make([]float32, b.valid),
		Valid:     b.valid,
		Amplitude: b.amplitude,
		Seq:       b.seq,
	}
	copy(f.Samples, b.samples[:b.valid])
	return f
}

// Amplitude returns the smoothed RMS level.
func (b *Buffer) Amplitude() float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.amplitude
}

// Valid returns how many samples of the current frame came from the last update.
func (b *Buffer) Valid() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.valid
}

// Sequence increases by one on every Update and Reset.
func (b *Buffer) Sequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Reset zeroes all samples and the amplitude.
func (b *Buffer) Reset() {
	b.mu.Lock()
	clear(b.samples)
	b.valid = len(b.samples)
	b.amplitude = 0
	b.seq++
	b.mu.Unlock()
}

func rms(chunk []float32) float32 {
	var sum float64
	for _, s := range chunk {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(chunk))))
}
