package decode

import (
	"fmt"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

// Memory is an in-memory seekable stream over decoded stereo frames.
type Memory struct {
	frames [][2]float64
	pos    int
	closed atomic.Bool
}

// NewMemory wraps frames in a stream. The slice is not copied.
func NewMemory(frames [][2]float64) *Memory {
	return &Memory{frames: frames}
}

// NewMonoMemory builds a stream that plays samples on both channels.
func NewMonoMemory(samples []float64) *Memory {
	frames := make([][2]float64, len(samples))
	for i, s := range samples {
		frames[i] = [2]float64{s, s}
	}
	return NewMemory(frames)
}

// Stream copies the next frames into samples.
func (m *Memory) Stream(samples [][2]float64) (int, bool) {
	if m.closed.Load() || m.pos >= len(m.frames) {
		return 0, false
	}
	n := copy(samples, m.frames[m.pos:])
	m.pos += n
	return n, true
}

// Err always returns nil.
func (m *Memory) Err() error { return nil }

// Len returns the total number of frames.
func (m *Memory) Len() int { return len(m.frames) }

// Position returns the index of the next frame to be streamed.
func (m *Memory) Position() int { return m.pos }

// Seek moves to frame p.
func (m *Memory) Seek(p int) error {
	if p < 0 || p > len(m.frames) {
		return fmt.Errorf("decode: seek position %d out of range [0, %d]", p, len(m.frames))
	}
	m.pos = p
	return nil
}

// Close marks the stream as finished.
func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool { return m.closed.Load() }

var _ beep.StreamSeekCloser = (*Memory)(nil)
