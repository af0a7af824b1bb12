package player

import (
	"sync/atomic"

	"github.com/gopxl/beep/v2"

	"github.com/bo1ta/Illuminated/analysis"
	"github.com/bo1ta/Illuminated/decode"
)

// Tap receives every rendered chunk as mono samples. It runs on the audio
// thread: it must return quickly, must not retain samples after returning,
// and must not call back into the Engine.
type Tap interface {
	OnAudioChunk(samples []float32, frames int)
}

// TapFunc adapts a function to the Tap interface.
type TapFunc func(samples []float32, frames int)

// OnAudioChunk calls f.
func (f TapFunc) OnAudioChunk(samples []float32, frames int) { f(samples, frames) }

// TapToken identifies a registration returned by RegisterTap.
type TapToken uint64

type tapEntry struct {
	token TapToken
	tap   Tap
}

// tapSlot holds at most one registered tap. Registering replaces the
// previous tap.
type tapSlot struct {
	cur  atomic.Pointer[tapEntry]
	next atomic.Uint64
}

func (s *tapSlot) register(t Tap) TapToken {
	e := &tapEntry{token: TapToken(s.next.Add(1)), tap: t}
	s.cur.Store(e)
	return e.token
}

func (s *tapSlot) unregister(token TapToken) bool {
	for {
		cur := s.cur.Load()
		if cur == nil || cur.token != token {
			return false
		}
		if s.cur.CompareAndSwap(cur, nil) {
			return true
		}
	}
}

func (s *tapSlot) load() Tap {
	if e := s.cur.Load(); e != nil {
		return e.tap
	}
	return nil
}

// analysisTap sits between the volume stage and the pause control. It
// mixes what passes through to mono, feeds the analysis buffer and hands
// the chunk to the registered tap.
type analysisTap struct {
	s    beep.Streamer
	buf  *analysis.Buffer
	slot *tapSlot
	mono []float32
}

func newAnalysisTap(s beep.Streamer, buf *analysis.Buffer, slot *tapSlot) *analysisTap {
	return &analysisTap{s: s, buf: buf, slot: slot}
}

func (t *analysisTap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	if n == 0 {
		return n, ok
	}
	if cap(t.mono) < n {
		t.mono = make([]float32, n)
	}
	mono := decode.Mix(t.mono, samples[:n])
	t.buf.Update(mono)
	if tap := t.slot.load(); tap != nil {
		tap.OnAudioChunk(mono, n)
	}
	return n, ok
}

func (t *analysisTap) Err() error { return t.s.Err() }
