package player

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Output is where the engine sends its final stream. Lock and Unlock
// guard the audio thread: any streamer passed to Play is only pulled
// while the lock is held, so state shared with the pipeline may be
// changed safely between Lock and Unlock.
type Output interface {
	SampleRate() beep.SampleRate
	// Play replaces whatever is playing with s.
	Play(s beep.Streamer) error
	Clear()
	Lock()
	Unlock()
	Close() error
}

// SpeakerOutput plays through the system audio device.
type SpeakerOutput struct {
	sr     beep.SampleRate
	closed bool
}

// NewSpeakerOutput initializes the speaker at sr with the given buffer
// length.
func NewSpeakerOutput(sr beep.SampleRate, buffer time.Duration) (*SpeakerOutput, error) {
	if err := speaker.Init(sr, sr.N(buffer)); err != nil {
		return nil, err
	}
	return &SpeakerOutput{sr: sr}, nil
}

func (o *SpeakerOutput) SampleRate() beep.SampleRate { return o.sr }

func (o *SpeakerOutput) Play(s beep.Streamer) error {
	speaker.Clear()
	speaker.Play(s)
	return nil
}

func (o *SpeakerOutput) Clear()  { speaker.Clear() }
func (o *SpeakerOutput) Lock()   { speaker.Lock() }
func (o *SpeakerOutput) Unlock() { speaker.Unlock() }

func (o *SpeakerOutput) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	speaker.Clear()
	speaker.Close()
	return nil
}

// ManualOutput is an Output driven by explicit Render calls instead of an
// audio device. It is used by tests and for offline rendering.
type ManualOutput struct {
	sr  beep.SampleRate
	mu  sync.Mutex
	s   beep.Streamer
	buf [][2]float64
	// Err, when set, is returned by Play.
	Err error
}

// NewManualOutput creates a ManualOutput at sr.
func NewManualOutput(sr beep.SampleRate) *ManualOutput {
	return &ManualOutput{sr: sr, buf: make([][2]float64, 512)}
}

func (o *ManualOutput) SampleRate() beep.SampleRate { return o.sr }

func (o *ManualOutput) Play(s beep.Streamer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.s = s
	return nil
}

func (o *ManualOutput) Clear() {
	o.mu.Lock()
	o.s = nil
	o.mu.Unlock()
}

func (o *ManualOutput) Lock()   { o.mu.Lock() }
func (o *ManualOutput) Unlock() { o.mu.Unlock() }

func (o *ManualOutput) Close() error {
	o.Clear()
	return nil
}

// Active reports whether a stream is attached.
func (o *ManualOutput) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.s != nil
}

// Render pulls up to frames frames through the attached stream and returns
// how many were produced. The stream is detached once it is drained.
func (o *ManualOutput) Render(frames int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	done := 0
	for done < frames && o.s != nil {
		chunk := o.buf[:min(len(o.buf), frames-done)]
		n, ok := o.s.Stream(chunk)
		done += n
		if !ok {
			o.s = nil
		}
	}
	return done
}

// RenderDuration renders d worth of audio.
func (o *ManualOutput) RenderDuration(d time.Duration) int {
	return o.Render(o.sr.N(d))
}
