package decode

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
)

func writeTone(t *testing.T, dir string, seconds float64) string {
	t.Helper()
	format := beep.Format{SampleRate: 8000, NumChannels: 2, Precision: 2}
	n := int(seconds * float64(format.SampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(format.SampleRate))
	}
	path := filepath.Join(dir, "tone.wav")
	if err := EncodeWAV(path, NewMonoMemory(samples), format); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return path
}

func TestSupported(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a.mp3", true},
		{"a.MP3", true},
		{"b.wav", true},
		{"c.flac", true},
		{"d.ogg", true},
		{"e.m4a", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := Supported(tt.path); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestOpenUnsupported(t *testing.T) {
	_, _, err := Open(filepath.Join(t.TempDir(), "clip.m4a"))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Open(.m4a) err = %v, want ErrUnsupported", err)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, _, err := Open(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("Open(missing) succeeded, want error")
	}
}

func TestProbe(t *testing.T) {
	path := writeTone(t, t.TempDir(), 1.5)
	d, format, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if format.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", format.SampleRate)
	}
	if diff := d - 1500*time.Millisecond; diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("duration = %v, want 1.5s", d)
	}
}

func TestReadMono(t *testing.T) {
	path := writeTone(t, t.TempDir(), 1)
	s, _, err := FileDecoder{}.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer s.Close()

	var total int
	var peak float32
	err = ReadMono(context.Background(), s, func(block []float32) error {
		if len(block) > BlockFrames {
			t.Errorf("block len = %d, want <= %d", len(block), BlockFrames)
		}
		total += len(block)
		for _, v := range block {
			peak = max(peak, v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadMono: %v", err)
	}
	if total != 8000 {
		t.Errorf("total samples = %d, want 8000", total)
	}
	if peak < 0.45 || peak > 0.55 {
		t.Errorf("peak = %v, want ~0.5", peak)
	}
}

func TestMix(t *testing.T) {
	dst := make([]float32, 4)
	got := Mix(dst, [][2]float64{{1, 0}, {-0.5, -0.5}, {0.25, 0.75}})
	want := []float32{0.5, -0.5, 0.5}
	if len(got) != len(want) {
		t.Fatalf("len(Mix) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Mix[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadMonoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ReadMono(ctx, NewMonoMemory(make([]float64, 10000)), func([]float32) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ReadMono err = %v, want context.Canceled", err)
	}
}

func TestDecodeRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := (FileDecoder{}).Decode(ctx, "x.wav"); !errors.Is(err, context.Canceled) {
		t.Errorf("Decode err = %v, want context.Canceled", err)
	}
}

func TestMemorySeek(t *testing.T) {
	m := NewMonoMemory([]float64{0, 1, 2, 3})
	if err := m.Seek(2); err != nil {
		t.Fatalf("Seek(2): %v", err)
	}
	buf := make([][2]float64, 4)
	n, ok := m.Stream(buf)
	if !ok || n != 2 || buf[0][0] != 2 {
		t.Errorf("Stream after seek = (%d, %v, %v), want (2, true, 2)", n, ok, buf[0][0])
	}
	if err := m.Seek(5); err == nil {
		t.Error("Seek(5) succeeded, want error")
	}
	m.Close()
	if _, ok := m.Stream(buf); ok {
		t.Error("Stream after Close returned ok")
	}
}
