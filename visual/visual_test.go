package visual

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"math"
	"testing"
	"testing/fstest"
)

// plain implements only the required capabilities.
type plain struct {
	id       string
	blending bool
}

func (p plain) ID() string               { return p.id }
func (p plain) DisplayName() string      { return p.id }
func (p plain) VertexFunction() string   { return "v" }
func (p plain) FragmentFunction() string { return "f" }
func (p plain) Primitive() Primitive     { return PrimitivePoint }
func (p plain) RequiresBlending() bool   { return p.blending }

func TestDefaultsForMissingHooks(t *testing.T) {
	p := plain{id: "plain", blending: true}
	if got := Blending(p); got != AdditiveBlend {
		t.Errorf("Blending() = %+v, want AdditiveBlend", got)
	}
	if got := VertexCount(p, 1024); got != 1024 {
		t.Errorf("VertexCount() = %d, want buffer size 1024", got)
	}
	if Textures(p) != nil {
		t.Error("Textures() != nil for preset without textures")
	}
	fp := Prepare(p, 1.5, 0.3)
	if fp.Time != 1.5 || fp.Amplitude != 0.3 || len(fp.Uniforms) != 0 {
		t.Errorf("Prepare() = %+v", fp)
	}
	if got := Blending(plain{id: "opaque"}); got.Enabled {
		t.Errorf("Blending() for opaque preset = %+v, want disabled", got)
	}
	if err := LoadTextures(p, fstest.MapFS{}); err != nil {
		t.Errorf("LoadTextures() = %v, want nil", err)
	}
}

func TestBuiltinPresets(t *testing.T) {
	want := []string{"bar-graph", "circular-wave", "triangle-fractal", "alien-core", "industrial-ghost", "space-centipede"}
	presets := Builtin()
	if len(presets) != len(want) {
		t.Fatalf("Builtin() returned %d presets, want %d", len(presets), len(want))
	}
	for i, p := range presets {
		if p.ID() != want[i] {
			t.Errorf("preset %d = %q, want %q", i, p.ID(), want[i])
		}
		if p.DisplayName() == "" || p.VertexFunction() == "" || p.FragmentFunction() == "" {
			t.Errorf("preset %q has empty names", p.ID())
		}
	}

	tests := []struct {
		p     Preset
		count int
		blend Blend
	}{
		{NewBarGraph(), 64 * 6, Blend{}},
		{NewCircularWave(), 1025, AdditiveBlend},
		{NewTriangleFractal(), 1024, AlphaBlend},
		{NewAlienCore(), 4, Blend{}},
		{NewIndustrialGhost(), 4, AdditiveBlend},
	}
	for _, tt := range tests {
		if got := VertexCount(tt.p, 1024); got != tt.count {
			t.Errorf("%s: VertexCount = %d, want %d", tt.p.ID(), got, tt.count)
		}
		if got := Blending(tt.p); got != tt.blend {
			t.Errorf("%s: Blending = %+v, want %+v", tt.p.ID(), got, tt.blend)
		}
	}
	if got := VertexCount(NewBarGraph(), 16); got != 16*6 {
		t.Errorf("bar-graph VertexCount(16) = %d, want 96", got)
	}

	fp := Prepare(NewSpaceCentipede(), 2, 0.5)
	if fp.Uniforms["speed"] != 2.5 {
		t.Errorf("space-centipede speed = %v, want 2.5", fp.Uniforms["speed"])
	}
}

func TestLoadTextures(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	a := NewAlienCore()
	if err := LoadTextures(a, fstest.MapFS{"noise.png": {Data: buf.Bytes()}}); err != nil {
		t.Fatalf("LoadTextures: %v", err)
	}
	if a.Noise() == nil || a.Noise().Bounds().Dx() != 2 {
		t.Errorf("noise texture not delivered")
	}

	err := LoadTextures(NewAlienCore(), fstest.MapFS{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("LoadTextures(missing) err = %v, want fs.ErrNotExist", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Builtin()...)
	if r.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", r.Len())
	}
	if err := r.Register(NewBarGraph()); !errors.Is(err, ErrDuplicatePreset) {
		t.Errorf("Register(duplicate) err = %v, want ErrDuplicatePreset", err)
	}
	if p, ok := r.ByID("alien-core"); !ok || p.ID() != "alien-core" {
		t.Errorf("ByID(alien-core) = %v, %v", p, ok)
	}
	if p, ok := r.At(1); !ok || p.ID() != "circular-wave" {
		t.Errorf("At(1) = %v, %v", p, ok)
	}
	if _, ok := r.At(6); ok {
		t.Error("At(6) ok on 6 presets")
	}
	if !r.Unregister("bar-graph") || r.Unregister("bar-graph") {
		t.Error("Unregister did not remove exactly once")
	}
	if p, _ := r.At(0); p.ID() != "circular-wave" {
		t.Errorf("At(0) after unregister = %q, want circular-wave", p.ID())
	}
	if err := r.Register(plain{id: "custom"}); err != nil {
		t.Errorf("Register(custom) = %v", err)
	}
	if all := r.All(); all[len(all)-1].ID() != "custom" {
		t.Errorf("custom preset not appended: %v", all[len(all)-1].ID())
	}
}

func TestQueueWraps(t *testing.T) {
	q := QueueFor(NewRegistry(Builtin()...))
	if q.Current().ID() != "bar-graph" || q.Index() != 0 {
		t.Fatalf("Current() = %q, want bar-graph", q.Current().ID())
	}
	if p := q.Previous(); p.ID() != "space-centipede" {
		t.Errorf("Previous() from first = %q, want space-centipede", p.ID())
	}
	if p := q.Next(); p.ID() != "bar-graph" {
		t.Errorf("Next() from last = %q, want bar-graph", p.ID())
	}
	if !q.Select("alien-core") || q.Index() != 3 {
		t.Errorf("Select(alien-core) index = %d, want 3", q.Index())
	}
	if q.Select("nope") || q.Index() != 3 {
		t.Error("Select(unknown) changed selection")
	}
	if q.At(10) != nil || q.Index() != 3 {
		t.Error("At(out of range) changed selection")
	}
	q.Reset()
	if q.Index() != 0 {
		t.Errorf("Index() after Reset = %d", q.Index())
	}

	empty := NewQueue(nil)
	if empty.Current() != nil || empty.Next() != nil || empty.Previous() != nil || empty.Index() != -1 {
		t.Error("empty queue returned a preset")
	}
}

func TestSpectrumPeaksInBand(t *testing.T) {
	const rate = 44100
	samples := make([]float32, 2048)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*1000*float64(i)/rate))
	}
	s := NewSpectrum(rate)
	var bands Bands
	for range 10 {
		bands = s.Analyze(samples)
	}
	loudest := 0
	for b := range bands {
		if bands[b] > bands[loudest] {
			loudest = b
		}
	}
	if loudest != 4 {
		t.Errorf("1 kHz tone loudest in band %d, want 4 (800-1600 Hz); bands %v", loudest, bands)
	}

	decayed := s.Analyze(nil)
	if decayed[4] >= bands[4] {
		t.Errorf("empty frame did not decay: %v >= %v", decayed[4], bands[4])
	}
	s.Reset()
	if got := s.Analyze(nil); got != (Bands{}) {
		t.Errorf("Analyze(nil) after Reset = %v, want zeros", got)
	}
}
