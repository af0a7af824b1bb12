package visual

import (
	"image"
	"math"
)

// info holds the fields every built-in preset reports.
type info struct {
	id, name         string
	vertex, fragment string
	primitive        Primitive
	blending         bool
}

func (i info) ID() string               { return i.id }
func (i info) DisplayName() string      { return i.name }
func (i info) VertexFunction() string   { return i.vertex }
func (i info) FragmentFunction() string { return i.fragment }
func (i info) Primitive() Primitive     { return i.primitive }
func (i info) RequiresBlending() bool   { return i.blending }

// fullscreen presets draw one quad and do their work per pixel.
type fullscreen struct{}

func (fullscreen) VertexCount(int) int { return 4 }

// BarGraph is a classic spectrum bar display.
type BarGraph struct {
	info
	Bars int
}

func NewBarGraph() *BarGraph {
	return &BarGraph{
		info: info{"bar-graph", "Bar Graph", "barGraphVertex", "barGraphFragment", PrimitiveTriangle, false},
		Bars: 64,
	}
}

// VertexCount is two triangles per bar, capped by the buffer size.
func (b *BarGraph) VertexCount(bufferSize int) int { return min(b.Bars, bufferSize) * 6 }

// CircularWave draws the waveform wrapped around a circle.
type CircularWave struct{ info }

func NewCircularWave() *CircularWave {
	return &CircularWave{info{"circular-wave", "Circular Wave", "circularWaveVertex", "circularWaveFragment", PrimitiveLineStrip, true}}
}

// VertexCount repeats the first sample to close the loop.
func (c *CircularWave) VertexCount(bufferSize int) int { return bufferSize + 1 }

// TriangleFractal is a recursive triangle pattern that pulses with the
// amplitude.
type TriangleFractal struct{ info }

func NewTriangleFractal() *TriangleFractal {
	return &TriangleFractal{info{"triangle-fractal", "Triangle Fractal", "triangleFractalVertex", "triangleFractalFragment", PrimitiveTriangle, true}}
}

func (t *TriangleFractal) Blending() Blend { return AlphaBlend }

func (t *TriangleFractal) PrepareFrame(p *FrameParams) {
	p.Uniforms["depth"] = float32(3 + math.Round(float64(p.Amplitude)*4))
}

// AlienCore is a raymarched organic scene.
type AlienCore struct {
	info
	fullscreen
	noise image.Image
}

func NewAlienCore() *AlienCore {
	return &AlienCore{info: info{"alien-core", "Alien Core", "fullscreenVertex", "alienCoreFragment", PrimitiveTriangleStrip, false}}
}

func (a *AlienCore) PrepareFrame(p *FrameParams) {
	p.Uniforms["pulse"] = 0.5 + 0.5*p.Amplitude
	p.Uniforms["rotation"] = p.Time * 0.2
}

func (a *AlienCore) TextureNames() []string { return []string{"noise"} }

func (a *AlienCore) TexturesLoaded(t []image.Image) {
	if len(t) > 0 {
		a.noise = t[0]
	}
}

// Noise returns the loaded noise texture, or nil.
func (a *AlienCore) Noise() image.Image { return a.noise }

// IndustrialGhost is a smoky fullscreen shader.
type IndustrialGhost struct {
	info
	fullscreen
}

func NewIndustrialGhost() *IndustrialGhost {
	return &IndustrialGhost{info: info{"industrial-ghost", "Industrial Ghost", "fullscreenVertex", "industrialGhostFragment", PrimitiveTriangleStrip, true}}
}

func (g *IndustrialGhost) PrepareFrame(p *FrameParams) {
	p.Uniforms["haze"] = min(1, p.Amplitude*2)
}

// SpaceCentipede is a segmented creature crawling through a starfield.
type SpaceCentipede struct {
	info
	fullscreen
}

func NewSpaceCentipede() *SpaceCentipede {
	return &SpaceCentipede{info: info{"space-centipede", "Space Centipede", "fullscreenVertex", "spaceCentipedeFragment", PrimitiveTriangleStrip, false}}
}

func (s *SpaceCentipede) PrepareFrame(p *FrameParams) {
	p.Uniforms["speed"] = 1 + p.Amplitude*3
	p.Uniforms["segments"] = 12
}

// Builtin returns fresh instances of all built-in presets in display order.
func Builtin() []Preset {
	return []Preset{
		NewBarGraph(),
		NewCircularWave(),
		NewTriangleFractal(),
		NewAlienCore(),
		NewIndustrialGhost(),
		NewSpaceCentipede(),
	}
}
