// Package visual describes visualization presets and the numeric signal
// they are driven by.
package visual

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"path"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Primitive is the geometry a preset draws its vertices as.
type Primitive int

const (
	PrimitivePoint Primitive = iota
	PrimitiveLine
	PrimitiveLineStrip
	PrimitiveTriangle
	PrimitiveTriangleStrip
)

func (p Primitive) String() string {
	switch p {
	case PrimitivePoint:
		return "point"
	case PrimitiveLine:
		return "line"
	case PrimitiveLineStrip:
		return "line-strip"
	case PrimitiveTriangle:
		return "triangle"
	case PrimitiveTriangleStrip:
		return "triangle-strip"
	default:
		return fmt.Sprintf("Primitive(%d)", int(p))
	}
}

// BlendFactor is a color attachment blend factor.
type BlendFactor int

const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSourceAlpha
	BlendOneMinusSourceAlpha
	BlendDestinationAlpha
	BlendOneMinusDestinationAlpha
)

// Blend is a color attachment blend configuration.
type Blend struct {
	Enabled  bool
	SrcRGB   BlendFactor
	DstRGB   BlendFactor
	SrcAlpha BlendFactor
	DstAlpha BlendFactor
}

// AdditiveBlend is used by presets that require blending but do not
// configure it.
var AdditiveBlend = Blend{
	Enabled:  true,
	SrcRGB:   BlendSourceAlpha,
	DstRGB:   BlendOne,
	SrcAlpha: BlendSourceAlpha,
	DstAlpha: BlendOne,
}

// AlphaBlend is conventional source-over blending.
var AlphaBlend = Blend{
	Enabled:  true,
	SrcRGB:   BlendSourceAlpha,
	DstRGB:   BlendOneMinusSourceAlpha,
	SrcAlpha: BlendOne,
	DstAlpha: BlendOneMinusSourceAlpha,
}

// Preset is the capability set every visualization provides.
type Preset interface {
	ID() string
	DisplayName() string
	VertexFunction() string
	FragmentFunction() string
	Primitive() Primitive
	RequiresBlending() bool
}

// BlendConfigurer is implemented by presets with their own blend mode.
type BlendConfigurer interface {
	Blending() Blend
}

// VertexCounter is implemented by presets whose vertex count is not the
// analysis buffer size.
type VertexCounter interface {
	VertexCount(bufferSize int) int
}

// FrameParams is what a preset may set up before each frame is drawn.
type FrameParams struct {
	Time      float32
	Amplitude float32
	Uniforms  map[string]float32
}

// FramePreparer is implemented by presets that need per-frame uniforms.
type FramePreparer interface {
	PrepareFrame(p *FrameParams)
}

// Textured is implemented by presets that sample textures. Textures are
// bound in the order of TextureNames.
type Textured interface {
	TextureNames() []string
	TexturesLoaded(textures []image.Image)
}

// Blending returns the preset's blend mode. Presets that require blending
// without configuring it get AdditiveBlend; the rest get none.
func Blending(p Preset) Blend {
	if !p.RequiresBlending() {
		return Blend{}
	}
	if bc, ok := p.(BlendConfigurer); ok {
		return bc.Blending()
	}
	return AdditiveBlend
}

// VertexCount returns how many vertices to draw for an analysis buffer of
// bufferSize samples. It defaults to bufferSize.
func VertexCount(p Preset, bufferSize int) int {
	if vc, ok := p.(VertexCounter); ok {
		return vc.VertexCount(bufferSize)
	}
	return bufferSize
}

// Prepare returns the frame parameters for p at time t with the given
// amplitude.
func Prepare(p Preset, t, amplitude float32) FrameParams {
	fp := FrameParams{Time: t, Amplitude: amplitude, Uniforms: map[string]float32{}}
	if pr, ok := p.(FramePreparer); ok {
		pr.PrepareFrame(&fp)
	}
	return fp
}

// Textures returns the texture names p needs, or nil.
func Textures(p Preset) []string {
	if tx, ok := p.(Textured); ok {
		return tx.TextureNames()
	}
	return nil
}

var textureExts = []string{".png", ".jpg", ".jpeg", ".bmp", ".webp"}

// LoadTextures decodes p's textures from fsys and hands them to the preset.
// Names are looked up without extension.
func LoadTextures(p Preset, fsys fs.FS) error {
	tx, ok := p.(Textured)
	if !ok {
		return nil
	}
	names := tx.TextureNames()
	if len(names) == 0 {
		return nil
	}
	imgs := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := loadTexture(fsys, name)
		if err != nil {
			return fmt.Errorf("preset %s: %w", p.ID(), err)
		}
		imgs = append(imgs, img)
	}
	tx.TexturesLoaded(imgs)
	return nil
}

func loadTexture(fsys fs.FS, name string) (image.Image, error) {
	for _, ext := range textureExts {
		f, err := fsys.Open(path.Clean(name + ext))
		if err != nil {
			continue
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("texture %s: %w", name, err)
		}
		return img, nil
	}
	return nil, fmt.Errorf("texture %s: %w", name, fs.ErrNotExist)
}
