package waveform

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/vector"
)

const minRenderHeight = 8

var (
	background = color.RGBA{0x11, 0x11, 0x1b, 0xff}
	peakColor  = color.RGBA{0x58, 0x5b, 0x70, 0xff}
	rmsColor   = color.RGBA{0x89, 0xb4, 0xfa, 0xff}
)

// Render draws the summary as a mirrored peak envelope with the RMS
// envelope on top. The image is one pixel column per point.
func Render(sum Summary, size Size) *image.RGBA {
	w := max(1, len(sum.Points))
	h := max(minRenderHeight, size.Height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	if len(sum.Points) == 0 {
		return img
	}

	fill(img, sum.Points, func(p Point) float32 { return p.Peak }, peakColor)
	fill(img, sum.Points, func(p Point) float32 { return p.RMS }, rmsColor)
	return img
}

// fill rasterizes the closed shape between +level and -level around the
// horizontal center line.
func fill(img *image.RGBA, pts []Point, level func(Point) float32, c color.Color) {
	b := img.Bounds()
	mid := float32(b.Dy()) / 2
	// Keep a one pixel line for silence so the track extent stays visible.
	amp := func(p Point) float32 { return max(0.5, level(p)*mid) }

	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.MoveTo(0, mid-amp(pts[0]))
	for i, p := range pts {
		r.LineTo(float32(i)+0.5, mid-amp(p))
	}
	r.LineTo(float32(len(pts)), mid-amp(pts[len(pts)-1]))
	r.LineTo(float32(len(pts)), mid+amp(pts[len(pts)-1]))
	for i := len(pts) - 1; i >= 0; i-- {
		r.LineTo(float32(i)+0.5, mid+amp(pts[i]))
	}
	r.LineTo(0, mid+amp(pts[0]))
	r.ClosePath()
	r.Draw(img, b, image.NewUniform(c), image.Point{})
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var stripBlocks = []rune(" ▁▂▃▄▅▆▇█")

// Levels resamples the peak envelope to width columns.
func Levels(sum Summary, width int) []float32 {
	if width <= 0 {
		return nil
	}
	out := make([]float32, width)
	n := len(sum.Points)
	if n == 0 {
		return out
	}
	for col := range out {
		lo := col * n / width
		hi := max(lo+1, (col+1)*n/width)
		for _, p := range sum.Points[lo:min(hi, n)] {
			out[col] = max(out[col], p.Peak)
		}
	}
	return out
}

// Strip renders the summary as a single line of block characters.
func Strip(sum Summary, width int) string {
	var sb strings.Builder
	for _, l := range Levels(sum, width) {
		idx := int(l * float32(len(stripBlocks)-1))
		idx = max(1, min(idx, len(stripBlocks)-1))
		sb.WriteRune(stripBlocks[idx])
	}
	return sb.String()
}
