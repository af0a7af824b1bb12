package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bo1ta/Illuminated/analysis"
	"github.com/bo1ta/Illuminated/visual"
)

const barWidth = 5 // character width of each spectrum bar

// Unicode block elements for bar height (9 levels including space)
var barBlocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// Pre-built styles for spectrum bar colors to avoid per-frame allocation.
var (
	specLowStyle  = lipgloss.NewStyle().Foreground(spectrumLow)
	specMidStyle  = lipgloss.NewStyle().Foreground(spectrumMid)
	specHighStyle = lipgloss.NewStyle().Foreground(spectrumHigh)
	scopeStyle    = lipgloss.NewStyle().Foreground(colorScope)
)

// Visualizer reads the engine's analysis buffer and renders it as spectrum
// bars or an oscilloscope trace.
type Visualizer struct {
	spectrum *visual.Spectrum
	samples  []float32
	n        int
	seq      uint64
	bands    visual.Bands
	amp      float32
}

// NewVisualizer creates a Visualizer for the given sample rate.
func NewVisualizer(sampleRate float64) *Visualizer {
	return &Visualizer{
		spectrum: visual.NewSpectrum(sampleRate),
		samples:  make([]float32, 2048),
	}
}

// Update pulls the latest frame from buf. A frame that has already been seen
// lets the bars decay instead of freezing on stale audio.
func (v *Visualizer) Update(buf *analysis.Buffer) {
	n, amp, seq, _ := buf.CopyFrame(v.samples)
	if seq == v.seq {
		v.bands = v.spectrum.Analyze(nil)
		v.amp *= analysis.Decay
		return
	}
	v.seq, v.n, v.amp = seq, n, amp
	v.bands = v.spectrum.Analyze(v.samples[:v.n])
}

// Reset clears the smoothing state.
func (v *Visualizer) Reset() {
	v.spectrum.Reset()
	v.bands = visual.Bands{}
	v.n = 0
	v.amp = 0
}

// Bands returns the most recent band levels.
func (v *Visualizer) Bands() visual.Bands { return v.bands }

// Amplitude returns the most recent smoothed amplitude.
func (v *Visualizer) Amplitude() float32 { return v.amp }

func bandStyle(level float64) lipgloss.Style {
	// Color gradient: green -> yellow -> red based on level
	switch {
	case level > 0.75:
		return specHighStyle
	case level > 0.45:
		return specMidStyle
	default:
		return specLowStyle
	}
}

// RenderBars converts band levels into a spectrum bar string sized to fit
// the given width. A width of zero uses the fixed bar width.
func (v *Visualizer) RenderBars(availWidth int) string {
	bw := barWidth
	if availWidth > 0 {
		if availWidth < visual.NumBands {
			return ""
		}
		// availWidth = NumBands*bw + (NumBands-1) separators
		bw = max(1, (availWidth-(visual.NumBands-1))/visual.NumBands)
	}

	var sb strings.Builder
	for i, level := range v.bands {
		idx := int(level * float64(len(barBlocks)-1))
		idx = max(0, min(idx, len(barBlocks)-1))

		sb.WriteString(bandStyle(level).Render(strings.Repeat(barBlocks[idx], bw)))
		if i < visual.NumBands-1 {
			sb.WriteString(" ")
		}
	}
	return sb.String()
}

// RenderScope draws the current samples as a trace height rows tall.
func (v *Visualizer) RenderScope(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	rows := make([][]rune, height)
	for r := range rows {
		rows[r] = []rune(strings.Repeat(" ", width))
	}
	samples := v.samples[:v.n]
	for col := range width {
		var s float32
		if len(samples) > 0 {
			s = samples[col*len(samples)/width]
		}
		s = max(-1, min(1, s))
		row := int((1-(s+1)/2)*float32(height-1) + 0.5)
		rows[row][col] = '•'
	}
	lines := make([]string, height)
	for r, row := range rows {
		lines[r] = scopeStyle.Render(string(row))
	}
	return strings.Join(lines, "\n")
}
