package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bo1ta/Illuminated/player"
	"github.com/bo1ta/Illuminated/playlist"
	"github.com/bo1ta/Illuminated/waveform"
)

const (
	panelWidth        = 60 // usable inner width (66 frame - 2 border - 4 padding)
	miniPanelMinW     = 28 // minimum usable inner width for mini mode
	miniFrameOverhead = 4  // border (2) + padding (2×1) for mini frame
	scopeHeight       = 5
)

// Pre-built styles for elements created per-render to avoid repeated allocation.
var (
	seekFillStyle = lipgloss.NewStyle().Foreground(colorSeekBar)
	seekDimStyle  = lipgloss.NewStyle().Foreground(colorDim)
	volBarStyle   = lipgloss.NewStyle().Foreground(colorVolume)
	activeToggle  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
)

// pw returns the usable inner panel width for the current mode.
func (m Model) pw() int {
	if m.mini {
		return max(m.width-miniFrameOverhead, miniPanelMinW)
	}
	return panelWidth
}

// miniFrameW returns the outer frame width for mini mode.
func (m Model) miniFrameW() int {
	return max(m.width, miniPanelMinW+miniFrameOverhead)
}

// View renders the full TUI frame.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var sections []string
	if m.mini {
		sections = []string{
			m.renderTitle(),
			m.renderTrackInfo(),
			m.renderTimeStatus(),
			m.renderVisual(),
			m.renderWaveform(),
			m.renderVolume(),
			m.renderPlaylistHeader(),
			m.renderPlaylist(),
			m.renderHelp(),
		}
	} else {
		sections = []string{
			m.renderTitle(),
			m.renderTrackInfo(),
			m.renderTimeStatus(),
			"",
			m.renderVisual(),
			m.renderWaveform(),
			"",
			m.renderVolume(),
			m.renderEQ(),
			"",
			m.renderPlaylistHeader(),
			m.renderPlaylist(),
			"",
			m.renderHelp(),
		}
	}

	if m.err != nil {
		sections = append(sections, errorStyle.Render(fmt.Sprintf("ERR: %s", m.err)))
	}

	content := strings.Join(sections, "\n")
	if m.mini {
		return miniFrameStyle.Width(m.miniFrameW()).Render(content)
	}
	return frameStyle.Render(content)
}

func (m Model) renderTitle() string {
	title := titleStyle.Render("I L L U M I N A T E D")
	if p := m.presets.Current(); p != nil && !m.mini {
		label := dimStyle.Render(p.DisplayName())
		gap := max(1, m.pw()-lipgloss.Width(title)-lipgloss.Width(label))
		return title + strings.Repeat(" ", gap) + label
	}
	return title
}

func (m Model) renderTrackInfo() string {
	name := "No track loaded"
	if m.track != nil {
		name = m.track.DisplayName()
	}

	pw := m.pw()
	prefix := "\U000f0e1e "
	if m.mini {
		prefix = "♫ "
	}
	maxW := pw - len([]rune(prefix))
	runes := []rune(name)

	if len(runes) <= maxW {
		return trackStyle.Render(prefix + name)
	}

	// Cyclic scrolling for long titles
	sep := []rune("   \U000f0e1e   ")
	if m.mini {
		sep = []rune("  ♫  ")
	}
	padded := append(runes, sep...)
	total := len(padded)
	off := m.titleOff % total

	display := make([]rune, maxW)
	for i := range maxW {
		display[i] = padded[(off+i)%total]
	}
	return trackStyle.Render(prefix + string(display))
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func (m Model) renderTimeStatus() string {
	timeStr := formatClock(m.engine.Position()) + " / " + formatClock(m.engine.Duration())

	var status string
	switch m.state {
	case player.Paused:
		status = "\uf04c Paused"
	case player.Playing:
		status = "\uf04b Playing"
	case player.Loading:
		status = "\uf110 Loading"
	default:
		status = "\uf04d Stopped"
	}
	if m.mini {
		status, _, _ = strings.Cut(status, " ")
	}
	if m.state == player.Idle {
		status = dimStyle.Render(status)
	} else {
		status = statusStyle.Render(status)
	}

	left := timeStyle.Render(timeStr)
	if bpm := m.renderBPM(); bpm != "" {
		left += "  " + bpm
	}
	gap := max(1, m.pw()-lipgloss.Width(left)-lipgloss.Width(status))

	return left + strings.Repeat(" ", gap) + status
}

func (m Model) renderBPM() string {
	switch {
	case m.tempo.Determined:
		return bpmStyle.Render(fmt.Sprintf("%.0f BPM", m.tempo.BPM))
	case m.track != nil:
		return dimStyle.Render("--- BPM")
	default:
		return ""
	}
}

// renderVisual draws the selected preset's terminal rendition: a scope for
// waveform presets and spectrum bars for everything else.
func (m Model) renderVisual() string {
	p := m.presets.Current()
	if p != nil && p.ID() == "circular-wave" {
		h := scopeHeight
		if m.mini {
			h = 3
		}
		return m.vis.RenderScope(m.pw(), h)
	}
	if m.mini {
		return m.vis.RenderBars(m.pw())
	}
	return m.vis.RenderBars(0)
}

// renderWaveform draws the track's waveform strip with a progress cursor, or
// a plain seek bar until the waveform is ready.
func (m Model) renderWaveform() string {
	pw := m.pw()
	progress := max(0, min(1, m.engine.Progress()))
	cursor := int(progress * float64(pw-1))

	if m.wave.Empty() {
		return seekFillStyle.Render(strings.Repeat("━", cursor)) +
			seekFillStyle.Render("●") +
			seekDimStyle.Render(strings.Repeat("━", max(0, pw-cursor-1)))
	}

	strip := []rune(waveform.Strip(m.wave, pw))
	cursor = min(cursor, len(strip)-1)
	return wavePlayedStyle.Render(string(strip[:cursor])) +
		waveCursorStyle.Render(string(strip[cursor])) +
		waveAheadStyle.Render(string(strip[cursor+1:]))
}

func (m Model) renderVolume() string {
	frac := m.engine.Volume()

	if m.mini {
		// "V " (2) + bar + " 100%" (5) = 7 overhead
		barW := max(4, m.pw()-7)
		filled := int(frac * float64(barW))
		bar := volBarStyle.Render(strings.Repeat("█", filled)) +
			dimStyle.Render(strings.Repeat("░", barW-filled))
		return labelStyle.Render("V ") + bar + dimStyle.Render(fmt.Sprintf(" %3.0f%%", frac*100))
	}

	barW := 22
	filled := int(frac * float64(barW))
	bar := volBarStyle.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", barW-filled))
	return labelStyle.Render("VOL ") + bar + dimStyle.Render(fmt.Sprintf(" %3.0f%%", frac*100))
}

func (m Model) renderEQ() string {
	bands := m.engine.EQBands()
	labels := [10]string{"70", "180", "320", "600", "1k", "3k", "6k", "12k", "14k", "16k"}

	parts := make([]string, len(labels))
	for i, label := range labels {
		style := eqInactiveStyle
		if m.focus == focusEQ && i == m.eqCursor {
			style = eqActiveStyle
			label = fmt.Sprintf("%+.0f", bands[i])
		}
		parts[i] = style.Render(label)
	}

	return labelStyle.Render("EQ  ") + strings.Join(parts, " ")
}

func (m Model) renderPlaylistHeader() string {
	shuffled := m.engine.Shuffled()
	repeat := m.engine.Repeat()

	toggle := func(on bool, s string) string {
		if on {
			return activeToggle.Render(s)
		}
		return dimStyle.Render(s)
	}

	if m.mini {
		r := "[R]"
		if repeat != playlist.RepeatOff {
			r = fmt.Sprintf("[R:%s]", repeat)
		}
		return dimStyle.Render("─ Playlist ─ ") + toggle(shuffled, "[S]") + " " + toggle(repeat != playlist.RepeatOff, r)
	}

	return dimStyle.Render("── Playlist ── ") +
		toggle(shuffled, "[Shuffle]") + " " +
		toggle(repeat != playlist.RepeatOff, fmt.Sprintf("[Repeat: %s]", repeat)) + " " +
		dimStyle.Render("──")
}

func (m Model) renderPlaylist() string {
	tracks, currentIdx := m.engine.Queue()
	if len(tracks) == 0 {
		return dimStyle.Render("  No tracks loaded")
	}

	visible := min(m.plVisible, len(tracks))
	scroll := max(0, min(m.plScroll, len(tracks)-visible))
	playing := m.state == player.Playing || m.state == player.Paused

	lines := make([]string, 0, visible)
	for i := scroll; i < scroll+visible; i++ {
		prefix := "  "
		style := playlistItemStyle

		if i == currentIdx && playing && m.isCurrent(&tracks[i]) {
			prefix = "\uf04b "
			style = playlistActiveStyle
		}

		if m.focus == focusPlaylist && i == m.plCursor {
			style = playlistSelectedStyle
		}

		name := tracks[i].DisplayName()
		maxW := m.pw() - 6
		nameRunes := []rune(name)
		if len(nameRunes) > maxW {
			name = string(nameRunes[:maxW-1]) + "…"
		}

		lines = append(lines, style.Render(fmt.Sprintf("%s%d. %s", prefix, i+1, name)))
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderHelp() string {
	if m.mini {
		return helpStyle.Render("[Spc]Play [np]Trk [v]Vis [Q]Quit")
	}
	return helpStyle.Render("[Spc]\U000f040e [np]Trk [\uf060\uf061]Seek [+-]Vol [rs]Mode [v]Vis [Q]Quit")
}
