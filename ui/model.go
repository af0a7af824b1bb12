// Package ui implements the Bubbletea TUI for the Illuminated music player.
package ui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bo1ta/Illuminated/library"
	"github.com/bo1ta/Illuminated/player"
	"github.com/bo1ta/Illuminated/tempo"
	"github.com/bo1ta/Illuminated/visual"
	"github.com/bo1ta/Illuminated/waveform"
)

type focusArea int

const (
	focusPlaylist focusArea = iota
	focusEQ
)

const (
	seekStep   = 5 * time.Second
	volumeStep = 0.05
	eqStep     = 1.0
)

// miniWidth is the terminal width below which the compact layout is used.
const miniWidth = 70

type (
	tickMsg   time.Time
	eventMsg  player.Event
	closedMsg struct{}
	errMsg    struct{ err error }
)

// Model is the Bubbletea model for the Illuminated TUI.
type Model struct {
	engine    *player.Engine
	sub       *player.Subscription
	vis       *Visualizer
	presets   *visual.Queue
	started   time.Time
	track     *library.Track
	state     player.State
	wave      waveform.Summary
	tempo     tempo.Estimate
	focus     focusArea
	eqCursor  int // selected EQ band (0-9)
	plCursor  int // selected playlist item
	plScroll  int // scroll offset for playlist view
	plVisible int // max visible playlist items
	titleOff  int // scroll offset for long track titles
	err       error
	quitting  bool
	mini      bool
	width     int
	height    int
}

// NewModel creates a Model driving e. presets may be nil, in which case the
// built-in presets are used.
func NewModel(e *player.Engine, presets *visual.Registry) Model {
	if presets == nil {
		presets = visual.NewRegistry(visual.Builtin()...)
	}
	m := Model{
		engine:    e,
		sub:       e.Subscribe(),
		vis:       NewVisualizer(float64(e.SampleRate())),
		presets:   visual.QueueFor(presets),
		started:   time.Now(),
		state:     e.State(),
		plVisible: 5,
	}
	if t, ok := e.CurrentTrack(); ok {
		m.track = &t
	}
	return m
}

// Init starts the tick timer, listens for engine events and requests the
// terminal size.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitEvent(m.sub), tea.WindowSize())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*50, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitEvent blocks until the engine publishes an event.
func waitEvent(sub *player.Subscription) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.C
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

// engineCmd runs a transport call off the update loop.
func engineCmd(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		err := fn(context.Background())
		if err == nil || errors.Is(err, player.ErrSuperseded) {
			return nil
		}
		return errMsg{err}
	}
}

// Update handles messages: key presses, engine events, ticks, and window resizes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmd := m.handleKey(msg)
		if m.quitting {
			m.engine.Unsubscribe(m.sub)
			return m, tea.Quit
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.mini = msg.Width > 0 && msg.Width < miniWidth

	case eventMsg:
		m.handleEvent(player.Event(msg))
		return m, waitEvent(m.sub)

	case closedMsg:
		m.quitting = true
		return m, tea.Quit

	case errMsg:
		if errors.Is(msg.err, player.ErrNoTrack) {
			return m, nil
		}
		m.err = msg.err

	case tickMsg:
		m.vis.Update(m.engine.Analysis())
		m.titleOff++
		return m, tickCmd()
	}

	return m, nil
}

func (m *Model) handleEvent(ev player.Event) {
	switch ev.Kind {
	case player.TrackChanged:
		m.track = ev.Track
		m.wave = waveform.Summary{}
		m.tempo = tempo.Estimate{}
		m.titleOff = 0
		m.vis.Reset()
		if ev.Track != nil {
			m.err = nil
			if ev.Track.HasTempo() {
				m.tempo = tempo.Estimate{BPM: ev.Track.Tempo, Determined: true}
			}
			m.followQueue()
		}
	case player.StateChanged:
		m.state = ev.State
		if ev.State == player.Loading && ev.Track != nil {
			m.track = ev.Track
		}
	case player.ErrorOccurred:
		m.err = ev.Err
	case player.WaveformReady:
		if m.isCurrent(ev.Track) {
			m.wave = ev.Waveform.Summary
		}
	case player.TempoReady:
		if m.isCurrent(ev.Track) {
			m.tempo = ev.Tempo
		}
	}
}

func (m Model) isCurrent(t *library.Track) bool {
	return t != nil && m.track != nil && t.ID == m.track.ID
}

// followQueue moves the playlist cursor to the playing track.
func (m *Model) followQueue() {
	_, idx := m.engine.Queue()
	if idx < 0 {
		return
	}
	m.plCursor = idx
	m.adjustScroll()
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	e := m.engine
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
	case " ":
		if e.State() == player.Idle {
			return m.playSelected()
		}
		e.TogglePlayPause()
	case "n", ">", ".":
		return engineCmd(e.PlayNext)
	case "p", "<", ",":
		return engineCmd(e.PlayPrevious)
	case "x":
		e.Stop()
	case "left":
		if m.focus == focusEQ {
			m.eqCursor = max(0, m.eqCursor-1)
		} else {
			e.SeekBy(-seekStep)
		}
	case "right":
		if m.focus == focusEQ {
			m.eqCursor = min(len(player.EQFreqs)-1, m.eqCursor+1)
		} else {
			e.SeekBy(seekStep)
		}
	case "up", "k":
		if m.focus == focusEQ {
			e.SetEQBand(m.eqCursor, e.EQBands()[m.eqCursor]+eqStep)
		} else if m.plCursor > 0 {
			m.plCursor--
			m.adjustScroll()
		}
	case "down", "j":
		if m.focus == focusEQ {
			e.SetEQBand(m.eqCursor, e.EQBands()[m.eqCursor]-eqStep)
		} else if tracks, _ := e.Queue(); m.plCursor < len(tracks)-1 {
			m.plCursor++
			m.adjustScroll()
		}
	case "enter":
		if m.focus == focusPlaylist {
			return m.playSelected()
		}
	case "+", "=":
		e.SetVolume(e.Volume() + volumeStep)
	case "-", "_":
		e.SetVolume(e.Volume() - volumeStep)
	case "r":
		e.CycleRepeat()
	case "s":
		e.ToggleShuffle()
	case "v":
		m.presets.Next()
	case "V":
		m.presets.Previous()
	case "tab":
		if m.focus == focusPlaylist {
			m.focus = focusEQ
		} else {
			m.focus = focusPlaylist
		}
	}
	return nil
}

// playSelected starts the track under the playlist cursor.
func (m *Model) playSelected() tea.Cmd {
	tracks, _ := m.engine.Queue()
	if m.plCursor < 0 || m.plCursor >= len(tracks) {
		return nil
	}
	e, t := m.engine, tracks[m.plCursor]
	m.titleOff = 0
	return engineCmd(func(ctx context.Context) error {
		return e.PlayTrack(ctx, t)
	})
}

// adjustScroll ensures plCursor is visible in the playlist view.
func (m *Model) adjustScroll() {
	if m.plCursor < m.plScroll {
		m.plScroll = m.plCursor
	}
	if m.plCursor >= m.plScroll+m.plVisible {
		m.plScroll = m.plCursor - m.plVisible + 1
	}
}
