package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"

	"github.com/bo1ta/Illuminated/decode"
	"github.com/bo1ta/Illuminated/library"
	"github.com/bo1ta/Illuminated/player"
	"github.com/bo1ta/Illuminated/playlist"
	"github.com/bo1ta/Illuminated/tempo"
	"github.com/bo1ta/Illuminated/waveform"
)

const testRate = beep.SampleRate(1000)

func newTestEngine(t *testing.T) (*player.Engine, []library.Track) {
	t.Helper()
	dec := decode.DecoderFunc(func(context.Context, string) (beep.StreamSeekCloser, beep.Format, error) {
		mono := make([]float64, testRate.N(10*time.Second))
		for i := range mono {
			mono[i] = 0.2
		}
		return decode.NewMonoMemory(mono), beep.Format{SampleRate: testRate, NumChannels: 2, Precision: 2}, nil
	})
	res := library.ResolverFunc(func(_ context.Context, t library.Track) (library.Source, error) {
		return library.NewSource(t.Location, nil), nil
	})
	e, err := player.New(player.Options{
		Output:           player.NewManualOutput(testRate),
		Decoder:          dec,
		Resolver:         res,
		ProgressInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("player.New: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	tracks := []library.Track{
		{ID: uuid.New(), Title: "First", Artist: "A", Location: "/a"},
		{ID: uuid.New(), Title: "Second", Artist: "B", Location: "/b"},
	}
	e.UpdateQueue(tracks)
	return e, tracks
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...string) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(Model)
	}
	return m, cmd
}

func TestKeysDriveEngine(t *testing.T) {
	e, _ := newTestEngine(t)
	m := NewModel(e, nil)

	m, _ = press(m, "-", "-")
	if got := e.Volume(); got < 0.899 || got > 0.901 {
		t.Errorf("Volume() after two steps down = %v, want 0.9", got)
	}
	m, _ = press(m, "+", "+", "+")
	if got := e.Volume(); got != 1 {
		t.Errorf("Volume() = %v, want clamped to 1", got)
	}

	m, _ = press(m, "r")
	if e.Repeat() != playlist.RepeatAll {
		t.Errorf("Repeat() = %v, want All", e.Repeat())
	}
	m, _ = press(m, "s")
	if !e.Shuffled() {
		t.Error("Shuffled() = false after s")
	}

	m, _ = press(m, "v")
	if got := m.presets.Current().ID(); got != "circular-wave" {
		t.Errorf("preset after v = %q, want circular-wave", got)
	}

	m, _ = press(m, "tab", "right", "up", "up")
	if got := e.EQBands()[1]; got != 2 {
		t.Errorf("EQ band 1 = %v, want 2", got)
	}

	if _, cmd := press(m, "q"); cmd == nil {
		t.Error("q returned no command")
	}
}

func TestEnterPlaysSelected(t *testing.T) {
	e, tracks := newTestEngine(t)
	m := NewModel(e, nil)

	m, cmd := press(m, "down", "enter")
	if cmd == nil {
		t.Fatal("enter returned no command")
	}
	if msg := cmd(); msg != nil {
		t.Fatalf("play command returned %v", msg)
	}
	cur, ok := e.CurrentTrack()
	if !ok || cur.ID != tracks[1].ID {
		t.Fatalf("CurrentTrack() = %v, %v; want %s", cur.Title, ok, tracks[1].Title)
	}
	if e.State() != player.Playing {
		t.Errorf("State() = %v, want Playing", e.State())
	}
	if m.plCursor != 1 {
		t.Errorf("plCursor = %d, want 1", m.plCursor)
	}
}

func TestEventsUpdateView(t *testing.T) {
	e, tracks := newTestEngine(t)
	m := NewModel(e, nil)

	if v := m.View(); !strings.Contains(v, "No track loaded") || !strings.Contains(v, "Stopped") {
		t.Errorf("idle view missing placeholders:\n%s", v)
	}

	cur := tracks[0]
	other := tracks[1]
	steps := []player.Event{
		{Kind: player.TrackChanged, Track: &cur},
		{Kind: player.StateChanged, State: player.Playing},
		{Kind: player.TempoReady, Track: &other, Tempo: tempo.Estimate{BPM: 90, Determined: true}},
		{Kind: player.TempoReady, Track: &cur, Tempo: tempo.Estimate{BPM: 128, Determined: true}},
		{Kind: player.WaveformReady, Track: &cur, Waveform: waveform.Result{Summary: waveform.Summary{Points: waveform.FromSamples([]float32{0.5, -0.8, 0.3}, 3)}}},
	}
	for _, ev := range steps {
		next, cmd := m.Update(eventMsg(ev))
		m = next.(Model)
		if cmd == nil {
			t.Fatalf("%v event did not resubscribe", ev.Kind)
		}
	}

	if m.tempo.BPM != 128 {
		t.Errorf("tempo = %v, want 128 from the current track only", m.tempo.BPM)
	}
	if m.wave.Empty() {
		t.Error("waveform for current track was not kept")
	}
	v := m.View()
	for _, want := range []string{"A - First", "128 BPM", "Playing"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}

	next, _ := m.Update(eventMsg{Kind: player.TrackChanged})
	m = next.(Model)
	if m.track != nil || m.tempo.Determined || !m.wave.Empty() {
		t.Errorf("stop did not clear track state: %+v %+v", m.track, m.tempo)
	}
}

func TestMiniLayout(t *testing.T) {
	e, _ := newTestEngine(t)
	m := NewModel(e, nil)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 40, Height: 20})
	m = next.(Model)
	if !m.mini {
		t.Fatal("40 columns did not switch to the compact layout")
	}
	if m.pw() != 36 {
		t.Errorf("pw() = %d, want 36", m.pw())
	}
	if v := m.View(); !strings.Contains(v, "[np]Trk") {
		t.Errorf("mini view missing help line:\n%s", v)
	}

	next, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if next.(Model).mini {
		t.Error("wide terminal kept the compact layout")
	}
}

func TestEngineCloseQuits(t *testing.T) {
	e, _ := newTestEngine(t)
	m := NewModel(e, nil)
	e.Close()

	msg := waitEvent(m.sub)()
	if _, ok := msg.(closedMsg); !ok {
		t.Fatalf("waitEvent after Close = %T, want closedMsg", msg)
	}
	next, cmd := m.Update(msg)
	if !next.(Model).quitting || cmd == nil {
		t.Error("closed engine did not quit the program")
	}
}

func TestVisualizerScope(t *testing.T) {
	v := NewVisualizer(float64(testRate))
	v.samples[0], v.samples[1] = 1, -1
	v.n = 2
	out := v.RenderScope(4, 3)
	if lines := strings.Split(out, "\n"); len(lines) != 3 {
		t.Fatalf("RenderScope rows = %d, want 3", len(lines))
	}
	if strings.Count(out, "•") != 4 {
		t.Errorf("RenderScope drew %d points, want one per column:\n%s", strings.Count(out, "•"), out)
	}
	if v.RenderBars(5) != "" {
		t.Error("RenderBars narrower than the band count should be empty")
	}
}
