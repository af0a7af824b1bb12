package tempo

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/bo1ta/Illuminated/decode"
	"github.com/bo1ta/Illuminated/library"
)

// clicks returns a mono click track: a short decaying 1 kHz burst on every
// beat.
func clicks(bpm float64, rate int, length time.Duration) []float32 {
	n := int(length.Seconds() * float64(rate))
	out := make([]float32, n)
	period := 60 / bpm * float64(rate)
	burst := rate / 50
	for beat := 0.0; int(beat) < n; beat += period {
		start := int(beat)
		for i := 0; i < burst && start+i < n; i++ {
			decay := math.Exp(-float64(i) / float64(burst) * 4)
			out[start+i] = float32(0.8 * decay * math.Sin(2*math.Pi*1000*float64(i)/float64(rate)))
		}
	}
	return out
}

func TestDetectClickTracks(t *testing.T) {
	tests := []struct {
		bpm  float64
		rate int
	}{
		{120, 10240},
		{90, 22050},
	}
	for _, tt := range tests {
		est := Detect(clicks(tt.bpm, tt.rate, 12*time.Second), tt.rate)
		if !est.Determined {
			t.Errorf("Detect(%v BPM @ %d Hz) undetermined", tt.bpm, tt.rate)
			continue
		}
		if math.Abs(est.BPM-tt.bpm) > 2 {
			t.Errorf("Detect(%v BPM @ %d Hz) = %v, want within 2", tt.bpm, tt.rate, est.BPM)
		}
		if est.Confidence <= 0 || est.Confidence > 1 {
			t.Errorf("Confidence = %v, want in (0, 1]", est.Confidence)
		}
		if est.BPM < MinBPM || est.BPM > MaxBPM {
			t.Errorf("BPM %v outside [%v, %v]", est.BPM, MinBPM, MaxBPM)
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	samples := clicks(100, 11025, 8*time.Second)
	a, b := Detect(samples, 11025), Detect(samples, 11025)
	if a != b {
		t.Errorf("Detect not deterministic: %+v vs %+v", a, b)
	}
}

func TestDetectUndetermined(t *testing.T) {
	const rate = 11025
	dc := make([]float32, 10*rate)
	for i := range dc {
		dc[i] = 0.5
	}
	tests := []struct {
		name    string
		samples []float32
	}{
		{"silence", make([]float32, 10*rate)},
		{"empty", nil},
		{"too short", clicks(120, rate, 2*time.Second)},
		{"flat envelope", dc},
	}
	for _, tt := range tests {
		if est := Detect(tt.samples, rate); est.Determined {
			t.Errorf("%s: Detect = %+v, want undetermined", tt.name, est)
		}
	}
}

func TestPreference(t *testing.T) {
	if p := preference(preferredBPM); math.Abs(p-1) > 1e-9 {
		t.Errorf("preference(120) = %v, want 1", p)
	}
	if preference(60) >= preference(100) || preference(200) >= preference(140) {
		t.Error("preference does not fall off away from 120")
	}
}

func monoDecoder(samples []float32, rate int) decode.DecoderFunc {
	return func(ctx context.Context, _ string) (beep.StreamSeekCloser, beep.Format, error) {
		mono := make([]float64, len(samples))
		for i, v := range samples {
			mono[i] = float64(v)
		}
		return decode.NewMonoMemory(mono), beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 2, Precision: 2}, nil
	}
}

var anySource = library.ResolverFunc(func(_ context.Context, t library.Track) (library.Source, error) {
	return library.NewSource(t.Location, nil), nil
})

func TestAnalyzerPersistsTempo(t *testing.T) {
	ctx := context.Background()
	store := library.NewMemoryStore()
	track := library.TrackFromPath("/music/beat.wav")
	store.Save(ctx, &track)

	a := NewAnalyzer(anySource, monoDecoder(clicks(120, 10240, 12*time.Second), 10240), WithStore(store))
	est, err := a.Analyze(ctx, track)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !est.Determined {
		t.Fatal("Analyze undetermined")
	}
	got, _ := store.Track(ctx, track.ID)
	if got.Tempo != est.BPM {
		t.Errorf("stored tempo = %v, want %v", got.Tempo, est.BPM)
	}
}

func TestAnalyzerSilenceNotPersisted(t *testing.T) {
	ctx := context.Background()
	store := library.NewMemoryStore()
	track := library.TrackFromPath("/music/quiet.wav")
	store.Save(ctx, &track)

	a := NewAnalyzer(anySource, monoDecoder(make([]float32, 8*11025), 11025), WithStore(store))
	out := <-a.AnalyzeAsync(ctx, track)
	if out.Err != nil || out.Estimate.Determined {
		t.Errorf("AnalyzeAsync = %+v, want undetermined without error", out)
	}
	if got, _ := store.Track(ctx, track.ID); got.HasTempo() {
		t.Errorf("silent track stored tempo %v", got.Tempo)
	}
}

func TestAnalyzerLimit(t *testing.T) {
	a := NewAnalyzer(anySource, monoDecoder(clicks(120, 10240, 12*time.Second), 10240), WithLimit(3*time.Second))
	est, err := a.Analyze(context.Background(), library.TrackFromPath("/music/beat.wav"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if est.Determined {
		t.Errorf("Analyze with 3s limit = %+v, want undetermined", est)
	}
}

func TestAnalyzerReadsWholeTrackByDefault(t *testing.T) {
	const rate = 10240
	// Five silent seconds, then the beat.
	samples := append(make([]float32, 5*rate), clicks(120, rate, 12*time.Second)...)
	track := library.TrackFromPath("/music/late.wav")

	est, err := NewAnalyzer(anySource, monoDecoder(samples, rate)).Analyze(context.Background(), track)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !est.Determined {
		t.Error("Analyze without a limit missed the beat after the intro")
	}

	est, err = NewAnalyzer(anySource, monoDecoder(samples, rate), WithLimit(5*time.Second)).Analyze(context.Background(), track)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if est.Determined {
		t.Errorf("Analyze limited to the intro = %+v, want undetermined", est)
	}
}

func TestAnalyzerResolveError(t *testing.T) {
	a := NewAnalyzer(library.FileResolver{}, decode.FileDecoder{})
	_, err := a.Analyze(context.Background(), library.Track{})
	if !errors.Is(err, library.ErrNoSource) {
		t.Errorf("Analyze err = %v, want ErrNoSource", err)
	}
}
