package synth

import (
	"context"
	"time"

	"github.com/kanade-ai/kanade-tts/internal/audio"
	"github.com/kanade-ai/kanade-tts/internal/textseg"
)

type mockSynth struct {
	sampleRate int
	latency    time.Duration
}

// NewMockSynth returns a synthesizer that produces a deterministic sine tone
// whose duration scales with the meaningful length of the input text. Used in
// mock mode and by tests.
func NewMockSynth(sampleRate int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, latency: 10 * time.Millisecond}
}

func (m *mockSynth) Name() string { return "mock" }

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (*audio.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.latency):
	}

	n := textseg.MeaningfulLen(req.Text)
	if n == 0 {
		return nil, nil
	}
	dur := time.Duration(n) * 50 * time.Millisecond
	return audio.Tone(440, dur, m.sampleRate), nil
}
