// Package synth defines the inference backend boundary: one synthesis call
// per text unit, failure normalized to a nil frame so the pipeline can keep
// going.
package synth

import (
	"context"

	"github.com/kanade-ai/kanade-tts/internal/audio"
	"github.com/kanade-ai/kanade-tts/internal/profile"
)

// Request contains everything one synthesis call needs.
type Request struct {
	Text           string
	Voice          string
	Model          profile.ModelHandle
	ReferenceAudio string
	ReferenceText  string
	SampleRate     int
	Channels       int
}

// Synthesizer is the contract an inference backend must satisfy. A call must
// observe ctx cancellation so the pipeline can abandon in-flight work
// promptly on stop.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*audio.Frame, error)
	Name() string
}
