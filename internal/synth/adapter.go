package synth

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/kanade-ai/kanade-tts/internal/audio"
)

// Adapter normalizes backend behavior for the pipeline: any error or empty
// result becomes a nil frame plus a log line, so one bad unit never aborts a
// session.
type Adapter struct {
	backend Synthesizer
	log     *slog.Logger

	unitsSynthesized metric.Int64Counter
	unitsSkipped     metric.Int64Counter
}

func NewAdapter(backend Synthesizer, log *slog.Logger) *Adapter {
	a := &Adapter{
		backend: backend,
		log:     log.With(slog.String("component", "synth-adapter"), slog.String("backend", backend.Name())),
	}
	meter := otel.Meter("kanade/synth")
	if counter, err := meter.Int64Counter("kanade.synth.units",
		metric.WithDescription("Successfully synthesized text units")); err == nil {
		a.unitsSynthesized = counter
	}
	if counter, err := meter.Int64Counter("kanade.synth.units_skipped",
		metric.WithDescription("Text units skipped due to backend failure or empty output")); err == nil {
		a.unitsSkipped = counter
	}
	return a
}

// Synthesize runs one unit through the backend. Returns nil when the unit
// produced no audio, for whatever reason; cancellation errors are reported
// quietly at debug level.
func (a *Adapter) Synthesize(ctx context.Context, req Request) *audio.Frame {
	frame, err := a.backend.Synthesize(ctx, req)
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		a.log.Debug("synthesis cancelled", slog.String("voice", req.Voice))
		return nil
	case err != nil:
		a.log.Error("synthesis failed, skipping unit",
			slog.String("voice", req.Voice),
			slog.Int("text_length", len(req.Text)),
			slog.String("error", err.Error()))
		a.countSkipped(ctx)
		return nil
	case frame.Empty():
		a.log.Warn("synthesis produced no audio, skipping unit",
			slog.String("voice", req.Voice))
		a.countSkipped(ctx)
		return nil
	}
	a.countSynthesized(ctx)
	return frame
}

func (a *Adapter) countSynthesized(ctx context.Context) {
	if a.unitsSynthesized != nil {
		a.unitsSynthesized.Add(ctx, 1)
	}
}

func (a *Adapter) countSkipped(ctx context.Context) {
	if a.unitsSkipped != nil {
		a.unitsSkipped.Add(ctx, 1)
	}
}
