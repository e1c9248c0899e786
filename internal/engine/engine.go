// Package engine is the front door for synthesis: it ties the character
// registry to the session pipeline and enforces the preconditions a request
// must meet before any audio work starts.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kanade-ai/kanade-tts/internal/config"
	"github.com/kanade-ai/kanade-tts/internal/profile"
	"github.com/kanade-ai/kanade-tts/internal/session"
	"github.com/kanade-ai/kanade-tts/internal/sink"
)

// Request describes one synthesis call.
type Request struct {
	Character string
	Text      string
	Play      bool
	SavePath  string
	Stream    sink.StreamWriter
}

type Engine struct {
	cfg      config.Config
	registry *profile.Registry
	pipeline *session.Pipeline
	log      *slog.Logger
}

func New(cfg config.Config, registry *profile.Registry, pipeline *session.Pipeline, log *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: registry,
		pipeline: pipeline,
		log:      log.With(slog.String("component", "engine")),
	}
}

// LoadCharacter registers a character backed by the model directory.
func (e *Engine) LoadCharacter(ctx context.Context, name, modelDir string) error {
	e.registry.SetProfile(name, modelDir)
	if _, err := e.registry.ResolveModel(ctx, name); err != nil {
		return fmt.Errorf("load character %s: %w", name, err)
	}
	return nil
}

// UnloadCharacter removes a character and evicts its model.
func (e *Engine) UnloadCharacter(name string) {
	e.registry.Remove(name)
}

// SetReferenceAudio attaches reference audio and its transcript to a
// character. Rejects unsupported audio formats without touching an existing
// reference.
func (e *Engine) SetReferenceAudio(name, audioPath, transcript string) error {
	return e.registry.SetReference(name, audioPath, transcript)
}

// Characters lists registered character names.
func (e *Engine) Characters() []string {
	return e.registry.Names()
}

// TTS starts a synthesis session for req and queues its text. The character
// must exist and carry a reference; both are checked before anything reaches
// the pipeline, so a misconfigured request costs no inference. Returns the
// session id. The call does not wait for audio; use Wait.
func (e *Engine) TTS(ctx context.Context, req Request) (string, error) {
	prof, err := e.registry.Resolve(req.Character)
	if err != nil {
		return "", err
	}
	if !prof.Configured() {
		return "", fmt.Errorf("character %s: %w", req.Character, profile.ErrReferenceNotSet)
	}
	model, err := e.registry.ResolveModel(ctx, req.Character)
	if err != nil {
		return "", err
	}

	id := e.pipeline.Start(session.Options{
		Character:      req.Character,
		Model:          model,
		ReferenceAudio: prof.Reference.AudioPath,
		ReferenceText:  prof.Reference.Transcript,
		Play:           req.Play,
		SavePath:       req.SavePath,
		Stream:         req.Stream,
	})
	if err := e.pipeline.Feed(req.Text); err != nil {
		return "", err
	}
	if err := e.pipeline.End(); err != nil {
		return "", err
	}

	e.log.Debug("tts queued",
		slog.String("session_id", id),
		slog.String("character", req.Character),
		slog.Int("text_len", len(req.Text)))
	return id, nil
}

// TTSStream is TTS with an in-process chunk stream attached. The returned
// stream yields PCM chunks as they are synthesized and closes at the end of
// the session.
func (e *Engine) TTSStream(ctx context.Context, req Request) (string, *sink.ChanStream, error) {
	stream := sink.NewChanStream(e.cfg.Playback.QueueSize, e.log)
	req.Stream = stream
	id, err := e.TTS(ctx, req)
	if err != nil {
		stream.Close()
		return "", nil, err
	}
	return id, stream, nil
}

// Stop abandons the active session, if any.
func (e *Engine) Stop() {
	e.pipeline.Stop()
}

// Wait blocks until the most recent session has fully finished.
func (e *Engine) Wait(ctx context.Context) error {
	return e.pipeline.Wait(ctx)
}
