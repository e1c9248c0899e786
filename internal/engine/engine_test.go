package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kanade-ai/kanade-tts/internal/audio"
	"github.com/kanade-ai/kanade-tts/internal/config"
	"github.com/kanade-ai/kanade-tts/internal/modelcache"
	"github.com/kanade-ai/kanade-tts/internal/profile"
	"github.com/kanade-ai/kanade-tts/internal/session"
	"github.com/kanade-ai/kanade-tts/internal/synth"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingSynth struct {
	calls atomic.Int64
	inner synth.Synthesizer
}

func (c *countingSynth) Name() string { return "counting" }
func (c *countingSynth) Synthesize(ctx context.Context, req synth.Request) (*audio.Frame, error) {
	c.calls.Add(1)
	return c.inner.Synthesize(ctx, req)
}

func newTestEngine(t *testing.T) (*Engine, *countingSynth) {
	t.Helper()
	cfg := config.Default()
	cfg.Playback.Enabled = false
	cfg.Synth.MinUnitLength = 2
	cfg.Synth.PollTimeoutMS = 50
	log := newLogger()

	backend := &countingSynth{inner: synth.NewMockSynth(cfg.Audio.SampleRate)}
	adapter := synth.NewAdapter(backend, log)
	pipeline := session.New(cfg, adapter, nil, log)
	t.Cleanup(pipeline.Shutdown)

	cache, err := modelcache.New(cfg.Models.MaxCached, log)
	if err != nil {
		t.Fatalf("create model cache: %v", err)
	}
	registry := profile.NewRegistry(cache, log)
	return New(cfg, registry, pipeline, log), backend
}

func configureCharacter(t *testing.T, e *Engine, name string) {
	t.Helper()
	if err := e.LoadCharacter(context.Background(), name, t.TempDir()); err != nil {
		t.Fatalf("load character: %v", err)
	}
	if err := e.SetReferenceAudio(name, filepath.Join(t.TempDir(), "ref.wav"), "参考音声です。"); err != nil {
		t.Fatalf("set reference: %v", err)
	}
}

func TestTTSUnknownCharacter(t *testing.T) {
	e, backend := newTestEngine(t)
	_, err := e.TTS(context.Background(), Request{Character: "nobody", Text: "こんにちは。"})
	if !errors.Is(err, profile.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if backend.calls.Load() != 0 {
		t.Fatal("inference ran for an unknown character")
	}
}

func TestTTSWithoutReference(t *testing.T) {
	e, backend := newTestEngine(t)
	if err := e.LoadCharacter(context.Background(), "kanade", t.TempDir()); err != nil {
		t.Fatalf("load character: %v", err)
	}

	_, err := e.TTS(context.Background(), Request{Character: "kanade", Text: "こんにちは。"})
	if !errors.Is(err, profile.ErrReferenceNotSet) {
		t.Fatalf("expected ErrReferenceNotSet, got %v", err)
	}
	if backend.calls.Load() != 0 {
		t.Fatal("inference ran before the reference check")
	}
}

func TestTTSStreamHappyPath(t *testing.T) {
	e, backend := newTestEngine(t)
	configureCharacter(t, e, "kanade")

	id, stream, err := e.TTSStream(context.Background(), Request{
		Character: "kanade",
		Text:      "ひとつめの文。ふたつめの文。",
	})
	if err != nil {
		t.Fatalf("tts stream: %v", err)
	}
	if id == "" {
		t.Fatal("expected a session id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	var chunks int
	for range stream.Chunks() {
		chunks++
	}
	if chunks != 2 {
		t.Fatalf("expected 2 chunks, got %d", chunks)
	}
	if backend.calls.Load() != 2 {
		t.Fatalf("expected 2 inference calls, got %d", backend.calls.Load())
	}
}

func TestTTSSavesAudio(t *testing.T) {
	e, _ := newTestEngine(t)
	configureCharacter(t, e, "kanade")
	path := filepath.Join(t.TempDir(), "speech.wav")

	if _, err := e.TTS(context.Background(), Request{
		Character: "kanade",
		Text:      "保存される音声です。",
		SavePath:  path,
	}); err != nil {
		t.Fatalf("tts: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	frame, err := audio.ReadWAV(path)
	if err != nil {
		t.Fatalf("read saved wav: %v", err)
	}
	if frame.Empty() {
		t.Fatal("saved wav has no samples")
	}
}

func TestUnloadCharacter(t *testing.T) {
	e, _ := newTestEngine(t)
	configureCharacter(t, e, "kanade")

	e.UnloadCharacter("kanade")
	if names := e.Characters(); len(names) != 0 {
		t.Fatalf("expected no characters, got %v", names)
	}
	_, err := e.TTS(context.Background(), Request{Character: "kanade", Text: "もういない。"})
	if !errors.Is(err, profile.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestStopIsSafeAnytime(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Stop()

	configureCharacter(t, e, "kanade")
	if _, err := e.TTS(context.Background(), Request{Character: "kanade", Text: "とめられる文章。"}); err != nil {
		t.Fatalf("tts: %v", err)
	}
	e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
