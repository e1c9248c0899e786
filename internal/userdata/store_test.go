package userdata

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/kanade-ai/kanade-tts/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.UserDataConfig{Path: filepath.Join(t.TempDir(), "userdata.db")}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestModelDirRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.SetModelDir(ctx, "kanade", "/models/kanade-v2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	dir, err := s.ModelDir(ctx, "kanade")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dir != "/models/kanade-v2" {
		t.Fatalf("unexpected dir %q", dir)
	}
}

func TestModelDirMissing(t *testing.T) {
	s := openStore(t)
	dir, err := s.ModelDir(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dir != "" {
		t.Fatalf("expected empty dir, got %q", dir)
	}
}

func TestModelDirOverwrite(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.SetModelDir(ctx, "kanade", "/models/v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetModelDir(ctx, "kanade", "/models/v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	dir, err := s.ModelDir(ctx, "kanade")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dir != "/models/v2" {
		t.Fatalf("expected overwritten dir, got %q", dir)
	}
}

func TestForget(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.SetModelDir(ctx, "kanade", "/models/v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Forget(ctx, "kanade"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	dir, err := s.ModelDir(ctx, "kanade")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dir != "" {
		t.Fatalf("expected forgotten dir, got %q", dir)
	}
	// Forgetting again is a no-op.
	if err := s.Forget(ctx, "kanade"); err != nil {
		t.Fatalf("second forget: %v", err)
	}
}

func TestCharactersSorted(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, name := range []string{"mizuki", "kanade", "ena"} {
		if err := s.SetModelDir(ctx, name, "/models/"+name); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
	names, err := s.Characters(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"ena", "kanade", "mizuki"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}
