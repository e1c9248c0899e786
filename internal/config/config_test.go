package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 32000 {
		t.Fatalf("expected default sample rate 32000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Fatalf("expected mono default, got %d channels", cfg.Audio.Channels)
	}
	if cfg.Synth.Mode != "mock" {
		t.Fatalf("expected default synth mode mock, got %q", cfg.Synth.Mode)
	}
}

func TestLoadFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "kanade.yaml")
	data := []byte(`
runtime_name: test-runtime
audio:
  sample_rate: 24000
synth:
  mode: exec
  command: "kanade-backend --stream"
  min_unit_length: 7
playback:
  enabled: false
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "test-runtime" {
		t.Fatalf("expected runtime name override, got %q", cfg.RuntimeName)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Fatalf("expected sample rate 24000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Synth.Command != "kanade-backend --stream" {
		t.Fatalf("unexpected synth command %q", cfg.Synth.Command)
	}
	if cfg.Synth.MinUnitLength != 7 {
		t.Fatalf("expected min unit length 7, got %d", cfg.Synth.MinUnitLength)
	}
	if cfg.Playback.Enabled {
		t.Fatal("expected playback disabled")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KANADE_RUNTIME_NAME", "env-runtime")
	t.Setenv("KANADE_AUDIO_SAMPLE_RATE", "16000")
	t.Setenv("KANADE_SYNTH_MODE", "exec")
	t.Setenv("KANADE_SYNTH_COMMAND", "synthesize --json")
	t.Setenv("KANADE_BUS_ENABLED", "true")
	t.Setenv("KANADE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("KANADE_BUS_EMBEDDED", "false")
	t.Setenv("KANADE_PLAYBACK_QUEUE_SIZE", "128")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "env-runtime" {
		t.Fatalf("expected runtime name override, got %q", cfg.RuntimeName)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected sample rate override, got %d", cfg.Audio.SampleRate)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Playback.QueueSize != 128 {
		t.Fatalf("expected queue size override, got %d", cfg.Playback.QueueSize)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty runtime name", func(c *Config) { c.RuntimeName = "" }},
		{"bad http port", func(c *Config) { c.HTTP.Port = 0 }},
		{"bad sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"bad synth mode", func(c *Config) { c.Synth.Mode = "magic" }},
		{"exec without command", func(c *Config) { c.Synth.Mode = "exec"; c.Synth.Command = "" }},
		{"bad poll timeout", func(c *Config) { c.Synth.PollTimeoutMS = 0 }},
		{"bad playback queue", func(c *Config) { c.Playback.QueueSize = 0 }},
		{"bad model cache", func(c *Config) { c.Models.MaxCached = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
