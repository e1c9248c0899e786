package audio

import (
	"path/filepath"
	"testing"
	"time"
)

func TestToneDuration(t *testing.T) {
	f := Tone(440, time.Second, 32000)
	if f.Samples() != 32000 {
		t.Fatalf("expected 32000 samples, got %d", f.Samples())
	}
	if f.Duration() != time.Second {
		t.Fatalf("expected 1s duration, got %v", f.Duration())
	}
}

func TestConcatPreservesSampleCount(t *testing.T) {
	frames := []*Frame{
		Tone(440, time.Second, 32000),
		Tone(550, time.Second, 32000),
		Tone(660, time.Second, 32000),
	}
	joined := Concat(frames)
	if joined.Samples() != 3*32000 {
		t.Fatalf("expected %d samples, got %d", 3*32000, joined.Samples())
	}
	if joined.Duration() != 3*time.Second {
		t.Fatalf("expected 3s, got %v", joined.Duration())
	}
	if joined.SampleRate != 32000 || joined.Channels != 1 {
		t.Fatalf("unexpected format %d/%d", joined.SampleRate, joined.Channels)
	}
}

func TestConcatSkipsEmpty(t *testing.T) {
	joined := Concat([]*Frame{nil, {}, Tone(440, 100*time.Millisecond, 32000)})
	if joined.Samples() != 3200 {
		t.Fatalf("expected 3200 samples, got %d", joined.Samples())
	}
}

func TestWriteReadWAVRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "out.wav")

	original := Tone(440, 500*time.Millisecond, 32000)
	if err := WriteWAV(path, original); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	loaded, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if loaded.SampleRate != 32000 {
		t.Fatalf("expected sample rate 32000, got %d", loaded.SampleRate)
	}
	if loaded.Samples() != original.Samples() {
		t.Fatalf("sample count mismatch: %d vs %d", loaded.Samples(), original.Samples())
	}
	for i := range original.PCM {
		if original.PCM[i] != loaded.PCM[i] {
			t.Fatalf("pcm mismatch at byte %d", i)
		}
	}
}

func TestWriteWAVOverwrites(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "out.wav")

	if err := WriteWAV(path, Tone(440, time.Second, 32000)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteWAV(path, Tone(440, 100*time.Millisecond, 32000)); err != nil {
		t.Fatalf("second write: %v", err)
	}
	loaded, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if loaded.Samples() != 3200 {
		t.Fatalf("expected overwrite with 3200 samples, got %d", loaded.Samples())
	}
}
