package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kanade-ai/kanade-tts/internal/bus"
	"github.com/kanade-ai/kanade-tts/internal/config"
	"github.com/kanade-ai/kanade-tts/internal/natsserver"
	"github.com/kanade-ai/kanade-tts/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestChanStreamDeliversInOrder(t *testing.T) {
	s := NewChanStream(8, newLogger())
	chunks := [][]byte{{1, 2}, {3, 4}, {5, 6}}
	for _, c := range chunks {
		if err := s.Write(c); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got [][]byte
	for c := range s.Chunks() {
		got = append(got, c)
	}
	if len(got) != len(chunks) {
		t.Fatalf("expected %d chunks, got %d", len(chunks), len(got))
	}
	for i := range chunks {
		if !bytes.Equal(got[i], chunks[i]) {
			t.Fatalf("chunk %d mismatch: %v != %v", i, got[i], chunks[i])
		}
	}
}

func TestChanStreamWriteCopiesInput(t *testing.T) {
	s := NewChanStream(1, newLogger())
	buf := []byte{1, 2, 3}
	if err := s.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf[0] = 99
	got := <-s.Chunks()
	if got[0] != 1 {
		t.Fatal("stream chunk aliases the caller's buffer")
	}
}

func TestChanStreamDropsWhenFull(t *testing.T) {
	s := NewChanStream(1, newLogger())
	if err := s.Write([]byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Consumer is not reading, so this one is dropped instead of blocking.
	done := make(chan struct{})
	go func() {
		s.Write([]byte{2})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write blocked on a full stream")
	}
}

func TestChanStreamSkipsEmptyChunks(t *testing.T) {
	s := NewChanStream(4, newLogger())
	if err := s.Write(nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.Close()
	if _, ok := <-s.Chunks(); ok {
		t.Fatal("expected no chunks for empty write")
	}
}

func TestChanStreamCloseIdempotent(t *testing.T) {
	s := NewChanStream(1, newLogger())
	s.Close()
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestBusStreamPublishesChunksAndFinal(t *testing.T) {
	log := newLogger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	defer srv.Shutdown()

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	const sessionID = "sess-1"
	received := make(chan protocol.AudioChunk, 8)
	sub, err := client.Conn().Subscribe(protocol.AudioSubject(sessionID), func(msg *nats.Msg) {
		var chunk protocol.AudioChunk
		if err := json.Unmarshal(msg.Data, &chunk); err != nil {
			t.Errorf("decode chunk: %v", err)
			return
		}
		received <- chunk
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	s := NewBusStream(client, sessionID, 32000, 1, log)
	if err := s.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write([]byte{5, 6}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var chunks []protocol.AudioChunk
	for len(chunks) < 3 {
		select {
		case c := <-received:
			chunks = append(chunks, c)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out after %d chunks", len(chunks))
		}
	}
	for i, c := range chunks {
		if c.Sequence != i {
			t.Fatalf("chunk %d has sequence %d", i, c.Sequence)
		}
		if c.SessionID != sessionID {
			t.Fatalf("chunk %d has session %q", i, c.SessionID)
		}
	}
	if !chunks[2].Final || len(chunks[2].PCM) != 0 {
		t.Fatalf("expected empty final chunk, got %+v", chunks[2])
	}
	if !bytes.Equal(chunks[0].PCM, []byte{1, 2, 3, 4}) {
		t.Fatalf("chunk 0 pcm mismatch: %v", chunks[0].PCM)
	}
}
