package sink

import (
	"log/slog"
	"sync"

	"github.com/kanade-ai/kanade-tts/internal/bus"
	"github.com/kanade-ai/kanade-tts/internal/protocol"
)

// BusStream publishes PCM chunks as protocol.AudioChunk messages on the
// session's audio subject. Close publishes a final empty chunk so remote
// consumers know the audio is complete.
type BusStream struct {
	client     *bus.Client
	sessionID  string
	sampleRate int
	channels   int
	log        *slog.Logger

	mu     sync.Mutex
	seq    int
	closed bool
}

func NewBusStream(client *bus.Client, sessionID string, sampleRate, channels int, log *slog.Logger) *BusStream {
	return &BusStream{
		client:     client,
		sessionID:  sessionID,
		sampleRate: sampleRate,
		channels:   channels,
		log:        log,
	}
}

func (s *BusStream) Write(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	return s.client.PublishJSON(protocol.AudioSubject(s.sessionID), protocol.AudioChunk{
		SessionID:  s.sessionID,
		Sequence:   seq,
		SampleRate: s.sampleRate,
		Channels:   s.channels,
		PCM:        pcm,
	})
}

func (s *BusStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	err := s.client.PublishJSON(protocol.AudioSubject(s.sessionID), protocol.AudioChunk{
		SessionID:  s.sessionID,
		Sequence:   seq,
		SampleRate: s.sampleRate,
		Channels:   s.channels,
		Final:      true,
	})
	if err != nil {
		s.log.Warn("publish final audio chunk failed",
			slog.String("session_id", s.sessionID), slog.String("error", err.Error()))
	}
	return err
}
