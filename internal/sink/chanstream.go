package sink

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ChanStream delivers PCM chunks to an in-process consumer over a bounded
// channel. Write never blocks: when the consumer falls behind, chunks are
// dropped and counted rather than stalling the synthesis pipeline.
type ChanStream struct {
	ch      chan []byte
	mu      sync.RWMutex
	closed  bool
	log     *slog.Logger
	dropped metric.Int64Counter
}

func NewChanStream(capacity int, log *slog.Logger) *ChanStream {
	s := &ChanStream{
		ch:  make(chan []byte, capacity),
		log: log,
	}
	meter := otel.Meter("kanade/sink")
	s.dropped, _ = meter.Int64Counter("kanade.stream.chunks_dropped",
		metric.WithDescription("PCM chunks dropped because the stream consumer fell behind"))
	return s
}

// Chunks returns the consumer side of the stream. The channel is closed when
// the session's audio ends.
func (s *ChanStream) Chunks() <-chan []byte {
	return s.ch
}

func (s *ChanStream) Write(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- buf:
	default:
		s.dropped.Add(context.Background(), 1)
		s.log.Warn("stream consumer behind, dropping chunk", slog.Int("bytes", len(pcm)))
	}
	return nil
}

func (s *ChanStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}
