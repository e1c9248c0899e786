// Package session runs the synthesis pipeline: text is segmented into units,
// a persistent inference worker turns units into PCM, and a persistent
// playback worker feeds the output device. All session state changes go
// through one mutex so concurrent callers see a consistent session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/kanade-ai/kanade-tts/internal/audio"
	"github.com/kanade-ai/kanade-tts/internal/config"
	"github.com/kanade-ai/kanade-tts/internal/profile"
	"github.com/kanade-ai/kanade-tts/internal/sink"
	"github.com/kanade-ai/kanade-tts/internal/synth"
	"github.com/kanade-ai/kanade-tts/internal/textseg"
)

var ErrNoActiveSession = errors.New("no active session")

// Options snapshots everything one session needs. The model handle and
// reference are captured at session start so later profile changes do not
// affect audio already queued.
type Options struct {
	Character      string
	Model          profile.ModelHandle
	ReferenceAudio string
	ReferenceText  string

	Play     bool
	SavePath string
	Stream   sink.StreamWriter
}

type itemKind int

const (
	itemUnit itemKind = iota
	itemEndOfStream
)

type item struct {
	kind itemKind
	sess *session
	text string
}

type playItem struct {
	sess *session
	pcm  []byte
	eos  bool
}

type session struct {
	id   string
	opts Options

	// start is stamped under the control mutex on the session's first Feed,
	// so idle time between Start and the first text does not count toward
	// first-packet latency.
	start time.Time

	ctx    context.Context
	cancel context.CancelFunc

	ended       bool
	firstPacket bool
	chunks      []*audio.Frame

	inferOnce sync.Once
	playOnce  sync.Once
	done      chan struct{}
	played    chan struct{}
}

func (s *session) finishInference() { s.inferOnce.Do(func() { close(s.done) }) }
func (s *session) finishPlayback()  { s.playOnce.Do(func() { close(s.played) }) }

// Pipeline owns the two workers and the current session.
type Pipeline struct {
	cfg      config.Config
	synth    *synth.Adapter
	playback *sink.Playback
	log      *slog.Logger

	// queue holds pending units for the inference worker. Its capacity
	// bounds how far Feed can run ahead of synthesis; Feed only blocks once
	// a single session has that many units outstanding.
	queue     chan item
	playQueue chan playItem
	quit      chan struct{}
	wg        sync.WaitGroup

	mu   sync.Mutex
	cur  *session
	last *session

	firstPacketLatency metric.Float64Histogram
}

// New builds a pipeline and starts its workers. playback may be nil when
// local playback is disabled.
func New(cfg config.Config, adapter *synth.Adapter, playback *sink.Playback, log *slog.Logger) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		synth:     adapter,
		playback:  playback,
		log:       log.With(slog.String("component", "session")),
		queue:     make(chan item, 1024),
		playQueue: make(chan playItem, cfg.Playback.QueueSize),
		quit:      make(chan struct{}),
	}

	meter := otel.Meter("kanade/session")
	p.firstPacketLatency, _ = meter.Float64Histogram("kanade.session.first_packet_latency",
		metric.WithDescription("Seconds from the first fed text to the first synthesized audio"),
		metric.WithUnit("s"))

	p.wg.Add(1)
	go p.inferenceWorker()
	if playback != nil {
		p.wg.Add(1)
		go p.playbackWorker()
	}
	return p
}

// Start opens a new session, stopping any session still active. Returns the
// session id.
func (p *Pipeline) Start(opts Options) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur != nil {
		p.stopLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:     uuid.NewString(),
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		played: make(chan struct{}),
	}
	if !opts.Play || p.playback == nil {
		sess.finishPlayback()
	}
	p.cur = sess
	p.last = sess

	p.log.Info("session started",
		slog.String("session_id", sess.id),
		slog.String("character", opts.Character),
		slog.Bool("play", opts.Play),
		slog.String("save_path", opts.SavePath))
	return sess.id
}

// Feed segments text into units and queues them for the current session. The
// first Feed of a session starts its latency clock. Feed is append-only and
// does not wait on synthesis; it can block only when the unit queue's
// capacity is exhausted by one session.
func (p *Pipeline) Feed(text string) error {
	p.mu.Lock()
	sess := p.cur
	if sess == nil || sess.ended {
		p.mu.Unlock()
		return ErrNoActiveSession
	}
	if sess.start.IsZero() {
		sess.start = time.Now()
	}
	p.mu.Unlock()

	for _, unit := range textseg.Segment(text, p.cfg.Synth.MinUnitLength) {
		select {
		case p.queue <- item{kind: itemUnit, sess: sess, text: unit}:
		case <-sess.ctx.Done():
			return nil
		case <-p.quit:
			return nil
		}
	}
	return nil
}

// End marks the current session complete. Queued units still synthesize; the
// end-of-stream marker behind them triggers the save and stream close.
func (p *Pipeline) End() error {
	p.mu.Lock()
	sess := p.cur
	if sess == nil || sess.ended {
		p.mu.Unlock()
		return ErrNoActiveSession
	}
	sess.ended = true
	p.cur = nil
	p.mu.Unlock()

	select {
	case p.queue <- item{kind: itemEndOfStream, sess: sess}:
	case <-p.quit:
	}
	return nil
}

// Stop abandons the current session entirely: queued units are discarded,
// in-flight synthesis is cancelled and playback is cut off. No-op when no
// session is active.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func chanClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (p *Pipeline) stopLocked() {
	sess := p.last
	if sess == nil {
		return
	}
	p.cur = nil
	if sess.ctx.Err() != nil {
		return
	}
	if chanClosed(sess.done) && chanClosed(sess.played) {
		// Already finished normally.
		return
	}

	sess.cancel()
	if sess.opts.Stream != nil {
		sess.opts.Stream.Close()
	}
	sess.finishInference()
	sess.finishPlayback()
	if p.playback != nil {
		// Aborts the frame currently on the device. The device reopens on
		// the next session's first frame.
		p.playback.Close()
	}
	p.log.Info("session stopped", slog.String("session_id", sess.id))
}

// Wait blocks until the most recent session has fully synthesized and, when
// playing, fully played. Returns immediately when no session was started.
func (p *Pipeline) Wait(ctx context.Context) error {
	p.mu.Lock()
	sess := p.last
	p.mu.Unlock()
	if sess == nil {
		return nil
	}

	select {
	case <-sess.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-sess.played:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Shutdown stops the workers and releases the output device.
func (p *Pipeline) Shutdown() {
	p.Stop()
	close(p.quit)
	p.wg.Wait()
	if p.playback != nil {
		p.playback.Close()
	}
}

func (p *Pipeline) inferenceWorker() {
	defer p.wg.Done()
	poll := time.Duration(p.cfg.Synth.PollTimeoutMS) * time.Millisecond
	for {
		select {
		case <-p.quit:
			return
		case it := <-p.queue:
			p.handleItem(it)
		case <-time.After(poll):
		}
	}
}

func (p *Pipeline) handleItem(it item) {
	sess := it.sess
	if sess.ctx.Err() != nil {
		return
	}

	if it.kind == itemEndOfStream {
		p.finishSession(sess)
		return
	}

	frame := p.synth.Synthesize(sess.ctx, synth.Request{
		Text:           it.text,
		Voice:          sess.opts.Character,
		Model:          sess.opts.Model,
		ReferenceAudio: sess.opts.ReferenceAudio,
		ReferenceText:  sess.opts.ReferenceText,
		SampleRate:     p.cfg.Audio.SampleRate,
		Channels:       p.cfg.Audio.Channels,
	})
	if frame == nil || sess.ctx.Err() != nil {
		return
	}

	if !sess.firstPacket {
		sess.firstPacket = true
		latency := time.Since(sess.start)
		p.firstPacketLatency.Record(sess.ctx, latency.Seconds())
		p.log.Info("first audio packet",
			slog.String("session_id", sess.id),
			slog.Duration("latency", latency))
	}

	if sess.opts.SavePath != "" {
		sess.chunks = append(sess.chunks, frame)
	}
	if sess.opts.Stream != nil {
		if err := sess.opts.Stream.Write(frame.PCM); err != nil {
			p.log.Warn("stream write failed",
				slog.String("session_id", sess.id),
				slog.String("error", err.Error()))
		}
	}
	if sess.opts.Play && p.playback != nil {
		select {
		case p.playQueue <- playItem{sess: sess, pcm: frame.PCM}:
		case <-sess.ctx.Done():
		case <-p.quit:
		}
	}
}

func (p *Pipeline) finishSession(sess *session) {
	if sess.opts.SavePath != "" && len(sess.chunks) > 0 {
		full := audio.Concat(sess.chunks)
		if err := audio.WriteWAV(sess.opts.SavePath, full); err != nil {
			p.log.Error("save session audio failed",
				slog.String("session_id", sess.id),
				slog.String("path", sess.opts.SavePath),
				slog.String("error", err.Error()))
		} else {
			p.log.Info("session audio saved",
				slog.String("session_id", sess.id),
				slog.String("path", sess.opts.SavePath),
				slog.Duration("audio", full.Duration()))
		}
	}
	if sess.opts.Stream != nil {
		if err := sess.opts.Stream.Close(); err != nil {
			p.log.Warn("stream close failed",
				slog.String("session_id", sess.id),
				slog.String("error", err.Error()))
		}
	}

	elapsed := time.Duration(0)
	if !sess.start.IsZero() {
		elapsed = time.Since(sess.start)
	}
	p.log.Info("session complete",
		slog.String("session_id", sess.id),
		slog.Duration("elapsed", elapsed))
	sess.finishInference()

	if sess.opts.Play && p.playback != nil {
		select {
		case p.playQueue <- playItem{sess: sess, eos: true}:
		case <-p.quit:
			sess.finishPlayback()
		}
	}
}

func (p *Pipeline) playbackWorker() {
	defer p.wg.Done()
	idle := time.Duration(p.cfg.Playback.IdleCloseMS) * time.Millisecond
	for {
		select {
		case <-p.quit:
			return
		case it := <-p.playQueue:
			if it.eos {
				it.sess.finishPlayback()
				continue
			}
			if it.sess.ctx.Err() != nil {
				continue
			}
			if err := p.playback.Open(); err != nil {
				p.log.Warn("playback unavailable", slog.String("error", err.Error()))
				continue
			}
			if err := p.playback.Play(it.pcm); err != nil {
				p.log.Debug("playback interrupted", slog.String("error", err.Error()))
			}
		case <-time.After(idle):
			p.playback.Close()
		}
	}
}
