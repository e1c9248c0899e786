package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kanade-ai/kanade-tts/internal/engine"
	"github.com/kanade-ai/kanade-tts/internal/protocol"
	"github.com/kanade-ai/kanade-tts/internal/sink"
)

// startSpeakService subscribes the engine to speak requests on the bus.
// Synthesized audio goes out as per-session chunk messages and a status
// message on the done subject reports how the session ended.
func (r *Runtime) startSpeakService(ctx context.Context) error {
	log := r.logger.With(slog.String("component", "speak-service"))

	_, err := r.busConn.Conn().Subscribe(protocol.SubjectSpeak, func(msg *nats.Msg) {
		var req protocol.SpeakRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Warn("invalid speak request", slog.String("error", err.Error()))
			return
		}
		if req.Character == "" || req.Text == "" {
			log.Warn("speak request missing character or text")
			return
		}
		r.handleSpeakRequest(ctx, log, req)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", protocol.SubjectSpeak, err)
	}

	log.Info("speak service listening", slog.String("subject", protocol.SubjectSpeak))
	return nil
}

func (r *Runtime) handleSpeakRequest(ctx context.Context, log *slog.Logger, req protocol.SpeakRequest) {
	// The session id on the wire is the request's correlation id; callers
	// subscribe to the audio subject before publishing, so they pick their
	// own id or accept a generated one announced in the done message.
	sid := req.SessionID
	if sid == "" {
		sid = uuid.NewString()
	}

	stream := sink.NewBusStream(r.busConn, sid, r.cfg.Audio.SampleRate, r.cfg.Audio.Channels, log)
	_, err := r.engine.TTS(ctx, engine.Request{
		Character: req.Character,
		Text:      req.Text,
		Play:      req.Play,
		SavePath:  req.SavePath,
		Stream:    stream,
	})
	if err != nil {
		log.Warn("speak request rejected",
			slog.String("character", req.Character),
			slog.String("error", err.Error()))
		r.publishStatus(protocol.SpeakStatus{
			SessionID: sid,
			Character: req.Character,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		if err := r.engine.Wait(waitCtx); err != nil {
			log.Warn("speak session wait failed",
				slog.String("session_id", sid),
				slog.String("error", err.Error()))
			return
		}
		r.publishStatus(protocol.SpeakStatus{
			SessionID: sid,
			Character: req.Character,
			Timestamp: time.Now().UTC(),
		})
	}()
}

func (r *Runtime) publishStatus(status protocol.SpeakStatus) {
	if err := r.busConn.PublishJSON(protocol.SubjectSpeakDone, status); err != nil {
		r.logger.Warn("publish speak status failed", slog.String("error", err.Error()))
	}
}
