// Package server exposes the synthesis engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kanade-ai/kanade-tts/internal/audio"
	"github.com/kanade-ai/kanade-tts/internal/config"
	"github.com/kanade-ai/kanade-tts/internal/engine"
	"github.com/kanade-ai/kanade-tts/internal/profile"
	"github.com/kanade-ai/kanade-tts/internal/protocol"
	"github.com/kanade-ai/kanade-tts/internal/userdata"
)

type Server struct {
	cfg      config.Config
	engine   *engine.Engine
	userdata *userdata.Store
	log      *slog.Logger
}

// New builds the HTTP API. userdata may be nil when persistence is disabled.
func New(cfg config.Config, eng *engine.Engine, store *userdata.Store, log *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		engine:   eng,
		userdata: store,
		log:      log.With(slog.String("component", "http")),
	}
}

// Routes registers the API handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/tts/speak", s.handleSpeak)
	mux.HandleFunc("POST /v1/tts/stop", s.handleStop)
	mux.HandleFunc("GET /v1/profiles", s.handleListProfiles)
	mux.HandleFunc("PUT /v1/profiles/{name}", s.handlePutProfile)
	mux.HandleFunc("PUT /v1/profiles/{name}/reference", s.handlePutReference)
	mux.HandleFunc("DELETE /v1/profiles/{name}", s.handleDeleteProfile)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, profile.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, profile.ErrReferenceNotSet):
		return http.StatusConflict
	case errors.Is(err, profile.ErrUnsupportedAudioFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleSpeak synthesizes text and streams the audio back as a wave file
// whose length is unknown up front. Chunks are flushed as they arrive so the
// client can start playback before synthesis finishes.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req protocol.SpeakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Character == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "character and text are required")
		return
	}

	id, stream, err := s.engine.TTSStream(r.Context(), engine.Request{
		Character: req.Character,
		Text:      req.Text,
		Play:      req.Play,
		SavePath:  req.SavePath,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Session-Id", id)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if _, err := w.Write(audio.StreamHeader(s.cfg.Audio.SampleRate, s.cfg.Audio.Channels)); err != nil {
		s.engine.Stop()
		return
	}
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case chunk, ok := <-stream.Chunks():
			if !ok {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				// Client went away; abandon the session.
				s.engine.Stop()
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			s.engine.Stop()
			return
		}
	}
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	names := s.engine.Characters()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"profiles": names})
}

type putProfileRequest struct {
	ModelDir string `json:"model_dir"`
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req putProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ModelDir == "" {
		writeError(w, http.StatusBadRequest, "model_dir is required")
		return
	}

	if err := s.engine.LoadCharacter(r.Context(), name, req.ModelDir); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.rememberModelDir(r.Context(), name, req.ModelDir)
	writeJSON(w, http.StatusOK, map[string]string{"profile": name})
}

type putReferenceRequest struct {
	AudioPath  string `json:"audio_path"`
	Transcript string `json:"transcript"`
}

func (s *Server) handlePutReference(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req putReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AudioPath == "" {
		writeError(w, http.StatusBadRequest, "audio_path is required")
		return
	}

	if err := s.engine.SetReferenceAudio(name, req.AudioPath, req.Transcript); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"profile": name})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.engine.UnloadCharacter(name)
	if s.userdata != nil {
		if err := s.userdata.Forget(r.Context(), name); err != nil {
			s.log.Warn("forget character failed",
				slog.String("character", name), slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"profile": name})
}

func (s *Server) rememberModelDir(ctx context.Context, name, modelDir string) {
	if s.userdata == nil {
		return
	}
	if err := s.userdata.SetModelDir(ctx, name, modelDir); err != nil {
		s.log.Warn("persist model dir failed",
			slog.String("character", name), slog.String("error", err.Error()))
	}
}
