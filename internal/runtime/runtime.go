// Package runtime assembles the daemon: telemetry, the synthesis engine, the
// HTTP API and the optional bus transport, with one graceful shutdown path.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kanade-ai/kanade-tts/internal/bus"
	"github.com/kanade-ai/kanade-tts/internal/config"
	"github.com/kanade-ai/kanade-tts/internal/engine"
	"github.com/kanade-ai/kanade-tts/internal/modelcache"
	"github.com/kanade-ai/kanade-tts/internal/natsserver"
	"github.com/kanade-ai/kanade-tts/internal/profile"
	"github.com/kanade-ai/kanade-tts/internal/server"
	"github.com/kanade-ai/kanade-tts/internal/session"
	"github.com/kanade-ai/kanade-tts/internal/sink"
	"github.com/kanade-ai/kanade-tts/internal/synth"
	"github.com/kanade-ai/kanade-tts/internal/userdata"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	metricsSrv  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	pipeline *session.Pipeline
	engine   *engine.Engine
	store    *userdata.Store
	busConn  *bus.Client
	embedded *natsserver.EmbeddedServer
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.buildEngine(ctx); err != nil {
		return err
	}
	defer r.pipeline.Shutdown()

	if err := r.startBus(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	server.New(r.cfg, r.engine, r.store, r.logger).Routes(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.startMetrics(metricsHandler)

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	r.busConn.Close()
	r.embedded.Shutdown()
	if err := r.store.Close(); err != nil {
		r.logger.Error("userdata close error", slog.String("error", err.Error()))
	}

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildEngine wires the synthesis stack: backend, pipeline, registry and the
// preference store. A broken preference store degrades to no persistence.
func (r *Runtime) buildEngine(ctx context.Context) error {
	backend, err := r.buildBackend()
	if err != nil {
		return err
	}
	adapter := synth.NewAdapter(backend, r.logger)

	var playback *sink.Playback
	if r.cfg.Playback.Enabled {
		playback = sink.NewPlayback(r.cfg.Audio.SampleRate, r.cfg.Audio.Channels, r.logger)
	}
	r.pipeline = session.New(r.cfg, adapter, playback, r.logger)

	cache, err := modelcache.New(r.cfg.Models.MaxCached, r.logger)
	if err != nil {
		return err
	}
	registry := profile.NewRegistry(cache, r.logger)
	r.engine = engine.New(r.cfg, registry, r.pipeline, r.logger)

	store, err := userdata.Open(ctx, r.cfg.UserData, r.logger)
	if err != nil {
		r.logger.Warn("user data store unavailable, preferences will not persist",
			slog.String("path", r.cfg.UserData.Path),
			slog.String("error", err.Error()))
	} else {
		r.store = store
	}
	return nil
}

func (r *Runtime) buildBackend() (synth.Synthesizer, error) {
	switch r.cfg.Synth.Mode {
	case "exec":
		backend, err := synth.NewExecSynth(r.cfg.Synth.Command)
		if err != nil {
			return nil, fmt.Errorf("configure exec synthesizer: %w", err)
		}
		return backend, nil
	default:
		return synth.NewMockSynth(r.cfg.Audio.SampleRate), nil
	}
}

// startBus brings up the embedded server when asked, connects and subscribes
// the speak service.
func (r *Runtime) startBus(ctx context.Context) error {
	if !r.cfg.Bus.Enabled {
		return nil
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	r.embedded = embedded

	conn, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	r.busConn = conn

	if err := r.startSpeakService(ctx); err != nil {
		return err
	}
	return nil
}

func (r *Runtime) startMetrics(handler http.Handler) {
	if handler == nil || r.cfg.Telemetry.PrometheusBind == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	r.metricsSrv = &http.Server{
		Addr:              r.cfg.Telemetry.PrometheusBind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
