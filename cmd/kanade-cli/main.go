// kanade-cli is an interactive synthesis console. It runs the engine
// in-process, so no daemon is needed: load a character, point it at
// reference audio and type text to hear it.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kanade-ai/kanade-tts/internal/config"
	"github.com/kanade-ai/kanade-tts/internal/engine"
	"github.com/kanade-ai/kanade-tts/internal/modelcache"
	"github.com/kanade-ai/kanade-tts/internal/profile"
	"github.com/kanade-ai/kanade-tts/internal/session"
	"github.com/kanade-ai/kanade-tts/internal/sink"
	"github.com/kanade-ai/kanade-tts/internal/synth"
	"github.com/kanade-ai/kanade-tts/internal/userdata"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
		verbose     bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&verbose, "verbose", false, "Log engine activity")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logOut := io.Discard
	if verbose {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := newRepl(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer r.close()

	fmt.Println("kanade " + version + " (type /help for commands)")
	r.run(ctx, os.Stdin, os.Stdout)
}

// repl holds the in-process engine and the mutable console state: the
// current character and its pending reference fields.
type repl struct {
	cfg      config.Config
	engine   *engine.Engine
	pipeline *session.Pipeline
	store    *userdata.Store
	log      *slog.Logger

	character string
	refAudio  string
	refText   string
}

func newRepl(ctx context.Context, cfg config.Config, log *slog.Logger) (*repl, error) {
	var backend synth.Synthesizer
	var err error
	switch cfg.Synth.Mode {
	case "exec":
		backend, err = synth.NewExecSynth(cfg.Synth.Command)
		if err != nil {
			return nil, fmt.Errorf("configure exec synthesizer: %w", err)
		}
	default:
		backend = synth.NewMockSynth(cfg.Audio.SampleRate)
	}

	var playback *sink.Playback
	if cfg.Playback.Enabled {
		playback = sink.NewPlayback(cfg.Audio.SampleRate, cfg.Audio.Channels, log)
	}
	cache, err := modelcache.New(cfg.Models.MaxCached, log)
	if err != nil {
		return nil, err
	}
	pipeline := session.New(cfg, synth.NewAdapter(backend, log), playback, log)
	registry := profile.NewRegistry(cache, log)

	store, err := userdata.Open(ctx, cfg.UserData, log)
	if err != nil {
		log.Warn("user data store unavailable", slog.String("error", err.Error()))
		store = nil
	}

	return &repl{
		cfg:      cfg,
		engine:   engine.New(cfg, registry, pipeline, log),
		pipeline: pipeline,
		store:    store,
		log:      log,
	}, nil
}

func (r *repl) close() {
	r.pipeline.Shutdown()
	if r.store != nil {
		r.store.Close()
	}
}

func (r *repl) run(ctx context.Context, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if cmd.kind == cmdQuit {
			return
		}
		if err := r.dispatch(ctx, out, cmd); err != nil {
			fmt.Fprintln(out, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *repl) dispatch(ctx context.Context, out io.Writer, cmd command) error {
	switch cmd.kind {
	case cmdSay:
		return r.say(ctx, out, cmd)
	case cmdLoad:
		return r.load(ctx, out, cmd.args)
	case cmdUnload:
		return r.unload(out, cmd.args)
	case cmdSpeaker:
		return r.speaker(cmd.args)
	case cmdPrompt:
		return r.prompt(cmd.args)
	case cmdList:
		for _, name := range r.engine.Characters() {
			marker := " "
			if name == r.character {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, name)
		}
		return nil
	case cmdStop:
		r.engine.Stop()
		return nil
	case cmdHelp:
		fmt.Fprintln(out, helpText)
		return nil
	case cmdQuit:
		return nil
	}
	return fmt.Errorf("unhandled command")
}

func (r *repl) load(ctx context.Context, out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: /load <name> [model_dir]")
	}
	name := args[0]

	modelDir := ""
	if len(args) > 1 {
		modelDir = args[1]
	} else if r.store != nil {
		saved, err := r.store.ModelDir(ctx, name)
		if err != nil {
			r.log.Warn("load saved model dir failed", slog.String("error", err.Error()))
		}
		modelDir = saved
	}
	if modelDir == "" {
		return fmt.Errorf("no model directory known for %s, pass one: /load %s <model_dir>", name, name)
	}

	if err := r.engine.LoadCharacter(ctx, name, modelDir); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.SetModelDir(ctx, name, modelDir); err != nil {
			r.log.Warn("save model dir failed", slog.String("error", err.Error()))
		}
	}

	r.character = name
	r.refAudio = ""
	r.refText = ""
	fmt.Fprintf(out, "loaded %s (%s)\n", name, modelDir)
	return nil
}

func (r *repl) unload(out io.Writer, args []string) error {
	name := r.character
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		return fmt.Errorf("usage: /unload <name>")
	}
	r.engine.UnloadCharacter(name)
	if name == r.character {
		r.character = ""
	}
	fmt.Fprintf(out, "unloaded %s\n", name)
	return nil
}

func (r *repl) speaker(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: /speaker <audio_path>")
	}
	if r.character == "" {
		return fmt.Errorf("no character loaded, /load one first")
	}
	r.refAudio = args[0]
	return r.applyReference()
}

func (r *repl) prompt(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: /prompt <transcript>")
	}
	if r.character == "" {
		return fmt.Errorf("no character loaded, /load one first")
	}
	r.refText = strings.Join(args, " ")
	return r.applyReference()
}

// applyReference pushes the pending reference to the engine once the audio
// path is known. The transcript alone is held back until then.
func (r *repl) applyReference() error {
	if r.refAudio == "" {
		return nil
	}
	return r.engine.SetReferenceAudio(r.character, r.refAudio, r.refText)
}

func (r *repl) say(ctx context.Context, out io.Writer, cmd command) error {
	if r.character == "" {
		return fmt.Errorf("no character loaded, /load one first")
	}

	start := time.Now()
	if _, err := r.engine.TTS(ctx, engine.Request{
		Character: r.character,
		Text:      cmd.text,
		Play:      !cmd.noPlay && r.cfg.Playback.Enabled,
		SavePath:  cmd.savePath,
	}); err != nil {
		return err
	}
	if err := r.engine.Wait(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "done in %s\n", time.Since(start).Round(time.Millisecond))
	if cmd.savePath != "" {
		fmt.Fprintf(out, "saved %s\n", cmd.savePath)
	}
	return nil
}
