// Package profile maintains the registry of named voice profiles: each maps a
// character name to a model location and the reference audio used for voice
// cloning. Model lifecycle is delegated to a Resolver collaborator.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrProfileNotFound        = errors.New("voice profile not found")
	ErrReferenceNotSet        = errors.New("reference audio not set for profile")
	ErrUnsupportedAudioFormat = errors.New("unsupported reference audio format")
)

// SupportedAudioExts lists accepted reference audio file extensions.
var SupportedAudioExts = map[string]bool{
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".aiff": true,
	".aif":  true,
}

// ModelHandle is an opaque reference to a loaded model, produced by the
// Resolver. The pipeline never inspects it.
type ModelHandle interface {
	Name() string
	Close() error
}

// Resolver loads and evicts models on behalf of the registry. Implementations
// own caching policy.
type Resolver interface {
	Resolve(ctx context.Context, name, modelDir string) (ModelHandle, error)
	Evict(name string)
}

// Reference describes the audio prompt used for voice cloning.
type Reference struct {
	AudioPath  string
	Transcript string
}

// Profile is one registered character voice.
type Profile struct {
	Name      string
	ModelDir  string
	Reference Reference
}

// Configured reports whether the profile can be synthesized against: both the
// model location and the reference audio must be set.
func (p Profile) Configured() bool {
	return p.ModelDir != "" && p.Reference.AudioPath != ""
}

// Registry is a concurrency-safe map of profiles. Control-surface calls
// mutate it; the inference worker reads it.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	resolver Resolver
	log      *slog.Logger
}

func NewRegistry(resolver Resolver, log *slog.Logger) *Registry {
	r := &Registry{
		profiles: make(map[string]Profile),
		resolver: resolver,
		log:      log.With(slog.String("component", "profile-registry")),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return r
}

// SetProfile registers or overwrites the model location for name. Has(name)
// becomes true only after this returns.
func (r *Registry) SetProfile(name, modelDir string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.profiles[name]
	p.Name = name
	p.ModelDir = modelDir
	r.profiles[name] = p
	r.log.Info("profile registered", slog.String("profile", name), slog.String("model_dir", modelDir))
}

// SetReference validates and stores the reference audio for name. An
// unsupported extension leaves any prior reference unchanged and returns
// ErrUnsupportedAudioFormat; callers treat this as non-fatal.
func (r *Registry) SetReference(name, audioPath, transcript string) error {
	ext := strings.ToLower(filepath.Ext(audioPath))
	if !SupportedAudioExts[ext] {
		r.log.Error("unsupported reference audio format",
			slog.String("profile", name),
			slog.String("extension", ext))
		return fmt.Errorf("%w: %s", ErrUnsupportedAudioFormat, ext)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.profiles[name]
	p.Name = name
	p.Reference = Reference{AudioPath: audioPath, Transcript: transcript}
	r.profiles[name] = p
	r.log.Info("reference audio set", slog.String("profile", name), slog.String("audio_path", audioPath))
	return nil
}

// Resolve returns the profile for name or ErrProfileNotFound.
func (r *Registry) Resolve(name string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return p, nil
}

// ResolveModel loads the model handle for name through the resolver.
func (r *Registry) ResolveModel(ctx context.Context, name string) (ModelHandle, error) {
	p, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if p.ModelDir == "" {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return r.resolver.Resolve(ctx, name, p.ModelDir)
}

// Remove unregisters name and evicts its model. Removing an unknown name is a
// no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	_, existed := r.profiles[name]
	delete(r.profiles, name)
	r.mu.Unlock()

	if existed {
		r.resolver.Evict(name)
		r.log.Info("profile removed", slog.String("profile", name))
	}
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.profiles[name]
	return ok
}

// Names returns registered profile names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) count() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.profiles))
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("kanade/profile")
	gauge, err := meter.Int64ObservableGauge("kanade.profiles.registered",
		metric.WithDescription("Number of registered voice profiles"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, r.count())
		return nil
	}, gauge)
	return err
}
