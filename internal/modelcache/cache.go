// Package modelcache keeps a bounded number of resolved voice models in
// memory, evicting the least recently used one when capacity is exceeded. It
// satisfies the profile.Resolver contract; the session pipeline never talks
// to it directly.
package modelcache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kanade-ai/kanade-tts/internal/profile"
)

// Handle is a resolved model directory. Loading the actual network weights is
// the inference backend's concern; the cache tracks identity and lifetime.
type Handle struct {
	name     string
	modelDir string

	mu     sync.Mutex
	closed bool
}

func (h *Handle) Name() string     { return h.name }
func (h *Handle) ModelDir() string { return h.modelDir }

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Cache is an LRU model cache keyed by profile name.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, *Handle]
	log *slog.Logger
}

func New(maxCached int, log *slog.Logger) (*Cache, error) {
	c := &Cache{log: log.With(slog.String("component", "model-cache"))}
	inner, err := lru.NewWithEvict[string, *Handle](maxCached, func(name string, handle *Handle) {
		_ = handle.Close()
		c.log.Info("model evicted", slog.String("profile", name))
	})
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}
	c.lru = inner
	return c, nil
}

// Resolve returns the cached handle for name, loading it on a miss. A handle
// resolved for a different model directory is discarded and reloaded.
func (c *Cache) Resolve(ctx context.Context, name, modelDir string) (profile.ModelHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if handle, ok := c.lru.Get(name); ok && handle.modelDir == modelDir && !handle.Closed() {
		return handle, nil
	}

	info, err := os.Stat(modelDir)
	if err != nil {
		return nil, fmt.Errorf("model dir %s: %w", modelDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model path %s is not a directory", modelDir)
	}

	handle := &Handle{name: name, modelDir: modelDir}
	c.lru.Add(name, handle)
	c.log.Info("model loaded", slog.String("profile", name), slog.String("model_dir", modelDir))
	return handle, nil
}

// Evict removes name from the cache, closing its handle. Unknown names are a
// no-op.
func (c *Cache) Evict(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(name)
}

// Len returns the number of cached models.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

var _ profile.Resolver = (*Cache)(nil)
