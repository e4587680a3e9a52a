package song

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gcache "github.com/patrickmn/go-cache"

	"github.com/sydlexius/anisongdb/internal/event"
)

const corpusKey = "corpus"

// Loader produces a fresh corpus, normally Service.LoadCorpus.
type Loader func(ctx context.Context) (*Corpus, error)

// Cache keeps the loaded corpus as a shared read-only value until it is
// invalidated, refreshed or, with a non-zero TTL, expires.
type Cache struct {
	store    *gcache.Cache
	load     Loader
	ttl      time.Duration
	loadMu   sync.Mutex
	eventBus *event.Bus
	logger   *slog.Logger
}

// NewCache creates a corpus cache. A ttl of zero keeps the corpus until it
// is invalidated.
func NewCache(load Loader, ttl time.Duration, bus *event.Bus, logger *slog.Logger) *Cache {
	exp := gcache.NoExpiration
	if ttl > 0 {
		exp = ttl
	}
	return &Cache{
		store:    gcache.New(exp, time.Minute),
		load:     load,
		ttl:      exp,
		eventBus: bus,
		logger:   logger.With("component", "corpus-cache"),
	}
}

// Get returns the cached corpus, loading it on first use. Concurrent
// callers share a single load.
func (c *Cache) Get(ctx context.Context) (*Corpus, error) {
	if v, ok := c.store.Get(corpusKey); ok {
		return v.(*Corpus), nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if v, ok := c.store.Get(corpusKey); ok {
		return v.(*Corpus), nil
	}
	return c.reload(ctx)
}

// Refresh loads a new corpus and replaces the cached one. On failure the
// previous corpus stays cached.
func (c *Cache) Refresh(ctx context.Context) (*Corpus, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	return c.reload(ctx)
}

// Invalidate drops the cached corpus. The next Get loads it again.
func (c *Cache) Invalidate() {
	c.store.Delete(corpusKey)
	c.logger.Debug("corpus invalidated")
}

// Put seeds the cache with an already loaded corpus.
func (c *Cache) Put(corpus *Corpus) {
	c.store.Set(corpusKey, corpus, c.ttl)
}

// Peek returns the cached corpus without loading.
func (c *Cache) Peek() (*Corpus, bool) {
	v, ok := c.store.Get(corpusKey)
	if !ok {
		return nil, false
	}
	return v.(*Corpus), true
}

// InvalidateOn drops the cached corpus whenever an event of type t is
// published on the bus.
func (c *Cache) InvalidateOn(bus *event.Bus, t event.Type) {
	bus.Subscribe(t, func(event.Event) { c.Invalidate() })
}

func (c *Cache) reload(ctx context.Context) (*Corpus, error) {
	start := time.Now()
	corpus, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	c.store.Set(corpusKey, corpus, c.ttl)
	c.logger.Info("corpus loaded", "songs", corpus.Len(), "duration", time.Since(start))
	c.eventBus.Publish(event.Event{
		Type: event.CorpusReloaded,
		Data: map[string]any{"songs": corpus.Len()},
	})
	return corpus, nil
}

// ExampleAnime answers from the cached corpus without loading it. It
// returns nil while no corpus is cached.
func (c *Cache) ExampleAnime(artistID int64, limit int) []string {
	corpus, ok := c.Peek()
	if !ok {
		return nil
	}
	return corpus.ExampleAnime(artistID, limit)
}
