package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// cacheMetrics are the read cache's prometheus collectors
type cacheMetrics struct {
	hits            prometheus.Counter
	misses          prometheus.Counter
	integrityErrors prometheus.Counter
	entries         prometheus.Gauge
}

func newCacheMetrics(reg prometheus.Registerer) cacheMetrics {
	factory := promauto.With(reg)
	return cacheMetrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmkit",
			Subsystem: "chunk_cache",
			Name:      "hits_total",
			Help:      "Chunk reads served from the validated cache",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmkit",
			Subsystem: "chunk_cache",
			Name:      "misses_total",
			Help:      "Chunk reads that went to the backing store",
		}),
		integrityErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmkit",
			Subsystem: "chunk_cache",
			Name:      "integrity_errors_total",
			Help:      "Chunks from the backing store that failed validation",
		}),
		entries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmkit",
			Subsystem: "chunk_cache",
			Name:      "entries",
			Help:      "Chunks currently held in the cache",
		}),
	}
}

// CachedStore puts an LRU of validated chunks in front of another store.
// Chunks read from the backend are validated before they are cached or
// returned, so a corrupt backend answer is never served twice.
type CachedStore struct {
	backend Store
	cache   *lru.Cache[swarm.Hash, swarm.Chunk]
	metrics cacheMetrics

	hits, misses, integrityErrors atomic.Uint64
}

// NewCachedStore wraps backend with a cache of size chunks. Metrics are
// registered with reg when it is not nil.
func NewCachedStore(backend Store, size int, reg prometheus.Registerer) (*CachedStore, error) {
	if size <= 0 {
		size = constants.DefaultCacheSize
	}

	cache, err := lru.New[swarm.Hash, swarm.Chunk](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk cache: %w", err)
	}

	return &CachedStore{
		backend: backend,
		cache:   cache,
		metrics: newCacheMetrics(reg),
	}, nil
}

// Get serves addr from the cache or from the backend after validation
func (c *CachedStore) Get(ctx context.Context, addr swarm.Hash) (swarm.Chunk, error) {
	if ch, ok := c.cache.Get(addr); ok {
		c.hits.Add(1)
		c.metrics.hits.Inc()
		return ch, nil
	}
	c.misses.Add(1)
	c.metrics.misses.Inc()

	ch, err := c.backend.Get(ctx, addr)
	if err != nil {
		return swarm.Chunk{}, err
	}

	if ch.Address() != addr {
		return swarm.Chunk{}, c.corrupt(swarm.NewIntegrityError(
			fmt.Sprintf("backend returned chunk %s", ch.Address()), &addr, nil))
	}
	if _, err := Validate(ch); err != nil {
		return swarm.Chunk{}, c.corrupt(err)
	}

	c.add(ch)
	return ch, nil
}

func (c *CachedStore) corrupt(err error) error {
	c.integrityErrors.Add(1)
	c.metrics.integrityErrors.Inc()
	return err
}

func (c *CachedStore) add(ch swarm.Chunk) {
	c.cache.Add(ch.Address(), ch)
	c.metrics.entries.Set(float64(c.cache.Len()))
}

// Put writes through to the backend and caches the chunk
func (c *CachedStore) Put(ctx context.Context, ch swarm.Chunk) error {
	if err := c.backend.Put(ctx, ch); err != nil {
		return err
	}
	c.add(ch)
	return nil
}

// Has checks the cache before the backend
func (c *CachedStore) Has(ctx context.Context, addr swarm.Hash) (bool, error) {
	if c.cache.Contains(addr) {
		return true, nil
	}
	return c.backend.Has(ctx, addr)
}

// Delete evicts addr and removes it from the backend
func (c *CachedStore) Delete(ctx context.Context, addr swarm.Hash) error {
	c.cache.Remove(addr)
	c.metrics.entries.Set(float64(c.cache.Len()))
	return c.backend.Delete(ctx, addr)
}

// Stats returns the backend counters with cache counters filled in
func (c *CachedStore) Stats() Stats {
	stats := c.backend.Stats()
	stats.CacheHits = c.hits.Load()
	stats.CacheMisses = c.misses.Load()
	stats.IntegrityErrors += c.integrityErrors.Load()
	return stats
}

// Len returns the number of cached chunks
func (c *CachedStore) Len() int {
	return c.cache.Len()
}

// Close purges the cache and closes the backend
func (c *CachedStore) Close() error {
	c.cache.Purge()
	c.metrics.entries.Set(0)
	return c.backend.Close()
}
