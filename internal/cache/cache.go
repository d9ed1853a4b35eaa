// Package cache implements the TTL+LRU result cache with crash-tolerant
// snapshot persistence. It is used both by the orchestrating service and by
// sandboxed scripts through their cache binding.
package cache

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/scenicrun/scenic/internal/logging"
	"github.com/scenicrun/scenic/internal/monitoring"
)

// Fallback computes a value for a missing key. It is invoked exactly once
// per key under concurrent contention.
type Fallback func() (any, error)

// Config defines cache behavior.
type Config struct {
	DefaultTTL    time.Duration
	MaxSize       int
	SweepInterval time.Duration
	// Store enables snapshot persistence when non-nil.
	Store *Store
}

// DefaultConfig returns production cache settings without persistence.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:    time.Hour,
		MaxSize:       10000,
		SweepInterval: time.Hour,
	}
}

// Cache is a concurrent keyed cache with TTL expiry, LRU eviction over
// capacity, and optional async snapshot persistence.
type Cache struct {
	cfg     Config
	log     *logging.Logger
	metrics *monitoring.Metrics

	entries sync.Map // string -> *entry
	group   singleflight.Group

	// sweeping is a mutual-exclusion flag, not a structural lock: reads and
	// writes proceed concurrently with a sweep, and a concurrent sweep is
	// skipped rather than queued.
	sweeping atomic.Bool

	persistCh chan struct{}
	// flushMu serializes snapshot writers: the persist worker and the final
	// Close flush must not interleave truncate+write on the same rotation file.
	flushMu   sync.Mutex
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a cache and starts its background sweep and, when persistence
// is configured, its async snapshot worker.
func New(cfg Config, log *logging.Logger) *Cache {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}

	c := &Cache{
		cfg:       cfg,
		log:       log,
		persistCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}
	if cfg.Store != nil {
		c.wg.Add(1)
		go c.persistLoop()
	}
	return c
}

// WithMetrics attaches a metrics collector.
func (c *Cache) WithMetrics(m *monitoring.Metrics) *Cache {
	c.metrics = m
	return c
}

// Get returns the cached value for key, refreshing its last access time.
// On a miss it consults durable storage (newest snapshot first) and
// otherwise invokes fallback, caching any non-empty result. Concurrent
// callers racing on the same missing key observe one fallback invocation
// and the same result.
func (c *Cache) Get(key string, fallback Fallback) (any, error) {
	now := time.Now()
	if v, ok := c.entries.Load(key); ok {
		e := v.(*entry)
		if !e.expired(now) {
			e.touch(now)
			if c.metrics != nil {
				c.metrics.CacheHits.Inc()
			}
			return e.value, nil
		}
		c.entries.Delete(key)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A racing caller may have populated the slot while we waited.
		now := time.Now()
		if v, ok := c.entries.Load(key); ok {
			e := v.(*entry)
			if !e.expired(now) {
				e.touch(now)
				return e.value, nil
			}
			c.entries.Delete(key)
		}

		// Only the caller that actually computes counts as a miss; racing
		// callers served by this computation do not.
		if c.metrics != nil {
			c.metrics.CacheMisses.Inc()
		}

		if c.cfg.Store != nil {
			if pe, ok := c.cfg.Store.Lookup(key, now); ok {
				e := newEntry(pe.Value, time.Duration(pe.TTL)*time.Millisecond, now)
				c.entries.Store(key, e)
				return e.value, nil
			}
		}

		val, err := fallback()
		if err != nil {
			return nil, err
		}
		if isEmpty(val) {
			// Returned to the caller but never cached.
			return val, nil
		}

		c.entries.Store(key, newEntry(val, c.cfg.DefaultTTL, time.Now()))
		c.schedulePersist()
		return val, nil
	})
	return v, err
}

// Set stores value under key. Empty values are rejected as a logged no-op.
// An optional ttlOverride replaces the default TTL for this entry.
func (c *Cache) Set(key string, value any, ttlOverride ...time.Duration) {
	if isEmpty(value) {
		c.log.Debug("rejecting empty value for cache set", zap.String("key", key))
		return
	}

	ttl := c.cfg.DefaultTTL
	if len(ttlOverride) > 0 && ttlOverride[0] > 0 {
		ttl = ttlOverride[0]
	}

	c.entries.Store(key, newEntry(value, ttl, time.Now()))
	c.schedulePersist()
}

// Invalidate removes key from the cache.
func (c *Cache) Invalidate(key string) {
	c.entries.Delete(key)
	c.schedulePersist()
}

// InvalidateMatching removes every key matching pattern, where '*' matches
// any substring. It returns the number of removed entries.
func (c *Cache) InvalidateMatching(pattern string) int {
	removed := 0
	c.entries.Range(func(k, _ any) bool {
		if globMatch(pattern, k.(string)) {
			c.entries.Delete(k)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.schedulePersist()
	}
	return removed
}

// Len returns the number of physically present entries.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep removes expired entries and, when over capacity, evicts the oldest
// entries by last access down to MaxSize. A sweep racing another sweep is
// skipped, not queued.
func (c *Cache) Sweep() {
	if !c.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer c.sweeping.Store(false)

	now := time.Now()
	removed := 0

	type keyed struct {
		key string
		e   *entry
	}
	var live []keyed

	c.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		if e.expired(now) {
			c.entries.Delete(k)
			removed++
		} else {
			live = append(live, keyed{key: k.(string), e: e})
		}
		return true
	})

	if c.cfg.MaxSize > 0 && len(live) > c.cfg.MaxSize {
		sort.Slice(live, func(i, j int) bool {
			return live[i].e.lastAccess.Load() < live[j].e.lastAccess.Load()
		})
		for _, victim := range live[:len(live)-c.cfg.MaxSize] {
			c.entries.Delete(victim.key)
			removed++
		}
	}

	if removed > 0 {
		c.log.Debug("cache sweep finished", zap.Int("removed", removed))
		if c.metrics != nil {
			c.metrics.CacheEvictions.Add(float64(removed))
		}
		c.schedulePersist()
	}
}

// Close stops the sweep, performs one final synchronous flush, then stops
// the persistence worker with a bounded wait.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.cfg.Store != nil {
			c.flush()
		}
		if !waitTimeout(&c.wg, 5*time.Second) {
			c.log.Warn("cache workers did not stop in time, abandoning")
		}
	})
	return nil
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) persistLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.persistCh:
			c.flush()
		case <-c.done:
			return
		}
	}
}

// schedulePersist coalesces persistence requests; a write already pending
// covers this change.
func (c *Cache) schedulePersist() {
	if c.cfg.Store == nil {
		return
	}
	select {
	case c.persistCh <- struct{}{}:
	default:
	}
}

// flush snapshots the full map to durable storage. Failures are logged and
// swallowed; the in-memory state is already consistent.
func (c *Cache) flush() {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	snapshot := make(map[string]persistedEntry)
	c.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		snapshot[k.(string)] = persistedEntry{
			Value:          e.value,
			LastAccessTime: e.lastAccessTime().UnixMilli(),
			TTL:            e.ttl.Milliseconds(),
		}
		return true
	})

	n, err := c.cfg.Store.Write(snapshot)
	if err != nil {
		c.log.Warn("cache snapshot write failed", zap.Error(err))
		return
	}
	if c.metrics != nil {
		c.metrics.SnapshotWrites.Inc()
		c.metrics.SnapshotBytes.Set(float64(n))
	}
}

// globMatch matches s against pattern, where each '*' matches any substring.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	settled := make(chan struct{})
	go func() {
		wg.Wait()
		close(settled)
	}()
	select {
	case <-settled:
		return true
	case <-time.After(d):
		return false
	}
}
