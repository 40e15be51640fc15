package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/scoutcache/internal/logging"
)

// lockShards is the number of mutexes serializing same-key lookups.
const lockShards = 64

// LookupFunc produces a fresh payload for q. It is called only on a miss;
// its errors are returned to the caller unchanged and never cached.
type LookupFunc func(ctx context.Context, q Query) ([]byte, error)

// Result is the outcome of one lookup through the cache.
type Result struct {
	Key      string
	Payload  []byte
	Hit      bool
	StoredAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used by the cache and its components.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
		c.loggerSet = true
	}
}

// Cache is the entry point of the package: it sweeps expired entries,
// serves fresh ones, delegates misses to the lookup function, stores the
// results and keeps the directory under its size budget.
//
// Cache-layer faults never fail a lookup. They are logged and counted in
// the error counter.
type Cache struct {
	cfg      Config
	store    *FileStore
	sweeper  *Sweeper
	enforcer *SizeEnforcer
	stats    *Stats
	lookup   LookupFunc
	locks    *keyLocks

	now       func() time.Time
	logger    zerolog.Logger
	loggerSet bool
}

// New validates cfg, opens the cache directory and returns a ready cache.
// Errors here are fatal configuration problems wrapping ErrConfigInvalid.
func New(ctx context.Context, cfg Config, lookup LookupFunc, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lookup == nil {
		return nil, fmt.Errorf("%w: lookup function cannot be nil", ErrConfigInvalid)
	}

	c := &Cache{
		cfg:    cfg,
		stats:  &Stats{},
		lookup: lookup,
		locks:  &keyLocks{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.loggerSet {
		c.logger = logging.ComponentLogger(*logging.FromContext(ctx), "cache")
	}

	store, err := OpenFileStore(c.logger.WithContext(ctx), cfg.Directory, NewCodec(cfg.Compression))
	if err != nil {
		return nil, err
	}
	c.store = store
	c.sweeper = NewSweeper(store, cfg.TTLSeconds, c.logger)
	c.enforcer = NewSizeEnforcer(store, c.logger)

	c.logger.Debug().
		Str("directory", cfg.Directory).
		Dur("ttl", cfg.TTL()).
		Int64("max_size_bytes", cfg.MaxSizeBytes).
		Bool("compression", cfg.Compression).
		Msg("cache opened")

	return c, nil
}

// Get returns the payload for (query, scope, limit), from the cache when a
// fresh entry exists and from the lookup function otherwise.
func (c *Cache) Get(ctx context.Context, query, scope string, limit int) ([]byte, error) {
	res, err := c.Lookup(ctx, Query{Text: query, Scope: scope, Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Payload, nil
}

// Lookup is Get with the hit/miss outcome reported.
func (c *Cache) Lookup(ctx context.Context, q Query) (Result, error) {
	if c == nil || c.store == nil || c.lookup == nil {
		return Result{}, ErrNotInitialized
	}

	_, _ = c.sweep(c.now())

	key := q.Key()
	unlock := c.locks.lock(key)
	defer unlock()

	logger := c.keyLogger(ctx, key)

	now := c.now()
	entry, err := c.store.Read(key)
	switch {
	case err == nil && entry.IsFresh(now, c.cfg.TTLSeconds):
		c.stats.Hit()
		logger.Debug().Msg("cache hit")
		return Result{Key: key, Payload: entry.Payload, Hit: true, StoredAt: entry.StoredTime()}, nil
	case err == nil:
		logger.Debug().Int64("age_seconds", entry.AgeSeconds(now)).Msg("cache miss (expired)")
	case errors.Is(err, ErrNotFound):
		logger.Debug().Msg("cache miss (not found)")
	default:
		c.stats.Error()
		logger.Warn().Err(err).Msg("cache read error")
	}
	c.stats.Miss()

	payload, err := c.lookup(ctx, q)
	if err != nil {
		return Result{Key: key}, err
	}

	storedAt := c.now()
	c.persist(logger, key, NewEntry(storedAt, payload))

	return Result{Key: key, Payload: payload, StoredAt: time.Unix(storedAt.Unix(), 0)}, nil
}

// Invalidate removes the entry for (query, scope, limit), if any.
func (c *Cache) Invalidate(ctx context.Context, q Query) error {
	if c == nil || c.store == nil {
		return ErrNotInitialized
	}

	key := q.Key()
	unlock := c.locks.lock(key)
	defer unlock()

	logger := c.keyLogger(ctx, key)
	if err := c.store.Delete(key); err != nil {
		c.stats.Error()
		logger.Warn().Err(err).Msg("cache delete error")
		return err
	}
	logger.Debug().Msg("cache entry invalidated")
	return nil
}

// keyLogger returns the cache logger tagged with key and the trace id
// carried by ctx, if any.
func (c *Cache) keyLogger(ctx context.Context, key string) zerolog.Logger {
	logger := c.logger.With().Str("key", key).Logger()
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		logger = logger.With().Str(logging.TraceIDField, traceID).Logger()
	}
	return logger
}

// Sweep runs an expiry sweep immediately.
func (c *Cache) Sweep() (SweepResult, error) {
	if c == nil || c.store == nil {
		return SweepResult{}, ErrNotInitialized
	}
	return c.sweep(c.now())
}

// Enforce runs size enforcement immediately against maxBytes. A
// non-positive maxBytes uses the configured budget.
func (c *Cache) Enforce(maxBytes int64) (EnforceResult, error) {
	if c == nil || c.store == nil {
		return EnforceResult{}, ErrNotInitialized
	}
	if maxBytes <= 0 {
		maxBytes = c.cfg.MaxSizeBytes
	}
	return c.enforce(c.logger, maxBytes, "")
}

// Stats returns a snapshot of the lifetime counters.
func (c *Cache) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// Config returns the configuration the cache was built with.
func (c *Cache) Config() Config {
	return c.cfg
}

// Store returns the underlying file store.
func (c *Cache) Store() *FileStore {
	return c.store
}

func (c *Cache) sweep(now time.Time) (SweepResult, error) {
	res, err := c.sweeper.Sweep(now)
	c.stats.AddErrors(res.Errors())
	if err != nil {
		c.stats.Error()
		c.logger.Warn().Err(err).Str("operation", "sweep").Msg("expiry sweep failed")
		return res, err
	}
	if res.Removed > 0 {
		c.logger.Debug().
			Str("operation", "sweep").
			Int("scanned", res.Scanned).
			Int("removed", res.Removed).
			Int("corrupt", res.Corrupt).
			Msg("expired cache entries removed")
	}
	return res, nil
}

// persist writes a fresh entry and enforces the size budget. Failures are
// counted and logged, never returned.
func (c *Cache) persist(logger zerolog.Logger, key string, entry Entry) {
	size, err := c.store.Write(key, entry)
	if err != nil {
		c.stats.Error()
		logger.Warn().Err(err).Msg("cache write error")
		return
	}
	c.stats.AddBytes(size)
	logger.Debug().Int64("size", size).Msg("saved to cache")

	_, _ = c.enforce(logger, c.cfg.MaxSizeBytes, key)
}

func (c *Cache) enforce(logger zerolog.Logger, maxBytes int64, keep string) (EnforceResult, error) {
	res, err := c.enforcer.EnforceKeeping(maxBytes, keep)
	c.stats.AddErrors(res.Failed)
	if err != nil {
		c.stats.Error()
		logger.Warn().Err(err).Str("operation", "enforce").Msg("size enforcement failed")
		return res, err
	}
	if res.Removed > 0 {
		logger.Info().
			Int("removed", res.Removed).
			Int64("freed_bytes", res.FreedBytes).
			Int64("remaining_bytes", res.RemainingBytes).
			Msg("cache size limit enforced")
	}
	return res, nil
}

// keyLocks serializes lookups for the same key within one process.
type keyLocks struct {
	shards [lockShards]sync.Mutex
}

func (l *keyLocks) lock(key string) func() {
	mu := &l.shards[crc32.ChecksumIEEE([]byte(key))%lockShards]
	mu.Lock()
	return mu.Unlock
}
