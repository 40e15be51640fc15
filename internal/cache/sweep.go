package cache

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	// Scanned is the number of entries examined.
	Scanned int

	// Removed counts entries deleted, expired and corrupt alike.
	Removed int

	// Corrupt counts entries that could not be decoded. They are removed.
	Corrupt int

	// Failed counts entries that could not be read or deleted.
	Failed int
}

// Errors returns how many entries the sweep should report to the error
// counter.
func (r SweepResult) Errors() int {
	return r.Corrupt + r.Failed
}

// Sweeper removes entries older than the TTL.
type Sweeper struct {
	store      *FileStore
	ttlSeconds int
	logger     zerolog.Logger
}

// NewSweeper creates a sweeper over store.
func NewSweeper(store *FileStore, ttlSeconds int, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		ttlSeconds: ttlSeconds,
		logger:     logger,
	}
}

// Sweep scans every entry and removes those whose age exceeds the TTL, as
// well as those whose header cannot be decoded. Only entry headers are
// read, so the cost grows with the number of entries, not their size. The returned error is only set when
// the directory itself cannot be listed; per-entry problems are counted in
// the result.
func (w *Sweeper) Sweep(now time.Time) (SweepResult, error) {
	var result SweepResult

	for info, err := range w.store.Entries() {
		if err != nil {
			if errors.Is(err, errDirectoryUnreadable) {
				return result, err
			}
			result.Failed++
			w.logger.Warn().Err(err).Str("operation", "sweep").Msg("skipping unreadable cache entry")
			continue
		}
		result.Scanned++

		storedAt, readErr := w.store.ReadStoredAt(info.Key)
		switch {
		case errors.Is(readErr, ErrNotFound):
			continue // removed concurrently
		case errors.Is(readErr, ErrCorruptEntry):
			result.Corrupt++
			w.logger.Warn().Err(readErr).Str("operation", "sweep").Str("key", info.Key).
				Msg("removing corrupt cache entry")
		case readErr != nil:
			result.Failed++
			w.logger.Warn().Err(readErr).Str("operation", "sweep").Str("key", info.Key).
				Msg("failed to read cache entry")
			continue
		case !isExpired(storedAt, now, w.ttlSeconds):
			continue
		}

		if delErr := w.store.Delete(info.Key); delErr != nil {
			result.Failed++
			w.logger.Warn().Err(delErr).Str("operation", "sweep").Str("key", info.Key).
				Msg("failed to remove cache entry")
			continue
		}
		result.Removed++
		w.logger.Debug().Str("operation", "sweep").Str("key", info.Key).Msg("removed expired cache entry")
	}

	return result, nil
}
