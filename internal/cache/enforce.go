package cache

import (
	"errors"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// EnforceResult summarizes one size enforcement pass.
type EnforceResult struct {
	// Removed is the number of entries deleted.
	Removed int

	// FreedBytes is the on-disk size of the deleted entries.
	FreedBytes int64

	// RemainingBytes is the total size left after the pass.
	RemainingBytes int64

	// Failed counts entries that could not be deleted.
	Failed int
}

// SizeEnforcer keeps the store under a byte budget by deleting the entries
// with the oldest modification time first. Reads never touch modification
// times, so this is first-in-first-out by write time, not LRU.
type SizeEnforcer struct {
	store  *FileStore
	logger zerolog.Logger
}

// NewSizeEnforcer creates an enforcer over store.
func NewSizeEnforcer(store *FileStore, logger zerolog.Logger) *SizeEnforcer {
	return &SizeEnforcer{
		store:  store,
		logger: logger,
	}
}

// Enforce deletes entries until the live on-disk total is at or below
// maxBytes, or no entries are left. Sizes always come from a fresh
// directory scan.
func (e *SizeEnforcer) Enforce(maxBytes int64) (EnforceResult, error) {
	return e.EnforceKeeping(maxBytes, "")
}

// EnforceKeeping is Enforce with keep evicted last, after every other
// entry, regardless of its modification time. The cache passes the key it
// just wrote so that coarse timestamps cannot evict it ahead of older
// entries.
func (e *SizeEnforcer) EnforceKeeping(maxBytes int64, keep string) (EnforceResult, error) {
	var result EnforceResult

	var entries []EntryInfo
	var total int64
	for info, err := range e.store.Entries() {
		if err != nil {
			if errors.Is(err, errDirectoryUnreadable) {
				return result, err
			}
			result.Failed++
			continue
		}
		entries = append(entries, info)
		total += info.Size
	}

	result.RemainingBytes = total
	if total <= maxBytes {
		return result, nil
	}

	slices.SortFunc(entries, func(a, b EntryInfo) int {
		if keep != "" && (a.Key == keep) != (b.Key == keep) {
			if a.Key == keep {
				return 1
			}
			return -1
		}
		if c := a.ModTime.Compare(b.ModTime); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})

	for _, info := range entries {
		if total <= maxBytes {
			break
		}
		if err := e.store.Delete(info.Key); err != nil {
			result.Failed++
			e.logger.Warn().Err(err).Str("operation", "enforce").Str("key", info.Key).
				Msg("failed to evict cache entry")
			continue
		}
		total -= info.Size
		result.Removed++
		result.FreedBytes += info.Size
		e.logger.Debug().Str("operation", "enforce").Str("key", info.Key).Int64("size", info.Size).
			Msg("evicted oldest cache entry to enforce size limit")
	}

	result.RemainingBytes = total
	return result, nil
}
