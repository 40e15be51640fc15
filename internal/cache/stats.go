package cache

import "sync/atomic"

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Hits              int64 `json:"hits"`
	Misses            int64 `json:"misses"`
	Errors            int64 `json:"errors"`
	TotalSizeMB       int64 `json:"total_size_mb"`
	TotalBytesWritten int64 `json:"total_bytes_written"`
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s StatsSnapshot) HitRate() float64 {
	lookups := s.Hits + s.Misses
	if lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(lookups)
}

// Stats accumulates lifetime counters for one cache instance. All counters
// only ever increase; in particular the byte counter is not decremented on
// eviction and must not be used to make eviction decisions.
type Stats struct {
	hits         atomic.Int64
	misses       atomic.Int64
	errors       atomic.Int64
	bytesWritten atomic.Int64
}

// Hit records a cache hit.
func (s *Stats) Hit() { s.hits.Add(1) }

// Miss records a cache miss.
func (s *Stats) Miss() { s.misses.Add(1) }

// Error records a cache-layer fault.
func (s *Stats) Error() { s.errors.Add(1) }

// AddErrors records n cache-layer faults at once.
func (s *Stats) AddErrors(n int) {
	if n > 0 {
		s.errors.Add(int64(n))
	}
}

// AddBytes records a successful write of n bytes.
func (s *Stats) AddBytes(n int64) {
	if n > 0 {
		s.bytesWritten.Add(n)
	}
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	written := s.bytesWritten.Load()
	return StatsSnapshot{
		Hits:              s.hits.Load(),
		Misses:            s.misses.Load(),
		Errors:            s.errors.Load(),
		TotalSizeMB:       written / bytesPerMB,
		TotalBytesWritten: written,
	}
}
