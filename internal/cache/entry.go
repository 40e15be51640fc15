package cache

import (
	"time"
)

// Entry is one stored (timestamp, payload) pair. It is the unit persisted
// in a single cache file.
type Entry struct {
	// StoredAt is the Unix time, in seconds, at which the entry was written.
	StoredAt int64

	// Payload is the lookup result, kept opaque.
	Payload []byte
}

// NewEntry creates an entry stamped with now.
func NewEntry(now time.Time, payload []byte) Entry {
	return Entry{
		StoredAt: now.Unix(),
		Payload:  payload,
	}
}

// StoredTime returns StoredAt as a time.Time.
func (e Entry) StoredTime() time.Time {
	return time.Unix(e.StoredAt, 0)
}

// AgeSeconds returns how many whole seconds have passed between the write
// and now. It may be negative if the clock moved backwards.
func (e Entry) AgeSeconds(now time.Time) int64 {
	return now.Unix() - e.StoredAt
}

// IsFresh reports whether the entry may still be served under the given TTL.
// An entry is fresh while its age is strictly below the TTL, so a TTL of
// zero never yields a fresh entry.
func (e Entry) IsFresh(now time.Time, ttlSeconds int) bool {
	return e.AgeSeconds(now) < int64(ttlSeconds)
}

// IsExpired reports whether the sweeper should remove the entry. An entry
// expires once its age is strictly greater than the TTL.
func (e Entry) IsExpired(now time.Time, ttlSeconds int) bool {
	return isExpired(e.StoredAt, now, ttlSeconds)
}

func isExpired(storedAt int64, now time.Time, ttlSeconds int) bool {
	return now.Unix()-storedAt > int64(ttlSeconds)
}
