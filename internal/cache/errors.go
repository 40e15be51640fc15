package cache

import "errors"

// Common cache errors.
var (
	// ErrNotFound means no entry exists for the key. It is the normal miss path.
	ErrNotFound = errors.New("cache entry not found")

	// ErrCorruptEntry means an entry file exists but cannot be decoded.
	ErrCorruptEntry = errors.New("cache entry corrupt")

	// ErrConfigInvalid is returned at startup for unusable configuration.
	ErrConfigInvalid = errors.New("invalid cache configuration")

	// ErrNotInitialized is returned by Get on a cache that was not built with New.
	ErrNotInitialized = errors.New("cache is not initialized")

	// ErrInvalidKey is returned for empty cache keys.
	ErrInvalidKey = errors.New("cache key cannot be empty")
)
