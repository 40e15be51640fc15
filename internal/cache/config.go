package cache

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration constants and defaults.
const (
	// DefaultDirectory is the cache directory used when none is configured.
	DefaultDirectory = ".mcp_cache"

	// DefaultTTLSeconds is the default cache TTL (1 hour).
	DefaultTTLSeconds = 3600

	// DefaultMaxSizeMB is the default cache budget in megabytes.
	DefaultMaxSizeMB = 100

	// DefaultCompression is the default compression setting.
	DefaultCompression = true

	// bytesPerMB converts the configured megabyte budget to bytes.
	bytesPerMB = 1024 * 1024

	// minutesPerHour is used for duration formatting calculations.
	minutesPerHour = 60

	// hoursPerDay is used for duration formatting calculations.
	hoursPerDay = 24

	// EnvCacheDir is the environment variable for the cache directory.
	EnvCacheDir = "MCP_CACHE_DIR"

	// EnvTTLSeconds is the environment variable for the TTL in seconds.
	EnvTTLSeconds = "MCP_TTL"

	// EnvMaxSizeMB is the environment variable for the size budget in MB.
	EnvMaxSizeMB = "MCP_MAX_SIZE_MB"

	// EnvCompression is the environment variable toggling compression.
	EnvCompression = "MCP_COMPRESSION"
)

// Config holds the settings of one cache instance. It is built once at
// startup and never mutated afterwards.
type Config struct {
	// Directory holds the cache files. It is created if absent.
	Directory string

	// TTLSeconds is the maximum entry age. Zero means every entry is
	// already stale when read; negative values are rejected.
	TTLSeconds int

	// MaxSizeBytes is the on-disk budget enforced after every write.
	MaxSizeBytes int64

	// Compression enables gzip for newly written entries.
	Compression bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Directory:    DefaultDirectory,
		TTLSeconds:   DefaultTTLSeconds,
		MaxSizeBytes: MBToBytes(DefaultMaxSizeMB),
		Compression:  DefaultCompression,
	}
}

// MBToBytes converts a megabyte budget to bytes.
func MBToBytes(mb int) int64 {
	return int64(mb) * bytesPerMB
}

// TTL returns the TTL as a time.Duration.
func (c Config) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Validate checks the static constraints of the configuration. Directory
// writability is checked when the store is opened.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Directory) == "" {
		return fmt.Errorf("%w: directory cannot be empty", ErrConfigInvalid)
	}
	if c.TTLSeconds < 0 {
		return fmt.Errorf("%w: ttl must be >= 0, got %d", ErrConfigInvalid, c.TTLSeconds)
	}
	if c.MaxSizeBytes <= 0 {
		return fmt.Errorf("%w: max size must be positive, got %d bytes", ErrConfigInvalid, c.MaxSizeBytes)
	}
	return nil
}

// GetCacheDirFromEnv reads the cache directory from the environment.
// Returns an empty string if not set (caller should use default).
func GetCacheDirFromEnv() string {
	return os.Getenv(EnvCacheDir)
}

// GetTTLFromEnv reads the TTL from the environment. The second return value
// is false when the variable is unset or not a non-negative integer.
func GetTTLFromEnv() (int, bool) {
	envVal := os.Getenv(EnvTTLSeconds)
	if envVal == "" {
		return 0, false
	}

	ttl, err := strconv.Atoi(envVal)
	if err != nil || ttl < 0 {
		return 0, false
	}

	return ttl, true
}

// GetMaxSizeFromEnv reads the size budget in MB from the environment.
// The second return value is false when unset or not a positive integer.
func GetMaxSizeFromEnv() (int, bool) {
	envVal := os.Getenv(EnvMaxSizeMB)
	if envVal == "" {
		return 0, false
	}

	maxSize, err := strconv.Atoi(envVal)
	if err != nil || maxSize <= 0 {
		return 0, false
	}

	return maxSize, true
}

// GetCompressionFromEnv reads the compression flag from the environment.
// Only a case-insensitive "true" enables compression; any other non-empty
// value disables it.
func GetCompressionFromEnv() (bool, bool) {
	envVal := os.Getenv(EnvCompression)
	if envVal == "" {
		return false, false
	}
	return strings.EqualFold(strings.TrimSpace(envVal), "true"), true
}

// FormatDuration formats a duration in a human-readable way.
// Examples: "1h", "30m", "5m30s".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	if d < hoursPerDay*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % minutesPerHour
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	days := int(d.Hours()) / hoursPerDay
	hours := int(d.Hours()) % hoursPerDay
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%dh", days, hours)
}

// ParseTTL parses a TTL string in either format:
// - Integer seconds: "3600".
// - Duration string: "1h", "30m", "1h30m".
func ParseTTL(s string) (int, error) {
	s = strings.TrimSpace(s)
	if seconds, err := strconv.Atoi(s); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("%w: ttl must be >= 0, got %d", ErrConfigInvalid, seconds)
		}
		return seconds, nil
	}

	duration, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid TTL format: %w", err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%w: ttl must be >= 0, got %s", ErrConfigInvalid, s)
	}

	return int(duration.Seconds()), nil
}
