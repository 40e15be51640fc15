// Package config loads scoutcache settings from YAML files and the
// environment and converts them into the cache and logging configurations.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rshade/scoutcache/internal/cache"
	"github.com/rshade/scoutcache/internal/logging"
)

// Defaults for the sections not owned by the cache package.
const (
	DefaultLogLevel               = "info"
	DefaultLogFormat              = logging.FormatConsole
	DefaultUpstreamTimeoutSeconds = 30
	DefaultUserAgent              = "scoutcache"
	DefaultServerAddress          = "127.0.0.1:8089"

	configFileName = "config.yaml"
	configDirName  = ".scoutcache"
)

// Environment variables read by Load, in addition to the cache's own
// MCP_* variables.
const (
	EnvHome        = "SCOUTCACHE_HOME"
	EnvLogLevel    = "SCOUTCACHE_LOG_LEVEL"
	EnvLogFormat   = "SCOUTCACHE_LOG_FORMAT"
	EnvUpstreamURL = "SCOUTCACHE_UPSTREAM_URL"
)

// Config is the full scoutcache configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// CacheConfig defines caching behavior for lookup results.
type CacheConfig struct {
	// Directory is the cache directory path (default: .mcp_cache).
	Directory string `yaml:"directory" json:"directory"`

	// TTLSeconds is the time-to-live for cached entries in seconds (default: 3600 = 1 hour).
	TTLSeconds int `yaml:"ttl_seconds" json:"ttl_seconds"`

	// MaxSizeMB is the maximum cache size in megabytes (default: 100).
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`

	// Compression enables gzip for new entries (default: true).
	Compression bool `yaml:"compression" json:"compression"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// UpstreamConfig describes the HTTP search backend behind the cache.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent" json:"user_agent"`
}

// ServerConfig controls the HTTP server started by "scoutcache serve".
type ServerConfig struct {
	Address string `yaml:"address" json:"address"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	def := cache.DefaultConfig()
	return &Config{
		Cache: CacheConfig{
			Directory:   def.Directory,
			TTLSeconds:  def.TTLSeconds,
			MaxSizeMB:   cache.DefaultMaxSizeMB,
			Compression: def.Compression,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Upstream: UpstreamConfig{
			TimeoutSeconds: DefaultUpstreamTimeoutSeconds,
			UserAgent:      DefaultUserAgent,
		},
		Server: ServerConfig{
			Address: DefaultServerAddress,
		},
	}
}

// LoadOptions selects the files Load reads.
type LoadOptions struct {
	// GlobalPath overrides the global config file location. Empty uses
	// $SCOUTCACHE_HOME/config.yaml or ~/.scoutcache/config.yaml.
	GlobalPath string

	// OverlayPath is an explicit config file whose top-level sections
	// replace those of the global file. It must exist when set.
	OverlayPath string
}

// Load builds the configuration in precedence order: defaults, the global
// file (if present), the overlay file, then environment variables. CLI
// flags are applied by the caller afterwards.
func Load(opts LoadOptions) (*Config, error) {
	cfg := New()

	globalPath := opts.GlobalPath
	if globalPath == "" {
		dir, err := GetConfigDir()
		if err == nil {
			globalPath = filepath.Join(dir, configFileName)
		}
	}
	if globalPath != "" {
		if err := cfg.loadFile(globalPath); err != nil {
			return nil, err
		}
	}

	if opts.OverlayPath != "" {
		if err := ShallowMergeYAML(cfg, opts.OverlayPath); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// loadFile reads a full config file onto cfg. A missing file is not an
// error.
func (c *Config) loadFile(path string) error {
	//nolint:gosec // path comes from user configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables. Values that do
// not parse are ignored and the current setting is kept.
func (c *Config) ApplyEnv() {
	if dir := cache.GetCacheDirFromEnv(); dir != "" {
		c.Cache.Directory = dir
	}
	if ttl, ok := cache.GetTTLFromEnv(); ok {
		c.Cache.TTLSeconds = ttl
	}
	if size, ok := cache.GetMaxSizeFromEnv(); ok {
		c.Cache.MaxSizeMB = size
	}
	if compress, ok := cache.GetCompressionFromEnv(); ok {
		c.Cache.Compression = compress
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv(EnvLogFormat); format != "" {
		c.Logging.Format = format
	}
	if base := os.Getenv(EnvUpstreamURL); base != "" {
		c.Upstream.BaseURL = base
	}
}

// Validate checks every section. Errors wrap cache.ErrConfigInvalid.
func (c *Config) Validate() error {
	if err := c.Cache.ToCacheConfig().Validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Format) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("%w: logging format must be %q or %q, got %q",
			cache.ErrConfigInvalid, logging.FormatConsole, logging.FormatJSON, c.Logging.Format)
	}

	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: upstream timeout must be >= 0, got %d", cache.ErrConfigInvalid, c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.BaseURL != "" {
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: upstream base_url %q is not an absolute URL", cache.ErrConfigInvalid, c.Upstream.BaseURL)
		}
	}

	if strings.TrimSpace(c.Server.Address) == "" {
		return fmt.Errorf("%w: server address cannot be empty", cache.ErrConfigInvalid)
	}
	return nil
}

// ToCacheConfig converts the YAML section into the cache package's
// configuration.
func (cc CacheConfig) ToCacheConfig() cache.Config {
	return cache.Config{
		Directory:    cc.Directory,
		TTLSeconds:   cc.TTLSeconds,
		MaxSizeBytes: cache.MBToBytes(cc.MaxSizeMB),
		Compression:  cc.Compression,
	}
}

// ToLoggingConfig converts the YAML section into the logging package's
// configuration.
func (lc LoggingConfig) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level:  lc.Level,
		Format: strings.ToLower(lc.Format),
		File:   lc.File,
	}
}

// GetConfigDir returns the path to the scoutcache configuration directory.
func GetConfigDir() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, configDirName), nil
}
