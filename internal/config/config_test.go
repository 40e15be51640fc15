package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/scoutcache/internal/cache"
	"github.com/rshade/scoutcache/internal/config"
)

// isolateEnv points the config home at a temp dir and clears every
// variable Load reads.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	for _, name := range []string{
		cache.EnvCacheDir, cache.EnvTTLSeconds, cache.EnvMaxSizeMB, cache.EnvCompression,
		config.EnvLogLevel, config.EnvLogFormat, config.EnvUpstreamURL,
	} {
		t.Setenv(name, "")
	}
	return home
}

func TestNew_Defaults(t *testing.T) {
	cfg := config.New()
	assert.Equal(t, ".mcp_cache", cfg.Cache.Directory)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 100, cfg.Cache.MaxSizeMB)
	assert.True(t, cfg.Cache.Compression)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 30, cfg.Upstream.TimeoutSeconds)
	assert.Equal(t, "127.0.0.1:8089", cfg.Server.Address)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, cache.DefaultConfig(), cfg.Cache.ToCacheConfig())
}

func TestLoad(t *testing.T) {
	t.Run("DefaultsWithoutFiles", func(t *testing.T) {
		isolateEnv(t)
		cfg, err := config.Load(config.LoadOptions{})
		require.NoError(t, err)
		assert.Equal(t, config.New(), cfg)
	})

	t.Run("GlobalFileFromHome", func(t *testing.T) {
		home := isolateEnv(t)
		require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(`
cache:
  ttl_seconds: 120
logging:
  level: debug
`), 0o600))

		cfg, err := config.Load(config.LoadOptions{})
		require.NoError(t, err)
		assert.Equal(t, 120, cfg.Cache.TTLSeconds)
		assert.Equal(t, 100, cfg.Cache.MaxSizeMB, "full load keeps unset fields")
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Format)
	})

	t.Run("OverlayReplacesSections", func(t *testing.T) {
		home := isolateEnv(t)
		require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(`
cache:
  directory: /global/cache
  ttl_seconds: 120
  max_size_mb: 10
  compression: true
`), 0o600))
		overlay := writeOverlay(t, `
cache:
  directory: /overlay/cache
  ttl_seconds: 5
  max_size_mb: 1
`)

		cfg, err := config.Load(config.LoadOptions{OverlayPath: overlay})
		require.NoError(t, err)
		assert.Equal(t, "/overlay/cache", cfg.Cache.Directory)
		assert.Equal(t, 5, cfg.Cache.TTLSeconds)
		assert.False(t, cfg.Cache.Compression)
	})

	t.Run("EnvOverridesFiles", func(t *testing.T) {
		isolateEnv(t)
		global := writeOverlay(t, "cache:\n  ttl_seconds: 120\n")
		t.Setenv(cache.EnvCacheDir, "/env/cache")
		t.Setenv(cache.EnvTTLSeconds, "7")
		t.Setenv(cache.EnvMaxSizeMB, "3")
		t.Setenv(cache.EnvCompression, "false")
		t.Setenv(config.EnvLogLevel, "warn")
		t.Setenv(config.EnvLogFormat, "json")
		t.Setenv(config.EnvUpstreamURL, "http://upstream.local/search")

		cfg, err := config.Load(config.LoadOptions{GlobalPath: global})
		require.NoError(t, err)
		assert.Equal(t, config.CacheConfig{
			Directory:   "/env/cache",
			TTLSeconds:  7,
			MaxSizeMB:   3,
			Compression: false,
		}, cfg.Cache)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, "http://upstream.local/search", cfg.Upstream.BaseURL)
	})

	t.Run("InvalidEnvIgnored", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv(cache.EnvTTLSeconds, "-5")
		t.Setenv(cache.EnvMaxSizeMB, "lots")

		cfg, err := config.Load(config.LoadOptions{})
		require.NoError(t, err)
		assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
		assert.Equal(t, 100, cfg.Cache.MaxSizeMB)
	})

	t.Run("MissingOverlay", func(t *testing.T) {
		isolateEnv(t)
		_, err := config.Load(config.LoadOptions{OverlayPath: filepath.Join(t.TempDir(), "nope.yaml")})
		assert.Error(t, err)
	})

	t.Run("MalformedGlobal", func(t *testing.T) {
		isolateEnv(t)
		global := writeOverlay(t, "cache: [\n")
		_, err := config.Load(config.LoadOptions{GlobalPath: global})
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "negative ttl", mutate: func(c *config.Config) { c.Cache.TTLSeconds = -1 }},
		{name: "zero size", mutate: func(c *config.Config) { c.Cache.MaxSizeMB = 0 }},
		{name: "empty directory", mutate: func(c *config.Config) { c.Cache.Directory = "" }},
		{name: "log format", mutate: func(c *config.Config) { c.Logging.Format = "xml" }},
		{name: "upstream timeout", mutate: func(c *config.Config) { c.Upstream.TimeoutSeconds = -1 }},
		{name: "relative upstream", mutate: func(c *config.Config) { c.Upstream.BaseURL = "search/api" }},
		{name: "server address", mutate: func(c *config.Config) { c.Server.Address = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), cache.ErrConfigInvalid)
		})
	}

	t.Run("JSONFormatAnyCase", func(t *testing.T) {
		cfg := config.New()
		cfg.Logging.Format = "JSON"
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, "json", cfg.Logging.ToLoggingConfig().Format)
	})
}

func TestToCacheConfig(t *testing.T) {
	cc := config.CacheConfig{Directory: "d", TTLSeconds: 9, MaxSizeMB: 2, Compression: true}
	assert.Equal(t, cache.Config{
		Directory:    "d",
		TTLSeconds:   9,
		MaxSizeBytes: 2 * 1024 * 1024,
		Compression:  true,
	}, cc.ToCacheConfig())
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv(config.EnvHome, "/opt/scoutcache")
	dir, err := config.GetConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/opt/scoutcache", dir)
}
