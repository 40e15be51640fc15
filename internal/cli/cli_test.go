package cli_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/scoutcache/internal/cache"
	"github.com/rshade/scoutcache/internal/cli"
	"github.com/rshade/scoutcache/internal/config"
)

// testEnv is an isolated config home, cache directory and fake upstream.
type testEnv struct {
	home     string
	cacheDir string
	upstream *httptest.Server
	calls    atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{home: t.TempDir()}
	env.cacheDir = filepath.Join(env.home, "cache")

	t.Setenv(config.EnvHome, env.home)
	for _, name := range []string{
		cache.EnvCacheDir, cache.EnvTTLSeconds, cache.EnvMaxSizeMB, cache.EnvCompression,
		config.EnvLogLevel, config.EnvLogFormat, config.EnvUpstreamURL,
	} {
		t.Setenv(name, "")
	}

	env.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		scope := r.URL.Query().Get("scope")
		_, _ = w.Write([]byte(`{"` + scope + `":[{"title":"` + r.URL.Query().Get("q") + `"}]}`))
	}))
	t.Cleanup(env.upstream.Close)
	return env
}

// run executes the CLI with the cache directory and upstream preset.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := cli.NewRootCmdWithOptions("test", config.LoadOptions{
		GlobalPath: filepath.Join(e.home, "config.yaml"),
	})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--cache-dir", e.cacheDir, "--upstream-url", e.upstream.URL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (e *testEnv) entryCount(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(e.cacheDir, "*.cache"))
	require.NoError(t, err)
	return len(matches)
}

func TestRootCmd(t *testing.T) {
	cmd := cli.NewRootCmd("1.2.3")
	assert.Equal(t, "scoutcache", cmd.Use)
	assert.Equal(t, "1.2.3", cmd.Version)

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"get", "stats", "sweep", "prune", "clear", "invalidate", "warm", "serve", "config"} {
		assert.Contains(t, names, want)
	}
}

func TestGetCmd(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "get", "visa", "--scope", "travel", "--limit", "5")
	require.NoError(t, err)
	assert.JSONEq(t, `{"travel":[{"title":"visa"}]}`, strings.TrimSpace(out))
	assert.Equal(t, int64(1), env.calls.Load())
	assert.Equal(t, 1, env.entryCount(t))

	out, _, err = env.run(t, "get", "visa", "--scope", "travel", "--limit", "5", "--pretty")
	require.NoError(t, err)
	assert.Contains(t, out, "\n  \"travel\"")
	assert.Equal(t, int64(1), env.calls.Load(), "second lookup is served from disk")

	t.Run("InvalidLimit", func(t *testing.T) {
		_, _, err := env.run(t, "get", "visa", "--limit", "0")
		assert.ErrorIs(t, err, cache.ErrConfigInvalid)
	})

	t.Run("NoUpstream", func(t *testing.T) {
		cmd := cli.NewRootCmdWithOptions("test", config.LoadOptions{GlobalPath: filepath.Join(env.home, "config.yaml")})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--cache-dir", env.cacheDir, "get", "visa"})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), config.EnvUpstreamURL)
	})

	t.Run("NegativeTTLRejected", func(t *testing.T) {
		_, _, err := env.run(t, "--ttl=-5", "get", "visa")
		assert.ErrorIs(t, err, cache.ErrConfigInvalid)
	})
}

func TestStatsCmd(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"a", "b"} {
		_, _, err := env.run(t, "get", q)
		require.NoError(t, err)
	}

	t.Run("Table", func(t *testing.T) {
		out, _, err := env.run(t, "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "CACHE STATS")
		assert.Contains(t, out, "2 (0 expired)")
		assert.Contains(t, out, env.cacheDir)
	})

	t.Run("JSON", func(t *testing.T) {
		out, _, err := env.run(t, "stats", "--output", "json")
		require.NoError(t, err)

		var got struct {
			Directory   string `json:"directory"`
			Entries     int    `json:"entries"`
			DiskBytes   int64  `json:"disk_bytes"`
			TTLSeconds  int    `json:"ttl_seconds"`
			Compression bool   `json:"compression"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, env.cacheDir, got.Directory)
		assert.Equal(t, 2, got.Entries)
		assert.Positive(t, got.DiskBytes)
		assert.Equal(t, cache.DefaultTTLSeconds, got.TTLSeconds)
		assert.True(t, got.Compression)
	})

	t.Run("Prometheus", func(t *testing.T) {
		out, _, err := env.run(t, "stats", "-o", "prometheus")
		require.NoError(t, err)
		assert.Contains(t, out, "scoutcache_cache_entries 2")
		assert.Contains(t, out, "# TYPE scoutcache_cache_hits_total counter")
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		_, _, err := env.run(t, "stats", "-o", "xml")
		assert.Error(t, err)
	})
}

func TestSweepCmd(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.run(t, "get", "fresh")
	require.NoError(t, err)

	c := openTestCache(t, env.cacheDir)
	_, err = c.Store().Write(cache.BuildKey("old", "all", 1), cache.Entry{StoredAt: 1_000, Payload: []byte(`{}`)})
	require.NoError(t, err)
	require.Equal(t, 2, env.entryCount(t))

	out, _, err := env.run(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Scanned 2 entries, removed 1 (0 corrupt), 0 failed")
	assert.Equal(t, 1, env.entryCount(t))
}

func TestPruneCmd(t *testing.T) {
	env := newTestEnv(t)
	c := openTestCache(t, env.cacheDir)
	payload := bytes.Repeat([]byte("x"), 700*1024)
	for _, q := range []string{"a", "b", "c"} {
		_, err := c.Store().Write(cache.BuildKey(q, "all", 1), cache.NewEntry(time.Now(), payload))
		require.NoError(t, err)
	}

	out, _, err := env.run(t, "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 entries")
	assert.Equal(t, 3, env.entryCount(t))

	out, _, err = env.run(t, "--max-size-mb", "1", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 entries")
	assert.Equal(t, 1, env.entryCount(t))
}

func TestClearCmd(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"a", "b"} {
		_, _, err := env.run(t, "get", q)
		require.NoError(t, err)
	}

	out, _, err := env.run(t, "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 files")
	assert.Zero(t, env.entryCount(t))
}

func TestInvalidateCmd(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.run(t, "get", "keep", "--scope", "travel")
	require.NoError(t, err)
	_, _, err = env.run(t, "get", "drop", "--scope", "travel")
	require.NoError(t, err)

	out, _, err := env.run(t, "invalidate", "drop", "--scope", "travel")
	require.NoError(t, err)
	assert.Contains(t, out, cache.BuildKey("drop", "travel", cache.DefaultLimit))
	assert.Equal(t, 1, env.entryCount(t))

	_, err = os.Stat(filepath.Join(env.cacheDir, cache.BuildKey("keep", "travel", cache.DefaultLimit)+".cache"))
	assert.NoError(t, err)
}

func TestWarmCmd(t *testing.T) {
	env := newTestEnv(t)
	file := filepath.Join(env.home, "queries.tsv")
	require.NoError(t, os.WriteFile(file, []byte("# warm-up list\nvisa\ttravel\t5\nnomad\n\nvisa\ttravel\t5\n"), 0o600))

	out, stderr, err := env.run(t, "warm", file, "--batch-size", "1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "warm-up finished")
	assert.Contains(t, out, "Warmed 3 queries: 1 already cached, 2 fetched, 0 failed")
	assert.Equal(t, 2, env.entryCount(t))

	t.Run("Stdin", func(t *testing.T) {
		cmd := cli.NewRootCmdWithOptions("test", config.LoadOptions{GlobalPath: filepath.Join(env.home, "config.yaml")})
		var stdout bytes.Buffer
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetIn(strings.NewReader("visa\ttravel\t5\n"))
		cmd.SetArgs([]string{"--cache-dir", env.cacheDir, "--upstream-url", env.upstream.URL,
			"warm", "-", "--concurrency", "2"})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, stdout.String(), "1 already cached")
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, _, err := env.run(t, "warm", filepath.Join(env.home, "nope.tsv"))
		assert.Error(t, err)
	})
}

func TestConfigShowCmd(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.home, "config.yaml"), []byte(`
cache:
  ttl_seconds: 120
  max_size_mb: 5
  compression: false
server:
  address: 127.0.0.1:9999
`), 0o600))

	out, _, err := env.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "ttl_seconds: 120")
	assert.Contains(t, out, "127.0.0.1:9999")
	assert.Contains(t, out, "directory: "+env.cacheDir, "flags override the file")

	out, _, err = env.run(t, "--ttl", "2h", "config", "show", "-o", "json")
	require.NoError(t, err)
	var got config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 7200, got.Cache.TTLSeconds)
	assert.Equal(t, 5, got.Cache.MaxSizeMB)
	assert.False(t, got.Cache.Compression)
}

func TestDebugFlagLogsToStderr(t *testing.T) {
	env := newTestEnv(t)
	_, stderr, err := env.run(t, "--debug", "get", "visa")
	require.NoError(t, err)
	assert.Contains(t, stderr, "command started")
	assert.Contains(t, stderr, "lookup finished")
}

// openTestCache opens dir directly, without compression, for seeding
// entries.
func openTestCache(t *testing.T, dir string) *cache.Cache {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.Directory = dir
	cfg.Compression = false
	c, err := cache.New(context.Background(), cfg, func(context.Context, cache.Query) ([]byte, error) {
		return nil, assert.AnError
	})
	require.NoError(t, err)
	return c
}
