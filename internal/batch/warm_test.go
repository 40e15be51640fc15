package batch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/scoutcache/internal/cache"
)

func TestParseQueries(t *testing.T) {
	input := strings.Join([]string{
		"# travel queries",
		"digital nomad visa\tdigitalnomad\t3",
		"schengen",
		"",
		"passport renewal\tpassportporn",
		"work permit\t\t20",
		"windows line\tall\t2\r",
	}, "\n")

	queries, err := ParseQueries(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []cache.Query{
		{Text: "digital nomad visa", Scope: "digitalnomad", Limit: 3},
		{Text: "schengen", Scope: "all", Limit: 15},
		{Text: "passport renewal", Scope: "passportporn", Limit: 15},
		{Text: "work permit", Scope: "all", Limit: 20},
		{Text: "windows line", Scope: "all", Limit: 2},
	}, queries)

	t.Run("Malformed", func(t *testing.T) {
		for _, line := range []string{"q\ts\tnope", "q\ts\t0", "a\tb\tc\td"} {
			_, err := ParseQueries(strings.NewReader(line))
			assert.ErrorIs(t, err, ErrMalformedLine, "line %q", line)
		}
	})
}

func newWarmCache(t *testing.T, lookup cache.LookupFunc) *cache.Cache {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.Directory = t.TempDir()
	c, err := cache.New(context.Background(), cfg, lookup, cache.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return c
}

func TestWarm(t *testing.T) {
	queries := make([]cache.Query, 0, 12)
	for _, text := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		queries = append(queries, cache.Query{Text: text, Scope: "all", Limit: 5})
	}

	for _, concurrency := range []int{1, 4} {
		var calls atomic.Int64
		c := newWarmCache(t, func(_ context.Context, q cache.Query) ([]byte, error) {
			calls.Add(1)
			return []byte(`{"q":"` + q.Text + `"}`), nil
		})

		var progressCalls atomic.Int32
		opts := WarmOptions{
			BatchSize:   5,
			Concurrency: concurrency,
			OnProgress:  func(*Progress) { progressCalls.Add(1) },
			Logger:      zerolog.Nop(),
		}

		res, err := Warm(context.Background(), c, queries, opts)
		require.NoError(t, err)
		assert.Equal(t, WarmResult{Total: 12, Misses: 12}, res)
		assert.Equal(t, int32(3), progressCalls.Load())

		count, err := c.Store().Count()
		require.NoError(t, err)
		assert.Equal(t, 12, count)

		again, err := Warm(context.Background(), c, queries, opts)
		require.NoError(t, err)
		assert.Equal(t, WarmResult{Total: 12, Hits: 12}, again)
		assert.Equal(t, int64(12), calls.Load())
	}
}

func TestWarm_Failures(t *testing.T) {
	upstreamErr := errors.New("upstream down")
	c := newWarmCache(t, func(_ context.Context, q cache.Query) ([]byte, error) {
		if q.Text == "bad" {
			return nil, upstreamErr
		}
		return []byte(`{}`), nil
	})

	queries := []cache.Query{
		{Text: "ok1", Scope: "all", Limit: 1},
		{Text: "bad", Scope: "all", Limit: 1},
		{Text: "ok2", Scope: "all", Limit: 1},
	}
	res, err := Warm(context.Background(), c, queries, WarmOptions{BatchSize: 1, Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstreamErr)
	assert.Equal(t, WarmResult{Total: 3, Misses: 2, Failed: 1}, res)
}

func TestWarm_LogsPlan(t *testing.T) {
	var buf bytes.Buffer
	c := newWarmCache(t, func(context.Context, cache.Query) ([]byte, error) { return []byte(`{}`), nil })
	queries := []cache.Query{
		{Text: "a", Scope: "all", Limit: 1},
		{Text: "b", Scope: "all", Limit: 1},
		{Text: "c", Scope: "all", Limit: 1},
	}

	_, err := Warm(context.Background(), c, queries, WarmOptions{BatchSize: 2, Logger: zerolog.New(&buf)})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"message":"warm-up started"`)
	assert.Contains(t, buf.String(), `"batch_size":2`)
	assert.Contains(t, buf.String(), `"batches":2`)
	assert.Contains(t, buf.String(), `"concurrency":1`)
}

func TestWarm_Empty(t *testing.T) {
	c := newWarmCache(t, func(context.Context, cache.Query) ([]byte, error) { return nil, nil })
	res, err := Warm(context.Background(), c, nil, WarmOptions{})
	require.NoError(t, err)
	assert.Equal(t, WarmResult{}, res)
}
