package cache

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper(t *testing.T) {
	now := time.Unix(10_000, 0)

	t.Run("RemovesExpiredKeepsFresh", func(t *testing.T) {
		store := newTestStore(t, true)
		write := func(key string, age int64) {
			_, err := store.Write(key, Entry{StoredAt: now.Unix() - age, Payload: []byte(key)})
			require.NoError(t, err)
		}
		write("fresh", 5)
		write("boundary", 60) // age == ttl is not yet removed
		write("stale", 61)
		write("ancient", 86_400)

		res, err := NewSweeper(store, 60, zerolog.Nop()).Sweep(now)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{Scanned: 4, Removed: 2}, res)
		assert.Zero(t, res.Errors())

		for _, key := range []string{"fresh", "boundary"} {
			_, err := store.Read(key)
			assert.NoError(t, err, key)
		}
		for _, key := range []string{"stale", "ancient"} {
			_, err := store.Read(key)
			assert.ErrorIs(t, err, ErrNotFound, key)
		}
	})

	t.Run("ZeroTTL", func(t *testing.T) {
		store := newTestStore(t, false)
		_, err := store.Write("same-second", Entry{StoredAt: now.Unix(), Payload: []byte("x")})
		require.NoError(t, err)
		_, err = store.Write("older", Entry{StoredAt: now.Unix() - 1, Payload: []byte("x")})
		require.NoError(t, err)

		res, err := NewSweeper(store, 0, zerolog.Nop()).Sweep(now)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Removed)

		_, err = store.Read("same-second")
		assert.NoError(t, err)
	})

	t.Run("RemovesCorrupt", func(t *testing.T) {
		store := newTestStore(t, false)
		_, err := store.Write("good", Entry{StoredAt: now.Unix(), Payload: []byte("x")})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(store.Path("bad"), []byte("not an entry"), 0o600))

		res, err := NewSweeper(store, 60, zerolog.Nop()).Sweep(now)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{Scanned: 2, Removed: 1, Corrupt: 1}, res)
		assert.Equal(t, 1, res.Errors())

		_, err = os.Stat(store.Path("bad"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("ReadsHeadersOnly", func(t *testing.T) {
		store := newTestStore(t, true)
		payload := bytes.Repeat([]byte("large post body "), 4096)
		for key, age := range map[string]int64{"fresh": 5, "stale": 120} {
			_, err := store.Write(key, Entry{StoredAt: now.Unix() - age, Payload: payload})
			require.NoError(t, err)

			// Garble everything after the header.
			data, err := os.ReadFile(store.Path(key))
			require.NoError(t, err)
			for i := HeaderSize; i < len(data); i++ {
				data[i] = 0xAA
			}
			require.NoError(t, os.WriteFile(store.Path(key), data, 0o600))
		}

		res, err := NewSweeper(store, 60, zerolog.Nop()).Sweep(now)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{Scanned: 2, Removed: 1}, res)

		_, err = os.Stat(store.Path("stale"))
		assert.ErrorIs(t, err, os.ErrNotExist)

		// The fresh entry survives the sweep; a full read still rejects it.
		_, err = store.Read("fresh")
		assert.ErrorIs(t, err, ErrCorruptEntry)
	})

	t.Run("RemovesShortHeader", func(t *testing.T) {
		store := newTestStore(t, false)
		_, err := store.Write("short", Entry{StoredAt: now.Unix(), Payload: []byte("x")})
		require.NoError(t, err)
		require.NoError(t, os.Truncate(store.Path("short"), HeaderSize-1))

		res, err := NewSweeper(store, 60, zerolog.Nop()).Sweep(now)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{Scanned: 1, Removed: 1, Corrupt: 1}, res)
	})

	t.Run("EmptyStore", func(t *testing.T) {
		store := newTestStore(t, false)
		res, err := NewSweeper(store, 60, zerolog.Nop()).Sweep(now)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{}, res)
	})

	t.Run("UnreadableDirectory", func(t *testing.T) {
		store := newTestStore(t, false)
		require.NoError(t, os.RemoveAll(store.Directory()))

		_, err := NewSweeper(store, 60, zerolog.Nop()).Sweep(now)
		assert.Error(t, err)
	})
}
