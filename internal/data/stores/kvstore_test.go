package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winters27/streamnook/internal/data/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestKVStore(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get round trip", func(t *testing.T) {
		store := NewKVStore(openTestDB(t))

		type payload struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		}

		require.NoError(t, store.Set(ctx, "k1", payload{Name: "ana", Count: 3}))

		var got payload
		require.NoError(t, store.Get(ctx, "k1", &got))
		assert.Equal(t, payload{Name: "ana", Count: 3}, got)
	})

	t.Run("get missing key wraps ErrNoRows", func(t *testing.T) {
		store := NewKVStore(openTestDB(t))

		var dest string
		err := store.Get(ctx, "missing", &dest)
		require.Error(t, err)
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("set overwrites existing value", func(t *testing.T) {
		store := NewKVStore(openTestDB(t))

		require.NoError(t, store.Set(ctx, "k1", "first"))
		require.NoError(t, store.Set(ctx, "k1", "second"))

		var got string
		require.NoError(t, store.Get(ctx, "k1", &got))
		assert.Equal(t, "second", got)
	})

	t.Run("expired entry is treated as missing", func(t *testing.T) {
		store := NewKVStore(openTestDB(t))

		require.NoError(t, store.SetTTL(ctx, "k1", "v", -time.Second))

		var dest string
		err := store.Get(ctx, "k1", &dest)
		assert.ErrorIs(t, err, sql.ErrNoRows)

		has, err := store.Has(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("has and delete", func(t *testing.T) {
		store := NewKVStore(openTestDB(t))

		require.NoError(t, store.Set(ctx, "k1", 1))

		has, err := store.Has(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, has)

		require.NoError(t, store.Delete(ctx, "k1"))

		has, err = store.Has(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("sweep removes expired entries only", func(t *testing.T) {
		store := NewKVStore(openTestDB(t))

		require.NoError(t, store.SetTTL(ctx, "stale", "v", -time.Second))
		require.NoError(t, store.Set(ctx, "fresh", "v"))

		require.NoError(t, store.SweepExpired(ctx))

		has, err := store.Has(ctx, "fresh")
		require.NoError(t, err)
		assert.True(t, has)
	})
}
