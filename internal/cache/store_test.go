package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every persistent tier must share.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	key := "contract-" + now.Format("150405.000000")

	t.Run("absent", func(t *testing.T) {
		_, err := store.Get(ctx, key, CategoryQuote)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		payload := []byte{0x00, '{', 0xff, '}'}
		require.NoError(t, store.Put(ctx, Entry{
			Key: key, Category: CategoryQuote, Payload: payload,
			StoredAt: now, ExpiresAt: now.Add(time.Hour),
		}))

		e, err := store.Get(ctx, key, CategoryQuote)
		require.NoError(t, err)
		assert.Equal(t, payload, e.Payload)
		assert.True(t, now.Equal(e.StoredAt))
		assert.True(t, now.Add(time.Hour).Equal(e.ExpiresAt))
	})

	t.Run("upsert", func(t *testing.T) {
		later := now.Add(time.Minute)
		require.NoError(t, store.Put(ctx, Entry{
			Key: key, Category: CategoryQuote, Payload: []byte("second"),
			StoredAt: later, ExpiresAt: later.Add(time.Hour),
		}))

		e, err := store.Get(ctx, key, CategoryQuote)
		require.NoError(t, err)
		assert.Equal(t, "second", string(e.Payload))
		assert.True(t, later.Equal(e.StoredAt))
	})

	t.Run("category partition", func(t *testing.T) {
		_, err := store.Get(ctx, key, CategoryResearch)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete expired keeps a fresh row", func(t *testing.T) {
		d, ok := store.(ExpiredDeleter)
		if !ok {
			t.Skip("store has no conditional delete")
		}
		require.NoError(t, d.DeleteExpired(ctx, key, CategoryQuote, now))
		_, err := store.Get(ctx, key, CategoryQuote)
		require.NoError(t, err)

		require.NoError(t, d.DeleteExpired(ctx, key, CategoryQuote, now.Add(2*time.Hour)))
		_, err = store.Get(ctx, key, CategoryQuote)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, store.Put(ctx, Entry{
			Key: key, Category: CategoryQuote, Payload: []byte("again"),
			StoredAt: now, ExpiresAt: now.Add(time.Hour),
		}))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, key, CategoryQuote))
		require.NoError(t, store.Delete(ctx, key, CategoryQuote))
		_, err := store.Get(ctx, key, CategoryQuote)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestMemoryStoreCopiesPayload(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	payload := []byte("abc")
	require.NoError(t, m.Put(ctx, Entry{Key: "k", Category: CategoryNews, Payload: payload, ExpiresAt: time.Now().Add(time.Hour)}))
	payload[0] = 'x'

	e, err := m.Get(ctx, "k", CategoryNews)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(e.Payload))
	e.Payload[1] = 'y'

	e, err = m.Get(ctx, "k", CategoryNews)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(e.Payload))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("KABUKA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KABUKA_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	runStoreContract(t, store)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("KABUKA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KABUKA_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	runStoreContract(t, NewRedisStore(client, "kabuka:test:"))
}

func TestEntryExpired(t *testing.T) {
	now := time.Now()
	e := Entry{StoredAt: now, ExpiresAt: now.Add(time.Minute)}

	assert.False(t, e.Expired(now))
	assert.False(t, e.Expired(now.Add(time.Minute-time.Nanosecond)))
	assert.True(t, e.Expired(now.Add(time.Minute)))
	assert.True(t, Entry{}.Expired(now), "zero expiry is never fresh")
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories() {
		got, err := ParseCategory(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCategory("weather")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestStorageErrorUnwraps(t *testing.T) {
	err := &StorageError{Op: "write", Category: CategoryQuote, Key: "aapl", Err: errStoreDown}
	assert.ErrorIs(t, err, errStoreDown)
	assert.Contains(t, err.Error(), "write quote/aapl")
}
