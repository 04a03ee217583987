package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLocker(t *testing.T) *Locker {
	t.Helper()
	addr := os.Getenv("KABUKA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KABUKA_TEST_REDIS_ADDR not set")
	}
	client := NewRedisClient(addr, "", 0)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return &Locker{Client: client, Prefix: "kabuka-test:" + uuid.NewString() + ":"}
}

func TestLockerExclusive(t *testing.T) {
	l := testLocker(t)
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx, "quote:aapl", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "quote:aapl", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()

	release, ok, err = l.TryLock(ctx, "quote:aapl", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestUnlockKeepsForeignLock(t *testing.T) {
	l := testLocker(t)
	ctx := context.Background()
	key := l.Prefix + "news:aapl"

	first, ok, err := TryLock(ctx, l.Client, key, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	second, ok, err := TryLock(ctx, l.Client, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// the expired holder must not release the new one
	require.NoError(t, first.Unlock(ctx))
	_, ok, err = TryLock(ctx, l.Client, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Unlock(ctx))
}

func TestNewToken(t *testing.T) {
	a, err := newToken()
	require.NoError(t, err)
	b, err := newToken()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestLockerReleaseLeavesNewHolder(t *testing.T) {
	l := testLocker(t)
	ctx, cancel := context.WithCancel(context.Background())

	release, ok, err := l.TryLock(ctx, "research:en:apple", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	cancel()

	time.Sleep(100 * time.Millisecond)
	other, ok, err := TryLock(context.Background(), l.Client, l.Prefix+"research:en:apple", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	release()
	_, ok, err = l.TryLock(context.Background(), "research:en:apple", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "release only deletes its own token")

	require.NoError(t, other.Unlock(context.Background()))
}
