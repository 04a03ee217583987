package main

import (
	"context"
	"testing"

	"github.com/52poke/kabuka/internal/cache"
	"github.com/52poke/kabuka/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	assert.Nil(t, newRedisClient(config.Config{}))

	rdb := newRedisClient(config.Config{RedisAddr: "127.0.0.1:1"})
	require.NotNil(t, rdb)
	assert.NoError(t, rdb.Close())
}

func TestOpenStoreSharesRedisClient(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{CacheBackend: config.BackendRedis, RedisAddr: "127.0.0.1:1"}

	_, _, err := openStore(ctx, cfg, nil, zerolog.Nop())
	assert.Error(t, err)

	rdb := newRedisClient(cfg)
	defer rdb.Close()

	store, closeStore, err := openStore(ctx, cfg, rdb, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &cache.RedisStore{}, store)

	closeStore()
	err = rdb.Ping(ctx).Err()
	assert.NotErrorIs(t, err, redis.ErrClosed, "the shared client stays open for the lock")
}

func TestOpenStoreMemory(t *testing.T) {
	store, closeStore, err := openStore(context.Background(), config.Config{CacheBackend: config.BackendMemory}, nil, zerolog.Nop())
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &cache.Memory{}, store)

	_, _, err = openStore(context.Background(), config.Config{CacheBackend: "etcd"}, nil, zerolog.Nop())
	assert.Error(t, err)
}
