package main

import (
	"context"
	"fmt"

	"github.com/52poke/kabuka/internal/cache"
	"github.com/52poke/kabuka/internal/config"
	"github.com/52poke/kabuka/internal/lock"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// openStore builds the persistent tier selected by KABUKA_CACHE_BACKEND. The
// redis backend uses rdb, which the caller owns and closes.
func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client, log zerolog.Logger) (cache.Store, func(), error) {
	switch cfg.CacheBackend {
	case config.BackendPostgres:
		store, err := cache.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.BackendRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("redis backend needs KABUKA_REDIS_ADDR")
		}
		return cache.NewRedisStore(rdb, cfg.RedisKeyPrefix), func() {}, nil

	case config.BackendS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		)
		if err != nil {
			return nil, nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		})
		return cache.NewS3Store(cfg.S3Bucket, client), func() {}, nil

	case config.BackendMemory:
		log.Warn().Msg("memory cache backend: entries are lost on restart and not shared between replicas")
		return cache.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// newRedisClient returns the one Redis client shared by the redis backend and
// the fetch lock, or nil when Redis is not configured.
func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}
