package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldPayload   = "payload"
	fieldStoredAt  = "stored_at"
	fieldExpiresAt = "expires_at"
)

// deleteExpiredScript drops the hash only while expires_at <= ARGV[1].
var deleteExpiredScript = redis.NewScript(`
local exp = redis.call("HGET", KEYS[1], "expires_at")
if exp and tonumber(exp) <= tonumber(ARGV[1]) then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps each entry in a hash at <prefix><category>:<key>. Redis
// reclaims the hash at expires_at; Aside still checks expiry itself.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "kabuka:cache:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string, category Category) string {
	return s.prefix + string(category) + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string, category Category) (Entry, error) {
	vals, err := s.client.HGetAll(ctx, s.key(key, category)).Result()
	if err != nil {
		return Entry{}, err
	}
	raw, ok := vals[fieldPayload]
	if !ok {
		return Entry{}, ErrNotFound
	}
	storedAt, err := parseUnixNano(vals[fieldStoredAt])
	if err != nil {
		return Entry{}, fmt.Errorf("redis entry %s: %w", s.key(key, category), err)
	}
	expiresAt, err := parseUnixNano(vals[fieldExpiresAt])
	if err != nil {
		return Entry{}, fmt.Errorf("redis entry %s: %w", s.key(key, category), err)
	}
	return Entry{
		Key:       key,
		Category:  category,
		Payload:   []byte(raw),
		StoredAt:  storedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	k := s.key(entry.Key, entry.Category)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldPayload, entry.Payload,
			fieldStoredAt, strconv.FormatInt(entry.StoredAt.UnixNano(), 10),
			fieldExpiresAt, strconv.FormatInt(entry.ExpiresAt.UnixNano(), 10),
		)
		pipe.PExpireAt(ctx, k, entry.ExpiresAt)
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, key string, category Category) error {
	return s.client.Del(ctx, s.key(key, category)).Err()
}

func (s *RedisStore) DeleteExpired(ctx context.Context, key string, category Category, asOf time.Time) error {
	return deleteExpiredScript.Run(ctx, s.client, []string{s.key(key, category)}, asOf.UnixNano()).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func parseUnixNano(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}
