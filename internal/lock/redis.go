package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

type RedisLock struct {
	client *redis.Client
	key    string
	token  string
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func TryLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*RedisLock, bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &RedisLock{client: client, key: key, token: token}, true, nil
}

// Unlock releases the lock only if this holder still owns it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	_, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Result()
	return err
}

// Locker adapts TryLock to the fetch-deduplication hook of cache.Aside.
// Keys are stored under Prefix. The release func returned on success deletes
// the key only while this holder's token is still there, so a lock that
// expired and was taken by another replica is left alone. Release runs even
// when the acquiring request context has been cancelled.
type Locker struct {
	Client *redis.Client
	Prefix string
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	rl, ok, err := TryLock(ctx, l.Client, l.Prefix+key, ttl)
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() {
		_ = rl.Unlock(context.WithoutCancel(ctx))
	}, true, nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
