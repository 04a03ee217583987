package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/52poke/kabuka/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type Status string

const (
	StatusHit    Status = "HIT"
	StatusMiss   Status = "MISS"
	StatusBypass Status = "BYPASS"
)

const lockPoll = 50 * time.Millisecond

// Result is what Fetch hands back to a request handler.
type Result struct {
	Payload []byte
	Status  Status
}

// FetchFunc loads a fresh payload from the upstream provider.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Locker serialises upstream fetches for one key across replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Aside is the cache-aside layer in front of a persistent Store. Misses are
// ordinary return values; only persistent-tier failures produce a
// *StorageError.
type Aside struct {
	store    Store
	local    *Memory
	ttls     map[Category]time.Duration
	now      func() time.Time
	locker   Locker
	lockTTL  time.Duration
	lockWait time.Duration
	group    singleflight.Group
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

type Option func(*Aside)

func WithClock(now func() time.Time) Option {
	return func(a *Aside) { a.now = now }
}

// WithTTLs overrides the per-category defaults. Categories missing from ttls
// keep their built-in value.
func WithTTLs(ttls map[Category]time.Duration) Option {
	return func(a *Aside) {
		for c, ttl := range ttls {
			if ttl > 0 {
				a.ttls[c] = ttl
			}
		}
	}
}

// WithLocalTier puts a process-local Memory in front of the store.
func WithLocalTier(m *Memory) Option {
	return func(a *Aside) { a.local = m }
}

func WithLocker(l Locker, ttl, maxWait time.Duration) Option {
	return func(a *Aside) {
		a.locker = l
		a.lockTTL = ttl
		a.lockWait = maxWait
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aside) { a.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Aside) { a.log = l }
}

func NewAside(store Store, opts ...Option) *Aside {
	a := &Aside{
		store:    store,
		ttls:     DefaultTTLs(),
		now:      time.Now,
		lockTTL:  45 * time.Second,
		lockWait: 3 * time.Second,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TTL returns the default ttl configured for category.
func (a *Aside) TTL(category Category) time.Duration {
	return a.ttls[category]
}

func (a *Aside) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// Read returns the stored payload when (key, category) is present and fresh.
// ok is false on a miss. A stale row is deleted before reporting the miss.
func (a *Aside) Read(ctx context.Context, key string, category Category) ([]byte, bool, error) {
	if err := validate(key, category); err != nil {
		return nil, false, err
	}
	now := a.now()

	if a.local != nil {
		if e, err := a.local.Get(ctx, key, category); err == nil {
			if !e.Expired(now) {
				a.metrics.CacheRead(string(category), "hit")
				return e.Payload, true, nil
			}
			_ = a.local.Delete(ctx, key, category)
		}
	}

	e, err := a.store.Get(ctx, key, category)
	if errors.Is(err, ErrNotFound) {
		a.metrics.CacheRead(string(category), "miss")
		return nil, false, nil
	}
	if err != nil {
		a.metrics.CacheRead(string(category), "fault")
		return nil, false, &StorageError{Op: "read", Category: category, Key: key, Err: err}
	}

	if e.Expired(now) {
		a.metrics.CacheRead(string(category), "stale")
		if err := a.deleteStale(ctx, key, category, now); err != nil {
			a.logger(ctx).Warn().Err(err).
				Str("category", string(category)).Str("key", key).
				Msg("failed to delete stale cache entry")
		}
		return nil, false, nil
	}

	if a.local != nil {
		_ = a.local.Put(ctx, e)
	}
	a.metrics.CacheRead(string(category), "hit")
	return e.Payload, true, nil
}

// deleteStale drops a row found expired at now, unless the store reports it
// was rewritten since.
func (a *Aside) deleteStale(ctx context.Context, key string, category Category, now time.Time) error {
	if d, ok := a.store.(ExpiredDeleter); ok {
		return d.DeleteExpired(ctx, key, category, now)
	}
	return a.store.Delete(ctx, key, category)
}

// Write upserts payload under (key, category) with expiry now+ttl.
func (a *Aside) Write(ctx context.Context, key string, category Category, payload []byte, ttl time.Duration) error {
	if err := validate(key, category); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	now := a.now()
	e := Entry{
		Key:       key,
		Category:  category,
		Payload:   payload,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := a.store.Put(ctx, e); err != nil {
		a.metrics.CacheWrite(string(category), false)
		if a.local != nil {
			_ = a.local.Delete(ctx, key, category)
		}
		return &StorageError{Op: "write", Category: category, Key: key, Err: err}
	}
	if a.local != nil {
		_ = a.local.Put(ctx, e)
	}
	a.metrics.CacheWrite(string(category), true)
	return nil
}

// WriteDefault is Write with the category's configured ttl.
func (a *Aside) WriteDefault(ctx context.Context, key string, category Category, payload []byte) error {
	return a.Write(ctx, key, category, payload, a.TTL(category))
}

// Invalidate removes (key, category). Removing an absent entry succeeds.
func (a *Aside) Invalidate(ctx context.Context, key string, category Category) error {
	if err := validate(key, category); err != nil {
		return err
	}
	if a.local != nil {
		_ = a.local.Delete(ctx, key, category)
	}
	if err := a.store.Delete(ctx, key, category); err != nil {
		a.metrics.CacheInvalidate(string(category), false)
		return &StorageError{Op: "invalidate", Category: category, Key: key, Err: err}
	}
	a.metrics.CacheInvalidate(string(category), true)
	return nil
}

// Fetch runs one cache-aside cycle: serve a fresh entry, otherwise call fn
// once, store its payload and return it. A storage fault on read degrades to
// a live fetch (StatusBypass); a failed write is logged and the fetched
// payload is still returned. Errors from fn are returned unchanged.
func (a *Aside) Fetch(ctx context.Context, key string, category Category, fn FetchFunc) (Result, error) {
	payload, ok, err := a.Read(ctx, key, category)
	if err != nil && !IsStorageFault(err) {
		return Result{}, err
	}
	if ok {
		return Result{Payload: payload, Status: StatusHit}, nil
	}
	degraded := err != nil
	if degraded {
		a.logger(ctx).Warn().Err(err).
			Str("category", string(category)).Str("key", key).
			Msg("cache read failed, fetching live")
	}

	// The shared fill outlives any one caller; each caller only stops
	// waiting when its own context ends.
	ch := a.group.DoChan(string(category)+"\x00"+key, func() (any, error) {
		return a.fill(context.WithoutCancel(ctx), key, category, fn, degraded)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		res := r.Val.(Result)
		if res.Status == StatusMiss && degraded {
			res.Status = StatusBypass
		}
		return res, nil
	}
}

type ttlLimitKey struct{}

type ttlLimit struct {
	mu  sync.Mutex
	ttl time.Duration
}

// LimitTTL caps how long the payload produced by the running FetchFunc is
// kept. Outside a Fetch it does nothing.
func LimitTTL(ctx context.Context, ttl time.Duration) {
	l, ok := ctx.Value(ttlLimitKey{}).(*ttlLimit)
	if !ok || ttl <= 0 {
		return
	}
	l.mu.Lock()
	if l.ttl == 0 || ttl < l.ttl {
		l.ttl = ttl
	}
	l.mu.Unlock()
}

// fill reports StatusHit when another holder filled the entry and
// StatusMiss otherwise; Fetch turns the latter into StatusBypass per caller.
func (a *Aside) fill(ctx context.Context, key string, category Category, fn FetchFunc, degraded bool) (Result, error) {
	if a.locker != nil && !degraded {
		release, payload, ok := a.waitForFill(ctx, key, category)
		if ok {
			return Result{Payload: payload, Status: StatusHit}, nil
		}
		if release != nil {
			defer release()
		}
	}

	limit := &ttlLimit{}
	payload, err := fn(context.WithValue(ctx, ttlLimitKey{}, limit))
	if err != nil {
		return Result{}, err
	}

	ttl := a.TTL(category)
	if limit.ttl > 0 && limit.ttl < ttl {
		ttl = limit.ttl
	}
	if err := a.Write(ctx, key, category, payload, ttl); err != nil {
		a.logger(ctx).Warn().Err(err).
			Str("category", string(category)).Str("key", key).
			Msg("cache write failed, serving live data")
	}
	return Result{Payload: payload, Status: StatusMiss}, nil
}

// waitForFill takes the per-key lock or waits for another holder to fill the
// entry. When the wait runs out the caller fetches without the lock.
func (a *Aside) waitForFill(ctx context.Context, key string, category Category) (func(), []byte, bool) {
	lockKey := "lock:" + string(category) + ":" + key
	deadline := time.Now().Add(a.lockWait)

	for {
		release, acquired, err := a.locker.TryLock(ctx, lockKey, a.lockTTL)
		if err != nil {
			a.logger(ctx).Debug().Err(err).Str("lock", lockKey).Msg("lock unavailable")
			return nil, nil, false
		}
		if acquired {
			if payload, ok, err := a.Read(ctx, key, category); err == nil && ok {
				release()
				return nil, payload, true
			}
			return release, nil, false
		}

		if payload, ok, err := a.Read(ctx, key, category); err == nil && ok {
			return nil, payload, true
		}
		if !time.Now().Before(deadline) {
			return nil, nil, false
		}
		select {
		case <-ctx.Done():
			return nil, nil, false
		case <-time.After(lockPoll):
		}
	}
}

func (a *Aside) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.log
}
