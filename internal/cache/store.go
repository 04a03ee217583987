package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by a Store when no row exists for (key, category).
var ErrNotFound = errors.New("cache entry not found")

var (
	ErrInvalidKey      = errors.New("cache key must not be empty")
	ErrUnknownCategory = errors.New("unknown cache category")
	ErrInvalidTTL      = errors.New("cache ttl must be positive")
)

type Category string

const (
	CategoryQuote    Category = "quote"
	CategoryResearch Category = "research"
	CategoryMarket   Category = "market"
	CategoryCrypto   Category = "crypto"
	CategoryNews     Category = "news"
)

var categories = []Category{
	CategoryQuote,
	CategoryResearch,
	CategoryMarket,
	CategoryCrypto,
	CategoryNews,
}

// Categories lists every recognized category.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Entry is one stored payload. Payload is opaque to every Store.
type Entry struct {
	Key       string
	Category  Category
	Payload   []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry must not be served at now.
// The freshness window is [StoredAt, ExpiresAt).
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the persistent tier. Implementations never evaluate expiry
// themselves; that is left to Aside so every backend shares one clock.
type Store interface {
	Get(ctx context.Context, key string, category Category) (Entry, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string, category Category) error
	Ping(ctx context.Context) error
}

// ExpiredDeleter is implemented by stores that can drop a row only while its
// expires_at is still at or before asOf. A row rewritten after the stale read
// survives.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, key string, category Category, asOf time.Time) error
}

// StorageError marks a failure of the persistent tier. Callers treat it as
// a forced miss.
type StorageError struct {
	Op       string
	Category Category
	Key      string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache %s %s/%s: %v", e.Op, e.Category, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func IsStorageFault(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func validate(key string, category Category) error {
	if key == "" {
		return ErrInvalidKey
	}
	if !category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, string(category))
	}
	return nil
}
