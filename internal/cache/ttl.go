package cache

import (
	"fmt"
	"strconv"
	"time"
)

// DefaultTTLs is the built-in {category: ttl} table.
func DefaultTTLs() map[Category]time.Duration {
	return map[Category]time.Duration{
		CategoryQuote:    6 * time.Hour,
		CategoryResearch: 6 * time.Hour,
		CategoryMarket:   time.Hour,
		CategoryCrypto:   time.Hour,
		CategoryNews:     time.Hour,
	}
}

// ParseTTL accepts integer seconds ("3600") or a Go duration ("6h").
func ParseTTL(s string) (time.Duration, error) {
	var ttl time.Duration
	if secs, err := strconv.Atoi(s); err == nil {
		ttl = time.Duration(secs) * time.Second
	} else {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
		}
		ttl = d
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidTTL, s)
	}
	return ttl, nil
}

// ValidateTTLs checks that every category in ttls is known and positive and
// that every known category has a value.
func ValidateTTLs(ttls map[Category]time.Duration) error {
	for c, ttl := range ttls {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
		}
		if ttl <= 0 {
			return fmt.Errorf("%w: %s=%s", ErrInvalidTTL, c, ttl)
		}
	}
	for _, c := range categories {
		if _, ok := ttls[c]; !ok {
			return fmt.Errorf("missing ttl for category %q", c)
		}
	}
	return nil
}
