package purge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/52poke/kabuka/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*cache.Memory
}

func (failingStore) Delete(context.Context, string, cache.Category) error {
	return errors.New("connection reset")
}

func seeded(t *testing.T, store cache.Store) *cache.Aside {
	t.Helper()
	a := cache.NewAside(store)
	require.NoError(t, a.Write(context.Background(), "aapl", cache.CategoryQuote, []byte(`{}`), time.Hour))
	return a
}

func cached(t *testing.T, a *cache.Aside) bool {
	t.Helper()
	_, ok, err := a.Read(context.Background(), "aapl", cache.CategoryQuote)
	require.NoError(t, err)
	return ok
}

func TestPurgeTargets(t *testing.T) {
	tests := []struct {
		name  string
		build func() *http.Request
	}{
		{"query", func() *http.Request {
			return httptest.NewRequest("PURGE", "/api/cache?key=aapl&category=quote", nil)
		}},
		{"headers", func() *http.Request {
			r := httptest.NewRequest(http.MethodDelete, "/api/cache", nil)
			r.Header.Set(keyHeader, "aapl")
			r.Header.Set(categoryHeader, "QUOTE")
			return r
		}},
		{"body", func() *http.Request {
			return httptest.NewRequest(http.MethodDelete, "/api/cache", strings.NewReader(`{"key":"aapl","category":"quote"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := seeded(t, cache.NewMemory())
			h := &Handler{Cache: a}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.build())
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.False(t, cached(t, a))
		})
	}
}

func TestPurgeAbsentEntry(t *testing.T) {
	h := &Handler{Cache: cache.NewAside(cache.NewMemory())}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("PURGE", "/api/cache?key=msft&category=quote", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestPurgeToken(t *testing.T) {
	a := seeded(t, cache.NewMemory())
	h := &Handler{Cache: a, Token: "s3cret"}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("PURGE", "/api/cache?key=aapl&category=quote", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, cached(t, a))

	r := httptest.NewRequest("PURGE", "/api/cache?key=aapl&category=quote", nil)
	r.Header.Set(tokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, cached(t, a))
}

func TestPurgeBadRequest(t *testing.T) {
	h := &Handler{Cache: cache.NewAside(cache.NewMemory())}

	for _, target := range []string{
		"/api/cache",
		"/api/cache?key=aapl",
		"/api/cache?category=quote",
		"/api/cache?key=aapl&category=weather",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("PURGE", target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestPurgeStorageFault(t *testing.T) {
	h := &Handler{Cache: cache.NewAside(failingStore{cache.NewMemory()})}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("PURGE", "/api/cache?key=aapl&category=quote", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
