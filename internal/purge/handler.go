package purge

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/52poke/kabuka/internal/cache"
	"github.com/rs/zerolog"
)

const (
	tokenHeader    = "X-Purge-Token"
	keyHeader      = "X-Cache-Key"
	categoryHeader = "X-Cache-Category"
)

// Handler invalidates one (key, category) entry. It answers PURGE and
// DELETE requests; invalidating an absent entry still returns 204.
type Handler struct {
	Cache *cache.Aside
	Token string
}

type purgePayload struct {
	Key      string `json:"key"`
	Category string `json:"category"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Token != "" {
		got := r.Header.Get(tokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
			http.Error(w, "invalid purge token", http.StatusUnauthorized)
			return
		}
	}

	target, err := readTarget(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	category, err := cache.ParseCategory(target.Category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Cache.Invalidate(r.Context(), target.Key, category); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("category", string(category)).Str("key", target.Key).
			Msg("purge failed")
		if cache.IsStorageFault(err) {
			http.Error(w, "cache store unavailable", http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("category", string(category)).Str("key", target.Key).
		Msg("cache entry purged")
	w.WriteHeader(http.StatusNoContent)
}

// readTarget looks at the query string, then headers, then a JSON body.
func readTarget(r *http.Request) (purgePayload, error) {
	q := r.URL.Query()
	p := purgePayload{
		Key:      q.Get("key"),
		Category: q.Get("category"),
	}
	if p.Key == "" {
		p.Key = r.Header.Get(keyHeader)
	}
	if p.Category == "" {
		p.Category = r.Header.Get(categoryHeader)
	}

	if (p.Key == "" || p.Category == "") && r.Body != nil {
		defer r.Body.Close()
		var body purgePayload
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			if p.Key == "" {
				p.Key = body.Key
			}
			if p.Category == "" {
				p.Category = body.Category
			}
		}
	}

	p.Key = strings.TrimSpace(p.Key)
	p.Category = strings.ToLower(strings.TrimSpace(p.Category))
	if p.Key == "" {
		return p, errors.New("key required")
	}
	if p.Category == "" {
		return p, errors.New("category required")
	}
	return p, nil
}
