package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/52poke/kabuka/internal/cache"
	"github.com/52poke/kabuka/internal/lang"
	"github.com/52poke/kabuka/internal/market"
	"github.com/52poke/kabuka/internal/research"
	"github.com/rs/zerolog"
)

const (
	cacheHeader = "X-Kabuka-Cache"

	keyIndices = "indices"
	keyCrypto  = "top"

	// FallbackExplanation is served when the AI explanation call fails.
	FallbackExplanation = "An explanation for this price move is not available right now."

	// fallbackTTL bounds how long a quote carrying FallbackExplanation is cached.
	fallbackTTL = 2 * time.Minute
)

type Handler struct {
	Cache     *cache.Aside
	Market    *market.Client
	Research  *research.Client
	NewsLimit int
}

type quoteView struct {
	Quote       market.Quote `json:"quote"`
	Explanation string       `json:"explanation"`
	FetchedAt   time.Time    `json:"fetchedAt"`
}

type quotesView struct {
	Quotes    []market.Quote `json:"quotes"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

type newsView struct {
	Symbol    string           `json:"symbol"`
	Articles  []market.Article `json:"articles"`
	FetchedAt time.Time        `json:"fetchedAt"`
}

type researchView struct {
	research.Summary
	FetchedAt time.Time `json:"fetchedAt"`
}

func NewHandler(store *cache.Aside, marketClient *market.Client, researchClient *research.Client, newsLimit int) *Handler {
	return &Handler{
		Cache:     store,
		Market:    marketClient,
		Research:  researchClient,
		NewsLimit: newsLimit,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/quote", h.Quote)
	mux.HandleFunc("GET /api/research", h.ResearchSummary)
	mux.HandleFunc("GET /api/market", h.Indices)
	mux.HandleFunc("GET /api/crypto", h.Crypto)
	mux.HandleFunc("GET /api/news", h.News)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", h.Ready)
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	symbol, ok := NormalizeSymbol(r.URL.Query().Get("symbol"))
	if !ok {
		writeError(w, http.StatusBadRequest, "a valid symbol is required")
		return
	}

	h.serve(w, r, symbol, cache.CategoryQuote, func(ctx context.Context) ([]byte, error) {
		q, err := h.Market.Quote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return json.Marshal(quoteView{
			Quote:       q,
			Explanation: h.explain(ctx, q),
			FetchedAt:   time.Now().UTC(),
		})
	})
}

func (h *Handler) ResearchSummary(w http.ResponseWriter, r *http.Request) {
	company, ok := NormalizeCompany(r.URL.Query().Get("company"))
	if !ok {
		writeError(w, http.StatusBadRequest, "a company name is required")
		return
	}
	language := lang.FromAcceptLanguage(r.Header.Get("Accept-Language"))
	if v := r.URL.Query().Get("lang"); lang.Supported(v) {
		language = v
	}

	h.serve(w, r, ResearchKey(language, company), cache.CategoryResearch, func(ctx context.Context) ([]byte, error) {
		s, err := h.Research.Summarize(ctx, company, language)
		if err != nil {
			return nil, err
		}
		return json.Marshal(researchView{Summary: s, FetchedAt: time.Now().UTC()})
	})
}

func (h *Handler) Indices(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, keyIndices, cache.CategoryMarket, func(ctx context.Context) ([]byte, error) {
		quotes, err := h.Market.Indices(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(quotesView{Quotes: quotes, FetchedAt: time.Now().UTC()})
	})
}

func (h *Handler) Crypto(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, keyCrypto, cache.CategoryCrypto, func(ctx context.Context) ([]byte, error) {
		quotes, err := h.Market.Crypto(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(quotesView{Quotes: quotes, FetchedAt: time.Now().UTC()})
	})
}

func (h *Handler) News(w http.ResponseWriter, r *http.Request) {
	symbol, ok := NormalizeSymbol(r.URL.Query().Get("symbol"))
	if !ok {
		writeError(w, http.StatusBadRequest, "a valid symbol is required")
		return
	}

	h.serve(w, r, symbol, cache.CategoryNews, func(ctx context.Context) ([]byte, error) {
		articles, err := h.Market.News(ctx, symbol, h.NewsLimit)
		if err != nil {
			return nil, err
		}
		if articles == nil {
			articles = []market.Article{}
		}
		return json.Marshal(newsView{Symbol: symbol, Articles: articles, FetchedAt: time.Now().UTC()})
	})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.Cache.Ping(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("cache store not ready")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// serve runs the cache-aside cycle for one request. refresh=true drops the
// cached entry first.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, key string, category cache.Category, fn cache.FetchFunc) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	if wantsRefresh(r) {
		if err := h.Cache.Invalidate(ctx, key, category); err != nil {
			log.Warn().Err(err).Str("category", string(category)).Str("key", key).Msg("refresh invalidate failed")
		}
	}

	res, err := h.Cache.Fetch(ctx, key, category, fn)
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrInvalidKey), errors.Is(err, cache.ErrUnknownCategory):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, market.ErrUnknownSymbol):
			writeError(w, http.StatusNotFound, "unknown symbol")
		default:
			log.Error().Err(err).Str("category", string(category)).Str("key", key).Msg("upstream fetch failed")
			writeError(w, http.StatusBadGateway, "data is temporarily unavailable, please try again later")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(cacheHeader, string(res.Status))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Payload)
}

func (h *Handler) explain(ctx context.Context, q market.Quote) string {
	if h.Research == nil {
		return FallbackExplanation
	}
	text, err := h.Research.Explain(ctx, q)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("symbol", q.Symbol).Msg("explanation failed, using fallback")
		cache.LimitTTL(ctx, fallbackTTL)
		return FallbackExplanation
	}
	return text
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
