// Package market talks to the market-data provider (quotes, indices,
// cryptocurrencies and company news).
package market

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/52poke/kabuka/internal/upstream"
)

var ErrUnknownSymbol = errors.New("unknown symbol")

var (
	IndexSymbols  = []string{"^GSPC", "^DJI", "^IXIC"}
	CryptoSymbols = []string{"BTCUSD", "ETHUSD", "SOLUSD", "XRPUSD", "DOGEUSD"}
)

type Quote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changesPercentage"`
	DayLow        float64 `json:"dayLow"`
	DayHigh       float64 `json:"dayHigh"`
	YearLow       float64 `json:"yearLow"`
	YearHigh      float64 `json:"yearHigh"`
	MarketCap     float64 `json:"marketCap"`
	Volume        float64 `json:"volume"`
	Exchange      string  `json:"exchange"`
	Timestamp     int64   `json:"timestamp"`
}

type Article struct {
	Symbol        string `json:"symbol"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	Image         string `json:"image"`
	Site          string `json:"site"`
	Text          string `json:"text"`
	PublishedDate string `json:"publishedDate"`
}

type Client struct {
	api    *upstream.Client
	apiKey string
}

func NewClient(api *upstream.Client, apiKey string) *Client {
	return &Client{api: api, apiKey: apiKey}
}

func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	quotes, err := c.quotes(ctx, []string{symbol})
	if err != nil {
		return Quote{}, err
	}
	if len(quotes) == 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return quotes[0], nil
}

func (c *Client) Indices(ctx context.Context) ([]Quote, error) {
	return c.quotes(ctx, IndexSymbols)
}

func (c *Client) Crypto(ctx context.Context) ([]Quote, error) {
	return c.quotes(ctx, CryptoSymbols)
}

func (c *Client) News(ctx context.Context, symbol string, limit int) ([]Article, error) {
	q := c.query()
	q.Set("tickers", strings.ToUpper(symbol))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var articles []Article
	if err := c.api.Get(ctx, "/stock_news", q, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

func (c *Client) quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}
	var quotes []Quote
	path := "/quote/" + strings.Join(upper, ",")
	if err := c.api.Get(ctx, path, c.query(), &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (c *Client) query() url.Values {
	q := url.Values{}
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	return q
}
