// Package upstream is the JSON-over-HTTP client shared by the market-data and
// research providers.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/52poke/kabuka/internal/metrics"
)

var (
	// ErrUpstream covers transport failures and non-2xx responses.
	ErrUpstream = errors.New("upstream request failed")
	// ErrMalformedResponse means the body could not be decoded into the expected shape.
	ErrMalformedResponse = errors.New("upstream response malformed")
)

const (
	maxErrorBody    = 512
	maxResponseBody = 4 << 20
)

type Client struct {
	name    string
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

func NewClient(name, baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		metrics: m,
	}
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body any, headers http.Header, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, headers, out)
}

// Do sends one request and decodes the JSON response into out. There are no
// retries.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, headers http.Header, out any) error {
	start := time.Now()
	err := c.do(ctx, method, path, query, body, headers, out)
	c.metrics.Upstream(c.name, err == nil, time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, headers http.Header, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	copyHeaders(req.Header, headers)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUpstream, c.name, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return fmt.Errorf("%w: %s %s: read body: %v", ErrUpstream, c.name, path, err)
	}
	if len(data) > maxResponseBody {
		return fmt.Errorf("%w: %s %s: body exceeds %d bytes", ErrMalformedResponse, c.name, path, maxResponseBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrUpstream, c.name, path, resp.StatusCode, truncate(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, c.name, path, err)
	}
	return nil
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if len(vv) == 0 {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
