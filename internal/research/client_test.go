package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/52poke/kabuka/internal/market"
	"github.com/52poke/kabuka/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, content string, check func(chatRequest)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if check != nil {
			check(req)
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return NewClient(upstream.NewClient("llm", srv.URL, time.Second, nil), "sk-test", "test-model")
}

func TestSummarize(t *testing.T) {
	content := "```json\n{\"company\":\"Apple Inc.\",\"ticker\":\"AAPL\",\"overview\":\"Makes phones.\",\"strengths\":[\"brand\"],\"risks\":[\"regulation\"],\"outlook\":\"Stable.\"}\n```"
	c := chatServer(t, content, func(req chatRequest) {
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[0].Content, "Japanese")
		assert.Equal(t, "apple", req.Messages[1].Content)
	})

	s, err := c.Summarize(context.Background(), "apple", "ja")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", s.Company)
	assert.Equal(t, "AAPL", s.Ticker)
	assert.Equal(t, []string{"brand"}, s.Strengths)
	assert.Equal(t, "ja", s.Language)
}

func TestSummarizeMalformed(t *testing.T) {
	t.Run("not json", func(t *testing.T) {
		c := chatServer(t, "Apple is a fine company.", nil)
		_, err := c.Summarize(context.Background(), "apple", "en")
		assert.ErrorIs(t, err, upstream.ErrMalformedResponse)
	})

	t.Run("no overview", func(t *testing.T) {
		c := chatServer(t, `{"company":"Apple"}`, nil)
		_, err := c.Summarize(context.Background(), "apple", "en")
		assert.ErrorIs(t, err, upstream.ErrMalformedResponse)
	})
}

func TestExplain(t *testing.T) {
	c := chatServer(t, "  Shares rose after earnings.  ", func(req chatRequest) {
		assert.Contains(t, req.Messages[1].Content, "AAPL")
	})

	text, err := c.Explain(context.Background(), market.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: 190.12, ChangePercent: 1.2})
	require.NoError(t, err)
	assert.Equal(t, "Shares rose after earnings.", text)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(" {\"a\":1} "))
	assert.Equal(t, `{"a":1}`, stripFence("```\n{\"a\":1}```"))
}
