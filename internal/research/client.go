// Package research produces AI-generated company research through an
// OpenAI-compatible chat-completions API.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/52poke/kabuka/internal/lang"
	"github.com/52poke/kabuka/internal/market"
	"github.com/52poke/kabuka/internal/upstream"
)

const summaryPrompt = `You are an equity research assistant. Answer with a single JSON object and nothing else, using the keys:
"company" (official company name), "ticker" (primary listing symbol or empty string),
"overview" (2-3 sentences), "strengths" (array of short strings), "risks" (array of short strings),
"outlook" (1-2 sentences). Write every text value in %s.`

const explainPrompt = `You are a markets commentator. In two sentences, explain plausible reasons for the latest price move of the given stock. Do not give investment advice.`

// Summary is the structured research answer for one company.
type Summary struct {
	Company   string   `json:"company"`
	Ticker    string   `json:"ticker"`
	Overview  string   `json:"overview"`
	Strengths []string `json:"strengths"`
	Risks     []string `json:"risks"`
	Outlook   string   `json:"outlook"`
	Language  string   `json:"language"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

type Client struct {
	api    *upstream.Client
	apiKey string
	model  string
}

func NewClient(api *upstream.Client, apiKey, model string) *Client {
	return &Client{api: api, apiKey: apiKey, model: model}
}

// Summarize asks the model for research on company, written in language code.
func (c *Client) Summarize(ctx context.Context, company, language string) (Summary, error) {
	content, err := c.complete(ctx, []message{
		{Role: "system", Content: fmt.Sprintf(summaryPrompt, lang.Name(language))},
		{Role: "user", Content: company},
	})
	if err != nil {
		return Summary{}, err
	}

	var s Summary
	if err := json.Unmarshal([]byte(stripFence(content)), &s); err != nil {
		return Summary{}, fmt.Errorf("%w: research summary: %v", upstream.ErrMalformedResponse, err)
	}
	if strings.TrimSpace(s.Overview) == "" {
		return Summary{}, fmt.Errorf("%w: research summary has no overview", upstream.ErrMalformedResponse)
	}
	if s.Company == "" {
		s.Company = company
	}
	s.Language = language
	return s, nil
}

// Explain returns a short commentary on the quote's latest move.
func (c *Client) Explain(ctx context.Context, q market.Quote) (string, error) {
	prompt := fmt.Sprintf("%s (%s) trades at %.2f, %+.2f%% on the day.", q.Name, q.Symbol, q.Price, q.ChangePercent)
	content, err := c.complete(ctx, []message{
		{Role: "system", Content: explainPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: empty explanation", upstream.ErrMalformedResponse)
	}
	return content, nil
}

func (c *Client) complete(ctx context.Context, messages []message) (string, error) {
	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}
	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.2,
	}

	var resp chatResponse
	if err := c.api.Post(ctx, "/chat/completions", req, headers, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", upstream.ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// stripFence removes a surrounding ``` or ```json block.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
