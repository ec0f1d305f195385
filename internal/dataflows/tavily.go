package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

type TavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type TavilyResponse struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer"`
	Results []TavilyResult `json:"results"`
}

// TavilyClient calls the Tavily web search API.
type TavilyClient struct {
	client *resty.Client
	apiKey string
}

func NewTavilyClient(baseURL, apiKey string, timeout time.Duration) *TavilyClient {
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	return &TavilyClient{client: client, apiKey: apiKey}
}

func (tc *TavilyClient) Configured() bool { return tc != nil && tc.apiKey != "" }

// Search runs a query with depth "basic" or "advanced".
func (tc *TavilyClient) Search(ctx context.Context, query, depth string, maxResults int) (*TavilyResponse, error) {
	if tc.apiKey == "" {
		return nil, fmt.Errorf("tavily: %w", ErrNotConfigured)
	}
	if depth != "advanced" {
		depth = "basic"
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	body := map[string]any{
		"api_key":             tc.apiKey,
		"query":               query,
		"search_depth":        depth,
		"max_results":         maxResults,
		"include_answer":      true,
		"include_raw_content": false,
	}

	var out TavilyResponse
	err := WithRetry(ctx, DefaultRetryConfig(), func() error {
		resp, err := tc.client.R().SetContext(ctx).SetBody(body).Post("/search")
		if err != nil {
			return fmt.Errorf("tavily search: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("tavily search: http %d: %s", resp.StatusCode(), resp.String())
		}
		if err := sonic.Unmarshal(resp.Body(), &out); err != nil {
			return fmt.Errorf("decode tavily response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
