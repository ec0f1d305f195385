package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/dyike/cortexmarket/models"
)

// FinnhubClient reads the Finnhub market news feed.
type FinnhubClient struct {
	client *resty.Client
	apiKey string
}

func NewFinnhubClient(baseURL, apiKey string, timeout time.Duration) *FinnhubClient {
	if baseURL == "" {
		baseURL = "https://finnhub.io/api/v1"
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	return &FinnhubClient{client: client, apiKey: apiKey}
}

// FinnhubNews represents news from Finnhub API
type FinnhubNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Image    string `json:"image"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

func (fc *FinnhubClient) Configured() bool { return fc.apiKey != "" }

// GeneralNews returns the latest articles of a Finnhub news category
// ("general", "forex", "crypto", "merger").
func (fc *FinnhubClient) GeneralNews(ctx context.Context, category string, limit int) ([]models.NewsArticle, error) {
	if fc.apiKey == "" {
		return nil, fmt.Errorf("finnhub: %w", ErrNotConfigured)
	}
	if category == "" {
		category = "general"
	}

	var news []FinnhubNews
	err := WithRetry(ctx, DefaultRetryConfig(), func() error {
		resp, err := fc.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"category": category,
				"token":    fc.apiKey,
			}).
			Get("/news")
		if err != nil {
			return fmt.Errorf("failed to fetch finnhub news: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
		}
		if err := sonic.Unmarshal(resp.Body(), &news); err != nil {
			return fmt.Errorf("failed to parse news response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.NewsArticle, 0, len(news))
	for _, n := range news {
		if len(out) >= limit && limit > 0 {
			break
		}
		if n.URL == "" || n.Headline == "" {
			continue
		}
		content := n.Summary
		if content == "" {
			content = n.Headline
		}
		text := n.Headline + " " + content
		out = append(out, models.NewsArticle{
			Source:         "finnhub",
			SourceName:     n.Source,
			Title:          n.Headline,
			Content:        content,
			Summary:        truncateRunes(content, 200),
			URL:            n.URL,
			Category:       models.NewsCategoryNews,
			Importance:     NewsImportance(text, false),
			RelatedSectors: RelatedSectors(text),
			PublishTime:    time.Unix(n.DateTime, 0),
			Active:         true,
		})
	}
	return out, nil
}
