package models

import "time"

const (
	NewsCategoryPolicy = "policy"
	NewsCategoryNews   = "news"
	NewsCategoryData   = "data"
)

// NewsSources maps source ids accepted by the news tool to display names.
var NewsSources = map[string]string{
	"cls":       "财联社",
	"eastmoney": "东方财富",
	"pbc":       "中国人民银行",
	"csrc":      "证监会",
	"ndrc":      "发改委",
	"stats":     "国家统计局",
	"miit":      "工信部",
	"google":    "Google News",
	"finnhub":   "Finnhub",
}

type NewsArticle struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	SourceName     string    `json:"source_name"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Summary        string    `json:"summary"`
	URL            string    `json:"url"`
	Category       string    `json:"category"`
	Importance     int       `json:"importance"`
	RelatedSectors string    `json:"related_sectors"`
	Sentiment      string    `json:"sentiment"`
	PublishTime    time.Time `json:"publish_time"`
	Active         bool      `json:"active"`
}

// NewsQuery filters stored articles. Zero values mean "no filter" except
// Hours and Limit, which default to 24 and 20.
type NewsQuery struct {
	Keyword       string
	Source        string
	Category      string
	Hours         int
	MinImportance int
	Limit         int
}
