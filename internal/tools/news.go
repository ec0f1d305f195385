package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortexmarket/models"
)

type NewsQuerier interface {
	Query(ctx context.Context, q models.NewsQuery) ([]models.NewsArticle, error)
}

type NewsInput struct {
	Keyword       string `json:"keyword"`
	Source        string `json:"source"`
	Category      string `json:"category"`
	Hours         int    `json:"hours"`
	MinImportance int    `json:"min_importance"`
	Limit         int    `json:"limit"`
}

var (
	newsSourceEnum   = []string{"cls", "eastmoney", "pbc", "csrc", "ndrc", "stats", "miit"}
	newsCategoryEnum = []string{models.NewsCategoryPolicy, models.NewsCategoryNews, models.NewsCategoryData}
)

const newsToolDesc = `从数据库获取财经新闻。可以按来源、分类、关键词、时间范围等条件筛选。
来源(source): cls 财联社快讯, eastmoney 东方财富, pbc 中国人民银行, csrc 证监会, ndrc 发改委, stats 国家统计局, miit 工信部。
分类(category): policy 政策公告, news 市场快讯, data 数据发布。
适用于获取最新市场动态、查找政策公告、分析板块相关新闻。`

// NewNewsTool builds get_news over the news store.
func NewNewsTool(store NewsQuerier, loc *time.Location) tool.InvokableTool {
	if loc == nil {
		loc = time.Local
	}
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "get_news",
			Desc: newsToolDesc,
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"keyword": {
					Type: schema.String,
					Desc: "搜索关键词，在标题、内容和相关板块中匹配",
				},
				"source": {
					Type: schema.String,
					Desc: "新闻来源",
					Enum: newsSourceEnum,
				},
				"category": {
					Type: schema.String,
					Desc: "新闻分类",
					Enum: newsCategoryEnum,
				},
				"hours": {
					Type: schema.Integer,
					Desc: "获取最近多少小时的新闻，默认24",
				},
				"min_importance": {
					Type: schema.Integer,
					Desc: "最小重要性(1-5)，默认1",
				},
				"limit": {
					Type: schema.Integer,
					Desc: "返回数量限制，默认20",
				},
			}),
		},
		func(ctx context.Context, in NewsInput) (string, error) {
			if in.Hours <= 0 {
				in.Hours = 24
			}
			if in.Limit <= 0 {
				in.Limit = 20
			}
			if in.MinImportance <= 0 {
				in.MinImportance = 1
			}
			articles, err := store.Query(ctx, models.NewsQuery{
				Keyword:       in.Keyword,
				Source:        in.Source,
				Category:      in.Category,
				Hours:         in.Hours,
				MinImportance: in.MinImportance,
				Limit:         in.Limit,
			})
			if err != nil {
				return "", fmt.Errorf("获取新闻失败: %w", err)
			}
			return formatNews(articles, loc), nil
		},
	)
}

func formatNews(articles []models.NewsArticle, loc *time.Location) string {
	if len(articles) == 0 {
		return "没有找到符合条件的新闻。"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "找到 %d 条新闻：\n\n", len(articles))
	for i, a := range articles {
		name := a.SourceName
		if name == "" {
			name = a.Source
		}
		summary := a.Summary
		if summary == "" {
			summary = truncate(a.Content, 100)
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, name, a.Title)
		fmt.Fprintf(&b, "   时间: %s\n", a.PublishTime.In(loc).Format("2006-01-02 15:04"))
		fmt.Fprintf(&b, "   摘要: %s...\n", summary)
		fmt.Fprintf(&b, "   重要性: %d/5\n\n", a.Importance)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
