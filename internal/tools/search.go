package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortexmarket/internal/dataflows"
)

type WebSearcher interface {
	Configured() bool
	Search(ctx context.Context, query, depth string, maxResults int) (*dataflows.TavilyResponse, error)
}

type SearchInput struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

const searchToolDesc = `搜索互联网获取最新信息。适用于查找数据库中没有的最新新闻、特定公司或行业的最新动态、实时市场信息。
优先使用 get_news 获取数据库中的新闻，需要更多信息时再使用此工具。`

// NewSearchTool builds web_search over Tavily. Finance terms are appended
// to every query.
func NewSearchTool(searcher WebSearcher) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "web_search",
			Desc: searchToolDesc,
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "搜索查询词，建议使用中文或英文关键词组合",
					Required: true,
				},
				"search_depth": {
					Type: schema.String,
					Desc: "搜索深度: basic(快速) 或 advanced(深度)",
					Enum: []string{"basic", "advanced"},
				},
				"max_results": {
					Type: schema.Integer,
					Desc: "返回结果数量，默认5",
				},
			}),
		},
		func(ctx context.Context, in SearchInput) (string, error) {
			if searcher == nil || !searcher.Configured() {
				return "搜索工具未配置，请设置 TAVILY_API_KEY 环境变量。", nil
			}
			if strings.TrimSpace(in.Query) == "" {
				return "", errors.New("query is required")
			}
			if in.SearchDepth != "advanced" {
				in.SearchDepth = "basic"
			}
			if in.MaxResults <= 0 {
				in.MaxResults = 5
			}
			resp, err := searcher.Search(ctx, in.Query+" 财经 投资", in.SearchDepth, in.MaxResults)
			if err != nil {
				return "", fmt.Errorf("搜索失败: %w", err)
			}
			return formatSearch(resp), nil
		},
	)
}

func formatSearch(resp *dataflows.TavilyResponse) string {
	var b strings.Builder
	if resp.Answer != "" {
		fmt.Fprintf(&b, "【摘要】%s\n\n", resp.Answer)
	}
	if len(resp.Results) == 0 {
		b.WriteString("没有找到相关信息。")
		return b.String()
	}
	fmt.Fprintf(&b, "找到 %d 条相关信息：\n\n", len(resp.Results))
	for i, r := range resp.Results {
		title := r.Title
		if title == "" {
			title = "无标题"
		}
		fmt.Fprintf(&b, "%d. %s\n   来源: %s\n   内容: %s...\n\n", i+1, title, r.URL, truncate(r.Content, 200))
	}
	return b.String()
}
