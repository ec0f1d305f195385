package tools

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortexmarket/internal/dataflows"
	"github.com/dyike/cortexmarket/internal/storage"
	"github.com/dyike/cortexmarket/models"
)

func newNewsStore(t *testing.T) *storage.NewsStore {
	t.Helper()
	db, err := storage.Open("sqlite", filepath.Join(t.TempDir(), "news.db"))
	require.NoError(t, err)
	st, err := storage.NewStores(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st.News
}

type fakeSearcher struct {
	configured bool
	err        error
	query      string
	depth      string
	max        int
}

func (f *fakeSearcher) Configured() bool { return f.configured }

func (f *fakeSearcher) Search(_ context.Context, query, depth string, max int) (*dataflows.TavilyResponse, error) {
	f.query, f.depth, f.max = query, depth, max
	if f.err != nil {
		return nil, f.err
	}
	return &dataflows.TavilyResponse{
		Answer:  "半导体板块近期走强",
		Results: []dataflows.TavilyResult{{Title: "芯片产业链景气回升", URL: "https://example.com/a", Content: "国产替代加速"}},
	}, nil
}

func newRegistry(t *testing.T, store NewsQuerier, searcher WebSearcher) *Registry {
	t.Helper()
	r, err := NewRegistry(context.Background(), NewNewsTool(store, time.UTC), NewSearchTool(searcher))
	require.NoError(t, err)
	return r
}

func TestRegistrySchemas(t *testing.T) {
	r := newRegistry(t, newNewsStore(t), &fakeSearcher{})
	assert.Equal(t, []string{"get_news", "web_search"}, r.Names())
	require.Len(t, r.Infos(), 2)
	assert.Contains(t, r.Infos()[0].Desc, "财联社")

	_, err := NewRegistry(context.Background(), NewSearchTool(nil), NewSearchTool(nil))
	assert.Error(t, err)
}

func TestGetNews(t *testing.T) {
	ctx := context.Background()
	store := newNewsStore(t)
	now := time.Now()
	_, err := store.UpsertMany(ctx, []models.NewsArticle{
		{Source: "pbc", SourceName: "中国人民银行", Title: "央行宣布降准0.5个百分点", Summary: "释放长期资金", URL: "https://pbc.example/1",
			Category: models.NewsCategoryPolicy, Importance: 5, PublishTime: now.Add(-time.Hour), Active: true},
		{Source: "cls", SourceName: "财联社", Title: "半导体板块午后拉升", Content: "芯片股走强", URL: "https://cls.example/2",
			Category: models.NewsCategoryNews, Importance: 2, RelatedSectors: "半导体", PublishTime: now.Add(-2 * time.Hour), Active: true},
		{Source: "cls", Title: "三天前的旧闻", URL: "https://cls.example/3", Importance: 3, PublishTime: now.Add(-72 * time.Hour), Active: true},
	})
	require.NoError(t, err)
	r := newRegistry(t, store, &fakeSearcher{})

	out := r.Execute(ctx, "get_news", `{}`)
	assert.Contains(t, out, "找到 2 条新闻")
	assert.Contains(t, out, "1. [中国人民银行] 央行宣布降准0.5个百分点")
	assert.Contains(t, out, "重要性: 5/5")
	assert.NotContains(t, out, "旧闻")

	out = r.Execute(ctx, "get_news", `{"source":"cls","hours":100}`)
	assert.Contains(t, out, "找到 2 条新闻")

	out = r.Execute(ctx, "get_news", `{"keyword":"半导体","min_importance":2}`)
	assert.Contains(t, out, "[财联社] 半导体板块午后拉升")
	assert.Contains(t, out, "摘要: 芯片股走强...")

	out = r.Execute(ctx, "get_news", `{"category":"data"}`)
	assert.Equal(t, "没有找到符合条件的新闻。", out)

	// broken arguments fall back to defaults
	out = r.Execute(ctx, "get_news", `{"keyword":`)
	assert.Contains(t, out, "找到 2 条新闻")
}

func TestWebSearch(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{configured: true}
	r := newRegistry(t, newNewsStore(t), searcher)

	out := r.Execute(ctx, "web_search", `{"query":"半导体"}`)
	assert.Contains(t, out, "【摘要】半导体板块近期走强")
	assert.Contains(t, out, "1. 芯片产业链景气回升")
	assert.Equal(t, "半导体 财经 投资", searcher.query)
	assert.Equal(t, "basic", searcher.depth)
	assert.Equal(t, 5, searcher.max)

	out = r.Execute(ctx, "web_search", `{}`)
	assert.Contains(t, out, "工具执行失败")

	searcher.err = errors.New("429 too many requests")
	out = r.Execute(ctx, "web_search", `{"query":"军工","search_depth":"advanced","max_results":3}`)
	assert.Contains(t, out, "工具执行失败")
	assert.Contains(t, out, "429 too many requests")
	assert.Equal(t, "advanced", searcher.depth)

	searcher.configured = false
	out = r.Execute(ctx, "web_search", `{"query":"军工"}`)
	assert.Contains(t, out, "TAVILY_API_KEY")
}

func TestUnknownTool(t *testing.T) {
	r := newRegistry(t, newNewsStore(t), &fakeSearcher{})
	assert.Equal(t, "未知工具: get_weather", r.Execute(context.Background(), "get_weather", `{}`))
}

type panickingSearcher struct{}

func (panickingSearcher) Configured() bool { return true }

func (panickingSearcher) Search(context.Context, string, string, int) (*dataflows.TavilyResponse, error) {
	panic("nil response body")
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	r := newRegistry(t, newNewsStore(t), panickingSearcher{})
	var out string
	require.NotPanics(t, func() {
		out = r.Execute(context.Background(), "web_search", `{"query":"芯片"}`)
	})
	assert.Contains(t, out, "工具执行失败")
	assert.Contains(t, out, "nil response body")
}

func TestSearchToolWithTypedNilClient(t *testing.T) {
	var client *dataflows.TavilyClient
	r := newRegistry(t, newNewsStore(t), client)
	out := r.Execute(context.Background(), "web_search", `{"query":"芯片"}`)
	assert.Contains(t, out, "TAVILY_API_KEY")
}
