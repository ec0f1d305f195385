package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortexmarket/config"
	"github.com/dyike/cortexmarket/internal/service"
	"github.com/dyike/cortexmarket/models"
	"github.com/dyike/cortexmarket/pkg/app"
)

type recordingModel struct {
	reply  string
	inputs [][]*schema.Message
}

func (m *recordingModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.inputs = append(m.inputs, in)
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *recordingModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func (m *recordingModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// testEnv points every path of the default config into a temp dir.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PROJECT_DIR", dir)
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("DATA_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "data", "cli.db"))
	t.Setenv("CACHE_BACKEND", "file")
	t.Setenv("LLM_PROVIDER", "deepseek")
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("LONGPORT_APP_KEY", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

// seeded wraps app.Build and runs seed on the fresh app.
func seeded(cm model.ToolCallingChatModel, seed func(ctx context.Context, a *app.App)) Builder {
	return func(ctx context.Context, cfg config.Config, opts ...app.BuildOption) (*app.App, error) {
		if cm != nil {
			opts = append(opts, app.WithChatModel(cm))
		}
		a, err := app.Build(ctx, cfg, opts...)
		if err != nil {
			return nil, err
		}
		if seed != nil {
			seed(ctx, a)
		}
		return a, nil
	}
}

func run(t *testing.T, dir string, b Builder, args ...string) (string, error) {
	t.Helper()
	var opts []RootOption
	if b != nil {
		opts = append(opts, WithBuilder(b))
	}
	cmd := NewRootCmd(opts...)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--config-dir", dir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitOK, exitCode(terminal.InterruptErr))
	assert.Equal(t, exitInvalidInput, exitCode(fmt.Errorf("quote: %w", service.ErrInvalidCode)))
	assert.Equal(t, exitInvalidInput, exitCode(service.ErrInvalidArgument))
	assert.Equal(t, exitInvalidInput, exitCode(usageErrorf("bad flag")))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
}

func TestRunUnknownClassExitsWithUsage(t *testing.T) {
	dir := testEnv(t)
	assert.Equal(t, exitInvalidInput, Run([]string{"--config-dir", dir, "quote", "crypto"}))
	assert.Equal(t, exitOK, Run([]string{"--config-dir", dir, "version"}))
}

func TestQuoteServedFromCache(t *testing.T) {
	dir := testEnv(t)
	b := seeded(nil, func(ctx context.Context, a *app.App) {
		quotes := []models.StockQuote{{Quote: models.Quote{
			Time: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), Code: "000001", Name: "平安银行",
			Category: "CN", Close: 10.5, ChangePercent: 1.25,
		}}}
		a.Cache.Set(ctx, "stock:realtime:000001", quotes, time.Minute)
	})

	out, err := run(t, dir, b, "quote", "stock", "000001")
	require.NoError(t, err)
	assert.Contains(t, out, "000001")
	assert.Contains(t, out, "平安银行")
	assert.Contains(t, out, "+1.25%")
	assert.Contains(t, out, "(缓存)")
}

func TestQuoteRejectsBadCode(t *testing.T) {
	dir := testEnv(t)
	_, err := run(t, dir, nil, "quote", "stock", "00;01")
	require.Error(t, err)
	assert.Equal(t, exitInvalidInput, exitCode(err))
}

func TestHistoryValidatesFlags(t *testing.T) {
	dir := testEnv(t)
	_, err := run(t, dir, nil, "history", "stock", "000001", "--period", "hourly")
	assert.Equal(t, exitInvalidInput, exitCode(err))
	_, err = run(t, dir, nil, "history", "stock", "000001", "--days", "0")
	assert.Equal(t, exitInvalidInput, exitCode(err))
}

func TestWatchlistLifecycle(t *testing.T) {
	dir := testEnv(t)

	out, err := run(t, dir, nil, "watchlist", "add", "stock", "600519", "--user", "alice", "--name", "贵州茅台", "--category", "CN")
	require.NoError(t, err)
	assert.Contains(t, out, "已添加 600519")

	out, err = run(t, dir, nil, "watchlist", "add", "stock", "600519", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "已在")

	out, err = run(t, dir, nil, "watchlist", "list", "stock", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "600519")
	assert.Contains(t, out, "贵州茅台")

	// each run is its own process; the scoped view cached by one run is
	// invalidated by the next run's add
	out, err = run(t, dir, nil, "watchlist", "list", "stock", "--user", "alice", "--scope", "cn")
	require.NoError(t, err)
	assert.Contains(t, out, "600519")
	_, err = run(t, dir, nil, "watchlist", "add", "stock", "000858", "--user", "alice", "--name", "五粮液", "--category", "CN")
	require.NoError(t, err)
	out, err = run(t, dir, nil, "watchlist", "list", "stock", "--user", "alice", "--scope", "cn")
	require.NoError(t, err)
	assert.Contains(t, out, "000858")
	assert.Contains(t, out, "600519")

	out, err = run(t, dir, nil, "watchlist", "list", "stock", "--user", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "自选列表为空")

	out, err = run(t, dir, nil, "watchlist", "update", "stock", "600519", "--user", "alice", "--sort", "3", "--notes", "长期")
	require.NoError(t, err)
	assert.Contains(t, out, "排序 3")

	_, err = run(t, dir, nil, "watchlist", "update", "stock", "600519", "--user", "alice")
	assert.Equal(t, exitInvalidInput, exitCode(err))

	out, err = run(t, dir, nil, "watchlist", "rm", "stock", "600519", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "已移除")

	out, err = run(t, dir, nil, "watchlist", "remove", "stock", "600519", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "不在")
}

func TestNewsQuery(t *testing.T) {
	dir := testEnv(t)
	b := seeded(nil, func(ctx context.Context, a *app.App) {
		_, err := a.Stores.News.UpsertMany(ctx, []models.NewsArticle{
			{Source: "pbc", SourceName: "中国人民银行", Title: "央行宣布降准0.5个百分点", URL: "https://example.com/a",
				Category: models.NewsCategoryPolicy, Importance: 5, PublishTime: time.Now().Add(-time.Hour)},
			{Source: "cls", SourceName: "财联社", Title: "两市成交额突破万亿", URL: "https://example.com/b",
				Category: models.NewsCategoryNews, Importance: 3, PublishTime: time.Now().Add(-2 * time.Hour)},
		})
		require.NoError(t, err)
	})

	out, err := run(t, dir, b, "news", "--keyword", "降准")
	require.NoError(t, err)
	assert.Contains(t, out, "央行宣布降准")
	assert.NotContains(t, out, "两市成交额")

	out, err = run(t, dir, b, "news", "--keyword", "不存在的关键词")
	require.NoError(t, err)
	assert.Contains(t, out, "没有找到符合条件的新闻")
}

func TestChatOneShotUsesPreferences(t *testing.T) {
	dir := testEnv(t)
	cm := &recordingModel{reply: "建议关注高股息板块。"}

	out, err := run(t, dir, seeded(cm, nil), "chat", "--user", "alice", "--pref", "risk=稳健", "-m", "最近市场怎么样？")
	require.NoError(t, err)
	assert.Contains(t, out, "建议关注高股息板块")
	assert.Contains(t, out, "思考中")

	require.Len(t, cm.inputs, 1)
	system := cm.inputs[0][0]
	assert.Equal(t, schema.System, system.Role)
	assert.Contains(t, system.Content, "risk: 稳健")
	last := cm.inputs[0][len(cm.inputs[0])-1]
	assert.Equal(t, "最近市场怎么样？", last.Content)
}

func TestAdviceWithoutLLM(t *testing.T) {
	dir := testEnv(t)
	out, err := run(t, dir, nil, "advice", "新能源")
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCode(err))
	assert.Contains(t, out, "未配置")
}

func TestConfigSetAndShow(t *testing.T) {
	dir := testEnv(t)

	out, err := run(t, dir, nil, "config", "set", "log_level=debug", "realtime_interval=15s", "tavily_api_key=tvly-abcdefghijkl")
	require.NoError(t, err)
	assert.Contains(t, out, "updated 3 key(s)")

	out, err = run(t, dir, nil, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"log_level": "debug"`)
	assert.Contains(t, out, `"realtime_interval": "15s"`)
	assert.Contains(t, out, "tvly****ijkl")
	assert.NotContains(t, out, "tvly-abcdefghijkl")

	_, err = run(t, dir, nil, "config", "set", "db_driver=oracle")
	assert.Equal(t, exitInvalidInput, exitCode(err))
	_, err = run(t, dir, nil, "config", "set", "log_levle=debug")
	assert.Equal(t, exitInvalidInput, exitCode(err))
	_, err = run(t, dir, nil, "config", "set", "log_level")
	assert.Equal(t, exitInvalidInput, exitCode(err))
}

func TestParseAssignments(t *testing.T) {
	patch, err := parseAssignments([]string{"sync_enabled=false", "news_queries=[\"A股\"]", "llm_model=qwen-plus"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sync_enabled":false,"news_queries":["A股"],"llm_model":"qwen-plus"}`, patch)
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "-", sparkline(nil))
	assert.Equal(t, "▁▁", sparkline([]float64{3, 3}))
	assert.Equal(t, "▁█", sparkline([]float64{1, 2}))
	assert.True(t, strings.HasPrefix(sparkline([]float64{1, 5, 9}), "▁"))
}
