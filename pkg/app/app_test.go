package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortexmarket/config"
	"github.com/dyike/cortexmarket/internal/agents"
	"github.com/dyike/cortexmarket/models"
)

type replyModel struct {
	reply string
	bound []*schema.ToolInfo
}

func (m *replyModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *replyModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func (m *replyModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.bound = tools
	return m, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := *config.DefaultConfig()
	cfg.ProjectDir = dir
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DataCacheDir = filepath.Join(dir, "cache")
	cfg.DBDriver = "sqlite"
	cfg.DBPath = filepath.Join(dir, "data", "app.db")
	cfg.CacheBackend = "memory"
	cfg.LogLevel = "info"
	cfg.DeepSeekAPIKey = ""
	cfg.OpenAIAPIKey = ""
	cfg.LongportAppKey = ""
	cfg.NewsSyncCron = "@every 6h"
	return cfg
}

func TestBuildWiresAgentSessions(t *testing.T) {
	ctx := context.Background()
	cm := &replyModel{reply: "推荐方向：关注红利资产的投资机会。"}

	var phases []agents.Phase
	a, err := Build(ctx, testConfig(t), WithChatModel(cm), WithObserver(func(e agents.Event) {
		phases = append(phases, e.Phase)
	}))
	require.NoError(t, err)
	defer a.Close()

	assert.ElementsMatch(t, []string{"get_news", "web_search"}, a.Tools.Names())
	assert.Len(t, cm.bound, 2)

	agent, err := a.Agent(ctx, "alice", "")
	require.NoError(t, err)
	require.NotEmpty(t, agent.SessionID())

	reply, err := agent.Chat(ctx, "现在适合投资什么？")
	require.NoError(t, err)
	assert.Equal(t, cm.reply, reply)
	assert.Equal(t, []agents.Phase{agents.PhaseReasoning, agents.PhaseFinalAnswer}, phases)

	again, err := a.Agent(ctx, "alice", agent.SessionID())
	require.NoError(t, err)
	assert.Same(t, agent, again)
	assert.Len(t, again.History(ctx), 2)

	_, err = a.Agent(ctx, "bob", agent.SessionID())
	assert.ErrorIs(t, err, agents.ErrSessionOwner)

	recs, err := a.Stores.Memory.List(ctx, "alice", models.MemoryRecommendation, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "现在适合投资什么？", recs[0].Metadata["query"])
}

func TestBuildWithoutLLMKey(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	agent, err := a.Agent(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.False(t, agent.Configured())
	_, err = agent.Chat(ctx, "hi")
	assert.ErrorIs(t, err, agents.ErrNotConfigured)

	_, err = a.Agent(ctx, "", "s1")
	assert.Error(t, err)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBDriver = "oracle"
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewSchedulerRegistersJobs(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), WithChatModel(&replyModel{}))
	require.NoError(t, err)
	defer a.Close()

	s, err := a.NewScheduler()
	require.NoError(t, err)
	var names []string
	for _, st := range s.Stats() {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{"cache_sweep", "etf", "funds", "futures", "gold", "market_indices", "news", "watchlist"}, names)
}

func TestRuntimeAppliesUpdates(t *testing.T) {
	cfg := testConfig(t)
	mgr, err := config.NewManager(config.WithConfigDir(cfg.DataDir), config.WithBase(&cfg), config.WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	var topics []string
	rt, err := NewRuntime(context.Background(), mgr, WithNotifier(func(topic string, _ config.Config) {
		topics = append(topics, topic)
	}))
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, "info", rt.Config().LogLevel)
	require.NoError(t, rt.UpdateConfigJSON(`{"log_level":"debug"}`))
	assert.Equal(t, "debug", rt.Config().LogLevel)
	assert.Equal(t, uint64(1), rt.Reloads())
	assert.Equal(t, []string{"config.reloaded"}, topics)

	assert.Error(t, rt.UpdateConfigJSON(`{"cache_backend":"memcached"}`))
	assert.Equal(t, "debug", rt.Config().LogLevel)
	ApplyLogLevel("info")
}
