package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/config"
	"github.com/dyike/cortexmarket/internal/agents"
	"github.com/dyike/cortexmarket/internal/agents/memory"
	"github.com/dyike/cortexmarket/internal/cache"
	"github.com/dyike/cortexmarket/internal/dataflows"
	"github.com/dyike/cortexmarket/internal/scheduler"
	"github.com/dyike/cortexmarket/internal/service"
	"github.com/dyike/cortexmarket/internal/storage"
	"github.com/dyike/cortexmarket/internal/tasks"
	"github.com/dyike/cortexmarket/internal/tools"
)

const conversationWindow = 20

// App is one fully wired instance: cache, durable store, vendor providers,
// asset services, agent tools and the session registry.
type App struct {
	Config    config.Config
	Cache     *cache.Cache
	Stores    *storage.Stores
	Providers *dataflows.Providers
	Services  *service.Services
	Tools     *tools.Registry
	Sessions  *agents.Registry
	LongTerm  *memory.LongTerm

	BuiltAt time.Time
	Version uint64

	chatModel model.ToolCallingChatModel
	observer  func(agents.Event)
}

var buildSeq atomic.Uint64

type buildOptions struct {
	chatModel model.ToolCallingChatModel
	observer  func(agents.Event)
	providers *dataflows.Providers
}

type BuildOption func(*buildOptions)

// WithChatModel skips provider lookup and uses cm for every agent.
func WithChatModel(cm model.ToolCallingChatModel) BuildOption {
	return func(o *buildOptions) { o.chatModel = cm }
}

// WithObserver receives the loop events of every agent.
func WithObserver(fn func(agents.Event)) BuildOption {
	return func(o *buildOptions) { o.observer = fn }
}

func WithProviders(p *dataflows.Providers) BuildOption {
	return func(o *buildOptions) { o.providers = p }
}

// Build wires an App from cfg. Missing LLM credentials are not an error:
// agents then answer with a configuration hint.
func Build(ctx context.Context, cfg config.Config, opts ...BuildOption) (*App, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	db, err := storage.OpenConfig(&cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.NewStores(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Cache:     cache.NewFromConfig(&cfg),
		Stores:    st,
		Providers: o.providers,
		LongTerm:  memory.NewLongTerm(st.Memory),
		BuiltAt:   time.Now(),
		Version:   buildSeq.Add(1),
		chatModel: o.chatModel,
		observer:  o.observer,
	}
	if a.Providers == nil {
		a.Providers = dataflows.NewProviders(&cfg)
	}
	a.Services = service.NewServices(&cfg, a.Cache, st, a.Providers)

	a.Tools, err = tools.NewRegistry(ctx,
		tools.NewNewsTool(st.News, cfg.Location()),
		tools.NewSearchTool(a.Providers.Tavily),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	if a.chatModel == nil {
		a.chatModel, err = agents.NewChatModel(ctx, &cfg)
		switch {
		case errors.Is(err, agents.ErrNotConfigured):
			logx.Infof("app: llm provider %s has no api key, agent disabled", cfg.LLMProvider)
		case err != nil:
			a.Close()
			return nil, err
		}
	}

	a.Sessions, err = agents.NewRegistry(cfg.SessionLimit, cfg.SessionIdleTTL.Std(), a.newAgent)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) newAgent(ctx context.Context, userID, sessionID string) (*agents.InvestmentAgent, error) {
	conv := memory.NewConversation(a.Cache, conversationWindow, a.Config.SessionIdleTTL.Std())
	return agents.NewInvestmentAgent(userID, sessionID, a.chatModel, a.Tools, conv, a.LongTerm, agents.Options{
		MaxIterations: a.Config.AgentMaxIter,
		Temperature:   a.Config.LLMTemperature,
		MaxTokens:     a.Config.LLMMaxTokens,
		CallTimeout:   a.Config.LLMTimeout.Std(),
		Observer:      a.observer,
	})
}

// Agent returns the session's agent, creating the session on first use.
func (a *App) Agent(ctx context.Context, userID, sessionID string) (*agents.InvestmentAgent, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", service.ErrInvalidArgument)
	}
	return a.Sessions.Get(ctx, userID, sessionID)
}

// NewScheduler builds a scheduler with every sync job registered.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(scheduler.WithLocation(a.Config.Location()))
	if err := tasks.Register(s, &a.Config, a.Cache, a.Services, a.Stores, a.Providers); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *App) Close() {
	if a.Providers != nil {
		a.Providers.Close()
	}
	if err := a.Stores.Close(); err != nil {
		logx.Errorf("app: close store: %v", err)
	}
}
