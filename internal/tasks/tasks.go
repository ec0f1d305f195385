package tasks

import (
	"time"

	"github.com/dyike/cortexmarket/config"
	"github.com/dyike/cortexmarket/internal/cache"
	"github.com/dyike/cortexmarket/internal/dataflows"
	"github.com/dyike/cortexmarket/internal/scheduler"
	"github.com/dyike/cortexmarket/internal/service"
	"github.com/dyike/cortexmarket/internal/storage"
	"github.com/dyike/cortexmarket/models"
)

const (
	maxBackoff = 5 * time.Minute
	sweepEvery = 10 * time.Minute
)

// Register wires every background sync job into s.
func Register(s *scheduler.Scheduler, cfg *config.Config, c *cache.Cache, svcs *service.Services, st *storage.Stores, p *dataflows.Providers) error {
	fast := cfg.RealtimeInterval.Std()
	slow := cfg.SlowInterval.Std()
	pacing := cfg.PacingDelay.Std()

	market := NewMarketJob(svcs.Market, pacing, cfg.HistoryPacing.Std(), cfg.HistoryWarmupDays)
	watch := NewWatchlistJob(svcs.Watchlists(), svcs.IsTradingNow, pacing)
	etf := NewETFJob(svcs.Fund)

	tasks := []scheduler.Task{
		{Name: "market_indices", Interval: fast, MaxBackoff: maxBackoff, Run: market.Run},
		{Name: "gold", Interval: fast, MaxBackoff: maxBackoff, Run: Refresh[models.GoldQuote]("gold", svcs.Gold)},
		{Name: "futures", Interval: fast, MaxBackoff: maxBackoff, Run: Refresh[models.FuturesQuote]("futures", svcs.Futures)},
		{Name: "funds", Interval: slow, MaxBackoff: maxBackoff, Run: FundSummary(svcs.Fund)},
		{Name: "watchlist", Interval: fast, Run: watch.Run},
		{Name: "etf", Interval: slow, MaxBackoff: maxBackoff, Run: etf.Run},
	}
	if _, ok := c.Backend().(cache.Sweeper); ok {
		tasks = append(tasks, scheduler.Task{Name: "cache_sweep", Interval: sweepEvery, Run: CacheSweep(c)})
	}
	if cfg.NewsSyncCron != "" {
		tasks = append(tasks, scheduler.Task{Name: "news", Cron: cfg.NewsSyncCron, Run: NewsJobFor(cfg, st, p).Run})
	}
	for _, t := range tasks {
		if err := s.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// NewsJobFor builds the news ingestion job over the configured feeds.
// Finnhub joins only when it has an API key.
func NewsJobFor(cfg *config.Config, st *storage.Stores, p *dataflows.Providers) *NewsJob {
	var finnhub GeneralNews
	if p.Finnhub != nil && p.Finnhub.Configured() {
		finnhub = p.Finnhub
	}
	return NewNewsJob(p.News, finnhub, st.News, cfg.NewsQueries, newsPerSource)
}
