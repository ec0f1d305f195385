package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortexmarket/internal/dataflows"
	"github.com/dyike/cortexmarket/internal/service"
	"github.com/dyike/cortexmarket/models"
)

type fakeIndices struct {
	mu        sync.Mutex
	failCodes map[string]bool
	refreshed []string
	history   []int
}

func (f *fakeIndices) Matrix() map[string][]dataflows.IndexInfo {
	return map[string][]dataflows.IndexInfo{
		"CN": {{Code: "sh000001", Market: "CN"}},
		"HK": {{Code: "HSI", Market: "HK"}},
	}
}

func (f *fakeIndices) Index(_ context.Context, market, code string, useCache bool) (models.IndexQuote, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, market+"/"+code)
	if useCache {
		return models.IndexQuote{}, false, errors.New("cache must be bypassed")
	}
	if f.failCodes[code] {
		return models.IndexQuote{}, false, errors.New("timeout")
	}
	return models.IndexQuote{Quote: models.Quote{Code: code}}, true, nil
}

func (f *fakeIndices) IndexHistory(_ context.Context, market, code string, days int, useCache bool) service.Result[models.IndexQuote] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, days)
	return service.Result[models.IndexQuote]{Source: service.SourceProvider}
}

func TestMarketJobWarmsHistoryOnce(t *testing.T) {
	src := &fakeIndices{}
	job := NewMarketJob(src, time.Millisecond, time.Millisecond, []int{7, 30})
	ctx := context.Background()

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, []string{"CN/sh000001", "HK/HSI"}, src.refreshed)
	assert.Equal(t, []int{7, 30, 7, 30}, src.history)

	require.NoError(t, job.Run(ctx))
	assert.Len(t, src.refreshed, 4)
	assert.Len(t, src.history, 4, "warm-up fires once")
}

func TestMarketJobFailsOnlyWhenEverythingFails(t *testing.T) {
	src := &fakeIndices{failCodes: map[string]bool{"HSI": true}}
	job := NewMarketJob(src, 0, 0, nil)
	require.NoError(t, job.Run(context.Background()))

	src.failCodes["sh000001"] = true
	assert.Error(t, job.Run(context.Background()))
}

func TestMarketJobStopsOnCancel(t *testing.T) {
	src := &fakeIndices{}
	job := NewMarketJob(src, time.Hour, time.Hour, []int{7})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, src.refreshed, 1)
}

type fakeSyncer struct {
	class  models.AssetClass
	users  []string
	synced []string
	fail   map[string]bool
	at     time.Time
}

func (f *fakeSyncer) Class() models.AssetClass { return f.class }

func (f *fakeSyncer) WatchlistUsers(context.Context) ([]string, error) { return f.users, nil }

func (f *fakeSyncer) SyncWatchlist(_ context.Context, user string, now time.Time) (int, error) {
	f.synced = append(f.synced, user)
	f.at = now
	if f.fail[user] {
		return 0, errors.New("provider down")
	}
	return 1, nil
}

func TestWatchlistJobGatedByTradingHours(t *testing.T) {
	stock := &fakeSyncer{class: models.ClassStock, users: []string{"alice", "bob"}}
	gold := &fakeSyncer{class: models.ClassGold, users: []string{"carol"}, fail: map[string]bool{"carol": true}}
	cst := time.FixedZone("CST", 8*3600)
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, cst)

	job := NewWatchlistJob([]service.WatchlistSyncer{stock, gold}, service.IsTradingTime, time.Millisecond)
	job.now = func() time.Time { return now }

	err := job.Run(context.Background())
	assert.Error(t, err, "per-user failures are reported")
	assert.Equal(t, []string{"alice", "bob"}, stock.synced)
	assert.Equal(t, []string{"carol"}, gold.synced)
	assert.True(t, stock.at.Equal(now))

	// Saturday: nothing runs
	now = time.Date(2024, 3, 2, 10, 0, 0, 0, cst)
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, stock.synced, 2)

	// lunch break
	now = time.Date(2024, 3, 4, 12, 0, 0, 0, cst)
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, stock.synced, 2)
}

type fakeFunds struct {
	hot, lof, ranking, summary int
	fail                       bool
}

func (f *fakeFunds) GetRealtime(_ context.Context, flt models.Filter, useCache bool) service.Result[models.FundQuote] {
	if flt.Category == dataflows.FundCategoryLOF {
		f.lof++
	}
	return service.Result[models.FundQuote]{Source: service.SourceProvider}
}

func (f *fakeFunds) TypeSummary(context.Context, bool) ([]service.FundTypeStat, error) {
	f.summary++
	if f.fail {
		return nil, service.ErrProviderUnavailable
	}
	return []service.FundTypeStat{{FundType: "指数型"}}, nil
}

func (f *fakeFunds) HotETFs(context.Context, int, bool) service.Result[models.FundQuote] {
	f.hot++
	if f.fail {
		return service.Result[models.FundQuote]{Source: service.SourceNone, Err: service.ErrProviderUnavailable}
	}
	return service.Result[models.FundQuote]{Source: service.SourceProvider}
}

func (f *fakeFunds) Ranking(context.Context, int, bool) service.Result[models.FundQuote] {
	f.ranking++
	return service.Result[models.FundQuote]{Source: service.SourceProvider}
}

func TestETFJobWarmUpOnce(t *testing.T) {
	funds := &fakeFunds{}
	job := NewETFJob(funds)
	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, funds.hot)
	assert.Equal(t, 1, funds.lof)
	assert.Equal(t, 1, funds.ranking)
}

func TestFundJobs(t *testing.T) {
	funds := &fakeFunds{}
	require.NoError(t, FundSummary(funds)(context.Background()))
	funds.fail = true
	assert.ErrorIs(t, FundSummary(funds)(context.Background()), service.ErrProviderUnavailable)
	assert.ErrorIs(t, NewETFJob(funds).Run(context.Background()), service.ErrProviderUnavailable)

	assert.NoError(t, Refresh[models.FundQuote]("funds", funds)(context.Background()))
}

type fakeFeed struct {
	queries []string
}

func (f *fakeFeed) FetchAll(context.Context, int) []models.NewsArticle {
	return []models.NewsArticle{{URL: "https://www.cls.cn/detail/1", Title: "央行降准", Source: "cls"}}
}

func (f *fakeFeed) GoogleNews(_ context.Context, q string, _ int) ([]models.NewsArticle, error) {
	f.queries = append(f.queries, q)
	if q == "broken" {
		return nil, errors.New("rss 503")
	}
	return []models.NewsArticle{{URL: "https://news.example.com/" + q, Title: q, Source: "google"}}, nil
}

type fakeFinnhub struct{}

func (fakeFinnhub) GeneralNews(context.Context, string, int) ([]models.NewsArticle, error) {
	return []models.NewsArticle{{URL: "https://finnhub.io/n/1", Title: "Fed holds", Source: "finnhub"}}, nil
}

type fakeSink struct {
	got []models.NewsArticle
}

func (s *fakeSink) UpsertMany(_ context.Context, a []models.NewsArticle) (int, error) {
	s.got = append(s.got, a...)
	return len(a), nil
}

func TestNewsJobCollectsEverySource(t *testing.T) {
	feed := &fakeFeed{}
	sink := &fakeSink{}
	job := NewNewsJob(feed, fakeFinnhub{}, sink, []string{"A股", "broken"}, 10)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, []string{"A股", "broken"}, feed.queries)
	var sources []string
	for _, a := range sink.got {
		sources = append(sources, a.Source)
	}
	assert.Equal(t, []string{"cls", "google", "finnhub"}, sources)

	sink.got = nil
	require.NoError(t, NewNewsJob(feed, nil, sink, nil, 10).Run(context.Background()))
	assert.Len(t, sink.got, 1)
}

type countingSweeper struct{ calls, dropped int }

func (c *countingSweeper) Sweep() (int, bool) {
	c.calls++
	return c.dropped, true
}

func TestCacheSweepRunsBackendSweep(t *testing.T) {
	sw := &countingSweeper{dropped: 3}
	require.NoError(t, CacheSweep(sw)(context.Background()))
	require.NoError(t, CacheSweep(sw)(context.Background()))
	assert.Equal(t, 2, sw.calls)
}
