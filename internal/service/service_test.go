package service

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortexmarket/internal/cache"
	"github.com/dyike/cortexmarket/internal/storage"
	"github.com/dyike/cortexmarket/models"
)

type fakeProvider[R models.Record] struct {
	realtime func(models.Filter) ([]R, error)
	history  func(string, models.HistoryRange) ([]R, error)
	search   func(string) ([]R, error)
	calls    int
}

func (f *fakeProvider[R]) Realtime(_ context.Context, flt models.Filter) ([]R, error) {
	f.calls++
	if f.realtime == nil {
		return nil, errors.New("upstream down")
	}
	return f.realtime(flt)
}

func (f *fakeProvider[R]) History(_ context.Context, code string, hr models.HistoryRange) ([]R, error) {
	f.calls++
	if f.history == nil {
		return nil, errors.New("upstream down")
	}
	return f.history(code, hr)
}

func (f *fakeProvider[R]) Search(_ context.Context, kw string) ([]R, error) {
	f.calls++
	if f.search == nil {
		return nil, errors.New("upstream down")
	}
	return f.search(kw)
}

type downBackend struct{}

func (downBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("redis: connection refused")
}
func (downBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis: connection refused")
}
func (downBackend) Delete(context.Context, string) error {
	return errors.New("redis: connection refused")
}
func (downBackend) Exists(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func newTestStores(t *testing.T) *storage.Stores {
	t.Helper()
	db, err := storage.Open("sqlite", filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	st, err := storage.NewStores(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func stockQuote(code string, ts time.Time, price float64) models.StockQuote {
	return models.StockQuote{
		Quote: models.Quote{
			Time: ts, Code: code, Name: "平安银行", Category: "CN",
			Open: price, High: price, Low: price, Close: price, Volume: 100,
		},
		Market: "CN",
	}
}

func newStockService(t *testing.T, c *cache.Cache, p Provider[models.StockQuote]) (*AssetService[models.StockQuote], *storage.Stores) {
	st := newTestStores(t)
	opts := DefaultOptions()
	opts.WatchlistScopes = []string{"CN", "HK", "US"}
	svc := NewAssetService[models.StockQuote](models.ClassStock, p, st.Stock, st.Watchlist, c, opts)
	svc.now = func() time.Time { return t0 }
	return svc, st
}

func TestRealtimeWritesThroughStoreAndCache(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryBackend()
	c := cache.New(mem)
	p := &fakeProvider[models.StockQuote]{realtime: func(f models.Filter) ([]models.StockQuote, error) {
		return []models.StockQuote{stockQuote("000001", t0, 10.5)}, nil
	}}
	svc, st := newStockService(t, c, p)

	res := svc.GetRealtime(ctx, models.Filter{Codes: []string{"000001"}}, true)
	require.NoError(t, res.Err)
	assert.Equal(t, SourceProvider, res.Source)
	require.Len(t, res.Records, 1)

	assert.True(t, c.Exists(ctx, "stock:realtime:000001"))
	stored, ok, err := st.Stock.Latest(ctx, "000001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 10.5, stored.Close, 1e-9)
	assert.True(t, stored.Time.Equal(t0))

	again := svc.GetRealtime(ctx, models.Filter{Codes: []string{"000001"}}, true)
	assert.Equal(t, SourceCache, again.Source)
	assert.Equal(t, 1, p.calls)
	assert.True(t, again.Records[0].Time.Equal(t0))

	// useCache=false always goes upstream
	svc.GetRealtime(ctx, models.Filter{Codes: []string{"000001"}}, false)
	assert.Equal(t, 2, p.calls)
}

func TestRealtimeCategoryKey(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryBackend())
	p := &fakeProvider[models.StockQuote]{realtime: func(f models.Filter) ([]models.StockQuote, error) {
		return []models.StockQuote{stockQuote("000001", t0, 10)}, nil
	}}
	svc, _ := newStockService(t, c, p)
	svc.GetRealtime(ctx, models.Filter{Category: "CN"}, true)
	assert.True(t, c.Exists(ctx, "stock:realtime:all:CN"))
}

func TestRealtimeFallsBackToCacheThenStore(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryBackend())
	up := true
	p := &fakeProvider[models.StockQuote]{realtime: func(f models.Filter) ([]models.StockQuote, error) {
		if !up {
			return nil, errors.New("timeout")
		}
		return []models.StockQuote{stockQuote("000001", t0, 10.5)}, nil
	}}
	svc, _ := newStockService(t, c, p)
	flt := models.Filter{Codes: []string{"000001"}}
	require.Equal(t, SourceProvider, svc.GetRealtime(ctx, flt, true).Source)

	up = false
	res := svc.GetRealtime(ctx, flt, false)
	assert.Equal(t, SourceCache, res.Source)
	assert.Error(t, res.Err)
	require.Len(t, res.Records, 1)

	c.Delete(ctx, "stock:realtime:000001")
	res = svc.GetRealtime(ctx, flt, false)
	assert.Equal(t, SourceStore, res.Source)
	require.Len(t, res.Records, 1)
	assert.InDelta(t, 10.5, res.Records[0].Close, 1e-9)

	res = svc.GetRealtime(ctx, models.Filter{Codes: []string{"600519"}}, true)
	assert.Equal(t, SourceNone, res.Source)
	assert.Empty(t, res.Records)
	assert.Error(t, res.Err)
}

func TestRealtimeSurvivesCacheOutage(t *testing.T) {
	ctx := context.Background()
	c := cache.New(downBackend{})
	up := true
	p := &fakeProvider[models.StockQuote]{realtime: func(f models.Filter) ([]models.StockQuote, error) {
		if !up {
			return nil, errors.New("timeout")
		}
		return []models.StockQuote{stockQuote("000001", t0, 11)}, nil
	}}
	svc, _ := newStockService(t, c, p)

	res := svc.GetRealtime(ctx, models.Filter{Codes: []string{"000001"}}, true)
	assert.Equal(t, SourceProvider, res.Source)
	require.Len(t, res.Records, 1)

	up = false
	res = svc.GetRealtime(ctx, models.Filter{Codes: []string{"000001"}}, true)
	assert.Equal(t, SourceStore, res.Source)
	require.Len(t, res.Records, 1)
}

func TestProviderEmptyIsAFailure(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider[models.StockQuote]{realtime: func(f models.Filter) ([]models.StockQuote, error) {
		return nil, nil
	}}
	svc, _ := newStockService(t, cache.New(cache.NewMemoryBackend()), p)
	res := svc.GetRealtime(ctx, models.Filter{}, true)
	assert.Equal(t, SourceNone, res.Source)
	assert.ErrorIs(t, res.Err, ErrProviderUnavailable)
}

func TestGetDetail(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider[models.StockQuote]{realtime: func(f models.Filter) ([]models.StockQuote, error) {
		if f.Codes[0] == "000001" {
			return []models.StockQuote{stockQuote("000001", t0, 10)}, nil
		}
		return nil, nil
	}}
	svc, _ := newStockService(t, cache.New(cache.NewMemoryBackend()), p)

	q, ok, err := svc.GetDetail(ctx, "000001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "000001", q.Code)

	_, ok, err = svc.GetDetail(ctx, "600519")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = svc.GetDetail(ctx, "6005 19")
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, _, err = svc.GetDetail(ctx, "")
	assert.True(t, IsInvalidInput(err))
}

func TestGetDetailMatchesOnlyNormalizedCodes(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider[models.StockQuote]{realtime: func(f models.Filter) ([]models.StockQuote, error) {
		switch f.Codes[0] {
		case "700":
			return []models.StockQuote{stockQuote("00700.HK", t0, 300)}, nil
		case "sh600519":
			return []models.StockQuote{stockQuote("600519", t0, 1700)}, nil
		}
		// vendor answered with some other instrument
		return []models.StockQuote{stockQuote("000002", t0, 8)}, nil
	}}
	svc, _ := newStockService(t, cache.New(cache.NewMemoryBackend()), p)

	q, ok, err := svc.GetDetail(ctx, "700")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "00700.HK", q.Code)

	q, ok, err = svc.GetDetail(ctx, "sh600519")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "600519", q.Code)

	_, ok, err = svc.GetDetail(ctx, "000001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanonicalCode(t *testing.T) {
	assert.Equal(t, "700", canonicalCode("00700.HK"))
	assert.Equal(t, "700", canonicalCode(" 0700 "))
	assert.Equal(t, "600519", canonicalCode("SH600519"))
	assert.Equal(t, "600519", canonicalCode("600519.SS"))
	assert.Equal(t, "AAPL", canonicalCode("aapl.us"))
	assert.Equal(t, "SHOP", canonicalCode("SHOP"))
	assert.Equal(t, "000", canonicalCode("000"))
}

func TestHistoryCacheAndStoreFallback(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryBackend())
	up := true
	p := &fakeProvider[models.StockQuote]{history: func(code string, hr models.HistoryRange) ([]models.StockQuote, error) {
		if !up {
			return nil, errors.New("timeout")
		}
		return []models.StockQuote{
			stockQuote(code, t0.AddDate(0, 0, -2), 10),
			stockQuote(code, t0.AddDate(0, 0, -1), 11),
		}, nil
	}}
	svc, _ := newStockService(t, c, p)
	hr := models.HistoryRange{Days: 7}

	res := svc.GetHistory(ctx, "000001", hr, true)
	require.Equal(t, SourceProvider, res.Source)
	assert.True(t, c.Exists(ctx, "stock:history:000001:7"))

	res = svc.GetHistory(ctx, "000001", hr, true)
	assert.Equal(t, SourceCache, res.Source)

	up = false
	res = svc.GetHistory(ctx, "000001", hr, false)
	assert.Equal(t, SourceStore, res.Source)
	require.Len(t, res.Records, 2)
	assert.InDelta(t, 10, res.Records[0].Close, 1e-9)

	weekly := svc.GetHistory(ctx, "000001", models.HistoryRange{Period: models.PeriodWeekly, Start: t0.AddDate(0, -1, 0), End: t0}, true)
	assert.Equal(t, SourceStore, weekly.Source)

	bad := svc.GetHistory(ctx, "000001", models.HistoryRange{Start: t0, End: t0.AddDate(0, 0, -1)}, true)
	assert.ErrorIs(t, bad.Err, ErrInvalidArgument)
}

func TestSearchRanking(t *testing.T) {
	ctx := context.Background()
	mk := func(code, name string) models.StockQuote {
		q := stockQuote(code, t0, 1)
		q.Name = name
		return q
	}
	p := &fakeProvider[models.StockQuote]{search: func(kw string) ([]models.StockQuote, error) {
		return []models.StockQuote{
			mk("300001", "特锐德"),
			mk("001000", "名称含000001"),
			mk("000001", "平安银行"),
			mk("000001X", "前缀匹配"),
		}, nil
	}}
	svc, _ := newStockService(t, cache.New(cache.NewMemoryBackend()), p)

	res := svc.Search(ctx, "000001")
	require.Equal(t, SourceProvider, res.Source)
	codes := make([]string, len(res.Records))
	for i, r := range res.Records {
		codes[i] = r.Code
	}
	assert.Equal(t, []string{"000001", "000001X", "001000"}, codes)

	cached := svc.Search(ctx, "000001")
	assert.Equal(t, SourceCache, cached.Source)
	assert.Equal(t, 1, p.calls)

	assert.ErrorIs(t, svc.Search(ctx, "  ").Err, ErrInvalidArgument)
}

func TestSearchFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider[models.StockQuote]{}
	svc, st := newStockService(t, cache.New(cache.NewMemoryBackend()), p)
	_, err := st.Stock.UpsertMany(ctx, []models.StockQuote{stockQuote("000001", t0, 10), stockQuote("600000", t0, 8)})
	require.NoError(t, err)

	res := svc.Search(ctx, "平安")
	assert.Equal(t, SourceStore, res.Source)
	assert.Len(t, res.Records, 2)
}

func TestWatchlistInvalidation(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryBackend())
	svc, st := newStockService(t, c, &fakeProvider[models.StockQuote]{})
	_, err := st.Stock.UpsertMany(ctx, []models.StockQuote{stockQuote("000001", t0, 10)})
	require.NoError(t, err)

	e, created, err := svc.AddToWatchlist(ctx, models.WatchlistEntry{UserID: "alice", Code: "000001"})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "平安银行", e.Name, "name filled from the store")
	assert.Equal(t, "CN", e.Category)

	_, created, err = svc.AddToWatchlist(ctx, models.WatchlistEntry{UserID: "alice", Code: "000001"})
	require.NoError(t, err)
	assert.False(t, created)

	items, err := svc.GetWatchlist(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 10, items[0].Quote.Close, 1e-9)
	assert.Equal(t, []float64{10}, items[0].History)

	_, err = svc.GetWatchlist(ctx, "alice", "CN")
	require.NoError(t, err)
	_, err = svc.GetWatchlist(ctx, "bob", "")
	require.NoError(t, err)
	require.True(t, c.Exists(ctx, "stock:watchlist:alice"))
	require.True(t, c.Exists(ctx, "stock:watchlist:alice:CN"))
	require.True(t, c.Exists(ctx, "stock:watchlist:bob"))

	_, err = svc.AddToWatchlist(ctx, models.WatchlistEntry{UserID: "alice", Code: "600519", Name: "贵州茅台", Category: "CN"})
	require.NoError(t, err)
	assert.False(t, c.Exists(ctx, "stock:watchlist:alice"))
	assert.False(t, c.Exists(ctx, "stock:watchlist:alice:CN"))
	assert.True(t, c.Exists(ctx, "stock:watchlist:bob"), "other users keep their cache")

	items, err = svc.GetWatchlist(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Zero(t, items[1].Quote.Close, "missing quote is a zero record")

	order := 5
	_, ok, err := svc.UpdateWatchlistEntry(ctx, "alice", "600519", &order, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, c.Exists(ctx, "stock:watchlist:alice"))

	removed, err := svc.RemoveFromWatchlist(ctx, "alice", "600519")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = svc.RemoveFromWatchlist(ctx, "alice", "600519")
	require.NoError(t, err)
	assert.False(t, removed)

	users, err := svc.WatchlistUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	_, _, err = svc.AddToWatchlist(ctx, models.WatchlistEntry{UserID: " ", Code: "000001"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSyncWatchlistSparkline(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryBackend())
	price := 20.0
	p := &fakeProvider[models.StockQuote]{realtime: func(f models.Filter) ([]models.StockQuote, error) {
		return []models.StockQuote{stockQuote("000001", t0, price)}, nil
	}}
	svc, st := newStockService(t, c, p)
	svc.opts.Location = time.UTC

	var hist []models.StockQuote
	for i := 9; i >= 1; i-- {
		hist = append(hist, stockQuote("000001", t0.AddDate(0, 0, -i), float64(10+9-i)))
	}
	_, err := st.Stock.UpsertMany(ctx, hist)
	require.NoError(t, err)
	_, _, err = svc.AddToWatchlist(ctx, models.WatchlistEntry{UserID: "alice", Code: "000001", Category: "CN"})
	require.NoError(t, err)

	// Monday 10:00 is inside the morning session
	n, err := svc.SyncWatchlist(ctx, "alice", t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var items []models.WatchItem[models.StockQuote]
	require.True(t, c.Get(ctx, "stock:watchlist:alice", &items))
	require.Len(t, items, 1)
	assert.InDelta(t, 20, items[0].Quote.Close, 1e-9)
	assert.Equal(t, []float64{13, 14, 15, 16, 17, 18, 20}, items[0].History)

	var scoped []models.WatchItem[models.StockQuote]
	require.True(t, c.Get(ctx, "stock:watchlist:alice:CN", &scoped))
	assert.Len(t, scoped, 1)
	require.True(t, c.Get(ctx, "stock:watchlist:alice:HK", &scoped))
	assert.Empty(t, scoped)
}

func TestSparklineKeepsOneClosePerDay(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryBackend())
	tick := t0
	price := 20.0
	p := &fakeProvider[models.StockQuote]{realtime: func(f models.Filter) ([]models.StockQuote, error) {
		return []models.StockQuote{stockQuote("000001", tick, price)}, nil
	}}
	svc, st := newStockService(t, c, p)
	svc.opts.Location = time.UTC

	var hist []models.StockQuote
	for i := 9; i >= 1; i-- {
		hist = append(hist, stockQuote("000001", t0.AddDate(0, 0, -i), float64(10+9-i)))
	}
	_, err := st.Stock.UpsertMany(ctx, hist)
	require.NoError(t, err)
	_, _, err = svc.AddToWatchlist(ctx, models.WatchlistEntry{UserID: "alice", Code: "000001", Category: "CN"})
	require.NoError(t, err)

	// ten 30s sync ticks write ten intraday snapshots for today
	for i := 0; i < 10; i++ {
		tick = t0.Add(time.Duration(i) * 30 * time.Second)
		price = float64(20 + i)
		_, err := svc.SyncWatchlist(ctx, "alice", tick)
		require.NoError(t, err)
	}

	var items []models.WatchItem[models.StockQuote]
	require.True(t, c.Get(ctx, "stock:watchlist:alice", &items))
	require.Len(t, items, 1)
	assert.Equal(t, []float64{13, 14, 15, 16, 17, 18, 29}, items[0].History)

	// the daily history fallback collapses the snapshots the same way
	svc.now = func() time.Time { return tick }
	res := svc.GetHistory(ctx, "000001", models.HistoryRange{Days: 3}, false)
	require.Equal(t, SourceStore, res.Source)
	require.Len(t, res.Records, 3)
	assert.InDelta(t, 29, res.Records[2].Close, 1e-9)
}

func TestSyncWatchlistTTLFollowsTradingHours(t *testing.T) {
	ctx := context.Background()
	clock := t0
	c := cache.New(cache.NewMemoryBackend(cache.WithClock(func() time.Time { return clock })))
	p := &fakeProvider[models.StockQuote]{realtime: func(f models.Filter) ([]models.StockQuote, error) {
		return []models.StockQuote{stockQuote("000001", clock, 10)}, nil
	}}
	svc, _ := newStockService(t, c, p)
	svc.opts.Location = time.UTC
	_, _, err := svc.AddToWatchlist(ctx, models.WatchlistEntry{UserID: "alice", Code: "000001", Category: "CN"})
	require.NoError(t, err)

	// Monday 10:00: realtime TTL (30s)
	_, err = svc.SyncWatchlist(ctx, "alice", clock)
	require.NoError(t, err)
	clock = clock.Add(31 * time.Second)
	assert.False(t, c.Exists(ctx, "stock:watchlist:alice"))

	// Monday 20:00: daily TTL (5m) outlives the realtime TTL
	clock = time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)
	_, err = svc.SyncWatchlist(ctx, "alice", clock)
	require.NoError(t, err)
	clock = clock.Add(2 * time.Minute)
	assert.True(t, c.Exists(ctx, "stock:watchlist:alice"))
	assert.True(t, c.Exists(ctx, "stock:watchlist:alice:CN"))
	clock = clock.Add(4 * time.Minute)
	assert.False(t, c.Exists(ctx, "stock:watchlist:alice"))
}

func TestWatchlistScopeIsCanonical(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryBackend())
	svc, _ := newStockService(t, c, &fakeProvider[models.StockQuote]{})

	_, _, err := svc.AddToWatchlist(ctx, models.WatchlistEntry{UserID: "alice", Code: "000001", Category: "CN"})
	require.NoError(t, err)

	items, err := svc.GetWatchlist(ctx, "alice", "cn")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, c.Exists(ctx, "stock:watchlist:alice:CN"))
	assert.False(t, c.Exists(ctx, "stock:watchlist:alice:cn"))

	// scopes outside the configured set are never cached
	_, err = svc.GetWatchlist(ctx, "alice", "tech")
	require.NoError(t, err)
	assert.False(t, c.Exists(ctx, "stock:watchlist:alice:tech"))

	_, _, err = svc.AddToWatchlist(ctx, models.WatchlistEntry{UserID: "alice", Code: "600519", Category: "CN"})
	require.NoError(t, err)
	items, err = svc.GetWatchlist(ctx, "alice", "cn")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	removed, err := svc.RemoveFromWatchlist(ctx, "alice", "000001")
	require.NoError(t, err)
	require.True(t, removed)
	items, err = svc.GetWatchlist(ctx, "alice", " Cn ")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestIsTradingTime(t *testing.T) {
	cst := time.FixedZone("CST", 8*3600)
	at := func(day, h, m, s int) time.Time { return time.Date(2024, 3, day, h, m, s, 0, cst) }
	cases := []struct {
		when time.Time
		want bool
	}{
		{at(4, 9, 14, 59), false},
		{at(4, 9, 15, 0), true},
		{at(4, 11, 30, 0), true},
		{at(4, 11, 30, 1), false},
		{at(4, 12, 0, 0), false},
		{at(4, 13, 0, 0), true},
		{at(4, 15, 0, 0), true},
		{at(4, 15, 0, 1), false},
		{at(2, 10, 0, 0), false}, // Saturday
		{at(3, 10, 0, 0), false}, // Sunday
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsTradingTime(c.when), c.when.String())
	}
}

func TestSummarizeFundTypes(t *testing.T) {
	fund := func(name string, pct float64) models.FundQuote {
		return models.FundQuote{Quote: models.Quote{Code: name, Name: name, ChangePercent: pct}}
	}
	stats := SummarizeFundTypes([]models.FundQuote{
		fund("沪深300ETF", 1.0),
		fund("中证500ETF", -0.5),
		fund("创业板ETF", 0),
		fund("纳斯达克QDII", 2.345),
		fund("招商产业债", 0.1),
	})
	require.Len(t, stats, 3)
	assert.Equal(t, "FUND_债券型", stats[0].Code)
	assert.Equal(t, "指数型", stats[1].FundType)
	assert.Equal(t, 3, stats[1].Total)
	assert.Equal(t, 1, stats[1].Rise)
	assert.Equal(t, 1, stats[1].Fall)
	assert.Equal(t, 1, stats[1].Flat)
	assert.InDelta(t, 0.17, stats[1].AvgChange, 1e-9)
	assert.Equal(t, "QDII", stats[2].FundType)
	assert.InDelta(t, 2.35, stats[2].AvgChange, 1e-9)
}

func TestMarketIndexKeys(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryBackend())
	st := newTestStores(t)
	p := &fakeProvider[models.IndexQuote]{
		realtime: func(f models.Filter) ([]models.IndexQuote, error) {
			return []models.IndexQuote{{Quote: models.Quote{Time: t0, Code: "HSI", Name: "恒生指数", Close: 16589}, Market: "HK"}}, nil
		},
		history: func(code string, hr models.HistoryRange) ([]models.IndexQuote, error) {
			var out []models.IndexQuote
			for i := 0; i < hr.Days; i++ {
				out = append(out, models.IndexQuote{Quote: models.Quote{Time: t0.AddDate(0, 0, -i), Code: code, Close: 16000 + float64(i)}, Market: "HK"})
			}
			return out, nil
		},
	}
	m := NewMarketService(NewAssetService[models.IndexQuote](models.ClassMarket, p, st.Index, st.Watchlist, c, DefaultOptions()))

	q, ok, err := m.Index(ctx, "HK", "HSI", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 16589, q.Close, 1e-9)
	assert.True(t, c.Exists(ctx, "market:realtime:HSI:HK"))

	res := m.IndexHistory(ctx, "HK", "HSI", 7, true)
	require.Len(t, res.Records, 7)
	assert.True(t, c.Exists(ctx, "market:index_history:HK:HSI:"+strconv.Itoa(7)))

	_, _, err = m.Index(ctx, "US", "HSI", true)
	assert.ErrorIs(t, err, ErrInvalidCode)

	assert.Len(t, m.Matrix()["CN"], 3)
}
