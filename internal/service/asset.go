package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/internal/cache"
	"github.com/dyike/cortexmarket/models"
)

// Provider fetches normalized records of one asset class from upstream.
type Provider[R models.Record] interface {
	Realtime(ctx context.Context, f models.Filter) ([]R, error)
	History(ctx context.Context, code string, hr models.HistoryRange) ([]R, error)
	Search(ctx context.Context, keyword string) ([]R, error)
}

// TimeSeries is the durable log a service writes through.
type TimeSeries[R models.Record] interface {
	UpsertMany(ctx context.Context, rs []R) (int, error)
	Latest(ctx context.Context, code string) (R, bool, error)
	LatestAll(ctx context.Context, codes []string) ([]R, error)
	Range(ctx context.Context, code string, start, end time.Time, limit int) ([]R, error)
}

type WatchlistRepo interface {
	Add(ctx context.Context, e models.WatchlistEntry) (models.WatchlistEntry, bool, error)
	Get(ctx context.Context, class models.AssetClass, userID, code string) (models.WatchlistEntry, bool, error)
	Remove(ctx context.Context, class models.AssetClass, userID, code string) (bool, error)
	Update(ctx context.Context, class models.AssetClass, userID, code string, sortOrder *int, notes *string) (models.WatchlistEntry, bool, error)
	List(ctx context.Context, class models.AssetClass, userID string) ([]models.WatchlistEntry, error)
	Users(ctx context.Context, class models.AssetClass) ([]string, error)
}

type TTLs struct {
	Realtime  time.Duration
	Daily     time.Duration
	History   time.Duration
	Watchlist time.Duration
}

type Options struct {
	TTL             TTLs
	ProviderTimeout time.Duration
	// WatchlistScopes are the category views cached per user besides the
	// unscoped list, e.g. stock markets CN/HK/US.
	WatchlistScopes []string
	Location        *time.Location
	ValidCode       func(string) bool
}

func DefaultOptions() Options {
	return Options{
		TTL: TTLs{
			Realtime:  30 * time.Second,
			Daily:     5 * time.Minute,
			History:   24 * time.Hour,
			Watchlist: 24 * time.Hour,
		},
		ProviderTimeout: 10 * time.Second,
		Location:        time.FixedZone("CST", 8*3600),
		ValidCode:       ValidCode,
	}
}

const (
	searchLimit           = 20
	sparklineSize         = 7
	sparklineLookbackDays = 30
)

// AssetService is the read/write path of one asset class: cache in front of
// the provider, every fresh answer written through to the time-series store.
type AssetService[R models.Record] struct {
	class     models.AssetClass
	provider  Provider[R]
	store     TimeSeries[R]
	watchlist WatchlistRepo
	cache     *cache.Cache
	opts      Options
	now       func() time.Time
}

func NewAssetService[R models.Record](class models.AssetClass, provider Provider[R], store TimeSeries[R],
	watchlist WatchlistRepo, c *cache.Cache, opts Options) *AssetService[R] {
	def := DefaultOptions()
	if opts.TTL.Realtime <= 0 {
		opts.TTL.Realtime = def.TTL.Realtime
	}
	if opts.TTL.Daily <= 0 {
		opts.TTL.Daily = def.TTL.Daily
	}
	if opts.TTL.History <= 0 {
		opts.TTL.History = def.TTL.History
	}
	if opts.TTL.Watchlist <= 0 {
		opts.TTL.Watchlist = def.TTL.Watchlist
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = def.ProviderTimeout
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.ValidCode == nil {
		opts.ValidCode = ValidCode
	}
	return &AssetService[R]{
		class:     class,
		provider:  provider,
		store:     store,
		watchlist: watchlist,
		cache:     c,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *AssetService[R]) Class() models.AssetClass { return s.class }

func (s *AssetService[R]) prefix() string { return string(s.class) }

// ValidCode accepts the code alphabets of every supported market:
// "600519", "00700.HK", "USD/CNY", "^HSI", "GC=F", "rb2410".
func ValidCode(code string) bool {
	if code == "" || len(code) > 32 {
		return false
	}
	for _, r := range code {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case strings.ContainsRune("./=^_-", r):
		default:
			return false
		}
	}
	return true
}

func (s *AssetService[R]) normalizeFilter(f models.Filter) (models.Filter, error) {
	codes := make([]string, 0, len(f.Codes))
	for _, c := range f.Codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !s.opts.ValidCode(c) {
			return f, fmt.Errorf("%w: %q", ErrInvalidCode, c)
		}
		codes = append(codes, c)
	}
	f.Codes = codes
	f.Category = strings.TrimSpace(f.Category)
	return f, nil
}

func (s *AssetService[R]) fetch(ctx context.Context, fn func(ctx context.Context) ([]R, error)) ([]R, error) {
	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()
	recs, err := fn(pctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrProviderUnavailable
	}
	return recs, nil
}

// persist writes records through to the store. Failures are logged only.
func (s *AssetService[R]) persist(ctx context.Context, recs []R) {
	if s.store == nil || len(recs) == 0 {
		return
	}
	if _, err := s.store.UpsertMany(ctx, recs); err != nil {
		logx.WithContext(ctx).Errorf("%s service: store upsert count=%d err=%v", s.class, len(recs), err)
	}
}

// GetRealtime serves the latest quotes for f. A provider failure falls back
// to the cached answer (even when useCache is false), then to the store.
func (s *AssetService[R]) GetRealtime(ctx context.Context, f models.Filter, useCache bool) Result[R] {
	f, err := s.normalizeFilter(f)
	if err != nil {
		return Result[R]{Source: SourceNone, Err: err}
	}
	key := cache.Key(s.prefix(), "realtime", f.CodesKey(), f.Category)

	var cached []R
	if useCache && s.cache.Get(ctx, key, &cached) {
		return Result[R]{Records: cached, Source: SourceCache}
	}

	recs, err := s.fetch(ctx, func(ctx context.Context) ([]R, error) { return s.provider.Realtime(ctx, f) })
	if err == nil {
		s.persist(ctx, recs)
		s.cache.Set(ctx, key, recs, s.opts.TTL.Realtime)
		return Result[R]{Records: recs, Source: SourceProvider}
	}
	logx.WithContext(ctx).Errorf("%s service: realtime key=%s err=%v", s.class, key, err)

	if !useCache && s.cache.Get(ctx, key, &cached) && len(cached) > 0 {
		return Result[R]{Records: cached, Source: SourceCache, Err: err}
	}
	if s.store != nil {
		latest, serr := s.store.LatestAll(ctx, f.Codes)
		if serr != nil {
			logx.WithContext(ctx).Errorf("%s service: store fallback err=%v", s.class, serr)
		}
		latest = filterCategory(latest, f.Category)
		if len(latest) > 0 {
			return Result[R]{Records: latest, Source: SourceStore, Err: err}
		}
	}
	return Result[R]{Source: SourceNone, Err: err}
}

// GetDetail returns the realtime quote of a single instrument.
func (s *AssetService[R]) GetDetail(ctx context.Context, code string) (R, bool, error) {
	var zero R
	code = strings.TrimSpace(code)
	if !s.opts.ValidCode(code) {
		return zero, false, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	res := s.GetRealtime(ctx, models.Filter{Codes: []string{code}}, true)
	for _, r := range res.Records {
		if strings.EqualFold(r.Base().Code, code) {
			return r, true, nil
		}
	}
	// providers may normalize the code ("700" -> "00700.HK")
	want := canonicalCode(code)
	for _, r := range res.Records {
		if canonicalCode(r.Base().Code) == want {
			return r, true, nil
		}
	}
	return zero, false, nil
}

// canonicalCode drops market suffixes and prefixes and leading zeros:
// "00700.HK", "700" and "0700" all become "700"; "sh600519" becomes "600519".
func canonicalCode(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if i := strings.LastIndexByte(c, '.'); i > 0 {
		switch c[i+1:] {
		case "HK", "US", "SH", "SZ", "SS", "BJ":
			c = c[:i]
		}
	}
	for _, p := range []string{"SH", "SZ", "BJ", "HK"} {
		if rest, ok := strings.CutPrefix(c, p); ok && rest != "" && rest[0] >= '0' && rest[0] <= '9' {
			c = rest
			break
		}
	}
	if t := strings.TrimLeft(c, "0"); t != "" {
		c = t
	}
	return c
}

func (s *AssetService[R]) historyKey(code string, hr models.HistoryRange) string {
	period := hr.PeriodOrDefault()
	if period == models.PeriodDaily {
		period = ""
	}
	if hr.Days > 0 {
		return cache.Key(s.prefix(), "history", code, period, hr.Days)
	}
	return cache.Key(s.prefix(), "history", code, period, formatDay(hr.Start), formatDay(hr.End))
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("20060102")
}

// GetHistory serves bars for code, cache first with the long history TTL.
func (s *AssetService[R]) GetHistory(ctx context.Context, code string, hr models.HistoryRange, useCache bool) Result[R] {
	code = strings.TrimSpace(code)
	if !s.opts.ValidCode(code) {
		return Result[R]{Source: SourceNone, Err: fmt.Errorf("%w: %q", ErrInvalidCode, code)}
	}
	if hr.Days < 0 || (!hr.Start.IsZero() && !hr.End.IsZero() && hr.End.Before(hr.Start)) {
		return Result[R]{Source: SourceNone, Err: fmt.Errorf("%w: history range", ErrInvalidArgument)}
	}
	return s.history(ctx, s.historyKey(code, hr), code, hr, useCache)
}

func (s *AssetService[R]) history(ctx context.Context, key, code string, hr models.HistoryRange, useCache bool) Result[R] {
	var cached []R
	if useCache && s.cache.Get(ctx, key, &cached) {
		return Result[R]{Records: cached, Source: SourceCache}
	}

	recs, err := s.fetch(ctx, func(ctx context.Context) ([]R, error) { return s.provider.History(ctx, code, hr) })
	if err == nil {
		s.persist(ctx, recs)
		s.cache.Set(ctx, key, recs, s.opts.TTL.History)
		return Result[R]{Records: recs, Source: SourceProvider}
	}
	logx.WithContext(ctx).Errorf("%s service: history key=%s err=%v", s.class, key, err)

	if s.store != nil {
		start, end := hr.Bounds(s.now())
		rows, serr := s.store.Range(ctx, code, start, end, 0)
		if serr != nil {
			logx.WithContext(ctx).Errorf("%s service: history store fallback err=%v", s.class, serr)
		}
		if hr.PeriodOrDefault() == models.PeriodDaily {
			rows = lastPerDay(rows, s.opts.Location)
		}
		if len(rows) > 0 {
			return Result[R]{Records: rows, Source: SourceStore, Err: err}
		}
	}
	return Result[R]{Source: SourceNone, Err: err}
}

// lastPerDay keeps the last row of every calendar day in loc. rows must be
// sorted by time ascending.
func lastPerDay[R models.Record](rows []R, loc *time.Location) []R {
	out := rows[:0:0]
	var lastDay string
	for _, r := range rows {
		day := r.Base().Time.In(loc).Format("20060102")
		if n := len(out); n > 0 && day == lastDay {
			out[n-1] = r
			continue
		}
		out = append(out, r)
		lastDay = day
	}
	return out
}

// Search returns up to 20 instruments matching keyword on code or name.
func (s *AssetService[R]) Search(ctx context.Context, keyword string) Result[R] {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return Result[R]{Source: SourceNone, Err: fmt.Errorf("%w: empty keyword", ErrInvalidArgument)}
	}
	key := cache.Key(s.prefix(), "search", keyword)
	var cached []R
	if s.cache.Get(ctx, key, &cached) {
		return Result[R]{Records: cached, Source: SourceCache}
	}

	recs, err := s.fetch(ctx, func(ctx context.Context) ([]R, error) { return s.provider.Search(ctx, keyword) })
	if err == nil {
		ranked := rankMatches(recs, keyword, searchLimit)
		if len(ranked) == 0 {
			// vendor search matched on fields we do not see (pinyin, full names)
			ranked = recs
			if len(ranked) > searchLimit {
				ranked = ranked[:searchLimit]
			}
		}
		s.cache.Set(ctx, key, ranked, s.opts.TTL.Daily)
		return Result[R]{Records: ranked, Source: SourceProvider}
	}
	logx.WithContext(ctx).Errorf("%s service: search keyword=%s err=%v", s.class, keyword, err)

	if s.store != nil {
		latest, serr := s.store.LatestAll(ctx, nil)
		if serr != nil {
			logx.WithContext(ctx).Errorf("%s service: search store fallback err=%v", s.class, serr)
		}
		if ranked := rankMatches(latest, keyword, searchLimit); len(ranked) > 0 {
			return Result[R]{Records: ranked, Source: SourceStore, Err: err}
		}
	}
	return Result[R]{Source: SourceNone, Err: err}
}

// rankMatches keeps records matching keyword, ordered exact code, code
// prefix, code substring, name substring. Ties keep input order.
func rankMatches[R models.Record](recs []R, keyword string, limit int) []R {
	kw := strings.ToUpper(keyword)
	type scored struct {
		rank int
		rec  R
	}
	var hits []scored
	for _, r := range recs {
		b := r.Base()
		code := strings.ToUpper(b.Code)
		rank := -1
		switch {
		case code == kw:
			rank = 0
		case strings.HasPrefix(code, kw):
			rank = 1
		case strings.Contains(code, kw):
			rank = 2
		case strings.Contains(strings.ToUpper(b.Name), kw):
			rank = 3
		}
		if rank >= 0 {
			hits = append(hits, scored{rank, r})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]R, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out
}

// matchCategory checks the class specific category fields of a record.
func matchCategory(r models.Record, category string) bool {
	if category == "" {
		return true
	}
	if strings.EqualFold(r.Base().Category, category) {
		return true
	}
	switch v := r.(type) {
	case models.FundQuote:
		return v.FundType == category || strings.EqualFold(v.ETFType, category)
	case models.BondQuote:
		return v.BondType == category
	case models.FuturesQuote:
		return strings.EqualFold(v.Exchange, category)
	case models.GoldQuote:
		return strings.EqualFold(v.Exchange, category)
	case models.StockQuote:
		return strings.EqualFold(v.Market, category)
	case models.IndexQuote:
		return strings.EqualFold(v.Market, category)
	}
	return false
}

func filterCategory[R models.Record](recs []R, category string) []R {
	if category == "" {
		return recs
	}
	out := recs[:0:0]
	for _, r := range recs {
		if matchCategory(r, category) {
			out = append(out, r)
		}
	}
	return out
}

// IsInvalidInput reports whether err was caused by malformed caller input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrInvalidArgument)
}
