package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/internal/cache"
	"github.com/dyike/cortexmarket/models"
)

func (s *AssetService[R]) watchlistKey(userID, scope string) string {
	return cache.Key(s.prefix(), "watchlist", userID, scope)
}

// invalidateWatchlist drops every cached view of one user's watchlist for
// this service: the unscoped list and each configured scope.
func (s *AssetService[R]) invalidateWatchlist(ctx context.Context, userID string) {
	s.cache.Delete(ctx, s.watchlistKey(userID, ""))
	for _, scope := range s.opts.WatchlistScopes {
		s.cache.Delete(ctx, s.watchlistKey(userID, scope))
	}
}

// watchScope maps a requested scope onto its configured spelling ("cn" ->
// "CN"). Only the unscoped list and configured scopes are cached, since
// those are the keys a mutation invalidates.
func (s *AssetService[R]) watchScope(scope string) (string, bool) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "", true
	}
	for _, sc := range s.opts.WatchlistScopes {
		if strings.EqualFold(sc, scope) {
			return sc, true
		}
	}
	return scope, false
}

func validUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	return userID, nil
}

// GetWatchlist joins the user's entries with the latest stored quotes.
// Entries without a quote carry a zero record.
func (s *AssetService[R]) GetWatchlist(ctx context.Context, userID, scope string) ([]models.WatchItem[R], error) {
	userID, err := validUser(userID)
	if err != nil {
		return nil, err
	}
	scope, cacheable := s.watchScope(scope)
	key := s.watchlistKey(userID, scope)
	var cached []models.WatchItem[R]
	if cacheable && s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	entries, err := s.entries(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	quotes := map[string]R{}
	if s.store != nil && len(entries) > 0 {
		latest, err := s.store.LatestAll(ctx, entryCodes(entries))
		if err != nil {
			logx.WithContext(ctx).Errorf("%s service: watchlist quotes user=%s err=%v", s.class, userID, err)
		}
		for _, q := range latest {
			quotes[q.Base().Code] = q
		}
	}
	items := s.compose(ctx, entries, quotes, s.now())
	if cacheable {
		s.cache.Set(ctx, key, items, s.opts.TTL.Realtime)
	}
	return items, nil
}

func (s *AssetService[R]) entries(ctx context.Context, userID, scope string) ([]models.WatchlistEntry, error) {
	all, err := s.watchlist.List(ctx, s.class, userID)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	if scope == "" {
		return all, nil
	}
	var out []models.WatchlistEntry
	for _, e := range all {
		if strings.EqualFold(e.Category, scope) {
			out = append(out, e)
		}
	}
	return out, nil
}

func entryCodes(entries []models.WatchlistEntry) []string {
	codes := make([]string, len(entries))
	for i, e := range entries {
		codes[i] = e.Code
	}
	return codes
}

// compose pairs entries with quotes and the last daily closes.
func (s *AssetService[R]) compose(ctx context.Context, entries []models.WatchlistEntry, quotes map[string]R, now time.Time) []models.WatchItem[R] {
	items := make([]models.WatchItem[R], 0, len(entries))
	for _, e := range entries {
		items = append(items, models.WatchItem[R]{
			Entry:   e,
			Quote:   quotes[e.Code],
			History: s.dailyCloses(ctx, e.Code, now),
		})
	}
	return items
}

// dailyCloses returns the closes of the last sparklineSize trading days,
// oldest first. The store holds daily bars and 30s snapshots side by side;
// the last row of each exchange-local day is that day's close.
func (s *AssetService[R]) dailyCloses(ctx context.Context, code string, now time.Time) []float64 {
	out := []float64{}
	if s.store == nil {
		return out
	}
	rows, err := s.store.Range(ctx, code, now.AddDate(0, 0, -sparklineLookbackDays), time.Time{}, 0)
	if err != nil {
		logx.WithContext(ctx).Errorf("%s service: sparkline code=%s err=%v", s.class, code, err)
		return out
	}
	days := lastPerDay(rows, s.opts.Location)
	if len(days) > sparklineSize {
		days = days[len(days)-sparklineSize:]
	}
	for _, r := range days {
		out = append(out, r.Base().Close)
	}
	return out
}

// AddToWatchlist saves an entry. A duplicate returns the stored entry with
// created=false.
func (s *AssetService[R]) AddToWatchlist(ctx context.Context, e models.WatchlistEntry) (models.WatchlistEntry, bool, error) {
	userID, err := validUser(e.UserID)
	if err != nil {
		return e, false, err
	}
	e.UserID = userID
	e.Code = strings.TrimSpace(e.Code)
	if !s.opts.ValidCode(e.Code) {
		return e, false, fmt.Errorf("%w: %q", ErrInvalidCode, e.Code)
	}
	e.AssetClass = s.class
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if (e.Name == "" || e.Category == "") && s.store != nil {
		if q, ok, _ := s.store.Latest(ctx, e.Code); ok {
			if e.Name == "" {
				e.Name = q.Base().Name
			}
			if e.Category == "" {
				e.Category = q.Base().Category
			}
		}
	}

	saved, created, err := s.watchlist.Add(ctx, e)
	if err != nil {
		return e, false, fmt.Errorf("add watchlist: %w", err)
	}
	if created {
		s.invalidateWatchlist(ctx, userID)
	}
	return saved, created, nil
}

func (s *AssetService[R]) RemoveFromWatchlist(ctx context.Context, userID, code string) (bool, error) {
	userID, err := validUser(userID)
	if err != nil {
		return false, err
	}
	code = strings.TrimSpace(code)
	if !s.opts.ValidCode(code) {
		return false, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	removed, err := s.watchlist.Remove(ctx, s.class, userID, code)
	if err != nil {
		return false, fmt.Errorf("remove watchlist: %w", err)
	}
	if removed {
		s.invalidateWatchlist(ctx, userID)
	}
	return removed, nil
}

// UpdateWatchlistEntry changes sort order and/or notes; nil leaves a field as is.
func (s *AssetService[R]) UpdateWatchlistEntry(ctx context.Context, userID, code string, sortOrder *int, notes *string) (models.WatchlistEntry, bool, error) {
	userID, err := validUser(userID)
	if err != nil {
		return models.WatchlistEntry{}, false, err
	}
	code = strings.TrimSpace(code)
	if !s.opts.ValidCode(code) {
		return models.WatchlistEntry{}, false, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	e, ok, err := s.watchlist.Update(ctx, s.class, userID, code, sortOrder, notes)
	if err != nil {
		return e, false, fmt.Errorf("update watchlist: %w", err)
	}
	if ok {
		s.invalidateWatchlist(ctx, userID)
	}
	return e, ok, nil
}

func (s *AssetService[R]) WatchlistUsers(ctx context.Context) ([]string, error) {
	return s.watchlist.Users(ctx, s.class)
}

// SyncWatchlist refreshes quotes for the user's instruments and rewrites
// every cached view. The cache lives for the realtime TTL while the market
// is open and the daily TTL otherwise.
func (s *AssetService[R]) SyncWatchlist(ctx context.Context, userID string, now time.Time) (int, error) {
	userID, err := validUser(userID)
	if err != nil {
		return 0, err
	}
	entries, err := s.entries(ctx, userID, "")
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		s.invalidateWatchlist(ctx, userID)
		return 0, nil
	}

	res := s.GetRealtime(ctx, models.Filter{Codes: entryCodes(entries)}, false)
	quotes := make(map[string]R, len(res.Records))
	for _, q := range res.Records {
		quotes[q.Base().Code] = q
	}
	if len(quotes) < len(entries) && s.store != nil {
		// fill codes the provider skipped with the last stored snapshot
		latest, _ := s.store.LatestAll(ctx, entryCodes(entries))
		for _, q := range latest {
			if _, ok := quotes[q.Base().Code]; !ok {
				quotes[q.Base().Code] = q
			}
		}
	}

	ttl := s.opts.TTL.Daily
	if IsTradingTime(now.In(s.opts.Location)) {
		ttl = s.opts.TTL.Realtime
	}
	items := s.compose(ctx, entries, quotes, now)
	s.cache.Set(ctx, s.watchlistKey(userID, ""), items, ttl)
	for _, scope := range s.opts.WatchlistScopes {
		var scoped []models.WatchItem[R]
		for _, it := range items {
			if strings.EqualFold(it.Entry.Category, scope) {
				scoped = append(scoped, it)
			}
		}
		if scoped == nil {
			scoped = []models.WatchItem[R]{}
		}
		s.cache.Set(ctx, s.watchlistKey(userID, scope), scoped, ttl)
	}
	return len(items), res.Err
}
