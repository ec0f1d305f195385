package cli

import (
	"context"
	"strings"

	"github.com/dyike/cortexmarket/internal/service"
	"github.com/dyike/cortexmarket/models"
)

// watchRow is a watchlist item with the quote reduced to its shared fields.
type watchRow struct {
	Entry   models.WatchlistEntry
	Quote   models.Quote
	History []float64
}

// assetOps erases the record type of an AssetService so one set of
// commands serves every class.
type assetOps interface {
	Class() models.AssetClass
	Realtime(ctx context.Context, f models.Filter, useCache bool) ([]models.Quote, service.Source, error)
	History(ctx context.Context, code string, hr models.HistoryRange, useCache bool) ([]models.Quote, service.Source, error)
	Search(ctx context.Context, keyword string) ([]models.Quote, service.Source, error)
	Watchlist(ctx context.Context, userID, scope string) ([]watchRow, error)
	Add(ctx context.Context, e models.WatchlistEntry) (models.WatchlistEntry, bool, error)
	Remove(ctx context.Context, userID, code string) (bool, error)
	Update(ctx context.Context, userID, code string, sortOrder *int, notes *string) (models.WatchlistEntry, bool, error)
}

type classOps[R models.Record] struct {
	svc *service.AssetService[R]
}

func bases[R models.Record](recs []R) []models.Quote {
	out := make([]models.Quote, len(recs))
	for i, r := range recs {
		out[i] = r.Base()
	}
	return out
}

// unwrap turns a Result into rows. Input errors are returned; upstream
// failures only degrade the source.
func unwrap[R models.Record](res service.Result[R]) ([]models.Quote, service.Source, error) {
	if service.IsInvalidInput(res.Err) {
		return nil, res.Source, res.Err
	}
	return bases(res.Records), res.Source, nil
}

func (o classOps[R]) Class() models.AssetClass { return o.svc.Class() }

func (o classOps[R]) Realtime(ctx context.Context, f models.Filter, useCache bool) ([]models.Quote, service.Source, error) {
	return unwrap(o.svc.GetRealtime(ctx, f, useCache))
}

func (o classOps[R]) History(ctx context.Context, code string, hr models.HistoryRange, useCache bool) ([]models.Quote, service.Source, error) {
	return unwrap(o.svc.GetHistory(ctx, code, hr, useCache))
}

func (o classOps[R]) Search(ctx context.Context, keyword string) ([]models.Quote, service.Source, error) {
	return unwrap(o.svc.Search(ctx, keyword))
}

func (o classOps[R]) Watchlist(ctx context.Context, userID, scope string) ([]watchRow, error) {
	items, err := o.svc.GetWatchlist(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	rows := make([]watchRow, len(items))
	for i, it := range items {
		rows[i] = watchRow{Entry: it.Entry, Quote: it.Quote.Base(), History: it.History}
	}
	return rows, nil
}

func (o classOps[R]) Add(ctx context.Context, e models.WatchlistEntry) (models.WatchlistEntry, bool, error) {
	return o.svc.AddToWatchlist(ctx, e)
}

func (o classOps[R]) Remove(ctx context.Context, userID, code string) (bool, error) {
	return o.svc.RemoveFromWatchlist(ctx, userID, code)
}

func (o classOps[R]) Update(ctx context.Context, userID, code string, sortOrder *int, notes *string) (models.WatchlistEntry, bool, error) {
	return o.svc.UpdateWatchlistEntry(ctx, userID, code, sortOrder, notes)
}

func opsFor(svcs *service.Services, name string) (assetOps, error) {
	class, ok := models.ParseAssetClass(strings.ToLower(strings.TrimSpace(name)))
	if !ok {
		return nil, usageErrorf("unknown asset class %q (one of %s)", name, classNames())
	}
	switch class {
	case models.ClassStock:
		return classOps[models.StockQuote]{svcs.Stock}, nil
	case models.ClassFund:
		return classOps[models.FundQuote]{svcs.Fund.AssetService}, nil
	case models.ClassBond:
		return classOps[models.BondQuote]{svcs.Bond}, nil
	case models.ClassFutures:
		return classOps[models.FuturesQuote]{svcs.Futures}, nil
	case models.ClassForex:
		return classOps[models.ForexQuote]{svcs.Forex}, nil
	case models.ClassGold:
		return classOps[models.GoldQuote]{svcs.Gold}, nil
	default:
		return classOps[models.IndexQuote]{svcs.Market.AssetService}, nil
	}
}

func classNames() string {
	names := make([]string, len(models.AssetClasses))
	for i, c := range models.AssetClasses {
		names[i] = string(c)
	}
	return strings.Join(names, "|")
}
