package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyike/cortexmarket/internal/cache"
	"github.com/dyike/cortexmarket/internal/dataflows"
	"github.com/dyike/cortexmarket/models"
)

// Markets in matrix order.
var Markets = []string{"CN", "HK", "US"}

// MarketService serves the CN/HK/US index matrix.
type MarketService struct {
	*AssetService[models.IndexQuote]
}

func NewMarketService(svc *AssetService[models.IndexQuote]) *MarketService {
	return &MarketService{AssetService: svc}
}

// Matrix lists the tracked indices per market.
func (m *MarketService) Matrix() map[string][]dataflows.IndexInfo {
	out := make(map[string][]dataflows.IndexInfo, len(Markets))
	for _, ix := range dataflows.IndexMatrix {
		out[ix.Market] = append(out[ix.Market], ix)
	}
	return out
}

func lookupIndex(market, code string) (dataflows.IndexInfo, error) {
	ix, ok := dataflows.LookupIndex(code)
	if !ok || (market != "" && !strings.EqualFold(ix.Market, market)) {
		return ix, fmt.Errorf("%w: index %s/%s", ErrInvalidCode, market, code)
	}
	return ix, nil
}

// Indices returns every index of one market, or all of them for "".
func (m *MarketService) Indices(ctx context.Context, market string, useCache bool) Result[models.IndexQuote] {
	return m.GetRealtime(ctx, models.Filter{Category: strings.ToUpper(market)}, useCache)
}

// Index returns one matrix entry; the cache key is market:realtime:{code}:{market}.
func (m *MarketService) Index(ctx context.Context, market, code string, useCache bool) (models.IndexQuote, bool, error) {
	ix, err := lookupIndex(market, code)
	if err != nil {
		return models.IndexQuote{}, false, err
	}
	res := m.GetRealtime(ctx, models.Filter{Codes: []string{ix.Code}, Category: ix.Market}, useCache)
	for _, q := range res.Records {
		if q.Code == ix.Code {
			return q, true, nil
		}
	}
	return models.IndexQuote{}, false, nil
}

// IndexHistory returns a trailing day window of daily bars.
func (m *MarketService) IndexHistory(ctx context.Context, market, code string, days int, useCache bool) Result[models.IndexQuote] {
	ix, err := lookupIndex(market, code)
	if err != nil {
		return Result[models.IndexQuote]{Source: SourceNone, Err: err}
	}
	if days <= 0 {
		return Result[models.IndexQuote]{Source: SourceNone, Err: fmt.Errorf("%w: days must be positive", ErrInvalidArgument)}
	}
	key := cache.Key(m.prefix(), "index_history", ix.Market, ix.Code, days)
	return m.history(ctx, key, ix.Code, models.HistoryRange{Period: models.PeriodDaily, Days: days}, useCache)
}
