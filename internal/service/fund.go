package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dyike/cortexmarket/internal/cache"
	"github.com/dyike/cortexmarket/internal/dataflows"
	"github.com/dyike/cortexmarket/models"
)

// FundTypeStat summarizes one fund type over the current fund list.
type FundTypeStat struct {
	Code      string  `json:"code"`
	FundType  string  `json:"fund_type"`
	Total     int     `json:"total"`
	Rise      int     `json:"rise"`
	Fall      int     `json:"fall"`
	Flat      int     `json:"flat"`
	AvgChange float64 `json:"avg_change"`
}

type FundService struct {
	*AssetService[models.FundQuote]
}

func NewFundService(svc *AssetService[models.FundQuote]) *FundService {
	return &FundService{AssetService: svc}
}

// TypeSummary aggregates the fund list by inferred type in display order.
// Types without funds are omitted.
func (f *FundService) TypeSummary(ctx context.Context, useCache bool) ([]FundTypeStat, error) {
	key := cache.Key(f.prefix(), "type_summary")
	var cached []FundTypeStat
	if useCache && f.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	res := f.GetRealtime(ctx, models.Filter{}, useCache)
	if res.Empty() {
		return nil, res.Err
	}
	stats := SummarizeFundTypes(res.Records)
	f.cache.Set(ctx, key, stats, f.opts.TTL.Daily)
	return stats, nil
}

func SummarizeFundTypes(funds []models.FundQuote) []FundTypeStat {
	type acc struct {
		stat FundTypeStat
		sum  decimal.Decimal
	}
	byType := map[string]*acc{}
	for _, q := range funds {
		t := q.FundType
		if t == "" {
			t = dataflows.InferFundType(q.Name)
		}
		if t == dataflows.FundTypeOther {
			continue
		}
		a, ok := byType[t]
		if !ok {
			a = &acc{stat: FundTypeStat{Code: "FUND_" + t, FundType: t}}
			byType[t] = a
		}
		a.stat.Total++
		switch {
		case q.ChangePercent > 0:
			a.stat.Rise++
		case q.ChangePercent < 0:
			a.stat.Fall++
		default:
			a.stat.Flat++
		}
		a.sum = a.sum.Add(decimal.NewFromFloat(q.ChangePercent))
	}
	var out []FundTypeStat
	for _, t := range dataflows.FundTypeOrder {
		a, ok := byType[t]
		if !ok {
			continue
		}
		a.stat.AvgChange = a.sum.Div(decimal.NewFromInt(int64(a.stat.Total))).Round(2).InexactFloat64()
		out = append(out, a.stat)
	}
	return out
}

// HotETFs returns the most traded ETFs by turnover amount.
func (f *FundService) HotETFs(ctx context.Context, limit int, useCache bool) Result[models.FundQuote] {
	res := f.GetRealtime(ctx, models.Filter{Category: dataflows.FundCategoryETF}, useCache)
	recs := append([]models.FundQuote(nil), res.Records...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Amount > recs[j].Amount })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	res.Records = recs
	return res
}

// Ranking returns the ETF and LOF boards ordered by change percent.
func (f *FundService) Ranking(ctx context.Context, limit int, useCache bool) Result[models.FundQuote] {
	res := f.GetRealtime(ctx, models.Filter{}, useCache)
	recs := append([]models.FundQuote(nil), res.Records...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].ChangePercent > recs[j].ChangePercent })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	res.Records = recs
	return res
}
