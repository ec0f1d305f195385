package dataflows

import (
	"context"
	"strings"
	"time"

	"github.com/dyike/cortexmarket/models"
)

// Default universes when a market is requested without codes.
var (
	defaultHKStocks = []string{"00700", "09988", "03690", "01810", "00941", "01299", "02318"}
	defaultUSStocks = []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "TSLA"}
)

// StockProvider serves A-shares from eastmoney, HK from Longport (eastmoney
// when Longport is not configured) and US from Yahoo.
type StockProvider struct {
	em  *EastmoneyClient
	yf  *YahooFinanceClient
	lp  *LongportClient
	now func() time.Time
}

func NewStockProvider(em *EastmoneyClient, yf *YahooFinanceClient, lp *LongportClient) *StockProvider {
	return &StockProvider{em: em, yf: yf, lp: lp, now: time.Now}
}

func (p *StockProvider) Realtime(ctx context.Context, f models.Filter) ([]models.StockQuote, error) {
	codes := f.Codes
	if len(codes) == 0 {
		switch strings.ToUpper(f.Category) {
		case "HK":
			codes = defaultHKStocks
		case "US":
			codes = defaultUSStocks
		default:
			rows, err := p.em.List(ctx, fsAShares, 200)
			if err != nil {
				return nil, err
			}
			now := p.now()
			out := make([]models.StockQuote, 0, len(rows))
			for _, r := range rows {
				out = append(out, p.fromEastmoney(r, "CN", now))
			}
			return out, nil
		}
	}

	groups := map[string][]string{}
	for _, c := range codes {
		m := StockMarket(c)
		if f.Category != "" && !strings.EqualFold(f.Category, m) {
			continue
		}
		groups[m] = append(groups[m], c)
	}

	now := p.now()
	var out []models.StockQuote
	var errs []error

	if cn := groups["CN"]; len(cn) > 0 {
		secIDs := make([]string, len(cn))
		for i, c := range cn {
			secIDs[i] = CNSecID(c)
		}
		rows, err := p.em.Quotes(ctx, secIDs)
		if err != nil {
			errs = append(errs, err)
		}
		for _, r := range rows {
			out = append(out, p.fromEastmoney(r, "CN", now))
		}
	}

	if hk := groups["HK"]; len(hk) > 0 {
		recs, err := p.realtimeHK(ctx, hk, now)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, recs...)
	}

	if us := groups["US"]; len(us) > 0 {
		symbols := make([]string, len(us))
		for i, c := range us {
			symbols[i] = strings.TrimSuffix(strings.ToUpper(c), ".US")
		}
		qs, err := p.yf.Quotes(ctx, symbols)
		if err != nil {
			errs = append(errs, err)
		}
		for _, q := range qs {
			out = append(out, models.StockQuote{
				Quote:  yahooBase(q, q.Symbol, "", now, "US"),
				Market: "US",
			})
		}
	}

	return partial("stock provider", out, errs)
}

func (p *StockProvider) realtimeHK(ctx context.Context, codes []string, now time.Time) ([]models.StockQuote, error) {
	var out []models.StockQuote
	if p.lp != nil {
		var errs []error
		for _, c := range codes {
			bars, err := p.lp.DailyBars(ctx, LongportSymbol(c), 2)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if q, ok := snapshotFromBars(normalizeHK(c), "", "HK", bars, now); ok {
				out = append(out, models.StockQuote{Quote: q, Market: "HK"})
			}
		}
		return partial("longport", out, errs)
	}

	secIDs := make([]string, len(codes))
	for i, c := range codes {
		secIDs[i] = HKSecID(c)
	}
	rows, err := p.em.Quotes(ctx, secIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out = append(out, p.fromEastmoney(r, "HK", now))
	}
	return out, nil
}

func (p *StockProvider) fromEastmoney(r emQuote, market string, now time.Time) models.StockQuote {
	return models.StockQuote{
		Quote:     emBase(r, now, market),
		Market:    market,
		Turnover:  float64(r.Turnover),
		PERatio:   float64(r.PE),
		PBRatio:   float64(r.PB),
		MarketCap: float64(r.MarketCap),
	}
}

func (p *StockProvider) History(ctx context.Context, code string, hr models.HistoryRange) ([]models.StockQuote, error) {
	start, end := hr.Bounds(p.now())
	market := StockMarket(code)

	var bars []emBar
	var name string
	var err error
	switch market {
	case "CN":
		bars, name, err = p.em.Klines(ctx, CNSecID(code), hr.PeriodOrDefault(), start, end, 0)
	case "HK":
		if p.lp != nil && hr.PeriodOrDefault() == models.PeriodDaily {
			days := hr.Days
			if days <= 0 {
				days = int(end.Sub(start).Hours()/24) + 1
			}
			bars, err = p.lp.DailyBars(ctx, LongportSymbol(code), days)
		} else {
			bars, name, err = p.em.Klines(ctx, HKSecID(code), hr.PeriodOrDefault(), start, end, 0)
		}
		code = normalizeHK(code)
	default:
		var ybars []yahooBar
		ybars, err = p.yf.History(ctx, strings.ToUpper(code), hr.PeriodOrDefault(), start, end)
		bars = yahooBarsToEm(ybars)
	}
	if err != nil {
		return nil, err
	}

	base := barsToBase(code, name, market, bars)
	out := make([]models.StockQuote, len(base))
	for i, q := range base {
		out[i] = models.StockQuote{Quote: q, Market: market}
	}
	return out, nil
}

func (p *StockProvider) Search(ctx context.Context, keyword string) ([]models.StockQuote, error) {
	hits, err := p.em.Suggest(ctx, keyword, 30)
	if err != nil {
		return nil, err
	}
	now := p.now()
	var out []models.StockQuote
	for _, h := range hits {
		market := suggestionMarket(h)
		if market == "" {
			continue
		}
		out = append(out, models.StockQuote{
			Quote:  models.Quote{Time: now, Code: h.Code, Name: h.Name, Category: market},
			Market: market,
		})
	}
	return out, nil
}

func suggestionMarket(h emSuggestion) string {
	t := h.SecurityTypeName
	switch {
	case strings.Contains(t, "港股"):
		return "HK"
	case strings.Contains(t, "美股"):
		return "US"
	case strings.HasSuffix(t, "A"), strings.Contains(t, "科创板"), strings.Contains(t, "创业板"):
		return "CN"
	}
	return ""
}

func normalizeHK(code string) string {
	c := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(code)), ".HK")
	if n := 5 - len(c); n > 0 {
		c = strings.Repeat("0", n) + c
	}
	return c
}
