package dataflows

import (
	"context"
	"strings"
	"time"

	"github.com/dyike/cortexmarket/models"
)

const (
	ForexCNY   = "cny"
	ForexMajor = "major"
	ForexCross = "cross"
)

type ForexPair struct {
	Code     string
	Name     string
	Category string
	// Scale multiplies quoted prices, e.g. JPY/CNY is quoted per 100 yen.
	Scale float64
}

func (fp ForexPair) yahooSymbol() string {
	return strings.ReplaceAll(fp.Code, "/", "") + "=X"
}

var ForexPairs = []ForexPair{
	{"USD/CNY", "美元/人民币", ForexCNY, 1},
	{"EUR/CNY", "欧元/人民币", ForexCNY, 1},
	{"GBP/CNY", "英镑/人民币", ForexCNY, 1},
	{"JPY/CNY", "100日元/人民币", ForexCNY, 100},
	{"HKD/CNY", "港币/人民币", ForexCNY, 1},
	{"EUR/USD", "欧元/美元", ForexMajor, 1},
	{"GBP/USD", "英镑/美元", ForexMajor, 1},
	{"USD/JPY", "美元/日元", ForexMajor, 1},
	{"AUD/USD", "澳元/美元", ForexMajor, 1},
	{"USD/CHF", "美元/瑞郎", ForexMajor, 1},
	{"USD/CAD", "美元/加元", ForexMajor, 1},
	{"EUR/GBP", "欧元/英镑", ForexCross, 1},
	{"EUR/JPY", "欧元/日元", ForexCross, 1},
	{"GBP/JPY", "英镑/日元", ForexCross, 1},
}

// LookupForexPair accepts "USD/CNY", "usdcny" or "USDCNY=X".
func LookupForexPair(code string) (ForexPair, bool) {
	key := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(code)), "=X")
	key = strings.ReplaceAll(key, "/", "")
	for _, fp := range ForexPairs {
		if strings.ReplaceAll(fp.Code, "/", "") == key {
			return fp, true
		}
	}
	return ForexPair{}, false
}

// ForexProvider serves the fixed pair table from Yahoo.
type ForexProvider struct {
	yf  *YahooFinanceClient
	now func() time.Time
}

func NewForexProvider(yf *YahooFinanceClient) *ForexProvider {
	return &ForexProvider{yf: yf, now: time.Now}
}

func (p *ForexProvider) pairs(f models.Filter) []ForexPair {
	var out []ForexPair
	if len(f.Codes) > 0 {
		for _, c := range f.Codes {
			if fp, ok := LookupForexPair(c); ok {
				out = append(out, fp)
			}
		}
	} else {
		out = append(out, ForexPairs...)
	}
	if f.Category == "" {
		return out
	}
	filtered := out[:0]
	for _, fp := range out {
		if fp.Category == f.Category {
			filtered = append(filtered, fp)
		}
	}
	return filtered
}

func (p *ForexProvider) Realtime(ctx context.Context, f models.Filter) ([]models.ForexQuote, error) {
	pairs := p.pairs(f)
	if len(pairs) == 0 {
		return nil, nil
	}
	bySymbol := make(map[string]ForexPair, len(pairs))
	symbols := make([]string, len(pairs))
	for i, fp := range pairs {
		symbols[i] = fp.yahooSymbol()
		bySymbol[symbols[i]] = fp
	}
	qs, err := p.yf.Quotes(ctx, symbols)
	if err != nil {
		return nil, err
	}
	now := p.now()
	out := make([]models.ForexQuote, 0, len(qs))
	for _, q := range qs {
		fp, ok := bySymbol[strings.ToUpper(q.Symbol)]
		if !ok {
			continue
		}
		base := yahooBase(scaleYahoo(q, fp.Scale), fp.Code, fp.Name, now, fp.Category)
		out = append(out, models.ForexQuote{
			Quote: base,
			Bid:   round(q.Bid*fp.Scale, 4),
			Ask:   round(q.Ask*fp.Scale, 4),
		})
	}
	return out, nil
}

func scaleYahoo(q yahooQuote, k float64) yahooQuote {
	if k == 1 {
		return q
	}
	q.Price *= k
	q.Open *= k
	q.High *= k
	q.Low *= k
	q.PrevClose *= k
	q.Change *= k
	return q
}

func (p *ForexProvider) History(ctx context.Context, code string, hr models.HistoryRange) ([]models.ForexQuote, error) {
	fp, ok := LookupForexPair(code)
	if !ok {
		return nil, nil
	}
	start, end := hr.Bounds(p.now())
	ybars, err := p.yf.History(ctx, fp.yahooSymbol(), hr.PeriodOrDefault(), start, end)
	if err != nil {
		return nil, err
	}
	bars := yahooBarsToEm(ybars)
	for i := range bars {
		bars[i].Open *= fp.Scale
		bars[i].High *= fp.Scale
		bars[i].Low *= fp.Scale
		bars[i].Close *= fp.Scale
	}
	base := barsToBase(fp.Code, fp.Name, fp.Category, bars)
	out := make([]models.ForexQuote, len(base))
	for i, q := range base {
		out[i] = models.ForexQuote{Quote: q}
	}
	return out, nil
}

// Search matches the pair table without a network call.
func (p *ForexProvider) Search(_ context.Context, keyword string) ([]models.ForexQuote, error) {
	now := p.now()
	var out []models.ForexQuote
	for _, fp := range ForexPairs {
		if containsFold(fp.Code, keyword) || containsFold(fp.Name, keyword) ||
			containsFold(strings.ReplaceAll(fp.Code, "/", ""), keyword) {
			out = append(out, models.ForexQuote{
				Quote: models.Quote{Time: now, Code: fp.Code, Name: fp.Name, Category: fp.Category},
			})
		}
	}
	return out, nil
}
