package dataflows

import (
	"context"
	"strings"
	"time"

	"github.com/dyike/cortexmarket/models"
)

// IndexInfo is one entry of the index matrix. Source is an eastmoney secid
// for CN and a Yahoo symbol otherwise.
type IndexInfo struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"`
	Source string `json:"-"`
}

var IndexMatrix = []IndexInfo{
	{"sh000001", "上证指数", "CN", "1.000001"},
	{"sz399001", "深证成指", "CN", "0.399001"},
	{"sz399006", "创业板指", "CN", "0.399006"},
	{"HSI", "恒生指数", "HK", "^HSI"},
	{"HSCEI", "恒生国企指数", "HK", "^HSCE"},
	{"HSTECH", "恒生科技指数", "HK", "HSTECH.HK"},
	{"DJI", "道琼斯工业指数", "US", "^DJI"},
	{"IXIC", "纳斯达克综合指数", "US", "^IXIC"},
	{"SPX", "标普500指数", "US", "^GSPC"},
}

func LookupIndex(code string) (IndexInfo, bool) {
	for _, ix := range IndexMatrix {
		if strings.EqualFold(ix.Code, code) || strings.EqualFold(ix.Source, code) {
			return ix, true
		}
	}
	return IndexInfo{}, false
}

// IndexProvider serves the index matrix.
type IndexProvider struct {
	em  *EastmoneyClient
	yf  *YahooFinanceClient
	now func() time.Time
}

func NewIndexProvider(em *EastmoneyClient, yf *YahooFinanceClient) *IndexProvider {
	return &IndexProvider{em: em, yf: yf, now: time.Now}
}

func (p *IndexProvider) Realtime(ctx context.Context, f models.Filter) ([]models.IndexQuote, error) {
	var pick []IndexInfo
	if len(f.Codes) > 0 {
		for _, c := range f.Codes {
			if ix, ok := LookupIndex(c); ok {
				pick = append(pick, ix)
			}
		}
	} else {
		pick = IndexMatrix
	}

	var secIDs, symbols []string
	byKey := map[string]IndexInfo{}
	for _, ix := range pick {
		if f.Category != "" && !strings.EqualFold(f.Category, ix.Market) {
			continue
		}
		if ix.Market == "CN" {
			secIDs = append(secIDs, ix.Source)
		} else {
			symbols = append(symbols, ix.Source)
		}
		byKey[ix.Source] = ix
	}

	now := p.now()
	var out []models.IndexQuote
	var errs []error
	if len(secIDs) > 0 {
		rows, err := p.em.Quotes(ctx, secIDs)
		if err != nil {
			errs = append(errs, err)
		}
		for _, r := range rows {
			ix, ok := byKey[r.secID()]
			if !ok {
				continue
			}
			q := emBase(r, now, ix.Market)
			q.Code, q.Name = ix.Code, ix.Name
			out = append(out, models.IndexQuote{Quote: q, Market: ix.Market})
		}
	}
	if len(symbols) > 0 {
		qs, err := p.yf.Quotes(ctx, symbols)
		if err != nil {
			errs = append(errs, err)
		}
		for _, q := range qs {
			ix, ok := byKey[strings.ToUpper(q.Symbol)]
			if !ok {
				continue
			}
			out = append(out, models.IndexQuote{
				Quote:  yahooBase(q, ix.Code, ix.Name, now, ix.Market),
				Market: ix.Market,
			})
		}
	}
	return partial("index provider", out, errs)
}

func (p *IndexProvider) History(ctx context.Context, code string, hr models.HistoryRange) ([]models.IndexQuote, error) {
	ix, ok := LookupIndex(code)
	if !ok {
		return nil, nil
	}
	start, end := hr.Bounds(p.now())
	var bars []emBar
	var err error
	if ix.Market == "CN" {
		bars, _, err = p.em.Klines(ctx, ix.Source, hr.PeriodOrDefault(), start, end, 0)
	} else {
		var ybars []yahooBar
		ybars, err = p.yf.History(ctx, ix.Source, hr.PeriodOrDefault(), start, end)
		bars = yahooBarsToEm(ybars)
	}
	if err != nil {
		return nil, err
	}
	base := barsToBase(ix.Code, ix.Name, ix.Market, bars)
	out := make([]models.IndexQuote, len(base))
	for i, q := range base {
		out[i] = models.IndexQuote{Quote: q, Market: ix.Market}
	}
	return out, nil
}

func (p *IndexProvider) Search(_ context.Context, keyword string) ([]models.IndexQuote, error) {
	now := p.now()
	var out []models.IndexQuote
	for _, ix := range IndexMatrix {
		if containsFold(ix.Code, keyword) || containsFold(ix.Name, keyword) {
			out = append(out, models.IndexQuote{
				Quote:  models.Quote{Time: now, Code: ix.Code, Name: ix.Name, Category: ix.Market},
				Market: ix.Market,
			})
		}
	}
	return out, nil
}
