package dataflows

import (
	"context"
	"strings"
	"time"

	"github.com/dyike/cortexmarket/models"
)

const (
	GoldExchangeSGE   = "SGE"
	GoldExchangeCOMEX = "COMEX"
)

type goldProduct struct {
	code     string
	name     string
	exchange string
	yahoo    string
}

var goldProducts = []goldProduct{
	{"AU9999", "黄金9999", GoldExchangeSGE, ""},
	{"AU9995", "黄金9995", GoldExchangeSGE, ""},
	{"AU100G", "黄金100g", GoldExchangeSGE, ""},
	{"PT9995", "铂金9995", GoldExchangeSGE, ""},
	{"AG9999", "白银9999", GoldExchangeSGE, ""},
	{"GC", "COMEX黄金", GoldExchangeCOMEX, "GC=F"},
	{"SI", "COMEX白银", GoldExchangeCOMEX, "SI=F"},
}

func lookupGold(code string) (goldProduct, bool) {
	c := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(code)), "=F")
	c = strings.ReplaceAll(c, ".", "")
	for _, g := range goldProducts {
		if g.code == c {
			return g, true
		}
	}
	return goldProduct{}, false
}

// GoldProvider merges Shanghai Gold Exchange spot quotes with COMEX futures.
type GoldProvider struct {
	em  *EastmoneyClient
	yf  *YahooFinanceClient
	now func() time.Time
}

func NewGoldProvider(em *EastmoneyClient, yf *YahooFinanceClient) *GoldProvider {
	return &GoldProvider{em: em, yf: yf, now: time.Now}
}

func (p *GoldProvider) Realtime(ctx context.Context, f models.Filter) ([]models.GoldQuote, error) {
	want := codeSet(f.Codes)
	pick := func(g goldProduct) bool {
		if len(want) > 0 && !want[g.code] {
			return false
		}
		return f.Category == "" || strings.EqualFold(f.Category, g.exchange)
	}

	now := p.now()
	var out []models.GoldQuote
	var errs []error

	needSGE, needCOMEX := false, []goldProduct{}
	for _, g := range goldProducts {
		if !pick(g) {
			continue
		}
		if g.exchange == GoldExchangeSGE {
			needSGE = true
		} else {
			needCOMEX = append(needCOMEX, g)
		}
	}

	if needSGE {
		rows, err := p.em.List(ctx, fsSGE, 100)
		if err != nil {
			errs = append(errs, err)
		}
		for _, r := range rows {
			g, ok := lookupGold(r.Code)
			if !ok || !pick(g) {
				continue
			}
			q := emBase(r, now, g.exchange)
			q.Code, q.Name = g.code, g.name
			out = append(out, models.GoldQuote{Quote: q, Exchange: g.exchange})
		}
	}

	if len(needCOMEX) > 0 {
		symbols := make([]string, len(needCOMEX))
		for i, g := range needCOMEX {
			symbols[i] = g.yahoo
		}
		qs, err := p.yf.Quotes(ctx, symbols)
		if err != nil {
			errs = append(errs, err)
		}
		for _, q := range qs {
			g, ok := lookupGold(q.Symbol)
			if !ok {
				continue
			}
			out = append(out, models.GoldQuote{
				Quote:    yahooBase(q, g.code, g.name, now, g.exchange),
				Exchange: g.exchange,
			})
		}
	}

	return partial("gold provider", out, errs)
}

func (p *GoldProvider) History(ctx context.Context, code string, hr models.HistoryRange) ([]models.GoldQuote, error) {
	g, ok := lookupGold(code)
	if !ok {
		return nil, nil
	}
	start, end := hr.Bounds(p.now())
	var bars []emBar
	var err error
	if g.exchange == GoldExchangeCOMEX {
		var ybars []yahooBar
		ybars, err = p.yf.History(ctx, g.yahoo, hr.PeriodOrDefault(), start, end)
		bars = yahooBarsToEm(ybars)
	} else {
		bars, _, err = p.em.Klines(ctx, "118."+g.code, hr.PeriodOrDefault(), start, end, 0)
	}
	if err != nil {
		return nil, err
	}
	base := barsToBase(g.code, g.name, g.exchange, bars)
	out := make([]models.GoldQuote, len(base))
	for i, q := range base {
		out[i] = models.GoldQuote{Quote: q, Exchange: g.exchange}
	}
	return out, nil
}

func (p *GoldProvider) Search(_ context.Context, keyword string) ([]models.GoldQuote, error) {
	now := p.now()
	var out []models.GoldQuote
	for _, g := range goldProducts {
		if containsFold(g.code, keyword) || containsFold(g.name, keyword) {
			out = append(out, models.GoldQuote{
				Quote:    models.Quote{Time: now, Code: g.code, Name: g.name, Category: g.exchange},
				Exchange: g.exchange,
			})
		}
	}
	return out, nil
}
