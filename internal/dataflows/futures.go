package dataflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/cortexmarket/models"
)

// FuturesProvider serves domestic futures main contracts from eastmoney.
type FuturesProvider struct {
	em  *EastmoneyClient
	now func() time.Time
}

func NewFuturesProvider(em *EastmoneyClient) *FuturesProvider {
	return &FuturesProvider{em: em, now: time.Now}
}

// FuturesSecID resolves a contract to its secid; unknown prefixes fail.
func FuturesSecID(code string) (string, error) {
	m, ok := futuresMarket(FuturesExchange(code))
	if !ok {
		return "", fmt.Errorf("futures contract %q: unknown exchange", code)
	}
	c := strings.TrimSpace(code)
	// CZCE and CFFEX contracts are upper case on the wire, the rest lower case.
	if m == 115 || m == 8 {
		c = strings.ToUpper(c)
	} else {
		c = strings.ToLower(c)
	}
	return fmt.Sprintf("%d.%s", m, c), nil
}

// Realtime lists all contracts; codes and category (index, bond, commodity or
// an exchange name) narrow the list.
func (p *FuturesProvider) Realtime(ctx context.Context, f models.Filter) ([]models.FuturesQuote, error) {
	rows, err := p.em.List(ctx, fsFutures, 1000)
	if err != nil {
		return nil, err
	}
	now := p.now()
	want := codeSet(f.Codes)
	out := make([]models.FuturesQuote, 0, len(rows))
	for _, r := range rows {
		if len(want) > 0 && !want[strings.ToUpper(r.Code)] {
			continue
		}
		q := p.fromEastmoney(r, now)
		if f.Category != "" && !strings.EqualFold(q.Category, f.Category) && !strings.EqualFold(q.Exchange, f.Category) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (p *FuturesProvider) fromEastmoney(r emQuote, now time.Time) models.FuturesQuote {
	return models.FuturesQuote{
		Quote:      emBase(r, now, FuturesCategory(r.Code)),
		Exchange:   FuturesExchange(r.Code),
		Settlement: float64(r.PrevClose),
	}
}

func (p *FuturesProvider) History(ctx context.Context, code string, hr models.HistoryRange) ([]models.FuturesQuote, error) {
	secID, err := FuturesSecID(code)
	if err != nil {
		return nil, err
	}
	start, end := hr.Bounds(p.now())
	bars, name, err := p.em.Klines(ctx, secID, hr.PeriodOrDefault(), start, end, 0)
	if err != nil {
		return nil, err
	}
	exchange := FuturesExchange(code)
	base := barsToBase(code, name, FuturesCategory(code), bars)
	out := make([]models.FuturesQuote, len(base))
	for i, q := range base {
		out[i] = models.FuturesQuote{Quote: q, Exchange: exchange}
	}
	return out, nil
}

// Search filters the live contract list by code or name.
func (p *FuturesProvider) Search(ctx context.Context, keyword string) ([]models.FuturesQuote, error) {
	all, err := p.Realtime(ctx, models.Filter{})
	if err != nil {
		return nil, err
	}
	var out []models.FuturesQuote
	for _, q := range all {
		if containsFold(q.Code, keyword) || containsFold(q.Name, keyword) {
			out = append(out, q)
		}
	}
	return out, nil
}
