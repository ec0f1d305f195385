package dataflows

import (
	"context"
	"strings"
	"time"

	"github.com/dyike/cortexmarket/models"
)

// BondProvider serves exchange-listed convertible and government bonds.
type BondProvider struct {
	em  *EastmoneyClient
	now func() time.Time
}

func NewBondProvider(em *EastmoneyClient) *BondProvider {
	return &BondProvider{em: em, now: time.Now}
}

// BondSecID: Shanghai bond codes start with 11, 01, 02 or 10.
func BondSecID(code string) string {
	c := strings.TrimSpace(code)
	for _, p := range []string{"11", "01", "02", "10"} {
		if strings.HasPrefix(c, p) {
			return "1." + c
		}
	}
	return "0." + c
}

func (p *BondProvider) Realtime(ctx context.Context, f models.Filter) ([]models.BondQuote, error) {
	now := p.now()
	var rows []emQuote
	var err error
	if len(f.Codes) > 0 {
		secIDs := make([]string, len(f.Codes))
		for i, c := range f.Codes {
			secIDs[i] = BondSecID(c)
		}
		rows, err = p.em.Quotes(ctx, secIDs)
	} else {
		rows, err = p.em.List(ctx, fsConvertible, 300)
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.BondQuote, 0, len(rows))
	for _, r := range rows {
		q := p.fromEastmoney(r, now)
		if f.Category != "" && q.BondType != f.Category {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (p *BondProvider) fromEastmoney(r emQuote, now time.Time) models.BondQuote {
	bt := InferBondType(r.Name)
	return models.BondQuote{
		Quote:    emBase(r, now, bt),
		BondType: bt,
	}
}

func (p *BondProvider) History(ctx context.Context, code string, hr models.HistoryRange) ([]models.BondQuote, error) {
	start, end := hr.Bounds(p.now())
	bars, name, err := p.em.Klines(ctx, BondSecID(code), hr.PeriodOrDefault(), start, end, 0)
	if err != nil {
		return nil, err
	}
	bt := InferBondType(name)
	base := barsToBase(code, name, bt, bars)
	out := make([]models.BondQuote, len(base))
	for i, q := range base {
		out[i] = models.BondQuote{Quote: q, BondType: bt}
	}
	return out, nil
}

func (p *BondProvider) Search(ctx context.Context, keyword string) ([]models.BondQuote, error) {
	hits, err := p.em.Suggest(ctx, keyword, 30)
	if err != nil {
		return nil, err
	}
	now := p.now()
	var out []models.BondQuote
	for _, h := range hits {
		if !strings.Contains(h.SecurityTypeName, "债") {
			continue
		}
		bt := InferBondType(h.Name)
		out = append(out, models.BondQuote{
			Quote:    models.Quote{Time: now, Code: h.Code, Name: h.Name, Category: bt},
			BondType: bt,
		})
	}
	return out, nil
}
