package dataflows

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/models"
)

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// pctChange is (cur-prev)/prev in percent, 0 when prev is 0.
func pctChange(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	c, p := decimal.NewFromFloat(cur), decimal.NewFromFloat(prev)
	return c.Sub(p).Div(p).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

func emBase(q emQuote, now time.Time, category string) models.Quote {
	return models.Quote{
		Time:          now,
		Code:          q.Code,
		Name:          q.Name,
		Category:      category,
		Open:          float64(q.Open),
		High:          float64(q.High),
		Low:           float64(q.Low),
		Close:         float64(q.Price),
		Volume:        float64(q.Volume),
		Amount:        float64(q.Amount),
		Change:        float64(q.Change),
		ChangePercent: float64(q.Pct),
	}
}

func yahooBase(q yahooQuote, code, name string, now time.Time, category string) models.Quote {
	ts := q.Time
	if ts.IsZero() || ts.Unix() <= 0 {
		ts = now
	}
	if name == "" {
		name = q.Name
	}
	return models.Quote{
		Time:          ts,
		Code:          code,
		Name:          name,
		Category:      category,
		Open:          q.Open,
		High:          q.High,
		Low:           q.Low,
		Close:         q.Price,
		Volume:        q.Volume,
		Change:        round(q.Change, 4),
		ChangePercent: round(q.ChangePct, 2),
	}
}

// barsToBase converts ascending bars; change is measured against the previous bar.
func barsToBase(code, name, category string, bars []emBar) []models.Quote {
	out := make([]models.Quote, 0, len(bars))
	for i, b := range bars {
		q := models.Quote{
			Time:     b.Time,
			Code:     code,
			Name:     name,
			Category: category,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Volume:   b.Volume,
			Amount:   b.Amount,
		}
		if i > 0 {
			prev := bars[i-1].Close
			q.Change = round(b.Close-prev, 4)
			q.ChangePercent = pctChange(b.Close, prev)
		}
		out = append(out, q)
	}
	return out
}

func yahooBarsToEm(bars []yahooBar) []emBar {
	out := make([]emBar, 0, len(bars))
	for _, b := range bars {
		if b.Close == 0 {
			continue
		}
		out = append(out, emBar{Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}
	return out
}

// snapshotFromBars builds a realtime quote out of the last two daily bars.
func snapshotFromBars(code, name, category string, bars []emBar, now time.Time) (models.Quote, bool) {
	if len(bars) == 0 {
		return models.Quote{}, false
	}
	last := bars[len(bars)-1]
	q := models.Quote{
		Time:     now,
		Code:     code,
		Name:     name,
		Category: category,
		Open:     last.Open,
		High:     last.High,
		Low:      last.Low,
		Close:    last.Close,
		Volume:   last.Volume,
		Amount:   last.Amount,
	}
	if len(bars) > 1 {
		prev := bars[len(bars)-2].Close
		q.Change = round(last.Close-prev, 4)
		q.ChangePercent = pctChange(last.Close, prev)
	}
	return q, true
}

// partial merges per-group results: records win over errors, errors are
// logged and only returned when nothing came back.
func partial[R any](component string, out []R, errs []error) ([]R, error) {
	err := errors.Join(errs...)
	if err == nil {
		return out, nil
	}
	if len(out) > 0 {
		logx.Errorf("%s: partial failure: %v", component, err)
		return out, nil
	}
	return nil, err
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToUpper(s), strings.ToUpper(sub))
}

func codeSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	return set
}
