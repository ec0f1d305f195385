package dataflows

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/dyike/cortexmarket/models"
)

const (
	FundCategoryETF = "ETF"
	FundCategoryLOF = "LOF"
)

type fundEstimate struct {
	FundCode string    `json:"fundcode"`
	Name     string    `json:"name"`
	NAVDate  string    `json:"jzrq"`
	NAV      flexFloat `json:"dwjz"`
	Estimate flexFloat `json:"gsz"`
	EstPct   flexFloat `json:"gszzl"`
	EstTime  string    `json:"gztime"`
}

type fundNAVResp struct {
	Data *struct {
		List []struct {
			Date   string    `json:"FSRQ"`
			NAV    flexFloat `json:"DWJZ"`
			AccNAV flexFloat `json:"LJJZ"`
			Pct    flexFloat `json:"JZZZL"`
		} `json:"LSJZList"`
	} `json:"Data"`
	ErrCode int `json:"ErrCode"`
}

type fundSearchResp struct {
	Datas []struct {
		Code     string `json:"CODE"`
		Name     string `json:"NAME"`
		Category int    `json:"CATEGORY"`
		BaseInfo *struct {
			FType string    `json:"FTYPE"`
			NAV   flexFloat `json:"DWJZ"`
		} `json:"FundBaseInfo"`
	} `json:"Datas"`
}

var jsonpBody = regexp.MustCompile(`(?s)^[\w$]+\((.*)\);?\s*$`)

// FundProvider serves open-end fund estimates and exchange-traded fund quotes.
type FundProvider struct {
	em  *EastmoneyClient
	now func() time.Time
}

func NewFundProvider(em *EastmoneyClient) *FundProvider {
	return &FundProvider{em: em, now: time.Now}
}

// Realtime: codes resolve through the intraday estimate (falling back to the
// exchange quote for listed funds). Without codes the ETF/LOF boards are
// listed; a fund type category filters them.
func (p *FundProvider) Realtime(ctx context.Context, f models.Filter) ([]models.FundQuote, error) {
	now := p.now()
	if len(f.Codes) == 0 {
		var boards []string
		switch strings.ToUpper(f.Category) {
		case FundCategoryETF:
			boards = []string{FundCategoryETF}
		case FundCategoryLOF:
			boards = []string{FundCategoryLOF}
		default:
			boards = []string{FundCategoryETF, FundCategoryLOF}
		}
		var out []models.FundQuote
		var errs []error
		for _, b := range boards {
			fs := fsETF
			if b == FundCategoryLOF {
				fs = fsLOF
			}
			rows, err := p.em.List(ctx, fs, 300)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, r := range rows {
				q := p.fromExchange(r, b, now)
				if typeFilter(f.Category) && q.FundType != f.Category {
					continue
				}
				out = append(out, q)
			}
		}
		return partial("fund provider", out, errs)
	}

	var out []models.FundQuote
	var errs []error
	var listed []string
	for _, code := range f.Codes {
		est, err := p.estimate(ctx, code)
		if err != nil || est.FundCode == "" {
			listed = append(listed, CNSecID(code))
			continue
		}
		out = append(out, p.fromEstimate(est, now))
	}
	if len(listed) > 0 {
		rows, err := p.em.Quotes(ctx, listed)
		if err != nil {
			errs = append(errs, err)
		}
		for _, r := range rows {
			out = append(out, p.fromExchange(r, FundCategoryETF, now))
		}
	}
	return partial("fund provider", out, errs)
}

func typeFilter(category string) bool {
	c := strings.ToUpper(category)
	return category != "" && c != FundCategoryETF && c != FundCategoryLOF
}

func (p *FundProvider) estimate(ctx context.Context, code string) (fundEstimate, error) {
	var est fundEstimate
	resp, err := p.em.get(ctx, fmt.Sprintf("%s/js/%s.js", p.em.endpoints.FundGZ, code), map[string]string{
		"rt": strconv.FormatInt(p.now().UnixMilli(), 10),
	})
	if err != nil {
		return est, err
	}
	m := jsonpBody.FindSubmatch(resp.Body())
	if m == nil || len(strings.TrimSpace(string(m[1]))) == 0 {
		return est, fmt.Errorf("fund estimate %s: empty response", code)
	}
	if err := sonic.Unmarshal(m[1], &est); err != nil {
		return est, fmt.Errorf("decode fund estimate %s: %w", code, err)
	}
	return est, nil
}

func (p *FundProvider) fromEstimate(e fundEstimate, now time.Time) models.FundQuote {
	ts := now
	if t, err := time.ParseInLocation("2006-01-02 15:04", e.EstTime, p.em.loc); err == nil {
		ts = t
	}
	nav, est := float64(e.NAV), float64(e.Estimate)
	return models.FundQuote{
		Quote: models.Quote{
			Time:          ts,
			Code:          e.FundCode,
			Name:          e.Name,
			Close:         est,
			Change:        round(est-nav, 4),
			ChangePercent: float64(e.EstPct),
		},
		FundType:     InferFundType(e.Name),
		NAV:          nav,
		EstimatedNAV: est,
	}
}

func (p *FundProvider) fromExchange(r emQuote, board string, now time.Time) models.FundQuote {
	q := models.FundQuote{
		Quote:    emBase(r, now, board),
		FundType: InferFundType(r.Name),
		NAV:      float64(r.Price),
	}
	if board == FundCategoryETF {
		q.ETFType = InferETFType(r.Name)
	}
	return q
}

// History reads the published NAV series; listed funds without one fall
// back to exchange klines.
func (p *FundProvider) History(ctx context.Context, code string, hr models.HistoryRange) ([]models.FundQuote, error) {
	start, end := hr.Bounds(p.now())
	params := map[string]string{
		"fundCode":  code,
		"pageIndex": "1",
		"pageSize":  "1000",
	}
	if !start.IsZero() {
		params["startDate"] = start.In(p.em.loc).Format("2006-01-02")
	}
	params["endDate"] = end.In(p.em.loc).Format("2006-01-02")

	resp, err := p.em.getWithReferer(ctx, p.em.endpoints.FundAPI+"/f10/lsjz", "http://fundf10.eastmoney.com/", params)
	if err == nil {
		var navs fundNAVResp
		if err := sonic.Unmarshal(resp.Body(), &navs); err != nil {
			return nil, fmt.Errorf("decode fund nav %s: %w", code, err)
		}
		if navs.Data != nil && len(navs.Data.List) > 0 {
			list := navs.Data.List
			out := make([]models.FundQuote, 0, len(list))
			// newest first on the wire
			for i := len(list) - 1; i >= 0; i-- {
				row := list[i]
				ts, perr := time.ParseInLocation("2006-01-02", row.Date, p.em.loc)
				if perr != nil {
					continue
				}
				out = append(out, models.FundQuote{
					Quote: models.Quote{
						Time:          ts,
						Code:          code,
						Open:          float64(row.NAV),
						High:          float64(row.NAV),
						Low:           float64(row.NAV),
						Close:         float64(row.NAV),
						ChangePercent: float64(row.Pct),
					},
					NAV:    float64(row.NAV),
					AccNAV: float64(row.AccNAV),
				})
			}
			return out, nil
		}
	}

	bars, name, kerr := p.em.Klines(ctx, CNSecID(code), hr.PeriodOrDefault(), start, end, 0)
	if kerr != nil {
		if err != nil {
			return nil, fmt.Errorf("fund history %s: %w", code, err)
		}
		return nil, kerr
	}
	base := barsToBase(code, name, FundCategoryETF, bars)
	out := make([]models.FundQuote, len(base))
	for i, q := range base {
		out[i] = models.FundQuote{Quote: q, FundType: InferFundType(name), NAV: q.Close}
	}
	return out, nil
}

func (p *FundProvider) Search(ctx context.Context, keyword string) ([]models.FundQuote, error) {
	resp, err := p.em.get(ctx, p.em.endpoints.FundSugg+"/FundSearch/api/FundSearchAPI.ashx", map[string]string{
		"m":   "1",
		"key": keyword,
	})
	if err != nil {
		return nil, err
	}
	var out fundSearchResp
	if err := sonic.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode fund search: %w", err)
	}
	now := p.now()
	var funds []models.FundQuote
	for _, d := range out.Datas {
		if d.Code == "" {
			continue
		}
		fq := models.FundQuote{
			Quote:    models.Quote{Time: now, Code: d.Code, Name: d.Name},
			FundType: InferFundType(d.Name),
		}
		if d.BaseInfo != nil {
			if t := ParseFundType(d.BaseInfo.FType); t != FundTypeOther {
				fq.FundType = t
			}
			fq.NAV = float64(d.BaseInfo.NAV)
			fq.Close = fq.NAV
		}
		funds = append(funds, fq)
	}
	return funds, nil
}
