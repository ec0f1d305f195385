package dataflows

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Eastmoney public quote endpoints. Each can be pointed at a test server.
type EastmoneyEndpoints struct {
	Push2    string
	Push2His string
	Search   string
	FundGZ   string
	FundAPI  string
	FundSugg string
}

func DefaultEastmoneyEndpoints() EastmoneyEndpoints {
	return EastmoneyEndpoints{
		Push2:    "https://push2.eastmoney.com",
		Push2His: "https://push2his.eastmoney.com",
		Search:   "https://searchapi.eastmoney.com",
		FundGZ:   "https://fundgz.1234567.com.cn",
		FundAPI:  "https://api.fund.eastmoney.com",
		FundSugg: "https://fundsuggest.eastmoney.com",
	}
}

const (
	// clist filters
	fsAShares     = "m:0 t:6,m:0 t:80,m:1 t:2,m:1 t:23,m:0 t:81 s:2048"
	fsFutures     = "m:113,m:114,m:115,m:8,m:142"
	fsSGE         = "m:118"
	fsConvertible = "b:MK0354"
	fsETF         = "b:MK0021,b:MK0022,b:MK0023,b:MK0024"
	fsLOF         = "b:MK0404,b:MK0405,b:MK0406,b:MK0407"

	quoteFields = "f2,f3,f4,f5,f6,f8,f9,f12,f13,f14,f15,f16,f17,f18,f20,f23"
	suggestKey  = "D43BF722C8E33BDC906FB84D85E326E8"
)

// flexFloat decodes numbers that may arrive as "-" or as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "-" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// emQuote is one row of clist/ulist.
type emQuote struct {
	Price     flexFloat `json:"f2"`
	Pct       flexFloat `json:"f3"`
	Change    flexFloat `json:"f4"`
	Volume    flexFloat `json:"f5"`
	Amount    flexFloat `json:"f6"`
	Turnover  flexFloat `json:"f8"`
	PE        flexFloat `json:"f9"`
	Code      string    `json:"f12"`
	Market    int       `json:"f13"`
	Name      string    `json:"f14"`
	High      flexFloat `json:"f15"`
	Low       flexFloat `json:"f16"`
	Open      flexFloat `json:"f17"`
	PrevClose flexFloat `json:"f18"`
	MarketCap flexFloat `json:"f20"`
	PB        flexFloat `json:"f23"`
}

func (q emQuote) secID() string { return fmt.Sprintf("%d.%s", q.Market, q.Code) }

type emListResp struct {
	RC   int `json:"rc"`
	Data *struct {
		Total int       `json:"total"`
		Diff  []emQuote `json:"diff"`
	} `json:"data"`
}

// emBar is one parsed kline: "date,open,close,high,low,volume,amount".
type emBar struct {
	Time   time.Time
	Open   float64
	Close  float64
	High   float64
	Low    float64
	Volume float64
	Amount float64
}

type emKlineResp struct {
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

type emSuggestion struct {
	Code             string `json:"Code"`
	Name             string `json:"Name"`
	MktNum           string `json:"MktNum"`
	SecurityTypeName string `json:"SecurityTypeName"`
	QuoteID          string `json:"QuoteID"`
}

type emSuggestResp struct {
	QuotationCodeTable struct {
		Data []emSuggestion `json:"Data"`
	} `json:"QuotationCodeTable"`
}

// EastmoneyClient talks to the eastmoney quote, kline, search and fund endpoints.
type EastmoneyClient struct {
	client    *resty.Client
	endpoints EastmoneyEndpoints
	limiter   *rate.Limiter
	loc       *time.Location
}

func NewEastmoneyClient(endpoints EastmoneyEndpoints, timeout time.Duration, loc *time.Location) *EastmoneyClient {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	client.SetHeader("Referer", "https://quote.eastmoney.com/")
	if loc == nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	return &EastmoneyClient{
		client:    client,
		endpoints: endpoints,
		limiter:   rate.NewLimiter(rate.Limit(5), 5),
		loc:       loc,
	}
}

func (c *EastmoneyClient) get(ctx context.Context, url string, params map[string]string) (*resty.Response, error) {
	return c.getWithReferer(ctx, url, "", params)
}

// getWithReferer overrides the client-wide Referer; the fund f10 API rejects
// requests coming from the quote site.
func (c *EastmoneyClient) getWithReferer(ctx context.Context, url, referer string, params map[string]string) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var resp *resty.Response
	err := WithRetry(ctx, DefaultRetryConfig(), func() error {
		req := c.client.R().SetContext(ctx).SetQueryParams(params)
		if referer != "" {
			req.SetHeader("Referer", referer)
		}
		r, err := req.Get(url)
		if err != nil {
			return fmt.Errorf("eastmoney request %s: %w", url, err)
		}
		if r.StatusCode() != 200 {
			return fmt.Errorf("eastmoney %s: http %d", url, r.StatusCode())
		}
		resp = r
		return nil
	})
	return resp, err
}

// List pages through clist for the fs filter, at most limit rows (0 = 500).
func (c *EastmoneyClient) List(ctx context.Context, fs string, limit int) ([]emQuote, error) {
	if limit <= 0 {
		limit = 500
	}
	resp, err := c.get(ctx, c.endpoints.Push2+"/api/qt/clist/get", map[string]string{
		"pn":     "1",
		"pz":     strconv.Itoa(limit),
		"po":     "1",
		"np":     "1",
		"fltt":   "2",
		"invt":   "2",
		"fid":    "f3",
		"fs":     fs,
		"fields": quoteFields,
	})
	if err != nil {
		return nil, err
	}
	return decodeList(resp.Body())
}

// Quotes fetches specific instruments by secid ("1.600519").
func (c *EastmoneyClient) Quotes(ctx context.Context, secIDs []string) ([]emQuote, error) {
	if len(secIDs) == 0 {
		return nil, nil
	}
	resp, err := c.get(ctx, c.endpoints.Push2+"/api/qt/ulist.np/get", map[string]string{
		"fltt":   "2",
		"invt":   "2",
		"secids": strings.Join(secIDs, ","),
		"fields": quoteFields,
	})
	if err != nil {
		return nil, err
	}
	return decodeList(resp.Body())
}

func decodeList(body []byte) ([]emQuote, error) {
	var out emListResp
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode eastmoney list: %w", err)
	}
	if out.Data == nil {
		return nil, nil
	}
	rows := out.Data.Diff[:0]
	for _, q := range out.Data.Diff {
		// suspended or delisted rows come back without a price
		if q.Code == "" {
			continue
		}
		rows = append(rows, q)
	}
	return rows, nil
}

func klt(period string) string {
	switch period {
	case "weekly":
		return "102"
	case "monthly":
		return "103"
	default:
		return "101"
	}
}

// Klines returns bars for secid between start and end (zero = open ended).
func (c *EastmoneyClient) Klines(ctx context.Context, secID, period string, start, end time.Time, limit int) ([]emBar, string, error) {
	beg, fin := "0", "20500101"
	if !start.IsZero() {
		beg = start.In(c.loc).Format("20060102")
	}
	if !end.IsZero() {
		fin = end.In(c.loc).Format("20060102")
	}
	if limit <= 0 {
		limit = 1000
	}
	resp, err := c.get(ctx, c.endpoints.Push2His+"/api/qt/stock/kline/get", map[string]string{
		"secid":   secID,
		"fields1": "f1,f2,f3,f4,f5,f6",
		"fields2": "f51,f52,f53,f54,f55,f56,f57",
		"klt":     klt(period),
		"fqt":     "1",
		"beg":     beg,
		"end":     fin,
		"lmt":     strconv.Itoa(limit),
	})
	if err != nil {
		return nil, "", err
	}
	var out emKlineResp
	if err := sonic.Unmarshal(resp.Body(), &out); err != nil {
		return nil, "", fmt.Errorf("decode eastmoney kline: %w", err)
	}
	if out.Data == nil {
		return nil, "", nil
	}
	bars := make([]emBar, 0, len(out.Data.Klines))
	for _, line := range out.Data.Klines {
		bar, ok := c.parseKline(line)
		if ok {
			bars = append(bars, bar)
		}
	}
	return bars, out.Data.Name, nil
}

func (c *EastmoneyClient) parseKline(line string) (emBar, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 6 {
		return emBar{}, false
	}
	ts, err := time.ParseInLocation("2006-01-02", parts[0], c.loc)
	if err != nil {
		if ts, err = time.ParseInLocation("2006-01-02 15:04", parts[0], c.loc); err != nil {
			return emBar{}, false
		}
	}
	num := func(i int) float64 {
		if i >= len(parts) {
			return 0
		}
		v, _ := strconv.ParseFloat(parts[i], 64)
		return v
	}
	return emBar{
		Time:   ts,
		Open:   num(1),
		Close:  num(2),
		High:   num(3),
		Low:    num(4),
		Volume: num(5),
		Amount: num(6),
	}, true
}

// Suggest runs the quote search box lookup.
func (c *EastmoneyClient) Suggest(ctx context.Context, keyword string, count int) ([]emSuggestion, error) {
	if count <= 0 {
		count = 20
	}
	resp, err := c.get(ctx, c.endpoints.Search+"/api/suggest/get", map[string]string{
		"input": keyword,
		"type":  "14",
		"token": suggestKey,
		"count": strconv.Itoa(count),
	})
	if err != nil {
		return nil, err
	}
	var out emSuggestResp
	if err := sonic.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode eastmoney suggest: %w", err)
	}
	return out.QuotationCodeTable.Data, nil
}

// CNSecID maps an A-share style code to its secid: Shanghai codes (6xx, 9xx,
// 5xx funds) are market 1, everything else market 0. sh/sz prefixes win.
func CNSecID(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(c, "sh"):
		return "1." + c[2:]
	case strings.HasPrefix(c, "sz"):
		return "0." + c[2:]
	case strings.HasSuffix(c, ".sh"):
		return "1." + strings.TrimSuffix(c, ".sh")
	case strings.HasSuffix(c, ".sz"):
		return "0." + strings.TrimSuffix(c, ".sz")
	}
	if c != "" && (c[0] == '6' || c[0] == '9' || c[0] == '5') {
		return "1." + c
	}
	return "0." + c
}

// HKSecID maps "700", "00700" or "700.HK" to the eastmoney HK secid.
func HKSecID(code string) string {
	return "116." + normalizeHK(code)
}
