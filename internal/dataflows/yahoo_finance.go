package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
)

// yahooQuote is the subset of a Yahoo quote the providers use.
type yahooQuote struct {
	Symbol    string
	Name      string
	Price     float64
	Open      float64
	High      float64
	Low       float64
	PrevClose float64
	Change    float64
	ChangePct float64
	Volume    float64
	Bid       float64
	Ask       float64
	Time      time.Time
}

type yahooBar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// yahooAPI is the part of finance-go used here, swappable in tests.
type yahooAPI interface {
	Quotes(symbols []string) ([]yahooQuote, error)
	Chart(symbol string, start, end time.Time, interval datetime.Interval) ([]yahooBar, error)
}

type financeGo struct{}

func (financeGo) Quotes(symbols []string) ([]yahooQuote, error) {
	iter := quote.List(symbols)
	var out []yahooQuote
	for iter.Next() {
		q := iter.Quote()
		if q == nil {
			continue
		}
		out = append(out, yahooQuote{
			Symbol:    q.Symbol,
			Name:      q.ShortName,
			Price:     q.RegularMarketPrice,
			Open:      q.RegularMarketOpen,
			High:      q.RegularMarketDayHigh,
			Low:       q.RegularMarketDayLow,
			PrevClose: q.RegularMarketPreviousClose,
			Change:    q.RegularMarketChange,
			ChangePct: q.RegularMarketChangePercent,
			Volume:    float64(q.RegularMarketVolume),
			Bid:       q.Bid,
			Ask:       q.Ask,
			Time:      time.Unix(int64(q.RegularMarketTime), 0),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (financeGo) Chart(symbol string, start, end time.Time, interval datetime.Interval) ([]yahooBar, error) {
	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: interval,
	})
	var out []yahooBar
	for iter.Next() {
		bar := iter.Bar()
		open, _ := bar.Open.Float64()
		high, _ := bar.High.Float64()
		low, _ := bar.Low.Float64()
		closePx, _ := bar.Close.Float64()
		out = append(out, yahooBar{
			Time:   time.Unix(int64(bar.Timestamp), 0),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: float64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// YahooFinanceClient wraps finance-go with context deadlines and retries.
type YahooFinanceClient struct {
	api yahooAPI
}

func NewYahooFinanceClient() *YahooFinanceClient {
	return &YahooFinanceClient{api: financeGo{}}
}

func (yf *YahooFinanceClient) Quotes(ctx context.Context, symbols []string) ([]yahooQuote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	var out []yahooQuote
	err := WithRetry(ctx, DefaultRetryConfig(), func() error {
		qs, err := callWithContext(ctx, func() ([]yahooQuote, error) { return yf.api.Quotes(symbols) })
		if err != nil {
			return fmt.Errorf("yahoo quotes %v: %w", symbols, err)
		}
		out = qs
		return nil
	})
	return out, err
}

func chartInterval(period string) datetime.Interval {
	switch period {
	case "weekly":
		return datetime.FiveDay
	case "monthly":
		return datetime.OneMonth
	default:
		return datetime.OneDay
	}
}

func (yf *YahooFinanceClient) History(ctx context.Context, symbol, period string, start, end time.Time) ([]yahooBar, error) {
	var out []yahooBar
	err := WithRetry(ctx, DefaultRetryConfig(), func() error {
		bars, err := callWithContext(ctx, func() ([]yahooBar, error) {
			return yf.api.Chart(symbol, start, end, chartInterval(period))
		})
		if err != nil {
			return fmt.Errorf("yahoo chart %s: %w", symbol, err)
		}
		out = bars
		return nil
	})
	return out, err
}
