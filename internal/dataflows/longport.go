package dataflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"

	"github.com/dyike/cortexmarket/config"
)

// LongportClient reads HK/US daily candlesticks. Only the quote context is
// opened; nothing here places orders.
type LongportClient struct {
	quoteCtx *quote.QuoteContext
}

func NewLongportClient(cfg *config.Config) (*LongportClient, error) {
	if cfg.LongportAppKey == "" || cfg.LongportAppSecret == "" || cfg.LongportAccessToken == "" {
		return nil, fmt.Errorf("longport credentials: %w", ErrNotConfigured)
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken))
	if err != nil {
		return nil, err
	}

	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}
	return &LongportClient{quoteCtx: quoteContext}, nil
}

// LongportSymbol converts a stock code to "700.HK" / "AAPL.US" form.
func LongportSymbol(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if strings.HasSuffix(c, ".HK") || strings.HasSuffix(c, ".US") {
		return c
	}
	if StockMarket(c) == "HK" {
		return strings.TrimLeft(c, "0") + ".HK"
	}
	return c + ".US"
}

// DailyBars returns the last count daily candlesticks, oldest first.
func (lpc *LongportClient) DailyBars(ctx context.Context, symbol string, count int) ([]emBar, error) {
	if lpc == nil || lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	sticks, err := lpc.quoteCtx.Candlesticks(ctx, symbol, quote.PeriodDay, int32(count), quote.AdjustTypeNo)
	if err != nil {
		return nil, fmt.Errorf("longport candlesticks %s: %w", symbol, err)
	}
	bars := make([]emBar, 0, len(sticks))
	for _, stick := range sticks {
		if stick == nil {
			continue
		}
		open, _ := stick.Open.Float64()
		high, _ := stick.High.Float64()
		low, _ := stick.Low.Float64()
		closePx, _ := stick.Close.Float64()
		bars = append(bars, emBar{
			Time:   time.Unix(stick.Timestamp, 0),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: float64(stick.Volume),
		})
	}
	return bars, nil
}

func (lpc *LongportClient) Close() {
	if lpc != nil && lpc.quoteCtx != nil {
		_ = lpc.quoteCtx.Close()
	}
}
