package dataflows

import (
	"errors"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/config"
)

// Providers bundles the vendor clients and the per-class providers built on them.
type Providers struct {
	Eastmoney *EastmoneyClient
	Yahoo     *YahooFinanceClient
	Longport  *LongportClient

	Stock   *StockProvider
	Fund    *FundProvider
	Bond    *BondProvider
	Futures *FuturesProvider
	Forex   *ForexProvider
	Gold    *GoldProvider
	Index   *IndexProvider

	News    *NewsScraperClient
	Finnhub *FinnhubClient
	Tavily  *TavilyClient
}

// NewProviders wires every client from cfg. Longport is optional: without
// credentials HK quotes go through eastmoney.
func NewProviders(cfg *config.Config) *Providers {
	timeout := cfg.ProviderTimeout.Std()
	loc := cfg.Location()

	em := NewEastmoneyClient(DefaultEastmoneyEndpoints(), timeout, loc)
	yf := NewYahooFinanceClient()

	lp, err := NewLongportClient(cfg)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			logx.Info("dataflows: longport not configured, HK quotes fall back to eastmoney")
		} else {
			logx.Errorf("dataflows: longport init failed: %v", err)
		}
		lp = nil
	}

	return &Providers{
		Eastmoney: em,
		Yahoo:     yf,
		Longport:  lp,
		Stock:     NewStockProvider(em, yf, lp),
		Fund:      NewFundProvider(em),
		Bond:      NewBondProvider(em),
		Futures:   NewFuturesProvider(em),
		Forex:     NewForexProvider(yf),
		Gold:      NewGoldProvider(em, yf),
		Index:     NewIndexProvider(em, yf),
		News:      NewNewsScraperClient(DefaultNewsEndpoints(), timeout, loc),
		Finnhub:   NewFinnhubClient("", cfg.FinnhubAPIKey, timeout),
		Tavily:    NewTavilyClient("", cfg.TavilyAPIKey, timeout),
	}
}

func (p *Providers) Close() {
	p.Longport.Close()
}
