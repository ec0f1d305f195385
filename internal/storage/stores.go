package storage

import (
	"context"

	"github.com/dyike/cortexmarket/models"
)

// Stores bundles every table the services and jobs share.
type Stores struct {
	DB        *DB
	Stock     *QuoteStore[models.StockQuote]
	Fund      *QuoteStore[models.FundQuote]
	Bond      *QuoteStore[models.BondQuote]
	Futures   *QuoteStore[models.FuturesQuote]
	Forex     *QuoteStore[models.ForexQuote]
	Gold      *QuoteStore[models.GoldQuote]
	Index     *QuoteStore[models.IndexQuote]
	Watchlist *WatchlistStore
	News      *NewsStore
	Memory    *MemoryStore
}

// NewStores creates (if needed) and opens every table on db.
func NewStores(ctx context.Context, db *DB) (*Stores, error) {
	s := &Stores{DB: db}
	var err error
	if s.Stock, err = NewQuoteStore[models.StockQuote](ctx, db, "stock_quotes"); err != nil {
		return nil, err
	}
	if s.Fund, err = NewQuoteStore[models.FundQuote](ctx, db, "fund_navs"); err != nil {
		return nil, err
	}
	if s.Bond, err = NewQuoteStore[models.BondQuote](ctx, db, "bond_quotes"); err != nil {
		return nil, err
	}
	if s.Futures, err = NewQuoteStore[models.FuturesQuote](ctx, db, "futures_quotes"); err != nil {
		return nil, err
	}
	if s.Forex, err = NewQuoteStore[models.ForexQuote](ctx, db, "forex_quotes"); err != nil {
		return nil, err
	}
	if s.Gold, err = NewQuoteStore[models.GoldQuote](ctx, db, "gold_prices"); err != nil {
		return nil, err
	}
	if s.Index, err = NewQuoteStore[models.IndexQuote](ctx, db, "market_indices"); err != nil {
		return nil, err
	}
	if s.Watchlist, err = NewWatchlistStore(ctx, db); err != nil {
		return nil, err
	}
	if s.News, err = NewNewsStore(ctx, db); err != nil {
		return nil, err
	}
	if s.Memory, err = NewMemoryStore(ctx, db); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stores) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
