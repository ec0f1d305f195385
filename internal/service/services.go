package service

import (
	"context"
	"time"

	"github.com/dyike/cortexmarket/config"
	"github.com/dyike/cortexmarket/internal/cache"
	"github.com/dyike/cortexmarket/internal/dataflows"
	"github.com/dyike/cortexmarket/internal/storage"
	"github.com/dyike/cortexmarket/models"
)

// WatchlistSyncer is the class independent view of a service used by the
// watchlist job.
type WatchlistSyncer interface {
	Class() models.AssetClass
	WatchlistUsers(ctx context.Context) ([]string, error)
	SyncWatchlist(ctx context.Context, userID string, now time.Time) (int, error)
}

// Services holds one service per asset class.
type Services struct {
	Stock   *AssetService[models.StockQuote]
	Fund    *FundService
	Bond    *AssetService[models.BondQuote]
	Futures *AssetService[models.FuturesQuote]
	Forex   *AssetService[models.ForexQuote]
	Gold    *AssetService[models.GoldQuote]
	Market  *MarketService

	loc *time.Location
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TTL: TTLs{
			Realtime:  cfg.CacheTTLRealtime.Std(),
			Daily:     cfg.CacheTTLDaily.Std(),
			History:   cfg.CacheTTLHistory.Std(),
			Watchlist: cfg.CacheTTLWatchlist.Std(),
		},
		ProviderTimeout: cfg.ProviderTimeout.Std(),
		Location:        cfg.Location(),
	}
}

func NewServices(cfg *config.Config, c *cache.Cache, st *storage.Stores, p *dataflows.Providers) *Services {
	opts := OptionsFromConfig(cfg)
	withScopes := func(scopes ...string) Options {
		o := opts
		o.WatchlistScopes = scopes
		return o
	}
	return &Services{
		Stock: NewAssetService[models.StockQuote](models.ClassStock, p.Stock, st.Stock, st.Watchlist, c, withScopes("CN", "HK", "US")),
		Fund: NewFundService(NewAssetService[models.FundQuote](models.ClassFund, p.Fund, st.Fund, st.Watchlist, c,
			withScopes(dataflows.FundCategoryETF, dataflows.FundCategoryLOF))),
		Bond: NewAssetService[models.BondQuote](models.ClassBond, p.Bond, st.Bond, st.Watchlist, c,
			withScopes(dataflows.BondConvertible, dataflows.BondTreasury, dataflows.BondCorporate)),
		Futures: NewAssetService[models.FuturesQuote](models.ClassFutures, p.Futures, st.Futures, st.Watchlist, c,
			withScopes(dataflows.FuturesIndex, dataflows.FuturesBond, dataflows.FuturesCommodity)),
		Forex: NewAssetService[models.ForexQuote](models.ClassForex, p.Forex, st.Forex, st.Watchlist, c,
			withScopes(dataflows.ForexCNY, dataflows.ForexMajor, dataflows.ForexCross)),
		Gold: NewAssetService[models.GoldQuote](models.ClassGold, p.Gold, st.Gold, st.Watchlist, c,
			withScopes(dataflows.GoldExchangeSGE, dataflows.GoldExchangeCOMEX)),
		Market: NewMarketService(NewAssetService[models.IndexQuote](models.ClassMarket, p.Index, st.Index, st.Watchlist, c,
			withScopes(Markets...))),
		loc: cfg.Location(),
	}
}

// Watchlists lists every watchlist-bearing service, stock first.
func (s *Services) Watchlists() []WatchlistSyncer {
	return []WatchlistSyncer{s.Stock, s.Fund, s.Bond, s.Futures, s.Forex, s.Gold, s.Market}
}

// IsTradingNow evaluates the trading-hours gate in the exchange timezone.
func (s *Services) IsTradingNow(now time.Time) bool {
	return IsTradingTime(now.In(s.loc))
}

func (s *Services) Location() *time.Location { return s.loc }
