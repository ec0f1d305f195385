package models

import "time"

// AssetClass identifies one family of instruments. It doubles as the cache
// key prefix of the service that owns the class.
type AssetClass string

const (
	ClassStock   AssetClass = "stock"
	ClassFund    AssetClass = "fund"
	ClassBond    AssetClass = "bond"
	ClassFutures AssetClass = "futures"
	ClassForex   AssetClass = "forex"
	ClassGold    AssetClass = "gold"
	ClassMarket  AssetClass = "market"
)

// AssetClasses lists every supported class in display order.
var AssetClasses = []AssetClass{ClassStock, ClassFund, ClassBond, ClassFutures, ClassForex, ClassGold, ClassMarket}

func ParseAssetClass(s string) (AssetClass, bool) {
	for _, c := range AssetClasses {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Quote is the field set shared by every snapshot record. Identity is (Code, Time).
type Quote struct {
	Time          time.Time `json:"time"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Category      string    `json:"category,omitempty"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	Amount        float64   `json:"amount"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
}

func (q Quote) Base() Quote { return q }

// Record is implemented by every tagged quote type.
type Record interface {
	Base() Quote
	Class() AssetClass
}

type StockQuote struct {
	Quote
	Market    string  `json:"market"`
	Turnover  float64 `json:"turnover"`
	PERatio   float64 `json:"pe_ratio"`
	PBRatio   float64 `json:"pb_ratio"`
	MarketCap float64 `json:"market_cap"`
}

func (StockQuote) Class() AssetClass { return ClassStock }

type FundQuote struct {
	Quote
	FundType     string  `json:"fund_type"`
	ETFType      string  `json:"etf_type,omitempty"`
	NAV          float64 `json:"nav"`
	AccNAV       float64 `json:"acc_nav"`
	EstimatedNAV float64 `json:"estimated_nav"`
}

func (FundQuote) Class() AssetClass { return ClassFund }

type BondQuote struct {
	Quote
	BondType string  `json:"bond_type"`
	Yield    float64 `json:"yield"`
}

func (BondQuote) Class() AssetClass { return ClassBond }

type FuturesQuote struct {
	Quote
	Exchange     string  `json:"exchange"`
	OpenInterest float64 `json:"open_interest"`
	Settlement   float64 `json:"settlement"`
}

func (FuturesQuote) Class() AssetClass { return ClassFutures }

type ForexQuote struct {
	Quote
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

func (ForexQuote) Class() AssetClass { return ClassForex }

type GoldQuote struct {
	Quote
	Exchange string `json:"exchange"`
}

func (GoldQuote) Class() AssetClass { return ClassGold }

type IndexQuote struct {
	Quote
	Market string `json:"market"`
}

func (IndexQuote) Class() AssetClass { return ClassMarket }

// Bucket is one OHLC roll-up window of a time series.
type Bucket struct {
	Start  time.Time `json:"bucket"`
	Code   string    `json:"code"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Count  int       `json:"count"`
}
