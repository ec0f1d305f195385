package dataflows

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortexmarket/models"
)

var cst = time.FixedZone("CST", 8*3600)

// newTestEastmoney points every eastmoney endpoint at one test server.
func newTestEastmoney(t *testing.T, mux *http.ServeMux) *EastmoneyClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewEastmoneyClient(EastmoneyEndpoints{
		Push2:    srv.URL,
		Push2His: srv.URL,
		Search:   srv.URL,
		FundGZ:   srv.URL,
		FundAPI:  srv.URL,
		FundSugg: srv.URL,
	}, 2*time.Second, cst)
}

func TestEastmoneyListSkipsEmptyRows(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/qt/clist/get", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fsConvertible, r.URL.Query().Get("fs"))
		w.Write([]byte(`{"rc":0,"data":{"total":3,"diff":[
			{"f2":123.45,"f3":1.5,"f4":1.82,"f5":10000,"f6":1234500,"f12":"113050","f13":1,"f14":"南银转债","f15":124,"f16":121.5,"f17":122,"f18":121.63},
			{"f2":"-","f3":"-","f12":"","f13":0,"f14":""},
			{"f2":"-","f3":"-","f12":"128136","f13":0,"f14":"立讯转债"}
		]}}`))
	})
	em := newTestEastmoney(t, mux)
	p := NewBondProvider(em)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, cst)
	p.now = func() time.Time { return now }

	got, err := p.Realtime(context.Background(), models.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "113050", got[0].Code)
	assert.Equal(t, BondConvertible, got[0].BondType)
	assert.InDelta(t, 123.45, got[0].Close, 1e-9)
	assert.InDelta(t, 122, got[0].Open, 1e-9)
	assert.True(t, got[0].Time.Equal(now))
	// "-" decodes to zero rather than failing the page
	assert.Zero(t, got[1].Close)

	treasury, err := p.Realtime(context.Background(), models.Filter{Category: BondTreasury})
	require.NoError(t, err)
	assert.Empty(t, treasury)
}

func TestEastmoneyKlines(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/qt/stock/kline/get", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1.600519", q.Get("secid"))
		assert.Equal(t, "101", q.Get("klt"))
		assert.Equal(t, "20240226", q.Get("beg"))
		w.Write([]byte(`{"data":{"code":"600519","name":"贵州茅台","klines":[
			"2024-02-28,1700.00,1710.00,1720.00,1690.00,1000,1710000",
			"bad line",
			"2024-02-29,1710.00,1692.90,1715.00,1688.00,2000,3385800"
		]}}`))
	})
	em := newTestEastmoney(t, mux)
	p := NewStockProvider(em, nil, nil)
	p.now = func() time.Time { return time.Date(2024, 3, 1, 15, 0, 0, 0, cst) }

	got, err := p.History(context.Background(), "600519", models.HistoryRange{Days: 4})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "贵州茅台", got[0].Name)
	assert.Equal(t, "CN", got[0].Market)
	assert.True(t, got[0].Time.Equal(time.Date(2024, 2, 28, 0, 0, 0, 0, cst)))
	assert.InDelta(t, 1700, got[0].Open, 1e-9)
	assert.InDelta(t, 1710, got[0].Close, 1e-9)
	assert.InDelta(t, 1720, got[0].High, 1e-9)
	assert.InDelta(t, 1690, got[0].Low, 1e-9)
	assert.Zero(t, got[0].Change)
	assert.InDelta(t, -17.1, got[1].Change, 1e-9)
	assert.InDelta(t, -1, got[1].ChangePercent, 1e-9)
}

func TestStockSearchMapsMarkets(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/suggest/get", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "茅台", r.URL.Query().Get("input"))
		w.Write([]byte(`{"QuotationCodeTable":{"Data":[
			{"Code":"600519","Name":"贵州茅台","MktNum":"1","SecurityTypeName":"沪A"},
			{"Code":"00700","Name":"腾讯控股","MktNum":"116","SecurityTypeName":"港股"},
			{"Code":"BK0477","Name":"白酒","MktNum":"90","SecurityTypeName":"板块"}
		]}}`))
	})
	p := NewStockProvider(newTestEastmoney(t, mux), nil, nil)
	got, err := p.Search(context.Background(), "茅台")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "CN", got[0].Market)
	assert.Equal(t, "HK", got[1].Market)
}

func TestFundEstimateAndNAVHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/js/161725.js", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`jsonpgz({"fundcode":"161725","name":"招商中证白酒指数(LOF)A","jzrq":"2024-02-29","dwjz":"1.0000","gsz":"1.0150","gszzl":"1.50","gztime":"2024-03-01 14:30"});`))
	})
	mux.HandleFunc("/f10/lsjz", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "161725", r.URL.Query().Get("fundCode"))
		w.Write([]byte(`{"Data":{"LSJZList":[
			{"FSRQ":"2024-02-29","DWJZ":"1.0000","LJJZ":"2.1000","JZZZL":"0.50"},
			{"FSRQ":"2024-02-28","DWJZ":"0.9950","LJJZ":"2.0950","JZZZL":""}
		]},"ErrCode":0}`))
	})
	em := newTestEastmoney(t, mux)
	p := NewFundProvider(em)
	p.now = func() time.Time { return time.Date(2024, 3, 1, 15, 0, 0, 0, cst) }

	got, err := p.Realtime(context.Background(), models.Filter{Codes: []string{"161725"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, FundTypeIndex, got[0].FundType)
	assert.InDelta(t, 1.0, got[0].NAV, 1e-9)
	assert.InDelta(t, 1.015, got[0].EstimatedNAV, 1e-9)
	assert.InDelta(t, 0.015, got[0].Change, 1e-9)
	assert.True(t, got[0].Time.Equal(time.Date(2024, 3, 1, 14, 30, 0, 0, cst)))

	hist, err := p.History(context.Background(), "161725", models.HistoryRange{Days: 7})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	// oldest first
	assert.True(t, hist[0].Time.Before(hist[1].Time))
	assert.InDelta(t, 0.995, hist[0].NAV, 1e-9)
	assert.InDelta(t, 2.1, hist[1].AccNAV, 1e-9)
}

func TestFundSearchUsesVendorType(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/FundSearch/api/FundSearchAPI.ashx", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Datas":[
			{"CODE":"110011","NAME":"易方达优质精选","CATEGORY":700,"FundBaseInfo":{"FTYPE":"混合型-偏股","DWJZ":"5.1230"}},
			{"CODE":"","NAME":"ignored"}
		]}`))
	})
	p := NewFundProvider(newTestEastmoney(t, mux))
	got, err := p.Search(context.Background(), "易方达")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, FundTypeMixed, got[0].FundType)
	assert.InDelta(t, 5.123, got[0].NAV, 1e-9)
}

func TestFuturesRealtimeFilters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/qt/clist/get", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"diff":[
			{"f2":3500,"f12":"rb2410","f13":113,"f14":"螺纹钢2410","f18":3490},
			{"f2":3600,"f12":"IF2406","f13":8,"f14":"沪深300指数2406","f18":3590}
		]}}`))
	})
	p := NewFuturesProvider(newTestEastmoney(t, mux))

	got, err := p.Realtime(context.Background(), models.Filter{Category: FuturesIndex})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CFFEX", got[0].Exchange)
	assert.InDelta(t, 3590, got[0].Settlement, 1e-9)

	got, err = p.Realtime(context.Background(), models.Filter{Category: "SHFE"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rb2410", got[0].Code)

	hits, err := p.Search(context.Background(), "螺纹")
	require.NoError(t, err)
	require.Len(t, hits, 1)
}
