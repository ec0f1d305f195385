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

func newTestScraper(t *testing.T, mux *http.ServeMux) (*NewsScraperClient, string) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	ns := NewNewsScraperClient(NewsEndpoints{
		CLS:       srv.URL + "/cls",
		Notices:   srv.URL + "/ann",
		GoogleRSS: srv.URL + "/rss",
		Gov:       map[string]string{"pbc": srv.URL + "/pbc/list/index.html"},
	}, 2*time.Second, cst)
	ns.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, cst) }
	return ns, srv.URL
}

func TestCLSTelegraph(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.cls.cn/", r.Header.Get("Referer"))
		w.Write([]byte(`{"error":0,"data":{"roll_data":[
			{"id":101,"title":"","content":"【央行：下调存款准备金率0.5个百分点】财联社3月1日电，中国人民银行决定于近期下调金融机构存款准备金率，释放长期资金约1万亿元。","ctime":1709265600},
			{"id":102,"title":"芯片板块午后走强","content":"半导体芯片股集体拉升","ctime":1709262000},
			{"id":103,"title":"","content":"","brief":""}
		]}}`))
	})
	ns, _ := newTestScraper(t, mux)

	got, err := ns.CLSTelegraph(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "cls", first.Source)
	assert.Equal(t, "财联社", first.SourceName)
	assert.Equal(t, 53, len([]rune(first.Title)), "50 runes plus ellipsis")
	assert.Equal(t, "https://www.cls.cn/detail/101", first.URL)
	assert.True(t, first.Active)
	// 央行 is high impact, 银行 medium
	assert.Equal(t, 4, first.Importance)
	assert.Contains(t, first.RelatedSectors, "银行")
	assert.Equal(t, int64(1709265600), first.PublishTime.Unix())

	assert.Equal(t, "芯片板块午后走强", got[1].Title)
	assert.Equal(t, "半导体", got[1].RelatedSectors)
}

func TestCLSTelegraphErrorCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cls", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":1,"data":null}`))
	})
	ns, _ := newTestScraper(t, mux)
	_, err := ns.CLSTelegraph(context.Background(), 10)
	assert.Error(t, err)
}

func TestEastmoneyNoticesJSONP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ann", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`callback({"data":{"list":[
			{"title":"贵州茅台:关于回购股份的公告","digest":"","art_code":"AN202403011234","notice_date":"2024-03-01 00:00:00"}
		]}});`))
	})
	ns, _ := newTestScraper(t, mux)
	got, err := ns.EastmoneyNotices(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://data.eastmoney.com/notices/detail/AN202403011234.html", got[0].URL)
	assert.Equal(t, got[0].Title, got[0].Content)
	assert.True(t, got[0].PublishTime.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, cst)))
}

func TestGovNewsResolvesLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pbc/list/index.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="list_conter"><ul>
			<li><a href="./5261234/index.html">中国人民银行决定下调存款准备金率</a><span>2024-02-05</span></li>
			<li><a href="/goutongjiaoliu/113456/113469/5250000/index.html">2024年1月金融统计数据报告</a><span class="date">bad date</span></li>
			<li>no link here</li>
		</ul></div></body></html>`))
	})
	ns, base := newTestScraper(t, mux)

	got, err := ns.GovNews(context.Background(), "pbc", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, base+"/pbc/list/5261234/index.html", got[0].URL)
	assert.Equal(t, models.NewsCategoryPolicy, got[0].Category)
	assert.Equal(t, 3, got[0].Importance)
	assert.True(t, got[0].PublishTime.Equal(time.Date(2024, 2, 5, 0, 0, 0, 0, cst)))

	assert.Equal(t, base+"/goutongjiaoliu/113456/113469/5250000/index.html", got[1].URL)
	assert.True(t, got[1].PublishTime.Equal(ns.now()), "unparseable dates fall back to now")

	_, err = ns.GovNews(context.Background(), "nope", 10)
	assert.Error(t, err)
}

func TestGoogleNewsRSS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "A股 市场", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Google News</title>
<item><title>A股三大指数集体收涨</title><link>https://news.example.com/a1</link>
<pubDate>Fri, 01 Mar 2024 08:00:00 GMT</pubDate>
<description>&lt;a href="https://news.example.com/a1"&gt;A股三大指数集体收涨&lt;/a&gt;&amp;nbsp;&lt;font&gt;新浪财经&lt;/font&gt;</description>
<source url="https://finance.sina.com.cn">新浪财经</source></item>
<item><title></title><link>https://news.example.com/skip</link></item>
</channel></rss>`))
	})
	ns, _ := newTestScraper(t, mux)

	got, err := ns.GoogleNews(context.Background(), "A股 市场", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "新浪财经", got[0].SourceName)
	assert.NotContains(t, got[0].Content, "<a")
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC).Unix(), got[0].PublishTime.Unix())

	_, err = ns.GoogleNews(context.Background(), "  ", 10)
	assert.Error(t, err)
}

func TestFinnhubGeneralNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/news", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("token"))
		w.Write([]byte(`[
			{"category":"top news","datetime":1709280000,"headline":"Fed holds rates","id":1,"source":"Reuters","summary":"","url":"https://example.com/fed"},
			{"category":"top news","datetime":1709280000,"headline":"","id":2,"url":"https://example.com/empty"}
		]`))
	}))
	defer srv.Close()

	fc := NewFinnhubClient(srv.URL, "k", 2*time.Second)
	got, err := fc.GeneralNews(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "finnhub", got[0].Source)
	assert.Equal(t, "Reuters", got[0].SourceName)
	assert.Equal(t, "Fed holds rates", got[0].Content)
	assert.True(t, got[0].Active)

	_, err = NewFinnhubClient(srv.URL, "", time.Second).GeneralNews(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		w.Write([]byte(`{"query":"q","answer":"短答","results":[{"title":"t","url":"https://example.com","content":"c","score":0.9}]}`))
	}))
	defer srv.Close()

	tc := NewTavilyClient(srv.URL, "key", 2*time.Second)
	resp, err := tc.Search(context.Background(), "q", "", 3)
	require.NoError(t, err)
	assert.Equal(t, "短答", resp.Answer)
	require.Len(t, resp.Results, 1)

	_, err = NewTavilyClient(srv.URL, "", time.Second).Search(context.Background(), "q", "", 3)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
