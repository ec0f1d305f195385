package dataflows

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/models"
)

type NewsEndpoints struct {
	CLS       string
	Notices   string
	GoogleRSS string
	// Gov overrides the list page of a government source by id.
	Gov map[string]string
}

func DefaultNewsEndpoints() NewsEndpoints {
	return NewsEndpoints{
		CLS:       "https://www.cls.cn/nodeapi/updateTelegraphList",
		Notices:   "https://np-anotice-stock.eastmoney.com/api/security/ann",
		GoogleRSS: "https://news.google.com/rss/search",
	}
}

// govSource describes one government list page. Selectors are tried in order.
type govSource struct {
	id        string
	url       string
	selectors []string
	category  string
	layouts   []string
}

var govSources = []govSource{
	{"pbc", "http://www.pbc.gov.cn/goutongjiaoliu/113456/113469/index.html", []string{".newslist_style ul li", ".list_conter li"}, models.NewsCategoryPolicy, []string{"2006-01-02"}},
	{"csrc", "http://www.csrc.gov.cn/csrc/c100028/common_list.shtml", []string{".fl_list li", ".list_main li"}, models.NewsCategoryPolicy, []string{"2006-01-02"}},
	{"ndrc", "https://www.ndrc.gov.cn/xwdt/xwfb/index.html", []string{".list_con li", ".u-list li"}, models.NewsCategoryPolicy, []string{"2006/01/02", "2006-01-02"}},
	{"stats", "http://www.stats.gov.cn/sj/zxfb/index.html", []string{".list-content li", ".center_list li"}, models.NewsCategoryData, []string{"2006-01-02"}},
	{"miit", "https://www.miit.gov.cn/xwdt/gxdt/ldhd/index.html", []string{".list li", ".gzdt-box li"}, models.NewsCategoryPolicy, []string{"2006-01-02"}},
}

// GovSourceIDs lists the government sources in fetch order.
func GovSourceIDs() []string {
	ids := make([]string, len(govSources))
	for i, s := range govSources {
		ids[i] = s.id
	}
	return ids
}

// NewsScraperClient collects market news from wire services, exchange
// notices, regulator websites and Google News.
type NewsScraperClient struct {
	client    *resty.Client
	endpoints NewsEndpoints
	loc       *time.Location
	now       func() time.Time
}

func NewNewsScraperClient(endpoints NewsEndpoints, timeout time.Duration, loc *time.Location) *NewsScraperClient {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if loc == nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	return &NewsScraperClient{client: client, endpoints: endpoints, loc: loc, now: time.Now}
}

func (ns *NewsScraperClient) fetch(ctx context.Context, req func(*resty.Request) (*resty.Response, error)) ([]byte, error) {
	var body []byte
	err := WithRetry(ctx, DefaultRetryConfig(), func() error {
		resp, err := req(ns.client.R().SetContext(ctx))
		if err != nil {
			return err
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("http %d", resp.StatusCode())
		}
		body = resp.Body()
		return nil
	})
	return body, err
}

func (ns *NewsScraperClient) article(source, title, content, link, category string, published time.Time) models.NewsArticle {
	policy := category == models.NewsCategoryPolicy
	text := title + content
	return models.NewsArticle{
		Source:         source,
		SourceName:     models.NewsSources[source],
		Title:          title,
		Content:        content,
		Summary:        truncateRunes(content, 200),
		URL:            link,
		Category:       category,
		Importance:     NewsImportance(text, policy),
		RelatedSectors: RelatedSectors(text),
		PublishTime:    published,
		Active:         true,
	}
}

type clsResp struct {
	Error int `json:"error"`
	Data  *struct {
		RollData []struct {
			ID       int64  `json:"id"`
			Title    string `json:"title"`
			Content  string `json:"content"`
			Brief    string `json:"brief"`
			CTime    int64  `json:"ctime"`
			ShareURL string `json:"shareurl"`
		} `json:"roll_data"`
	} `json:"data"`
}

// CLSTelegraph reads the 财联社 7x24 telegraph.
func (ns *NewsScraperClient) CLSTelegraph(ctx context.Context, limit int) ([]models.NewsArticle, error) {
	body, err := ns.fetch(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Referer", "https://www.cls.cn/").
			SetQueryParams(map[string]string{
				"app": "CailianpressWeb",
				"os":  "web",
				"sv":  "8.4.6",
				"rn":  strconv.Itoa(limit),
			}).Get(ns.endpoints.CLS)
	})
	if err != nil {
		return nil, fmt.Errorf("cls telegraph: %w", err)
	}
	var out clsResp
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode cls telegraph: %w", err)
	}
	if out.Error != 0 || out.Data == nil {
		return nil, fmt.Errorf("cls telegraph: error code %d", out.Error)
	}
	var articles []models.NewsArticle
	for _, item := range out.Data.RollData {
		if len(articles) >= limit {
			break
		}
		content := item.Content
		if content == "" {
			content = item.Brief
		}
		if content == "" {
			continue
		}
		title := item.Title
		if title == "" {
			title = truncateRunes(content, 50)
		}
		link := item.ShareURL
		if link == "" {
			link = fmt.Sprintf("https://www.cls.cn/detail/%d", item.ID)
		}
		published := ns.now()
		if item.CTime > 0 {
			published = time.Unix(item.CTime, 0)
		}
		articles = append(articles, ns.article("cls", title, content, link, models.NewsCategoryNews, published))
	}
	return articles, nil
}

type noticeResp struct {
	Data *struct {
		List []struct {
			Title      string `json:"title"`
			Digest     string `json:"digest"`
			ArtCode    string `json:"art_code"`
			NoticeDate string `json:"notice_date"`
		} `json:"list"`
	} `json:"data"`
}

// EastmoneyNotices reads the latest A-share company announcements.
func (ns *NewsScraperClient) EastmoneyNotices(ctx context.Context, limit int) ([]models.NewsArticle, error) {
	body, err := ns.fetch(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"cb":            "callback",
			"sr":            "-1",
			"page_size":     strconv.Itoa(limit),
			"page_index":    "1",
			"ann_type":      "A",
			"client_source": "web",
			"f_node":        "0",
			"s_node":        "0",
		}).Get(ns.endpoints.Notices)
	})
	if err != nil {
		return nil, fmt.Errorf("eastmoney notices: %w", err)
	}
	if m := jsonpBody.FindSubmatch(body); m != nil {
		body = m[1]
	}
	var out noticeResp
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode eastmoney notices: %w", err)
	}
	if out.Data == nil {
		return nil, nil
	}
	var articles []models.NewsArticle
	for _, item := range out.Data.List {
		if len(articles) >= limit {
			break
		}
		if item.Title == "" || item.ArtCode == "" {
			continue
		}
		summary := item.Digest
		if summary == "" {
			summary = item.Title
		}
		published := ns.now()
		if len(item.NoticeDate) >= 19 {
			if t, err := time.ParseInLocation("2006-01-02 15:04:05", item.NoticeDate[:19], ns.loc); err == nil {
				published = t
			}
		}
		link := fmt.Sprintf("https://data.eastmoney.com/notices/detail/%s.html", item.ArtCode)
		articles = append(articles, ns.article("eastmoney", item.Title, summary, link, models.NewsCategoryNews, published))
	}
	return articles, nil
}

// GovNews scrapes one regulator list page by source id.
func (ns *NewsScraperClient) GovNews(ctx context.Context, id string, limit int) ([]models.NewsArticle, error) {
	var src govSource
	for _, s := range govSources {
		if s.id == id {
			src = s
		}
	}
	if src.id == "" {
		return nil, fmt.Errorf("unknown news source %q", id)
	}
	pageURL := src.url
	if u, ok := ns.endpoints.Gov[id]; ok && u != "" {
		pageURL = u
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	body, err := ns.fetch(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(pageURL)
	})
	if err != nil {
		return nil, fmt.Errorf("%s news: %w", id, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse %s page: %w", id, err)
	}

	var items *goquery.Selection
	for _, sel := range src.selectors {
		if items = doc.Find(sel); items.Length() > 0 {
			break
		}
	}

	var articles []models.NewsArticle
	items.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(articles) >= limit {
			return false
		}
		link := s.Find("a").First()
		title := strings.TrimSpace(link.Text())
		if t, ok := link.Attr("title"); ok && strings.TrimSpace(t) != "" {
			title = strings.TrimSpace(t)
		}
		href, ok := link.Attr("href")
		if !ok || title == "" {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		dateText := strings.TrimSpace(s.Find("span").First().Text())
		if dateText == "" {
			dateText = strings.TrimSpace(s.Find(".date").First().Text())
		}
		articles = append(articles, ns.article(src.id, title, title, base.ResolveReference(ref).String(),
			src.category, ns.parseDate(dateText, src.layouts)))
		return true
	})
	return articles, nil
}

func (ns *NewsScraperClient) parseDate(text string, layouts []string) time.Time {
	text = strings.Trim(text, "[]() ")
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, text, ns.loc); err == nil {
			return t
		}
	}
	return ns.now()
}

type rssFeed struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			PubDate     string `xml:"pubDate"`
			Description string `xml:"description"`
			Source      string `xml:"source"`
		} `xml:"item"`
	} `xml:"channel"`
}

// GoogleNews searches Google News through its RSS feed.
func (ns *NewsScraperClient) GoogleNews(ctx context.Context, query string, limit int) ([]models.NewsArticle, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	body, err := ns.fetch(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"q":    query,
			"hl":   "zh-CN",
			"gl":   "CN",
			"ceid": "CN:zh-Hans",
		}).Get(ns.endpoints.GoogleRSS)
	})
	if err != nil {
		return nil, fmt.Errorf("google news: %w", err)
	}
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode google news rss: %w", err)
	}

	var articles []models.NewsArticle
	for _, item := range feed.Channel.Items {
		if len(articles) >= limit {
			break
		}
		if item.Title == "" || item.Link == "" {
			continue
		}
		published := ns.now()
		if t, err := time.Parse(time.RFC1123, item.PubDate); err == nil {
			published = t
		} else if t, err := time.Parse(time.RFC1123Z, item.PubDate); err == nil {
			published = t
		}
		content := htmlText(item.Description)
		if content == "" {
			content = item.Title
		}
		a := ns.article("google", item.Title, content, item.Link, models.NewsCategoryNews, published)
		if item.Source != "" {
			a.SourceName = item.Source
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// FetchAll pulls every built-in source, newest first. A failing source is
// logged and skipped.
func (ns *NewsScraperClient) FetchAll(ctx context.Context, limitPerSource int) []models.NewsArticle {
	type fetcher struct {
		name string
		fn   func() ([]models.NewsArticle, error)
	}
	fetchers := []fetcher{
		{"cls", func() ([]models.NewsArticle, error) { return ns.CLSTelegraph(ctx, limitPerSource) }},
		{"eastmoney", func() ([]models.NewsArticle, error) { return ns.EastmoneyNotices(ctx, limitPerSource) }},
	}
	for _, id := range GovSourceIDs() {
		id := id
		fetchers = append(fetchers, fetcher{id, func() ([]models.NewsArticle, error) { return ns.GovNews(ctx, id, limitPerSource) }})
	}

	var all []models.NewsArticle
	for _, f := range fetchers {
		if ctx.Err() != nil {
			break
		}
		articles, err := f.fn()
		if err != nil {
			logx.WithContext(ctx).Errorf("news: fetch source=%s err=%v", f.name, err)
			continue
		}
		logx.WithContext(ctx).Infof("news: fetched source=%s count=%d", f.name, len(articles))
		all = append(all, articles...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].PublishTime.After(all[j].PublishTime) })
	return all
}

func htmlText(fragment string) string {
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
