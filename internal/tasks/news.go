package tasks

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/models"
)

const newsPerSource = 30

type NewsFeed interface {
	FetchAll(ctx context.Context, limitPerSource int) []models.NewsArticle
	GoogleNews(ctx context.Context, query string, limit int) ([]models.NewsArticle, error)
}

type GeneralNews interface {
	GeneralNews(ctx context.Context, category string, limit int) ([]models.NewsArticle, error)
}

type NewsSink interface {
	UpsertMany(ctx context.Context, articles []models.NewsArticle) (int, error)
}

// NewsJob ingests every configured news source into the news store.
type NewsJob struct {
	feed    NewsFeed
	finnhub GeneralNews
	sink    NewsSink
	queries []string
	limit   int
}

// NewNewsJob builds the ingestion job; finnhub may be nil.
func NewNewsJob(feed NewsFeed, finnhub GeneralNews, sink NewsSink, queries []string, limit int) *NewsJob {
	return &NewsJob{feed: feed, finnhub: finnhub, sink: sink, queries: queries, limit: limit}
}

func (j *NewsJob) Run(ctx context.Context) error {
	articles := j.feed.FetchAll(ctx, j.limit)
	for _, q := range j.queries {
		got, err := j.feed.GoogleNews(ctx, q, j.limit)
		if err != nil {
			logx.WithContext(ctx).Errorf("tasks: google news query=%s err=%v", q, err)
			continue
		}
		articles = append(articles, got...)
	}
	if j.finnhub != nil {
		got, err := j.finnhub.GeneralNews(ctx, "general", j.limit)
		if err != nil {
			logx.WithContext(ctx).Errorf("tasks: finnhub news err=%v", err)
		} else {
			articles = append(articles, got...)
		}
	}
	if len(articles) == 0 {
		logx.WithContext(ctx).Info("tasks: news sync found nothing")
		return nil
	}
	n, err := j.sink.UpsertMany(ctx, articles)
	if err != nil {
		return err
	}
	logx.WithContext(ctx).Infof("tasks: news sync fetched=%d saved=%d", len(articles), n)
	return nil
}
