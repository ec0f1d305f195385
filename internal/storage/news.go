package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dyike/cortexmarket/models"
)

// NewsStore persists articles keyed by URL.
type NewsStore struct {
	db  *DB
	now func() time.Time
}

func NewNewsStore(ctx context.Context, db *DB) (*NewsStore, error) {
	s := &NewsStore{db: db, now: time.Now}
	err := db.migrate(ctx,
		`CREATE TABLE IF NOT EXISTS news_articles (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			source_name TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT 'news',
			importance INTEGER NOT NULL DEFAULT 1,
			related_sectors TEXT NOT NULL DEFAULT '',
			sentiment TEXT NOT NULL DEFAULT '',
			publish_time BIGINT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_news_publish ON news_articles (publish_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_news_rank ON news_articles (importance DESC, publish_time DESC)`,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

const newsColumns = `id, source, source_name, title, content, summary, url, category, importance, related_sectors, sentiment, publish_time, active`

// Upsert inserts the article or refreshes the row with the same URL. The
// stored id is kept on refresh.
func (s *NewsStore) Upsert(ctx context.Context, a models.NewsArticle) (models.NewsArticle, error) {
	if strings.TrimSpace(a.URL) == "" || strings.TrimSpace(a.Title) == "" {
		return a, fmt.Errorf("news article needs url and title")
	}
	if a.ID == "" {
		a.ID = ulid.Make().String()
	}
	if a.PublishTime.IsZero() {
		a.PublishTime = s.now()
	}
	if a.Category == "" {
		a.Category = models.NewsCategoryNews
	}
	a.Importance = clampImportance(a.Importance)

	_, err := s.db.exec(ctx, `INSERT INTO news_articles (`+newsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			summary = excluded.summary,
			category = excluded.category,
			importance = excluded.importance,
			related_sectors = excluded.related_sectors,
			sentiment = excluded.sentiment,
			publish_time = excluded.publish_time,
			active = excluded.active`,
		a.ID, a.Source, a.SourceName, a.Title, a.Content, a.Summary, a.URL, a.Category,
		a.Importance, a.RelatedSectors, a.Sentiment, a.PublishTime.UnixMilli(), boolToInt(a.Active))
	if err != nil {
		return a, fmt.Errorf("upsert news: %w", err)
	}
	return a, nil
}

// UpsertMany writes every valid article and returns how many were stored.
func (s *NewsStore) UpsertMany(ctx context.Context, articles []models.NewsArticle) (int, error) {
	n := 0
	var firstErr error
	for _, a := range articles {
		if _, err := s.Upsert(ctx, a); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		n++
	}
	return n, firstErr
}

// Query returns active articles ranked by importance then recency.
func (s *NewsStore) Query(ctx context.Context, q models.NewsQuery) ([]models.NewsArticle, error) {
	hours := q.Hours
	if hours <= 0 {
		hours = 24
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"active = 1", "publish_time >= ?"}
	args := []any{s.now().Add(-time.Duration(hours) * time.Hour).UnixMilli()}
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		where = append(where, "(title LIKE ? OR content LIKE ? OR related_sectors LIKE ?)")
		like := "%" + kw + "%"
		args = append(args, like, like, like)
	}
	if q.Source != "" {
		where = append(where, "source = ?")
		args = append(args, q.Source)
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.MinImportance > 1 {
		where = append(where, "importance >= ?")
		args = append(args, q.MinImportance)
	}
	args = append(args, limit)

	rows, err := s.db.query(ctx, `SELECT `+newsColumns+` FROM news_articles
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY importance DESC, publish_time DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	defer rows.Close()

	var out []models.NewsArticle
	for rows.Next() {
		var (
			a       models.NewsArticle
			publish int64
			active  int
		)
		if err := rows.Scan(&a.ID, &a.Source, &a.SourceName, &a.Title, &a.Content, &a.Summary, &a.URL,
			&a.Category, &a.Importance, &a.RelatedSectors, &a.Sentiment, &publish, &active); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		a.PublishTime = time.UnixMilli(publish)
		a.Active = active == 1
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *NewsStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.queryRow(ctx, `SELECT COUNT(*) FROM news_articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count news: %w", err)
	}
	return n, nil
}

func clampImportance(v int) int {
	switch {
	case v < 1:
		return 1
	case v > 5:
		return 5
	default:
		return v
	}
}
