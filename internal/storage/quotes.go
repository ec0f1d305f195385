package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/dyike/cortexmarket/models"
)

// QuoteStore is the time-series log of one asset class. Rows are keyed by
// (code, ts) with ts in unix milliseconds; the full tagged record is kept in
// payload and the base fields are mirrored into columns for querying.
type QuoteStore[R models.Record] struct {
	db    *DB
	table string
}

func NewQuoteStore[R models.Record](ctx context.Context, db *DB, table string) (*QuoteStore[R], error) {
	s := &QuoteStore[R]{db: db, table: table}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QuoteStore[R]) Table() string { return s.table }

func (s *QuoteStore[R]) init(ctx context.Context) error {
	return s.db.migrate(ctx,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			code TEXT NOT NULL,
			ts BIGINT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			open DOUBLE PRECISION NOT NULL DEFAULT 0,
			high DOUBLE PRECISION NOT NULL DEFAULT 0,
			low DOUBLE PRECISION NOT NULL DEFAULT 0,
			close DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			change DOUBLE PRECISION NOT NULL DEFAULT 0,
			change_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			payload TEXT NOT NULL,
			PRIMARY KEY (code, ts)
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s (ts DESC)`, s.table, s.table),
	)
}

const quoteColumns = `code, ts, name, category, open, high, low, close, volume, amount, change, change_percent, payload`

func (s *QuoteStore[R]) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, ts) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			amount = excluded.amount,
			change = excluded.change,
			change_percent = excluded.change_percent,
			payload = excluded.payload`, s.table, quoteColumns)
}

func quoteArgs[R models.Record](r R) ([]any, error) {
	q := r.Base()
	if strings.TrimSpace(q.Code) == "" {
		return nil, errors.New("record code is empty")
	}
	if q.Time.IsZero() {
		return nil, fmt.Errorf("record %s has zero time", q.Code)
	}
	payload, err := sonic.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return []any{
		q.Code, q.Time.UnixMilli(), q.Name, q.Category,
		q.Open, q.High, q.Low, q.Close, q.Volume, q.Amount, q.Change, q.ChangePercent,
		string(payload),
	}, nil
}

// Upsert inserts r or replaces the row with the same (code, time).
func (s *QuoteStore[R]) Upsert(ctx context.Context, r R) (R, error) {
	args, err := quoteArgs(r)
	if err != nil {
		return r, err
	}
	if _, err := s.db.exec(ctx, s.upsertSQL(), args...); err != nil {
		return r, fmt.Errorf("upsert %s: %w", s.table, err)
	}
	return r, nil
}

// UpsertMany writes all records in one transaction and returns how many were written.
func (s *QuoteStore[R]) UpsertMany(ctx context.Context, rs []R) (int, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.db.Rebind(s.upsertSQL()))
	if err != nil {
		return 0, fmt.Errorf("prepare upsert %s: %w", s.table, err)
	}
	defer stmt.Close()

	n := 0
	for _, r := range rs {
		args, err := quoteArgs(r)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", s.table, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Latest returns the row with the greatest time for code.
func (s *QuoteStore[R]) Latest(ctx context.Context, code string) (R, bool, error) {
	var zero R
	row := s.db.queryRow(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE code = ? ORDER BY ts DESC LIMIT 1`, s.table), code)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("latest %s: %w", s.table, err)
	}
	r, err := decodeRecord[R](payload)
	if err != nil {
		return zero, false, err
	}
	return r, true, nil
}

// LatestAll returns the newest row per code, optionally limited to codes.
func (s *QuoteStore[R]) LatestAll(ctx context.Context, codes []string) ([]R, error) {
	query := fmt.Sprintf(`SELECT q.payload FROM %[1]s q
		JOIN (SELECT code, MAX(ts) AS ts FROM %[1]s GROUP BY code) m
		ON q.code = m.code AND q.ts = m.ts`, s.table)
	var args []any
	if len(codes) > 0 {
		filter, filterArgs := s.db.inCodes("q.code", codes)
		query += " WHERE " + filter
		args = filterArgs
	}
	query += " ORDER BY q.code"
	return s.queryRecords(ctx, query, args...)
}

// Range returns rows for code with start <= time <= end in ascending time
// order. A zero start or end leaves that side open; limit <= 0 means no limit.
func (s *QuoteStore[R]) Range(ctx context.Context, code string, start, end time.Time, limit int) ([]R, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE code = ?`, s.table)
	args := []any{code}
	if !start.IsZero() {
		query += " AND ts >= ?"
		args = append(args, start.UnixMilli())
	}
	if !end.IsZero() {
		query += " AND ts <= ?"
		args = append(args, end.UnixMilli())
	}
	query += " ORDER BY ts ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

// BucketAggregate rolls the range up into fixed windows aligned to the unix
// epoch: open of the first row, close of the last, max high, min low and
// summed volume.
func (s *QuoteStore[R]) BucketAggregate(ctx context.Context, code string, start, end time.Time, interval time.Duration) ([]models.Bucket, error) {
	if interval < time.Millisecond {
		return nil, fmt.Errorf("bucket interval %s too small", interval)
	}
	rows, err := s.Range(ctx, code, start, end, 0)
	if err != nil {
		return nil, err
	}
	return Aggregate(rows, interval), nil
}

// Aggregate buckets records that are already sorted by time ascending.
func Aggregate[R models.Record](rows []R, interval time.Duration) []models.Bucket {
	width := interval.Milliseconds()
	var out []models.Bucket
	for _, r := range rows {
		q := r.Base()
		ms := q.Time.UnixMilli()
		startMs := ms - ms%width
		if ms < 0 && ms%width != 0 {
			startMs -= width
		}
		if n := len(out); n == 0 || out[n-1].Start.UnixMilli() != startMs {
			out = append(out, models.Bucket{
				Start: time.UnixMilli(startMs).UTC(),
				Code:  q.Code,
				Open:  q.Open,
				High:  q.High,
				Low:   q.Low,
			})
		}
		cur := &out[len(out)-1]
		cur.High = max(cur.High, q.High)
		cur.Low = min(cur.Low, q.Low)
		cur.Close = q.Close
		cur.Volume += q.Volume
		cur.Count++
	}
	return out
}

func (s *QuoteStore[R]) queryRecords(ctx context.Context, query string, args ...any) ([]R, error) {
	rows, err := s.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []R
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		r, err := decodeRecord[R](payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decodeRecord[R models.Record](payload string) (R, error) {
	var r R
	if err := sonic.UnmarshalString(payload, &r); err != nil {
		return r, fmt.Errorf("decode payload: %w", err)
	}
	return r, nil
}
