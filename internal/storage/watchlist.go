package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/cortexmarket/models"
)

// WatchlistStore keeps every asset class's watchlist in one table, unique on
// (asset_class, user_id, code).
type WatchlistStore struct {
	db  *DB
	now func() time.Time
}

func NewWatchlistStore(ctx context.Context, db *DB) (*WatchlistStore, error) {
	s := &WatchlistStore{db: db, now: time.Now}
	err := db.migrate(ctx,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS watchlist (
			id %s,
			asset_class TEXT NOT NULL,
			user_id TEXT NOT NULL,
			code TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			UNIQUE (asset_class, user_id, code)
		)`, db.serialPK()),
		`CREATE INDEX IF NOT EXISTS idx_watchlist_user ON watchlist (asset_class, user_id)`,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

const watchlistColumns = `id, asset_class, user_id, code, name, category, sort_order, notes, created_at`

// Add inserts the entry. When (class, user, code) already exists the stored
// row is returned unchanged and created is false.
func (s *WatchlistStore) Add(ctx context.Context, e models.WatchlistEntry) (models.WatchlistEntry, bool, error) {
	if strings.TrimSpace(e.UserID) == "" || strings.TrimSpace(e.Code) == "" {
		return e, false, errors.New("watchlist entry needs user_id and code")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	res, err := s.db.exec(ctx, `INSERT INTO watchlist
		(asset_class, user_id, code, name, category, sort_order, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset_class, user_id, code) DO NOTHING`,
		string(e.AssetClass), e.UserID, e.Code, e.Name, e.Category, e.SortOrder, e.Notes, e.CreatedAt.UnixMilli())
	if err != nil {
		return e, false, fmt.Errorf("insert watchlist: %w", err)
	}
	affected, _ := res.RowsAffected()

	stored, found, err := s.Get(ctx, e.AssetClass, e.UserID, e.Code)
	if err != nil {
		return e, false, err
	}
	if !found {
		return e, false, fmt.Errorf("watchlist entry %s vanished after insert", e.Code)
	}
	return stored, affected > 0, nil
}

func (s *WatchlistStore) Get(ctx context.Context, class models.AssetClass, userID, code string) (models.WatchlistEntry, bool, error) {
	row := s.db.queryRow(ctx, `SELECT `+watchlistColumns+` FROM watchlist
		WHERE asset_class = ? AND user_id = ? AND code = ?`, string(class), userID, code)
	e, err := scanWatchlist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WatchlistEntry{}, false, nil
	}
	if err != nil {
		return models.WatchlistEntry{}, false, fmt.Errorf("get watchlist: %w", err)
	}
	return e, true, nil
}

// Remove deletes the entry and reports whether one existed.
func (s *WatchlistStore) Remove(ctx context.Context, class models.AssetClass, userID, code string) (bool, error) {
	res, err := s.db.exec(ctx, `DELETE FROM watchlist WHERE asset_class = ? AND user_id = ? AND code = ?`,
		string(class), userID, code)
	if err != nil {
		return false, fmt.Errorf("delete watchlist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Update changes sort order and/or notes; nil leaves a field as is.
func (s *WatchlistStore) Update(ctx context.Context, class models.AssetClass, userID, code string, sortOrder *int, notes *string) (models.WatchlistEntry, bool, error) {
	var sets []string
	var args []any
	if sortOrder != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *sortOrder)
	}
	if notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *notes)
	}
	if len(sets) > 0 {
		args = append(args, string(class), userID, code)
		if _, err := s.db.exec(ctx, `UPDATE watchlist SET `+strings.Join(sets, ", ")+`
			WHERE asset_class = ? AND user_id = ? AND code = ?`, args...); err != nil {
			return models.WatchlistEntry{}, false, fmt.Errorf("update watchlist: %w", err)
		}
	}
	return s.Get(ctx, class, userID, code)
}

// List returns a user's entries by sort order then insertion.
func (s *WatchlistStore) List(ctx context.Context, class models.AssetClass, userID string) ([]models.WatchlistEntry, error) {
	rows, err := s.db.query(ctx, `SELECT `+watchlistColumns+` FROM watchlist
		WHERE asset_class = ? AND user_id = ? ORDER BY sort_order ASC, id ASC`, string(class), userID)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var out []models.WatchlistEntry
	for rows.Next() {
		e, err := scanWatchlist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watchlist: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Users returns the distinct users with at least one entry; an empty class
// means any class.
func (s *WatchlistStore) Users(ctx context.Context, class models.AssetClass) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM watchlist`
	var args []any
	if class != "" {
		query += ` WHERE asset_class = ?`
		args = append(args, string(class))
	}
	query += ` ORDER BY user_id`
	rows, err := s.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("watchlist users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatchlist(row rowScanner) (models.WatchlistEntry, error) {
	var (
		e         models.WatchlistEntry
		class     string
		createdAt int64
	)
	if err := row.Scan(&e.ID, &class, &e.UserID, &e.Code, &e.Name, &e.Category, &e.SortOrder, &e.Notes, &createdAt); err != nil {
		return e, err
	}
	e.AssetClass = models.AssetClass(class)
	e.CreatedAt = time.UnixMilli(createdAt)
	return e, nil
}
