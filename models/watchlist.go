package models

import "time"

// WatchlistEntry is a user's saved instrument. (AssetClass, UserID, Code) is unique.
type WatchlistEntry struct {
	ID         int64      `json:"id"`
	AssetClass AssetClass `json:"asset_class"`
	UserID     string     `json:"user_id"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	Category   string     `json:"category,omitempty"`
	SortOrder  int        `json:"sort_order"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// WatchItem is a watchlist entry joined with its latest quote and a short
// trailing close series for sparklines.
type WatchItem[R Record] struct {
	Entry   WatchlistEntry `json:"entry"`
	Quote   R              `json:"quote"`
	History []float64      `json:"history_data"`
}
