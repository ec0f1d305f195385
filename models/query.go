package models

import (
	"strings"
	"time"
)

// Filter narrows a realtime request. Empty Codes means the provider's
// default universe; Category is class specific (market, bond type, ...).
type Filter struct {
	Codes    []string `json:"codes,omitempty"`
	Category string   `json:"category,omitempty"`
}

// CodesKey renders the code list for cache keys.
func (f Filter) CodesKey() string {
	if len(f.Codes) == 0 {
		return "all"
	}
	return strings.Join(f.Codes, ",")
}

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// HistoryRange selects bars either by a trailing day window (Days > 0) or by
// an explicit Start/End pair.
type HistoryRange struct {
	Period string    `json:"period"`
	Days   int       `json:"days,omitempty"`
	Start  time.Time `json:"start,omitempty"`
	End    time.Time `json:"end,omitempty"`
}

// Bounds resolves the range against now.
func (h HistoryRange) Bounds(now time.Time) (time.Time, time.Time) {
	if h.Days > 0 {
		return now.AddDate(0, 0, -h.Days), now
	}
	end := h.End
	if end.IsZero() {
		end = now
	}
	return h.Start, end
}

func (h HistoryRange) PeriodOrDefault() string {
	if h.Period == "" {
		return PeriodDaily
	}
	return h.Period
}
