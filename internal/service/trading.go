package service

import "time"

// IsTradingTime reports whether the wall clock of now falls in the A-share
// sessions: weekdays 09:15–11:30 and 13:00–15:00, bounds inclusive.
// Holidays are not modelled.
func IsTradingTime(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	morning := minutes >= 9*60+15 && minutes <= 11*60+30
	afternoon := minutes >= 13*60 && minutes <= 15*60
	// 11:30:xx and 15:00:xx are past the bell
	if (minutes == 11*60+30 || minutes == 15*60) && (now.Second() > 0 || now.Nanosecond() > 0) {
		return false
	}
	return morning || afternoon
}
