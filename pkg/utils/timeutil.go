package utils

import (
	"time"
)

// BDT is the Bangladesh Standard Time location (UTC+6).
var BDT *time.Location

func init() {
	var err error
	BDT, err = time.LoadLocation("Asia/Dhaka")
	if err != nil {
		// Fallback: fixed zone if the tz database is not available
		BDT = time.FixedZone("BDT", 6*60*60)
	}
}

// DSE trading session, minutes since midnight in Dhaka time.
// The session runs 10:00-14:30, Sunday through Thursday.
const (
	sessionOpenMinute  = 10 * 60
	sessionCloseMinute = 14*60 + 30
)

// NowBDT returns the current time in Dhaka time.
func NowBDT() time.Time {
	return time.Now().In(BDT)
}

// ToBDT converts a time.Time to Dhaka time.
func ToBDT(t time.Time) time.Time {
	return t.In(BDT)
}

// MarketOpenTime returns the DSE session open (10:00 AM) for a given date.
func MarketOpenTime(date time.Time) time.Time {
	d := date.In(BDT)
	return time.Date(d.Year(), d.Month(), d.Day(), 10, 0, 0, 0, BDT)
}

// MarketCloseTime returns the DSE session close (2:30 PM) for a given date.
func MarketCloseTime(date time.Time) time.Time {
	d := date.In(BDT)
	return time.Date(d.Year(), d.Month(), d.Day(), 14, 30, 0, 0, BDT)
}

// IsMarketOpen checks if the DSE is currently in session.
func IsMarketOpen() bool {
	return IsMarketOpenAt(NowBDT())
}

// IsMarketOpenAt checks if the DSE would be in session at the given time.
// The DSE weekend is Friday and Saturday.
func IsMarketOpenAt(t time.Time) bool {
	t = t.In(BDT)

	if t.Weekday() == time.Friday || t.Weekday() == time.Saturday {
		return false
	}

	minute := t.Hour()*60 + t.Minute()
	return minute >= sessionOpenMinute && minute <= sessionCloseMinute
}

// IsTradingDay checks if the given date falls on a DSE trading weekday.
func IsTradingDay(t time.Time) bool {
	t = t.In(BDT)
	return t.Weekday() != time.Friday && t.Weekday() != time.Saturday
}

// PrevTradingDay returns the trading day before the given date.
func PrevTradingDay(from time.Time) time.Time {
	prev := from.In(BDT).AddDate(0, 0, -1)
	for !IsTradingDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// FormatDateBDT formats a time.Time to "2006-01-02" in Dhaka time.
func FormatDateBDT(t time.Time) string {
	return t.In(BDT).Format("2006-01-02")
}

// FormatDateTimeBDT formats a time.Time to "2006-01-02 15:04:05 BDT".
func FormatDateTimeBDT(t time.Time) string {
	return t.In(BDT).Format("2006-01-02 15:04:05 MST")
}

// MarketStatus returns the current market status string.
func MarketStatus() string {
	return MarketStatusAt(NowBDT())
}

// MarketStatusAt returns the market status string for the given time.
func MarketStatusAt(now time.Time) string {
	now = now.In(BDT)

	if now.Weekday() == time.Friday || now.Weekday() == time.Saturday {
		return "CLOSED (Weekend)"
	}

	minute := now.Hour()*60 + now.Minute()
	switch {
	case minute < sessionOpenMinute:
		return "PRE-OPEN"
	case minute <= sessionCloseMinute:
		return "OPEN"
	default:
		return "CLOSED"
	}
}
