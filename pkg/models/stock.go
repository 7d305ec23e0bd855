// Package models defines the core data structures shared across dsewatch.
package models

import "time"

// CompanyInfo is one entry of the DSE company directory, keyed by trading code.
// The directory is refreshed wholesale; entries are never partially merged.
type CompanyInfo struct {
	Symbol   string `json:"symbol"`   // e.g., "ABCBANK"
	Name     string `json:"name"`     // e.g., "ABC Bank Limited"
	Sector   string `json:"sector"`   // e.g., "Bank"
	Category string `json:"category"` // e.g., "A"
}

// RawStock is the as-scraped per-symbol tick from the live price-scroll page.
// A new snapshot replaces it entirely; it is never mutated in place.
type RawStock struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Sector    string  `json:"sector"`
	Category  string  `json:"category"`
	LTP       float64 `json:"ltp"`       // last traded price
	High      float64 `json:"high"`      // day high
	Low       float64 `json:"low"`       // day low
	CloseP    float64 `json:"closep"`    // close-equivalent as published
	YCP       float64 `json:"ycp"`       // yesterday's close
	RawChange float64 `json:"rawChange"` // change as published by the exchange
	Trades    int64   `json:"trade"`     // number of trades
	ValueMn   float64 `json:"valueMn"`   // turnover in million BDT
	Volume    int64   `json:"volume"`
}

// Stock is the normalized, client-facing record: a RawStock plus fields
// derived from it and the market-open state. Always rebuilt whole from a
// fresh RawStock, never patched.
type Stock struct {
	RawStock
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// StockFundamentals is a per-symbol valuation snapshot scraped from the
// company detail page. Every field is independently optional: failure to
// extract one must not blank out the others, hence the pointer types.
type StockFundamentals struct {
	Symbol        string   `json:"symbol"`
	Sector        *string  `json:"sector,omitempty"`
	Category      *string  `json:"category,omitempty"`
	MarketCap     *float64 `json:"marketCap,omitempty"`     // million BDT
	AuthorizedCap *float64 `json:"authorizedCap,omitempty"` // million BDT
	PaidUpCap     *float64 `json:"paidUpCap,omitempty"`     // million BDT
	FaceValue     *float64 `json:"faceValue,omitempty"`
	PE            *float64 `json:"pe,omitempty"`
	EPS           *float64 `json:"eps,omitempty"`
	NAV           *float64 `json:"nav,omitempty"`
	YearHigh      *float64 `json:"yearHigh,omitempty"` // 52-week high
	YearLow       *float64 `json:"yearLow,omitempty"`  // 52-week low
	ListingYear   *int     `json:"listingYear,omitempty"`
	LastAGM       *string  `json:"lastAGM,omitempty"`
}

// HistoricalPoint is one OHLCV bar, either scraped or synthesized.
// Provenance lives on the enclosing series, not the point.
type HistoricalPoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Timeframe selects a historical window.
type Timeframe string

const (
	Timeframe1D Timeframe = "1D"
	Timeframe1W Timeframe = "1W"
	Timeframe1M Timeframe = "1M"
	Timeframe3M Timeframe = "3M"
	Timeframe6M Timeframe = "6M"
	Timeframe1Y Timeframe = "1Y"
)

// WindowDays maps a timeframe to the calendar-day window applied when
// filtering scraped history against the data's most recent date.
var WindowDays = map[Timeframe]int{
	Timeframe1D: 1,
	Timeframe1W: 7,
	Timeframe1M: 30,
	Timeframe3M: 90,
	Timeframe6M: 180,
	Timeframe1Y: 365,
}

// ParseTimeframe normalizes a timeframe string, defaulting to 1M.
func ParseTimeframe(s string) Timeframe {
	switch Timeframe(s) {
	case Timeframe1D, Timeframe1W, Timeframe1M, Timeframe3M, Timeframe6M, Timeframe1Y:
		return Timeframe(s)
	}
	return Timeframe1M
}

// NewsArticle is one market-news item from a configured RSS source.
type NewsArticle struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}
