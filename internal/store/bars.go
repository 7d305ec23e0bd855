// Package store persists daily OHLCV bars to an embedded SQLite database.
// It is fed by the snapshot batch command, which captures the live market
// once per trading day.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DailyBar is one end-of-day bar keyed by (symbol, date).
type DailyBar struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"` // "2006-01-02" in exchange time
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

const schema = `
CREATE TABLE IF NOT EXISTS daily_bars (
	symbol TEXT NOT NULL,
	date   TEXT NOT NULL,
	open   REAL NOT NULL,
	high   REAL NOT NULL,
	low    REAL NOT NULL,
	close  REAL NOT NULL,
	volume INTEGER NOT NULL,
	PRIMARY KEY (symbol, date)
);
`

// BarStore is a daily-bar repository backed by SQLite.
type BarStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the bar database at path.
func Open(path string) (*BarStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open bar store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bar store schema: %w", err)
	}
	return &BarStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BarStore) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces the bar for (symbol, date). Re-running the
// daily snapshot job on the same day overwrites rather than duplicates.
func (s *BarStore) Upsert(ctx context.Context, bar DailyBar) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_bars (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`,
		bar.Symbol, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	if err != nil {
		return fmt.Errorf("upsert bar %s %s: %w", bar.Symbol, bar.Date, err)
	}
	return nil
}

// UpsertAll upserts a batch of bars in one transaction.
func (s *BarStore) UpsertAll(ctx context.Context, bars []DailyBar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bar upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_bars (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("prepare bar upsert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx,
			bar.Symbol, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
			return fmt.Errorf("upsert bar %s %s: %w", bar.Symbol, bar.Date, err)
		}
	}
	return tx.Commit()
}

// Bars returns up to limit most recent bars for a symbol, oldest first.
func (s *BarStore) Bars(ctx context.Context, symbol string, limit int) ([]DailyBar, error) {
	if limit <= 0 {
		limit = 365
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, date, open, high, low, close, volume
		FROM (
			SELECT * FROM daily_bars WHERE symbol = ? ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC`,
		symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []DailyBar
	for rows.Next() {
		var b DailyBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
