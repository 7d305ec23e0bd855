package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *BarStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bars.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bar := DailyBar{Symbol: "ABCBANK", Date: "2026-08-30", Open: 100, High: 107, Low: 99, Close: 105, Volume: 1500000}
	if err := s.Upsert(ctx, bar); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	bars, err := s.Bars(ctx, "ABCBANK", 10)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	if bars[0] != bar {
		t.Errorf("got %+v, want %+v", bars[0], bar)
	}
}

func TestUpsertOverwritesSameDay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := DailyBar{Symbol: "ABCBANK", Date: "2026-08-30", Close: 104, Volume: 100}
	second := DailyBar{Symbol: "ABCBANK", Date: "2026-08-30", Close: 105.5, Volume: 200}
	if err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	bars, err := s.Bars(ctx, "ABCBANK", 10)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1 (same-day re-run overwrites)", len(bars))
	}
	if bars[0].Close != 105.5 || bars[0].Volume != 200 {
		t.Errorf("got %+v, want the second write", bars[0])
	}
}

func TestUpsertAllBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bars := []DailyBar{
		{Symbol: "ABCBANK", Date: "2026-08-27", Close: 103},
		{Symbol: "ABCBANK", Date: "2026-08-30", Close: 105},
		{Symbol: "XYZTEX", Date: "2026-08-30", Close: 22},
	}
	if err := s.UpsertAll(ctx, bars); err != nil {
		t.Fatalf("UpsertAll: %v", err)
	}

	got, err := s.Bars(ctx, "ABCBANK", 10)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d ABCBANK bars, want 2", len(got))
	}
	// Oldest first.
	if got[0].Date != "2026-08-27" || got[1].Date != "2026-08-30" {
		t.Errorf("wrong order: %+v", got)
	}
}

func TestBarsLimitKeepsMostRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	dates := []string{"2026-08-24", "2026-08-25", "2026-08-26", "2026-08-27", "2026-08-30"}
	for i, date := range dates {
		if err := s.Upsert(ctx, DailyBar{Symbol: "ABCBANK", Date: date, Close: float64(100 + i)}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	got, err := s.Bars(ctx, "ABCBANK", 3)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d bars, want 3", len(got))
	}
	// The three most recent, still oldest first.
	if got[0].Date != "2026-08-26" || got[2].Date != "2026-08-30" {
		t.Errorf("wrong window: %+v", got)
	}
}

func TestBarsUnknownSymbol(t *testing.T) {
	s := openTestStore(t)
	bars, err := s.Bars(context.Background(), "GHOST", 10)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("got %d bars for unknown symbol, want 0", len(bars))
	}
}
