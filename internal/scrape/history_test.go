package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rkabir/dsewatch/pkg/models"
)

const historyPageFixture = `<html><body>
<h2>Market Information</h2>
<table>
<tr><th>Date</th><th>Open</th><th>High</th><th>Low</th><th>Close</th><th>Volume</th></tr>
<tr><td>02-Mar-2026</td><td>100.00</td><td>102.00</td><td>99.00</td><td>101.00</td><td>120,000</td></tr>
<tr><td>15-Jul-2026</td><td>103.00</td><td>104.50</td><td>102.00</td><td>104.00</td><td>95,000</td></tr>
<tr><td>27-Aug-2026</td><td>104.00</td><td>106.00</td><td>103.50</td><td>105.00</td><td>110,000</td></tr>
<tr><td>28-Aug-2026</td><td>105.00</td><td>107.00</td><td>104.00</td><td>105.50</td><td>130,000</td></tr>
</table>
</body></html>`

func TestParseHistoryTable(t *testing.T) {
	points := parseHistoryTable([]byte(historyPageFixture))
	if len(points) != 4 {
		t.Fatalf("got %d points, want 4", len(points))
	}

	// Sorted ascending by date.
	for i := 1; i < len(points); i++ {
		if points[i].Date.Before(points[i-1].Date) {
			t.Fatal("points must be sorted ascending by date")
		}
	}

	first := points[0]
	if !first.Date.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", first.Date)
	}
	if first.Open != 100 || first.High != 102 || first.Low != 99 || first.Close != 101 {
		t.Errorf("OHLC wrong: %+v", first)
	}
	if first.Volume != 120000 {
		t.Errorf("Volume = %d, want 120000", first.Volume)
	}
}

func TestParseHistoryDateLayouts(t *testing.T) {
	for _, s := range []string{"28-Aug-2026", "28/08/2026", "2026-08-28"} {
		d, ok := parseHistoryDate(s)
		if !ok {
			t.Errorf("parseHistoryDate(%q) failed", s)
			continue
		}
		if d.Year() != 2026 || d.Month() != time.August || d.Day() != 28 {
			t.Errorf("parseHistoryDate(%q) = %v", s, d)
		}
	}
	if _, ok := parseHistoryDate("not a date"); ok {
		t.Error("garbage must not parse as a date")
	}
}

func TestFilterToWindowUsesDataMaxDate(t *testing.T) {
	points := parseHistoryTable([]byte(historyPageFixture))

	// 1M window is anchored to 28-Aug-2026, the data's own most recent
	// date, so only the late-August rows survive.
	in := filterToWindow(points, models.Timeframe1M)
	if len(in) != 2 {
		t.Fatalf("got %d in-window points, want 2", len(in))
	}
	if in[0].Date.Day() != 27 || in[1].Date.Day() != 28 {
		t.Errorf("wrong points survived: %+v", in)
	}

	// 1Y keeps everything.
	if in := filterToWindow(points, models.Timeframe1Y); len(in) != 4 {
		t.Errorf("1Y window kept %d points, want 4", len(in))
	}
}

func TestSynthesizeSeriesBounds(t *testing.T) {
	anchor := SeriesAnchor{CurrentPrice: 105.50, HighPrice: 107, LowPrice: 104, Volume: 1500000}

	for tf, want := range pointCounts {
		points := synthesizeSeries(tf, anchor)
		if len(points) != want {
			t.Errorf("%s: got %d points, want %d", tf, len(points), want)
			continue
		}

		lo := anchor.LowPrice * clampLowFactor
		hi := anchor.HighPrice * clampHighFactor
		for _, p := range points {
			if p.Close < lo || p.Close > hi {
				t.Errorf("%s: close %v outside [%v, %v]", tf, p.Close, lo, hi)
			}
			if p.Volume <= 0 {
				t.Errorf("%s: non-positive volume %d", tf, p.Volume)
			}
		}

		// The final close must equal the live price exactly.
		if got := points[len(points)-1].Close; got != anchor.CurrentPrice {
			t.Errorf("%s: last close = %v, want %v exactly", tf, got, anchor.CurrentPrice)
		}

		// Dates strictly increase.
		for i := 1; i < len(points); i++ {
			if !points[i].Date.After(points[i-1].Date) {
				t.Errorf("%s: dates not strictly increasing", tf)
				break
			}
		}
	}
}

func TestSynthesizeSeriesDegenerateAnchor(t *testing.T) {
	points := synthesizeSeries(models.Timeframe1W, SeriesAnchor{})
	if len(points) != pointCounts[models.Timeframe1W] {
		t.Fatalf("got %d points", len(points))
	}
	for _, p := range points {
		if p.Close <= 0 {
			t.Errorf("close %v must stay positive with a zero anchor", p.Close)
		}
	}
}

func TestHistoricalSeriesRealData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/displayCompany.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(historyPageFixture)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDSEWithOptions(Options{BaseURL: srv.URL, BaseDelay: time.Millisecond})
	series, err := d.HistoricalSeries(context.Background(), "abcbank", models.Timeframe1Y, SeriesAnchor{CurrentPrice: 105.50})
	if err != nil {
		t.Fatalf("HistoricalSeries: %v", err)
	}
	if series.Source != SourceDSE {
		t.Errorf("Source = %q, want %q", series.Source, SourceDSE)
	}
	if len(series.Points) != 4 {
		t.Errorf("got %d points, want 4", len(series.Points))
	}
}

func TestHistoricalSeriesSynthesizesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	anchor := SeriesAnchor{CurrentPrice: 50, HighPrice: 51, LowPrice: 49, Volume: 10000}
	d := NewDSEWithOptions(Options{BaseURL: srv.URL, BaseDelay: time.Millisecond})
	series, err := d.HistoricalSeries(context.Background(), "GHOST", models.Timeframe1W, anchor)
	if err != nil {
		t.Fatalf("HistoricalSeries: %v", err)
	}
	if series.Source != SourceSimulated {
		t.Errorf("Source = %q, want %q", series.Source, SourceSimulated)
	}
	if len(series.Points) != pointCounts[models.Timeframe1W] {
		t.Errorf("got %d points, want %d", len(series.Points), pointCounts[models.Timeframe1W])
	}
	if got := series.Points[len(series.Points)-1].Close; got != 50 {
		t.Errorf("last close = %v, want 50", got)
	}
}

func TestHistoricalSeriesCachesPerSymbolTimeframe(t *testing.T) {
	hits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/displayCompany.php", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(historyPageFixture)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDSEWithOptions(Options{BaseURL: srv.URL, BaseDelay: time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := d.HistoricalSeries(ctx, "ABCBANK", models.Timeframe1Y, SeriesAnchor{}); err != nil {
			t.Fatalf("HistoricalSeries: %v", err)
		}
	}
	if hits != 1 {
		t.Errorf("upstream hit %d times, want 1 (cached)", hits)
	}

	// A different timeframe is a distinct cache entry.
	if _, err := d.HistoricalSeries(ctx, "ABCBANK", models.Timeframe1W, SeriesAnchor{}); err != nil {
		t.Fatalf("HistoricalSeries: %v", err)
	}
	if hits != 2 {
		t.Errorf("upstream hit %d times, want 2", hits)
	}
}
