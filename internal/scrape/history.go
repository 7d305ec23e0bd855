package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rkabir/dsewatch/pkg/models"
)

// Series provenance tags, carried on the response envelope so clients can
// tell a real series from a synthesized one.
const (
	SourceDSE       = "dse"
	SourceSimulated = "simulated"
)

// Series is a historical price series with its provenance. The fallback
// to synthesized data is deliberate: the dashboard must always render a
// chart, and a statistically bounded fake beats a blank panel as long as
// the source tag travels with it.
type Series struct {
	Points []models.HistoricalPoint `json:"data"`
	Source string                   `json:"source"`
}

// SeriesAnchor carries the known current-day figures a synthesized series
// must not contradict.
type SeriesAnchor struct {
	CurrentPrice float64
	HighPrice    float64
	LowPrice     float64
	Volume       int64
}

// historyDateLayouts are the date formats seen in price-history tables.
var historyDateLayouts = []string{
	"02-Jan-2006",
	"02/01/2006",
	"2006-01-02",
}

// pointCounts is the number of synthesized points per timeframe: ~78
// five-minute intervals for one trading day, trading-day counts otherwise.
var pointCounts = map[models.Timeframe]int{
	models.Timeframe1D: 78,
	models.Timeframe1W: 5,
	models.Timeframe1M: 22,
	models.Timeframe3M: 66,
	models.Timeframe6M: 130,
	models.Timeframe1Y: 252,
}

// Synthesized closes are clamped to this band around the known range.
const (
	clampLowFactor  = 0.85
	clampHighFactor = 1.15
)

const cacheKeyHistoryPrefix = "dse:hist:"

// HistoricalSeries returns the price history for a symbol and timeframe,
// cached five minutes per (symbol, timeframe). The real table is tried
// first over the retrying fetch path; any failure, including a zero-row
// parse, degrades to a synthesized series anchored to the supplied
// current/high/low/volume.
func (d *DSE) HistoricalSeries(ctx context.Context, symbol string, tf models.Timeframe, anchor SeriesAnchor) (*Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	cacheKey := fmt.Sprintf("%s%s:%s", cacheKeyHistoryPrefix, symbol, tf)
	if cached, ok := d.cache.Get(cacheKey); ok {
		return cached.(*Series), nil
	}

	series := d.fetchSeries(ctx, symbol, tf, anchor)
	d.cache.SetWithTTL(cacheKey, series, historyTTL)
	return series, nil
}

func (d *DSE) fetchSeries(ctx context.Context, symbol string, tf models.Timeframe, anchor SeriesAnchor) *Series {
	body, err := d.fetchWithRetry(ctx, d.companyPageURL(symbol))
	if err != nil {
		log.Printf("scrape: history fetch %s failed (%v), synthesizing", symbol, err)
		return &Series{Points: synthesizeSeries(tf, anchor), Source: SourceSimulated}
	}

	points := parseHistoryTable(body)
	points = filterToWindow(points, tf)
	if len(points) == 0 {
		log.Printf("scrape: no in-window history rows for %s %s, synthesizing", symbol, tf)
		return &Series{Points: synthesizeSeries(tf, anchor), Source: SourceSimulated}
	}

	return &Series{Points: points, Source: SourceDSE}
}

// parseHistoryTable scans the company page for rows whose first cell
// parses as a date in any supported format, then reads OHLCV positionally.
// Returned points are sorted ascending by date.
func parseHistoryTable(body []byte) []models.HistoricalPoint {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var points []models.HistoricalPoint
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) < 5 {
			return
		}

		date, ok := parseHistoryDate(cells[0])
		if !ok {
			return
		}

		p := models.HistoricalPoint{
			Date:  date,
			Open:  ParseNumber(cells[1]),
			High:  ParseNumber(cells[2]),
			Low:   ParseNumber(cells[3]),
			Close: ParseNumber(cells[4]),
		}
		if len(cells) > 5 {
			p.Volume = ParseInt(cells[5])
		}
		if p.Open == 0 && p.High == 0 && p.Low == 0 && p.Close == 0 {
			return
		}
		points = append(points, p)
	})

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}

func parseHistoryDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range historyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// filterToWindow keeps points within the timeframe's window of the data's
// own most recent date, not the wall clock, so a stale page still yields
// a coherent slice.
func filterToWindow(points []models.HistoricalPoint, tf models.Timeframe) []models.HistoricalPoint {
	if len(points) == 0 {
		return nil
	}
	days, ok := models.WindowDays[tf]
	if !ok {
		days = models.WindowDays[models.Timeframe1M]
	}

	maxDate := points[len(points)-1].Date
	cutoff := maxDate.AddDate(0, 0, -days)

	var in []models.HistoricalPoint
	for _, p := range points {
		if !p.Date.Before(cutoff) {
			in = append(in, p)
		}
	}
	return in
}

// synthesizeSeries builds a plausible OHLCV series as a bounded random
// walk: each step drifts toward the anchor's current price plus bounded
// noise, closes are clamped so the fake never contradicts the known day
// range, and the final close equals CurrentPrice exactly.
func synthesizeSeries(tf models.Timeframe, anchor SeriesAnchor) []models.HistoricalPoint {
	n, ok := pointCounts[tf]
	if !ok {
		n = pointCounts[models.Timeframe1M]
	}

	current := anchor.CurrentPrice
	high := anchor.HighPrice
	low := anchor.LowPrice
	if current <= 0 {
		current = 100
	}
	if high <= 0 || low <= 0 || low > high {
		high = current * 1.02
		low = current * 0.98
	}

	clampLow := low * clampLowFactor
	clampHigh := high * clampHighFactor
	span := high - low
	if span <= 0 {
		span = current * 0.02
	}

	interval := 24 * time.Hour
	if tf == models.Timeframe1D {
		interval = 5 * time.Minute
	}
	start := time.Now().Add(-time.Duration(n-1) * interval)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	price := clamp((high+low)/2, clampLow, clampHigh)

	points := make([]models.HistoricalPoint, 0, n)
	for i := 0; i < n; i++ {
		remaining := n - i
		drift := (current - price) / float64(remaining)
		noise := (rng.Float64()*2 - 1) * span * 0.15

		open := price
		price = clamp(price+drift+noise, clampLow, clampHigh)
		if i == n-1 {
			price = current
		}

		hi := maxf(open, price) + rng.Float64()*span*0.05
		lo := minf(open, price) - rng.Float64()*span*0.05
		hi = clamp(hi, clampLow, clampHigh)
		lo = clamp(lo, clampLow, clampHigh)

		vol := anchor.Volume / int64(n)
		if vol <= 0 {
			vol = 1000
		}
		vol += int64(rng.Float64() * float64(vol) * 0.5)

		points = append(points, models.HistoricalPoint{
			Date:   start.Add(time.Duration(i) * interval),
			Open:   round2(open),
			High:   round2(hi),
			Low:    round2(lo),
			Close:  round2(price),
			Volume: vol,
		})
	}

	// The last close is the one anchor the UI cross-checks against the
	// live quote; it must match exactly, not to rounding.
	points[n-1].Close = current
	return points
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
