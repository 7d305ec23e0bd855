package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/rkabir/dsewatch/pkg/models"
)

const cacheKeySnapshot = "dse:snapshot"

// snapshotMinCells is the column count of a price-scroll row: serial,
// trading code, LTP, high, low, closep, ycp, change, trade, value (mn),
// volume. Rows with fewer cells are discarded whole, never half-parsed.
const snapshotMinCells = 11

// sourceTimestampREs are tried in order against the page header to pull
// the human-readable "as of" text. Display only, not used for correctness.
var sourceTimestampREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Latest Share Price[^<]*?\bOn\b[:\s]*([A-Za-z]{3}\s+\d{1,2},?\s+\d{4}\s+at\s+[\d:]+\s*[AP]M)`),
	regexp.MustCompile(`(?i)\bOn\b[:\s]*([A-Za-z]{3}\s+\d{1,2},?\s+\d{4}\s+at\s+[\d:]+\s*[AP]M)`),
	regexp.MustCompile(`(?i)as\s+of[:\s]*([^<]{8,60})<`),
}

// Snapshot is one consistent view of the live price scroll.
type Snapshot struct {
	Stocks          []models.RawStock
	SourceTimestamp string // "as of" text scraped from the page header
}

// MarketSnapshot returns the cached market snapshot, refreshing it when
// the 60-second TTL lapses. The company directory and the price page are
// fetched concurrently. A refresh that fails fatally (fetch error or
// zero-row parse) never poisons the cache; the previous snapshot is served
// instead, bounded by snapshotMaxStale.
func (d *DSE) MarketSnapshot(ctx context.Context) (*Snapshot, error) {
	if cached, ok := d.cache.Get(cacheKeySnapshot); ok {
		return cached.(*Snapshot), nil
	}

	snap, err := d.refreshSnapshot(ctx)
	if err != nil {
		if stale, ok := d.cache.GetStale(cacheKeySnapshot, snapshotMaxStale); ok {
			log.Printf("scrape: snapshot refresh failed (%v), serving stale copy", err)
			return stale.(*Snapshot), nil
		}
		return nil, err
	}

	d.cache.SetWithTTL(cacheKeySnapshot, snap, snapshotTTL)
	return snap, nil
}

// refreshSnapshot fetches and parses a fresh snapshot without touching the
// cache.
func (d *DSE) refreshSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		directory map[string]models.CompanyInfo
		body      []byte
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		directory, err = d.CompanyDirectory(gctx)
		if err != nil {
			// Enrichment only: rows still carry symbol and prices, so a
			// directory outage degrades names rather than failing the tick.
			log.Printf("scrape: company directory unavailable: %v", err)
			directory = map[string]models.CompanyInfo{}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		body, err = d.fetchPage(gctx, d.priceScrollURL())
		if err != nil {
			return fmt.Errorf("price scroll: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stocks, err := parseSnapshotRows(body, directory)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Stocks:          stocks,
		SourceTimestamp: extractSourceTimestamp(string(body)),
	}, nil
}

// parseSnapshotRows scans the price-scroll table. Rows lacking a company
// link, rows under the minimum cell count, and rows whose price fields are
// all zero (header/footer noise) are skipped. Zero surviving rows is a
// hard failure: the markup has likely changed and an empty snapshot must
// not be mistaken for a quiet market.
func parseSnapshotRows(body []byte, directory map[string]models.CompanyInfo) ([]models.RawStock, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse price scroll HTML: %w", err)
	}

	var stocks []models.RawStock
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find(`a[href*="displayCompany.php?name="]`)
		if link.Length() == 0 {
			return
		}

		symbol := symbolFromHref(link.First().AttrOr("href", ""))
		if symbol == "" {
			symbol = strings.ToUpper(strings.TrimSpace(link.First().Text()))
		}
		if symbol == "" {
			return
		}

		var cells []string
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) < snapshotMinCells {
			return
		}

		raw := models.RawStock{
			Symbol:    symbol,
			LTP:       ParseNumber(cells[2]),
			High:      ParseNumber(cells[3]),
			Low:       ParseNumber(cells[4]),
			CloseP:    ParseNumber(cells[5]),
			YCP:       ParseNumber(cells[6]),
			RawChange: ParseNumber(cells[7]),
			Trades:    ParseInt(cells[8]),
			ValueMn:   ParseNumber(cells[9]),
			Volume:    ParseInt(cells[10]),
		}
		if raw.LTP == 0 && raw.High == 0 && raw.Low == 0 && raw.CloseP == 0 && raw.YCP == 0 {
			return
		}

		if info, ok := directory[symbol]; ok {
			raw.Name = info.Name
			raw.Sector = info.Sector
			raw.Category = info.Category
		}
		if raw.Name == "" {
			raw.Name = symbol
		}

		stocks = append(stocks, raw)
	})

	if len(stocks) == 0 {
		return nil, fmt.Errorf("price scroll: %w", ErrEmptyParse)
	}
	return stocks, nil
}

// extractSourceTimestamp pulls the page's "as of" display text, if any.
func extractSourceTimestamp(body string) string {
	for _, re := range sourceTimestampREs {
		if m := re.FindStringSubmatch(body); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
