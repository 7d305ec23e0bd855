package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rkabir/dsewatch/pkg/models"
)

const cacheKeyDirectory = "dse:directory"

// directoryMinCells is the column count of a listing row: serial, trading
// code, company name, category, sector.
const directoryMinCells = 5

// anchorRE matches company-detail links anywhere on the page. Fallback
// parse tier only: it recovers symbol and display name when the listing
// tables change shape, at the cost of sector/category.
var anchorRE = regexp.MustCompile(`(?is)<a[^>]+href="[^"]*displayCompany\.php\?name=([A-Z0-9.&;%]+)"[^>]*>(.*?)</a>`)

// CompanyDirectory returns the symbol-keyed company listing, cached for
// ten minutes. The map is rebuilt wholesale on refresh.
func (d *DSE) CompanyDirectory(ctx context.Context) (map[string]models.CompanyInfo, error) {
	if cached, ok := d.cache.Get(cacheKeyDirectory); ok {
		return cached.(map[string]models.CompanyInfo), nil
	}

	body, err := d.fetchPage(ctx, d.companyListingURL())
	if err != nil {
		return nil, fmt.Errorf("company listing: %w", err)
	}

	entries, err := parseDirectory(body)
	if err != nil {
		return nil, err
	}

	d.cache.SetWithTTL(cacheKeyDirectory, entries, directoryTTL)
	return entries, nil
}

// parseDirectory runs the two-tier directory parse: positional table cells
// first, whole-page anchor regex second. One tier failing must never
// starve the pipeline; the fallback degrades field completeness instead.
func parseDirectory(body []byte) (map[string]models.CompanyInfo, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse company listing HTML: %w", err)
	}

	entries := parseDirectoryTables(doc)
	if len(entries) == 0 {
		entries = parseDirectoryAnchors(string(body))
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("company listing: %w", ErrEmptyParse)
	}
	return entries, nil
}

// parseDirectoryTables extracts listing rows positionally, pairing the
// cell walk with link-based symbol extraction so a column reorder cannot
// silently attach data to the wrong symbol.
func parseDirectoryTables(doc *goquery.Document) map[string]models.CompanyInfo {
	entries := make(map[string]models.CompanyInfo)

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find(`a[href*="displayCompany.php?name="]`)
		if link.Length() == 0 {
			return
		}

		symbol := symbolFromHref(link.First().AttrOr("href", ""))
		if symbol == "" {
			return
		}

		var cells []string
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) < directoryMinCells {
			return
		}

		info := models.CompanyInfo{
			Symbol:   symbol,
			Name:     cells[2],
			Category: cells[3],
			Sector:   cells[4],
		}
		if info.Name == "" {
			info.Name = symbol
		}
		entries[symbol] = info
	})

	return entries
}

// parseDirectoryAnchors is the degraded tier: symbol plus display name
// from anchor tags, sector and category left empty.
func parseDirectoryAnchors(body string) map[string]models.CompanyInfo {
	entries := make(map[string]models.CompanyInfo)

	for _, m := range anchorRE.FindAllStringSubmatch(body, -1) {
		symbol := strings.ToUpper(strings.TrimSpace(m[1]))
		if symbol == "" {
			continue
		}
		name := stripTags(m[2])
		if name == "" {
			name = symbol
		}
		entries[symbol] = models.CompanyInfo{
			Symbol: symbol,
			Name:   name,
		}
	}

	return entries
}

// symbolFromHref pulls the trading code out of a company-detail link.
func symbolFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(u.Query().Get("name")))
}
