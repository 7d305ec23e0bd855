package scrape

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rkabir/dsewatch/pkg/models"
)

// Per-field candidate patterns, tried in order until one matches. Each
// field is extracted independently: one field's patterns all missing never
// blocks another field. Patterns are hand-tuned to the company page's
// current markup; looser variants sit later in each list.
var (
	sectorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Sector\s*</th>\s*<td[^>]*>\s*([^<]+?)\s*<`),
		regexp.MustCompile(`(?is)Sector\s*:?\s*</td>\s*<td[^>]*>\s*([^<]+?)\s*<`),
		regexp.MustCompile(`(?i)Sector\s*:\s*([A-Za-z][A-Za-z &/]+)`),
	}

	categoryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Market Category\s*</th>\s*<td[^>]*>\s*([A-Z])\s*<`),
		regexp.MustCompile(`(?is)Category\s*</th>\s*<td[^>]*>\s*([A-Z])\s*<`),
		regexp.MustCompile(`(?i)Category\s*:\s*([A-Z])\b`),
	}

	marketCapPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Market Capitalization[^<]*</th>\s*<td[^>]*>\s*([\d,.]+)`),
		regexp.MustCompile(`(?is)Market Cap[^<]*</t[hd]>\s*<td[^>]*>\s*([\d,.]+)`),
	}

	authorizedCapPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Authorized Capital[^<]*</th>\s*<td[^>]*>\s*([\d,.]+)`),
		regexp.MustCompile(`(?is)Authorised Capital[^<]*</t[hd]>\s*<td[^>]*>\s*([\d,.]+)`),
	}

	paidUpCapPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Paid.?up Capital[^<]*</th>\s*<td[^>]*>\s*([\d,.]+)`),
	}

	faceValuePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Face/?par Value[^<]*</th>\s*<td[^>]*>\s*([\d,.]+)`),
		regexp.MustCompile(`(?is)Face Value[^<]*</t[hd]>\s*<td[^>]*>\s*([\d,.]+)`),
	}

	listingYearPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Listing Year\s*</th>\s*<td[^>]*>\s*(\d{4})`),
		regexp.MustCompile(`(?i)Listing Year\s*:?\s*(\d{4})`),
	}

	week52Patterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)52 Weeks?'? Moving Range\s*</th>\s*<td[^>]*>\s*([\d,.]+)\s*-\s*([\d,.]+)`),
		regexp.MustCompile(`(?is)52[ -]Weeks?[^<]*</t[hd]>\s*<td[^>]*>\s*([\d,.]+)\s*-\s*([\d,.]+)`),
	}

	agmPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Last AGM held on\s*:?\s*</th>\s*<td[^>]*>\s*([^<]+?)\s*<`),
		regexp.MustCompile(`(?i)Last AGM held on\s*:?\s*([0-9][^<\n]{4,30})`),
	}

	// peRowPattern captures the full P/E time-series row; the value picked
	// is the LAST dated column, not the first, so the freshest figure wins.
	peRowPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<t[hd][^>]*>\s*P/E[^<]*</t[hd]>(.*?)</tr>`),
		regexp.MustCompile(`(?is)Price Earnings? Ratio[^<]*</t[hd]>(.*?)</tr>`),
	}

	epsFallbackPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Earnings per Share[^<]*</t[hd]>\s*<td[^>]*>\s*(-?[\d,.]+)`),
		regexp.MustCompile(`(?i)\bEPS\b[^<]{0,40}?(-?[\d.]+)`),
	}

	navFallbackPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)NAV per Share[^<]*</t[hd]>\s*<td[^>]*>\s*(-?[\d,.]+)`),
		regexp.MustCompile(`(?i)\bNAV\b[^<]{0,40}?(-?[\d.]+)`),
	}

	cellRE = regexp.MustCompile(`(?is)<td[^>]*>(.*?)</td>`)
)

const cacheKeyFundamentalsPrefix = "dse:fund:"

// Fundamentals scrapes the valuation snapshot off the company detail
// page, cached five minutes per symbol. Only the fetch itself can fail;
// extraction failures degrade to nil fields.
func (d *DSE) Fundamentals(ctx context.Context, symbol string) (*models.StockFundamentals, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	cacheKey := cacheKeyFundamentalsPrefix + symbol
	if cached, ok := d.cache.Get(cacheKey); ok {
		return cached.(*models.StockFundamentals), nil
	}

	body, err := d.fetchPage(ctx, d.companyPageURL(symbol))
	if err != nil {
		return nil, fmt.Errorf("fundamentals %s: %w", symbol, err)
	}

	fund := parseFundamentals(symbol, body)
	d.cache.SetWithTTL(cacheKey, fund, fundamentalsTTL)
	return fund, nil
}

// parseFundamentals runs every field extractor over the page. Extraction
// is per-field all the way down; a missing sector pattern leaves sector
// nil and everything else intact.
func parseFundamentals(symbol string, body []byte) *models.StockFundamentals {
	page := string(body)
	fund := &models.StockFundamentals{Symbol: symbol}

	if v, ok := firstMatch(page, sectorPatterns); ok {
		fund.Sector = strPtr(v)
	}
	if v, ok := firstMatch(page, categoryPatterns); ok {
		fund.Category = strPtr(v)
	}
	fund.MarketCap = firstNumber(page, marketCapPatterns)
	fund.AuthorizedCap = firstNumber(page, authorizedCapPatterns)
	fund.PaidUpCap = firstNumber(page, paidUpCapPatterns)
	fund.FaceValue = firstNumber(page, faceValuePatterns)
	fund.PE = extractPE(page)

	if year := firstNumber(page, listingYearPatterns); year != nil {
		y := int(*year)
		fund.ListingYear = &y
	}

	if lo, hi, ok := extract52WeekRange(page); ok {
		fund.YearLow = &lo
		fund.YearHigh = &hi
	}

	eps, nav := extractEPSNAV(body)
	fund.EPS = eps
	fund.NAV = nav

	if agm, ok := extractAGM(page); ok {
		fund.LastAGM = &agm
	}

	return fund
}

// firstMatch tries patterns in order and returns the first capture.
func firstMatch(page string, patterns []*regexp.Regexp) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(page); m != nil {
			v := stripTags(m[1])
			if v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// firstNumber tries patterns in order and parses the first capture.
func firstNumber(page string, patterns []*regexp.Regexp) *float64 {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(page); m != nil {
			v := ParseNumber(stripTags(m[1]))
			if v != 0 {
				return &v
			}
		}
	}
	return nil
}

// extractPE finds the P/E time-series row and returns the LAST parseable
// column: the page lists dated columns oldest to newest.
func extractPE(page string) *float64 {
	for _, rowRE := range peRowPatterns {
		m := rowRE.FindStringSubmatch(page)
		if m == nil {
			continue
		}

		var last *float64
		for _, cell := range cellRE.FindAllStringSubmatch(m[1], -1) {
			v := ParseNumber(stripTags(cell[1]))
			if v != 0 {
				val := v
				last = &val
			}
		}
		if last != nil {
			return last
		}
	}
	return nil
}

// extract52WeekRange parses the single "low - high" range cell. The
// source ordering is not guaranteed, so the pair is min/max normalized.
func extract52WeekRange(page string) (low, high float64, ok bool) {
	for _, re := range week52Patterns {
		m := re.FindStringSubmatch(page)
		if m == nil {
			continue
		}
		a := ParseNumber(m[1])
		b := ParseNumber(m[2])
		if a == 0 && b == 0 {
			continue
		}
		if a > b {
			a, b = b, a
		}
		return a, b, true
	}
	return 0, 0, false
}

// extractAGM captures the last-AGM text and validates it: a date must
// contain a digit, and mis-captured markup (tags, script fragments) is
// rejected outright.
func extractAGM(page string) (string, bool) {
	for _, re := range agmPatterns {
		m := re.FindStringSubmatch(page)
		if m == nil {
			continue
		}
		text := stripTags(m[1])
		if text == "" || !strings.ContainsAny(text, "0123456789") {
			continue
		}
		lower := strings.ToLower(text)
		if strings.Contains(lower, "script") || strings.Contains(lower, "function") || strings.ContainsAny(text, "<>{}") {
			continue
		}
		return text, true
	}
	return "", false
}

// Financial Performance table column offsets. The page lays years out as
// rows: year, authorized cap, paid-up cap, ..., EPS, NAV, profit.
const (
	perfMinCells = 6
	perfEPSCol   = 3
	perfNAVCol   = 4
)

// extractEPSNAV locates the "Financial Performance" table and walks rows
// from the most recent year backward, reading fixed column offsets. If
// the structured table is absent it falls back to the single-pattern
// heuristics.
func extractEPSNAV(body []byte) (eps, nav *float64) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		eps, nav = epsNAVFromPerformanceTable(doc)
	}

	page := string(body)
	if eps == nil {
		eps = firstNumber(page, epsFallbackPatterns)
	}
	if nav == nil {
		nav = firstNumber(page, navFallbackPatterns)
	}
	return eps, nav
}

func epsNAVFromPerformanceTable(doc *goquery.Document) (eps, nav *float64) {
	var table *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		heading := strings.ToLower(t.Prev().Text() + " " + t.Find("caption, th").First().Text())
		if strings.Contains(strings.ToLower(heading), "financial performance") {
			table = t
			return false
		}
		return true
	})
	if table == nil {
		return nil, nil
	}

	type yearRow struct {
		year  int
		cells []string
	}
	var rows []yearRow

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) < perfMinCells {
			return
		}
		year := int(ParseNumber(cells[0]))
		if year < 1950 || year > 2100 {
			return
		}
		rows = append(rows, yearRow{year: year, cells: cells})
	})
	if len(rows) == 0 {
		return nil, nil
	}

	// Most recent year first; older rows fill in what newer ones lack.
	sort.Slice(rows, func(i, j int) bool { return rows[i].year > rows[j].year })
	for _, r := range rows {
		if eps == nil {
			if v := ParseNumber(r.cells[perfEPSCol]); v != 0 {
				eps = &v
			}
		}
		if nav == nil {
			if v := ParseNumber(r.cells[perfNAVCol]); v != 0 {
				nav = &v
			}
		}
		if eps != nil && nav != nil {
			break
		}
	}
	return eps, nav
}

func strPtr(s string) *string { return &s }
