package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const companyPageFixture = `<html><body>
<h2>Company Information: ABCBANK</h2>
<table>
<tr><th>Authorized Capital (Mn)</th><td>5,000.00</td></tr>
<tr><th>Paid-up Capital (Mn)</th><td>2,500.00</td></tr>
<tr><th>Face/par Value</th><td>10.0</td></tr>
<tr><th>Market Capitalization (Mn)</th><td>25,000.00</td></tr>
<tr><th>52 Weeks' Moving Range</th><td>98.50 - 135.40</td></tr>
<tr><th>Sector</th><td>Bank</td></tr>
<tr><th>Market Category</th><td>A</td></tr>
<tr><th>Listing Year</th><td>2008</td></tr>
<tr><th>Last AGM held on:</th><td>30/06/2025</td></tr>
</table>
<table>
<tr><th>Particulars</th><th>2022</th><th>2023</th><th>2024</th></tr>
<tr><th>P/E Ratio</th><td>12.5</td><td>13.1</td><td>14.2</td></tr>
</table>
<h2>Financial Performance</h2>
<table>
<tr><th>Year</th><th>Authorized</th><th>Paid-up</th><th>EPS</th><th>NAV</th><th>Profit</th></tr>
<tr><td>2023</td><td>5,000</td><td>2,500</td><td>4.10</td><td>28.30</td><td>980</td></tr>
<tr><td>2024</td><td>5,000</td><td>2,500</td><td>4.52</td><td>30.10</td><td>1,100</td></tr>
</table>
</body></html>`

func TestParseFundamentalsFullPage(t *testing.T) {
	fund := parseFundamentals("ABCBANK", []byte(companyPageFixture))

	if fund.Symbol != "ABCBANK" {
		t.Errorf("Symbol = %q", fund.Symbol)
	}
	if fund.Sector == nil || *fund.Sector != "Bank" {
		t.Errorf("Sector = %v, want Bank", fund.Sector)
	}
	if fund.Category == nil || *fund.Category != "A" {
		t.Errorf("Category = %v, want A", fund.Category)
	}
	if fund.MarketCap == nil || *fund.MarketCap != 25000 {
		t.Errorf("MarketCap = %v, want 25000", fund.MarketCap)
	}
	if fund.AuthorizedCap == nil || *fund.AuthorizedCap != 5000 {
		t.Errorf("AuthorizedCap = %v, want 5000", fund.AuthorizedCap)
	}
	if fund.PaidUpCap == nil || *fund.PaidUpCap != 2500 {
		t.Errorf("PaidUpCap = %v, want 2500", fund.PaidUpCap)
	}
	if fund.FaceValue == nil || *fund.FaceValue != 10 {
		t.Errorf("FaceValue = %v, want 10", fund.FaceValue)
	}
	if fund.ListingYear == nil || *fund.ListingYear != 2008 {
		t.Errorf("ListingYear = %v, want 2008", fund.ListingYear)
	}
	if fund.LastAGM == nil || *fund.LastAGM != "30/06/2025" {
		t.Errorf("LastAGM = %v, want 30/06/2025", fund.LastAGM)
	}

	// P/E is the newest (last) dated column of the time-series row.
	if fund.PE == nil || *fund.PE != 14.2 {
		t.Errorf("PE = %v, want 14.2", fund.PE)
	}

	// 52-week range is min/max normalized.
	if fund.YearLow == nil || *fund.YearLow != 98.50 {
		t.Errorf("YearLow = %v, want 98.50", fund.YearLow)
	}
	if fund.YearHigh == nil || *fund.YearHigh != 135.40 {
		t.Errorf("YearHigh = %v, want 135.40", fund.YearHigh)
	}

	// EPS/NAV come from the most recent performance-table year.
	if fund.EPS == nil || *fund.EPS != 4.52 {
		t.Errorf("EPS = %v, want 4.52", fund.EPS)
	}
	if fund.NAV == nil || *fund.NAV != 30.10 {
		t.Errorf("NAV = %v, want 30.10", fund.NAV)
	}
}

func TestParseFundamentalsPartialPage(t *testing.T) {
	// No sector row and no P/E row; everything else present must still parse.
	page := `<html><body>
<table>
<tr><th>Market Category</th><td>B</td></tr>
<tr><th>52 Weeks' Moving Range</th><td>135.40 - 98.50</td></tr>
</table>
</body></html>`

	fund := parseFundamentals("XYZTEX", []byte(page))
	if fund.Sector != nil {
		t.Errorf("Sector = %v, want nil", *fund.Sector)
	}
	if fund.PE != nil {
		t.Errorf("PE = %v, want nil", *fund.PE)
	}
	if fund.Category == nil || *fund.Category != "B" {
		t.Errorf("Category = %v, want B", fund.Category)
	}
	// Reversed source ordering still normalizes to low < high.
	if fund.YearLow == nil || *fund.YearLow != 98.50 {
		t.Errorf("YearLow = %v, want 98.50", fund.YearLow)
	}
	if fund.YearHigh == nil || *fund.YearHigh != 135.40 {
		t.Errorf("YearHigh = %v, want 135.40", fund.YearHigh)
	}
}

func TestExtractAGMRejectsMarkup(t *testing.T) {
	pages := []string{
		`<tr><th>Last AGM held on:</th><td><script>function x(){}</script></td></tr>`,
		`<tr><th>Last AGM held on:</th><td>pending</td></tr>`,
	}
	for _, page := range pages {
		if agm, ok := extractAGM(page); ok {
			t.Errorf("extractAGM accepted %q from %q", agm, page)
		}
	}

	if agm, ok := extractAGM(`<tr><th>Last AGM held on:</th><td>30 June 2025</td></tr>`); !ok || agm != "30 June 2025" {
		t.Errorf("extractAGM = %q, %v; want valid date text", agm, ok)
	}
}

func TestExtractPESkipsEmptyCells(t *testing.T) {
	page := `<tr><th>P/E Ratio</th><td>12.5</td><td>13.1</td><td>--</td></tr>`
	pe := extractPE(page)
	if pe == nil || *pe != 13.1 {
		t.Errorf("PE = %v, want 13.1 (last parseable column)", pe)
	}
}

func TestFundamentalsCachesPerSymbol(t *testing.T) {
	hits := map[string]int{}
	mux := http.NewServeMux()
	mux.HandleFunc("/displayCompany.php", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Query().Get("name")]++
		w.Write([]byte(companyPageFixture)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDSEWithOptions(Options{BaseURL: srv.URL})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := d.Fundamentals(ctx, "abcbank"); err != nil {
			t.Fatalf("Fundamentals: %v", err)
		}
	}
	if _, err := d.Fundamentals(ctx, "XYZTEX"); err != nil {
		t.Fatalf("Fundamentals: %v", err)
	}

	if hits["ABCBANK"] != 1 {
		t.Errorf("ABCBANK fetched %d times, want 1 (cached, case-normalized)", hits["ABCBANK"])
	}
	if hits["XYZTEX"] != 1 {
		t.Errorf("XYZTEX fetched %d times, want 1", hits["XYZTEX"])
	}
}
