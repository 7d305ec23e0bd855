package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the public DSE website.
const DefaultBaseURL = "https://www.dsebd.org"

// Cache TTLs. The directory changes rarely; the price scroll is the hot
// path; fundamentals and history mirror the company page's update cadence.
const (
	snapshotTTL     = 60 * time.Second
	directoryTTL    = 10 * time.Minute
	fundamentalsTTL = 5 * time.Minute
	historyTTL      = 5 * time.Minute

	// snapshotMaxStale bounds how old a previous snapshot may be and still
	// be served when a refresh fails fatally.
	snapshotMaxStale = 10 * time.Minute
)

// Default retry policy for the historical-data path.
const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 500 * time.Millisecond
)

// DSE scrapes the Dhaka Stock Exchange website. All methods are safe for
// concurrent use; duplicate upstream fetches under concurrent cache misses
// are accepted (idempotent, bounded by TTL).
type DSE struct {
	BaseURL string

	client     *http.Client
	cache      *Cache
	limiter    *RateLimiter
	maxRetries int
	baseDelay  time.Duration
}

// Options tunes a DSE scraper. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	MaxRetries int
	BaseDelay  time.Duration
}

// NewDSE creates a DSE scraper with default settings.
func NewDSE() *DSE {
	return NewDSEWithOptions(Options{})
}

// NewDSEWithOptions creates a DSE scraper with explicit settings.
func NewDSEWithOptions(opts Options) *DSE {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	delay := opts.BaseDelay
	if delay <= 0 {
		delay = defaultBaseDelay
	}
	return &DSE{
		BaseURL:    base,
		client:     HTTPClient,
		cache:      NewCache(snapshotTTL),
		limiter:    NewRateLimiter(5, time.Second),
		maxRetries: retries,
		baseDelay:  delay,
	}
}

// Page URLs on the exchange site.

func (d *DSE) priceScrollURL() string {
	return d.BaseURL + "/latest_share_price_scroll_l.php"
}

func (d *DSE) companyListingURL() string {
	return d.BaseURL + "/company_listing.php"
}

func (d *DSE) companyPageURL(symbol string) string {
	return fmt.Sprintf("%s/displayCompany.php?name=%s", d.BaseURL, url.QueryEscape(symbol))
}

// fetchPage performs a rate-limited single fetch of an exchange page.
func (d *DSE) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return doGet(ctx, d.client, pageURL)
}
