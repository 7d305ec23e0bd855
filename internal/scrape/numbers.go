package scrape

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var tagRE = regexp.MustCompile(`<[^>]*>`)

// stripTags removes markup, decodes HTML entities, and trims the result.
func stripTags(s string) string {
	s = tagRE.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

// ParseNumber parses a numeric cell the way the exchange publishes them:
// thousands separators are stripped, and "--", "-" or an empty cell mean
// zero rather than a parse failure.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "--" || s == "-" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return val
}

// ParseInt parses an integer cell with the same tolerances as ParseNumber.
func ParseInt(s string) int64 {
	return int64(ParseNumber(s))
}
