// Package extract turns raw page item blocks into raw listings.
// Blocks missing a title, a positive price or a link are discarded.
package extract

import (
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/masahif/marketpulse/internal/listing"
)

// DefaultCurrencyToken tags price lines on the marketplace
const DefaultCurrencyToken = "DH"

// placeholderTitle is what the browser layer reports for cards without text
const placeholderTitle = "Unknown"

// priceSpacing strips spacing used as thousands separators
var priceSpacing = strings.NewReplacer(
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"\t", "",
)

// commaThousands matches comma-grouped integers such as 12,500 or 1,250,000
var commaThousands = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)

// normalizeSeparators maps a price token to ParseFloat syntax. Commas
// grouping exactly three digits are thousands separators; a comma in front
// of a dot is one as well; any other comma is the decimal mark.
func normalizeSeparators(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	if strings.Contains(s, ".") || commaThousands.MatchString(s) {
		return strings.ReplaceAll(s, ",", "")
	}
	return strings.ReplaceAll(s, ",", ".")
}

// Options configures an Extractor
type Options struct {
	CurrencyToken string           // Token marking a price line
	MinPrice      float64          // Tokens below this are skipped, 0 disables the check
	BaseURL       string           // Relative links are resolved against it
	Now           func() time.Time // Clock for scrape dates
}

// Extractor parses item blocks. It is stateless apart from its options.
type Extractor struct {
	currency string
	minPrice float64
	base     *url.URL
	now      func() time.Time
}

// New creates an Extractor
func New(opts Options) *Extractor {
	e := &Extractor{
		currency: opts.CurrencyToken,
		minPrice: opts.MinPrice,
		now:      opts.Now,
	}
	if e.currency == "" {
		e.currency = DefaultCurrencyToken
	}
	if e.now == nil {
		e.now = time.Now
	}
	if opts.BaseURL != "" {
		if u, err := url.Parse(opts.BaseURL); err == nil {
			e.base = u
		}
	}
	return e
}

// Extract builds a RawListing observed on page from block. The second result
// is false when the block must be discarded.
func (e *Extractor) Extract(block listing.ItemBlock, page int) (raw listing.RawListing, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Discarding item block after extraction panic", "page", page, "panic", r)
			raw, ok = listing.RawListing{}, false
		}
	}()

	link := e.resolveLink(block.Href)
	if link == "" {
		return listing.RawListing{}, false
	}

	title := e.Title(block)
	if title == "" {
		return listing.RawListing{}, false
	}

	price := e.Price(block.Text)
	if price <= 0 {
		return listing.RawListing{}, false
	}

	return listing.RawListing{
		ScrapeDate: listing.Day(e.now()),
		Title:      title,
		Price:      price,
		Link:       link,
		Page:       page,
	}, true
}

// Title returns the structured title when present, otherwise the longest
// line of the block text.
func (e *Extractor) Title(block listing.ItemBlock) string {
	if t := strings.TrimSpace(block.Title); t != "" && t != placeholderTitle {
		return t
	}

	longest := ""
	for _, line := range splitLines(block.Text) {
		if utf8.RuneCountInString(line) > utf8.RuneCountInString(longest) {
			longest = line
		}
	}
	if longest == placeholderTitle {
		return ""
	}
	return longest
}

// Price returns the first plausible currency-tagged price in text, or 0
func (e *Extractor) Price(text string) float64 {
	for _, line := range splitLines(text) {
		if !strings.Contains(line, e.currency) {
			continue
		}
		clean := normalizeSeparators(priceSpacing.Replace(strings.ReplaceAll(line, e.currency, "")))
		if !isDecimal(clean) {
			continue
		}
		price, err := strconv.ParseFloat(clean, 64)
		if err != nil || price <= 0 {
			continue
		}
		if e.minPrice > 0 && price < e.minPrice {
			continue
		}
		return price
	}
	return 0
}

// resolveLink trims href and makes it absolute against the base URL
func (e *Extractor) resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	if e.base == nil {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return e.base.ResolveReference(u).String()
}

// isDecimal reports whether s is digits with at most one decimal point.
// ParseFloat alone would also accept exponents, hex floats, Inf and NaN.
func isDecimal(s string) bool {
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// splitLines returns the trimmed non-empty lines of text
func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
