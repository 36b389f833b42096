// Package fetcher loads listing pages and returns their raw item blocks.
// Two implementations exist: a plain HTTP fetcher that selects cards with
// CSS selectors and a headless Chrome fetcher for pages that need a browser.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/masahif/marketpulse/internal/config"
	"github.com/masahif/marketpulse/internal/listing"
)

// DefaultPageParam is the query parameter carrying the page number
const DefaultPageParam = "o"

// Fetcher returns the item blocks of one listing page. Releasing the
// underlying browser or connections is the job of Close.
type Fetcher interface {
	Fetch(ctx context.Context, page int) ([]listing.ItemBlock, error)
	Close() error
}

// Pager builds listing page URLs from the page 1 URL
type Pager struct {
	base  *url.URL
	param string
}

// NewPager parses the base URL of the listing
func NewPager(baseURL, param string) (*Pager, error) {
	if baseURL == "" {
		return nil, config.ErrEmptyBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	if param == "" {
		param = DefaultPageParam
	}
	return &Pager{base: u, param: param}, nil
}

// URL returns the address of a page. Page 1 is the base URL itself.
func (p *Pager) URL(page int) string {
	if page <= 1 {
		return p.base.String()
	}
	u := *p.base
	q := u.Query()
	q.Set(p.param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Base returns the page 1 URL
func (p *Pager) Base() string {
	return p.base.String()
}

// New creates the fetcher selected by cfg.Fetcher
func New(cfg *config.CrawlConfig) (Fetcher, error) {
	switch cfg.Fetcher {
	case config.FetcherHTTP, "":
		return NewHTTPFetcher(cfg)
	case config.FetcherChrome:
		return NewChromeFetcher(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownFetcher, cfg.Fetcher)
	}
}

// parseHeaders turns "Name: Value" entries into a header map.
// Malformed entries are skipped with a warning.
func parseHeaders(headers []string) map[string]string {
	headerMap := make(map[string]string, len(headers))
	for _, header := range headers {
		colonIndex := strings.Index(header, ":")
		if colonIndex <= 0 {
			slog.Warn("Skipping invalid header format", "header", header)
			continue
		}

		key := strings.TrimSpace(header[:colonIndex])
		value := strings.TrimSpace(header[colonIndex+1:])
		if key == "" || value == "" {
			slog.Warn("Skipping header with empty key or value", "header", header)
			continue
		}

		headerMap[key] = value
	}
	return headerMap
}
