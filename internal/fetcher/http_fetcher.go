package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/masahif/marketpulse/internal/config"
	"github.com/masahif/marketpulse/internal/listing"
)

// HTTPFetcher downloads listing pages over plain HTTP and selects item
// cards with CSS selectors
type HTTPFetcher struct {
	client        *HTTPClient
	pager         *Pager
	itemSelector  string
	titleSelector string
}

// NewHTTPFetcher creates an HTTP fetcher from the crawl settings
func NewHTTPFetcher(cfg *config.CrawlConfig) (*HTTPFetcher, error) {
	pager, err := NewPager(cfg.BaseURL, cfg.PageParam)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.ItemSelector) == "" {
		return nil, fmt.Errorf("item selector cannot be empty")
	}

	client := NewHTTPClient(cfg.UserAgent, cfg.PageTimeout)
	if headers := parseHeaders(cfg.Headers); len(headers) > 0 {
		client.SetCustomHeaders(headers)
		slog.Info("Set custom headers", "count", len(headers))
	}

	return &HTTPFetcher{
		client:        client,
		pager:         pager,
		itemSelector:  cfg.ItemSelector,
		titleSelector: cfg.TitleSelector,
	}, nil
}

// Fetch downloads a page and returns its item blocks in document order
func (f *HTTPFetcher) Fetch(ctx context.Context, page int) ([]listing.ItemBlock, error) {
	pageURL := f.pager.URL(page)

	resp, err := f.client.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
	}

	slog.Debug("Fetched page",
		"page", page,
		"url", resp.FinalURL,
		"bytes", len(resp.Body),
		"ttfb", resp.Metrics.TTFB,
		"download", resp.Metrics.DownloadTime)

	return f.Blocks(resp.Body)
}

// Blocks selects the item cards of an HTML document
func (f *HTTPFetcher) Blocks(body []byte) ([]listing.ItemBlock, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var blocks []listing.ItemBlock
	doc.Find(f.itemSelector).Each(func(_ int, card *goquery.Selection) {
		block := listing.ItemBlock{
			Text: RenderText(card.Nodes...),
			Href: cardHref(card),
		}
		if f.titleSelector != "" {
			block.Title = strings.TrimSpace(card.Find(f.titleSelector).First().Text())
		}
		blocks = append(blocks, block)
	})
	return blocks, nil
}

// Close releases idle connections
func (f *HTTPFetcher) Close() error {
	f.client.Close()
	return nil
}

// cardHref returns the card's own href or that of its first link
func cardHref(card *goquery.Selection) string {
	if href, ok := card.Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	return ""
}
