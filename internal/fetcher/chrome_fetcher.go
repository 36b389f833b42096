package fetcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/masahif/marketpulse/internal/config"
	"github.com/masahif/marketpulse/internal/listing"
)

// settleDelay lets client-side rendering finish after the body is ready
const settleDelay = 1500 * time.Millisecond

// cardsScript collects the text, link and title of every card. innerText
// keeps the visual line structure the extractor relies on.
const cardsScript = `(function(itemSel, titleSel) {
  return Array.from(document.querySelectorAll(itemSel)).map(function(el) {
    var link = el.getAttribute('href') ? el : el.querySelector('a[href]');
    var title = titleSel ? el.querySelector(titleSel) : null;
    return {
      text: el.innerText || '',
      href: link ? link.getAttribute('href') : '',
      title: title ? (title.innerText || '') : ''
    };
  });
})(%s, %s)`

type chromeCard struct {
	Text  string `json:"text"`
	Href  string `json:"href"`
	Title string `json:"title"`
}

// ChromeFetcher renders listing pages in a headless browser
type ChromeFetcher struct {
	pager         *Pager
	itemSelector  string
	titleSelector string

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromeFetcher starts a browser for the crawl. Each page is loaded in
// its own tab so a stuck page cannot poison the next one.
func NewChromeFetcher(cfg *config.CrawlConfig) (*ChromeFetcher, error) {
	pager, err := NewPager(cfg.BaseURL, cfg.PageParam)
	if err != nil {
		return nil, err
	}
	if cfg.ItemSelector == "" {
		return nil, fmt.Errorf("item selector cannot be empty")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(cfg.UserAgent),
	)
	chromeBin := cfg.ChromePath
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Start the browser now so a missing binary fails the command up front
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &ChromeFetcher{
		pager:         pager,
		itemSelector:  cfg.ItemSelector,
		titleSelector: cfg.TitleSelector,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Fetch loads a page in a fresh tab and returns its cards
func (f *ChromeFetcher) Fetch(ctx context.Context, page int) ([]listing.ItemBlock, error) {
	tabCtx, cancel := chromedp.NewContext(f.browserCtx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	script := fmt.Sprintf(cardsScript, strconv.Quote(f.itemSelector), strconv.Quote(f.titleSelector))

	var cards []chromeCard
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(f.pager.URL(page)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.Evaluate(script, &cards),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("failed to load page %d: %w", page, ctxErr)
		}
		return nil, fmt.Errorf("failed to load page %d: %w", page, err)
	}

	blocks := make([]listing.ItemBlock, 0, len(cards))
	for _, c := range cards {
		blocks = append(blocks, listing.ItemBlock{Text: c.Text, Href: c.Href, Title: c.Title})
	}
	return blocks, nil
}

// Close shuts the browser down
func (f *ChromeFetcher) Close() error {
	f.browserCancel()
	f.allocCancel()
	return nil
}

// findChromeBinary locates a Chrome or Chromium binary, empty if none
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
