// Package crawler provides the listing ingestion loop.
// It walks listing pages sequentially with human-scale pacing, batches
// extracted listings into the raw store and survives page failures and
// interrupts without losing collected data.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/masahif/marketpulse/internal/config"
	"github.com/masahif/marketpulse/internal/listing"
)

// Crawler drives one crawl run at a time over a page fetcher
type Crawler struct {
	config    *config.CrawlConfig
	fetcher   PageFetcher
	extractor Extractor
	store     RawStore
	pacer     *Pacer
	now       func() time.Time
}

// NewCrawler creates a crawler with the provided configuration, fetcher,
// extractor and raw store. The fetcher is owned by the caller, which closes
// it after Run returns so that interrupted runs still flush first.
func NewCrawler(cfg *config.CrawlConfig, fetcher PageFetcher, extractor Extractor, store RawStore) *Crawler {
	return &Crawler{
		config:    cfg,
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		pacer:     NewPacer(cfg.MinDelay, cfg.MaxDelay, cfg.LongPauseMin, cfg.LongPauseMax),
		now:       time.Now,
	}
}

// Run crawls pages startPage..endPage and flushes every batchSize pages.
// It stops early when a page has no items or ctx is cancelled; in both
// cases everything collected so far is written before returning. The
// returned error is non-nil only when collected listings could not be
// persisted; page failures are reported in the Report instead.
func (c *Crawler) Run(ctx context.Context, startPage, endPage, batchSize int) (*Report, error) {
	if startPage < 1 || endPage < startPage {
		return nil, config.ErrInvalidPageRange
	}
	if batchSize <= 0 {
		return nil, config.ErrInvalidBatchSize
	}

	report := &Report{
		RunID:      uuid.NewString(),
		StartPage:  startPage,
		EndPage:    endPage,
		StoreTotal: -1,
		StartedAt:  c.now(),
	}

	slog.Info("Starting crawl", "run_id", report.RunID, "start_page", startPage, "end_page", endPage, "batch_size", batchSize)

	// Writes must complete even after an interrupt
	writeCtx := context.WithoutCancel(ctx)

	var batch []listing.RawListing

pages:
	for page := startPage; page <= endPage; page++ {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		if page == startPage {
			c.pacer.Start()
		} else if err := c.pacer.Wait(ctx); err != nil {
			report.Interrupted = true
			break
		}

		result, records := c.visit(ctx, page)
		if result.Status == PageFailed && ctx.Err() != nil {
			// The fetch was cut short by the interrupt, not by the page
			report.Interrupted = true
			break
		}

		report.Pages = append(report.Pages, result)
		report.PagesVisited++
		report.LastPage = page

		switch result.Status {
		case PageEmpty:
			slog.Info("No items found, end of listings", "page", page)
			report.EndOfListings = true
			break pages
		case PageFailed:
			slog.Warn("Page failed, continuing", "page", page, "reason", result.Reason)
			report.FailedPages = append(report.FailedPages, page)
		case PageOK:
			batch = append(batch, records...)
			report.TotalScraped += len(records)
			report.Discarded += result.Items - result.Extracted
			slog.Info("Page scraped",
				"page", page,
				"items", result.Items,
				"extracted", result.Extracted,
				"total", report.TotalScraped,
				"duration", result.Duration)
		}

		if page%batchSize == 0 {
			// A failed flush keeps the batch for the next attempt
			_ = c.flush(writeCtx, &batch, report)
		}

		if c.config.LongPauseEvery > 0 && page%c.config.LongPauseEvery == 0 && page < endPage {
			d, err := c.pacer.Pause(ctx)
			if err != nil {
				report.Interrupted = true
				break
			}
			slog.Info("Long pause done", "page", page, "pause", d)
		}
	}

	if report.Interrupted {
		slog.Warn("Crawl interrupted, saving collected listings", "pending", len(batch), "last_page", report.LastPage)
	}

	var runErr error
	if err := c.flush(writeCtx, &batch, report); err != nil {
		runErr = err
	}

	report.Duration = c.now().Sub(report.StartedAt)

	if total, err := c.store.CountRaw(writeCtx); err != nil {
		slog.Warn("Failed to count stored listings", "error", err)
	} else {
		report.StoreTotal = total
	}

	if err := c.store.SaveRun(writeCtx, report.Record()); err != nil {
		slog.Warn("Failed to record crawl run", "run_id", report.RunID, "error", err)
	}

	slog.Info("Crawl finished",
		"run_id", report.RunID,
		"pages", report.PagesVisited,
		"scraped", report.TotalScraped,
		"saved", report.Saved,
		"duplicates", report.DuplicatesSkipped,
		"failed_pages", len(report.FailedPages),
		"interrupted", report.Interrupted,
		"duration", report.Duration)

	return report, runErr
}

// visit fetches one page and extracts its listings
func (c *Crawler) visit(ctx context.Context, page int) (PageResult, []listing.RawListing) {
	start := time.Now()
	result := PageResult{Page: page}

	pageCtx := ctx
	if c.config.PageTimeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, c.config.PageTimeout)
		defer cancel()
	}

	blocks, err := c.fetcher.Fetch(pageCtx, page)
	if err != nil {
		result.Status = PageFailed
		result.Reason = failureReason(err)
		result.Duration = time.Since(start)
		return result, nil
	}

	result.Items = len(blocks)
	if len(blocks) == 0 {
		result.Status = PageEmpty
		result.Duration = time.Since(start)
		return result, nil
	}

	records, err := c.extractAll(blocks, page)
	if err != nil {
		result.Status = PageFailed
		result.Reason = err.Error()
		result.Duration = time.Since(start)
		return result, nil
	}

	result.Status = PageOK
	result.Extracted = len(records)
	result.Duration = time.Since(start)
	return result, records
}

// extractAll runs the extractor over every block of a page
func (c *Crawler) extractAll(blocks []listing.ItemBlock, page int) (records []listing.RawListing, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("extraction panicked: %v", r)
		}
	}()

	records = make([]listing.RawListing, 0, len(blocks))
	for _, block := range blocks {
		if rec, ok := c.extractor.Extract(block, page); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// flush writes the pending batch. On success the batch is cleared.
func (c *Crawler) flush(ctx context.Context, batch *[]listing.RawListing, report *Report) error {
	if len(*batch) == 0 {
		return nil
	}

	res, err := c.store.SaveBatch(ctx, *batch)
	if err != nil {
		slog.Error("Failed to save batch", "listings", len(*batch), "error", err)
		return fmt.Errorf("failed to save %d listings: %w", len(*batch), err)
	}

	report.Saved += res.Inserted
	report.DuplicatesSkipped += res.Skipped
	slog.Info("Batch saved", "inserted", res.Inserted, "skipped", res.Skipped, "last_page", report.LastPage)

	*batch = nil
	return nil
}

// failureReason describes a fetch error for the page report
func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout: " + err.Error()
	}
	return err.Error()
}
