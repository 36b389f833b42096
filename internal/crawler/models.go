package crawler

import "time"

// PageStatus is the outcome of visiting one listing page
type PageStatus string

const (
	// PageOK means the page was fetched and its items extracted
	PageOK PageStatus = "ok"
	// PageFailed means the fetch timed out or failed; the run continued
	PageFailed PageStatus = "failed"
	// PageEmpty means the page had no items, which ends the listings
	PageEmpty PageStatus = "empty"
)

// PageResult records what happened on a single page
type PageResult struct {
	Page      int
	Status    PageStatus
	Items     int    // Item blocks returned by the fetcher
	Extracted int    // Blocks that became listings
	Reason    string // Failure reason, empty unless Status is PageFailed
	Duration  time.Duration
}

// BatchResult counts the outcome of one batch write
type BatchResult struct {
	Inserted int // New rows stored
	Skipped  int // Rows whose link was already stored
}

// Add accumulates another batch result
func (b *BatchResult) Add(o BatchResult) {
	b.Inserted += o.Inserted
	b.Skipped += o.Skipped
}

// Report summarizes a crawl run
type Report struct {
	RunID             string
	StartPage         int
	EndPage           int
	LastPage          int // Last page visited, 0 if none
	PagesVisited      int
	TotalScraped      int // Listings extracted across all pages
	Discarded         int // Item blocks without a usable title, price or link
	Saved             int
	DuplicatesSkipped int
	FailedPages       []int
	Pages             []PageResult
	EndOfListings     bool
	Interrupted       bool
	StoreTotal        int // Raw store row count after the run, -1 if unknown
	StartedAt         time.Time
	Duration          time.Duration
}

// RunRecord is the persisted form of a finished crawl run
type RunRecord struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	StartPage   int
	EndPage     int
	LastPage    int
	Scraped     int
	Saved       int
	Skipped     int
	Discarded   int
	FailedPages []int
	Interrupted bool
}

// Record converts the report into its persisted form
func (r *Report) Record() RunRecord {
	return RunRecord{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.StartedAt.Add(r.Duration),
		StartPage:   r.StartPage,
		EndPage:     r.EndPage,
		LastPage:    r.LastPage,
		Scraped:     r.TotalScraped,
		Saved:       r.Saved,
		Skipped:     r.DuplicatesSkipped,
		Discarded:   r.Discarded,
		FailedPages: append([]int(nil), r.FailedPages...),
		Interrupted: r.Interrupted,
	}
}
