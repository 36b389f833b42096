package crawler

import (
	"context"

	"github.com/masahif/marketpulse/internal/listing"
)

// PageFetcher returns the raw item blocks of one listing page
type PageFetcher interface {
	Fetch(ctx context.Context, page int) ([]listing.ItemBlock, error)
}

// Extractor turns an item block into a raw listing or discards it
type Extractor interface {
	Extract(block listing.ItemBlock, page int) (listing.RawListing, bool)
}

// RawStore handles raw listing persistence
type RawStore interface {
	// SaveBatch stores listings, skipping links that already exist
	SaveBatch(ctx context.Context, batch []listing.RawListing) (BatchResult, error)

	// MaxPage returns the highest stored page number, 0 when empty
	MaxPage(ctx context.Context) (int, error)

	// CountRaw returns the number of stored listings
	CountRaw(ctx context.Context) (int, error)

	// SaveRun records a finished crawl run
	SaveRun(ctx context.Context, run RunRecord) error
}
