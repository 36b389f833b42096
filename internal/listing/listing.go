// Package listing defines the records that flow through the pipeline,
// from raw page item blocks to scored clean rows.
package listing

import "time"

const (
	// BrandOther is reported when no known brand token appears in a title
	BrandOther = "Other"
	// CPUUnknown is reported when no known CPU family token appears in a title
	CPUUnknown = "Unknown"
)

// DateLayout is the storage format of ScrapeDate
const DateLayout = "2006-01-02"

// ItemBlock is one raw listing card as returned by a page fetcher
type ItemBlock struct {
	Text  string // Visible text of the card, one visual line per text line
	Href  string // Anchor link of the card
	Title string // Structured title field, empty when the card has none
}

// RawListing is one observation of a marketplace item
type RawListing struct {
	ScrapeDate time.Time // Date of observation (day precision)
	Title      string    // Free-text title, never empty
	Price      float64   // Positive price
	Link       string    // Listing URL, unique in the raw store
	Page       int       // Page number the listing was observed on
}

// NormalizedListing is a RawListing with attributes derived from its title
type NormalizedListing struct {
	RawListing
	Brand string
	CPU   string
	RAM   int // Gigabytes, 0 when no figure could be disambiguated
}

// ScoredListing is a NormalizedListing with its quality and value scores
type ScoredListing struct {
	NormalizedListing
	QualityScore float64
	ValueRatio   float64
}

// Day truncates t to a calendar date in its own location
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
