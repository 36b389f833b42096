// Package pipeline turns raw listings into the clean table and applies
// operator corrections to it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/masahif/marketpulse/internal/listing"
	"github.com/masahif/marketpulse/internal/normalize"
	"github.com/masahif/marketpulse/internal/scoring"
)

// DefaultMinPrice is the price clean listings must exceed
const DefaultMinPrice = 500

// RawSource reads the raw store
type RawSource interface {
	RawListings(ctx context.Context) ([]listing.RawListing, error)
}

// CleanStore is the destination of a rebuild
type CleanStore interface {
	ReplaceClean(ctx context.Context, rows []listing.ScoredListing) error
	Corrections(ctx context.Context) ([]Correction, error)
}

// Options tunes the clean rebuild
type Options struct {
	MinPrice   float64 // Listings must be priced strictly above it
	SampleSize int     // Rows kept in Summary.Sample
}

// Summary describes a rebuild
type Summary struct {
	RawTotal           int
	CleanTotal         int
	FilteredOut        int
	CorrectionsApplied int // Listings whose RAM was overridden
	RAMDistribution    map[int]int
	BrandDistribution  map[string]int
	Sample             []listing.ScoredListing // Best value ratios first
	Duration           time.Duration
}

// RAMValues returns the RAM sizes of the distribution in ascending order
func (s *Summary) RAMValues() []int {
	out := make([]int, 0, len(s.RAMDistribution))
	for ram := range s.RAMDistribution {
		out = append(out, ram)
	}
	sort.Ints(out)
	return out
}

// Brands returns brands by descending count, then by name
func (s *Summary) Brands() []string {
	out := make([]string, 0, len(s.BrandDistribution))
	for brand := range s.BrandDistribution {
		out = append(out, brand)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := s.BrandDistribution[out[i]], s.BrandDistribution[out[j]]
		if ci != cj {
			return ci > cj
		}
		return out[i] < out[j]
	})
	return out
}

// Builder rebuilds the clean table from the raw store
type Builder struct {
	raw        RawSource
	clean      CleanStore
	normalizer *normalize.Normalizer
	scorer     *scoring.Scorer
	opts       Options
}

// NewBuilder creates a builder. A zero MinPrice selects DefaultMinPrice.
func NewBuilder(raw RawSource, clean CleanStore, normalizer *normalize.Normalizer, scorer *scoring.Scorer, opts Options) *Builder {
	if opts.MinPrice == 0 {
		opts.MinPrice = DefaultMinPrice
	}
	if opts.SampleSize < 0 {
		opts.SampleSize = 0
	}
	return &Builder{
		raw:        raw,
		clean:      clean,
		normalizer: normalizer,
		scorer:     scorer,
		opts:       opts,
	}
}

// Build normalizes, corrects, scores and filters raw listings. Later
// corrections win over earlier ones. It also returns how many listings
// had their RAM overridden.
func (b *Builder) Build(raws []listing.RawListing, corrections []Correction) ([]listing.ScoredListing, int) {
	out := make([]listing.ScoredListing, 0, len(raws))
	corrected := 0
	for _, raw := range raws {
		n := b.normalizer.Listing(raw)
		if ram, ok := correctedRAM(n.Title, corrections); ok {
			n.RAM = ram
			corrected++
		}
		if !b.keep(n) {
			continue
		}
		out = append(out, b.scorer.Listing(n))
	}
	return out, corrected
}

// keep is the clean table admission rule
func (b *Builder) keep(n listing.NormalizedListing) bool {
	return n.Price > b.opts.MinPrice && n.RAM > 0
}

// Run reads every raw listing, rebuilds the clean table and swaps it in
func (b *Builder) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	raws, err := b.raw.RawListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw listings: %w", err)
	}

	corrections, err := b.clean.Corrections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read corrections: %w", err)
	}

	rows, corrected := b.Build(raws, corrections)
	if err := b.clean.ReplaceClean(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to replace clean table: %w", err)
	}

	summary := b.summarize(raws, rows)
	summary.CorrectionsApplied = corrected
	summary.Duration = time.Since(start)

	slog.Info("Clean table rebuilt",
		"raw", summary.RawTotal,
		"clean", summary.CleanTotal,
		"filtered_out", summary.FilteredOut,
		"corrected", corrected,
		"duration", summary.Duration)

	return summary, nil
}

func (b *Builder) summarize(raws []listing.RawListing, rows []listing.ScoredListing) *Summary {
	s := &Summary{
		RawTotal:          len(raws),
		CleanTotal:        len(rows),
		FilteredOut:       len(raws) - len(rows),
		RAMDistribution:   make(map[int]int),
		BrandDistribution: make(map[string]int),
	}
	for _, r := range rows {
		s.RAMDistribution[r.RAM]++
		s.BrandDistribution[r.Brand]++
	}

	// The sample shows the best value listings
	ranked := append([]listing.ScoredListing(nil), rows...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ValueRatio > ranked[j].ValueRatio
	})
	s.Sample = ranked[:min(b.opts.SampleSize, len(ranked))]
	return s
}

// correctedRAM returns the RAM of the most recent matching correction
func correctedRAM(title string, corrections []Correction) (int, bool) {
	for i := len(corrections) - 1; i >= 0; i-- {
		if corrections[i].Match.Matches(title) {
			return corrections[i].RAM, true
		}
	}
	return 0, false
}
