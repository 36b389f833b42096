package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/masahif/marketpulse/internal/listing"
	"github.com/masahif/marketpulse/internal/scoring"
)

// CorrectionStore is the clean store surface used by the corrector
type CorrectionStore interface {
	FindClean(ctx context.Context, m Match) ([]listing.ScoredListing, error)
	UpdateClean(ctx context.Context, rows []listing.ScoredListing) (int, error)
	RecordCorrection(ctx context.Context, c Correction) (int64, error)
}

// Corrector overrides the RAM of individual clean listings
type Corrector struct {
	store  CorrectionStore
	scorer *scoring.Scorer
	now    func() time.Time
}

// NewCorrector creates a corrector over the clean store
func NewCorrector(store CorrectionStore, scorer *scoring.Scorer) *Corrector {
	return &Corrector{store: store, scorer: scorer, now: time.Now}
}

// Preview returns the clean listings a correction would touch
func (c *Corrector) Preview(ctx context.Context, m Match) ([]listing.ScoredListing, error) {
	if strings.TrimSpace(m.Pattern) == "" {
		return nil, ErrEmptyPattern
	}
	rows, err := c.store.FindClean(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to find listings: %w", err)
	}
	return rows, nil
}

// Apply sets the RAM of every matching clean listing, rescores them and
// records the correction so later rebuilds keep it. A RAM of 0 excludes
// the listings from the next rebuild.
func (c *Corrector) Apply(ctx context.Context, m Match, ram int) ([]listing.ScoredListing, error) {
	if ram < 0 {
		return nil, ErrInvalidRAM
	}
	rows, err := c.Preview(ctx, m)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoMatch
	}

	for i := range rows {
		rows[i].RAM = ram
		rows[i].QualityScore, rows[i].ValueRatio = c.scorer.Score(rows[i].CPU, ram, rows[i].Price)
	}

	updated, err := c.store.UpdateClean(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to update listings: %w", err)
	}

	id, err := c.store.RecordCorrection(ctx, Correction{Match: m, RAM: ram, CreatedAt: c.now()})
	if err != nil {
		return nil, fmt.Errorf("failed to record correction: %w", err)
	}

	slog.Info("Correction applied", "correction_id", id, "pattern", m.Pattern, "exact", m.Exact, "ram", ram, "updated", updated)
	return rows, nil
}
