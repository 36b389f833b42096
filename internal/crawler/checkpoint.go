package crawler

import (
	"context"
	"log/slog"
)

// PageCounter reports the highest persisted page
type PageCounter interface {
	MaxPage(ctx context.Context) (int, error)
}

// Checkpoint derives crawl progress from the raw store
type Checkpoint struct {
	store PageCounter
}

// NewCheckpoint creates a checkpoint tracker over store
func NewCheckpoint(store PageCounter) *Checkpoint {
	return &Checkpoint{store: store}
}

// LastCompletedPage returns the highest page present in the store.
// An empty or unreadable store counts as no progress.
func (c *Checkpoint) LastCompletedPage(ctx context.Context) int {
	if c.store == nil {
		return 0
	}
	page, err := c.store.MaxPage(ctx)
	if err != nil {
		slog.Warn("Failed to read checkpoint, starting from scratch", "error", err)
		return 0
	}
	if page < 0 {
		return 0
	}
	return page
}

// ResumePage returns the first page not yet persisted
func (c *Checkpoint) ResumePage(ctx context.Context) int {
	return c.LastCompletedPage(ctx) + 1
}
