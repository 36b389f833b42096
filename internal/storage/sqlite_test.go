package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/masahif/marketpulse/internal/crawler"
	"github.com/masahif/marketpulse/internal/listing"
	"github.com/masahif/marketpulse/internal/pipeline"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func rawListings(page, n int) []listing.RawListing {
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	out := make([]listing.RawListing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, listing.RawListing{
			ScrapeDate: day,
			Title:      fmt.Sprintf("Laptop %d-%d", page, i),
			Price:      float64(3000 + i),
			Link:       fmt.Sprintf("https://market.example/ad/%d-%d", page, i),
			Page:       page,
		})
	}
	return out
}

func TestSaveBatch(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	t.Run("fresh batch", func(t *testing.T) {
		res, err := storage.SaveBatch(ctx, rawListings(1, 5))
		if err != nil {
			t.Fatalf("SaveBatch failed: %v", err)
		}
		if res.Inserted != 5 || res.Skipped != 0 {
			t.Errorf("result = %+v, want 5 inserted", res)
		}
	})

	t.Run("batch with known links", func(t *testing.T) {
		// Two links of page 1 were stored above
		batch := append(rawListings(1, 5)[3:], rawListings(2, 8)...)
		res, err := storage.SaveBatch(ctx, batch)
		if err != nil {
			t.Fatalf("SaveBatch failed: %v", err)
		}
		if res.Inserted != 8 || res.Skipped != 2 {
			t.Errorf("result = %+v, want 8 inserted, 2 skipped", res)
		}
	})

	t.Run("duplicates within a batch", func(t *testing.T) {
		batch := rawListings(3, 2)
		batch = append(batch, batch[0])
		res, err := storage.SaveBatch(ctx, batch)
		if err != nil {
			t.Fatalf("SaveBatch failed: %v", err)
		}
		if res.Inserted != 2 || res.Skipped != 1 {
			t.Errorf("result = %+v, want 2 inserted, 1 skipped", res)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		res, err := storage.SaveBatch(ctx, nil)
		if err != nil || res != (crawler.BatchResult{}) {
			t.Errorf("empty batch: res=%+v err=%v", res, err)
		}
	})

	total, err := storage.CountRaw(ctx)
	if err != nil {
		t.Fatalf("CountRaw failed: %v", err)
	}
	if total != 15 {
		t.Errorf("CountRaw = %d, want 15", total)
	}
}

func TestSaveBatchIsIdempotent(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	batch := rawListings(1, 10)

	if _, err := storage.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	res, err := storage.SaveBatch(ctx, batch)
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if res.Inserted != 0 || res.Skipped != 10 {
		t.Errorf("second save = %+v, want everything skipped", res)
	}

	stored, err := storage.RawListings(ctx)
	if err != nil {
		t.Fatalf("RawListings failed: %v", err)
	}
	if len(stored) != 10 {
		t.Fatalf("stored %d rows, want 10", len(stored))
	}
	first := stored[0]
	if first.Link != batch[0].Link || first.Title != batch[0].Title || first.Price != batch[0].Price || first.Page != 1 {
		t.Errorf("first row = %+v, want %+v", first, batch[0])
	}
	if !first.ScrapeDate.Equal(batch[0].ScrapeDate) {
		t.Errorf("scrape date = %v, want %v", first.ScrapeDate, batch[0].ScrapeDate)
	}
}

func TestMaxPage(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	page, err := storage.MaxPage(ctx)
	if err != nil || page != 0 {
		t.Errorf("empty store: page=%d err=%v, want 0", page, err)
	}

	for _, p := range []int{3, 10, 7} {
		if _, err := storage.SaveBatch(ctx, rawListings(p, 2)); err != nil {
			t.Fatalf("SaveBatch failed: %v", err)
		}
	}

	page, err = storage.MaxPage(ctx)
	if err != nil || page != 10 {
		t.Errorf("MaxPage = %d err=%v, want 10", page, err)
	}

	if resume := crawler.NewCheckpoint(storage).ResumePage(ctx); resume != 11 {
		t.Errorf("ResumePage = %d, want 11", resume)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	l := rawListings(1, 1)[0]
	if _, err := storage.insertAll(ctx, []listing.RawListing{l}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	_, err := storage.insertAll(ctx, []listing.RawListing{l})
	if !IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}

	if IsUniqueViolation(nil) {
		t.Error("nil is not a violation")
	}
	if IsUniqueViolation(errors.New("disk I/O error")) {
		t.Error("unrelated error classified as violation")
	}
}

func scored(title, link string, price float64, ram int, value float64) listing.ScoredListing {
	return listing.ScoredListing{
		NormalizedListing: listing.NormalizedListing{
			RawListing: listing.RawListing{
				ScrapeDate: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
				Title:      title,
				Price:      price,
				Link:       link,
				Page:       1,
			},
			Brand: "HP",
			CPU:   "I5",
			RAM:   ram,
		},
		QualityScore: 95,
		ValueRatio:   value,
	}
}

func TestReplaceClean(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	first := []listing.ScoredListing{
		scored("HP EliteBook i5 8Go", "l1", 4000, 8, 23.75),
		scored("HP ProBook i5 16Go", "l2", 5000, 16, 25),
	}
	if err := storage.ReplaceClean(ctx, first); err != nil {
		t.Fatalf("ReplaceClean failed: %v", err)
	}

	rows, err := storage.CleanListings(ctx)
	if err != nil {
		t.Fatalf("CleanListings failed: %v", err)
	}
	if len(rows) != 2 || rows[0].Link != "l2" {
		t.Fatalf("rows = %+v, want l2 first by value", rows)
	}
	if rows[0].Brand != "HP" || rows[0].CPU != "I5" || rows[0].RAM != 16 {
		t.Errorf("derived columns not stored: %+v", rows[0])
	}

	// A rebuild replaces, never appends
	second := []listing.ScoredListing{scored("Dell XPS i7 16Go", "l3", 9000, 16, 13.9)}
	if err := storage.ReplaceClean(ctx, second); err != nil {
		t.Fatalf("second ReplaceClean failed: %v", err)
	}
	n, err := storage.CountClean(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountClean = %d err=%v, want 1", n, err)
	}

	// The title index survives the swap
	var idx int
	if err := storage.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_clean_listings_title'").Scan(&idx); err != nil || idx != 1 {
		t.Errorf("title index missing after swap: %d %v", idx, err)
	}

	if err := storage.ReplaceClean(ctx, nil); err != nil {
		t.Fatalf("empty ReplaceClean failed: %v", err)
	}
	if n, _ := storage.CountClean(ctx); n != 0 {
		t.Errorf("CountClean after empty rebuild = %d", n)
	}
}

func TestReplaceCleanRollsBackOnCancel(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if err := storage.ReplaceClean(ctx, []listing.ScoredListing{scored("Kept", "k1", 4000, 8, 1)}); err != nil {
		t.Fatalf("ReplaceClean failed: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := storage.ReplaceClean(cancelled, []listing.ScoredListing{scored("New", "n1", 4000, 8, 1)}); err == nil {
		t.Fatal("expected error with cancelled context")
	}

	rows, err := storage.CleanListings(ctx)
	if err != nil {
		t.Fatalf("CleanListings failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Link != "k1" {
		t.Errorf("previous clean table should be intact, got %+v", rows)
	}
}

func TestFindAndUpdateClean(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	rows := []listing.ScoredListing{
		scored("Ordinateur Portable 13 pouces HP Stream SSD 32Go", "s1", 1500, 32, 50),
		scored("HP Stream 11", "s2", 1200, 4, 30),
		scored("Dell Latitude", "d1", 3000, 8, 20),
	}
	if err := storage.ReplaceClean(ctx, rows); err != nil {
		t.Fatalf("ReplaceClean failed: %v", err)
	}

	tests := []struct {
		name  string
		match pipeline.Match
		want  int
	}{
		{"contains", pipeline.Match{Pattern: "hp stream"}, 2},
		{"explicit like", pipeline.Match{Pattern: "%SSD 32Go%"}, 1},
		{"exact", pipeline.Match{Pattern: "Dell Latitude", Exact: true}, 1},
		{"exact is case sensitive", pipeline.Match{Pattern: "dell latitude", Exact: true}, 0},
		{"no match", pipeline.Match{Pattern: "MacBook"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := storage.FindClean(ctx, tt.match)
			if err != nil {
				t.Fatalf("FindClean failed: %v", err)
			}
			if len(found) != tt.want {
				t.Errorf("FindClean(%+v) = %d rows, want %d", tt.match, len(found), tt.want)
			}
		})
	}

	fixed := rows[0]
	fixed.RAM = 0
	fixed.QualityScore = 25
	fixed.ValueRatio = 16.67
	n, err := storage.UpdateClean(ctx, []listing.ScoredListing{fixed})
	if err != nil || n != 1 {
		t.Fatalf("UpdateClean = %d err=%v", n, err)
	}

	found, err := storage.FindClean(ctx, pipeline.Match{Pattern: "SSD 32Go"})
	if err != nil || len(found) != 1 {
		t.Fatalf("FindClean after update: %v %v", found, err)
	}
	if found[0].RAM != 0 || found[0].QualityScore != 25 || found[0].ValueRatio != 16.67 {
		t.Errorf("row not updated: %+v", found[0])
	}
	if found[0].Title != rows[0].Title || found[0].Price != rows[0].Price {
		t.Errorf("untouched columns changed: %+v", found[0])
	}
}

func TestCorrections(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if got, err := storage.Corrections(ctx); err != nil || len(got) != 0 {
		t.Fatalf("fresh store corrections = %v err=%v", got, err)
	}

	first, err := storage.RecordCorrection(ctx, pipeline.Correction{Match: pipeline.Match{Pattern: "HP Stream"}, RAM: 0})
	if err != nil {
		t.Fatalf("RecordCorrection failed: %v", err)
	}
	second, err := storage.RecordCorrection(ctx, pipeline.Correction{Match: pipeline.Match{Pattern: "Dell Latitude", Exact: true}, RAM: 16})
	if err != nil {
		t.Fatalf("RecordCorrection failed: %v", err)
	}
	if second <= first {
		t.Errorf("ids not increasing: %d then %d", first, second)
	}

	got, err := storage.Corrections(ctx)
	if err != nil {
		t.Fatalf("Corrections failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d corrections, want 2", len(got))
	}
	if got[0].Match.Pattern != "HP Stream" || got[0].Match.Exact || got[0].RAM != 0 {
		t.Errorf("first correction = %+v", got[0])
	}
	if got[1].Match.Pattern != "Dell Latitude" || !got[1].Match.Exact || got[1].RAM != 16 {
		t.Errorf("second correction = %+v", got[1])
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestRuns(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	runs := []crawler.RunRecord{
		{RunID: "older", StartedAt: base, FinishedAt: base.Add(time.Hour), StartPage: 1, EndPage: 500, LastPage: 120, Scraped: 3000, Saved: 2900, Skipped: 100},
		{RunID: "newer", StartedAt: base.Add(2 * time.Hour), FinishedAt: base.Add(3 * time.Hour), StartPage: 121, EndPage: 500, LastPage: 130, FailedPages: []int{125, 127}, Interrupted: true},
	}
	for _, r := range runs {
		if err := storage.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	got, err := storage.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(got) != 2 || got[0].RunID != "newer" {
		t.Fatalf("RecentRuns = %+v, want newer first", got)
	}
	if !got[0].Interrupted || len(got[0].FailedPages) != 2 || got[0].FailedPages[1] != 127 {
		t.Errorf("newer run = %+v", got[0])
	}
	if got[1].Saved != 2900 || len(got[1].FailedPages) != 0 {
		t.Errorf("older run = %+v", got[1])
	}
	if !got[1].StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", got[1].StartedAt, base)
	}
}

func TestMeta(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	value, err := storage.GetMeta(ctx, "last_clean_build")
	if err != nil || value != "" {
		t.Errorf("missing key: value=%q err=%v", value, err)
	}

	if err := storage.SetMeta(ctx, "last_clean_build", "2025-03-14T10:00:00Z"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	if err := storage.SetMeta(ctx, "last_clean_build", "2025-03-15T10:00:00Z"); err != nil {
		t.Fatalf("SetMeta overwrite failed: %v", err)
	}

	value, err = storage.GetMeta(ctx, "last_clean_build")
	if err != nil || value != "2025-03-15T10:00:00Z" {
		t.Errorf("GetMeta = %q err=%v", value, err)
	}
}
