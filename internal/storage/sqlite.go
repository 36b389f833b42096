// Package storage provides data persistence for the pipeline.
// It implements SQLite-based storage for raw listings, the clean table,
// RAM corrections and crawl run history.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/masahif/marketpulse/internal/crawler"
	"github.com/masahif/marketpulse/internal/listing"
	"github.com/masahif/marketpulse/internal/pipeline"
)

// SQLiteStorage stores listings in a SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",  // 30 second timeout for locks
		"PRAGMA locking_mode = NORMAL", // Allow external readers such as dashboards
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// IsUniqueViolation reports whether err is a SQLite unique or primary key
// constraint failure
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// SaveBatch stores a batch of raw listings. The batch is first written in a
// single transaction; if any link is already stored the transaction is
// rolled back and the rows are inserted one by one, skipping known links.
func (s *SQLiteStorage) SaveBatch(ctx context.Context, batch []listing.RawListing) (crawler.BatchResult, error) {
	if len(batch) == 0 {
		return crawler.BatchResult{}, nil
	}

	res, err := s.insertAll(ctx, batch)
	if err == nil {
		return res, nil
	}
	if !IsUniqueViolation(err) {
		return crawler.BatchResult{}, err
	}

	slog.Debug("Batch contains known links, inserting row by row", "listings", len(batch))
	return s.insertEach(ctx, batch)
}

// insertAll inserts every row or none
func (s *SQLiteStorage) insertAll(ctx context.Context, batch []listing.RawListing) (crawler.BatchResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return crawler.BatchResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_listings (scrape_date, title, price, link, page)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return crawler.BatchResult{}, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, l := range batch {
		if _, err := stmt.ExecContext(ctx, formatDate(l.ScrapeDate), l.Title, l.Price, l.Link, l.Page); err != nil {
			return crawler.BatchResult{}, fmt.Errorf("failed to insert listing %s: %w", l.Link, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return crawler.BatchResult{}, fmt.Errorf("failed to commit batch: %w", err)
	}
	return crawler.BatchResult{Inserted: len(batch)}, nil
}

// insertEach inserts rows individually, ignoring links already stored
func (s *SQLiteStorage) insertEach(ctx context.Context, batch []listing.RawListing) (crawler.BatchResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return crawler.BatchResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_listings (scrape_date, title, price, link, page)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(link) DO NOTHING
	`)
	if err != nil {
		return crawler.BatchResult{}, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var res crawler.BatchResult
	for _, l := range batch {
		r, err := stmt.ExecContext(ctx, formatDate(l.ScrapeDate), l.Title, l.Price, l.Link, l.Page)
		if err != nil {
			return crawler.BatchResult{}, fmt.Errorf("failed to insert listing %s: %w", l.Link, err)
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return crawler.BatchResult{}, fmt.Errorf("failed to commit batch: %w", err)
	}
	return res, nil
}

// MaxPage returns the highest stored page, 0 for an empty store
func (s *SQLiteStorage) MaxPage(ctx context.Context) (int, error) {
	var page sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(page) FROM raw_listings").Scan(&page); err != nil {
		return 0, fmt.Errorf("failed to get max page: %w", err)
	}
	return int(page.Int64), nil
}

// CountRaw returns the number of raw listings
func (s *SQLiteStorage) CountRaw(ctx context.Context) (int, error) {
	return s.count(ctx, "raw_listings")
}

// CountClean returns the number of clean listings
func (s *SQLiteStorage) CountClean(ctx context.Context) (int, error) {
	return s.count(ctx, cleanTable)
}

func (s *SQLiteStorage) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// RawListings returns every raw listing in insertion order
func (s *SQLiteStorage) RawListings(ctx context.Context) ([]listing.RawListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scrape_date, title, price, link, page
		FROM raw_listings
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []listing.RawListing
	for rows.Next() {
		var l listing.RawListing
		var date string
		if err := rows.Scan(&date, &l.Title, &l.Price, &l.Link, &l.Page); err != nil {
			return nil, fmt.Errorf("failed to scan raw listing: %w", err)
		}
		l.ScrapeDate = parseDate(date)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read raw listings: %w", err)
	}
	return out, nil
}

// ReplaceClean atomically replaces the clean table. The rows are written to
// a staging table which is swapped in within the same transaction, so
// readers see either the previous table or the complete new one.
func (s *SQLiteStorage) ReplaceClean(ctx context.Context, rows []listing.ScoredListing) error {
	const staging = cleanTable + "_next"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createStaging := strings.Replace(cleanTableSQL, cleanTable, staging, 1)
	for _, stmt := range []string{"DROP TABLE IF EXISTS " + staging, createStaging} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare staging table: %w", err)
		}
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO `+staging+` (scrape_date, title, price, link, page, brand, cpu, ram, quality_score, value_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = insert.Close() }()

	for _, r := range rows {
		if _, err := insert.ExecContext(ctx,
			formatDate(r.ScrapeDate), r.Title, r.Price, r.Link, r.Page,
			r.Brand, r.CPU, r.RAM, r.QualityScore, r.ValueRatio,
		); err != nil {
			return fmt.Errorf("failed to insert clean listing %s: %w", r.Link, err)
		}
	}

	swap := []string{
		"DROP TABLE IF EXISTS " + cleanTable,
		"ALTER TABLE " + staging + " RENAME TO " + cleanTable,
		"CREATE INDEX IF NOT EXISTS idx_clean_listings_title ON " + cleanTable + "(title)",
	}
	for _, stmt := range swap {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to swap clean table: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clean table: %w", err)
	}
	return nil
}

const cleanColumns = "scrape_date, title, price, link, page, brand, cpu, ram, quality_score, value_ratio"

// CleanListings returns the clean table ordered by value ratio, best first
func (s *SQLiteStorage) CleanListings(ctx context.Context) ([]listing.ScoredListing, error) {
	return s.queryClean(ctx, "SELECT "+cleanColumns+" FROM "+cleanTable+" ORDER BY value_ratio DESC, rowid")
}

// FindClean returns clean listings whose title matches m
func (s *SQLiteStorage) FindClean(ctx context.Context, m pipeline.Match) ([]listing.ScoredListing, error) {
	if m.Exact {
		return s.queryClean(ctx, "SELECT "+cleanColumns+" FROM "+cleanTable+" WHERE title = ? ORDER BY rowid", m.Pattern)
	}
	return s.queryClean(ctx, "SELECT "+cleanColumns+" FROM "+cleanTable+" WHERE title LIKE ? ORDER BY rowid", m.LikePattern())
}

func (s *SQLiteStorage) queryClean(ctx context.Context, query string, args ...any) ([]listing.ScoredListing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clean listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []listing.ScoredListing
	for rows.Next() {
		var l listing.ScoredListing
		var date string
		if err := rows.Scan(&date, &l.Title, &l.Price, &l.Link, &l.Page,
			&l.Brand, &l.CPU, &l.RAM, &l.QualityScore, &l.ValueRatio); err != nil {
			return nil, fmt.Errorf("failed to scan clean listing: %w", err)
		}
		l.ScrapeDate = parseDate(date)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read clean listings: %w", err)
	}
	return out, nil
}

// UpdateClean rewrites the derived columns of clean listings, keyed by link.
// It returns the number of rows changed.
func (s *SQLiteStorage) UpdateClean(ctx context.Context, rows []listing.ScoredListing) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE `+cleanTable+`
		SET ram = ?, quality_score = ?, value_ratio = ?
		WHERE link = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	updated := 0
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, r.RAM, r.QualityScore, r.ValueRatio, r.Link)
		if err != nil {
			return 0, fmt.Errorf("failed to update clean listing %s: %w", r.Link, err)
		}
		n, _ := res.RowsAffected()
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit update: %w", err)
	}
	return updated, nil
}

// RecordCorrection stores an operator RAM correction and returns its ID
func (s *SQLiteStorage) RecordCorrection(ctx context.Context, c pipeline.Correction) (int64, error) {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO ram_corrections (pattern, exact, ram, created_at) VALUES (?, ?, ?, ?)",
		c.Match.Pattern, c.Match.Exact, c.RAM, createdAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record correction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read correction id: %w", err)
	}
	return id, nil
}

// Corrections returns recorded corrections, oldest first
func (s *SQLiteStorage) Corrections(ctx context.Context) ([]pipeline.Correction, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, pattern, exact, ram, created_at FROM ram_corrections ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []pipeline.Correction
	for rows.Next() {
		var c pipeline.Correction
		if err := rows.Scan(&c.ID, &c.Match.Pattern, &c.Match.Exact, &c.RAM, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corrections: %w", err)
	}
	return out, nil
}

// SaveRun records a finished crawl run
func (s *SQLiteStorage) SaveRun(ctx context.Context, run crawler.RunRecord) error {
	failed, err := json.Marshal(run.FailedPages)
	if err != nil {
		return fmt.Errorf("failed to marshal failed pages: %w", err)
	}
	if run.FailedPages == nil {
		failed = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO crawl_runs
			(run_id, started_at, finished_at, start_page, end_page, last_page,
			 scraped, saved, skipped, discarded, failed_pages, interrupted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.StartPage, run.EndPage, run.LastPage,
		run.Scraped, run.Saved, run.Skipped, run.Discarded, string(failed), run.Interrupted,
	)
	if err != nil {
		return fmt.Errorf("failed to save crawl run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit crawl runs, newest first
func (s *SQLiteStorage) RecentRuns(ctx context.Context, limit int) ([]crawler.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, start_page, end_page, last_page,
		       scraped, saved, skipped, discarded, failed_pages, interrupted
		FROM crawl_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []crawler.RunRecord
	for rows.Next() {
		var r crawler.RunRecord
		var failed string
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.StartPage, &r.EndPage, &r.LastPage,
			&r.Scraped, &r.Saved, &r.Skipped, &r.Discarded, &failed, &r.Interrupted); err != nil {
			return nil, fmt.Errorf("failed to scan crawl run: %w", err)
		}
		if err := json.Unmarshal([]byte(failed), &r.FailedPages); err != nil {
			return nil, fmt.Errorf("failed to decode failed pages of run %s: %w", r.RunID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read crawl runs: %w", err)
	}
	return out, nil
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM crawl_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO crawl_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(listing.DateLayout)
}

func parseDate(s string) time.Time {
	t, err := time.Parse(listing.DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
