package export

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/masahif/marketpulse/internal/listing"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// connectTimeout bounds the initial ping
const connectTimeout = 15 * time.Second

// PostgresMirror keeps a copy of the clean table in Postgres
type PostgresMirror struct {
	db *sqlx.DB
}

// cleanRow is the Postgres shape of a clean listing
type cleanRow struct {
	ScrapeDate   *time.Time `db:"scrape_date"`
	Title        string     `db:"title"`
	Price        float64    `db:"price"`
	Link         string     `db:"link"`
	Page         int        `db:"page"`
	Brand        string     `db:"brand"`
	CPU          string     `db:"cpu"`
	RAM          int        `db:"ram"`
	QualityScore float64    `db:"quality_score"`
	ValueRatio   float64    `db:"value_ratio"`
}

// OpenPostgres connects to the mirror database
func OpenPostgres(ctx context.Context, dsn string) (*PostgresMirror, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN cannot be empty")
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresMirror{db: sqlx.NewDb(sqlDB, "postgres")}, nil
}

// Migrate applies the embedded schema migrations
func (m *PostgresMirror) Migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(m.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := mg.Version()
	if err != nil {
		slog.Warn("Could not get migration version", "error", err)
	} else {
		slog.Debug("Migrations applied", "version", version, "dirty", dirty)
	}
	return nil
}

// Replace swaps the mirrored clean table for rows in one transaction
func (m *PostgresMirror) Replace(ctx context.Context, rows []listing.ScoredListing) (int, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM clean_listings"); err != nil {
		return 0, fmt.Errorf("failed to clear mirror: %w", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO clean_listings
			(scrape_date, title, price, link, page, brand, cpu, ram, quality_score, value_ratio)
		VALUES
			(:scrape_date, :title, :price, :link, :page, :brand, :cpu, :ram, :quality_score, :value_ratio)
		ON CONFLICT (link) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, toRow(r))
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s: %w", r.Link, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit mirror: %w", err)
	}
	return inserted, nil
}

// Count returns the number of mirrored rows
func (m *PostgresMirror) Count(ctx context.Context) (int, error) {
	var n int
	if err := m.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM clean_listings"); err != nil {
		return 0, fmt.Errorf("failed to count mirror: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (m *PostgresMirror) Close() error {
	return m.db.Close()
}

func toRow(r listing.ScoredListing) cleanRow {
	row := cleanRow{
		Title:        r.Title,
		Price:        r.Price,
		Link:         r.Link,
		Page:         r.Page,
		Brand:        r.Brand,
		CPU:          r.CPU,
		RAM:          r.RAM,
		QualityScore: r.QualityScore,
		ValueRatio:   r.ValueRatio,
	}
	if !r.ScrapeDate.IsZero() {
		d := r.ScrapeDate
		row.ScrapeDate = &d
	}
	return row
}
