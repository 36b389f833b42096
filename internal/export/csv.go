// Package export copies the clean table to external consumers: CSV files
// for spreadsheets and a Postgres mirror for dashboards.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/masahif/marketpulse/internal/listing"
)

// Columns is the CSV header, in clean table order
var Columns = []string{
	"scrape_date", "title", "price", "link", "page",
	"brand", "cpu", "ram", "quality_score", "value_ratio",
}

// WriteCSV writes rows with a header line
func WriteCSV(w io.Writer, rows []listing.ScoredListing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return fmt.Errorf("failed to write row %s: %w", r.Link, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes rows to path. The file is replaced only once it is
// complete.
func WriteCSVFile(path string, rows []listing.ScoredListing) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := WriteCSV(tmp, rows); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move CSV into place: %w", err)
	}
	return nil
}

func record(r listing.ScoredListing) []string {
	date := ""
	if !r.ScrapeDate.IsZero() {
		date = r.ScrapeDate.Format(listing.DateLayout)
	}
	return []string{
		date,
		r.Title,
		strconv.FormatFloat(r.Price, 'f', -1, 64),
		r.Link,
		strconv.Itoa(r.Page),
		r.Brand,
		r.CPU,
		strconv.Itoa(r.RAM),
		strconv.FormatFloat(r.QualityScore, 'f', -1, 64),
		strconv.FormatFloat(r.ValueRatio, 'f', 4, 64),
	}
}
