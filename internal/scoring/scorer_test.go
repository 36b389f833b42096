package scoring

import (
	"math"
	"testing"

	"github.com/masahif/marketpulse/internal/listing"
)

func TestScore(t *testing.T) {
	s := Default()

	tests := []struct {
		name        string
		cpu         string
		ram         int
		price       float64
		wantQuality float64
		wantValue   float64
	}{
		{"i7 with 16GB", "I7", 16, 7000, 140, 20},
		{"unknown cpu default", listing.CPUUnknown, 8, 4000, 65, 16.25},
		{"ram outside table", "I5", 12, 1000, 115, 115},
		{"zero ram falls back to zero", "M1", 0, 5000, 75, 15},
		{"zero price gives zero value", "I3", 4, 0, 60, 0},
		{"negative price gives zero value", "I3", 4, -10, 60, 0},
		{"ryzen token", "RYZEN-5", 32, 9000, 145, 145.0 / 9000 * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quality, value := s.Score(tt.cpu, tt.ram, tt.price)
			if quality != tt.wantQuality {
				t.Errorf("quality = %v, want %v", quality, tt.wantQuality)
			}
			if math.Abs(value-tt.wantValue) > 1e-9 {
				t.Errorf("value = %v, want %v", value, tt.wantValue)
			}
		})
	}
}

func TestNewCopiesTables(t *testing.T) {
	tables := DefaultTables()
	s := New(tables)

	tables.CPU["I7"] = 1
	tables.RAM[16] = 1

	if q := s.Quality("I7", 16); q != 140 {
		t.Errorf("scorer observed caller mutation, quality = %v", q)
	}
}

func TestListing(t *testing.T) {
	s := Default()
	n := listing.NormalizedListing{
		RawListing: listing.RawListing{Title: "Dell i7 16Go", Price: 7000, Link: "l"},
		Brand:      "Dell",
		CPU:        "I7",
		RAM:        16,
	}

	got := s.Listing(n)
	if got.NormalizedListing != n {
		t.Errorf("normalized fields changed: %+v", got.NormalizedListing)
	}
	if got.QualityScore != 140 || math.Abs(got.ValueRatio-20) > 1e-9 {
		t.Errorf("scores = (%v, %v), want (140, 20)", got.QualityScore, got.ValueRatio)
	}
}
