// Package scoring maps normalized CPU and RAM attributes to a quality score
// and a price-adjusted value ratio using fixed lookup tables.
package scoring

import (
	"maps"

	"github.com/masahif/marketpulse/internal/listing"
)

// DefaultCPUScore is used for CPU families missing from the table
const DefaultCPUScore = 25

// RAMFallbackFactor multiplies RAM sizes missing from the table
const RAMFallbackFactor = 5

// Tables holds the score lookup data
type Tables struct {
	CPU        map[string]float64 // Keyed by normalized CPU token
	RAM        map[int]float64    // Keyed by RAM gigabytes
	DefaultCPU float64            // Score for unknown CPU tokens
	RAMFactor  float64            // Score per GB for RAM sizes not in the table
}

// DefaultTables returns the production score tables
func DefaultTables() Tables {
	return Tables{
		CPU: map[string]float64{
			"I3":      40,
			"I5":      55,
			"I7":      70,
			"I9":      85,
			"M1":      75,
			"M2":      85,
			"M3":      95,
			"RYZEN-3": 40,
			"RYZEN-5": 55,
			"RYZEN-7": 70,
			"RYZEN-9": 85,
			"ULTRA-5": 60,
			"ULTRA-7": 75,
			"ULTRA-9": 90,
		},
		RAM: map[int]float64{
			4:  20,
			8:  40,
			16: 70,
			32: 90,
			64: 100,
		},
		DefaultCPU: DefaultCPUScore,
		RAMFactor:  RAMFallbackFactor,
	}
}

// Scorer computes quality and value scores
type Scorer struct {
	tables Tables
}

// New creates a Scorer over a private copy of tables
func New(tables Tables) *Scorer {
	tables.CPU = maps.Clone(tables.CPU)
	tables.RAM = maps.Clone(tables.RAM)
	return &Scorer{tables: tables}
}

// Default returns a Scorer over DefaultTables
func Default() *Scorer {
	return New(DefaultTables())
}

// Quality returns the CPU score plus the RAM score
func (s *Scorer) Quality(cpu string, ram int) float64 {
	cpuScore, ok := s.tables.CPU[cpu]
	if !ok {
		cpuScore = s.tables.DefaultCPU
	}

	ramScore, ok := s.tables.RAM[ram]
	if !ok {
		ramScore = float64(ram) * s.tables.RAMFactor
	}

	return cpuScore + ramScore
}

// Score returns the quality score and the quality per thousand units of
// price. The value ratio is 0 when price is not positive.
func (s *Scorer) Score(cpu string, ram int, price float64) (quality, value float64) {
	quality = s.Quality(cpu, ram)
	if price > 0 {
		value = quality / price * 1000
	}
	return quality, value
}

// Listing scores a normalized listing
func (s *Scorer) Listing(n listing.NormalizedListing) listing.ScoredListing {
	quality, value := s.Score(n.CPU, n.RAM, n.Price)
	return listing.ScoredListing{NormalizedListing: n, QualityScore: quality, ValueRatio: value}
}
