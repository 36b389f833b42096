// Package normalize derives brand, CPU family and RAM size from listing titles.
// Matching is case-insensitive and depends on the title alone, so equal
// titles always produce equal attributes.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/masahif/marketpulse/internal/listing"
)

// DefaultRAMCeiling is the largest lone memory figure still read as RAM
const DefaultRAMCeiling = 32

// Brand is a title token and the name it is reported under
type Brand struct {
	Token string // Lower-case token searched for in titles
	Name  string // Canonical brand name
}

// Rules is the immutable matching data used by a Normalizer
type Rules struct {
	Brands     []Brand // Ordered; earlier entries win ties at the same position
	CPUPattern string  // Lower-case regex of CPU family tokens
	RAMPattern string  // Regex with the capacity digits as first group
	RAMCeiling int     // Plausibility ceiling for a lone figure
}

// DefaultRules returns the brand list, CPU families and memory units of the
// laptop marketplace.
func DefaultRules() Rules {
	return Rules{
		Brands: []Brand{
			{"samsung", "Samsung"},
			{"apple", "Apple"},
			{"huawei", "Huawei"},
			{"xiaomi", "Xiaomi"},
			{"oneplus", "OnePlus"},
			{"oppo", "Oppo"},
			{"vivo", "Vivo"},
			{"realme", "Realme"},
			{"asus", "Asus"},
			{"lenovo", "Lenovo"},
			{"dell", "Dell"},
			{"hp", "HP"},
			{"acer", "Acer"},
			{"msi", "MSI"},
			{"lg", "LG"},
			{"sony", "Sony"},
			{"nokia", "Nokia"},
			{"motorola", "Motorola"},
			{"google", "Google"},
			{"macbook", "Apple"},
		},
		CPUPattern: `i[3579]|m[123]|ryzen\s?\d|ultra\s?\d`,
		RAMPattern: `(\d+)\s?(?:go|gb)`,
		RAMCeiling: DefaultRAMCeiling,
	}
}

// Normalizer applies compiled Rules to titles. It is safe for concurrent use.
type Normalizer struct {
	brandRe    *regexp.Regexp
	brandNames map[string]string
	cpuRe      *regexp.Regexp
	ramRe      *regexp.Regexp
	ramCeiling int
}

// New compiles rules into a Normalizer
func New(rules Rules) (*Normalizer, error) {
	tokens := make([]string, 0, len(rules.Brands))
	names := make(map[string]string, len(rules.Brands))
	for _, b := range rules.Brands {
		token := strings.ToLower(b.Token)
		if _, seen := names[token]; seen {
			continue
		}
		tokens = append(tokens, regexp.QuoteMeta(token))
		names[token] = b.Name
	}

	n := &Normalizer{brandNames: names, ramCeiling: rules.RAMCeiling}

	var err error
	if len(tokens) > 0 {
		if n.brandRe, err = regexp.Compile("(?:" + strings.Join(tokens, "|") + ")"); err != nil {
			return nil, fmt.Errorf("invalid brand tokens: %w", err)
		}
	}
	if rules.CPUPattern != "" {
		if n.cpuRe, err = regexp.Compile(rules.CPUPattern); err != nil {
			return nil, fmt.Errorf("invalid cpu pattern: %w", err)
		}
	}
	if n.ramRe, err = regexp.Compile(rules.RAMPattern); err != nil {
		return nil, fmt.Errorf("invalid ram pattern: %w", err)
	}
	if n.ramRe.NumSubexp() < 1 {
		return nil, fmt.Errorf("ram pattern %q has no capture group", rules.RAMPattern)
	}

	return n, nil
}

// Default returns a Normalizer over DefaultRules
func Default() *Normalizer {
	n, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize returns the brand, CPU family and RAM gigabytes found in title
func (n *Normalizer) Normalize(title string) (brand, cpu string, ram int) {
	lower := strings.ToLower(title)
	return n.Brand(lower), n.CPU(lower), n.RAM(lower)
}

// Listing attaches normalized attributes to a raw listing
func (n *Normalizer) Listing(raw listing.RawListing) listing.NormalizedListing {
	brand, cpu, ram := n.Normalize(raw.Title)
	return listing.NormalizedListing{RawListing: raw, Brand: brand, CPU: cpu, RAM: ram}
}

// Brand returns the canonical name of the leftmost brand token in title
func (n *Normalizer) Brand(title string) string {
	if n.brandRe == nil {
		return listing.BrandOther
	}
	token := n.brandRe.FindString(strings.ToLower(title))
	if token == "" {
		return listing.BrandOther
	}
	return n.brandNames[token]
}

// CPU returns the first CPU family token in title, upper-cased with spaces
// replaced by hyphens.
func (n *Normalizer) CPU(title string) string {
	if n.cpuRe == nil {
		return listing.CPUUnknown
	}
	token := n.cpuRe.FindString(strings.ToLower(title))
	if token == "" {
		return listing.CPUUnknown
	}
	return strings.Join(strings.Fields(strings.ToUpper(token)), "-")
}

// RAM disambiguates the memory figures in title:
//
//	no figure        -> 0
//	one figure       -> the figure if within the ceiling, else 0
//	two figures      -> the smaller one (RAM/storage pair)
//	three or more    -> the smallest figure within the ceiling, else 0
func (n *Normalizer) RAM(title string) int {
	values := n.memoryFigures(strings.ToLower(title))

	switch len(values) {
	case 0:
		return 0
	case 1:
		if values[0] <= n.ramCeiling {
			return values[0]
		}
		return 0
	case 2:
		return min(values[0], values[1])
	}

	ram := -1
	for _, v := range values {
		if v <= n.ramCeiling && (ram < 0 || v < ram) {
			ram = v
		}
	}
	if ram < 0 {
		return 0
	}
	return ram
}

// memoryFigures returns every capacity figure in title, in order
func (n *Normalizer) memoryFigures(title string) []int {
	matches := n.ramRe.FindAllStringSubmatch(title, -1)
	values := make([]int, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			// Only overflow can fail on a digit run
			v = math.MaxInt
		}
		values = append(values, v)
	}
	return values
}
