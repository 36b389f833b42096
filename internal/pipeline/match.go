package pipeline

import (
	"strings"
	"time"
)

// Match selects clean listings by title
type Match struct {
	Pattern string
	Exact   bool // Compare the whole title instead of a LIKE pattern
}

// LikePattern returns the SQL LIKE pattern of a non-exact match. A pattern
// without wildcards matches titles containing it.
func (m Match) LikePattern() string {
	if strings.ContainsAny(m.Pattern, "%_") {
		return m.Pattern
	}
	return "%" + m.Pattern + "%"
}

// Matches reports whether title is selected, with SQLite semantics:
// exact matches are case sensitive, LIKE folds ASCII case only.
func (m Match) Matches(title string) bool {
	if m.Exact {
		return title == m.Pattern
	}
	return like(m.LikePattern(), title)
}

// Correction is a recorded operator override of a listing's RAM
type Correction struct {
	ID        int64
	Match     Match
	RAM       int
	CreatedAt time.Time
}

// like implements SQL LIKE: % matches any run, _ any single character.
// On a mismatch only the most recent % is retried, one rune further, so
// matching stays linear in practice.
func like(pattern, s string) bool {
	p, t := []rune(pattern), []rune(s)
	pi, ti := 0, 0
	star, mark := -1, 0

	for ti < len(t) {
		switch {
		case pi < len(p) && p[pi] == '%':
			star, mark = pi, ti
			pi++
		case pi < len(p) && (p[pi] == '_' || foldASCII(p[pi]) == foldASCII(t[ti])):
			pi++
			ti++
		case star >= 0:
			mark++
			pi, ti = star+1, mark
		default:
			return false
		}
	}

	for pi < len(p) && p[pi] == '%' {
		pi++
	}
	return pi == len(p)
}

func foldASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
