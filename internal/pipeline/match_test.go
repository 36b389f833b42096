package pipeline

import (
	"strings"
	"testing"
	"time"
)

func TestMatch(t *testing.T) {
	const title = "Ordinateur Portable 13 pouces HP Stream SSD 32Go"

	tests := []struct {
		name  string
		match Match
		title string
		want  bool
	}{
		{"substring", Match{Pattern: "HP Stream"}, title, true},
		{"substring ascii case folded", Match{Pattern: "hp stream ssd"}, title, true},
		{"explicit wildcards", Match{Pattern: "%HP Stream SSD 32Go%"}, title, true},
		{"anchored prefix", Match{Pattern: "Ordinateur%"}, title, true},
		{"anchored prefix miss", Match{Pattern: "Portable%"}, title, false},
		{"underscore single char", Match{Pattern: "%SSD __Go"}, title, true},
		{"underscore needs a char", Match{Pattern: "%SSD ___Go"}, title, false},
		{"exact", Match{Pattern: title, Exact: true}, title, true},
		{"exact is case sensitive", Match{Pattern: "ordinateur portable 13 pouces hp stream ssd 32go", Exact: true}, title, false},
		{"exact ignores wildcards", Match{Pattern: "%", Exact: true}, title, false},
		{"non ascii kept case sensitive", Match{Pattern: "PC Écran"}, "pc écran 15", false},
		{"non ascii exact rune", Match{Pattern: "écran"}, "PC écran 15", true},
		{"empty title", Match{Pattern: "HP"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.match.Matches(tt.title); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestLikePattern(t *testing.T) {
	if got := (Match{Pattern: "HP"}).LikePattern(); got != "%HP%" {
		t.Errorf("LikePattern = %q, want %%HP%%", got)
	}
	if got := (Match{Pattern: "HP%"}).LikePattern(); got != "HP%" {
		t.Errorf("LikePattern = %q, want HP%%", got)
	}
}

func TestLike(t *testing.T) {
	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"", "", true},
		{"", "a", false},
		{"%", "", true},
		{"%%", "abc", true},
		{"a%c", "abc", true},
		{"a%c", "abcd", false},
		{"%b%", "abc", true},
		{"%x%y%", "axbxcy", true},
		{"%x%y%", "ayx", false},
		{"_b_", "abc", true},
		{"a%_", "a", false},
		{"%16go", "Dell i7 16Go 16GO", true},
	}

	for _, tt := range tests {
		if got := like(tt.pattern, tt.s); got != tt.want {
			t.Errorf("like(%q, %q) = %v, want %v", tt.pattern, tt.s, got, tt.want)
		}
	}
}

func TestLikeManyWildcardsMiss(t *testing.T) {
	pattern := strings.Repeat("%a", 40) + "%b"
	title := strings.Repeat("a", 200)

	start := time.Now()
	if like(pattern, title) {
		t.Fatal("expected no match")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("like took %v on a wildcard-heavy miss", elapsed)
	}
}
