package pipeline

import "errors"

var (
	// ErrEmptyPattern is returned when a correction has no title pattern
	ErrEmptyPattern = errors.New("title pattern cannot be empty")
	// ErrInvalidRAM is returned when a correction sets a negative RAM value
	ErrInvalidRAM = errors.New("ram cannot be negative")
	// ErrNoMatch is returned when a correction matches no clean listing
	ErrNoMatch = errors.New("no clean listing matches the title")
)
