package config

import "errors"

var (
	// ErrInvalidPageRange is returned when the page range is empty or starts below 1
	ErrInvalidPageRange = errors.New("start_page must be >= 1 and end_page >= start_page")
	// ErrInvalidBatchSize is returned when batch size is not greater than 0
	ErrInvalidBatchSize = errors.New("batch_size must be greater than 0")
	// ErrInvalidTimeout is returned when page timeout is not greater than 0
	ErrInvalidTimeout = errors.New("page_timeout must be greater than 0")
	// ErrInvalidDelay is returned when a delay range is negative or inverted
	ErrInvalidDelay = errors.New("delays must be >= 0 and max must not be below min")
	// ErrUnknownFetcher is returned when the fetcher kind is not supported
	ErrUnknownFetcher = errors.New("fetcher must be 'http' or 'chrome'")
	// ErrEmptyBaseURL is returned when no listing base URL is configured
	ErrEmptyBaseURL = errors.New("base_url cannot be empty")
	// ErrEmptyDatabasePath is returned when a database path is empty
	ErrEmptyDatabasePath = errors.New("database paths cannot be empty")
	// ErrInvalidMinPrice is returned when a price threshold is negative
	ErrInvalidMinPrice = errors.New("min_price cannot be negative")
)
