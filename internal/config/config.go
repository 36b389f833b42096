// Package config provides configuration management for the pipeline.
// It defines configuration structures, default values and validation for
// crawling, extraction, cleaning, export and logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override config keys
const EnvPrefix = "MP"

// EnvKeyReplacer maps dotted config keys to environment variable names
var EnvKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// Fetcher kinds
const (
	FetcherHTTP   = "http"
	FetcherChrome = "chrome"
)

// DatabaseConfig locates the SQLite stores
type DatabaseConfig struct {
	RawPath   string `mapstructure:"raw_path" yaml:"raw_path"`     // Raw listings store
	CleanPath string `mapstructure:"clean_path" yaml:"clean_path"` // Clean table store
}

// CrawlConfig holds crawl loop and page fetcher settings
type CrawlConfig struct {
	StartPage      int           `mapstructure:"start_page" yaml:"start_page"`
	EndPage        int           `mapstructure:"end_page" yaml:"end_page"`
	BatchSize      int           `mapstructure:"batch_size" yaml:"batch_size"`             // Flush every N pages
	PageTimeout    time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`         // Page load timeout
	MinDelay       time.Duration `mapstructure:"min_delay" yaml:"min_delay"`               // Lower bound between pages
	MaxDelay       time.Duration `mapstructure:"max_delay" yaml:"max_delay"`               // Upper bound between pages
	LongPauseEvery int           `mapstructure:"long_pause_every" yaml:"long_pause_every"` // 0 disables long pauses
	LongPauseMin   time.Duration `mapstructure:"long_pause_min" yaml:"long_pause_min"`
	LongPauseMax   time.Duration `mapstructure:"long_pause_max" yaml:"long_pause_max"`

	// Page fetcher
	Fetcher       string   `mapstructure:"fetcher" yaml:"fetcher"`               // 'http' or 'chrome'
	BaseURL       string   `mapstructure:"base_url" yaml:"base_url"`             // Listing URL of page 1
	PageParam     string   `mapstructure:"page_param" yaml:"page_param"`         // Query parameter carrying the page number
	ItemSelector  string   `mapstructure:"item_selector" yaml:"item_selector"`   // CSS selector of listing cards
	TitleSelector string   `mapstructure:"title_selector" yaml:"title_selector"` // CSS selector of the title inside a card
	UserAgent     string   `mapstructure:"user_agent" yaml:"user_agent"`
	Headers       []string `mapstructure:"headers" yaml:"headers"`         // Extra 'Name: Value' headers for the HTTP fetcher
	Headless      bool     `mapstructure:"headless" yaml:"headless"`       // Chrome fetcher only
	ChromePath    string   `mapstructure:"chrome_path" yaml:"chrome_path"` // Chrome binary, empty for autodetect
}

// ExtractConfig holds item extraction settings
type ExtractConfig struct {
	CurrencyToken string  `mapstructure:"currency_token" yaml:"currency_token"`
	MinPrice      float64 `mapstructure:"min_price" yaml:"min_price"` // Anti-spam floor, 0 disables
}

// CleanConfig holds clean table settings
type CleanConfig struct {
	MinPrice   float64 `mapstructure:"min_price" yaml:"min_price"`     // Listings must be strictly above it
	SampleSize int     `mapstructure:"sample_size" yaml:"sample_size"` // Rows shown in the build summary
}

// ExportConfig holds clean table export targets
type ExportConfig struct {
	CSVPath     string `mapstructure:"csv_path" yaml:"csv_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // 'json' or 'text'
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int64  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Console    bool   `mapstructure:"console" yaml:"console"`
}

// Config is the complete pipeline configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Crawl    CrawlConfig    `mapstructure:"crawl" yaml:"crawl"`
	Extract  ExtractConfig  `mapstructure:"extract" yaml:"extract"`
	Clean    CleanConfig    `mapstructure:"clean" yaml:"clean"`
	Export   ExportConfig   `mapstructure:"export" yaml:"export"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			RawPath:   "./marketpulse_raw.db",
			CleanPath: "./marketpulse.db",
		},
		Crawl: CrawlConfig{
			StartPage:      1,
			EndPage:        500,
			BatchSize:      10,
			PageTimeout:    30 * time.Second,
			MinDelay:       2500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			LongPauseEvery: 50,
			LongPauseMin:   10 * time.Second,
			LongPauseMax:   20 * time.Second,
			Fetcher:        FetcherHTTP,
			BaseURL:        "https://www.avito.ma/fr/maroc/ordinateurs_portables",
			PageParam:      "o",
			ItemSelector:   "a.sc-1jge648-0.jZXrfL",
			TitleSelector:  "p.sc-1x0vz2r-0.iHApav",
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			Headless:       true,
		},
		Extract: ExtractConfig{
			CurrencyToken: "DH",
		},
		Clean: CleanConfig{
			MinPrice:   500,
			SampleSize: 10,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			Console:    true,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.RawPath == "" || c.Database.CleanPath == "" {
		return ErrEmptyDatabasePath
	}
	if err := c.Crawl.Validate(); err != nil {
		return err
	}
	if c.Extract.MinPrice < 0 || c.Clean.MinPrice < 0 {
		return ErrInvalidMinPrice
	}
	if c.Clean.SampleSize < 0 {
		c.Clean.SampleSize = 0
	}
	return nil
}

// Validate checks the crawl settings
func (c *CrawlConfig) Validate() error {
	if c.StartPage < 1 || c.EndPage < c.StartPage {
		return ErrInvalidPageRange
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.PageTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay || c.LongPauseMin < 0 || c.LongPauseMax < c.LongPauseMin {
		return ErrInvalidDelay
	}

	// Negative intervals mean the same as no long pauses
	if c.LongPauseEvery < 0 {
		c.LongPauseEvery = 0
	}

	switch c.Fetcher {
	case FetcherHTTP, FetcherChrome:
	default:
		return ErrUnknownFetcher
	}

	if c.BaseURL == "" {
		return ErrEmptyBaseURL
	}

	return nil
}

// SetDefaults registers every configuration key with v so that environment
// variables and config files can override any of them.
func SetDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"database.raw_path":      cfg.Database.RawPath,
		"database.clean_path":    cfg.Database.CleanPath,
		"crawl.start_page":       cfg.Crawl.StartPage,
		"crawl.end_page":         cfg.Crawl.EndPage,
		"crawl.batch_size":       cfg.Crawl.BatchSize,
		"crawl.page_timeout":     cfg.Crawl.PageTimeout,
		"crawl.min_delay":        cfg.Crawl.MinDelay,
		"crawl.max_delay":        cfg.Crawl.MaxDelay,
		"crawl.long_pause_every": cfg.Crawl.LongPauseEvery,
		"crawl.long_pause_min":   cfg.Crawl.LongPauseMin,
		"crawl.long_pause_max":   cfg.Crawl.LongPauseMax,
		"crawl.fetcher":          cfg.Crawl.Fetcher,
		"crawl.base_url":         cfg.Crawl.BaseURL,
		"crawl.page_param":       cfg.Crawl.PageParam,
		"crawl.item_selector":    cfg.Crawl.ItemSelector,
		"crawl.title_selector":   cfg.Crawl.TitleSelector,
		"crawl.user_agent":       cfg.Crawl.UserAgent,
		"crawl.headers":          cfg.Crawl.Headers,
		"crawl.headless":         cfg.Crawl.Headless,
		"crawl.chrome_path":      cfg.Crawl.ChromePath,
		"extract.currency_token": cfg.Extract.CurrencyToken,
		"extract.min_price":      cfg.Extract.MinPrice,
		"clean.min_price":        cfg.Clean.MinPrice,
		"clean.sample_size":      cfg.Clean.SampleSize,
		"export.csv_path":        cfg.Export.CSVPath,
		"export.postgres_dsn":    cfg.Export.PostgresDSN,
		"log.level":              cfg.Log.Level,
		"log.format":             cfg.Log.Format,
		"log.file":               cfg.Log.File,
		"log.max_size_mb":        cfg.Log.MaxSizeMB,
		"log.max_backups":        cfg.Log.MaxBackups,
		"log.console":            cfg.Log.Console,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load builds a Config from defaults overridden by everything v knows
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from the given .env files.
// Missing files are ignored; variables already set are never overwritten.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}
