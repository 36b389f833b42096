// Package cmd provides the command-line interface for marketpulse.
// It handles command parsing, configuration loading and wiring of the
// crawl, clean, correct, status and export commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/marketpulse/internal/config"
	"github.com/masahif/marketpulse/internal/fetcher"
	"github.com/masahif/marketpulse/internal/logging"
	"github.com/masahif/marketpulse/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
}

// Execute builds the command tree and runs it with os.Args
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// app carries the state shared by every subcommand of one invocation
type app struct {
	v          *viper.Viper
	cfgFile    string
	dotEnv     string
	cfg        *config.Config
	logCloser  io.Closer
	newFetcher func(*config.CrawlConfig) (fetcher.Fetcher, error)
}

// NewRootCmd creates the marketpulse command tree
func NewRootCmd() *cobra.Command {
	a := &app{
		v:          viper.New(),
		dotEnv:     ".env",
		newFetcher: fetcher.New,
	}

	rootCmd := &cobra.Command{
		Use:   "marketpulse",
		Short: "Laptop listing crawler and value scorer",
		Long: `marketpulse crawls marketplace laptop listings into a raw store,
normalizes brand, CPU and RAM from free-text titles and ranks listings
by hardware value per price.`,
		Version:           fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if show, _ := cmd.Flags().GetBool("show-config"); show {
				return showCurrentConfig(cmd.OutOrStdout(), a.cfg)
			}
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./marketpulse.yml)")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("log-file", "", "Also write logs to this file")
	pf.String("log-format", "json", "Log format: json or text")
	pf.String("raw-db", "./marketpulse_raw.db", "Path to the raw listings SQLite database")
	pf.String("clean-db", "./marketpulse.db", "Path to the clean table SQLite database")

	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	a.bindFlags(rootCmd, map[string]string{
		"log.level":           "log-level",
		"log.file":            "log-file",
		"log.format":          "log-format",
		"database.raw_path":   "raw-db",
		"database.clean_path": "clean-db",
	})

	rootCmd.AddCommand(
		newCrawlCmd(a),
		newCleanCmd(a),
		newCorrectCmd(a),
		newStatusCmd(a),
		newExportCmd(a),
	)

	return rootCmd
}

// bindFlags binds viper keys to flags of cmd
func (a *app) bindFlags(cmd *cobra.Command, binds map[string]string) {
	for key, name := range binds {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if err := a.v.BindPFlag(key, flag); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", name, err)
		}
	}
}

// setup loads configuration and installs the logger
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(a.dotEnv); err != nil {
		return err
	}

	a.v.SetEnvPrefix(config.EnvPrefix)
	a.v.SetEnvKeyReplacer(config.EnvKeyReplacer)
	a.v.AutomaticEnv()
	config.SetDefaults(a.v, config.DefaultConfig())

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName("marketpulse")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if show, _ := cmd.Flags().GetBool("show-config"); show {
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closer, err := logging.SetDefault(logging.FromConfig(cfg.Log))
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	a.logCloser = closer

	return nil
}

func (a *app) teardown() error {
	if a.logCloser == nil {
		return nil
	}
	err := a.logCloser.Close()
	a.logCloser = nil
	return err
}

func showCurrentConfig(w io.Writer, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current marketpulse configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./marketpulse.yml\n")
	fmt.Fprintf(w, "# Environment variables prefix: %s_\n\n", config.EnvPrefix)

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (%s_ prefix, .env loaded first)\n", config.EnvPrefix)
	fmt.Fprintf(w, "# 3. Configuration file (marketpulse.yml)\n")
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}

// stores holds the raw and clean databases of one invocation. They share a
// handle when both paths point to the same file.
type stores struct {
	raw   *storage.SQLiteStorage
	clean *storage.SQLiteStorage
}

func openStore(path string) (*storage.SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	s, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return s, nil
}

func (a *app) openStores() (*stores, error) {
	raw, err := openStore(a.cfg.Database.RawPath)
	if err != nil {
		return nil, err
	}

	if filepath.Clean(a.cfg.Database.CleanPath) == filepath.Clean(a.cfg.Database.RawPath) {
		return &stores{raw: raw, clean: raw}, nil
	}

	clean, err := openStore(a.cfg.Database.CleanPath)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &stores{raw: raw, clean: clean}, nil
}

func (s *stores) Close() error {
	err := s.raw.Close()
	if s.clean != s.raw {
		if cerr := s.clean.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
