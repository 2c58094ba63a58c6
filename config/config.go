// Package config loads coursefed settings from defaults, an optional YAML
// file and COURSEFED_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var ErrInvalid = errors.New("invalid configuration")

// StorageConfig selects the database.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"COURSEFED_STORAGE_DRIVER"`
	DSN    string `yaml:"dsn" env:"COURSEFED_STORAGE_DSN"`
}

// ScrapeConfig controls request pacing and limits.
type ScrapeConfig struct {
	PageDelay     time.Duration `yaml:"page_delay" env:"COURSEFED_PAGE_DELAY"`
	SourceDelay   time.Duration `yaml:"source_delay" env:"COURSEFED_SOURCE_DELAY"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" env:"COURSEFED_FETCH_TIMEOUT"`
	RenderTimeout time.Duration `yaml:"render_timeout" env:"COURSEFED_RENDER_TIMEOUT"`
	SourceTimeout time.Duration `yaml:"source_timeout" env:"COURSEFED_SOURCE_TIMEOUT"`
	MaxRetries    int           `yaml:"max_retries" env:"COURSEFED_MAX_RETRIES"`
	Concurrency   int           `yaml:"concurrency" env:"COURSEFED_CONCURRENCY"`
	UserAgent     string        `yaml:"user_agent" env:"COURSEFED_USER_AGENT"`
	ChromePath    string        `yaml:"chrome_path" env:"COURSEFED_CHROME_PATH"`
}

// CatalogConfig lists extra source catalog files merged over the built-in
// catalog.
type CatalogConfig struct {
	Files []string `yaml:"files" env:"COURSEFED_CATALOG_FILES"`
}

// OutputConfig controls where run artifacts are written.
type OutputConfig struct {
	ResultsDir string `yaml:"results_dir" env:"COURSEFED_RESULTS_DIR"`
}

// HeuristicsConfig points at a tables file that replaces the embedded
// vocabularies.
type HeuristicsConfig struct {
	File string `yaml:"file" env:"COURSEFED_HEURISTICS_FILE"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `yaml:"level" env:"COURSEFED_LOG_LEVEL"`
	Format string `yaml:"format" env:"COURSEFED_LOG_FORMAT"`
}

// Config is the full set of settings.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Scrape     ScrapeConfig     `yaml:"scrape"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Output     OutputConfig     `yaml:"output"`
	Heuristics HeuristicsConfig `yaml:"heuristics"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: "sqlite3",
			DSN:    filepath.Join(Dir(), "courses.db"),
		},
		Scrape: ScrapeConfig{
			PageDelay:     2 * time.Second,
			SourceDelay:   3 * time.Second,
			FetchTimeout:  30 * time.Second,
			RenderTimeout: 10 * time.Second,
			SourceTimeout: 5 * time.Minute,
			MaxRetries:    3,
			Concurrency:   1,
		},
		Output: OutputConfig{
			ResultsDir: "results",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Dir returns ~/.coursefed, or .coursefed if the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coursefed"
	}
	return filepath.Join(home, ".coursefed")
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("%w: storage.driver must be sqlite3 or postgres, got %q", ErrInvalid, c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("%w: storage.dsn is required", ErrInvalid)
	}

	durations := map[string]time.Duration{
		"scrape.page_delay":   c.Scrape.PageDelay,
		"scrape.source_delay": c.Scrape.SourceDelay,
	}
	for key, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, key)
		}
	}

	timeouts := map[string]time.Duration{
		"scrape.fetch_timeout":  c.Scrape.FetchTimeout,
		"scrape.render_timeout": c.Scrape.RenderTimeout,
		"scrape.source_timeout": c.Scrape.SourceTimeout,
	}
	for key, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, key)
		}
	}

	if c.Scrape.MaxRetries < 1 {
		return fmt.Errorf("%w: scrape.max_retries must be at least 1", ErrInvalid)
	}
	if c.Scrape.Concurrency < 1 {
		return fmt.Errorf("%w: scrape.concurrency must be at least 1", ErrInvalid)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format must be json or console, got %q", ErrInvalid, c.Log.Format)
	}

	return nil
}
