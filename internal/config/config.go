// Package config holds the run configuration assembled from defaults, an
// optional YAML file, environment variables and CLI flags (in that order).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration for one export run.
type Config struct {
	// Input
	File        string `yaml:"file"`         // coordinates CSV path
	Dataset     string `yaml:"dataset"`      // dataset name in the catalog
	BandGroup   string `yaml:"band_group"`   // e.g. RGB, NIR, SWIR1
	StartDate   string `yaml:"start_date"`   // ISO date
	EndDate     string `yaml:"end_date"`     // ISO date
	CatalogFile string `yaml:"catalog_file"` // optional dataset catalog overrides

	// Output
	Height    int    `yaml:"height"` // chip height in pixels
	Width     int    `yaml:"width"`  // chip width in pixels
	OutputDir string `yaml:"output_dir"`
	Sharpened bool   `yaml:"sharpened"`

	// Execution
	Parallel   bool `yaml:"parallel"`
	Workers    int  `yaml:"workers"`
	Redownload bool `yaml:"redownload"` // false = resume mode

	// Remote imagery service
	Endpoint string `yaml:"endpoint"`

	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects the chip store backend.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // "local" | "gcs" | "s3"
	GCSBucket  string `yaml:"gcs_bucket"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
	Prefix     string `yaml:"prefix"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `yaml:"format"` // "text" | "json"
	Level  string `yaml:"level"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Dataset:    "sentinel",
		BandGroup:  "RGB",
		StartDate:  "2022-03-21",
		EndDate:    "2022-06-20",
		Height:     512,
		Width:      512,
		OutputDir:  "output_images",
		Parallel:   true,
		Workers:    80,
		Redownload: false,
		Endpoint:   getenvDefault("GEOCHIP_ENDPOINT", "https://earthengine-highvolume.googleapis.com"),
		Storage: StorageConfig{
			Backend:   getenvDefault("GEOCHIP_STORAGE_BACKEND", "local"),
			GCSBucket: os.Getenv("GEOCHIP_GCS_BUCKET"),
			S3Bucket:  os.Getenv("GEOCHIP_S3_BUCKET"),
		},
		Metrics: MetricsConfig{
			Address: getenvDefault("GEOCHIP_METRICS_ADDR", ":9090"),
		},
		Log: LogConfig{
			Format: "text",
			Level:  getenvDefault("GEOCHIP_LOG_LEVEL", "info"),
		},
	}
}

// LoadFile merges settings from a YAML file over cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration before any work is dispatched.
func (c *Config) Validate() error {
	if c.File == "" {
		return fmt.Errorf("coordinates file is required")
	}
	if c.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	if c.Height <= 0 || c.Width <= 0 {
		return fmt.Errorf("height and width must be positive, got %dx%d", c.Height, c.Width)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	for _, d := range []struct{ name, value string }{
		{"start date", c.StartDate},
		{"end date", c.EndDate},
	} {
		if _, err := time.Parse("2006-01-02", d.value); err != nil {
			return fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", d.name, d.value)
		}
	}
	if c.Endpoint == "" {
		return fmt.Errorf("imagery service endpoint is required")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
