// Package config loads run-scoped settings for thumbfetch.
//
// Values are layered: Default, then an optional YAML file, then
// THUMBFETCH_* environment variables, then command line flags the caller
// applies itself.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines configuration for a single run.
type Config struct {
	MongoURI       string
	OutputDir      string
	PageSize       int
	UserID         string
	FolderID       string
	DispatchDelay  time.Duration
	RequestTimeout time.Duration
	ReportInterval time.Duration
	LogLevel       string
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		MongoURI:       "mongodb://localhost:27017/test",
		OutputDir:      "./output",
		PageSize:       100,
		DispatchDelay:  30 * time.Millisecond,
		ReportInterval: time.Second,
		LogLevel:       "info",
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	MongoURI       string `yaml:"mongo_uri"`
	OutputDir      string `yaml:"output_dir"`
	PageSize       int    `yaml:"page_size"`
	UserID         string `yaml:"user_id"`
	FolderID       string `yaml:"folder_id"`
	DispatchDelay  string `yaml:"dispatch_delay"`
	RequestTimeout string `yaml:"request_timeout"`
	ReportInterval string `yaml:"report_interval"`
	LogLevel       string `yaml:"log_level"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	if yc.MongoURI != "" {
		cfg.MongoURI = yc.MongoURI
	}
	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.PageSize != 0 {
		cfg.PageSize = yc.PageSize
	}
	cfg.UserID = yc.UserID
	cfg.FolderID = yc.FolderID
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"dispatch_delay", yc.DispatchDelay, &cfg.DispatchDelay},
		{"request_timeout", yc.RequestTimeout, &cfg.RequestTimeout},
		{"report_interval", yc.ReportInterval, &cfg.ReportInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

// LoadFromEnv overlays environment variables with the THUMBFETCH_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("THUMBFETCH_MONGO_URI"); v != "" {
		c.MongoURI = v
	}
	if v := os.Getenv("THUMBFETCH_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("THUMBFETCH_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse THUMBFETCH_PAGE_SIZE: %w", err)
		}
		c.PageSize = n
	}
	if v := os.Getenv("THUMBFETCH_USER_ID"); v != "" {
		c.UserID = v
	}
	if v := os.Getenv("THUMBFETCH_FOLDER_ID"); v != "" {
		c.FolderID = v
	}
	if v := os.Getenv("THUMBFETCH_DISPATCH_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse THUMBFETCH_DISPATCH_DELAY: %w", err)
		}
		c.DispatchDelay = d
	}
	if v := os.Getenv("THUMBFETCH_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse THUMBFETCH_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	if v := os.Getenv("THUMBFETCH_REPORT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse THUMBFETCH_REPORT_INTERVAL: %w", err)
		}
		c.ReportInterval = d
	}
	if v := os.Getenv("THUMBFETCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return errors.New("config: mongo_uri is required")
	}
	if c.OutputDir == "" {
		return errors.New("config: output_dir is required")
	}
	if c.PageSize <= 0 {
		return errors.New("config: page_size must be positive")
	}
	if c.DispatchDelay < 0 {
		return errors.New("config: dispatch_delay must not be negative")
	}
	if c.RequestTimeout < 0 {
		return errors.New("config: request_timeout must not be negative")
	}
	if c.ReportInterval <= 0 {
		return errors.New("config: report_interval must be positive")
	}
	return nil
}
