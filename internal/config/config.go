package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	picshttp "github.com/ligustah/picslurp/internal/http"
	"github.com/ligustah/picslurp/internal/progress"
)

// Config defines configuration for the picslurp CLI.
type Config struct {
	Input          string                `yaml:"input"`
	OutputDir      string                `yaml:"output_dir"`
	Bucket         string                `yaml:"bucket"`
	PoolSize       int                   `yaml:"pool_size"`
	Workers        int                   `yaml:"workers"`
	Delay          time.Duration         `yaml:"delay"`
	Timeout        time.Duration         `yaml:"timeout"`
	MaxRetries     int                   `yaml:"max_retries"`
	FilenameLength int                   `yaml:"filename_length"`
	Extension      string                `yaml:"extension"`
	MaxBodySize    int64                 `yaml:"max_body_size"`
	LogLevel       string                `yaml:"log_level"`
	Progress       bool                  `yaml:"progress"`
	Headers        []picshttp.HeaderRule `yaml:"headers"`
	DefaultHeaders map[string]string     `yaml:"default_headers"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Input:          "data.txt",
		OutputDir:      "pics",
		PoolSize:       512,
		Workers:        16,
		Delay:          250 * time.Millisecond,
		Timeout:        8 * time.Second,
		MaxRetries:     5,
		FilenameLength: 16,
		Extension:      ".jpg",
		MaxBodySize:    32 * 1024 * 1024, // 32MB
		LogLevel:       "warning",
		DefaultHeaders: map[string]string{"User-Agent": picshttp.DefaultUserAgent},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and sizes.
type yamlConfig struct {
	Input          string                `yaml:"input"`
	OutputDir      string                `yaml:"output_dir"`
	Bucket         string                `yaml:"bucket"`
	PoolSize       int                   `yaml:"pool_size"`
	Workers        int                   `yaml:"workers"`
	Delay          string                `yaml:"delay"`
	Timeout        string                `yaml:"timeout"`
	MaxRetries     int                   `yaml:"max_retries"`
	FilenameLength int                   `yaml:"filename_length"`
	Extension      string                `yaml:"extension"`
	MaxBodySize    string                `yaml:"max_body_size"`
	LogLevel       string                `yaml:"log_level"`
	Progress       bool                  `yaml:"progress"`
	Headers        []picshttp.HeaderRule `yaml:"headers"`
	DefaultHeaders map[string]string     `yaml:"default_headers"`
}

// LoadFromFile loads configuration from a YAML file.
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

	if yc.Input != "" {
		cfg.Input = yc.Input
	}
	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.Bucket != "" {
		cfg.Bucket = yc.Bucket
	}
	if yc.PoolSize != 0 {
		cfg.PoolSize = yc.PoolSize
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.Delay != "" {
		d, err := time.ParseDuration(yc.Delay)
		if err != nil {
			return Config{}, fmt.Errorf("parse delay: %w", err)
		}
		cfg.Delay = d
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.MaxRetries != 0 {
		cfg.MaxRetries = yc.MaxRetries
	}
	if yc.FilenameLength != 0 {
		cfg.FilenameLength = yc.FilenameLength
	}
	if yc.Extension != "" {
		cfg.Extension = yc.Extension
	}
	if yc.MaxBodySize != "" {
		size, err := progress.ParseBytes(yc.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("parse max_body_size: %w", err)
		}
		cfg.MaxBodySize = size
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	cfg.Progress = yc.Progress
	if len(yc.Headers) > 0 {
		cfg.Headers = yc.Headers
	}
	if yc.DefaultHeaders != nil {
		cfg.DefaultHeaders = yc.DefaultHeaders
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the PICSLURP_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PICSLURP_INPUT"); v != "" {
		c.Input = v
	}
	if v := os.Getenv("PICSLURP_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("PICSLURP_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("PICSLURP_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PICSLURP_POOL_SIZE: %w", err)
		}
		c.PoolSize = n
	}
	if v := os.Getenv("PICSLURP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PICSLURP_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("PICSLURP_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PICSLURP_DELAY: %w", err)
		}
		c.Delay = d
	}
	if v := os.Getenv("PICSLURP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PICSLURP_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("PICSLURP_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PICSLURP_MAX_RETRIES: %w", err)
		}
		c.MaxRetries = n
	}
	if v := os.Getenv("PICSLURP_MAX_BODY_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse PICSLURP_MAX_BODY_SIZE: %w", err)
		}
		c.MaxBodySize = size
	}
	if v := os.Getenv("PICSLURP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PICSLURP_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.New("config: input is required")
	}
	if c.OutputDir == "" && c.Bucket == "" {
		return errors.New("config: output_dir or bucket is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.PoolSize <= 0 {
		return errors.New("config: pool_size must be positive")
	}
	if c.MaxRetries <= 0 {
		return errors.New("config: max_retries must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.Delay < 0 {
		return errors.New("config: delay must not be negative")
	}
	if c.FilenameLength <= 0 || c.FilenameLength > 56 {
		return errors.New("config: filename_length must be between 1 and 56")
	}
	if c.MaxBodySize < 0 {
		return errors.New("config: max_body_size must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for i, h := range c.Headers {
		if strings.TrimSpace(h.Prefix) == "" {
			return fmt.Errorf("config: headers[%d]: prefix is required", i)
		}
	}
	return nil
}

// HeaderRules returns the per-origin header table in match order.
func (c *Config) HeaderRules() picshttp.HeaderRules {
	return picshttp.HeaderRules{
		Rules:   c.Headers,
		Default: c.DefaultHeaders,
	}
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Input != "" {
		c.Input = override.Input
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.PoolSize != 0 {
		c.PoolSize = override.PoolSize
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Delay != 0 {
		c.Delay = override.Delay
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.MaxRetries != 0 {
		c.MaxRetries = override.MaxRetries
	}
	if override.FilenameLength != 0 {
		c.FilenameLength = override.FilenameLength
	}
	if override.Extension != "" {
		c.Extension = override.Extension
	}
	if override.MaxBodySize != 0 {
		c.MaxBodySize = override.MaxBodySize
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if len(override.Headers) > 0 {
		c.Headers = override.Headers
	}
	if override.DefaultHeaders != nil {
		c.DefaultHeaders = override.DefaultHeaders
	}
	return c
}
