// Package config loads service configuration from an optional YAML file,
// an optional .env file and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server  Server  `yaml:"server"`
	Feed    Feed    `yaml:"feed"`
	Refresh Refresh `yaml:"refresh"`
	Logging Logging `yaml:"logging"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Addr string `yaml:"addr"`
	// ManualRefreshPerMinute limits POST /api/refresh.
	ManualRefreshPerMinute int `yaml:"manual_refresh_per_minute"`
}

// Feed describes the upstream snapshot source.
type Feed struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	MinInterval     time.Duration `yaml:"min_interval"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// Refresh controls the periodic refresh job.
type Refresh struct {
	Schedule     string `yaml:"schedule"`
	OnStart      bool   `yaml:"on_start"`
	HoldingsDiff bool   `yaml:"holdings_diff"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:                   ":8080",
			ManualRefreshPerMinute: 6,
		},
		Feed: Feed{
			URL:             "http://localhost:3000/etf_data.json",
			Timeout:         15 * time.Second,
			MinInterval:     2 * time.Second,
			MaxBodyBytes:    8 << 20,
			BreakerFailures: 3,
			BreakerTimeout:  time.Minute,
		},
		Refresh: Refresh{
			Schedule:     "@every 30m",
			OnStart:      true,
			HoldingsDiff: true,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads the YAML file at path (skipped when path is empty), then applies
// .env and environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ETF_FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("ETF_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ETF_REFRESH_SCHEDULE"); v != "" {
		c.Refresh.Schedule = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse LOG_PRETTY: %w", err)
		}
		c.Logging.Pretty = b
	}
	return nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Feed.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("feed.url must be an http(s) url, got %q", c.Feed.URL))
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ManualRefreshPerMinute < 0 {
		errs = append(errs, errors.New("server.manual_refresh_per_minute must not be negative"))
	}
	if c.Feed.Timeout <= 0 {
		errs = append(errs, errors.New("feed.timeout must be positive"))
	}
	if c.Refresh.Schedule != "" {
		if _, err := cron.ParseStandard(c.Refresh.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("refresh.schedule: %w", err))
		}
	}
	return errors.Join(errs...)
}
