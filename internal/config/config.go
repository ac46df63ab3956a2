// Package config defines process configuration and its loading.
//
// Conventions:
// - Flat koanf keys so that env vars map one to one (MINIRANK_FEED_TOKEN -> feed_token).
// - New() returns defaults; Load(ctx) layers a YAML file and the environment on top.
package config

import (
	"fmt"
	"time"
	_ "time/tzdata" // hosts without zoneinfo still resolve Timezone
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Timezone decides which calendar day "today" is for the daily job.
	Timezone string `koanf:"timezone"`

	// FeedURL is the leaderboard host and FeedToken its session cookie value.
	FeedURL     string        `koanf:"feed_url"`
	FeedToken   string        `koanf:"feed_token"`
	FeedTimeout time.Duration `koanf:"feed_timeout"`

	// ResultsStore is one of sqlite, postgres, memory.
	ResultsStore string `koanf:"results_store"`

	// RatingsStore is one of sqlite, postgres, redis, memory.
	RatingsStore string `koanf:"ratings_store"`

	SQLitePath       string `koanf:"sqlite_path"`
	PostgresDSN      string `koanf:"postgres_dsn"`
	PostgresMaxConns int32  `koanf:"postgres_max_conns"`
	RedisAddr        string `koanf:"redis_addr"`
	RedisPassword    string `koanf:"redis_password"`
	RedisDB          int    `koanf:"redis_db"`
	RedisKeyPrefix   string `koanf:"redis_key_prefix"`

	// PushgatewayURL enables pushing batch metrics when set.
	PushgatewayURL string `koanf:"pushgateway_url"`
	JobName        string `koanf:"job_name"`

	// Rating model parameters.
	RatingMu              float64 `koanf:"rating_mu"`
	RatingSigma           float64 `koanf:"rating_sigma"`
	RatingBeta            float64 `koanf:"rating_beta"`
	RatingTau             float64 `koanf:"rating_tau"`
	RatingDrawProbability float64 `koanf:"rating_draw_probability"`
}

// New creates a Config with defaults.
func New() *Config {
	const sigma = 25.0 / 3
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Timezone:              "America/Denver",
		FeedURL:               "https://www.nytimes.com",
		FeedTimeout:           15 * time.Second,
		ResultsStore:          "sqlite",
		RatingsStore:          "sqlite",
		SQLitePath:            "minirank.db",
		PostgresMaxConns:      4,
		RedisKeyPrefix:        "minirank",
		JobName:               "minirank",
		RatingMu:              25,
		RatingSigma:           sigma,
		RatingBeta:            sigma / 2,
		RatingTau:             sigma / 100,
		RatingDrawProbability: 0.10,
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.ResultsStore {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("%w: results_store %q", ErrInvalidConfig, c.ResultsStore)
	}
	switch c.RatingsStore {
	case "sqlite", "postgres", "redis", "memory":
	default:
		return fmt.Errorf("%w: ratings_store %q", ErrInvalidConfig, c.RatingsStore)
	}
	uses := func(backend string) bool { return c.ResultsStore == backend || c.RatingsStore == backend }
	if uses("sqlite") && c.SQLitePath == "" {
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	}
	if uses("postgres") && c.PostgresDSN == "" {
		return fmt.Errorf("%w: postgres_dsn must not be empty", ErrInvalidConfig)
	}
	if uses("redis") && c.RedisAddr == "" {
		return fmt.Errorf("%w: redis_addr must not be empty", ErrInvalidConfig)
	}
	if c.FeedURL == "" {
		return fmt.Errorf("%w: feed_url must not be empty", ErrInvalidConfig)
	}
	if c.RatingSigma <= 0 || c.RatingBeta <= 0 || c.RatingTau < 0 {
		return fmt.Errorf("%w: rating sigma and beta must be positive, tau non-negative", ErrInvalidConfig)
	}
	if c.RatingDrawProbability < 0 || c.RatingDrawProbability >= 1 {
		return fmt.Errorf("%w: rating_draw_probability must be in [0, 1)", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
