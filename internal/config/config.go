// Package config loads the server configuration from YAML.
package config

import (
	"time"

	"github.com/shopspring/decimal"

	"bargetrader/internal/news"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Round   RoundConfig   `yaml:"round"`
	News    NewsConfig    `yaml:"news"`
	AI      AIConfig      `yaml:"ai"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RateLimit       int           `yaml:"rate_limit"` // requests per minute per IP, negative disables
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RoundConfig struct {
	Duration     time.Duration   `yaml:"duration"`
	InitialPrice decimal.Decimal `yaml:"initial_price"`
	Intermission time.Duration   `yaml:"intermission"`
	AutoRotate   *bool           `yaml:"auto_rotate"`
	ClockTick    time.Duration   `yaml:"clock_tick"`
	KeepFinished int             `yaml:"keep_finished"` // finished rounds kept in memory
}

// Rotate reports whether a new round starts after each one ends.
func (r RoundConfig) Rotate() bool {
	return r.AutoRotate == nil || *r.AutoRotate
}

type NewsConfig struct {
	Interval time.Duration `yaml:"interval"`
	Repeat   bool          `yaml:"repeat"`
	File     string        `yaml:"file"`
	Items    []news.Item   `yaml:"items"`
}

type AIConfig struct {
	Players         []AIPlayer    `yaml:"players"`
	RequoteInterval time.Duration `yaml:"requote_interval"`
	Volatility      *float64      `yaml:"volatility"`
}

// WalkVolatility is the EV random walk step. An explicit 0 turns the walk
// off; leaving it unset uses DefaultVolatility.
func (a AIConfig) WalkVolatility() float64 {
	if a.Volatility == nil {
		return DefaultVolatility
	}
	return *a.Volatility
}

type AIPlayer struct {
	Name       string          `yaml:"name"`
	Style      string          `yaml:"style"`
	HalfSpread decimal.Decimal `yaml:"half_spread"`
}

type StoreConfig struct {
	Path    string `yaml:"path"`
	Disable bool   `yaml:"disable"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or text
	File       string `yaml:"file"`   // empty logs to stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
