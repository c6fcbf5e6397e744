package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Default values for optional configuration fields.
const (
	DefaultAddr            = ":8080"
	DefaultRateLimit       = 600
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRoundDuration   = 3 * time.Minute
	DefaultInitialPrice    = "70.00"
	DefaultIntermission    = 10 * time.Second
	DefaultClockTick       = 250 * time.Millisecond
	DefaultKeepFinished    = 20
	DefaultNewsInterval    = 20 * time.Second
	DefaultRequoteInterval = 5 * time.Second
	DefaultVolatility      = 0.05
	DefaultStorePath       = "bargetrader.db"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultLogMaxSizeMB    = 50
	DefaultLogMaxBackups   = 3
	DefaultLogMaxAgeDays   = 28
)

// DefaultAIPlayers are the counterparties seeded into every round.
func DefaultAIPlayers() []AIPlayer {
	return []AIPlayer{
		{Name: "ai_tight", Style: "tight"},
		{Name: "ai_wide", Style: "wide"},
	}
}

func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = DefaultRateLimit
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Round.Duration == 0 {
		c.Round.Duration = DefaultRoundDuration
	}
	if c.Round.InitialPrice.IsZero() {
		c.Round.InitialPrice = decimal.RequireFromString(DefaultInitialPrice)
	}
	if c.Round.Intermission == 0 {
		c.Round.Intermission = DefaultIntermission
	}
	if c.Round.ClockTick == 0 {
		c.Round.ClockTick = DefaultClockTick
	}
	if c.Round.KeepFinished == 0 {
		c.Round.KeepFinished = DefaultKeepFinished
	}

	if c.News.Interval == 0 {
		c.News.Interval = DefaultNewsInterval
	}

	if c.AI.Players == nil {
		c.AI.Players = DefaultAIPlayers()
	}
	if c.AI.RequoteInterval == 0 {
		c.AI.RequoteInterval = DefaultRequoteInterval
	}

	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
}
