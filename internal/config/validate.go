package config

import (
	"errors"
	"fmt"
	"strings"

	"bargetrader/internal/bots"
	"bargetrader/internal/domain"
)

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}

	if c.Round.Duration <= 0 {
		return errors.New("round.duration must be positive")
	}
	if err := domain.ValidatePrice("round.initial_price", c.Round.InitialPrice); err != nil {
		return fmt.Errorf("round.initial_price must be a positive price with at most 2 decimal places, got %s", c.Round.InitialPrice)
	}
	if c.Round.Intermission < 0 {
		return errors.New("round.intermission must be >= 0")
	}
	if c.Round.ClockTick <= 0 {
		return errors.New("round.clock_tick must be positive")
	}
	if c.Round.KeepFinished < 1 {
		return errors.New("round.keep_finished must be >= 1")
	}

	if c.News.Interval <= 0 {
		return errors.New("news.interval must be positive")
	}
	if c.News.File != "" && len(c.News.Items) > 0 {
		return errors.New("news.file and news.items are mutually exclusive")
	}

	if c.AI.RequoteInterval <= 0 {
		return errors.New("ai.requote_interval must be positive")
	}
	if c.AI.WalkVolatility() < 0 {
		return errors.New("ai.volatility must be >= 0")
	}
	seen := make(map[string]bool, len(c.AI.Players))
	for i, p := range c.AI.Players {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return fmt.Errorf("ai.players[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("ai.players[%d].name %q is duplicated", i, p.Name)
		}
		seen[name] = true
		if _, err := bots.ParseStyle(p.Style); err != nil {
			return fmt.Errorf("ai.players[%d].style must be tight, wide or nervous, got %q", i, p.Style)
		}
		if p.HalfSpread.IsNegative() {
			return fmt.Errorf("ai.players[%d].half_spread must be >= 0", i)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}
