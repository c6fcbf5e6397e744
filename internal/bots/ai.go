// Package bots runs the AI counterparties that keep a market quoted in
// every round.
package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bargetrader/internal/book"
	"bargetrader/internal/domain"
	"bargetrader/internal/eventlog"
)

// Style selects an AI's quoting behaviour.
type Style string

const (
	StyleTight   Style = "tight"
	StyleWide    Style = "wide"
	StyleNervous Style = "nervous"
)

func ParseStyle(s string) (Style, error) {
	switch Style(s) {
	case StyleTight, StyleWide, StyleNervous:
		return Style(s), nil
	default:
		return "", fmt.Errorf("unknown AI style %q", s)
	}
}

// Config configures one AI counterparty.
type Config struct {
	Name            string
	Style           Style
	HalfSpread      decimal.Decimal // distance from EV to each side
	InventorySkew   decimal.Decimal // quote shift per unit of position
	Volatility      float64         // EV random walk step, in price units
	WidenStep       decimal.Decimal // nervous only: extra half-spread per fill
	RequoteInterval time.Duration
}

// DefaultConfig returns the settings for a style.
func DefaultConfig(name string, style Style) Config {
	cfg := Config{
		Name:            name,
		Style:           style,
		HalfSpread:      decimal.RequireFromString("0.50"),
		InventorySkew:   decimal.RequireFromString("0.10"),
		Volatility:      0.05,
		RequoteInterval: 5 * time.Second,
	}
	switch style {
	case StyleWide:
		cfg.HalfSpread = decimal.RequireFromString("1.50")
	case StyleNervous:
		cfg.WidenStep = decimal.RequireFromString("0.25")
	}
	return cfg
}

// Quoter is the part of the book an AI needs.
type Quoter interface {
	SetQuote(id string, bid, offer book.SideChange) (book.Quote, error)
	Snapshot(id string) (book.Snapshot, error)
}

// AI tracks an expected value for the traded asset and keeps a two-sided
// quote around it in the book.
type AI struct {
	cfg    Config
	id     string
	quoter Quoter
	logger *slog.Logger

	mu    sync.Mutex
	ev    decimal.Decimal
	widen decimal.Decimal
	rng   *rand.Rand
}

func NewAI(cfg Config, participantID string, initialEV decimal.Decimal, quoter Quoter, logger *slog.Logger) *AI {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequoteInterval <= 0 {
		cfg.RequoteInterval = 5 * time.Second
	}
	return &AI{
		cfg:    cfg,
		id:     participantID,
		quoter: quoter,
		logger: logger.With("ai", cfg.Name),
		ev:     clampEV(initialEV),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (a *AI) ID() string   { return a.id }
func (a *AI) Name() string { return a.cfg.Name }

// EV is the current expected value.
func (a *AI) EV() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ev
}

// Run quotes immediately, then requotes on news, on fills against this AI
// and every RequoteInterval until ctx is cancelled.
func (a *AI) Run(ctx context.Context, log *eventlog.Log) {
	events := make(chan eventlog.Event, 64)
	cancel := log.Subscribe(func(ev eventlog.Event) {
		if !a.relevant(ev) {
			return
		}
		select {
		case events <- ev:
		default:
		}
	})
	defer cancel()

	a.requote()

	ticker := time.NewTicker(a.cfg.RequoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			a.handle(ev)
			a.requote()
		case <-ticker.C:
			a.drift()
			a.requote()
		}
	}
}

func (a *AI) relevant(ev eventlog.Event) bool {
	switch ev.Type {
	case eventlog.TypeNews:
		return true
	case eventlog.TypeTrade:
		return ev.Trade.BuyerID == a.id || ev.Trade.SellerID == a.id
	default:
		return false
	}
}

func (a *AI) handle(ev eventlog.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Type {
	case eventlog.TypeNews:
		a.ev = clampEV(a.ev.Add(ev.News.Shift()))
	case eventlog.TypeTrade:
		if a.cfg.Style == StyleNervous {
			a.widen = a.widen.Add(a.cfg.WidenStep)
		}
	}
}

// drift applies one random walk step and lets a nervous AI calm down.
func (a *AI) drift() {
	a.mu.Lock()
	defer a.mu.Unlock()

	step := decimal.NewFromFloat(a.cfg.Volatility * a.rng.NormFloat64())
	a.ev = clampEV(a.ev.Add(step))
	if a.widen.IsPositive() {
		a.widen = decimal.Max(decimal.Zero, a.widen.Sub(a.cfg.WidenStep.Div(decimal.NewFromInt(2))))
	}
}

func (a *AI) requote() {
	snap, err := a.quoter.Snapshot(a.id)
	if err != nil {
		a.logger.Error("failed to read AI position", "error", err)
		return
	}

	a.mu.Lock()
	bid, offer := Quotes(a.ev, a.cfg.HalfSpread.Add(a.widen), a.cfg.InventorySkew, snap.Position)
	a.mu.Unlock()

	if _, err := a.quoter.SetQuote(a.id, book.SetSide(bid), book.SetSide(offer)); err != nil {
		if errors.Is(err, domain.ErrRoundClosed) {
			return
		}
		a.logger.Error("AI requote failed", "error", err)
		return
	}
	a.logger.Debug("AI requoted", "bid", bid.StringFixed(2), "offer", offer.StringFixed(2))
}
