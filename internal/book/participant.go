package book

import (
	"sync"

	"github.com/shopspring/decimal"

	"bargetrader/internal/domain"
)

// Participant is one trader in a round. Its quote and running totals are
// guarded by its own mutex; the matcher reaches them through Book.WithPair.
type Participant struct {
	ID    string
	Name  string
	AI    bool
	Style string

	mu       sync.Mutex
	held     bool
	bid      decimal.NullDecimal
	offer    decimal.NullDecimal
	position int64
	cashFlow decimal.Decimal
	buys     int
	sells    int
	version  uint64
}

// Snapshot is a point-in-time copy of a participant.
type Snapshot struct {
	ID         string              `json:"participant_id"`
	Name       string              `json:"name"`
	AI         bool                `json:"ai"`
	Style      string              `json:"style,omitempty"`
	Bid        decimal.NullDecimal `json:"bid"`
	Offer      decimal.NullDecimal `json:"offer"`
	Position   int64               `json:"position"`
	CashFlow   decimal.Decimal     `json:"cash_flow"`
	BuyTrades  int                 `json:"buy_trades_count"`
	SellTrades int                 `json:"sell_trades_count"`
	Version    uint64              `json:"version"`
}

// Quote is a participant's standing two-sided market.
type Quote struct {
	ParticipantID string              `json:"participant_id"`
	Name          string              `json:"name"`
	AI            bool                `json:"ai"`
	Bid           decimal.NullDecimal `json:"bid"`
	Offer         decimal.NullDecimal `json:"offer"`
}

func (p *Participant) snapshotLocked() Snapshot {
	return Snapshot{
		ID:         p.ID,
		Name:       p.Name,
		AI:         p.AI,
		Style:      p.Style,
		Bid:        p.bid,
		Offer:      p.offer,
		Position:   p.position,
		CashFlow:   p.cashFlow,
		BuyTrades:  p.buys,
		SellTrades: p.sells,
		Version:    p.version,
	}
}

func (p *Participant) quoteLocked() Quote {
	return Quote{ParticipantID: p.ID, Name: p.Name, AI: p.AI, Bid: p.bid, Offer: p.offer}
}

// The methods below are only valid inside a Book.WithPair callback.

// QuoteFor returns the side a counterparty trades against: the offer when the
// requester buys, the bid when the requester sells.
func (p *Participant) QuoteFor(requester domain.Side) decimal.NullDecimal {
	if requester == domain.Buy {
		return p.offer
	}
	return p.bid
}

// Held reports whether the caller's pair lock covers p.
func (p *Participant) Held() bool {
	return p.held
}

func (p *Participant) Version() uint64 {
	return p.version
}

func (p *Participant) Snapshot() Snapshot {
	return p.snapshotLocked()
}

// Fill applies one side of a trade of qty units at price. The buyer's
// position rises and cash flow falls; the seller's move the other way.
func (p *Participant) Fill(side domain.Side, price decimal.Decimal, qty int64) error {
	if !p.held {
		return domain.Conflictf("participant %s mutated outside its pair lock", p.ID)
	}
	notional := price.Mul(decimal.NewFromInt(qty))
	switch side {
	case domain.Buy:
		p.position += qty
		p.cashFlow = p.cashFlow.Sub(notional)
		p.buys++
	case domain.Sell:
		p.position -= qty
		p.cashFlow = p.cashFlow.Add(notional)
		p.sells++
	}
	p.version++
	return nil
}
