// Package summary derives per-participant results from book state or from
// the trade history.
package summary

import (
	"sort"

	"github.com/shopspring/decimal"

	"bargetrader/internal/book"
	"bargetrader/internal/domain"
)

// Summary is a participant's running totals.
type Summary struct {
	ParticipantID string          `json:"participant_id"`
	Name          string          `json:"name"`
	Position      int64           `json:"position"`
	CashFlow      decimal.Decimal `json:"cash_flow"`
	BuyTrades     int             `json:"buy_trades_count"`
	SellTrades    int             `json:"sell_trades_count"`
}

// PnL marks the open position at mark and adds realised cash flow.
func (s Summary) PnL(mark decimal.Decimal) decimal.Decimal {
	return s.CashFlow.Add(mark.Mul(decimal.NewFromInt(s.Position)))
}

// Source is the participant state a Calculator reads.
type Source interface {
	Snapshot(id string) (book.Snapshot, error)
	Snapshots() []book.Snapshot
}

type Calculator struct {
	src Source
}

func NewCalculator(src Source) *Calculator {
	return &Calculator{src: src}
}

// Summarize returns the participant's current totals. It does not finalize
// anything and may be called while the round is still running.
func (c *Calculator) Summarize(id string) (Summary, error) {
	s, err := c.src.Snapshot(id)
	if err != nil {
		return Summary{}, err
	}
	return fromSnapshot(s), nil
}

func (c *Calculator) All() []Summary {
	snaps := c.src.Snapshots()
	out := make([]Summary, len(snaps))
	for i, s := range snaps {
		out[i] = fromSnapshot(s)
	}
	return out
}

func fromSnapshot(s book.Snapshot) Summary {
	return Summary{
		ParticipantID: s.ID,
		Name:          s.Name,
		Position:      s.Position,
		CashFlow:      s.CashFlow,
		BuyTrades:     s.BuyTrades,
		SellTrades:    s.SellTrades,
	}
}

// FromTrades rebuilds a participant's totals from the trade history.
func FromTrades(id string, trades []domain.Trade) Summary {
	s := Summary{ParticipantID: id}
	for _, t := range trades {
		switch id {
		case t.BuyerID:
			s.Name = t.BuyerName
			s.Position += t.Quantity
			s.CashFlow = s.CashFlow.Sub(t.Notional())
			s.BuyTrades++
		case t.SellerID:
			s.Name = t.SellerName
			s.Position -= t.Quantity
			s.CashFlow = s.CashFlow.Add(t.Notional())
			s.SellTrades++
		}
	}
	return s
}

// Standing is one row of a ranked results table.
type Standing struct {
	Summary
	PnL  decimal.Decimal `json:"pnl"`
	Rank int             `json:"rank"`
}

// Rank orders summaries by PnL at mark, best first. Ties share a rank.
func Rank(all []Summary, mark decimal.Decimal) []Standing {
	out := make([]Standing, len(all))
	for i, s := range all {
		out[i] = Standing{Summary: s, PnL: s.PnL(mark)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].PnL.Cmp(out[j].PnL); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		if i > 0 && out[i].PnL.Equal(out[i-1].PnL) {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out
}
