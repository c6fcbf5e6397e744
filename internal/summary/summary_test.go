package summary

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"bargetrader/internal/book"
	"bargetrader/internal/domain"
	"bargetrader/internal/eventlog"
	"bargetrader/internal/matcher"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSummarizeAfterTrade(t *testing.T) {
	log := eventlog.New(nil)
	b := book.New(log)
	m := matcher.New(matcher.Config{Book: b, Log: log})
	a, _ := b.Add("A", false, "")
	bb, _ := b.Add("B", false, "")
	if _, err := b.SetQuote(a.ID, book.SetSide(d("10")), book.SetSide(d("12"))); err != nil {
		t.Fatal(err)
	}

	calc := NewCalculator(b)
	before, err := calc.Summarize(a.ID)
	if err != nil {
		t.Fatalf("summarize before trading: %v", err)
	}
	if before.Position != 0 || !before.CashFlow.IsZero() {
		t.Errorf("expected empty summary, got %+v", before)
	}

	if _, err := m.Execute(matcher.Request{RequesterID: bb.ID, CounterpartyID: a.ID, Side: domain.Buy, ExpectedPrice: d("12")}); err != nil {
		t.Fatal(err)
	}

	sa, _ := calc.Summarize(a.ID)
	if sa.Position != -1 || !sa.CashFlow.Equal(d("12")) || sa.SellTrades != 1 || sa.BuyTrades != 0 {
		t.Errorf("A summary %+v", sa)
	}
	sb, _ := calc.Summarize(bb.ID)
	if sb.Position != 1 || !sb.CashFlow.Equal(d("-12")) || sb.BuyTrades != 1 {
		t.Errorf("B summary %+v", sb)
	}

	if _, err := calc.Summarize("ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRank(t *testing.T) {
	all := []Summary{
		{Name: "a", Position: 1, CashFlow: d("-70")},
		{Name: "b", Position: -1, CashFlow: d("72")},
		{Name: "c", Position: 0, CashFlow: d("2")},
		{Name: "d", Position: 0, CashFlow: d("-4")},
	}
	got := Rank(all, d("70"))

	want := []struct {
		name string
		rank int
		pnl  string
	}{
		{"b", 1, "2"},
		{"c", 1, "2"},
		{"a", 3, "0"},
		{"d", 4, "-4"},
	}
	for i, w := range want {
		if got[i].Name != w.name || got[i].Rank != w.rank || !got[i].PnL.Equal(d(w.pnl)) {
			t.Errorf("row %d: got %s rank %d pnl %s", i, got[i].Name, got[i].Rank, got[i].PnL)
		}
	}
}

// The book's running totals always agree with a replay of the trade log.
func TestBookMatchesTradeReplay(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		log := eventlog.New(nil)
		b := book.New(log)
		m := matcher.New(matcher.Config{Book: b, Log: log})

		n := rapid.IntRange(2, 4).Draw(t, "participants")
		ids := make([]string, n)
		for i := range ids {
			s, err := b.Add(fmt.Sprintf("p%d", i), false, "")
			if err != nil {
				t.Fatal(err)
			}
			ids[i] = s.ID
			price := decimal.New(rapid.Int64Range(100, 10000).Draw(t, "price"), -2)
			if _, err := b.SetQuote(s.ID, book.SetSide(price), book.SetSide(price.Add(d("1")))); err != nil {
				t.Fatal(err)
			}
		}

		steps := rapid.IntRange(0, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			who := rapid.IntRange(0, n-1).Draw(t, "who")
			other := rapid.IntRange(0, n-1).Draw(t, "other")
			if who == other {
				continue
			}
			q, _ := b.GetQuote(ids[other])
			req := matcher.Request{RequesterID: ids[who], CounterpartyID: ids[other], Side: domain.Buy, ExpectedPrice: q.Offer.Decimal}
			if rapid.Bool().Draw(t, "sell") {
				req.Side, req.ExpectedPrice = domain.Sell, q.Bid.Decimal
			}
			if _, err := m.Execute(req); err != nil {
				t.Fatalf("execute: %v", err)
			}
		}

		calc := NewCalculator(b)
		trades := m.Trades()
		for _, id := range ids {
			live, _ := calc.Summarize(id)
			replay := FromTrades(id, trades)
			if live.Position != replay.Position || !live.CashFlow.Equal(replay.CashFlow) ||
				live.BuyTrades != replay.BuyTrades || live.SellTrades != replay.SellTrades {
				t.Fatalf("live %+v != replay %+v", live, replay)
			}
		}
	})
}
