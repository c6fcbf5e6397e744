package book

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"bargetrader/internal/domain"
	"bargetrader/internal/eventlog"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustAdd(t *testing.T, b *Book, name string) Snapshot {
	t.Helper()
	s, err := b.Add(name, false, "")
	if err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return s
}

func TestAddValidatesNames(t *testing.T) {
	b := New(nil)
	mustAdd(t, b, "alice")

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"too long", strings.Repeat("x", MaxNameLength+1)},
		{"duplicate", "alice"},
		{"duplicate case", "ALICE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Add(tt.input, false, ""); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 participant, got %d", b.Len())
	}
}

func TestSetQuoteKeepSetClear(t *testing.T) {
	log := eventlog.New(nil)
	b := New(log)
	a := mustAdd(t, b, "a")

	q, err := b.SetQuote(a.ID, SetSide(d("10")), SetSide(d("12")))
	if err != nil {
		t.Fatalf("set quote: %v", err)
	}
	if !q.Bid.Decimal.Equal(d("10")) || !q.Offer.Decimal.Equal(d("12")) {
		t.Fatalf("unexpected quote %+v", q)
	}

	q, err = b.SetQuote(a.ID, KeepSide(), SetSide(d("11.50")))
	if err != nil {
		t.Fatalf("update offer: %v", err)
	}
	if !q.Bid.Valid || !q.Bid.Decimal.Equal(d("10")) {
		t.Errorf("kept bid changed: %+v", q.Bid)
	}

	q, err = b.SetQuote(a.ID, ClearSide(), KeepSide())
	if err != nil {
		t.Fatalf("clear bid: %v", err)
	}
	if q.Bid.Valid {
		t.Errorf("expected bid cleared, got %s", q.Bid.Decimal)
	}
	if !q.Offer.Decimal.Equal(d("11.50")) {
		t.Errorf("offer changed: %s", q.Offer.Decimal)
	}

	if log.HighWater() != 3 {
		t.Errorf("expected 3 quote events, got %d", log.HighWater())
	}
}

func TestSetQuoteRejectsInvalidWithoutMutation(t *testing.T) {
	b := New(nil)
	a := mustAdd(t, b, "a")
	if _, err := b.SetQuote(a.ID, SetSide(d("10")), SetSide(d("12"))); err != nil {
		t.Fatalf("set quote: %v", err)
	}

	_, err := b.SetQuote(a.ID, SetSide(d("9")), SetSide(d("-1")))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	q, _ := b.GetQuote(a.ID)
	if !q.Bid.Decimal.Equal(d("10")) {
		t.Errorf("bid changed despite rejection: %s", q.Bid.Decimal)
	}

	_, err = b.SetQuote(a.ID, SetSide(d("0")), SetSide(d("1.234")))
	if msgs := domain.Messages(err); len(msgs) != 2 {
		t.Errorf("expected a message per bad side, got %v", msgs)
	}
}

func TestUnknownParticipant(t *testing.T) {
	b := New(nil)
	if _, err := b.SetQuote("nope", SetSide(d("1")), KeepSide()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("set: expected not found, got %v", err)
	}
	if _, err := b.GetQuote("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get: expected not found, got %v", err)
	}
	if _, err := b.Snapshot("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("snapshot: expected not found, got %v", err)
	}
}

func TestListQuotesSortedByName(t *testing.T) {
	b := New(nil)
	for _, n := range []string{"carol", "alice", "bob"} {
		mustAdd(t, b, n)
	}
	qs := b.ListQuotes()
	if len(qs) != 3 || qs[0].Name != "alice" || qs[1].Name != "bob" || qs[2].Name != "carol" {
		t.Errorf("unexpected order %+v", qs)
	}
}

func TestFillOutsidePairIsConflict(t *testing.T) {
	b := New(nil)
	a := mustAdd(t, b, "a")
	b.mu.RLock()
	p := b.participants[a.ID]
	b.mu.RUnlock()

	if p.Held() {
		t.Error("participant reports held outside a pair lock")
	}
	if err := p.Fill(domain.Buy, d("1"), 1); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("expected concurrency conflict, got %v", err)
	}
	if snap, _ := b.Snapshot(a.ID); snap.Position != 0 || snap.Version != 0 {
		t.Errorf("refused fill mutated the participant: %+v", snap)
	}

	c := mustAdd(t, b, "c")
	err := b.WithPair(a.ID, c.ID, func(first, second *Participant) error {
		if !first.Held() || !second.Held() {
			t.Error("pair not reported held inside WithPair")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Held() {
		t.Error("held flag left set after WithPair")
	}
}

func TestWithPairSelf(t *testing.T) {
	b := New(nil)
	a := mustAdd(t, b, "a")
	err := b.WithPair(a.ID, a.ID, func(_, _ *Participant) error { return nil })
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCloseWaitsForFillInFlight(t *testing.T) {
	b := New(eventlog.New(nil))
	a, c := mustAdd(t, b, "a"), mustAdd(t, b, "c")

	entered := make(chan struct{})
	release := make(chan struct{})
	fillErr := make(chan error, 1)
	go func() {
		fillErr <- b.WithPair(a.ID, c.ID, func(buyer, seller *Participant) error {
			close(entered)
			<-release
			if err := buyer.Fill(domain.Buy, d("12"), 1); err != nil {
				return err
			}
			return seller.Fill(domain.Sell, d("12"), 1)
		})
	}()
	<-entered

	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a fill held its pair lock")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-closed

	if err := <-fillErr; err != nil {
		t.Fatalf("fill admitted before close failed: %v", err)
	}
	snap, _ := b.Snapshot(a.ID)
	if snap.Position != 1 {
		t.Errorf("expected the in-flight fill applied, got position %d", snap.Position)
	}
}

func TestClosedBookRefusesChanges(t *testing.T) {
	b := New(eventlog.New(nil))
	a, c := mustAdd(t, b, "a"), mustAdd(t, b, "c")
	if _, err := b.SetQuote(a.ID, SetSide(d("10")), SetSide(d("12"))); err != nil {
		t.Fatal(err)
	}
	b.Close()
	b.Close()

	if !b.Closed() {
		t.Error("expected book closed")
	}
	if _, err := b.SetQuote(a.ID, ClearSide(), KeepSide()); !errors.Is(err, domain.ErrRoundClosed) {
		t.Errorf("expected round closed, got %v", err)
	}
	called := false
	err := b.WithPair(a.ID, c.ID, func(_, _ *Participant) error {
		called = true
		return nil
	})
	if !errors.Is(err, domain.ErrRoundClosed) || called {
		t.Errorf("expected round closed without running fn, got %v (called=%v)", err, called)
	}
	q, _ := b.GetQuote(a.ID)
	if !q.Bid.Valid || !q.Bid.Decimal.Equal(d("10")) {
		t.Errorf("quote changed after close: %+v", q)
	}
}

func TestConcurrentQuotesDifferentParticipants(t *testing.T) {
	b := New(eventlog.New(nil))
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = mustAdd(t, b, string(rune('a'+i))).ID
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			for n := 1; n <= 100; n++ {
				price := decimal.NewFromInt(int64(i*1000 + n))
				if _, err := b.SetQuote(id, SetSide(price), SetSide(price.Add(decimal.NewFromInt(1)))); err != nil {
					t.Errorf("set quote: %v", err)
					return
				}
			}
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		q, _ := b.GetQuote(id)
		want := decimal.NewFromInt(int64(i*1000 + 100))
		if !q.Bid.Decimal.Equal(want) {
			t.Errorf("participant %d: expected last bid %s, got %s", i, want, q.Bid.Decimal)
		}
	}
}

func drawChange(t *rapid.T, label string) SideChange {
	switch rapid.IntRange(0, 2).Draw(t, label+"_action") {
	case 0:
		return KeepSide()
	case 1:
		return ClearSide()
	default:
		cents := rapid.Int64Range(1, 9_999_999_999).Draw(t, label+"_cents")
		return SetSide(decimal.New(cents, -2))
	}
}

func TestSetThenGetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New(nil)
		p, err := b.Add("p", false, "")
		if err != nil {
			t.Fatal(err)
		}
		var bid, offer decimal.NullDecimal

		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			bc, oc := drawChange(t, "bid"), drawChange(t, "offer")
			q, err := b.SetQuote(p.ID, bc, oc)
			if err != nil {
				t.Fatalf("valid change rejected: %v", err)
			}
			bid, offer = bc.apply(bid), oc.apply(offer)

			got, _ := b.GetQuote(p.ID)
			for _, c := range []struct {
				name      string
				want, got decimal.NullDecimal
			}{
				{"bid", bid, got.Bid},
				{"offer", offer, got.Offer},
				{"returned bid", bid, q.Bid},
				{"returned offer", offer, q.Offer},
			} {
				if c.want.Valid != c.got.Valid || (c.want.Valid && !c.want.Decimal.Equal(c.got.Decimal)) {
					t.Fatalf("%s: expected %v, got %v", c.name, c.want, c.got)
				}
			}
		}
	})
}
