package eventlog

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"bargetrader/internal/domain"
)

func fixedNow() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	l := New(fixedNow)

	s1 := l.Append(NewsEvent(domain.News{Content: "first"}))
	s2 := l.Append(TradeEvent(domain.Trade{ID: "t1", Price: decimal.NewFromInt(12), Quantity: 1}))
	s3 := l.Append(QuoteEvent(QuoteUpdate{ParticipantID: "p1"}))

	if s1 != 1 || s2 != 2 || s3 != 3 {
		t.Fatalf("expected 1,2,3 got %d,%d,%d", s1, s2, s3)
	}
	if l.HighWater() != 3 || l.Len() != 3 {
		t.Errorf("expected high water 3 and len 3, got %d and %d", l.HighWater(), l.Len())
	}

	events, cursor := l.ReadSince(0)
	if len(events) != 3 || cursor != 3 {
		t.Fatalf("expected 3 events and cursor 3, got %d and %d", len(events), cursor)
	}
	if events[0].Type != TypeNews || events[1].Type != TypeTrade || events[2].Type != TypeQuote {
		t.Errorf("unexpected types %v %v %v", events[0].Type, events[1].Type, events[2].Type)
	}
	if !events[0].News.Timestamp.Equal(fixedNow()) {
		t.Errorf("news timestamp not stamped: %v", events[0].News.Timestamp)
	}
}

func TestReadSinceAtHighWaterIsEmpty(t *testing.T) {
	l := New(fixedNow)
	if events, cursor := l.ReadSince(0); len(events) != 0 || cursor != 0 {
		t.Fatalf("empty log: got %d events cursor %d", len(events), cursor)
	}

	l.Append(NewsEvent(domain.News{Content: "a"}))
	l.Append(NewsEvent(domain.News{Content: "b"}))

	if events, cursor := l.ReadSince(2); len(events) != 0 || cursor != 2 {
		t.Errorf("at high water: got %d events cursor %d", len(events), cursor)
	}
	if events, cursor := l.ReadSince(99); len(events) != 0 || cursor != 2 {
		t.Errorf("past high water: got %d events cursor %d", len(events), cursor)
	}
}

func TestConcurrentAppendsGetDistinctSeq(t *testing.T) {
	l := New(nil)
	const writers, perWriter = 8, 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				l.Append(NewsEvent(domain.News{Content: "x"}))
			}
		}()
	}
	wg.Wait()

	events, cursor := l.ReadSince(0)
	if len(events) != writers*perWriter || cursor != uint64(writers*perWriter) {
		t.Fatalf("expected %d events, got %d (cursor %d)", writers*perWriter, len(events), cursor)
	}
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d", i, ev.Seq)
		}
	}
}

func TestSubscribeSeesAppendsInOrder(t *testing.T) {
	l := New(fixedNow)
	var seen []uint64
	cancel := l.Subscribe(func(ev Event) { seen = append(seen, ev.Seq) })

	l.Append(NewsEvent(domain.News{Content: "a"}))
	l.Append(NewsEvent(domain.News{Content: "b"}))
	cancel()
	l.Append(NewsEvent(domain.News{Content: "c"}))

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("unexpected notifications %v", seen)
	}
}

// Reading from c1 and then from the returned cursor is a disjoint,
// order-preserving split of reading from c1 to the final state.
func TestReadSinceContinuation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := New(fixedNow)
		first := rapid.IntRange(0, 30).Draw(t, "first")
		second := rapid.IntRange(0, 30).Draw(t, "second")
		for i := 0; i < first; i++ {
			l.Append(NewsEvent(domain.News{Content: "pre"}))
		}
		c1 := rapid.Uint64Range(0, uint64(first)).Draw(t, "c1")

		head, c2 := l.ReadSince(c1)
		again, c2again := l.ReadSince(c1)
		if len(head) != len(again) || c2 != c2again {
			t.Fatalf("read_since not idempotent: %d/%d vs %d/%d", len(head), c2, len(again), c2again)
		}

		for i := 0; i < second; i++ {
			l.Append(TradeEvent(domain.Trade{ID: "t"}))
		}

		tail, _ := l.ReadSince(c2)
		all, _ := l.ReadSince(c1)

		joined := append(append([]Event{}, head...), tail...)
		if len(joined) != len(all) {
			t.Fatalf("continuation has %d events, full read has %d", len(joined), len(all))
		}
		for i := range all {
			if joined[i].Seq != all[i].Seq {
				t.Fatalf("position %d: seq %d vs %d", i, joined[i].Seq, all[i].Seq)
			}
			if i > 0 && joined[i].Seq <= joined[i-1].Seq {
				t.Fatalf("sequence not increasing at %d", i)
			}
		}
	})
}
