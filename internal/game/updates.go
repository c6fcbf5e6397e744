package game

import (
	"slices"
	"time"

	"bargetrader/internal/domain"
	"bargetrader/internal/eventlog"
)

// Updates is what changed in a round since a poller's cursor. Each Has*
// flag marks whether the matching field carries a value; an unset flag
// means no change in that dimension.
type Updates struct {
	Cursor    uint64
	State     State
	Remaining time.Duration

	HasMessage bool
	Message    domain.News // latest headline since the cursor

	HasTrade    bool
	LatestTrade domain.Trade
	Trades      []domain.Trade // every trade since the cursor, oldest first

	HasAIQuote bool
	AIQuote    eventlog.QuoteUpdate // latest AI quote change since the cursor

	// Quotes holds the latest change per participant since the cursor, in
	// the order those changes were logged.
	Quotes []eventlog.QuoteUpdate
}

// PollUpdates reads the event log from cursor. It has no side effects
// beyond observing the clock, so it is safe to call at any cadence.
func (r *Round) PollUpdates(cursor uint64) Updates {
	remaining := r.clock.Remaining()
	events, next := r.log.ReadSince(cursor)

	u := Updates{
		Cursor:    next,
		State:     r.clock.State(),
		Remaining: remaining,
	}

	var quotes []eventlog.QuoteUpdate
	for _, ev := range events {
		switch ev.Type {
		case eventlog.TypeNews:
			u.HasMessage = true
			u.Message = *ev.News
		case eventlog.TypeTrade:
			u.HasTrade = true
			u.LatestTrade = *ev.Trade
			u.Trades = append(u.Trades, *ev.Trade)
		case eventlog.TypeQuote:
			q := *ev.Quote
			if q.AI {
				u.HasAIQuote = true
				u.AIQuote = q
			}
			quotes = append(quotes, q)
		}
	}
	u.Quotes = latestPerParticipant(quotes)
	return u
}

func latestPerParticipant(quotes []eventlog.QuoteUpdate) []eventlog.QuoteUpdate {
	seen := make(map[string]bool, len(quotes))
	var out []eventlog.QuoteUpdate
	for i := len(quotes) - 1; i >= 0; i-- {
		if seen[quotes[i].ParticipantID] {
			continue
		}
		seen[quotes[i].ParticipantID] = true
		out = append(out, quotes[i])
	}
	slices.Reverse(out)
	return out
}
