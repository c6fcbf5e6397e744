package eventlog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bargetrader/internal/domain"
)

// Type tags the payload an Event carries.
type Type int

const (
	TypeNews Type = iota
	TypeTrade
	TypeQuote
)

func (t Type) String() string {
	switch t {
	case TypeNews:
		return "news"
	case TypeTrade:
		return "trade"
	case TypeQuote:
		return "quote"
	default:
		return "unknown"
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	for _, typ := range []Type{TypeNews, TypeTrade, TypeQuote} {
		if typ.String() == string(text) {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", text)
}

// QuoteUpdate records a participant's standing quote after a successful change.
type QuoteUpdate struct {
	ParticipantID string              `json:"participant_id"`
	Name          string              `json:"name"`
	AI            bool                `json:"ai"`
	Bid           decimal.NullDecimal `json:"bid"`
	Offer         decimal.NullDecimal `json:"offer"`
}

// Event is one entry of the log. Exactly one of News, Trade or Quote is set,
// matching Type.
type Event struct {
	Seq   uint64        `json:"seq"`
	Type  Type          `json:"type"`
	At    time.Time     `json:"at"`
	News  *domain.News  `json:"news,omitempty"`
	Trade *domain.Trade `json:"trade,omitempty"`
	Quote *QuoteUpdate  `json:"quote,omitempty"`
}

func NewsEvent(n domain.News) Event {
	return Event{Type: TypeNews, News: &n}
}

func TradeEvent(t domain.Trade) Event {
	return Event{Type: TypeTrade, Trade: &t}
}

func QuoteEvent(q QuoteUpdate) Event {
	return Event{Type: TypeQuote, Quote: &q}
}
