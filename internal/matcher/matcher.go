// Package matcher executes hits and lifts against the quotes in a book.
package matcher

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bargetrader/internal/book"
	"bargetrader/internal/domain"
	"bargetrader/internal/eventlog"
)

// Request asks to trade one unit with a counterparty at the price the
// requester last saw on the counterparty's quote.
type Request struct {
	RequesterID    string
	CounterpartyID string
	Side           domain.Side
	ExpectedPrice  decimal.Decimal
}

type Config struct {
	Book   *book.Book
	Log    *eventlog.Log
	Logger *slog.Logger
	Now    func() time.Time
	// Gate, when set, is checked with both participants locked and can
	// refuse the trade, e.g. once the round has closed.
	Gate func() error
}

type Matcher struct {
	book   *book.Book
	log    *eventlog.Log
	logger *slog.Logger
	now    func() time.Time
	gate   func() error
}

func New(cfg Config) *Matcher {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Matcher{
		book:   cfg.Book,
		log:    cfg.Log,
		logger: cfg.Logger,
		now:    cfg.Now,
		gate:   cfg.Gate,
	}
}

// Execute trades one unit against the counterparty's current quote. The
// quote is left in place, so it stays tradeable until its owner changes it.
// On any error nothing is mutated and no event is appended.
func (m *Matcher) Execute(req Request) (domain.Trade, error) {
	if req.RequesterID == req.CounterpartyID {
		return domain.Trade{}, domain.Validationf("cannot trade with yourself")
	}
	if err := domain.ValidatePrice("price", req.ExpectedPrice); err != nil {
		return domain.Trade{}, err
	}

	var trade domain.Trade
	err := m.book.WithPair(req.RequesterID, req.CounterpartyID, func(requester, counterparty *book.Participant) error {
		if m.gate != nil {
			if err := m.gate(); err != nil {
				return err
			}
		}

		quote := counterparty.QuoteFor(req.Side)
		if !quote.Valid {
			return domain.NotFoundf("%s has no %s", counterparty.Name, quotedSide(req.Side))
		}
		if !quote.Decimal.Equal(req.ExpectedPrice) {
			return domain.StaleQuotef("%s's %s is now %s, not %s",
				counterparty.Name, quotedSide(req.Side),
				domain.FormatPrice(quote.Decimal), domain.FormatPrice(req.ExpectedPrice))
		}

		buyer, seller := requester, counterparty
		if req.Side == domain.Sell {
			buyer, seller = counterparty, requester
		}
		trade = domain.Trade{
			ID:         uuid.New().String(),
			BuyerID:    buyer.ID,
			BuyerName:  buyer.Name,
			SellerID:   seller.ID,
			SellerName: seller.Name,
			Price:      quote.Decimal,
			Quantity:   domain.TradeQuantity,
			Timestamp:  m.now(),
		}

		if !buyer.Held() || !seller.Held() {
			return m.conflict(domain.Conflictf("trade %s attempted outside the pair lock", trade.ID), trade)
		}
		buyerVersion, sellerVersion := buyer.Version(), seller.Version()
		if err := buyer.Fill(domain.Buy, trade.Price, trade.Quantity); err != nil {
			return m.conflict(err, trade)
		}
		if err := seller.Fill(domain.Sell, trade.Price, trade.Quantity); err != nil {
			return m.conflict(err, trade)
		}
		if buyer.Version() != buyerVersion+1 || seller.Version() != sellerVersion+1 {
			return m.conflict(domain.Conflictf("participant versions moved during trade %s", trade.ID), trade)
		}

		if m.log != nil {
			m.log.Append(eventlog.TradeEvent(trade))
		}
		return nil
	})
	if err != nil {
		return domain.Trade{}, err
	}

	m.logger.Info("trade executed",
		"trade_id", trade.ID,
		"buyer", trade.BuyerName,
		"seller", trade.SellerName,
		"price", domain.FormatPrice(trade.Price),
	)
	return trade, nil
}

// conflict means the pair lock did not protect the participants. It is a
// bug, never retried.
func (m *Matcher) conflict(err error, trade domain.Trade) error {
	m.logger.Error("concurrency conflict executing trade",
		"trade_id", trade.ID,
		"buyer_id", trade.BuyerID,
		"seller_id", trade.SellerID,
		"error", err,
	)
	return err
}

// Trades returns every executed trade in execution order.
func (m *Matcher) Trades() []domain.Trade {
	if m.log == nil {
		return nil
	}
	events, _ := m.log.ReadSince(0)
	var trades []domain.Trade
	for _, ev := range events {
		if ev.Type == eventlog.TypeTrade {
			trades = append(trades, *ev.Trade)
		}
	}
	return trades
}

func quotedSide(requester domain.Side) string {
	if requester == domain.Buy {
		return "offer"
	}
	return "bid"
}
