package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeQuantity is the fixed size of every trade.
const TradeQuantity int64 = 1

// Trade is an immutable record of one executed hit or lift.
type Trade struct {
	ID         string          `json:"id"`
	BuyerID    string          `json:"buyer_id"`
	BuyerName  string          `json:"buyer"`
	SellerID   string          `json:"seller_id"`
	SellerName string          `json:"seller"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Notional is price times quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}
