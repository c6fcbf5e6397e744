package bots

import (
	"github.com/shopspring/decimal"

	"bargetrader/internal/domain"
)

var tick = decimal.New(1, -domain.PriceDecimalPlaces)

// Quotes prices a two-sided market around ev. Inventory shifts both sides
// down when long and up when short so fills lean the AI back toward flat.
func Quotes(ev, halfSpread, skewPerUnit decimal.Decimal, position int64) (bid, offer decimal.Decimal) {
	skew := skewPerUnit.Mul(decimal.NewFromInt(position))
	bid = floorTick(ev.Sub(halfSpread).Sub(skew).Round(domain.PriceDecimalPlaces))
	offer = floorTick(ev.Add(halfSpread).Sub(skew).Round(domain.PriceDecimalPlaces))
	if offer.LessThanOrEqual(bid) {
		offer = bid.Add(tick)
	}
	return bid, offer
}

func floorTick(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(tick) {
		return tick
	}
	return p
}

// clampEV keeps expected value on a positive tick.
func clampEV(ev decimal.Decimal) decimal.Decimal {
	return floorTick(ev.Round(domain.PriceDecimalPlaces))
}
