package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Impact is the market direction a news item pushes expected value.
type Impact string

const (
	Bullish Impact = "bullish"
	Bearish Impact = "bearish"
	Neutral Impact = "neutral"
)

// News is a headline released into a round.
type News struct {
	Content     string          `json:"content"`
	Impact      Impact          `json:"impact_type"`
	ImpactValue decimal.Decimal `json:"impact_value"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Shift is the signed change a news item applies to expected value.
func (n News) Shift() decimal.Decimal {
	switch n.Impact {
	case Bullish:
		return n.ImpactValue
	case Bearish:
		return n.ImpactValue.Neg()
	default:
		return decimal.Zero
	}
}
