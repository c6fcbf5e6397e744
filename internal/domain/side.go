package domain

// Side is the requester's direction in a trade.
type Side int

const (
	Buy  Side = iota // lift the counterparty's offer
	Sell             // hit the counterparty's bid
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// ParseSide accepts the wire actions "buy" and "sell".
func ParseSide(action string) (Side, error) {
	switch action {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, Validationf("action must be 'buy' or 'sell', got %q", action)
	}
}
