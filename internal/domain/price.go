package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// PriceDecimalPlaces is the precision of every quoted and traded price.
	PriceDecimalPlaces = 2
	// PriceMaxDigits bounds the total number of significant digits.
	PriceMaxDigits = 10

	// maxWrittenScale bounds the decimal places a price may be written
	// with, trailing zeros included.
	maxWrittenScale = 32
)

var maxPrice = decimal.New(1, PriceMaxDigits-PriceDecimalPlaces)

// ParsePrice parses a raw price for the named field and validates it.
func ParsePrice(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, Validationf("%s: enter a number", field)
	}
	p, err := decimal.NewFromString(strings.TrimPrefix(raw, "$"))
	if err != nil {
		return decimal.Zero, Validationf("%s: enter a number", field)
	}
	if err := ValidatePrice(field, p); err != nil {
		return decimal.Zero, err
	}
	return p, nil
}

// ValidatePrice checks that p is positive, has at most two decimal places
// and fits in PriceMaxDigits digits.
func ValidatePrice(field string, p decimal.Decimal) error {
	if !p.IsPositive() {
		return Validationf("%s: ensure this value is greater than 0", field)
	}
	// Exponent bounds come first: rounding or comparing a huge exponent
	// expands the coefficient to that many digits.
	if exp := p.Exponent(); exp > PriceMaxDigits {
		return Validationf("%s: ensure that there are no more than %d digits in total", field, PriceMaxDigits)
	} else if exp < -maxWrittenScale {
		return Validationf("%s: ensure that there are no more than %d decimal places", field, PriceDecimalPlaces)
	}
	if !p.Round(PriceDecimalPlaces).Equal(p) {
		return Validationf("%s: ensure that there are no more than %d decimal places", field, PriceDecimalPlaces)
	}
	if p.GreaterThanOrEqual(maxPrice) {
		return Validationf("%s: ensure that there are no more than %d digits in total", field, PriceMaxDigits)
	}
	return nil
}

// FormatPrice renders p with exactly two decimal places.
func FormatPrice(p decimal.Decimal) string {
	return p.StringFixed(PriceDecimalPlaces)
}
