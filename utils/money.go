package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatCents renders minor units as a decimal string ("1999" -> "19.99").
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParseAmount converts a decimal amount ("19.99") into minor units. More than two
// fractional digits is rejected instead of silently rounded.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	return cents.IntPart(), nil
}
