// Package money holds the arithmetic shared by invoices, payments and time
// conversion. Amounts are int64 minor units (cents); fractional inputs go
// through decimal and are rounded half-up exactly once per line.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineTotal returns round(qty × unitPrice).
func LineTotal(qty decimal.Decimal, unitPrice int64) int64 {
	return qty.Mul(decimal.NewFromInt(unitPrice)).Round(0).IntPart()
}

// Tax returns round(subtotal × ratePercent / 100).
func Tax(subtotal int64, ratePercent decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotal).Mul(ratePercent).Div(hundred).Round(0).IntPart()
}

// HoursFromMinutes converts minutes to hours rounded to two decimals.
func HoursFromMinutes(minutes int64) decimal.Decimal {
	return decimal.NewFromInt(minutes).Div(decimal.NewFromInt(60)).Round(2)
}

// RoundQuantity normalizes an item quantity to two decimals.
func RoundQuantity(qty decimal.Decimal) decimal.Decimal {
	return qty.Round(2)
}

// BalanceDue returns max(0, total - paid).
func BalanceDue(total, paid int64) int64 {
	if paid >= total {
		return 0
	}
	return total - paid
}

// Format renders cents as a currency string, e.g. "$1,234.50".
func Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), cents%100)
}

// Parse reads a major-unit amount such as "125.5" or "$1,200" into cents.
func Parse(s string) (int64, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "$")
	clean = strings.ReplaceAll(clean, ",", "")
	if clean == "" {
		return 0, errors.New("amount is required")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("invalid amount %q: more than two decimals", s)
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}
