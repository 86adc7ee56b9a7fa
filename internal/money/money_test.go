package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineTotalRoundsHalfUp(t *testing.T) {
	tests := []struct {
		qty   string
		price int64
		want  int64
	}{
		{"1.5", 10000, 15000},
		{"0.33", 12345, 4074},
		{"0.5", 1, 1},
		{"2", 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LineTotal(decimal.RequireFromString(tt.qty), tt.price), "%s x %d", tt.qty, tt.price)
	}
}

func TestTax(t *testing.T) {
	assert.Equal(t, int64(1650), Tax(20000, decimal.RequireFromString("8.25")))
	assert.Equal(t, int64(1), Tax(10, decimal.RequireFromString("5")))
	assert.Zero(t, Tax(20000, decimal.Zero))
}

func TestHoursFromMinutes(t *testing.T) {
	assert.Equal(t, "1.50", HoursFromMinutes(90).StringFixed(2))
	assert.Equal(t, "0.33", HoursFromMinutes(20).StringFixed(2))
	assert.Equal(t, "0.67", HoursFromMinutes(40).StringFixed(2))
}

func TestBalanceDue(t *testing.T) {
	assert.Equal(t, int64(300), BalanceDue(1000, 700))
	assert.Zero(t, BalanceDue(1000, 1000))
	assert.Zero(t, BalanceDue(1000, 1200))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$0.05", Format(5))
	assert.Equal(t, "$1,234.50", Format(123450))
	assert.Equal(t, "$1,000,000.00", Format(100000000))
	assert.Equal(t, "-$12.00", Format(-1200))
}

func TestParse(t *testing.T) {
	got, err := Parse("$1,200.5")
	require.NoError(t, err)
	assert.Equal(t, int64(120050), got)

	got, err = Parse("125")
	require.NoError(t, err)
	assert.Equal(t, int64(12500), got)

	for _, bad := range []string{"", "abc", "1.234"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}
