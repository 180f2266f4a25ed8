package erc20

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatAmount renders base units as a decimal token amount.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// ParseAmount converts a decimal token amount such as "12.5" to base units.
// Amounts finer than the token's precision are rejected.
func ParseAmount(text string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", text, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", text)
	}
	units := d.Shift(int32(decimals))
	if !units.Equal(units.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", text, decimals)
	}
	return units.BigInt(), nil
}
