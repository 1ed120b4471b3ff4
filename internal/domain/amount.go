/**
 * @description
 * Conversions between fiat decimal amounts and the custody token's fixed-point
 * base units. MXNB uses 6 decimal places; every fiat value representable at 2
 * decimal places round-trips through base units with no loss.
 */

package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the custody token's fixed-point precision (MXNB).
const TokenDecimals = 6

// ToTokenBaseUnits converts a fiat decimal amount into the token's integer
// base units. The amount must be positive and representable at TokenDecimals
// decimal places.
func ToTokenBaseUnits(amount decimal.Decimal) (int64, error) {
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}
	shifted := amount.Shift(TokenDecimals)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s exceeds %d decimal places", amount, TokenDecimals)
	}
	if shifted.Cmp(decimal.NewFromInt(math.MaxInt64)) > 0 {
		return 0, fmt.Errorf("amount %s overflows token base units", amount)
	}
	return shifted.IntPart(), nil
}

// FromTokenBaseUnits converts integer base units back to a decimal amount.
func FromTokenBaseUnits(units int64) decimal.Decimal {
	return decimal.New(units, -TokenDecimals)
}

// USDEquivalent converts a fiat MXN amount to its USD equivalent given the
// configured MXN-per-USD rate.
func USDEquivalent(amountMXN, mxnPerUSD decimal.Decimal) (decimal.Decimal, error) {
	if mxnPerUSD.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("invalid MXN per USD rate: %s", mxnPerUSD)
	}
	return amountMXN.DivRound(mxnPerUSD, 2), nil
}
