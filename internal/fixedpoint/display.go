package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimal renders raw token units as a decimal shifted by the asset's decimals.
func Decimal(units uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -decimals)
}

// ScaledDecimal renders a Scale-multiplied quantity, such as a reward rate, in whole units
// shifted by the asset's decimals.
func ScaledDecimal(v *uint256.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v.ToBig(), -(ScaleDecimals + decimals))
}
