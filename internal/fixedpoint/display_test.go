package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestDecimal(t *testing.T) {
	require.Equal(t, "1.5", Decimal(1_500_000, 6).String())
	require.Equal(t, "18446744073709551615", Decimal(^uint64(0), 0).String())
	require.Equal(t, "0", Decimal(0, 18).String())
}

func TestScaledDecimal(t *testing.T) {
	rate, err := RateFor(1000, nil, 3)
	require.NoError(t, err)
	require.Equal(t, "333.333333333333", ScaledDecimal(rate, 0).String())
	require.Equal(t, "0.333333333333333", ScaledDecimal(rate, 3).String())
	require.Equal(t, "0", ScaledDecimal(nil, 0).String())
	require.Equal(t, "10", ScaledDecimal(new(uint256.Int).Mul(uint256.NewInt(10), Scale), 0).String())
}
