package cli

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

var maxUnits = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

func parseAddress(flag, v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return common.Address{}, fmt.Errorf("--%s is required", flag)
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid --%s address %q", flag, v)
	}
	return common.HexToAddress(v), nil
}

func parseOptionalAddress(flag, v string) (common.Address, error) {
	if strings.TrimSpace(v) == "" {
		return common.Address{}, nil
	}
	return parseAddress(flag, v)
}

func parseHash(flag, v string) (common.Hash, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return common.Hash{}, fmt.Errorf("--%s is required", flag)
	}
	if !strings.HasPrefix(v, "0x") && !strings.HasPrefix(v, "0X") {
		v = "0x" + v
	}
	raw, err := hexutil.Decode(v)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid --%s %q: %w", flag, v, err)
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid --%s %q: want %d bytes", flag, v, common.HashLength)
	}
	return common.BytesToHash(raw), nil
}

// parseAmount converts a display amount with the given decimals into whole units.
func parseAmount(flag, v string, decimals int32) (uint64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("--%s is required", flag)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", flag, v, err)
	}
	units := d.Shift(decimals)
	switch {
	case units.Sign() <= 0:
		return 0, fmt.Errorf("--%s must be greater than zero", flag)
	case !units.IsInteger():
		return 0, fmt.Errorf("--%s %q has more than %d decimals", flag, v, decimals)
	case units.GreaterThan(maxUnits):
		return 0, errors.New("--" + flag + " exceeds the maximum amount")
	}
	return units.BigInt().Uint64(), nil
}
