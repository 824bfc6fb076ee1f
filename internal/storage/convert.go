package storage

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseUint(field, v string) (uint64, error) {
	out, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return out, nil
}

func formatInt(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func parseInt(field, v string) (*uint256.Int, error) {
	out, err := uint256.FromDecimal(v)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", field, err)
	}
	return out, nil
}

func addressStrings(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

func parseAddresses(values []string) []common.Address {
	out := make([]common.Address, 0, len(values))
	for _, v := range values {
		out = append(out, common.HexToAddress(v))
	}
	return out
}

func uintStrings(values []uint64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = formatUint(v)
	}
	return out
}

// lockKey folds a pool id into the advisory lock keyspace.
func lockKey(id common.Hash) int64 {
	var k uint64
	for _, b := range id[:8] {
		k = k<<8 | uint64(b)
	}
	return int64(k)
}
