// Package fixedpoint implements the scaled integer arithmetic used by the reward accumulators.
//
// Rates and reward-per-token counters are stored multiplied by Scale. Every multiplication and
// addition is overflow checked and every division truncates, so rounding never favours a
// participant over the pool.
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrOverflow reports a value that does not fit the target representation.
var ErrOverflow = errors.New("fixedpoint: arithmetic overflow")

// ScaleDecimals is the number of decimal digits carried below the unit.
const ScaleDecimals = 12

// Scale is 10^ScaleDecimals.
var Scale = uint256.NewInt(1_000_000_000_000)

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// FromUint64 wraps v.
func FromUint64(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Parse decodes a base-10 string produced by String.
func Parse(s string) (*uint256.Int, error) {
	if s == "" {
		return Zero(), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse fixed point %q: %w", s, err)
	}
	return v, nil
}

// String renders v in base 10; nil renders as "0".
func String(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// ToUint64 narrows v, failing closed when it does not fit.
func ToUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Sub returns a-b, or ErrOverflow when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// RewardPerTokenDelta is elapsed*rate/totalStaked, with rate already scaled.
// A pool with nothing staked accrues nothing.
func RewardPerTokenDelta(elapsed uint64, rate *uint256.Int, totalStaked uint64) (*uint256.Int, error) {
	if totalStaked == 0 || elapsed == 0 || rate.IsZero() {
		return Zero(), nil
	}
	emitted, err := Mul(FromUint64(elapsed), rate)
	if err != nil {
		return nil, err
	}
	return emitted.Div(emitted, FromUint64(totalStaked)), nil
}

// Earned converts a reward-per-token difference into whole reward units for balance.
func Earned(balance uint64, current, paid *uint256.Int) (uint64, error) {
	diff, err := Sub(current, paid)
	if err != nil {
		return 0, err
	}
	if balance == 0 || diff.IsZero() {
		return 0, nil
	}
	scaled, err := Mul(FromUint64(balance), diff)
	if err != nil {
		return 0, err
	}
	return ToUint64(scaled.Div(scaled, Scale))
}

// Leftover is the scaled amount a rate would still emit over remaining seconds.
func Leftover(remaining uint64, rate *uint256.Int) (*uint256.Int, error) {
	return Mul(FromUint64(remaining), rate)
}

// RateFor spreads amount (whole units) plus a scaled leftover evenly over duration seconds.
func RateFor(amount uint64, leftover *uint256.Int, duration uint64) (*uint256.Int, error) {
	if duration == 0 {
		return nil, errors.New("fixedpoint: zero duration")
	}
	total, err := Mul(FromUint64(amount), Scale)
	if err != nil {
		return nil, err
	}
	if leftover != nil {
		if total, err = Add(total, leftover); err != nil {
			return nil, err
		}
	}
	return total.Div(total, FromUint64(duration)), nil
}

// Units descales a scaled quantity to whole units, truncating.
func Units(v *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(v, Scale)
}
