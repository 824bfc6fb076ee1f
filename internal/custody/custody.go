// Package custody models the balance-holding primitive the farming engine settles against.
package custody

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the available balance.
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	// ErrBalanceOverflow is returned when a credit would overflow the target balance.
	ErrBalanceOverflow = errors.New("custody: balance overflow")
)

// Account identifies a balance holder.
type Account string

// Transfer is one debit/credit leg.
type Transfer struct {
	From   Account
	To     Account
	Amount uint64
}

// Ledger holds balances and executes transfers atomically: either every leg of an Execute call is
// applied or none is.
type Ledger interface {
	Balance(ctx context.Context, account Account) (uint64, error)
	Execute(ctx context.Context, legs ...Transfer) error
}

// WalletAccount is a participant's external balance of asset.
func WalletAccount(owner, asset common.Address) Account {
	return Account(fmt.Sprintf("wallet:%s:%s", strings.ToLower(owner.Hex()), strings.ToLower(asset.Hex())))
}

// VaultAccount is a pool-owned custody account; role is "staking" or a reward slot label.
func VaultAccount(pool string, role string) Account {
	return Account(fmt.Sprintf("vault:%s:%s", strings.ToLower(pool), role))
}

// Compact drops zero-amount and self-transfer legs.
func Compact(legs []Transfer) []Transfer {
	out := make([]Transfer, 0, len(legs))
	for _, leg := range legs {
		if leg.Amount == 0 || leg.From == leg.To {
			continue
		}
		out = append(out, leg)
	}
	return out
}
