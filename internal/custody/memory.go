package custody

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[Account]uint64
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[Account]uint64)}
}

// Mint credits amount to account out of thin air. Intended for fixtures and simulations.
func (l *MemoryLedger) Mint(account Account, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.balances[account]
	if amount > math.MaxUint64-current {
		return ErrBalanceOverflow
	}
	l.balances[account] = current + amount
	return nil
}

// Balance implements Ledger.
func (l *MemoryLedger) Balance(ctx context.Context, account Account) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// Execute implements Ledger. Legs are applied in order against a staged view so a later leg may
// spend what an earlier leg credited.
func (l *MemoryLedger) Execute(ctx context.Context, legs ...Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	legs = Compact(legs)
	if len(legs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	staged := make(map[Account]uint64, len(legs)*2)
	read := func(a Account) uint64 {
		if v, ok := staged[a]; ok {
			return v
		}
		return l.balances[a]
	}

	for i, leg := range legs {
		from := read(leg.From)
		if from < leg.Amount {
			return fmt.Errorf("leg %d %s -> %s (%d): %w", i, leg.From, leg.To, leg.Amount, ErrInsufficientFunds)
		}
		staged[leg.From] = from - leg.Amount

		to := read(leg.To)
		if leg.Amount > math.MaxUint64-to {
			return fmt.Errorf("leg %d credit %s: %w", i, leg.To, ErrBalanceOverflow)
		}
		staged[leg.To] = to + leg.Amount
	}

	for account, balance := range staged {
		l.balances[account] = balance
	}
	return nil
}

var _ Ledger = (*MemoryLedger)(nil)
