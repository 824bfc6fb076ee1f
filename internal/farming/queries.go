package farming

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// GetPool returns the committed pool record.
func (e *Engine) GetPool(ctx context.Context, id common.Hash) (*Pool, error) {
	return e.store.GetPool(ctx, id)
}

// ListPools returns every pool.
func (e *Engine) ListPools(ctx context.Context) ([]*Pool, error) {
	return e.store.ListPools(ctx)
}

// GetPosition returns the committed position record, without accrual since its last update.
func (e *Engine) GetPosition(ctx context.Context, id common.Hash, owner common.Address) (*Position, error) {
	return e.store.GetPosition(ctx, id, owner)
}

// Events returns the pool's most recent events first.
func (e *Engine) Events(ctx context.Context, id common.Hash, limit int) ([]Event, error) {
	return e.store.ListEvents(ctx, id, limit)
}

// Projection is a read-only view of a pool and position refreshed to the current time.
type Projection struct {
	Pool     *Pool
	Position *Position
	At       uint64
}

// Project refreshes copies of the pool and, when owner is non-zero, the owner's position, without
// committing anything. Position.Owed() then reports what a claim would pay now.
func (e *Engine) Project(ctx context.Context, id common.Hash, owner common.Address) (*Projection, error) {
	sess, err := e.store.Begin(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("project: begin session: %w", err)
	}
	defer func() {
		_ = sess.Rollback(ctx)
	}()

	pool, err := sess.Pool(ctx)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	var pos *Position
	if owner != (common.Address{}) {
		if pos, err = sess.Position(ctx, owner); err != nil {
			return nil, fmt.Errorf("project: %w", err)
		}
	}
	now := e.now(pool)
	if err := refresh(pool, pos, now); err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return &Projection{Pool: pool, Position: pos, At: now}, nil
}

// RemainingRewards reports the balance of each reward vault.
func (e *Engine) RemainingRewards(ctx context.Context, id common.Hash) ([]uint64, error) {
	sess, err := e.store.Begin(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("remaining rewards: begin session: %w", err)
	}
	defer func() {
		_ = sess.Rollback(ctx)
	}()

	pool, err := sess.Pool(ctx)
	if err != nil {
		return nil, fmt.Errorf("remaining rewards: %w", err)
	}
	out := make([]uint64, len(pool.Slots))
	for i, slot := range pool.Slots {
		if out[i], err = sess.Balance(ctx, slot.Vault); err != nil {
			return nil, fmt.Errorf("remaining rewards slot %s: %w", Slot(i), err)
		}
	}
	return out, nil
}
