package farming

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"reward-farming/internal/custody"
)

// Pause stops deposits, new positions and funding. Every slot's period must have finished.
func (e *Engine) Pause(ctx context.Context, poolID common.Hash, caller common.Address) (*Pool, error) {
	return e.adminOp(ctx, "pause", poolID, caller, func(ctx context.Context, tx *txn) error {
		if tx.pool.Paused {
			return ErrPoolPaused
		}
		if err := tx.periodsFinished(); err != nil {
			return err
		}
		tx.pool.Paused = true
		tx.record(EventPause, caller, common.Address{})
		return nil
	})
}

// Unpause lifts a pause.
func (e *Engine) Unpause(ctx context.Context, poolID common.Hash, caller common.Address) (*Pool, error) {
	return e.adminOp(ctx, "unpause", poolID, caller, func(ctx context.Context, tx *txn) error {
		if !tx.pool.Paused {
			return ErrPoolNotPaused
		}
		tx.pool.Paused = false
		tx.record(EventUnpause, caller, common.Address{})
		return nil
	})
}

// AuthorizeFunder lets funder call Fund on the pool.
func (e *Engine) AuthorizeFunder(ctx context.Context, poolID common.Hash, caller, funder common.Address) (*Pool, error) {
	return e.adminOp(ctx, "authorize_funder", poolID, caller, func(ctx context.Context, tx *txn) error {
		if funder == (common.Address{}) || funder == tx.pool.Authority || tx.pool.IsFunder(funder) {
			return ErrFunderAlreadyAuthorized
		}
		if len(tx.pool.Funders) >= e.maxFunders {
			return ErrMaxFunders
		}
		tx.pool.Funders = append(tx.pool.Funders, funder)
		tx.record(EventAuthorizeFunder, caller, funder)
		return nil
	})
}

// DeauthorizeFunder revokes a funder.
func (e *Engine) DeauthorizeFunder(ctx context.Context, poolID common.Hash, caller, funder common.Address) (*Pool, error) {
	return e.adminOp(ctx, "deauthorize_funder", poolID, caller, func(ctx context.Context, tx *txn) error {
		if funder == tx.pool.Authority {
			return ErrCannotDeauthorizeAuthority
		}
		idx := -1
		for i, f := range tx.pool.Funders {
			if f == funder {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrFunderNotFound
		}
		tx.pool.Funders = append(tx.pool.Funders[:idx], tx.pool.Funders[idx+1:]...)
		tx.record(EventDeauthorizeFunder, caller, funder)
		return nil
	})
}

// SweepExcess sends staking tokens that reached the vault outside Deposit to the recipient's
// wallet once every slot's period has finished. It returns the amount moved.
func (e *Engine) SweepExcess(ctx context.Context, poolID common.Hash, caller, recipient common.Address) (uint64, error) {
	if recipient == (common.Address{}) {
		recipient = caller
	}
	var swept uint64
	_, err := e.adminOp(ctx, "sweep", poolID, caller, func(ctx context.Context, tx *txn) error {
		if err := tx.periodsFinished(); err != nil {
			return err
		}
		held, err := tx.sess.Balance(ctx, tx.pool.StakingVault)
		if err != nil {
			return err
		}
		if held <= tx.pool.TotalStaked {
			return nil
		}
		swept = held - tx.pool.TotalStaked
		tx.move(tx.pool.StakingVault, custody.WalletAccount(recipient, tx.pool.StakingAsset), swept)
		tx.record(EventSweep, caller, recipient, swept)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

func (tx *txn) periodsFinished() error {
	for _, s := range tx.pool.Slots {
		if tx.now < s.PeriodFinish {
			return ErrPeriodActive
		}
	}
	return nil
}

func (e *Engine) adminOp(ctx context.Context, name string, poolID common.Hash, caller common.Address, effect func(context.Context, *txn) error) (*Pool, error) {
	var out *Pool
	err := e.execute(ctx, operation{
		name:   name,
		pool:   poolID,
		caller: caller,
		access: accessAuthority,
		effect: func(ctx context.Context, tx *txn) error {
			if err := effect(ctx, tx); err != nil {
				return err
			}
			out = tx.pool
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}
