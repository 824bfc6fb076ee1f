package farming

import (
	"context"
	"errors"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"reward-farming/internal/custody"
)

// InitializePoolParams describe a new pool.
type InitializePoolParams struct {
	Authority    common.Address
	StakingAsset common.Address
	// RewardAssets holds slot A and, optionally, slot B.
	RewardAssets []common.Address
	BaseKey      common.Address
	Duration     uint64
}

// StakeRequest moves stake into or out of a position.
type StakeRequest struct {
	Pool   common.Hash
	Caller common.Address
	// Owner defaults to Caller.
	Owner  common.Address
	Amount uint64
}

func (r StakeRequest) owner() common.Address {
	if r.Owner == (common.Address{}) {
		return r.Caller
	}
	return r.Owner
}

// StakeResult reports balances after a deposit or withdraw.
type StakeResult struct {
	Position    *Position
	TotalStaked uint64
}

// FundRequest adds rewards to one slot.
type FundRequest struct {
	Pool   common.Hash
	Caller common.Address
	Slot   Slot
	Amount uint64
}

// ClaimResult lists the units transferred per slot.
type ClaimResult struct {
	Position *Position
	Amounts  []uint64
}

// InitializePool creates a pool with no active emission.
func (e *Engine) InitializePool(ctx context.Context, params InitializePoolParams) (*Pool, error) {
	if params.Duration == 0 {
		return nil, ErrInvalidDuration
	}
	if params.Authority == (common.Address{}) {
		return nil, ErrUnauthorized
	}
	if n := len(params.RewardAssets); n == 0 || n > MaxRewardSlots {
		return nil, ErrInvalidConfig
	}
	if len(params.RewardAssets) == 2 && params.RewardAssets[0] == params.RewardAssets[1] {
		return nil, ErrInvalidConfig
	}

	id := DerivePoolID(params.Duration, params.StakingAsset, params.RewardAssets, params.BaseKey)
	var created *Pool
	err := e.execute(ctx, operation{
		name:    "initialize_pool",
		pool:    id,
		caller:  params.Authority,
		creates: true,
		effect: func(ctx context.Context, tx *txn) error {
			pool := &Pool{
				ID:             id,
				Authority:      params.Authority,
				StakingAsset:   params.StakingAsset,
				StakingVault:   custody.VaultAccount(id.Hex(), "staking"),
				BaseKey:        params.BaseKey,
				RewardDuration: params.Duration,
				Slots:          make([]RewardSlot, len(params.RewardAssets)),
				CreatedAt:      tx.now,
			}
			for i, asset := range params.RewardAssets {
				pool.Slots[i] = RewardSlot{
					Asset:                asset,
					Vault:                custody.VaultAccount(id.Hex(), Slot(i).VaultRole()),
					RewardRate:           cloneInt(nil),
					RewardPerTokenStored: cloneInt(nil),
					LastUpdateTime:       tx.now,
					PeriodFinish:         tx.now,
				}
			}
			tx.pool = pool
			tx.record(EventInitialize, params.Authority, common.Address{}, params.Duration)
			created = pool
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// CreateUser opens the caller's zeroed position in pool.
func (e *Engine) CreateUser(ctx context.Context, poolID common.Hash, owner common.Address) (*Position, error) {
	if owner == (common.Address{}) {
		return nil, ErrUnauthorized
	}
	var created *Position
	err := e.execute(ctx, operation{
		name:         "create_user",
		pool:         poolID,
		caller:       owner,
		rejectPaused: true,
		effect: func(ctx context.Context, tx *txn) error {
			if _, err := tx.sess.Position(ctx, owner); err == nil {
				return ErrPositionExists
			} else if !errors.Is(err, ErrPositionNotFound) {
				return err
			}
			if tx.pool.UserCount == math.MaxUint32 {
				return ErrInvalidConfig
			}
			pos := newPosition(tx.pool, owner, tx.now)
			for i := range pos.Slots {
				pos.Slots[i].RewardPerTokenPaid = cloneInt(tx.pool.Slots[i].RewardPerTokenStored)
			}
			tx.pool.UserCount++
			tx.position = pos
			tx.record(EventCreateUser, owner, owner)
			created = pos
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// Deposit stakes Amount from the owner's wallet into the pool.
func (e *Engine) Deposit(ctx context.Context, req StakeRequest) (*StakeResult, error) {
	if req.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	owner := req.owner()
	var result StakeResult
	err := e.execute(ctx, operation{
		name:         "deposit",
		pool:         req.Pool,
		caller:       req.Caller,
		owner:        owner,
		access:       accessOwner,
		rejectPaused: true,
		effect: func(ctx context.Context, tx *txn) error {
			balance, err := checkedAdd(tx.position.Balance, req.Amount)
			if err != nil {
				return err
			}
			total, err := checkedAdd(tx.pool.TotalStaked, req.Amount)
			if err != nil {
				return err
			}
			tx.position.Balance = balance
			tx.pool.TotalStaked = total
			tx.move(custody.WalletAccount(owner, tx.pool.StakingAsset), tx.pool.StakingVault, req.Amount)
			tx.record(EventDeposit, req.Caller, owner, req.Amount)
			result = StakeResult{Position: tx.position, TotalStaked: total}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	result.Position = result.Position.Clone()
	return &result, nil
}

// Withdraw returns Amount of stake to the owner's wallet. Allowed while paused.
func (e *Engine) Withdraw(ctx context.Context, req StakeRequest) (*StakeResult, error) {
	if req.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	owner := req.owner()
	var result StakeResult
	err := e.execute(ctx, operation{
		name:   "withdraw",
		pool:   req.Pool,
		caller: req.Caller,
		owner:  owner,
		access: accessOwner,
		effect: func(ctx context.Context, tx *txn) error {
			if req.Amount > tx.position.Balance || req.Amount > tx.pool.TotalStaked {
				return ErrInsufficientStake
			}
			tx.position.Balance -= req.Amount
			tx.pool.TotalStaked -= req.Amount
			tx.move(tx.pool.StakingVault, custody.WalletAccount(owner, tx.pool.StakingAsset), req.Amount)
			tx.record(EventWithdraw, req.Caller, owner, req.Amount)
			result = StakeResult{Position: tx.position, TotalStaked: tx.pool.TotalStaked}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	result.Position = result.Position.Clone()
	return &result, nil
}

// Fund moves Amount of the slot's reward asset from the caller into the slot vault and reschedules
// emission over the pool's reward duration.
func (e *Engine) Fund(ctx context.Context, req FundRequest) (*Pool, error) {
	if req.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	var funded *Pool
	err := e.execute(ctx, operation{
		name:         "fund",
		pool:         req.Pool,
		caller:       req.Caller,
		access:       accessFunder,
		rejectPaused: true,
		effect: func(ctx context.Context, tx *txn) error {
			slot, err := tx.pool.Slot(req.Slot)
			if err != nil {
				return err
			}
			if err := scheduleFunding(tx.pool, req.Slot, req.Amount, tx.now); err != nil {
				return err
			}
			tx.move(custody.WalletAccount(req.Caller, slot.Asset), slot.Vault, req.Amount)

			amounts := make([]uint64, len(tx.pool.Slots))
			amounts[req.Slot] = req.Amount
			tx.record(EventFund, req.Caller, common.Address{}, amounts...)
			tx.afterCommit = append(tx.afterCommit, func() {
				e.recorder.RewardsFunded(req.Pool, req.Slot, req.Amount)
			})
			funded = tx.pool
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return funded.Clone(), nil
}

// Claim pays out everything owed to the owner's position, per slot, capped by the slot vault.
// Claiming with nothing owed succeeds with zero amounts.
func (e *Engine) Claim(ctx context.Context, poolID common.Hash, caller, owner common.Address) (*ClaimResult, error) {
	if owner == (common.Address{}) {
		owner = caller
	}
	var result ClaimResult
	err := e.execute(ctx, operation{
		name:   "claim",
		pool:   poolID,
		caller: caller,
		owner:  owner,
		access: accessOwner,
		effect: func(ctx context.Context, tx *txn) error {
			amounts := make([]uint64, len(tx.pool.Slots))
			for i := range tx.pool.Slots {
				slot := &tx.pool.Slots[i]
				cp := &tx.position.Slots[i]
				if cp.RewardsOwed == 0 {
					continue
				}
				available, err := tx.sess.Balance(ctx, slot.Vault)
				if err != nil {
					return err
				}
				pay := cp.RewardsOwed
				if available < pay {
					pay = available
				}
				if pay == 0 {
					continue
				}
				claimed, err := checkedAdd(slot.TotalClaimed, pay)
				if err != nil {
					return err
				}
				cp.RewardsOwed -= pay
				slot.TotalClaimed = claimed
				amounts[i] = pay
				tx.move(slot.Vault, custody.WalletAccount(owner, slot.Asset), pay)

				s, paid := Slot(i), pay
				tx.afterCommit = append(tx.afterCommit, func() {
					e.recorder.RewardsClaimed(poolID, s, paid)
				})
			}
			tx.record(EventClaim, caller, owner, amounts...)
			result = ClaimResult{Position: tx.position, Amounts: amounts}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	result.Position = result.Position.Clone()
	return &result, nil
}
