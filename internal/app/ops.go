package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"

	"reward-farming/internal/custody"
	"reward-farming/internal/farming"
	"reward-farming/internal/fixedpoint"
)

// PoolInitOptions describe the pool created by `pool init`.
type PoolInitOptions struct {
	Authority    common.Address
	StakingAsset common.Address
	RewardA      common.Address
	RewardB      *common.Address
	BaseKey      common.Address
	Duration     uint64
}

// PoolInit creates a pool and prints its identifier.
func (a *App) PoolInit(ctx context.Context, opts PoolInitOptions) (*farming.Pool, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	assets := []common.Address{opts.RewardA}
	if opts.RewardB != nil {
		assets = append(assets, *opts.RewardB)
	}
	pool, err := rt.engine.InitializePool(ctx, farming.InitializePoolParams{
		Authority:    opts.Authority,
		StakingAsset: opts.StakingAsset,
		RewardAssets: assets,
		BaseKey:      opts.BaseKey,
		Duration:     opts.Duration,
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.Out, "pool %s initialized (duration %ds, %d reward slot(s))\n", pool.ID.Hex(), pool.RewardDuration, len(pool.Slots))
	return pool, nil
}

// Pause stops deposits, funding and new positions on a pool.
func (a *App) Pause(ctx context.Context, id common.Hash, caller common.Address) error {
	return a.adminPoolOp(ctx, "paused", func(e *farming.Engine) (*farming.Pool, error) {
		return e.Pause(ctx, id, caller)
	})
}

// Unpause resumes a paused pool.
func (a *App) Unpause(ctx context.Context, id common.Hash, caller common.Address) error {
	return a.adminPoolOp(ctx, "unpaused", func(e *farming.Engine) (*farming.Pool, error) {
		return e.Unpause(ctx, id, caller)
	})
}

// AuthorizeFunder adds funder to the pool's funder list.
func (a *App) AuthorizeFunder(ctx context.Context, id common.Hash, caller, funder common.Address) error {
	return a.adminPoolOp(ctx, "funder "+funder.Hex()+" authorized", func(e *farming.Engine) (*farming.Pool, error) {
		return e.AuthorizeFunder(ctx, id, caller, funder)
	})
}

// DeauthorizeFunder removes funder from the pool's funder list.
func (a *App) DeauthorizeFunder(ctx context.Context, id common.Hash, caller, funder common.Address) error {
	return a.adminPoolOp(ctx, "funder "+funder.Hex()+" removed", func(e *farming.Engine) (*farming.Pool, error) {
		return e.DeauthorizeFunder(ctx, id, caller, funder)
	})
}

func (a *App) adminPoolOp(ctx context.Context, done string, fn func(*farming.Engine) (*farming.Pool, error)) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	pool, err := fn(rt.engine)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "pool %s: %s\n", pool.ID.Hex(), done)
	return nil
}

// Sweep transfers staking-vault units not backed by recorded stake to recipient.
func (a *App) Sweep(ctx context.Context, id common.Hash, caller, recipient common.Address) (uint64, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return 0, err
	}
	amount, err := rt.engine.SweepExcess(ctx, id, caller, recipient)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(a.Out, "swept %s to %s\n", a.units(amount), recipient.Hex())
	return amount, nil
}

// UserCreate opens a zeroed position for owner.
func (a *App) UserCreate(ctx context.Context, id common.Hash, owner common.Address) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	pos, err := rt.engine.CreateUser(ctx, id, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "position %s created in pool %s\n", pos.Owner.Hex(), pos.Pool.Hex())
	return nil
}

// Deposit stakes amount units on behalf of owner.
func (a *App) Deposit(ctx context.Context, req farming.StakeRequest) (*farming.StakeResult, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	res, err := rt.engine.Deposit(ctx, req)
	if err != nil {
		return nil, err
	}
	a.printStake("deposited", req.Amount, res)
	return res, nil
}

// Withdraw returns amount staked units to owner.
func (a *App) Withdraw(ctx context.Context, req farming.StakeRequest) (*farming.StakeResult, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	res, err := rt.engine.Withdraw(ctx, req)
	if err != nil {
		return nil, err
	}
	a.printStake("withdrew", req.Amount, res)
	return res, nil
}

func (a *App) printStake(verb string, amount uint64, res *farming.StakeResult) {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "%s\t%s\n", verb, a.units(amount))
	fmt.Fprintf(writer, "position balance\t%s\n", a.units(res.Position.Balance))
	fmt.Fprintf(writer, "pool total staked\t%s\n", a.units(res.TotalStaked))
	fmt.Fprintf(writer, "owed\t%s\n", a.unitList(res.Position.Owed()))
	writer.Flush()
}

// Fund adds amount reward units to a slot and prints the new schedule.
func (a *App) Fund(ctx context.Context, req farming.FundRequest) (*farming.Pool, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := rt.engine.Fund(ctx, req)
	if err != nil {
		return nil, err
	}
	slot, err := pool.Slot(req.Slot)
	if err != nil {
		return nil, err
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "funded slot %s\t%s\n", req.Slot, a.units(req.Amount))
	fmt.Fprintf(writer, "reward rate\t%s /s\n", fixedpoint.ScaledDecimal(slot.RewardRate, a.Config.App.AmountDecimals).String())
	fmt.Fprintf(writer, "period finish\t%s\n", formatUnix(slot.PeriodFinish))
	writer.Flush()
	return pool, nil
}

// Claim pays out the owner's accrued rewards.
func (a *App) Claim(ctx context.Context, id common.Hash, caller, owner common.Address) (*farming.ClaimResult, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	res, err := rt.engine.Claim(ctx, id, caller, owner)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.Out, "claimed %s (still owed %s)\n", a.unitList(res.Amounts), a.unitList(res.Position.Owed()))
	return res, nil
}

// LedgerCredit mints amount units of asset into owner's wallet.
func (a *App) LedgerCredit(ctx context.Context, owner, asset common.Address, amount uint64) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	account := custody.WalletAccount(owner, asset)
	if err := rt.mint(ctx, account, amount); err != nil {
		return err
	}
	balance, err := rt.ledger.Balance(ctx, account)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "credited %s to %s, balance %s\n", a.units(amount), account, a.units(balance))
	return nil
}

// LedgerBalance prints owner's wallet balance of asset.
func (a *App) LedgerBalance(ctx context.Context, owner, asset common.Address) (uint64, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return 0, err
	}
	balance, err := rt.ledger.Balance(ctx, custody.WalletAccount(owner, asset))
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(a.Out, "%s\n", a.units(balance))
	return balance, nil
}

func (a *App) units(v uint64) string {
	return fixedpoint.Decimal(v, a.Config.App.AmountDecimals).String()
}

func (a *App) unitList(vs []uint64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = farming.Slot(i).String() + "=" + a.units(v)
	}
	return strings.Join(parts, " ")
}
