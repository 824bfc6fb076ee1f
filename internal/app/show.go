package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"reward-farming/internal/farming"
	"reward-farming/internal/fixedpoint"
)

// ShowPool prints a pool refreshed to now, its vault balances and recent events.
func (a *App) ShowPool(ctx context.Context, opts ShowOptions) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	view, err := rt.engine.Project(ctx, opts.Pool, common.Address{})
	if err != nil {
		return err
	}
	vaults, err := rt.engine.RemainingRewards(ctx, opts.Pool)
	if err != nil {
		return err
	}

	pool := view.Pool
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Pool\t%s\n", pool.ID.Hex())
	fmt.Fprintf(writer, "Authority\t%s\n", pool.Authority.Hex())
	fmt.Fprintf(writer, "Staking asset\t%s\n", pool.StakingAsset.Hex())
	fmt.Fprintf(writer, "Reward duration\t%s\n", time.Duration(pool.RewardDuration)*time.Second)
	fmt.Fprintf(writer, "Total staked\t%s\n", a.units(pool.TotalStaked))
	fmt.Fprintf(writer, "Users\t%d\n", pool.UserCount)
	fmt.Fprintf(writer, "Paused\t%t\n", pool.Paused)
	fmt.Fprintf(writer, "Funders\t%s\n", joinAddresses(pool.Funders))
	fmt.Fprintf(writer, "As of\t%s\n", formatUnix(view.At))
	writer.Flush()

	fmt.Fprintln(a.Out)
	writer = tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Slot\tAsset\tRate/s\tReward/token\tPeriod finish\tVault\tFunded\tClaimed")
	for i, slot := range pool.Slots {
		var vault uint64
		if i < len(vaults) {
			vault = vaults[i]
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			farming.Slot(i),
			slot.Asset.Hex(),
			fixedpoint.ScaledDecimal(slot.RewardRate, a.Config.App.AmountDecimals).StringFixed(6),
			fixedpoint.ScaledDecimal(slot.RewardPerTokenStored, 0).StringFixed(6),
			formatUnix(slot.PeriodFinish),
			a.units(vault),
			a.units(slot.TotalFunded),
			a.units(slot.TotalClaimed),
		)
	}
	writer.Flush()

	if opts.Events > 0 {
		if err := a.showEvents(ctx, rt, opts); err != nil {
			return err
		}
	}
	if opts.History > 0 && rt.history != nil {
		return a.showHistory(ctx, rt.history, opts)
	}
	return nil
}

func (a *App) showEvents(ctx context.Context, rt *runtime, opts ShowOptions) error {
	events, err := rt.engine.Events(ctx, opts.Pool, opts.Events)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out)
	if len(events) == 0 {
		fmt.Fprintln(a.Out, "no events found")
		return nil
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tKind\tActor\tSubject\tAmounts")
	for _, ev := range events {
		subject := ""
		if ev.Subject != (common.Address{}) {
			subject = ev.Subject.Hex()
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", formatUnix(ev.At), ev.Kind, ev.Actor.Hex(), subject, a.amountList(ev.Amounts))
	}
	writer.Flush()
	return nil
}

// showHistory lists the monitor's latest snapshots and period alerts for the pool.
func (a *App) showHistory(ctx context.Context, history historyStore, opts ShowOptions) error {
	snapshots, err := history.ListRecentSnapshots(ctx, opts.Pool, opts.History)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out)
	if len(snapshots) == 0 {
		fmt.Fprintln(a.Out, "no snapshots found")
	} else {
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Snapshot (UTC)\tTotal staked\tUsers\tPaused\tVaults\tClaimed")
		for _, snap := range snapshots {
			vaults := make([]uint64, len(snap.Slots))
			claimed := make([]uint64, len(snap.Slots))
			for i, slot := range snap.Slots {
				vaults[i] = slot.VaultBalance
				claimed[i] = slot.TotalClaimed
			}
			fmt.Fprintf(writer, "%s\t%s\t%d\t%t\t%s\t%s\n",
				snap.TakenAt.UTC().Format(time.RFC3339),
				a.units(snap.TotalStaked),
				snap.UserCount,
				snap.Paused,
				a.unitList(vaults),
				a.unitList(claimed),
			)
		}
		writer.Flush()
	}

	alerts, err := history.ListRecentAlerts(ctx, opts.Pool, opts.History)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out)
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no period alerts found")
		return nil
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Alert (UTC)\tSlot\tStage\tPeriod finish\tChannels")
	for _, alert := range alerts {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			farming.Slot(alert.Slot),
			alert.Stage,
			formatUnix(alert.PeriodFinish),
			strings.Join(alert.Channels, ","),
		)
	}
	writer.Flush()
	return nil
}

// ListPools prints one line per pool.
func (a *App) ListPools(ctx context.Context) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	pools, err := rt.engine.ListPools(ctx)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		fmt.Fprintln(a.Out, "no pools found")
		return nil
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Pool\tStaking asset\tSlots\tTotal staked\tUsers\tPaused")
	for _, p := range pools {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%d\t%t\n", p.ID.Hex(), p.StakingAsset.Hex(), len(p.Slots), a.units(p.TotalStaked), p.UserCount, p.Paused)
	}
	writer.Flush()
	return nil
}

// ShowUser prints the owner's position with rewards accrued up to now.
func (a *App) ShowUser(ctx context.Context, id common.Hash, owner common.Address) (*farming.Position, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	view, err := rt.engine.Project(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	pos := view.Position
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Owner\t%s\n", pos.Owner.Hex())
	fmt.Fprintf(writer, "Pool\t%s\n", pos.Pool.Hex())
	fmt.Fprintf(writer, "Balance\t%s\n", a.units(pos.Balance))
	fmt.Fprintf(writer, "Pending\t%s\n", a.unitList(pos.Owed()))
	fmt.Fprintf(writer, "As of\t%s\n", formatUnix(view.At))
	writer.Flush()
	return pos, nil
}

func (a *App) amountList(vs []uint64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = a.units(v)
	}
	return strings.Join(parts, ",")
}

func joinAddresses(addrs []common.Address) string {
	if len(addrs) == 0 {
		return "-"
	}
	parts := make([]string, len(addrs))
	for i, addr := range addrs {
		parts[i] = addr.Hex()
	}
	return strings.Join(parts, ",")
}

func formatUnix(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}
