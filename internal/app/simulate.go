package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"reward-farming/internal/alerting"
	"reward-farming/internal/clock"
	"reward-farming/internal/custody"
	"reward-farming/internal/farming"
	"reward-farming/internal/service"
	"reward-farming/internal/storage"
)

// SimulateOptions drive an in-memory replay of one pool.
type SimulateOptions struct {
	Duration uint64
	// Stakes holds one deposit per simulated staker.
	Stakes []uint64
	FundA  uint64
	FundB  uint64
	Steps  int
	Step   time.Duration
	// Alerts dispatches reward-period alerts through the configured channels.
	Alerts  bool
	CSVPath string
	PNGPath string
}

// SimulateResult summarises a replay.
type SimulateResult struct {
	Snapshots []storage.PoolSnapshot
	// Claimed is indexed by staker then slot.
	Claimed [][]uint64
	Funded  []uint64
	Vaults  []uint64
}

var (
	simAuthority = common.HexToAddress("0x00000000000000000000000000000000000a0001")
	simStaking   = common.HexToAddress("0x00000000000000000000000000000000000a0002")
	simRewardA   = common.HexToAddress("0x00000000000000000000000000000000000a0003")
	simRewardB   = common.HexToAddress("0x00000000000000000000000000000000000a0004")
)

func simStaker(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0xb0000 + i)))
}

// Simulate stakes, funds and advances a pool on a manual clock, snapshotting after every step, then
// claims for every staker and checks that claimed plus remaining rewards equal what was funded.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) (*SimulateResult, error) {
	if opts.Duration == 0 {
		return nil, errors.New("duration must be greater than zero")
	}
	if len(opts.Stakes) == 0 {
		return nil, errors.New("at least one stake is required")
	}
	if opts.FundA == 0 && opts.FundB == 0 {
		return nil, errors.New("at least one of fund-a or fund-b is required")
	}
	if opts.Steps <= 0 {
		opts.Steps = 10
	}
	if opts.Step <= 0 {
		opts.Step = time.Duration(opts.Duration) * time.Second / time.Duration(opts.Steps)
		if opts.Step < time.Second {
			opts.Step = time.Second
		}
	}

	start := time.Unix(1_700_000_000, 0).UTC()
	if a.Clock != nil {
		start = a.Clock.Now().Truncate(time.Second)
	}
	clk := clock.NewManual(start)
	ledger := custody.NewMemoryLedger()
	engine := farming.New(farming.NewMemoryStore(ledger), clk, farming.Options{}, a.Logger)

	rewards := []common.Address{simRewardA}
	if opts.FundB > 0 {
		rewards = append(rewards, simRewardB)
	}
	pool, err := engine.InitializePool(ctx, farming.InitializePoolParams{
		Authority:    simAuthority,
		StakingAsset: simStaking,
		RewardAssets: rewards,
		BaseKey:      simAuthority,
		Duration:     opts.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize pool: %w", err)
	}

	for i, stake := range opts.Stakes {
		staker := simStaker(i)
		if err := ledger.Mint(custody.WalletAccount(staker, simStaking), stake); err != nil {
			return nil, err
		}
		if _, err := engine.CreateUser(ctx, pool.ID, staker); err != nil {
			return nil, fmt.Errorf("create staker %d: %w", i, err)
		}
		if stake == 0 {
			continue
		}
		if _, err := engine.Deposit(ctx, farming.StakeRequest{Pool: pool.ID, Caller: staker, Amount: stake}); err != nil {
			return nil, fmt.Errorf("deposit staker %d: %w", i, err)
		}
	}

	funded := []uint64{opts.FundA, opts.FundB}[:len(rewards)]
	for s, amount := range funded {
		if amount == 0 {
			continue
		}
		asset := rewards[s]
		if err := ledger.Mint(custody.WalletAccount(simAuthority, asset), amount); err != nil {
			return nil, err
		}
		if _, err := engine.Fund(ctx, farming.FundRequest{Pool: pool.ID, Caller: simAuthority, Slot: farming.Slot(s), Amount: amount}); err != nil {
			return nil, fmt.Errorf("fund slot %s: %w", farming.Slot(s), err)
		}
	}

	cfg := *a.Config
	cfg.Monitor.SnapshotRetention = 0
	cfg.Alerting.Enabled = opts.Alerts
	var notifier alerting.Notifier
	if opts.Alerts {
		if notifier = a.newNotifier(); notifier == nil {
			notifier = alerting.NewLogNotifier(a.Logger)
		}
	}
	collector := &snapshotCollector{}
	monitor := service.New(&cfg, nil, engine, collector, nil, notifier, nil, a.Logger)

	for step := 0; step <= opts.Steps; step++ {
		if step > 0 {
			clk.Advance(opts.Step)
		}
		if err := monitor.ProcessBucket(ctx, clk.Now()); err != nil {
			return nil, fmt.Errorf("snapshot step %d: %w", step, err)
		}
	}

	result := &SimulateResult{Snapshots: collector.all(), Funded: funded}
	for i := range opts.Stakes {
		claim, err := engine.Claim(ctx, pool.ID, simStaker(i), common.Address{})
		if err != nil {
			return nil, fmt.Errorf("claim staker %d: %w", i, err)
		}
		result.Claimed = append(result.Claimed, claim.Amounts)
	}
	if result.Vaults, err = engine.RemainingRewards(ctx, pool.ID); err != nil {
		return nil, err
	}

	a.printSimulation(result)

	if err := checkConservation(result); err != nil {
		return result, err
	}
	if opts.CSVPath != "" || opts.PNGPath != "" {
		if err := a.writeSnapshots(result.Snapshots, ExportOptions{
			Pool:      pool.ID,
			CSVPath:   opts.CSVPath,
			PNGPath:   opts.PNGPath,
			MaxPoints: a.Config.ResolveMaxPoints(0),
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}

func checkConservation(res *SimulateResult) error {
	for s, funded := range res.Funded {
		var claimed uint64
		for _, amounts := range res.Claimed {
			claimed += amounts[s]
		}
		if claimed+res.Vaults[s] != funded {
			return fmt.Errorf("slot %s: claimed %d + vault %d != funded %d", farming.Slot(s), claimed, res.Vaults[s], funded)
		}
	}
	return nil
}

func (a *App) printSimulation(res *SimulateResult) {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tTotal staked\tVaults\tPaid out")
	for _, snap := range res.Snapshots {
		vaults := make([]uint64, len(snap.Slots))
		paid := make([]uint64, len(snap.Slots))
		for i, slot := range snap.Slots {
			vaults[i] = slot.VaultBalance
			paid[i] = slot.TotalClaimed
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", snap.TakenAt.Format(time.RFC3339), a.units(snap.TotalStaked), a.unitList(vaults), a.unitList(paid))
	}
	writer.Flush()

	fmt.Fprintln(a.Out)
	writer = tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Staker\tClaimed")
	for i, amounts := range res.Claimed {
		fmt.Fprintf(writer, "%s\t%s\n", simStaker(i).Hex(), a.unitList(amounts))
	}
	fmt.Fprintf(writer, "remaining\t%s\n", a.unitList(res.Vaults))
	writer.Flush()
}

// snapshotCollector keeps monitor snapshots in memory.
type snapshotCollector struct {
	mu    sync.Mutex
	snaps []storage.PoolSnapshot
}

func (c *snapshotCollector) UpsertSnapshot(_ context.Context, snap storage.PoolSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, snap)
	return nil
}

func (c *snapshotCollector) ListSnapshotsBetween(_ context.Context, id common.Hash, from, to time.Time) ([]storage.PoolSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []storage.PoolSnapshot
	for _, snap := range c.snaps {
		if snap.Pool == id && !snap.TakenAt.Before(from) && !snap.TakenAt.After(to) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (c *snapshotCollector) ListRecentSnapshots(_ context.Context, id common.Hash, limit int) ([]storage.PoolSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []storage.PoolSnapshot
	for i := len(c.snaps) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if c.snaps[i].Pool == id {
			out = append(out, c.snaps[i])
		}
	}
	return out, nil
}

func (c *snapshotCollector) DeleteSnapshotsBefore(_ context.Context, t time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.snaps[:0]
	var removed int64
	for _, snap := range c.snaps {
		if snap.TakenAt.Before(t) {
			removed++
			continue
		}
		kept = append(kept, snap)
	}
	c.snaps = kept
	return removed, nil
}

func (c *snapshotCollector) all() []storage.PoolSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]storage.PoolSnapshot(nil), c.snaps...)
}

var _ storage.SnapshotStore = (*snapshotCollector)(nil)
