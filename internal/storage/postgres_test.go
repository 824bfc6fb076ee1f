package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"reward-farming/internal/clock"
	"reward-farming/internal/config"
	"reward-farming/internal/custody"
	"reward-farming/internal/farming"
)

// newTestStore connects to FARMD_TEST_DSN and applies migrations, or skips.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("FARMD_TEST_DSN")
	if dsn == "" {
		t.Skip("FARMD_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn, StatementTimeout: 10 * time.Second})
	require.NoError(t, err)
	store := NewStore(pool)
	t.Cleanup(store.Close)

	_, err = store.Migrate(ctx)
	require.NoError(t, err)
	return store
}

// freshAddress keeps runs against a shared database from touching each other's rows.
func freshAddress() common.Address {
	id := uuid.New()
	return common.BytesToAddress(id[:])
}

func TestPostgresStakeFundClaimFlow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	clk := clock.NewManual(time.Now().UTC().Truncate(time.Second))
	engine := farming.New(store, clk, farming.Options{}, zerolog.Nop())

	owner, staker, stake, reward := freshAddress(), freshAddress(), freshAddress(), freshAddress()
	pool, err := engine.InitializePool(ctx, farming.InitializePoolParams{
		Authority:    owner,
		StakingAsset: stake,
		RewardAssets: []common.Address{reward},
		BaseKey:      freshAddress(),
		Duration:     100,
	})
	require.NoError(t, err)

	require.NoError(t, store.Mint(ctx, custody.WalletAccount(staker, stake), 100))
	require.NoError(t, store.Mint(ctx, custody.WalletAccount(owner, reward), 1000))

	_, err = engine.CreateUser(ctx, pool.ID, staker)
	require.NoError(t, err)
	_, err = engine.Deposit(ctx, farming.StakeRequest{Pool: pool.ID, Caller: staker, Amount: 100})
	require.NoError(t, err)

	// the guarded debit rejects an overdraft and leaves the pool untouched
	_, err = engine.Deposit(ctx, farming.StakeRequest{Pool: pool.ID, Caller: staker, Amount: 1})
	require.ErrorIs(t, err, custody.ErrInsufficientFunds)

	funded, err := engine.Fund(ctx, farming.FundRequest{Pool: pool.ID, Caller: owner, Slot: farming.SlotA, Amount: 1000})
	require.NoError(t, err)
	require.EqualValues(t, 1000, funded.Slots[0].TotalFunded)

	clk.Advance(50 * time.Second)
	claimed, err := engine.Claim(ctx, pool.ID, staker, staker)
	require.NoError(t, err)
	require.Equal(t, []uint64{500}, claimed.Amounts)

	got, err := store.Balance(ctx, custody.WalletAccount(staker, reward))
	require.NoError(t, err)
	require.EqualValues(t, 500, got)

	stored, err := store.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100, stored.TotalStaked)
	require.EqualValues(t, 1, stored.UserCount)
	held, err := store.Balance(ctx, stored.StakingVault)
	require.NoError(t, err)
	require.EqualValues(t, 100, held)
	vault, err := store.Balance(ctx, stored.Slots[0].Vault)
	require.NoError(t, err)
	require.EqualValues(t, 500, vault)

	pos, err := store.GetPosition(ctx, pool.ID, staker)
	require.NoError(t, err)
	require.EqualValues(t, 100, pos.Balance)

	events, err := store.ListEvents(ctx, pool.ID, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, farming.EventClaim, events[0].Kind)
	require.Equal(t, []uint64{500}, events[0].Amounts)
	require.Equal(t, farming.EventFund, events[1].Kind)
}

func TestPostgresSnapshotsAndAlerts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := uuid.New()
	id := common.BytesToHash(append(u[:], u[:]...))
	taken := time.Now().UTC().Truncate(time.Minute)

	snap := PoolSnapshot{
		Pool:        id,
		TakenAt:     taken,
		TotalStaked: 10,
		UserCount:   1,
		Slots:       []SlotSnapshot{{Slot: 0, RewardRate: "1", RewardPerToken: "0", TotalFunded: 100}},
	}
	require.NoError(t, store.UpsertSnapshot(ctx, snap))
	snap.TotalStaked = 25
	require.NoError(t, store.UpsertSnapshot(ctx, snap))

	recent, err := store.ListRecentSnapshots(ctx, id, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.EqualValues(t, 25, recent[0].TotalStaked)
	require.True(t, taken.Equal(recent[0].TakenAt))
	require.Equal(t, snap.Slots, recent[0].Slots)

	between, err := store.ListSnapshotsBetween(ctx, id, taken, taken.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, between, 1)

	alert := PeriodAlert{Pool: id, Slot: 0, PeriodFinish: 1_700_000_000, Stage: "expiring", Channels: []string{"log"}}
	inserted, err := store.InsertPeriodAlert(ctx, alert)
	require.NoError(t, err)
	require.True(t, inserted)
	inserted, err = store.InsertPeriodAlert(ctx, alert)
	require.NoError(t, err)
	require.False(t, inserted)

	alerts, err := store.ListRecentAlerts(ctx, id, 5)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "expiring", alerts[0].Stage)
	require.EqualValues(t, 1_700_000_000, alerts[0].PeriodFinish)
	require.Equal(t, []string{"log"}, alerts[0].Channels)
}
