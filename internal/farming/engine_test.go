package farming

import (
	"context"
	"errors"
	"math"
	"math/big"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"reward-farming/internal/clock"
	"reward-farming/internal/custody"
)

var (
	authority    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob          = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	mallory      = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	stakeAsset   = common.HexToAddress("0x0000000000000000000000000000000000005a4e")
	rewardAssetA = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	rewardAssetB = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
	baseKey      = common.HexToAddress("0x000000000000000000000000000000000000ba5e")
)

type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *clock.Manual
	ledger *custody.MemoryLedger
	engine *Engine
}

func addr(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x10000 + n)))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ledger := custody.NewMemoryLedger()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	return &harness{
		t:      t,
		ctx:    context.Background(),
		clock:  clk,
		ledger: ledger,
		engine: New(NewMemoryStore(ledger), clk, Options{}, zerolog.Nop()),
	}
}

func (h *harness) pool(duration uint64, rewards ...common.Address) *Pool {
	h.t.Helper()
	pool, err := h.engine.InitializePool(h.ctx, InitializePoolParams{
		Authority:    authority,
		StakingAsset: stakeAsset,
		RewardAssets: rewards,
		BaseKey:      baseKey,
		Duration:     duration,
	})
	require.NoError(h.t, err)
	return pool
}

func (h *harness) mint(owner, asset common.Address, amount uint64) {
	h.t.Helper()
	require.NoError(h.t, h.ledger.Mint(custody.WalletAccount(owner, asset), amount))
}

func (h *harness) user(pool *Pool, owner common.Address, stake uint64) {
	h.t.Helper()
	_, err := h.engine.CreateUser(h.ctx, pool.ID, owner)
	require.NoError(h.t, err)
	if stake > 0 {
		h.mint(owner, stakeAsset, stake)
		_, err = h.engine.Deposit(h.ctx, StakeRequest{Pool: pool.ID, Caller: owner, Amount: stake})
		require.NoError(h.t, err)
	}
}

func (h *harness) fund(pool *Pool, slot Slot, amount uint64) *Pool {
	h.t.Helper()
	asset := pool.Slots[slot].Asset
	h.mint(authority, asset, amount)
	funded, err := h.engine.Fund(h.ctx, FundRequest{Pool: pool.ID, Caller: authority, Slot: slot, Amount: amount})
	require.NoError(h.t, err)
	return funded
}

func (h *harness) claim(pool *Pool, owner common.Address) []uint64 {
	h.t.Helper()
	res, err := h.engine.Claim(h.ctx, pool.ID, owner, owner)
	require.NoError(h.t, err)
	return res.Amounts
}

func (h *harness) balance(account custody.Account) uint64 {
	h.t.Helper()
	b, err := h.ledger.Balance(h.ctx, account)
	require.NoError(h.t, err)
	return b
}

func (h *harness) advance(seconds int) {
	h.clock.Advance(time.Duration(seconds) * time.Second)
}

func TestSingleStakerReceivesWholePeriod(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	h.fund(pool, SlotA, 10_000)

	h.advance(100)
	got := h.claim(pool, alice)

	require.Equal(t, []uint64{10_000}, got)
	require.Zero(t, h.balance(pool.Slots[SlotA].Vault))
	require.Equal(t, uint64(10_000), h.balance(custody.WalletAccount(alice, rewardAssetA)))
}

func TestTwoEqualStakersSplitRewards(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	h.user(pool, bob, 500)
	h.fund(pool, SlotA, 10_000)

	h.advance(50)
	require.Equal(t, []uint64{2_500}, h.claim(pool, alice))
	require.Equal(t, []uint64{2_500}, h.claim(pool, bob))

	h.advance(50)
	require.Equal(t, []uint64{2_500}, h.claim(pool, alice))
	require.Equal(t, []uint64{2_500}, h.claim(pool, bob))

	require.Equal(t, uint64(5_000), h.balance(custody.WalletAccount(alice, rewardAssetA)))
	require.Equal(t, uint64(5_000), h.balance(custody.WalletAccount(bob, rewardAssetA)))
}

func TestMidPeriodTopUpCarriesLeftover(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	h.fund(pool, SlotA, 10_000)

	h.advance(50)
	funded := h.fund(pool, SlotA, 10_000)
	require.Equal(t, uint64(150), funded.RewardRateUnits(SlotA))
	require.Equal(t, funded.Slots[SlotA].LastUpdateTime+100, funded.Slots[SlotA].PeriodFinish)

	h.advance(100)
	got := h.claim(pool, alice)
	require.LessOrEqual(t, got[0], uint64(20_000))
	require.GreaterOrEqual(t, got[0], uint64(19_999))

	after, err := h.engine.GetPool(h.ctx, pool.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(20_000), after.Slots[SlotA].TotalFunded)
}

func TestWithdrawMoreThanBalanceLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	h.fund(pool, SlotA, 10_000)
	h.advance(10)

	before, err := h.engine.GetPosition(h.ctx, pool.ID, alice)
	require.NoError(t, err)
	poolBefore, err := h.engine.GetPool(h.ctx, pool.ID)
	require.NoError(t, err)

	_, err = h.engine.Withdraw(h.ctx, StakeRequest{Pool: pool.ID, Caller: alice, Amount: 501})
	require.ErrorIs(t, err, ErrInsufficientStake)
	require.Equal(t, KindInsufficientFunds, KindOf(err))

	after, err := h.engine.GetPosition(h.ctx, pool.ID, alice)
	require.NoError(t, err)
	poolAfter, err := h.engine.GetPool(h.ctx, pool.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, poolBefore, poolAfter)
	require.Equal(t, uint64(500), h.balance(pool.StakingVault))
}

func TestWithdrawReturnsStake(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)

	res, err := h.engine.Withdraw(h.ctx, StakeRequest{Pool: pool.ID, Caller: alice, Amount: 500})
	require.NoError(t, err)
	require.Zero(t, res.Position.Balance)
	require.Zero(t, res.TotalStaked)
	require.Equal(t, uint64(500), h.balance(custody.WalletAccount(alice, stakeAsset)))

	pos, err := h.engine.GetPosition(h.ctx, pool.ID, alice)
	require.NoError(t, err)
	require.Zero(t, pos.Balance)
}

func TestZeroStakeDoesNotAccrueRetroactively(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.fund(pool, SlotA, 10_000)

	h.advance(50)
	h.user(pool, alice, 500)

	h.advance(50)
	got := h.claim(pool, alice)
	require.Equal(t, []uint64{5_000}, got)
	require.Equal(t, uint64(5_000), h.balance(pool.Slots[SlotA].Vault))
}

func TestProportionalRewards(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 300)
	h.user(pool, bob, 100)
	h.fund(pool, SlotA, 10_000)

	h.advance(100)
	a := h.claim(pool, alice)[0]
	b := h.claim(pool, bob)[0]
	require.Equal(t, uint64(7_500), a)
	require.Equal(t, uint64(2_500), b)
}

func TestEmissionStopsAtPeriodFinish(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	h.fund(pool, SlotA, 10_000)

	h.advance(100)
	require.Equal(t, []uint64{10_000}, h.claim(pool, alice))

	h.advance(1_000)
	require.Equal(t, []uint64{0}, h.claim(pool, alice))
}

func TestRefreshIsIdempotent(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	h.fund(pool, SlotA, 10_000)
	h.advance(30)

	p, err := h.engine.GetPool(h.ctx, pool.ID)
	require.NoError(t, err)
	pos, err := h.engine.GetPosition(h.ctx, pool.ID, alice)
	require.NoError(t, err)

	now := clock.Unix(h.clock)
	require.NoError(t, refresh(p, pos, now))
	p1, pos1 := p.Clone(), pos.Clone()
	require.NoError(t, refresh(p, pos, now))
	require.Equal(t, p1, p)
	require.Equal(t, pos1, pos)
	require.Equal(t, uint64(3_000), pos.Slots[SlotA].RewardsOwed)
}

func TestDualRewardSlots(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA, rewardAssetB)
	require.Len(t, pool.Slots, 2)
	h.user(pool, alice, 500)
	h.fund(pool, SlotA, 10_000)

	h.advance(50)
	h.fund(pool, SlotB, 1_000)

	h.advance(100)
	got := h.claim(pool, alice)
	require.Equal(t, uint64(10_000), got[SlotA])
	require.Equal(t, uint64(1_000), got[SlotB])
	require.Equal(t, uint64(1_000), h.balance(custody.WalletAccount(alice, rewardAssetB)))
}

func TestFundingSlotBOnSingleRewardPool(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.mint(authority, rewardAssetB, 10)

	_, err := h.engine.Fund(h.ctx, FundRequest{Pool: pool.ID, Caller: authority, Slot: SlotB, Amount: 10})
	require.ErrorIs(t, err, ErrSlotNotConfigured)
	require.Equal(t, uint64(10), h.balance(custody.WalletAccount(authority, rewardAssetB)))
}

func TestInitializeValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.InitializePool(h.ctx, InitializePoolParams{Authority: authority, RewardAssets: []common.Address{rewardAssetA}})
	require.ErrorIs(t, err, ErrInvalidDuration)
	require.Equal(t, KindConfig, KindOf(err))

	_, err = h.engine.InitializePool(h.ctx, InitializePoolParams{Authority: authority, Duration: 10})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = h.engine.InitializePool(h.ctx, InitializePoolParams{
		Authority: authority, Duration: 10,
		RewardAssets: []common.Address{rewardAssetA, rewardAssetA},
	})
	require.ErrorIs(t, err, ErrInvalidConfig)

	pool := h.pool(10, rewardAssetA)
	require.Equal(t, pool.CreatedAt, pool.Slots[SlotA].PeriodFinish)
	require.True(t, pool.Slots[SlotA].RewardRate.IsZero())

	_, err = h.engine.InitializePool(h.ctx, InitializePoolParams{
		Authority: authority, StakingAsset: stakeAsset, BaseKey: baseKey, Duration: 10,
		RewardAssets: []common.Address{rewardAssetA},
	})
	require.ErrorIs(t, err, ErrPoolExists)
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 0)

	_, err := h.engine.CreateUser(h.ctx, pool.ID, alice)
	require.ErrorIs(t, err, ErrPositionExists)

	p, err := h.engine.GetPool(h.ctx, pool.ID)
	require.NoError(t, err)
	require.Equal(t, uint32(1), p.UserCount)
}

func TestOperationsOnMissingRecords(t *testing.T) {
	h := newHarness(t)
	missing := common.HexToHash("0x01")

	_, err := h.engine.CreateUser(h.ctx, missing, alice)
	require.ErrorIs(t, err, ErrPoolNotFound)
	require.Equal(t, KindPrecondition, KindOf(err))

	pool := h.pool(100, rewardAssetA)
	_, err = h.engine.Deposit(h.ctx, StakeRequest{Pool: pool.ID, Caller: alice, Amount: 1})
	require.ErrorIs(t, err, ErrPositionNotFound)
}

func TestAuthorization(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)

	h.mint(mallory, stakeAsset, 10)
	_, err := h.engine.Deposit(h.ctx, StakeRequest{Pool: pool.ID, Caller: mallory, Owner: alice, Amount: 10})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, KindAuthorization, KindOf(err))

	_, err = h.engine.Withdraw(h.ctx, StakeRequest{Pool: pool.ID, Caller: mallory, Owner: alice, Amount: 1})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.engine.Claim(h.ctx, pool.ID, mallory, alice)
	require.ErrorIs(t, err, ErrUnauthorized)

	h.mint(mallory, rewardAssetA, 10)
	_, err = h.engine.Fund(h.ctx, FundRequest{Pool: pool.ID, Caller: mallory, Amount: 10})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.engine.Pause(h.ctx, pool.ID, mallory)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestFunderManagement(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	funder := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	_, err := h.engine.AuthorizeFunder(h.ctx, pool.ID, authority, authority)
	require.ErrorIs(t, err, ErrFunderAlreadyAuthorized)

	p, err := h.engine.AuthorizeFunder(h.ctx, pool.ID, authority, funder)
	require.NoError(t, err)
	require.Equal(t, []common.Address{funder}, p.Funders)

	_, err = h.engine.AuthorizeFunder(h.ctx, pool.ID, authority, funder)
	require.ErrorIs(t, err, ErrFunderAlreadyAuthorized)

	h.mint(funder, rewardAssetA, 100)
	_, err = h.engine.Fund(h.ctx, FundRequest{Pool: pool.ID, Caller: funder, Amount: 100})
	require.NoError(t, err)

	for i := 2; i <= DefaultMaxFunders; i++ {
		_, err = h.engine.AuthorizeFunder(h.ctx, pool.ID, authority, addr(i))
		require.NoError(t, err)
	}
	_, err = h.engine.AuthorizeFunder(h.ctx, pool.ID, authority, mallory)
	require.ErrorIs(t, err, ErrMaxFunders)

	_, err = h.engine.DeauthorizeFunder(h.ctx, pool.ID, authority, authority)
	require.ErrorIs(t, err, ErrCannotDeauthorizeAuthority)
	_, err = h.engine.DeauthorizeFunder(h.ctx, pool.ID, authority, mallory)
	require.ErrorIs(t, err, ErrFunderNotFound)

	p, err = h.engine.DeauthorizeFunder(h.ctx, pool.ID, authority, funder)
	require.NoError(t, err)
	require.False(t, p.IsFunder(funder))

	h.mint(funder, rewardAssetA, 100)
	_, err = h.engine.Fund(h.ctx, FundRequest{Pool: pool.ID, Caller: funder, Amount: 100})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestPauseGatesEntryButNotExit(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	h.fund(pool, SlotA, 1_000)

	_, err := h.engine.Pause(h.ctx, pool.ID, authority)
	require.ErrorIs(t, err, ErrPeriodActive)

	h.advance(100)
	p, err := h.engine.Pause(h.ctx, pool.ID, authority)
	require.NoError(t, err)
	require.True(t, p.Paused)

	_, err = h.engine.Pause(h.ctx, pool.ID, authority)
	require.ErrorIs(t, err, ErrPoolPaused)

	h.mint(alice, stakeAsset, 1)
	_, err = h.engine.Deposit(h.ctx, StakeRequest{Pool: pool.ID, Caller: alice, Amount: 1})
	require.ErrorIs(t, err, ErrPoolPaused)
	_, err = h.engine.CreateUser(h.ctx, pool.ID, bob)
	require.ErrorIs(t, err, ErrPoolPaused)
	h.mint(authority, rewardAssetA, 1)
	_, err = h.engine.Fund(h.ctx, FundRequest{Pool: pool.ID, Caller: authority, Amount: 1})
	require.ErrorIs(t, err, ErrPoolPaused)

	require.Equal(t, []uint64{1_000}, h.claim(pool, alice))
	_, err = h.engine.Withdraw(h.ctx, StakeRequest{Pool: pool.ID, Caller: alice, Amount: 500})
	require.NoError(t, err)

	p, err = h.engine.Unpause(h.ctx, pool.ID, authority)
	require.NoError(t, err)
	require.False(t, p.Paused)
	_, err = h.engine.Unpause(h.ctx, pool.ID, authority)
	require.ErrorIs(t, err, ErrPoolNotPaused)
}

func TestSweepExcess(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	require.NoError(t, h.ledger.Mint(pool.StakingVault, 7))

	swept, err := h.engine.SweepExcess(h.ctx, pool.ID, authority, common.Address{})
	require.NoError(t, err)
	require.Equal(t, uint64(7), swept)
	require.Equal(t, uint64(500), h.balance(pool.StakingVault))
	require.Equal(t, uint64(7), h.balance(custody.WalletAccount(authority, stakeAsset)))

	swept, err = h.engine.SweepExcess(h.ctx, pool.ID, authority, common.Address{})
	require.NoError(t, err)
	require.Zero(t, swept)
}

func TestSweepWaitsForPeriodEnd(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	h.fund(pool, SlotA, 1000)
	require.NoError(t, h.ledger.Mint(pool.StakingVault, 7))

	_, err := h.engine.SweepExcess(h.ctx, pool.ID, authority, common.Address{})
	require.ErrorIs(t, err, ErrPeriodActive)
	require.Equal(t, uint64(507), h.balance(pool.StakingVault))

	h.advance(100)
	swept, err := h.engine.SweepExcess(h.ctx, pool.ID, authority, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(7), swept)
	require.Equal(t, uint64(7), h.balance(custody.WalletAccount(bob, stakeAsset)))
}

func TestFailedCustodyRollsBackCounters(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 0)

	_, err := h.engine.Deposit(h.ctx, StakeRequest{Pool: pool.ID, Caller: alice, Amount: 10})
	require.ErrorIs(t, err, custody.ErrInsufficientFunds)
	require.Equal(t, KindInsufficientFunds, KindOf(err))

	pos, err := h.engine.GetPosition(h.ctx, pool.ID, alice)
	require.NoError(t, err)
	require.Zero(t, pos.Balance)
	p, err := h.engine.GetPool(h.ctx, pool.ID)
	require.NoError(t, err)
	require.Zero(t, p.TotalStaked)

	_, err = h.engine.Fund(h.ctx, FundRequest{Pool: pool.ID, Caller: authority, Amount: 10})
	require.ErrorIs(t, err, custody.ErrInsufficientFunds)
	p, err = h.engine.GetPool(h.ctx, pool.ID)
	require.NoError(t, err)
	require.True(t, p.Slots[SlotA].RewardRate.IsZero())
	require.Zero(t, p.Slots[SlotA].TotalFunded)
}

func TestStakeOverflowFailsClosed(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, math.MaxUint64)
	h.user(pool, bob, 0)
	h.mint(bob, stakeAsset, 1)

	_, err := h.engine.Deposit(h.ctx, StakeRequest{Pool: pool.ID, Caller: bob, Amount: 1})
	require.Error(t, err)
	require.Equal(t, KindOverflow, KindOf(err))
	require.Equal(t, uint64(1), h.balance(custody.WalletAccount(bob, stakeAsset)))
}

func TestClaimWithNothingOwedSucceeds(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA, rewardAssetB)
	h.user(pool, alice, 0)
	require.Equal(t, []uint64{0, 0}, h.claim(pool, alice))

	events, err := h.engine.Events(h.ctx, pool.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventClaim, events[0].Kind)
}

func TestProjectDoesNotCommit(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	h.fund(pool, SlotA, 10_000)
	h.advance(25)

	proj, err := h.engine.Project(h.ctx, pool.ID, alice)
	require.NoError(t, err)
	require.Equal(t, []uint64{2_500}, proj.Position.Owed())

	pos, err := h.engine.GetPosition(h.ctx, pool.ID, alice)
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, pos.Owed())

	remaining, err := h.engine.RemainingRewards(h.ctx, pool.ID)
	require.NoError(t, err)
	require.Equal(t, []uint64{10_000}, remaining)
}

func TestConcurrentDepositsSerializePerPool(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.fund(pool, SlotA, 100_000)

	const users = 32
	owners := make([]common.Address, users)
	for i := range owners {
		owners[i] = addr(100 + i)
		h.user(pool, owners[i], 0)
		h.mint(owners[i], stakeAsset, 100)
	}

	var wg sync.WaitGroup
	errs := make(chan error, users*10)
	for _, owner := range owners {
		wg.Add(1)
		go func(owner common.Address) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := h.engine.Deposit(h.ctx, StakeRequest{Pool: pool.ID, Caller: owner, Amount: 10}); err != nil {
					errs <- err
				}
			}
		}(owner)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, err := h.engine.GetPool(h.ctx, pool.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(users*100), p.TotalStaked)
	require.Equal(t, p.TotalStaked, h.balance(p.StakingVault))
}

func TestMemoryStoreDropsLocksForUnknownPools(t *testing.T) {
	ledger := custody.NewMemoryLedger()
	store := NewMemoryStore(ledger)
	engine := New(store, clock.NewManual(time.Unix(1_700_000_000, 0)), Options{}, zerolog.Nop())
	ctx := context.Background()

	pool, err := engine.InitializePool(ctx, InitializePoolParams{
		Authority:    authority,
		StakingAsset: stakeAsset,
		RewardAssets: []common.Address{rewardAssetA},
		BaseKey:      baseKey,
		Duration:     100,
	})
	require.NoError(t, err)
	require.Len(t, store.locks, 1)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			missing := common.BigToHash(big.NewInt(int64(i % 8)))
			_, err := engine.Deposit(ctx, StakeRequest{Pool: missing, Caller: alice, Amount: 1})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.ErrorIs(t, err, ErrPoolNotFound)
	}

	require.Len(t, store.locks, 1)
	require.Contains(t, store.locks, pool.ID)

	_, err = engine.CreateUser(ctx, pool.ID, alice)
	require.NoError(t, err)
	require.Len(t, store.locks, 1)
}

func TestRandomSequencesConserveAndStayMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	h := newHarness(t)
	pool := h.pool(60, rewardAssetA, rewardAssetB)
	owners := []common.Address{alice, bob, mallory}
	for _, o := range owners {
		h.user(pool, o, 0)
		h.mint(o, stakeAsset, 1_000_000)
	}

	last := make([]*uint256.Int, 2)
	for step := 0; step < 400; step++ {
		owner := owners[rng.Intn(len(owners))]
		switch rng.Intn(5) {
		case 0:
			_, _ = h.engine.Deposit(h.ctx, StakeRequest{Pool: pool.ID, Caller: owner, Amount: uint64(rng.Intn(5_000) + 1)})
		case 1:
			_, _ = h.engine.Withdraw(h.ctx, StakeRequest{Pool: pool.ID, Caller: owner, Amount: uint64(rng.Intn(5_000) + 1)})
		case 2:
			h.fund(pool, Slot(rng.Intn(2)), uint64(rng.Intn(9_999)+1))
		case 3:
			h.claim(pool, owner)
		}
		h.advance(rng.Intn(20))

		p, err := h.engine.GetPool(h.ctx, pool.ID)
		require.NoError(t, err)
		for i, slot := range p.Slots {
			require.LessOrEqual(t, slot.TotalClaimed, slot.TotalFunded)
			require.Equal(t, slot.TotalFunded-slot.TotalClaimed, h.balance(slot.Vault))
			if last[i] != nil {
				require.True(t, slot.RewardPerTokenStored.Cmp(last[i]) >= 0, "slot %d regressed", i)
			}
			last[i] = new(uint256.Int).Set(slot.RewardPerTokenStored)
		}
		require.Equal(t, p.TotalStaked, h.balance(p.StakingVault))
	}
}

func TestClockRegressionIsClamped(t *testing.T) {
	h := newHarness(t)
	pool := h.pool(100, rewardAssetA)
	h.user(pool, alice, 500)
	h.fund(pool, SlotA, 10_000)

	regressed := clock.NewManual(h.clock.Now().Add(-1_000 * time.Second))
	e := New(h.engine.store, regressed, Options{}, zerolog.Nop())

	res, err := e.Claim(h.ctx, pool.ID, alice, alice)
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, res.Amounts)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindUnknown, KindOf(nil))
	require.Equal(t, KindUnknown, KindOf(errors.New("x")))
	require.Equal(t, "paused", KindOf(ErrPoolPaused).String())
}
