package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"reward-farming/internal/clock"
	"reward-farming/internal/custody"
	"reward-farming/internal/farming"
	"reward-farming/internal/fixedpoint"
	"reward-farming/internal/metrics"
	"reward-farming/internal/version"
)

var (
	authority  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	stakeAsset = common.HexToAddress("0x0000000000000000000000000000000000005a4e")
	rewardA    = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
)

type fixture struct {
	t      *testing.T
	srv    *httptest.Server
	clock  *clock.Manual
	ledger *custody.MemoryLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger := custody.NewMemoryLedger()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	rec := metrics.NewRecorder()
	engine := farming.New(farming.NewMemoryStore(ledger), clk, farming.Options{Recorder: rec}, zerolog.Nop())
	srv := httptest.NewServer(New(engine, Options{Metrics: rec.Handler(), EventPageSize: 10}, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return &fixture{t: t, srv: srv, clock: clk, ledger: ledger}
}

func (f *fixture) do(method, path string, from common.Address, body any, out any) int {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, f.srv.URL+path, reader)
	require.NoError(f.t, err)
	if from != (common.Address{}) {
		req.Header.Set(CallerHeader, from.Hex())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) mint(owner, asset common.Address, amount uint64) {
	f.t.Helper()
	require.NoError(f.t, f.ledger.Mint(custody.WalletAccount(owner, asset), amount))
}

func (f *fixture) createPool() Pool {
	f.t.Helper()
	var pool Pool
	status := f.do(http.MethodPost, "/pools", authority, InitializePoolRequest{
		StakingAsset: stakeAsset.Hex(),
		RewardAssets: []string{rewardA.Hex()},
		Duration:     100,
	}, &pool)
	require.Equal(f.t, http.StatusCreated, status)
	return pool
}

func TestStakeFundClaimFlow(t *testing.T) {
	f := newFixture(t)
	pool := f.createPool()
	require.Len(t, pool.Slots, 1)
	require.Equal(t, authority.Hex(), pool.Authority)
	base := "/pools/" + pool.ID

	f.mint(alice, stakeAsset, 100)
	f.mint(authority, rewardA, 1000)

	var pos Position
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, base+"/users", alice, nil, &pos))
	require.Equal(t, Amount("0"), pos.Balance)

	var staked StakeResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/deposit", alice, AmountRequest{Amount: "100"}, &staked))
	require.Equal(t, Amount("100"), staked.TotalStaked)

	var funded Pool
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/fund", authority, FundRequest{Slot: "A", Amount: "1000"}, &funded))
	require.Equal(t, "10", funded.Slots[0].RewardRate)
	require.Equal(t, Amount("1000"), funded.Slots[0].TotalFunded)

	f.clock.Advance(50 * time.Second)

	var view PositionView
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, base+"/users/"+alice.Hex(), common.Address{}, nil, &view))
	require.Equal(t, []Amount{"500"}, view.Pending)

	var claimed ClaimResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/claim", alice, nil, &claimed))
	require.Equal(t, []Amount{"500"}, claimed.Amounts)

	got, err := f.ledger.Balance(context.Background(), custody.WalletAccount(alice, rewardA))
	require.NoError(t, err)
	require.EqualValues(t, 500, got)

	var events []Event
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, base+"/events?limit=2", common.Address{}, nil, &events))
	require.Len(t, events, 2)
	require.Equal(t, string(farming.EventClaim), events[0].Kind)
	require.Equal(t, string(farming.EventFund), events[1].Kind)

	var list []Pool
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/pools", common.Address{}, nil, &list))
	require.Len(t, list, 1)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	pool := f.createPool()
	base := "/pools/" + pool.ID
	missing := "/pools/" + common.HexToHash("0xdead").Hex()

	f.mint(alice, stakeAsset, 10)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, base+"/users", alice, nil, nil))

	cases := []struct {
		name   string
		method string
		path   string
		from   common.Address
		body   any
		status int
	}{
		{"missing caller", http.MethodPost, base + "/deposit", common.Address{}, AmountRequest{Amount: "1"}, http.StatusForbidden},
		{"bad pool id", http.MethodGet, "/pools/xyz", common.Address{}, nil, http.StatusBadRequest},
		{"unknown pool", http.MethodGet, missing, common.Address{}, nil, http.StatusNotFound},
		{"unknown position", http.MethodGet, base + "/users/" + stranger.Hex(), common.Address{}, nil, http.StatusNotFound},
		{"zero amount", http.MethodPost, base + "/deposit", alice, AmountRequest{Amount: "0"}, http.StatusBadRequest},
		{"fractional amount", http.MethodPost, base + "/deposit", alice, AmountRequest{Amount: "1.5"}, http.StatusBadRequest},
		{"huge amount", http.MethodPost, base + "/deposit", alice, AmountRequest{Amount: "18446744073709551616"}, http.StatusBadRequest},
		{"wallet short", http.MethodPost, base + "/deposit", alice, AmountRequest{Amount: "11"}, http.StatusConflict},
		{"withdraw too much", http.MethodPost, base + "/withdraw", alice, AmountRequest{Amount: "1"}, http.StatusConflict},
		{"stranger funds", http.MethodPost, base + "/fund", stranger, FundRequest{Slot: "A", Amount: "1"}, http.StatusForbidden},
		{"slot B missing", http.MethodPost, base + "/fund", authority, FundRequest{Slot: "B", Amount: "1"}, http.StatusBadRequest},
		{"stranger claims", http.MethodPost, base + "/claim", stranger, OwnerRequest{Owner: alice.Hex()}, http.StatusForbidden},
		{"duplicate user", http.MethodPost, base + "/users", alice, nil, http.StatusBadRequest},
		{"unknown funder", http.MethodDelete, base + "/funders/" + stranger.Hex(), authority, nil, http.StatusNotFound},
		{"unpause active", http.MethodPost, base + "/unpause", authority, nil, http.StatusConflict},
		{"no route", http.MethodGet, "/nowhere", common.Address{}, nil, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body errorBody
			status := f.do(tc.method, tc.path, tc.from, tc.body, &body)
			require.Equal(t, tc.status, status)
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestPauseAndFunders(t *testing.T) {
	f := newFixture(t)
	pool := f.createPool()
	base := "/pools/" + pool.ID

	var updated Pool
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/funders", authority, FunderRequest{Funder: stranger.Hex()}, &updated))
	require.Equal(t, []string{stranger.Hex()}, updated.Funders)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/pause", authority, nil, &updated))
	require.True(t, updated.Paused)

	var body errorBody
	require.Equal(t, http.StatusConflict, f.do(http.MethodPost, base+"/users", alice, nil, &body))
	require.Contains(t, body.Error, "paused")

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/unpause", authority, nil, &updated))
	require.False(t, updated.Paused)

	require.Equal(t, http.StatusOK, f.do(http.MethodDelete, base+"/funders/"+stranger.Hex(), authority, nil, &updated))
	require.Empty(t, updated.Funders)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	pool := f.createPool()
	require.NoError(t, f.ledger.Mint(custody.Account(pool.StakingVault), 7))

	var res SweepResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/pools/"+pool.ID+"/sweep", authority, nil, &res))
	require.Equal(t, Amount("7"), res.Swept)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.createPool()

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), `farm_operations_total{op="initialize_pool",result="ok"} 1`)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		farming.ErrInvalidDuration:                             http.StatusBadRequest,
		farming.ErrUnauthorized:                                http.StatusForbidden,
		farming.ErrPoolNotFound:                                http.StatusNotFound,
		farming.ErrInsufficientStake:                           http.StatusConflict,
		farming.ErrPoolPaused:                                  http.StatusConflict,
		fixedpoint.ErrOverflow:                                 http.StatusUnprocessableEntity,
		custody.ErrInsufficientFunds:                           http.StatusConflict,
		errors.New("database down"):                            http.StatusInternalServerError,
		fmt.Errorf("deposit: %w", farming.ErrPositionNotFound): http.StatusNotFound,
	}
	for err, want := range cases {
		require.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestAmountParsing(t *testing.T) {
	v, err := Amount("18446744073709551615").Uint64()
	require.NoError(t, err)
	require.Equal(t, ^uint64(0), v)

	v, err = Amount("1e3").Uint64()
	require.NoError(t, err)
	require.EqualValues(t, 1000, v)

	for _, bad := range []string{"", "-1", "0.1", "abc"} {
		_, err := Amount(bad).Uint64()
		require.Error(t, err, bad)
	}
}

func TestHealthzReportsBuild(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	status := f.do(http.MethodGet, "/healthz", common.Address{}, nil, &body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, version.Version, body["version"])
}
