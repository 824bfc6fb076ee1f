package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"reward-farming/internal/farming"
	"reward-farming/internal/fixedpoint"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorderExportsFarmSeries(t *testing.T) {
	r := NewRecorder()
	id := common.HexToHash("0xfeed")

	r.OperationCompleted("deposit", nil)
	r.OperationCompleted("withdraw", farming.ErrInsufficientStake)
	r.OperationCompleted("fund", errors.New("boom"))
	r.RewardsFunded(id, farming.SlotA, 600)
	r.RewardsClaimed(id, farming.SlotB, 42)

	rate := new(uint256.Int).Mul(uint256.NewInt(10), fixedpoint.Scale)
	r.PoolUpdated(&farming.Pool{
		ID:          id,
		TotalStaked: 1000,
		UserCount:   2,
		Slots:       []farming.RewardSlot{{RewardRate: rate, RewardPerTokenStored: fixedpoint.Zero()}},
	})
	r.SnapshotCompleted(nil)

	out := scrape(t, r)
	require.Contains(t, out, `farm_operations_total{op="deposit",result="ok"} 1`)
	require.Contains(t, out, `farm_operations_total{op="withdraw",result="insufficient_funds"} 1`)
	require.Contains(t, out, `farm_operations_total{op="fund",result="unknown"} 1`)
	require.Contains(t, out, `farm_rewards_funded_total{slot="A"} 600`)
	require.Contains(t, out, `farm_rewards_claimed_total{slot="B"} 42`)
	require.Contains(t, out, `farm_pool_total_staked{pool="`+id.Hex()+`"} 1000`)
	require.Contains(t, out, `farm_pool_reward_rate{pool="`+id.Hex()+`",slot="A"} 10`)
	require.Contains(t, out, `farm_pool_users{pool="`+id.Hex()+`"} 2`)
	require.Contains(t, out, `farm_snapshot_runs_total{result="ok"} 1`)
	require.Contains(t, out, "go_goroutines")
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	a.OperationCompleted("claim", nil)
	require.NotContains(t, scrape(t, b), `op="claim"`)
}
