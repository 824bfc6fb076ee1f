// Package metrics exports engine activity to prometheus.
package metrics

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reward-farming/internal/farming"
	"reward-farming/internal/fixedpoint"
)

const namespace = "farm"

// Recorder implements farming.Recorder on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	claimed      *prometheus.CounterVec
	funded       *prometheus.CounterVec
	totalStaked  *prometheus.GaugeVec
	rewardRate   *prometheus.GaugeVec
	userCount    *prometheus.GaugeVec
	snapshotRuns *prometheus.CounterVec
}

// NewRecorder registers the farm collectors plus the go and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by name and result.",
		}, []string{"op", "result"}),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_claimed_total",
			Help:      "Reward units paid out by slot.",
		}, []string{"slot"}),
		funded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_funded_total",
			Help:      "Reward units scheduled by slot.",
		}, []string{"slot"}),
		totalStaked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_total_staked",
			Help:      "Staked units per pool.",
		}, []string{"pool"}),
		rewardRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_reward_rate",
			Help:      "Reward units emitted per second.",
		}, []string{"pool", "slot"}),
		userCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_users",
			Help:      "Positions created per pool.",
		}, []string{"pool"}),
		snapshotRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_runs_total",
			Help:      "Monitor snapshot cycles by result.",
		}, []string{"result"}),
	}
	r.registry.MustRegister(
		r.operations,
		r.claimed,
		r.funded,
		r.totalStaked,
		r.rewardRate,
		r.userCount,
		r.snapshotRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) OperationCompleted(op string, err error) {
	result := "ok"
	if err != nil {
		result = farming.KindOf(err).String()
	}
	r.operations.WithLabelValues(op, result).Inc()
}

func (r *Recorder) RewardsFunded(_ common.Hash, slot farming.Slot, amount uint64) {
	r.funded.WithLabelValues(slot.String()).Add(float64(amount))
}

func (r *Recorder) RewardsClaimed(_ common.Hash, slot farming.Slot, amount uint64) {
	r.claimed.WithLabelValues(slot.String()).Add(float64(amount))
}

func (r *Recorder) PoolUpdated(pool *farming.Pool) {
	id := pool.ID.Hex()
	r.totalStaked.WithLabelValues(id).Set(float64(pool.TotalStaked))
	r.userCount.WithLabelValues(id).Set(float64(pool.UserCount))
	for i, s := range pool.Slots {
		rate := fixedpoint.Units(s.RewardRate)
		r.rewardRate.WithLabelValues(id, farming.Slot(i).String()).Set(rate.Float64())
	}
}

// SnapshotCompleted counts a monitor cycle.
func (r *Recorder) SnapshotCompleted(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.snapshotRuns.WithLabelValues(result).Inc()
}

var _ farming.Recorder = (*Recorder)(nil)
