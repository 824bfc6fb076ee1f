package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"reward-farming/internal/alerting"
	"reward-farming/internal/config"
	"reward-farming/internal/farming"
	"reward-farming/internal/fixedpoint"
	"reward-farming/internal/scheduler"
	"reward-farming/internal/storage"
)

// SnapshotRecorder observes monitor cycles.
type SnapshotRecorder interface {
	SnapshotCompleted(err error)
}

// Service snapshots every pool on a schedule and raises reward-period alerts.
type Service struct {
	scheduler  *scheduler.Scheduler
	engine     *farming.Engine
	store      storage.SnapshotStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	recorder   SnapshotRecorder
	logger     zerolog.Logger

	leadTime  time.Duration
	retention time.Duration
	decimals  int32
	channels  []string
	alertsOn  bool
	locker    storage.AdvisoryLocker
	lockKey   int64

	mu   sync.Mutex
	sent map[alertKey]struct{}
}

type alertKey struct {
	pool   common.Hash
	slot   int
	finish uint64
	stage  alerting.Stage
}

// New constructs the monitoring service. store, alertStore, notifier and recorder may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, engine *farming.Engine, store storage.SnapshotStore, alertStore storage.AlertStore, notifier alerting.Notifier, recorder SnapshotRecorder, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		engine:     engine,
		store:      store,
		alertStore: alertStore,
		notifier:   notifier,
		recorder:   recorder,
		logger:     logger.With().Str("component", "service").Logger(),
		leadTime:   cfg.Monitor.AlertLeadTime,
		retention:  cfg.Monitor.SnapshotRetention,
		decimals:   cfg.App.AmountDecimals,
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		locker:     locker,
		lockKey:    cfg.Monitor.AdvisoryLockKey,
		sent:       make(map[alertKey]struct{}),
	}
}

// Run begins the aligned snapshot loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket snapshots every pool and evaluates period alerts for one time bucket.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	err = s.executeBucket(ctx, bucket)
	if s.recorder != nil {
		s.recorder.SnapshotCompleted(err)
	}
	return err
}

func (s *Service) executeBucket(ctx context.Context, bucket time.Time) error {
	pools, err := s.engine.ListPools(ctx)
	if err != nil {
		return fmt.Errorf("list pools: %w", err)
	}

	var failed int
	for _, p := range pools {
		snap, view, err := BuildSnapshot(ctx, s.engine, p.ID, bucket)
		if err != nil {
			failed++
			s.logger.Error().Err(err).Str("pool", p.ID.Hex()).Msg("failed to snapshot pool")
			continue
		}
		if s.store != nil {
			if err := s.store.UpsertSnapshot(ctx, snap); err != nil {
				failed++
				s.logger.Error().Err(err).Str("pool", p.ID.Hex()).Msg("failed to upsert snapshot")
			}
		}
		s.logger.Info().Time("bucket", bucket).
			Str("pool", p.ID.Hex()).
			Uint64("total_staked", snap.TotalStaked).
			Bool("paused", snap.Paused).
			Msg("snapshot recorded")

		s.checkPeriods(ctx, bucket, snap, view)
	}

	if s.store != nil && s.retention > 0 {
		removed, err := s.store.DeleteSnapshotsBefore(ctx, bucket.Add(-s.retention))
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to prune snapshots")
		} else if removed > 0 {
			s.logger.Info().Int64("removed", removed).Msg("pruned snapshots")
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d pools failed", failed, len(pools))
	}
	return nil
}

// checkPeriods alerts once per slot, period and stage.
func (s *Service) checkPeriods(ctx context.Context, bucket time.Time, snap storage.PoolSnapshot, view *farming.Projection) {
	if !s.alertsOn || s.notifier == nil {
		return
	}
	now := time.Unix(int64(view.At), 0).UTC()
	for i, slot := range view.Pool.Slots {
		// a slot that was never funded has no period to finish
		if slot.TotalFunded == 0 {
			continue
		}
		finish := time.Unix(int64(slot.PeriodFinish), 0).UTC()
		stage, ok := classifyPeriod(now, finish, s.leadTime)
		if !ok {
			continue
		}

		key := alertKey{pool: view.Pool.ID, slot: i, finish: slot.PeriodFinish, stage: stage}
		fresh, err := s.markSent(ctx, key)
		if err != nil {
			s.logger.Error().Err(err).Str("pool", key.pool.Hex()).Msg("failed to persist alert record")
			continue
		}
		if !fresh {
			continue
		}

		note := alerting.Notification{
			Pool:         view.Pool.ID,
			Slot:         farming.Slot(i).String(),
			Asset:        slot.Asset,
			Stage:        stage,
			Bucket:       bucket,
			PeriodFinish: finish,
			RewardRate:   fixedpoint.ScaledDecimal(slot.RewardRate, s.decimals),
			VaultBalance: fixedpoint.Decimal(snap.Slots[i].VaultBalance, s.decimals),
			TotalStaked:  fixedpoint.Decimal(snap.TotalStaked, s.decimals),
			Channels:     s.channels,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("pool", key.pool.Hex()).Msg("failed to dispatch alert")
		}
	}
}

func classifyPeriod(now, finish time.Time, lead time.Duration) (alerting.Stage, bool) {
	switch {
	case !now.Before(finish):
		return alerting.StageExpired, true
	case lead > 0 && finish.Sub(now) <= lead:
		return alerting.StageExpiring, true
	default:
		return "", false
	}
}

func (s *Service) markSent(ctx context.Context, key alertKey) (bool, error) {
	if s.alertStore != nil {
		return s.alertStore.InsertPeriodAlert(ctx, storage.PeriodAlert{
			Pool:         key.pool,
			Slot:         key.slot,
			PeriodFinish: key.finish,
			Stage:        string(key.stage),
			Channels:     s.channels,
		})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sent[key]; ok {
		return false, nil
	}
	s.sent[key] = struct{}{}
	return true, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// BuildSnapshot captures a pool refreshed to the engine clock, with its reward vault balances.
func BuildSnapshot(ctx context.Context, engine *farming.Engine, id common.Hash, at time.Time) (storage.PoolSnapshot, *farming.Projection, error) {
	view, err := engine.Project(ctx, id, common.Address{})
	if err != nil {
		return storage.PoolSnapshot{}, nil, err
	}
	vaults, err := engine.RemainingRewards(ctx, id)
	if err != nil {
		return storage.PoolSnapshot{}, nil, err
	}

	pool := view.Pool
	snap := storage.PoolSnapshot{
		Pool:        pool.ID,
		TakenAt:     at.UTC(),
		TotalStaked: pool.TotalStaked,
		UserCount:   pool.UserCount,
		Paused:      pool.Paused,
		Slots:       make([]storage.SlotSnapshot, len(pool.Slots)),
	}
	for i, slot := range pool.Slots {
		snap.Slots[i] = storage.SlotSnapshot{
			Slot:           i,
			Asset:          slot.Asset.Hex(),
			RewardRate:     fixedpoint.ScaledDecimal(slot.RewardRate, 0).String(),
			RewardPerToken: fixedpoint.ScaledDecimal(slot.RewardPerTokenStored, 0).String(),
			PeriodFinish:   slot.PeriodFinish,
			TotalFunded:    slot.TotalFunded,
			TotalClaimed:   slot.TotalClaimed,
		}
		if i < len(vaults) {
			snap.Slots[i].VaultBalance = vaults[i]
		}
	}
	return snap, view, nil
}
