package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

const (
	upsertSnapshotSQL = `INSERT INTO pool_snapshots (
        pool_id,
        taken_at,
        total_staked,
        user_count,
        paused,
        slots
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (pool_id, taken_at) DO UPDATE
    SET
        total_staked = EXCLUDED.total_staked,
        user_count   = EXCLUDED.user_count,
        paused       = EXCLUDED.paused,
        slots        = EXCLUDED.slots;`

	selectSnapshotColumns = `SELECT
        pool_id,
        taken_at,
        total_staked::text,
        user_count,
        paused,
        slots,
        created_at
    FROM pool_snapshots`

	listSnapshotsBetweenSQL = selectSnapshotColumns + `
    WHERE pool_id = $1
      AND taken_at >= $2
      AND taken_at < $3
    ORDER BY taken_at;`

	listRecentSnapshotsSQL = selectSnapshotColumns + `
    WHERE pool_id = $1
    ORDER BY taken_at DESC
    LIMIT $2;`

	deleteSnapshotsBeforeSQL = `DELETE FROM pool_snapshots WHERE taken_at < $1;`

	insertPeriodAlertSQL = `INSERT INTO period_alerts (
        pool_id,
        slot,
        period_finish,
        stage,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (pool_id, slot, period_finish, stage) DO NOTHING
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        pool_id,
        slot,
        period_finish::text,
        stage,
        channels,
        created_at
    FROM period_alerts
    WHERE pool_id = $1
    ORDER BY created_at DESC, id DESC
    LIMIT $2;`
)

// SnapshotStore defines operations for pool snapshot persistence.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, snap PoolSnapshot) error
	ListSnapshotsBetween(ctx context.Context, pool common.Hash, from, to time.Time) ([]PoolSnapshot, error)
	ListRecentSnapshots(ctx context.Context, pool common.Hash, limit int) ([]PoolSnapshot, error)
	DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AlertStore defines operations for period alert auditing.
type AlertStore interface {
	// InsertPeriodAlert records the alert and reports false if it was already emitted.
	InsertPeriodAlert(ctx context.Context, alert PeriodAlert) (bool, error)
	ListRecentAlerts(ctx context.Context, pool common.Hash, limit int) ([]PeriodAlert, error)
}

// UpsertSnapshot persists or replaces a snapshot.
func (s *Store) UpsertSnapshot(ctx context.Context, snap PoolSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	slots, err := json.Marshal(snap.Slots)
	if err != nil {
		return fmt.Errorf("encode snapshot slots: %w", err)
	}
	if _, err := pool.Exec(ctx, upsertSnapshotSQL,
		snap.Pool.Hex(),
		snap.TakenAt.UTC(),
		formatUint(snap.TotalStaked),
		int64(snap.UserCount),
		snap.Paused,
		slots,
	); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// ListSnapshotsBetween lists a pool's snapshots within [from, to) in ascending order.
func (s *Store) ListSnapshotsBetween(ctx context.Context, id common.Hash, from, to time.Time) ([]PoolSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listSnapshotsBetweenSQL, id.Hex(), from, to)
	if err != nil {
		return nil, fmt.Errorf("list snapshots between: %w", err)
	}
	return collectSnapshots(rows)
}

// ListRecentSnapshots lists a pool's latest snapshots, newest first.
func (s *Store) ListRecentSnapshots(ctx context.Context, id common.Hash, limit int) ([]PoolSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listRecentSnapshotsSQL, id.Hex(), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

// DeleteSnapshotsBefore prunes snapshots older than the cutoff.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, err := pool.Exec(ctx, deleteSnapshotsBeforeSQL, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectSnapshots(rows pgx.Rows) ([]PoolSnapshot, error) {
	defer rows.Close()
	out := make([]PoolSnapshot, 0)
	for rows.Next() {
		var (
			snap         PoolSnapshot
			poolID       string
			totalStaked  string
			userCount    int64
			encodedSlots []byte
		)
		if err := rows.Scan(&poolID, &snap.TakenAt, &totalStaked, &userCount, &snap.Paused, &encodedSlots, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Pool = common.HexToHash(poolID)
		snap.UserCount = uint32(userCount)
		var err error
		if snap.TotalStaked, err = parseUint("snapshot total_staked", totalStaked); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(encodedSlots, &snap.Slots); err != nil {
			return nil, fmt.Errorf("decode snapshot slots: %w", err)
		}
		out = append(out, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// InsertPeriodAlert persists an alert emission once per pool, slot, period and stage.
func (s *Store) InsertPeriodAlert(ctx context.Context, alert PeriodAlert) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var (
		id        int64
		createdAt time.Time
	)
	err = pool.QueryRow(ctx, insertPeriodAlertSQL,
		alert.Pool.Hex(),
		int16(alert.Slot),
		formatUint(alert.PeriodFinish),
		alert.Stage,
		alert.Channels,
	).Scan(&id, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert period alert: %w", err)
	}
	return true, nil
}

// ListRecentAlerts lists a pool's most recent alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, id common.Hash, limit int) ([]PeriodAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listRecentAlertsSQL, id.Hex(), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]PeriodAlert, 0)
	for rows.Next() {
		var (
			rec            PeriodAlert
			poolID, finish string
			slot           int16
		)
		if err := rows.Scan(&rec.ID, &poolID, &slot, &finish, &rec.Stage, &rec.Channels, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		rec.Pool = common.HexToHash(poolID)
		rec.Slot = int(slot)
		var err error
		if rec.PeriodFinish, err = parseUint("alert period_finish", finish); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

var (
	_ SnapshotStore = (*Store)(nil)
	_ AlertStore    = (*Store)(nil)
)
