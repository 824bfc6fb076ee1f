package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"reward-farming/internal/custody"
	"reward-farming/internal/farming"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	selectPoolColumns = `SELECT
        id,
        authority,
        funders,
        paused,
        staking_asset,
        staking_vault,
        base_key,
        reward_duration::text,
        total_staked::text,
        user_count,
        created_at::text
    FROM pools`

	selectPoolSQL          = selectPoolColumns + ` WHERE id = $1;`
	selectPoolForUpdateSQL = selectPoolColumns + ` WHERE id = $1 FOR UPDATE;`
	listPoolsSQL           = selectPoolColumns + ` ORDER BY created_at, id;`

	selectSlotColumns = `SELECT
        pool_id,
        slot,
        asset,
        vault,
        reward_rate::text,
        reward_per_token::text,
        last_update_time::text,
        period_finish::text,
        total_funded::text,
        total_claimed::text
    FROM pool_slots`

	selectPoolSlotsSQL = selectSlotColumns + ` WHERE pool_id = $1 ORDER BY slot;`
	listPoolSlotsSQL   = selectSlotColumns + ` ORDER BY pool_id, slot;`

	upsertPoolSQL = `INSERT INTO pools (
        id,
        authority,
        funders,
        paused,
        staking_asset,
        staking_vault,
        base_key,
        reward_duration,
        total_staked,
        user_count,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (id) DO UPDATE
    SET
        authority    = EXCLUDED.authority,
        funders      = EXCLUDED.funders,
        paused       = EXCLUDED.paused,
        total_staked = EXCLUDED.total_staked,
        user_count   = EXCLUDED.user_count;`

	upsertPoolSlotSQL = `INSERT INTO pool_slots (
        pool_id,
        slot,
        asset,
        vault,
        reward_rate,
        reward_per_token,
        last_update_time,
        period_finish,
        total_funded,
        total_claimed
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (pool_id, slot) DO UPDATE
    SET
        reward_rate      = EXCLUDED.reward_rate,
        reward_per_token = EXCLUDED.reward_per_token,
        last_update_time = EXCLUDED.last_update_time,
        period_finish    = EXCLUDED.period_finish,
        total_funded     = EXCLUDED.total_funded,
        total_claimed    = EXCLUDED.total_claimed;`

	selectPositionSQL = `SELECT
        pool_id,
        owner,
        balance::text,
        created_at::text
    FROM positions
    WHERE pool_id = $1 AND owner = $2;`

	selectPositionForUpdateSQL = `SELECT
        pool_id,
        owner,
        balance::text,
        created_at::text
    FROM positions
    WHERE pool_id = $1 AND owner = $2
    FOR UPDATE;`

	selectPositionSlotsSQL = `SELECT
        reward_per_token_paid::text,
        rewards_owed::text
    FROM position_slots
    WHERE pool_id = $1 AND owner = $2
    ORDER BY slot;`

	upsertPositionSQL = `INSERT INTO positions (
        pool_id,
        owner,
        balance,
        created_at
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (pool_id, owner) DO UPDATE
    SET balance = EXCLUDED.balance;`

	upsertPositionSlotSQL = `INSERT INTO position_slots (
        pool_id,
        owner,
        slot,
        reward_per_token_paid,
        rewards_owed
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (pool_id, owner, slot) DO UPDATE
    SET
        reward_per_token_paid = EXCLUDED.reward_per_token_paid,
        rewards_owed          = EXCLUDED.rewards_owed;`

	insertEventSQL = `INSERT INTO events (
        id,
        pool_id,
        kind,
        actor,
        subject,
        amounts,
        at
    ) VALUES (
        $1,$2,$3,$4,$5,$6::text[]::numeric[],$7
    );`

	listEventsSQL = `SELECT
        id,
        pool_id,
        kind,
        actor,
        subject,
        amounts::text[],
        at::text
    FROM events
    WHERE pool_id = $1
    ORDER BY seq DESC
    LIMIT NULLIF($2::int, 0);`

	advisoryXactLockSQL = `SELECT pg_advisory_xact_lock($1);`
	tryAdvisoryLockSQL  = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL   = `SELECT pg_advisory_unlock($1);`
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists farming state, custody balances, snapshots and alerts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed unlock is released with the session when the connection closes.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Begin opens a transaction holding the pool's transaction-scoped advisory lock.
func (s *Store) Begin(ctx context.Context, id common.Hash) (farming.Session, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, advisoryXactLockSQL, lockKey(id)); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("lock pool %s: %w", id.Hex(), err)
	}
	return &session{tx: tx, id: id}, nil
}

// GetPool implements farming.Store.
func (s *Store) GetPool(ctx context.Context, id common.Hash) (*farming.Pool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	return loadPool(ctx, pool, id, false)
}

// GetPosition implements farming.Store.
func (s *Store) GetPosition(ctx context.Context, id common.Hash, owner common.Address) (*farming.Position, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	return loadPosition(ctx, pool, id, owner, false)
}

// ListPools implements farming.Store.
func (s *Store) ListPools(ctx context.Context) ([]*farming.Pool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listPoolsSQL)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	pools := make([]*farming.Pool, 0)
	byID := make(map[common.Hash]*farming.Pool)
	for rows.Next() {
		p, scanErr := scanPool(rows)
		if scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		pools = append(pools, p)
		byID[p.ID] = p
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	slotRows, err := pool.Query(ctx, listPoolSlotsSQL)
	if err != nil {
		return nil, fmt.Errorf("list pool slots: %w", err)
	}
	defer slotRows.Close()
	for slotRows.Next() {
		poolID, slot, scanErr := scanSlot(slotRows)
		if scanErr != nil {
			return nil, scanErr
		}
		if p, ok := byID[poolID]; ok {
			p.Slots = append(p.Slots, slot)
		}
	}
	if slotRows.Err() != nil {
		return nil, slotRows.Err()
	}
	return pools, nil
}

// ListEvents implements farming.Store, newest first.
func (s *Store) ListEvents(ctx context.Context, id common.Hash, limit int) ([]farming.Event, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 0
	}

	rows, err := pool.Query(ctx, listEventsSQL, id.Hex(), limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]farming.Event, 0, limit)
	for rows.Next() {
		var (
			ev                           farming.Event
			poolID, kind, actor, subject string
			amounts                      []string
			at                           string
		)
		if err := rows.Scan(&ev.ID, &poolID, &kind, &actor, &subject, &amounts, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Pool = common.HexToHash(poolID)
		ev.Kind = farming.EventKind(kind)
		ev.Actor = common.HexToAddress(actor)
		ev.Subject = common.HexToAddress(subject)
		for _, a := range amounts {
			v, err := parseUint("event amount", a)
			if err != nil {
				return nil, err
			}
			ev.Amounts = append(ev.Amounts, v)
		}
		if ev.At, err = parseUint("event time", at); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func loadPool(ctx context.Context, q querier, id common.Hash, forUpdate bool) (*farming.Pool, error) {
	query := selectPoolSQL
	if forUpdate {
		query = selectPoolForUpdateSQL
	}
	p, err := scanPool(q.QueryRow(ctx, query, id.Hex()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, farming.ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, selectPoolSlotsSQL, id.Hex())
	if err != nil {
		return nil, fmt.Errorf("select pool slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		_, slot, scanErr := scanSlot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		p.Slots = append(p.Slots, slot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return p, nil
}

func loadPosition(ctx context.Context, q querier, id common.Hash, owner common.Address, forUpdate bool) (*farming.Position, error) {
	query := selectPositionSQL
	if forUpdate {
		query = selectPositionForUpdateSQL
	}
	var (
		poolID, ownerHex   string
		balance, createdAt string
	)
	err := q.QueryRow(ctx, query, id.Hex(), owner.Hex()).Scan(&poolID, &ownerHex, &balance, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, farming.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select position: %w", err)
	}

	pos := &farming.Position{Pool: common.HexToHash(poolID), Owner: common.HexToAddress(ownerHex)}
	if pos.Balance, err = parseUint("position balance", balance); err != nil {
		return nil, err
	}
	if pos.CreatedAt, err = parseUint("position created_at", createdAt); err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, selectPositionSlotsSQL, id.Hex(), owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("select position slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var paid, owed string
		if err := rows.Scan(&paid, &owed); err != nil {
			return nil, fmt.Errorf("scan position slot: %w", err)
		}
		var c farming.Checkpoint
		if c.RewardPerTokenPaid, err = parseInt("reward_per_token_paid", paid); err != nil {
			return nil, err
		}
		if c.RewardsOwed, err = parseUint("rewards_owed", owed); err != nil {
			return nil, err
		}
		pos.Slots = append(pos.Slots, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return pos, nil
}

func scanPool(row pgx.Row) (*farming.Pool, error) {
	var (
		p                                        farming.Pool
		id, authority, stakingAsset, vault, base string
		funders                                  []string
		duration, totalStaked, createdAt         string
		userCount                                int64
	)
	if err := row.Scan(
		&id,
		&authority,
		&funders,
		&p.Paused,
		&stakingAsset,
		&vault,
		&base,
		&duration,
		&totalStaked,
		&userCount,
		&createdAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan pool: %w", err)
	}

	p.ID = common.HexToHash(id)
	p.Authority = common.HexToAddress(authority)
	p.Funders = parseAddresses(funders)
	p.StakingAsset = common.HexToAddress(stakingAsset)
	p.StakingVault = custody.Account(vault)
	p.BaseKey = common.HexToAddress(base)
	p.UserCount = uint32(userCount)

	var err error
	if p.RewardDuration, err = parseUint("reward_duration", duration); err != nil {
		return nil, err
	}
	if p.TotalStaked, err = parseUint("total_staked", totalStaked); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseUint("pool created_at", createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanSlot(row pgx.Row) (common.Hash, farming.RewardSlot, error) {
	var (
		slot                                        farming.RewardSlot
		poolID, asset, vault                        string
		index                                       int16
		rate, rpt, lastUpdate, finish, funded, paid string
	)
	if err := row.Scan(&poolID, &index, &asset, &vault, &rate, &rpt, &lastUpdate, &finish, &funded, &paid); err != nil {
		return common.Hash{}, slot, fmt.Errorf("scan pool slot: %w", err)
	}
	slot.Asset = common.HexToAddress(asset)
	slot.Vault = custody.Account(vault)

	var err error
	if slot.RewardRate, err = parseInt("reward_rate", rate); err != nil {
		return common.Hash{}, slot, err
	}
	if slot.RewardPerTokenStored, err = parseInt("reward_per_token", rpt); err != nil {
		return common.Hash{}, slot, err
	}
	if slot.LastUpdateTime, err = parseUint("last_update_time", lastUpdate); err != nil {
		return common.Hash{}, slot, err
	}
	if slot.PeriodFinish, err = parseUint("period_finish", finish); err != nil {
		return common.Hash{}, slot, err
	}
	if slot.TotalFunded, err = parseUint("total_funded", funded); err != nil {
		return common.Hash{}, slot, err
	}
	if slot.TotalClaimed, err = parseUint("total_claimed", paid); err != nil {
		return common.Hash{}, slot, err
	}
	return common.HexToHash(poolID), slot, nil
}

var (
	_ farming.Store  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
