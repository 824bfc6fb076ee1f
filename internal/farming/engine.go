package farming

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"reward-farming/internal/clock"
	"reward-farming/internal/custody"
)

// DefaultMaxFunders is the number of extra funders a pool may authorize.
const DefaultMaxFunders = 3

// Recorder observes engine activity; the metrics package provides the prometheus implementation.
type Recorder interface {
	OperationCompleted(op string, err error)
	RewardsFunded(pool common.Hash, slot Slot, amount uint64)
	RewardsClaimed(pool common.Hash, slot Slot, amount uint64)
	PoolUpdated(pool *Pool)
}

type nopRecorder struct{}

func (nopRecorder) OperationCompleted(string, error)         {}
func (nopRecorder) RewardsFunded(common.Hash, Slot, uint64)  {}
func (nopRecorder) RewardsClaimed(common.Hash, Slot, uint64) {}
func (nopRecorder) PoolUpdated(*Pool)                        {}

// Options tune the engine. Zero values select defaults.
type Options struct {
	Authorizer Authorizer
	Recorder   Recorder
	MaxFunders int
}

// Engine serializes every pool mutation through a store session and runs the accrual refresh before
// each effect.
type Engine struct {
	store      Store
	clock      clock.Clock
	auth       Authorizer
	recorder   Recorder
	maxFunders int
	logger     zerolog.Logger
}

// New constructs an Engine.
func New(store Store, clk clock.Clock, opts Options, logger zerolog.Logger) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	if opts.Authorizer == nil {
		opts.Authorizer = RecordAuthorizer{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.MaxFunders <= 0 {
		opts.MaxFunders = DefaultMaxFunders
	}
	return &Engine{
		store:      store,
		clock:      clk,
		auth:       opts.Authorizer,
		recorder:   opts.Recorder,
		maxFunders: opts.MaxFunders,
		logger:     logger.With().Str("component", "engine").Logger(),
	}
}

type access int

const (
	accessAny access = iota
	accessAuthority
	accessFunder
	accessOwner
)

type operation struct {
	name   string
	pool   common.Hash
	caller common.Address
	// owner selects the position loaded for accessOwner operations.
	owner        common.Address
	access       access
	creates      bool
	rejectPaused bool
	effect       func(ctx context.Context, tx *txn) error
}

// txn is the staged state an effect mutates.
type txn struct {
	sess        Session
	pool        *Pool
	position    *Position
	now         uint64
	legs        []custody.Transfer
	event       *Event
	afterCommit []func()
}

func (t *txn) move(from, to custody.Account, amount uint64) {
	t.legs = append(t.legs, custody.Transfer{From: from, To: to, Amount: amount})
}

func (t *txn) record(kind EventKind, actor, subject common.Address, amounts ...uint64) {
	ev := newEvent(t.pool.ID, kind, actor, t.now)
	ev.Subject = subject
	ev.Amounts = amounts
	t.event = &ev
}

// execute runs op as begin, load, authorize, refresh, effect, persist, settle, commit.
// Any error leaves the store and custody untouched.
func (e *Engine) execute(ctx context.Context, op operation) (err error) {
	defer func() {
		e.recorder.OperationCompleted(op.name, err)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("op", op.name).
				Str("pool", op.pool.Hex()).
				Str("caller", op.caller.Hex()).
				Str("kind", KindOf(err).String()).
				Msg("operation rejected")
			err = fmt.Errorf("%s: %w", op.name, err)
		}
	}()

	sess, err := e.store.Begin(ctx, op.pool)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	defer func() {
		_ = sess.Rollback(ctx)
	}()

	tx := &txn{sess: sess}
	pool, err := sess.Pool(ctx)
	switch {
	case op.creates && err == nil:
		return ErrPoolExists
	case op.creates && errors.Is(err, ErrPoolNotFound):
		tx.now = clock.Unix(e.clock)
	case err != nil:
		return err
	default:
		tx.pool = pool
		tx.now = e.now(pool)
		if err := e.authorize(ctx, op, tx); err != nil {
			return err
		}
		if op.rejectPaused && pool.Paused {
			return ErrPoolPaused
		}
		if err := refresh(tx.pool, tx.position, tx.now); err != nil {
			return err
		}
	}

	if err := op.effect(ctx, tx); err != nil {
		return err
	}

	if err := sess.PutPool(ctx, tx.pool); err != nil {
		return fmt.Errorf("stage pool: %w", err)
	}
	if tx.position != nil {
		if err := sess.PutPosition(ctx, tx.position); err != nil {
			return fmt.Errorf("stage position: %w", err)
		}
	}
	if tx.event != nil {
		if err := sess.AppendEvent(ctx, *tx.event); err != nil {
			return fmt.Errorf("stage event: %w", err)
		}
	}
	if err := sess.Transfer(ctx, custody.Compact(tx.legs)...); err != nil {
		return err
	}
	if err := sess.Commit(ctx); err != nil {
		return err
	}

	for _, fn := range tx.afterCommit {
		fn()
	}
	e.recorder.PoolUpdated(tx.pool)
	e.logger.Debug().
		Str("op", op.name).
		Str("pool", tx.pool.ID.Hex()).
		Str("caller", op.caller.Hex()).
		Uint64("total_staked", tx.pool.TotalStaked).
		Uint64("at", tx.now).
		Msg("operation committed")
	return nil
}

func (e *Engine) authorize(ctx context.Context, op operation, tx *txn) error {
	switch op.access {
	case accessAuthority:
		if !e.auth.IsAuthority(op.caller, tx.pool) {
			return ErrUnauthorized
		}
	case accessFunder:
		if !e.auth.IsFunder(op.caller, tx.pool) {
			return ErrUnauthorized
		}
	case accessOwner:
		pos, err := tx.sess.Position(ctx, op.owner)
		if err != nil {
			return err
		}
		if !e.auth.IsOwner(op.caller, pos) {
			return ErrUnauthorized
		}
		tx.position = pos
	}
	return nil
}

// now reads the clock, never going back before a time the pool has already accounted for.
func (e *Engine) now(pool *Pool) uint64 {
	now := clock.Unix(e.clock)
	for _, s := range pool.Slots {
		if s.LastUpdateTime > now {
			now = s.LastUpdateTime
		}
	}
	return now
}
