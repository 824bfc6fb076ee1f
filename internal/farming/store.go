package farming

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"reward-farming/internal/custody"
)

// Store persists pools, positions and the event log.
type Store interface {
	// Begin opens an exclusive session on one pool. The pool need not exist yet.
	Begin(ctx context.Context, pool common.Hash) (Session, error)
	GetPool(ctx context.Context, pool common.Hash) (*Pool, error)
	GetPosition(ctx context.Context, pool common.Hash, owner common.Address) (*Position, error)
	ListPools(ctx context.Context) ([]*Pool, error)
	ListEvents(ctx context.Context, pool common.Hash, limit int) ([]Event, error)
}

// Session is a pool's single-writer critical section. Writes are staged and become visible, together
// with the custody transfers, only on Commit. Rollback after Commit is a no-op.
type Session interface {
	Pool(ctx context.Context) (*Pool, error)
	Position(ctx context.Context, owner common.Address) (*Position, error)
	PutPool(ctx context.Context, pool *Pool) error
	PutPosition(ctx context.Context, pos *Position) error
	Balance(ctx context.Context, account custody.Account) (uint64, error)
	Transfer(ctx context.Context, legs ...custody.Transfer) error
	AppendEvent(ctx context.Context, event Event) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
