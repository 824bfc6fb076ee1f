package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"reward-farming/internal/custody"
	"reward-farming/internal/farming"
)

var errSessionClosed = errors.New("storage: session closed")

// session stages custody legs and settles them inside the transaction at Commit.
type session struct {
	tx   pgx.Tx
	id   common.Hash
	legs []custody.Transfer
	done bool
}

func (s *session) Pool(ctx context.Context) (*farming.Pool, error) {
	if s.done {
		return nil, errSessionClosed
	}
	return loadPool(ctx, s.tx, s.id, true)
}

func (s *session) Position(ctx context.Context, owner common.Address) (*farming.Position, error) {
	if s.done {
		return nil, errSessionClosed
	}
	return loadPosition(ctx, s.tx, s.id, owner, true)
}

func (s *session) PutPool(ctx context.Context, p *farming.Pool) error {
	if s.done {
		return errSessionClosed
	}
	if _, err := s.tx.Exec(ctx, upsertPoolSQL,
		p.ID.Hex(),
		p.Authority.Hex(),
		addressStrings(p.Funders),
		p.Paused,
		p.StakingAsset.Hex(),
		string(p.StakingVault),
		p.BaseKey.Hex(),
		formatUint(p.RewardDuration),
		formatUint(p.TotalStaked),
		int64(p.UserCount),
		formatUint(p.CreatedAt),
	); err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}

	for i, slot := range p.Slots {
		if _, err := s.tx.Exec(ctx, upsertPoolSlotSQL,
			p.ID.Hex(),
			int16(i),
			slot.Asset.Hex(),
			string(slot.Vault),
			formatInt(slot.RewardRate),
			formatInt(slot.RewardPerTokenStored),
			formatUint(slot.LastUpdateTime),
			formatUint(slot.PeriodFinish),
			formatUint(slot.TotalFunded),
			formatUint(slot.TotalClaimed),
		); err != nil {
			return fmt.Errorf("upsert pool slot %d: %w", i, err)
		}
	}
	return nil
}

func (s *session) PutPosition(ctx context.Context, pos *farming.Position) error {
	if s.done {
		return errSessionClosed
	}
	if _, err := s.tx.Exec(ctx, upsertPositionSQL,
		pos.Pool.Hex(),
		pos.Owner.Hex(),
		formatUint(pos.Balance),
		formatUint(pos.CreatedAt),
	); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	for i, c := range pos.Slots {
		if _, err := s.tx.Exec(ctx, upsertPositionSlotSQL,
			pos.Pool.Hex(),
			pos.Owner.Hex(),
			int16(i),
			formatInt(c.RewardPerTokenPaid),
			formatUint(c.RewardsOwed),
		); err != nil {
			return fmt.Errorf("upsert position slot %d: %w", i, err)
		}
	}
	return nil
}

func (s *session) Balance(ctx context.Context, account custody.Account) (uint64, error) {
	if s.done {
		return 0, errSessionClosed
	}
	return balance(ctx, s.tx, account)
}

func (s *session) Transfer(ctx context.Context, legs ...custody.Transfer) error {
	if s.done {
		return errSessionClosed
	}
	s.legs = append(s.legs, legs...)
	return nil
}

func (s *session) AppendEvent(ctx context.Context, ev farming.Event) error {
	if s.done {
		return errSessionClosed
	}
	if _, err := s.tx.Exec(ctx, insertEventSQL,
		ev.ID,
		ev.Pool.Hex(),
		string(ev.Kind),
		ev.Actor.Hex(),
		ev.Subject.Hex(),
		uintStrings(ev.Amounts),
		formatUint(ev.At),
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *session) Commit(ctx context.Context) error {
	if s.done {
		return errSessionClosed
	}
	s.done = true
	if err := applyTransfers(ctx, s.tx, s.legs); err != nil {
		_ = s.tx.Rollback(ctx)
		return err
	}
	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

var _ farming.Session = (*session)(nil)
