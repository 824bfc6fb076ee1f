package farming

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"reward-farming/internal/fixedpoint"
)

// Checkpoint is a position's view of one reward slot.
type Checkpoint struct {
	RewardPerTokenPaid *uint256.Int
	RewardsOwed        uint64
}

// Position is a participant's stake in one pool.
type Position struct {
	Pool      common.Hash
	Owner     common.Address
	Balance   uint64
	Slots     []Checkpoint
	CreatedAt uint64
}

func newPosition(pool *Pool, owner common.Address, now uint64) *Position {
	pos := &Position{
		Pool:      pool.ID,
		Owner:     owner,
		Slots:     make([]Checkpoint, len(pool.Slots)),
		CreatedAt: now,
	}
	for i := range pos.Slots {
		pos.Slots[i].RewardPerTokenPaid = fixedpoint.Zero()
	}
	return pos
}

// Owed returns the accrued but unclaimed rewards per slot.
func (p *Position) Owed() []uint64 {
	out := make([]uint64, len(p.Slots))
	for i, c := range p.Slots {
		out[i] = c.RewardsOwed
	}
	return out
}

// Clone deep-copies the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	out := *p
	out.Slots = make([]Checkpoint, len(p.Slots))
	for i, c := range p.Slots {
		c.RewardPerTokenPaid = cloneInt(c.RewardPerTokenPaid)
		out.Slots[i] = c
	}
	return &out
}
