package farming

import (
	"fmt"

	"reward-farming/internal/fixedpoint"
)

// refresh brings every reward slot's accumulator up to min(now, periodFinish) and, when pos is
// non-nil, settles the position's earnings against the new accumulators. It writes nothing unless
// every slot computes cleanly.
func refresh(pool *Pool, pos *Position, now uint64) error {
	staged := pool.Clone()

	for i := range staged.Slots {
		slot := &staged.Slots[i]
		applicable := now
		if slot.PeriodFinish < applicable {
			applicable = slot.PeriodFinish
		}
		if applicable <= slot.LastUpdateTime {
			continue
		}

		delta, err := fixedpoint.RewardPerTokenDelta(applicable-slot.LastUpdateTime, slot.RewardRate, staged.TotalStaked)
		if err != nil {
			return fmt.Errorf("reward per token slot %s: %w", Slot(i), err)
		}
		stored, err := fixedpoint.Add(slot.RewardPerTokenStored, delta)
		if err != nil {
			return fmt.Errorf("accumulate slot %s: %w", Slot(i), err)
		}
		slot.RewardPerTokenStored = stored
		slot.LastUpdateTime = applicable
	}

	var settled *Position
	if pos != nil {
		if len(pos.Slots) != len(staged.Slots) {
			return fmt.Errorf("position has %d checkpoints for %d slots", len(pos.Slots), len(staged.Slots))
		}
		settled = pos.Clone()
		for i := range settled.Slots {
			cp := &settled.Slots[i]
			current := staged.Slots[i].RewardPerTokenStored
			earned, err := fixedpoint.Earned(settled.Balance, current, cp.RewardPerTokenPaid)
			if err != nil {
				return fmt.Errorf("earned slot %s: %w", Slot(i), err)
			}
			owed, err := checkedAdd(cp.RewardsOwed, earned)
			if err != nil {
				return fmt.Errorf("rewards owed slot %s: %w", Slot(i), err)
			}
			cp.RewardsOwed = owed
			cp.RewardPerTokenPaid = cloneInt(current)
		}
	}

	*pool = *staged
	if settled != nil {
		*pos = *settled
	}
	return nil
}
