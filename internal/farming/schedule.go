package farming

import (
	"github.com/holiman/uint256"

	"reward-farming/internal/fixedpoint"
)

// scheduleFunding resets slot s to emit amount plus whatever the running period had not yet
// emitted, evenly over the pool's reward duration starting at now. The caller must have refreshed
// the pool to now first.
func scheduleFunding(pool *Pool, s Slot, amount uint64, now uint64) error {
	if pool.RewardDuration == 0 {
		return ErrInvalidDuration
	}
	slot, err := pool.Slot(s)
	if err != nil {
		return err
	}

	var leftover *uint256.Int
	if now < slot.PeriodFinish {
		if leftover, err = fixedpoint.Leftover(slot.PeriodFinish-now, slot.RewardRate); err != nil {
			return err
		}
	}

	rate, err := fixedpoint.RateFor(amount, leftover, pool.RewardDuration)
	if err != nil {
		return err
	}
	finish, err := checkedAdd(now, pool.RewardDuration)
	if err != nil {
		return err
	}
	funded, err := checkedAdd(slot.TotalFunded, amount)
	if err != nil {
		return err
	}

	slot.RewardRate = rate
	slot.LastUpdateTime = now
	slot.PeriodFinish = finish
	slot.TotalFunded = funded
	return nil
}
