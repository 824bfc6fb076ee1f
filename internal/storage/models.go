package storage

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SlotSnapshot is one reward slot inside a PoolSnapshot.
type SlotSnapshot struct {
	Slot           int    `json:"slot"`
	Asset          string `json:"asset"`
	RewardRate     string `json:"reward_rate"`
	RewardPerToken string `json:"reward_per_token"`
	PeriodFinish   uint64 `json:"period_finish"`
	VaultBalance   uint64 `json:"vault_balance"`
	TotalFunded    uint64 `json:"total_funded"`
	TotalClaimed   uint64 `json:"total_claimed"`
}

// PoolSnapshot is a periodic observation of a pool written by the monitor.
type PoolSnapshot struct {
	Pool        common.Hash
	TakenAt     time.Time
	TotalStaked uint64
	UserCount   uint32
	Paused      bool
	Slots       []SlotSnapshot
	CreatedAt   time.Time
}

// PeriodAlert records an emitted reward-period alert for de-duplication.
type PeriodAlert struct {
	ID           int64
	Pool         common.Hash
	Slot         int
	PeriodFinish uint64
	Stage        string
	Channels     []string
	CreatedAt    time.Time
}
