package farming

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"reward-farming/internal/custody"
	"reward-farming/internal/fixedpoint"
)

// MaxRewardSlots bounds the reward assets a pool may distribute.
const MaxRewardSlots = 2

// Slot indexes a pool's reward slots.
type Slot int

const (
	SlotA Slot = iota
	SlotB
)

func (s Slot) String() string {
	return string(rune('A' + int(s)))
}

// VaultRole names the custody vault backing the slot.
func (s Slot) VaultRole() string {
	return "reward_" + strings.ToLower(s.String())
}

// ParseSlot accepts "a", "A", "b" or "B".
func ParseSlot(v string) (Slot, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "A", "":
		return SlotA, nil
	case "B":
		return SlotB, nil
	}
	return 0, fmt.Errorf("unknown reward slot %q", v)
}

// RewardSlot carries the emission schedule and accumulator of one reward asset.
type RewardSlot struct {
	Asset common.Address
	Vault custody.Account
	// RewardRate is units per second multiplied by fixedpoint.Scale.
	RewardRate *uint256.Int
	// RewardPerTokenStored is the cumulative reward per staked unit, scaled.
	RewardPerTokenStored *uint256.Int
	LastUpdateTime       uint64
	PeriodFinish         uint64
	TotalFunded          uint64
	TotalClaimed         uint64
}

// Pool is the shared accounting record of one staking asset against its reward slots.
type Pool struct {
	ID             common.Hash
	Authority      common.Address
	Funders        []common.Address
	Paused         bool
	StakingAsset   common.Address
	StakingVault   custody.Account
	BaseKey        common.Address
	RewardDuration uint64
	TotalStaked    uint64
	Slots          []RewardSlot
	UserCount      uint32
	CreatedAt      uint64
}

// DerivePoolID hashes the pool's defining parameters.
func DerivePoolID(duration uint64, stakingAsset common.Address, rewardAssets []common.Address, baseKey common.Address) common.Hash {
	var d [8]byte
	binary.BigEndian.PutUint64(d[:], duration)
	parts := [][]byte{d[:], stakingAsset.Bytes()}
	for _, asset := range rewardAssets {
		parts = append(parts, asset.Bytes())
	}
	parts = append(parts, baseKey.Bytes())
	return crypto.Keccak256Hash(parts...)
}

// Slot returns the reward slot s or ErrSlotNotConfigured.
func (p *Pool) Slot(s Slot) (*RewardSlot, error) {
	if s < 0 || int(s) >= len(p.Slots) {
		return nil, ErrSlotNotConfigured
	}
	return &p.Slots[s], nil
}

// IsFunder reports whether addr is in the funder list.
func (p *Pool) IsFunder(addr common.Address) bool {
	for _, f := range p.Funders {
		if f == addr {
			return true
		}
	}
	return false
}

// RewardRateUnits is the real per-second emission of slot i, truncated to whole units.
func (p *Pool) RewardRateUnits(s Slot) uint64 {
	slot, err := p.Slot(s)
	if err != nil {
		return 0
	}
	units := fixedpoint.Units(slot.RewardRate)
	if !units.IsUint64() {
		return math.MaxUint64
	}
	return units.Uint64()
}

// Clone deep-copies the pool so staged mutations never alias committed state.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	out := *p
	out.Funders = append([]common.Address(nil), p.Funders...)
	out.Slots = make([]RewardSlot, len(p.Slots))
	for i, s := range p.Slots {
		s.RewardRate = cloneInt(s.RewardRate)
		s.RewardPerTokenStored = cloneInt(s.RewardPerTokenStored)
		out.Slots[i] = s
	}
	return &out
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return fixedpoint.Zero()
	}
	return new(uint256.Int).Set(v)
}

func checkedAdd(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, fixedpoint.ErrOverflow
	}
	return a + b, nil
}
