package api

import (
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"reward-farming/internal/farming"
	"reward-farming/internal/fixedpoint"
)

var maxAmount = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// Amount is a token quantity carried as a base-10 string so JSON clients never round it.
type Amount string

// Uint64 parses a non-negative integral amount that fits in 64 bits.
func (a Amount) Uint64() (uint64, error) {
	d, err := decimal.NewFromString(string(a))
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", a, err)
	}
	if d.IsNegative() || !d.IsInteger() {
		return 0, fmt.Errorf("amount %q must be a non-negative integer", a)
	}
	if d.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("amount %q exceeds 64 bits", a)
	}
	return strconv.ParseUint(d.String(), 10, 64)
}

func amountOf(v uint64) Amount {
	return Amount(strconv.FormatUint(v, 10))
}

func amountsOf(vs []uint64) []Amount {
	out := make([]Amount, len(vs))
	for i, v := range vs {
		out[i] = amountOf(v)
	}
	return out
}

// scaled renders a fixed-point value in whole units with the full fractional precision.
func scaled(v *uint256.Int) string {
	return fixedpoint.ScaledDecimal(v, 0).String()
}

// InitializePoolRequest is the body of POST /pools.
type InitializePoolRequest struct {
	StakingAsset string   `json:"staking_asset"`
	RewardAssets []string `json:"reward_assets"`
	BaseKey      string   `json:"base_key"`
	Duration     uint64   `json:"duration"`
}

// AmountRequest is the body of deposit and withdraw.
type AmountRequest struct {
	Amount Amount `json:"amount"`
	Owner  string `json:"owner,omitempty"`
}

// FundRequest is the body of POST /pools/{pool}/fund.
type FundRequest struct {
	Slot   string `json:"slot"`
	Amount Amount `json:"amount"`
}

// OwnerRequest names an optional owner or recipient; the caller is the default.
type OwnerRequest struct {
	Owner     string `json:"owner,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// FunderRequest is the body of POST /pools/{pool}/funders.
type FunderRequest struct {
	Funder string `json:"funder"`
}

// Slot is the JSON view of a reward slot.
type Slot struct {
	Slot           string `json:"slot"`
	Asset          string `json:"asset"`
	Vault          string `json:"vault"`
	RewardRate     string `json:"reward_rate"`
	RewardPerToken string `json:"reward_per_token"`
	LastUpdateTime uint64 `json:"last_update_time"`
	PeriodFinish   uint64 `json:"period_finish"`
	TotalFunded    Amount `json:"total_funded"`
	TotalClaimed   Amount `json:"total_claimed"`
}

// Pool is the JSON view of a pool.
type Pool struct {
	ID             string   `json:"id"`
	Authority      string   `json:"authority"`
	Funders        []string `json:"funders"`
	Paused         bool     `json:"paused"`
	StakingAsset   string   `json:"staking_asset"`
	StakingVault   string   `json:"staking_vault"`
	BaseKey        string   `json:"base_key"`
	RewardDuration uint64   `json:"reward_duration"`
	TotalStaked    Amount   `json:"total_staked"`
	UserCount      uint32   `json:"user_count"`
	CreatedAt      uint64   `json:"created_at"`
	Slots          []Slot   `json:"slots"`
}

// Checkpoint is the JSON view of a position's slot.
type Checkpoint struct {
	Slot               string `json:"slot"`
	RewardPerTokenPaid string `json:"reward_per_token_paid"`
	RewardsOwed        Amount `json:"rewards_owed"`
}

// Position is the JSON view of a position.
type Position struct {
	Pool      string       `json:"pool"`
	Owner     string       `json:"owner"`
	Balance   Amount       `json:"balance"`
	CreatedAt uint64       `json:"created_at"`
	Slots     []Checkpoint `json:"slots"`
}

// PositionView pairs a position with the rewards a claim would pay now.
type PositionView struct {
	Position
	Pending []Amount `json:"pending"`
	At      uint64   `json:"at"`
}

// StakeResponse reports balances after deposit or withdraw.
type StakeResponse struct {
	Position    Position `json:"position"`
	TotalStaked Amount   `json:"total_staked"`
}

// ClaimResponse lists the units paid per slot.
type ClaimResponse struct {
	Position Position `json:"position"`
	Amounts  []Amount `json:"amounts"`
}

// SweepResponse reports the swept amount.
type SweepResponse struct {
	Swept Amount `json:"swept"`
}

// Event is the JSON view of an event-log entry.
type Event struct {
	ID      string   `json:"id"`
	Pool    string   `json:"pool"`
	Kind    string   `json:"kind"`
	Actor   string   `json:"actor"`
	Subject string   `json:"subject"`
	Amounts []Amount `json:"amounts"`
	At      uint64   `json:"at"`
}

func convertPool(p *farming.Pool) Pool {
	out := Pool{
		ID:             p.ID.Hex(),
		Authority:      p.Authority.Hex(),
		Funders:        make([]string, len(p.Funders)),
		Paused:         p.Paused,
		StakingAsset:   p.StakingAsset.Hex(),
		StakingVault:   string(p.StakingVault),
		BaseKey:        p.BaseKey.Hex(),
		RewardDuration: p.RewardDuration,
		TotalStaked:    amountOf(p.TotalStaked),
		UserCount:      p.UserCount,
		CreatedAt:      p.CreatedAt,
		Slots:          make([]Slot, len(p.Slots)),
	}
	for i, f := range p.Funders {
		out.Funders[i] = f.Hex()
	}
	for i, s := range p.Slots {
		out.Slots[i] = Slot{
			Slot:           farming.Slot(i).String(),
			Asset:          s.Asset.Hex(),
			Vault:          string(s.Vault),
			RewardRate:     scaled(s.RewardRate),
			RewardPerToken: scaled(s.RewardPerTokenStored),
			LastUpdateTime: s.LastUpdateTime,
			PeriodFinish:   s.PeriodFinish,
			TotalFunded:    amountOf(s.TotalFunded),
			TotalClaimed:   amountOf(s.TotalClaimed),
		}
	}
	return out
}

func convertPosition(p *farming.Position) Position {
	out := Position{
		Pool:      p.Pool.Hex(),
		Owner:     p.Owner.Hex(),
		Balance:   amountOf(p.Balance),
		CreatedAt: p.CreatedAt,
		Slots:     make([]Checkpoint, len(p.Slots)),
	}
	for i, c := range p.Slots {
		out.Slots[i] = Checkpoint{
			Slot:               farming.Slot(i).String(),
			RewardPerTokenPaid: scaled(c.RewardPerTokenPaid),
			RewardsOwed:        amountOf(c.RewardsOwed),
		}
	}
	return out
}

func convertEvent(ev farming.Event) Event {
	return Event{
		ID:      ev.ID.String(),
		Pool:    ev.Pool.Hex(),
		Kind:    string(ev.Kind),
		Actor:   ev.Actor.Hex(),
		Subject: ev.Subject.Hex(),
		Amounts: amountsOf(ev.Amounts),
		At:      ev.At,
	}
}

func parseAddress(field, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, BadRequest(fmt.Errorf("%s: invalid address %q", field, v))
	}
	return common.HexToAddress(v), nil
}

// parseOptionalAddress returns fallback for an empty value.
func parseOptionalAddress(field, v string, fallback common.Address) (common.Address, error) {
	if v == "" {
		return fallback, nil
	}
	return parseAddress(field, v)
}

func hexBytes(v string) ([]byte, error) {
	if !has0xPrefix(v) {
		v = "0x" + v
	}
	return hexutil.Decode(v)
}

func has0xPrefix(v string) bool {
	return len(v) >= 2 && v[0] == '0' && (v[1] == 'x' || v[1] == 'X')
}
