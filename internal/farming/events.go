package farming

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventKind names a committed operation.
type EventKind string

const (
	EventInitialize        EventKind = "initialize"
	EventCreateUser        EventKind = "create_user"
	EventDeposit           EventKind = "deposit"
	EventWithdraw          EventKind = "withdraw"
	EventFund              EventKind = "fund"
	EventClaim             EventKind = "claim"
	EventPause             EventKind = "pause"
	EventUnpause           EventKind = "unpause"
	EventAuthorizeFunder   EventKind = "authorize_funder"
	EventDeauthorizeFunder EventKind = "deauthorize_funder"
	EventSweep             EventKind = "sweep"
)

// Event is the audit record appended with every committed mutation.
type Event struct {
	ID      uuid.UUID
	Pool    common.Hash
	Kind    EventKind
	Actor   common.Address
	Subject common.Address
	// Amounts is indexed by slot for fund/claim and holds a single value for stake changes.
	Amounts []uint64
	At      uint64
}

func newEvent(pool common.Hash, kind EventKind, actor common.Address, at uint64) Event {
	return Event{ID: uuid.New(), Pool: pool, Kind: kind, Actor: actor, At: at}
}
