package farming

import (
	"errors"

	"reward-farming/internal/custody"
	"reward-farming/internal/fixedpoint"
)

// Kind classifies engine failures for transports and callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindAuthorization
	KindInsufficientFunds
	KindOverflow
	KindPrecondition
	KindPaused
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindAuthorization:
		return "authorization"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindOverflow:
		return "overflow"
	case KindPrecondition:
		return "precondition"
	case KindPaused:
		return "paused"
	default:
		return "unknown"
	}
}

type engineError struct {
	kind Kind
	msg  string
}

func (e *engineError) Error() string { return e.msg }

func newError(kind Kind, msg string) error {
	return &engineError{kind: kind, msg: msg}
}

var (
	ErrInvalidDuration   = newError(KindConfig, "farming: reward duration must be at least one second")
	ErrInvalidConfig     = newError(KindConfig, "farming: pool needs one or two distinct reward assets")
	ErrInvalidAmount     = newError(KindConfig, "farming: amount must be greater than zero")
	ErrPoolExists        = newError(KindConfig, "farming: pool already exists")
	ErrPositionExists    = newError(KindConfig, "farming: user position already exists")
	ErrSlotNotConfigured = newError(KindConfig, "farming: reward slot not configured for pool")

	ErrUnauthorized               = newError(KindAuthorization, "farming: caller not authorized")
	ErrFunderAlreadyAuthorized    = newError(KindConfig, "farming: funder already authorized")
	ErrMaxFunders                 = newError(KindConfig, "farming: maximum funders already authorized")
	ErrCannotDeauthorizeAuthority = newError(KindConfig, "farming: cannot deauthorize the pool authority")
	ErrFunderNotFound             = newError(KindPrecondition, "farming: funder not authorized")

	ErrInsufficientStake = newError(KindInsufficientFunds, "farming: withdraw amount exceeds staked balance")

	ErrPoolNotFound     = newError(KindPrecondition, "farming: pool not found")
	ErrPositionNotFound = newError(KindPrecondition, "farming: user position not found")
	ErrPeriodActive     = newError(KindPrecondition, "farming: reward period still active")

	ErrPoolPaused    = newError(KindPaused, "farming: pool is paused")
	ErrPoolNotPaused = newError(KindPrecondition, "farming: pool is not paused")
)

// KindOf classifies err, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ee *engineError
	if errors.As(err, &ee) {
		return ee.kind
	}
	switch {
	case errors.Is(err, custody.ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, fixedpoint.ErrOverflow), errors.Is(err, custody.ErrBalanceOverflow):
		return KindOverflow
	}
	return KindUnknown
}
