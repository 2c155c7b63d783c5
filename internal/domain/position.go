package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether a position is still being revalued.
type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusSettled PositionStatus = "settled"
)

// SettleReason records why a position left the open state.
type SettleReason string

const (
	SettleReasonBust   SettleReason = "bust"   // leveraged value hit zero
	SettleReasonManual SettleReason = "manual" // player sold
)

// Position is one leveraged investment inside a game session. A session
// holds exactly three of them, one per slot.
type Position struct {
	Slot         int             // 1..3
	Code         string          // market code the principal rides on
	Principal    decimal.Decimal // committed capital tier, KRW
	Leverage     int64
	InitialPrice decimal.Decimal // anchor price, zero until the first valid quote
	CurrentPrice decimal.Decimal
	Value        decimal.Decimal // leveraged valuation; frozen once settled
	Status       PositionStatus
	Reason       SettleReason // empty while open
	SettledTick  int          // tick on which the position settled, 0 if open
	SettledAt    *time.Time
}

// Settled reports whether the position has reached its terminal state.
func (p Position) Settled() bool {
	return p.Status == PositionStatusSettled
}
