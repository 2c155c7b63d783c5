package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Player identifies who is playing a session. The game runs as a campus
// event, so identity is name plus student id plus department.
type Player struct {
	Name       string `json:"name"`
	StudentID  string `json:"student_id"`
	Department string `json:"department"`
}

// Allocation assigns one capital tier to one market code for one slot.
type Allocation struct {
	Slot int    `json:"slot"` // 1..3
	Code string `json:"code"` // e.g. "KRW-BTC"
	Tier string `json:"tier"` // "large", "medium" or "small"
}

const (
	TierLarge  = "large"
	TierMedium = "medium"
	TierSmall  = "small"
)

// SessionStatus is the lifecycle of a whole game session.
type SessionStatus string

const (
	SessionStatusRunning    SessionStatus = "running"
	SessionStatusTerminated SessionStatus = "terminated"
)

// SettlementEvent is emitted exactly once when a position transitions from
// open to settled, whether by bust or by manual sell.
type SettlementEvent struct {
	SessionID string          `json:"session_id"`
	Slot      int             `json:"slot"`
	Code      string          `json:"code"`
	Reason    SettleReason    `json:"reason"`
	Value     decimal.Decimal `json:"value"`
	Tick      int             `json:"tick"`
	At        time.Time       `json:"at"`
}

// TickSnapshot is the observable state of a session after one valuation
// pass. It is what the websocket hub streams and what the archiver stores.
type TickSnapshot struct {
	SessionID   string            `json:"session_id"`
	Tick        int               `json:"tick"`
	Balance     decimal.Decimal   `json:"balance"`
	Positions   []Position        `json:"positions"`
	Settlements []SettlementEvent `json:"settlements,omitempty"`
	Terminated  bool              `json:"terminated"`
	At          time.Time         `json:"at"`
}

// ScoreReport is produced exactly once when a session terminates.
type ScoreReport struct {
	SessionID    string          `json:"session_id"`
	Player       Player          `json:"player"`
	Leverage     int64           `json:"leverage"`
	Codes        []string        `json:"codes"` // slot order 1..3
	FinalBalance decimal.Decimal `json:"final_balance"`
	Ticks        int             `json:"ticks"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

// RankEntry is one leaderboard row, best balance first.
type RankEntry struct {
	Rank         int             `json:"rank"`
	SessionID    string          `json:"session_id"`
	Player       Player          `json:"player"`
	FinalBalance decimal.Decimal `json:"final_balance"`
	RecordedAt   time.Time       `json:"recorded_at"`
}
