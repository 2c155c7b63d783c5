// Package game implements the leveraged investment game engine: the session
// aggregator that owns the three positions and the tick scheduler that
// drives revaluation against a quote source.
package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjlee-dev/coinrush/internal/domain"
	"github.com/sjlee-dev/coinrush/internal/valuation"
)

const slotCount = 3

// Params describes a session start request after config-level validation.
type Params struct {
	ID          string
	Player      domain.Player
	Leverage    int64
	Allocations []domain.Allocation
	Tiers       map[string]decimal.Decimal // tier name -> principal
	MaxTicks    int
	StartedAt   time.Time
}

// Session aggregates exactly three leveraged positions and applies tick
// results to them. All state transitions happen under one mutex, so a tick
// pass and a manual sell are mutually exclusive and nobody ever observes a
// half-applied tick.
type Session struct {
	mu        sync.Mutex
	id        string
	player    domain.Player
	leverage  int64
	positions [slotCount]domain.Position
	tick      int
	maxTicks  int
	status    domain.SessionStatus
	startedAt time.Time
	reported  bool
}

// NewSession validates the capital allocation and builds a fresh session.
// Each of the three tiers must be assigned to exactly one slot, each slot
// used exactly once, and the three market codes must be distinct. Any other
// arrangement rejects the start; no tick is ever scheduled for it.
func NewSession(p Params) (*Session, error) {
	if p.Leverage < 1 {
		return nil, fmt.Errorf("game: leverage %d: %w", p.Leverage, domain.ErrInvalidLeverage)
	}
	if len(p.Allocations) != slotCount {
		return nil, fmt.Errorf("game: %d allocations: %w", len(p.Allocations), domain.ErrInvalidAllocation)
	}
	if p.MaxTicks < 1 {
		return nil, fmt.Errorf("game: max ticks %d: %w", p.MaxTicks, domain.ErrInvalidAllocation)
	}

	slots := map[int]bool{}
	tiers := map[string]bool{}
	codes := map[string]bool{}

	s := &Session{
		id:        p.ID,
		player:    p.Player,
		leverage:  p.Leverage,
		maxTicks:  p.MaxTicks,
		status:    domain.SessionStatusRunning,
		startedAt: p.StartedAt,
	}

	for _, a := range p.Allocations {
		if a.Slot < 1 || a.Slot > slotCount || slots[a.Slot] {
			return nil, fmt.Errorf("game: slot %d: %w", a.Slot, domain.ErrInvalidAllocation)
		}
		if a.Code == "" || codes[a.Code] {
			return nil, fmt.Errorf("game: code %q: %w", a.Code, domain.ErrInvalidAllocation)
		}
		principal, ok := p.Tiers[a.Tier]
		if !ok || tiers[a.Tier] {
			return nil, fmt.Errorf("game: tier %q: %w", a.Tier, domain.ErrInvalidAllocation)
		}
		slots[a.Slot] = true
		tiers[a.Tier] = true
		codes[a.Code] = true

		s.positions[a.Slot-1] = domain.Position{
			Slot:      a.Slot,
			Code:      a.Code,
			Principal: principal,
			Leverage:  p.Leverage,
			Value:     principal,
			Status:    domain.PositionStatusOpen,
		}
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Player returns the player identity attached to the session.
func (s *Session) Player() domain.Player { return s.player }

// Codes returns the three market codes in slot order.
func (s *Session) Codes() []string {
	codes := make([]string, slotCount)
	for i, p := range s.positions {
		codes[i] = p.Code
	}
	return codes
}

// Terminated reports whether the session has ended.
func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == domain.SessionStatusTerminated
}

// ApplyQuotes runs one valuation pass. The tick counter always advances,
// even when quotes is empty (a failed fetch still consumes a tick; open
// positions keep their last value). Settled positions ignore quotes
// entirely. A position whose recomputed value reaches zero settles as a
// bust on this pass, pinned at zero.
func (s *Session) ApplyQuotes(quotes map[string]domain.Quote, at time.Time) domain.TickSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.SessionStatusTerminated {
		return s.snapshotLocked(nil, at)
	}

	s.tick++
	var settlements []domain.SettlementEvent

	for i := range s.positions {
		pos := &s.positions[i]
		if pos.Settled() {
			continue
		}
		q, ok := quotes[pos.Code]
		if !ok || !q.Valid() {
			continue // stale price, value unchanged this tick
		}

		pos.CurrentPrice = q.TradePrice
		if pos.InitialPrice.IsZero() {
			// First valid quote anchors the position.
			pos.InitialPrice = q.TradePrice
		}

		value, err := valuation.Value(pos.Principal, pos.Leverage, pos.InitialPrice, pos.CurrentPrice)
		if err != nil {
			continue
		}
		pos.Value = value

		if value.IsZero() && pos.Principal.IsPositive() {
			settlements = append(settlements, s.settleLocked(pos, domain.SettleReasonBust, at))
		}
	}

	if s.tick >= s.maxTicks || s.allSettledLocked() {
		s.status = domain.SessionStatusTerminated
	}

	return s.snapshotLocked(settlements, at)
}

// Sell settles one slot at its current value. It is idempotent: selling an
// already settled slot, or any slot of a terminated session, returns
// (nil, nil) and changes nothing. The returned event is the single
// observable record of the transition.
func (s *Session) Sell(slot int, at time.Time) (*domain.SettlementEvent, error) {
	if slot < 1 || slot > slotCount {
		return nil, fmt.Errorf("game: slot %d: %w", slot, domain.ErrInvalidSlot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.SessionStatusTerminated {
		return nil, nil
	}
	pos := &s.positions[slot-1]
	if pos.Settled() {
		return nil, nil
	}

	ev := s.settleLocked(pos, domain.SettleReasonManual, at)
	if s.allSettledLocked() {
		s.status = domain.SessionStatusTerminated
	}
	return &ev, nil
}

// Snapshot returns the current observable state without advancing the tick.
func (s *Session) Snapshot(at time.Time) domain.TickSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(nil, at)
}

// Report produces the final score report. It succeeds exactly once, after
// termination; every later call returns ok=false.
func (s *Session) Report(at time.Time) (domain.ScoreReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.SessionStatusTerminated || s.reported {
		return domain.ScoreReport{}, false
	}
	s.reported = true

	return domain.ScoreReport{
		SessionID:    s.id,
		Player:       s.player,
		Leverage:     s.leverage,
		Codes:        s.codesLocked(),
		FinalBalance: s.balanceLocked(),
		Ticks:        s.tick,
		StartedAt:    s.startedAt,
		FinishedAt:   at,
	}, true
}

func (s *Session) settleLocked(pos *domain.Position, reason domain.SettleReason, at time.Time) domain.SettlementEvent {
	ts := at
	pos.Status = domain.PositionStatusSettled
	pos.Reason = reason
	pos.SettledTick = s.tick
	pos.SettledAt = &ts

	return domain.SettlementEvent{
		SessionID: s.id,
		Slot:      pos.Slot,
		Code:      pos.Code,
		Reason:    reason,
		Value:     pos.Value,
		Tick:      s.tick,
		At:        at,
	}
}

func (s *Session) allSettledLocked() bool {
	for i := range s.positions {
		if !s.positions[i].Settled() {
			return false
		}
	}
	return true
}

func (s *Session) balanceLocked() decimal.Decimal {
	balance := decimal.Zero
	for i := range s.positions {
		balance = balance.Add(s.positions[i].Value)
	}
	return balance
}

func (s *Session) codesLocked() []string {
	codes := make([]string, slotCount)
	for i := range s.positions {
		codes[i] = s.positions[i].Code
	}
	return codes
}

func (s *Session) snapshotLocked(settlements []domain.SettlementEvent, at time.Time) domain.TickSnapshot {
	positions := make([]domain.Position, slotCount)
	copy(positions, s.positions[:])

	return domain.TickSnapshot{
		SessionID:   s.id,
		Tick:        s.tick,
		Balance:     s.balanceLocked(),
		Positions:   positions,
		Settlements: settlements,
		Terminated:  s.status == domain.SessionStatusTerminated,
		At:          at,
	}
}
