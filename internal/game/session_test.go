package game

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testTiers() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		domain.TierLarge:  dec("1000000000"),
		domain.TierMedium: dec("500000000"),
		domain.TierSmall:  dec("100000000"),
	}
}

func testParams(leverage int64, maxTicks int) Params {
	return Params{
		ID:       "sess-1",
		Player:   domain.Player{Name: "Lee", StudentID: "20231234", Department: "CS"},
		Leverage: leverage,
		Allocations: []domain.Allocation{
			{Slot: 1, Code: "KRW-BTC", Tier: domain.TierLarge},
			{Slot: 2, Code: "KRW-ETH", Tier: domain.TierMedium},
			{Slot: 3, Code: "KRW-XRP", Tier: domain.TierSmall},
		},
		Tiers:     testTiers(),
		MaxTicks:  maxTicks,
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func quote(code, price string) domain.Quote {
	return domain.Quote{Code: code, TradePrice: dec(price)}
}

func quotes(qs ...domain.Quote) map[string]domain.Quote {
	m := make(map[string]domain.Quote, len(qs))
	for _, q := range qs {
		m[q.Code] = q
	}
	return m
}

func TestNewSessionValid(t *testing.T) {
	s, err := NewSession(testParams(10, 90))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	snap := s.Snapshot(time.Now())
	if snap.Tick != 0 {
		t.Errorf("tick = %d, want 0", snap.Tick)
	}
	if want := dec("1600000000"); !snap.Balance.Equal(want) {
		t.Errorf("balance = %s, want %s", snap.Balance, want)
	}
	if got := s.Codes(); got[0] != "KRW-BTC" || got[1] != "KRW-ETH" || got[2] != "KRW-XRP" {
		t.Errorf("codes = %v", got)
	}
}

func TestNewSessionRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{"zero_leverage", func(p *Params) { p.Leverage = 0 }, domain.ErrInvalidLeverage},
		{"two_allocations", func(p *Params) { p.Allocations = p.Allocations[:2] }, domain.ErrInvalidAllocation},
		{"tier_used_twice", func(p *Params) { p.Allocations[1].Tier = domain.TierLarge }, domain.ErrInvalidAllocation},
		{"slot_used_twice", func(p *Params) { p.Allocations[1].Slot = 1 }, domain.ErrInvalidAllocation},
		{"slot_out_of_range", func(p *Params) { p.Allocations[2].Slot = 4 }, domain.ErrInvalidAllocation},
		{"duplicate_code", func(p *Params) { p.Allocations[1].Code = "KRW-BTC" }, domain.ErrInvalidAllocation},
		{"empty_code", func(p *Params) { p.Allocations[0].Code = "" }, domain.ErrInvalidAllocation},
		{"unknown_tier", func(p *Params) { p.Allocations[0].Tier = "huge" }, domain.ErrInvalidAllocation},
		{"zero_max_ticks", func(p *Params) { p.MaxTicks = 0 }, domain.ErrInvalidAllocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams(10, 90)
			tt.mutate(&p)
			if _, err := NewSession(p); !errors.Is(err, tt.wantErr) {
				t.Errorf("NewSession error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyQuotesAnchorsOnFirstValidQuote(t *testing.T) {
	s, err := NewSession(testParams(10, 90))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// First pass anchors each position; value stays at principal.
	snap := s.ApplyQuotes(quotes(
		quote("KRW-BTC", "100"),
		quote("KRW-ETH", "2000"),
		quote("KRW-XRP", "500"),
	), time.Now())
	if snap.Tick != 1 {
		t.Fatalf("tick = %d, want 1", snap.Tick)
	}
	if want := dec("1600000000"); !snap.Balance.Equal(want) {
		t.Errorf("balance after anchor = %s, want %s", snap.Balance, want)
	}

	// 10% rise at 10x doubles the BTC slot.
	snap = s.ApplyQuotes(quotes(quote("KRW-BTC", "110")), time.Now())
	if want := dec("2000000000"); !snap.Positions[0].Value.Equal(want) {
		t.Errorf("slot 1 value = %s, want %s", snap.Positions[0].Value, want)
	}
	// The other slots saw no quote and keep their value.
	if want := dec("500000000"); !snap.Positions[1].Value.Equal(want) {
		t.Errorf("slot 2 value = %s, want %s", snap.Positions[1].Value, want)
	}
}

func TestApplyQuotesEmptyStillAdvancesTick(t *testing.T) {
	s, err := NewSession(testParams(10, 90))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	snap := s.ApplyQuotes(nil, time.Now())
	if snap.Tick != 1 {
		t.Errorf("tick = %d, want 1", snap.Tick)
	}
	if want := dec("1600000000"); !snap.Balance.Equal(want) {
		t.Errorf("balance = %s, want %s", snap.Balance, want)
	}
}

func TestApplyQuotesSkipsInvalidQuote(t *testing.T) {
	s, err := NewSession(testParams(10, 90))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.ApplyQuotes(quotes(quote("KRW-BTC", "100")), time.Now())

	// Non-positive price must not re-anchor or revalue the position.
	snap := s.ApplyQuotes(quotes(quote("KRW-BTC", "0")), time.Now())
	if !snap.Positions[0].InitialPrice.Equal(dec("100")) {
		t.Errorf("initial price = %s, want 100", snap.Positions[0].InitialPrice)
	}
	if !snap.Positions[0].Value.Equal(dec("1000000000")) {
		t.Errorf("value = %s, want principal", snap.Positions[0].Value)
	}
}

func TestBustSettlesOnceAndIgnoresFurtherQuotes(t *testing.T) {
	s, err := NewSession(testParams(10, 90))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.ApplyQuotes(quotes(quote("KRW-BTC", "100")), time.Now())

	// 10% drop at 10x wipes out the slot.
	snap := s.ApplyQuotes(quotes(quote("KRW-BTC", "90")), time.Now())
	if len(snap.Settlements) != 1 {
		t.Fatalf("settlements = %d, want 1", len(snap.Settlements))
	}
	ev := snap.Settlements[0]
	if ev.Slot != 1 || ev.Reason != domain.SettleReasonBust || !ev.Value.IsZero() {
		t.Errorf("event = %+v", ev)
	}
	if snap.Positions[0].Status != domain.PositionStatusSettled {
		t.Errorf("status = %s, want settled", snap.Positions[0].Status)
	}

	// Price recovery must not resurrect the position, and no second
	// settlement event may appear.
	snap = s.ApplyQuotes(quotes(quote("KRW-BTC", "200")), time.Now())
	if len(snap.Settlements) != 0 {
		t.Fatalf("settlements on later tick = %d, want 0", len(snap.Settlements))
	}
	if !snap.Positions[0].Value.IsZero() {
		t.Errorf("settled value = %s, want 0", snap.Positions[0].Value)
	}
}

func TestSellFreezesValueAndIsIdempotent(t *testing.T) {
	s, err := NewSession(testParams(10, 90))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.ApplyQuotes(quotes(quote("KRW-ETH", "2000")), time.Now())
	s.ApplyQuotes(quotes(quote("KRW-ETH", "2100")), time.Now())

	ev, err := s.Sell(2, time.Now())
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if ev == nil {
		t.Fatal("Sell returned nil event for open position")
	}
	// +5% at 10x on 500m = 750m, frozen at the moment of the sell.
	if want := dec("750000000"); !ev.Value.Equal(want) {
		t.Errorf("sell value = %s, want %s", ev.Value, want)
	}
	if ev.Reason != domain.SettleReasonManual {
		t.Errorf("reason = %s, want manual", ev.Reason)
	}

	// Second sell is a no-op.
	ev, err = s.Sell(2, time.Now())
	if err != nil || ev != nil {
		t.Fatalf("second Sell = %v, %v; want nil, nil", ev, err)
	}

	// Further quotes leave the frozen value untouched.
	snap := s.ApplyQuotes(quotes(quote("KRW-ETH", "4000")), time.Now())
	if want := dec("750000000"); !snap.Positions[1].Value.Equal(want) {
		t.Errorf("frozen value = %s, want %s", snap.Positions[1].Value, want)
	}
}

func TestSellInvalidSlot(t *testing.T) {
	s, err := NewSession(testParams(10, 90))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	for _, slot := range []int{0, 4, -1} {
		if _, err := s.Sell(slot, time.Now()); !errors.Is(err, domain.ErrInvalidSlot) {
			t.Errorf("Sell(%d) error = %v, want ErrInvalidSlot", slot, err)
		}
	}
}

func TestAllSoldTerminatesSession(t *testing.T) {
	s, err := NewSession(testParams(5, 90))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	for slot := 1; slot <= 3; slot++ {
		if _, err := s.Sell(slot, time.Now()); err != nil {
			t.Fatalf("Sell(%d): %v", slot, err)
		}
	}
	if !s.Terminated() {
		t.Fatal("session not terminated after all slots sold")
	}

	// Ticks after termination change nothing.
	snap := s.ApplyQuotes(quotes(quote("KRW-BTC", "123")), time.Now())
	if snap.Tick != 0 {
		t.Errorf("tick advanced after termination: %d", snap.Tick)
	}
}

func TestMaxTicksTerminatesWithOpenPositions(t *testing.T) {
	s, err := NewSession(testParams(2, 3))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	var snap domain.TickSnapshot
	for i := 0; i < 3; i++ {
		snap = s.ApplyQuotes(quotes(quote("KRW-BTC", "100")), time.Now())
	}
	if !snap.Terminated {
		t.Fatal("session not terminated at max ticks")
	}
	// Open positions stay open in the final state, valued at their last
	// computed value.
	if snap.Positions[0].Status != domain.PositionStatusOpen {
		t.Errorf("slot 1 status = %s, want open", snap.Positions[0].Status)
	}
}

func TestReportExactlyOnce(t *testing.T) {
	s, err := NewSession(testParams(10, 1))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if _, ok := s.Report(time.Now()); ok {
		t.Fatal("Report succeeded before termination")
	}

	s.ApplyQuotes(nil, time.Now())
	finished := time.Date(2026, 3, 1, 12, 1, 30, 0, time.UTC)

	report, ok := s.Report(finished)
	if !ok {
		t.Fatal("Report failed after termination")
	}
	if report.SessionID != "sess-1" || report.Ticks != 1 {
		t.Errorf("report = %+v", report)
	}
	if want := dec("1600000000"); !report.FinalBalance.Equal(want) {
		t.Errorf("final balance = %s, want %s", report.FinalBalance, want)
	}
	if !report.FinishedAt.Equal(finished) {
		t.Errorf("finished at = %s", report.FinishedAt)
	}

	if _, ok := s.Report(time.Now()); ok {
		t.Fatal("Report succeeded twice")
	}
}
