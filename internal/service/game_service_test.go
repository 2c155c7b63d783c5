package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjlee-dev/coinrush/internal/domain"
	"github.com/sjlee-dev/coinrush/internal/platform/sim"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRules(maxTicks int) Rules {
	return Rules{
		Tiers: map[string]decimal.Decimal{
			domain.TierLarge:  decimal.RequireFromString("1000000000"),
			domain.TierMedium: decimal.RequireFromString("500000000"),
			domain.TierSmall:  decimal.RequireFromString("100000000"),
		},
		MinLeverage:  1,
		MaxLeverage:  20,
		MaxTicks:     maxTicks,
		TickInterval: time.Millisecond,
	}
}

func testStartRequest() StartRequest {
	return StartRequest{
		Player:   domain.Player{Name: "Park", StudentID: "20250042", Department: "ME"},
		Leverage: 5,
		Allocations: []domain.Allocation{
			{Slot: 1, Code: "KRW-BTC", Tier: domain.TierLarge},
			{Slot: 2, Code: "KRW-ETH", Tier: domain.TierMedium},
			{Slot: 3, Code: "KRW-XRP", Tier: domain.TierSmall},
		},
	}
}

// memScoreStore is an in-memory ScoreStore for exercising the settlement path.
type memScoreStore struct {
	mu      sync.Mutex
	reports map[string]domain.ScoreReport
}

func newMemScoreStore() *memScoreStore {
	return &memScoreStore{reports: make(map[string]domain.ScoreReport)}
}

func (m *memScoreStore) Insert(_ context.Context, report domain.ScoreReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[report.SessionID]; ok {
		return domain.ErrAlreadyExists
	}
	m.reports[report.SessionID] = report
	return nil
}

func (m *memScoreStore) GetBySession(_ context.Context, sessionID string) (domain.ScoreReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[sessionID]
	if !ok {
		return domain.ScoreReport{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memScoreStore) Top(_ context.Context, limit int) ([]domain.RankEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []domain.RankEntry
	for _, r := range m.reports {
		entries = append(entries, domain.RankEntry{
			SessionID:    r.SessionID,
			Player:       r.Player,
			FinalBalance: r.FinalBalance,
		})
		if len(entries) == limit {
			break
		}
	}
	return entries, nil
}

func (m *memScoreStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.reports)), nil
}

// memBus is an in-memory SignalBus capturing published events and appended
// stream entries.
type memBus struct {
	mu        sync.Mutex
	published map[string]int
	stream    []domain.StreamMessage
	nextSeq   int64
}

func newMemBus() *memBus {
	return &memBus{published: make(map[string]int), nextSeq: 1}
}

func (m *memBus) Publish(_ context.Context, channel string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[channel]++
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (m *memBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stream = append(m.stream, domain.StreamMessage{
		ID:      fmt.Sprintf("%d-0", m.nextSeq),
		Payload: payload,
	})
	m.nextSeq++
	return nil
}

func (m *memBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if lastID != "0" {
		for i, msg := range m.stream {
			if msg.ID == lastID {
				start = i + 1
				break
			}
		}
	}
	end := start + count
	if end > len(m.stream) {
		end = len(m.stream)
	}
	out := make([]domain.StreamMessage, end-start)
	copy(out, m.stream[start:end])
	return out, nil
}

func (m *memBus) publishedCount(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[channel]
}

// memPriceCache is an in-memory PriceCache for exercising the tick-time
// cache warm path.
type memPriceCache struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{quotes: make(map[string]domain.Quote)}
}

func (m *memPriceCache) SetQuote(_ context.Context, q domain.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.Code] = q
	return nil
}

func (m *memPriceCache) GetQuote(_ context.Context, code string) (domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[code]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func (m *memPriceCache) GetQuotes(_ context.Context, codes []string) (map[string]domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.Quote)
	for _, code := range codes {
		if q, ok := m.quotes[code]; ok {
			out[code] = q
		}
	}
	return out, nil
}

func newTestService(maxTicks int, scores domain.ScoreStore) *GameService {
	logger := discardLogger()
	var ranks *RankService
	if scores != nil {
		ranks = NewRankService(scores, nil, 50, logger)
	}
	source := sim.NewSource(7, decimal.RequireFromString("100000"))
	return NewGameService(testRules(maxTicks), source, nil, nil, nil, ranks, nil, nil, logger)
}

func waitForIdle(t *testing.T, s *GameService) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.ActiveSessions() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("session did not finish in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestStartSessionRunsToCompletion(t *testing.T) {
	scores := newMemScoreStore()
	s := newTestService(5, scores)
	defer s.Close()

	id, err := s.StartSession(context.Background(), testStartRequest())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}

	waitForIdle(t, s)

	report, err := scores.GetBySession(context.Background(), id)
	if err != nil {
		t.Fatalf("score not recorded: %v", err)
	}
	if report.Ticks != 5 {
		t.Errorf("ticks = %d, want 5", report.Ticks)
	}
	if report.FinalBalance.IsNegative() {
		t.Errorf("final balance = %s", report.FinalBalance)
	}
	if report.Player.StudentID != "20250042" {
		t.Errorf("player = %+v", report.Player)
	}

	// Finished sessions are dropped from memory.
	if _, err := s.Snapshot(context.Background(), id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Snapshot after finish = %v, want ErrNotFound", err)
	}
}

func TestStartSessionRejectsBadRequests(t *testing.T) {
	s := newTestService(10, nil)
	defer s.Close()

	req := testStartRequest()
	req.Leverage = 21
	if _, err := s.StartSession(context.Background(), req); !errors.Is(err, domain.ErrInvalidLeverage) {
		t.Errorf("leverage 21 error = %v, want ErrInvalidLeverage", err)
	}

	req = testStartRequest()
	req.Allocations[1].Tier = domain.TierLarge
	if _, err := s.StartSession(context.Background(), req); !errors.Is(err, domain.ErrInvalidAllocation) {
		t.Errorf("duplicate tier error = %v, want ErrInvalidAllocation", err)
	}

	// Nothing should be running after rejected starts.
	if n := s.ActiveSessions(); n != 0 {
		t.Errorf("active sessions = %d, want 0", n)
	}
}

func TestSellIsIdempotentThroughService(t *testing.T) {
	s := newTestService(10000, nil)
	defer s.Close()

	id, err := s.StartSession(context.Background(), testStartRequest())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	ev, err := s.Sell(context.Background(), id, 2)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if ev == nil {
		t.Fatal("first sell returned nil event")
	}
	if ev.Reason != domain.SettleReasonManual {
		t.Errorf("reason = %s", ev.Reason)
	}

	ev, err = s.Sell(context.Background(), id, 2)
	if err != nil || ev != nil {
		t.Fatalf("second sell = %v, %v; want nil, nil", ev, err)
	}

	if _, err := s.Sell(context.Background(), "no-such-session", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown session error = %v, want ErrNotFound", err)
	}
}

func TestCancelDropsSessionWithoutScore(t *testing.T) {
	scores := newMemScoreStore()
	s := newTestService(10000, scores)
	defer s.Close()

	id, err := s.StartSession(context.Background(), testStartRequest())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := s.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitForIdle(t, s)

	if _, err := scores.GetBySession(context.Background(), id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cancelled session has a score: %v", err)
	}

	// Cancelling again, or cancelling something unknown, is a no-op.
	if err := s.Cancel(context.Background(), id); err != nil {
		t.Errorf("second Cancel: %v", err)
	}
}

func TestScoreStreamReplayAfterCompletion(t *testing.T) {
	bus := newMemBus()
	prices := newMemPriceCache()
	source := sim.NewSource(7, decimal.RequireFromString("100000"))
	s := NewGameService(testRules(3), source, prices, bus, nil, nil, nil, nil, discardLogger())
	defer s.Close()

	id, err := s.StartSession(context.Background(), testStartRequest())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	waitForIdle(t, s)

	// The finished report lands on the durable stream and can be read back.
	msgs, err := s.ReadScoreStream(context.Background(), "0", 10)
	if err != nil {
		t.Fatalf("ReadScoreStream: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("stream messages = %d, want 1", len(msgs))
	}
	var report domain.ScoreReport
	if err := json.Unmarshal(msgs[0].Payload, &report); err != nil {
		t.Fatalf("decode report payload: %v", err)
	}
	if report.SessionID != id || report.Ticks != 3 {
		t.Errorf("replayed report = %+v", report)
	}

	// Reading past the last id returns nothing new.
	more, err := s.ReadScoreStream(context.Background(), msgs[0].ID, 10)
	if err != nil {
		t.Fatalf("ReadScoreStream after last id: %v", err)
	}
	if len(more) != 0 {
		t.Errorf("unexpected messages after last id: %+v", more)
	}

	// Every tick also warmed the price cache and went out on the live channel.
	for _, code := range []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"} {
		q, err := prices.GetQuote(context.Background(), code)
		if err != nil {
			t.Errorf("cached quote %s: %v", code, err)
			continue
		}
		if !q.TradePrice.IsPositive() {
			t.Errorf("cached quote %s price = %s", code, q.TradePrice)
		}
	}
	if n := bus.publishedCount(ChannelTicks); n != 3 {
		t.Errorf("published ticks = %d, want 3", n)
	}
	if n := bus.publishedCount(ChannelSessions); n != 1 {
		t.Errorf("published session events = %d, want 1", n)
	}
}

func TestReadScoreStreamWithoutBus(t *testing.T) {
	s := newTestService(10000, nil)
	defer s.Close()

	msgs, err := s.ReadScoreStream(context.Background(), "0", 10)
	if err != nil || msgs != nil {
		t.Errorf("ReadScoreStream without bus = %v, %v; want nil, nil", msgs, err)
	}
}

func TestSnapshotOfLiveSession(t *testing.T) {
	s := newTestService(10000, nil)
	defer s.Close()

	id, err := s.StartSession(context.Background(), testStartRequest())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	snap, err := s.Snapshot(context.Background(), id)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.SessionID != id || len(snap.Positions) != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
}
