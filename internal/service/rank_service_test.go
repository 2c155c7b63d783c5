package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

// memRankCache is an in-memory RankCache recording calls for assertions.
type memRankCache struct {
	entries []domain.RankEntry
	failing bool
	records int
}

func (c *memRankCache) Record(_ context.Context, entry domain.RankEntry) error {
	if c.failing {
		return errors.New("cache down")
	}
	c.records++
	c.entries = append(c.entries, entry)
	return nil
}

func (c *memRankCache) Top(_ context.Context, n int) ([]domain.RankEntry, error) {
	if c.failing {
		return nil, errors.New("cache down")
	}
	if n > len(c.entries) {
		n = len(c.entries)
	}
	out := make([]domain.RankEntry, n)
	copy(out, c.entries[:n])
	return out, nil
}

func (c *memRankCache) Invalidate(_ context.Context) error {
	c.entries = nil
	return nil
}

func testReport(id string, balance string) domain.ScoreReport {
	return domain.ScoreReport{
		SessionID:    id,
		Player:       domain.Player{Name: "Lee", StudentID: "20240017", Department: "CS"},
		Leverage:     10,
		Codes:        []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"},
		FinalBalance: decimal.RequireFromString(balance),
		Ticks:        90,
		FinishedAt:   time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestRecordWritesStoreAndCache(t *testing.T) {
	store := newMemScoreStore()
	cache := &memRankCache{}
	svc := NewRankService(store, cache, 50, discardLogger())

	if err := svc.Record(context.Background(), testReport("s1", "2000000000")); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if _, err := store.GetBySession(context.Background(), "s1"); err != nil {
		t.Errorf("store missing score: %v", err)
	}
	if cache.records != 1 {
		t.Errorf("cache records = %d, want 1", cache.records)
	}
}

func TestRecordDuplicateIsIgnored(t *testing.T) {
	store := newMemScoreStore()
	svc := NewRankService(store, nil, 50, discardLogger())

	report := testReport("s1", "2000000000")
	if err := svc.Record(context.Background(), report); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := svc.Record(context.Background(), report); err != nil {
		t.Errorf("duplicate Record = %v, want nil", err)
	}
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Errorf("stored scores = %d, want 1", n)
	}
}

func TestRecordSurvivesCacheFailure(t *testing.T) {
	store := newMemScoreStore()
	cache := &memRankCache{failing: true}
	svc := NewRankService(store, cache, 50, discardLogger())

	if err := svc.Record(context.Background(), testReport("s1", "1500000000")); err != nil {
		t.Fatalf("Record with failing cache: %v", err)
	}
	if _, err := store.GetBySession(context.Background(), "s1"); err != nil {
		t.Errorf("store missing score: %v", err)
	}
}

func TestTopFallsBackToStoreAndRepopulates(t *testing.T) {
	store := newMemScoreStore()
	cache := &memRankCache{}
	svc := NewRankService(store, cache, 50, discardLogger())

	if err := store.Insert(context.Background(), testReport("s1", "2000000000")); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	entries, err := svc.Top(context.Background(), 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "s1" {
		t.Errorf("entries = %+v", entries)
	}
	if cache.records != 1 {
		t.Errorf("cache not repopulated: records = %d", cache.records)
	}
}

func TestTopServedFromCache(t *testing.T) {
	cache := &memRankCache{entries: []domain.RankEntry{
		{Rank: 1, SessionID: "s1", FinalBalance: decimal.RequireFromString("2000000000")},
	}}
	// No store at all: a populated cache must be enough.
	svc := NewRankService(nil, cache, 50, discardLogger())

	entries, err := svc.Top(context.Background(), 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "s1" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestTopClampsLimit(t *testing.T) {
	store := newMemScoreStore()
	for i := 0; i < 5; i++ {
		report := testReport(string(rune('a'+i)), "1000000000")
		if err := store.Insert(context.Background(), report); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	svc := NewRankService(store, nil, 3, discardLogger())

	for _, n := range []int{0, -1, 100} {
		entries, err := svc.Top(context.Background(), n)
		if err != nil {
			t.Fatalf("Top(%d): %v", n, err)
		}
		if len(entries) > 3 {
			t.Errorf("Top(%d) = %d entries, want at most 3", n, len(entries))
		}
	}
}

func TestGetBySessionWithoutStore(t *testing.T) {
	svc := NewRankService(nil, nil, 50, discardLogger())
	if _, err := svc.GetBySession(context.Background(), "s1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
