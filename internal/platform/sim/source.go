// Package sim provides a deterministic simulated quote source for offline
// runs and tests. Prices follow a seeded percentage random walk.
package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

const (
	bigMoveChance = 0.01
	bigMovePct    = 0.20 // +-20% on a big move
	smallPctMin   = 0.002
	smallPctMax   = 0.03
)

// Source generates a random-walk price per market code. The same seed
// always produces the same price path, which is what makes simulate runs
// reproducible.
type Source struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]decimal.Decimal
	start  decimal.Decimal
}

var _ domain.QuoteSource = (*Source)(nil)

// NewSource creates a simulated source. Every code starts at startPrice and
// walks independently from there.
func NewSource(seed int64, startPrice decimal.Decimal) *Source {
	return &Source{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]decimal.Decimal),
		start:  startPrice,
	}
}

// Quotes advances the walk one step for each requested code and returns the
// resulting quotes. It never fails.
func (s *Source) Quotes(_ context.Context, codes []string) ([]domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	quotes := make([]domain.Quote, 0, len(codes))
	for _, code := range codes {
		last, ok := s.prices[code]
		if !ok {
			last = s.start
		}
		next := s.step(last)
		s.prices[code] = next

		change := "EVEN"
		rate := decimal.Zero
		if !last.IsZero() {
			rate = next.Sub(last).Div(last)
			switch {
			case next.GreaterThan(last):
				change = "RISE"
			case next.LessThan(last):
				change = "FALL"
			}
		}

		quotes = append(quotes, domain.Quote{
			Code:           code,
			TradePrice:     next,
			Change:         change,
			ChangeRate:     rate,
			TradeTimestamp: now,
		})
	}
	return quotes, nil
}

// step applies one percentage move: rarely a big one, usually a small one.
// The result is clamped at zero so a walk can bottom out but never go
// negative.
func (s *Source) step(last decimal.Decimal) decimal.Decimal {
	var pct float64
	if s.rng.Float64() < bigMoveChance {
		pct = bigMovePct
	} else {
		pct = smallPctMin + s.rng.Float64()*(smallPctMax-smallPctMin)
	}
	if s.rng.Float64() < 0.5 {
		pct = -pct
	}

	next := last.Mul(decimal.NewFromFloat(1 + pct))
	if next.IsNegative() {
		return decimal.Zero
	}
	return next
}
