package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

// Clock abstracts wall time so the scheduler can be driven deterministically
// in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

// Scheduler drives one session: one batched quote fetch and one valuation
// pass per interval, strictly sequential, until the session terminates or
// the context is cancelled.
type Scheduler struct {
	session  *Session
	source   domain.QuoteSource
	clock    Clock
	interval time.Duration
	logger   *slog.Logger
	onTick   func(domain.TickSnapshot)
}

// NewScheduler builds a scheduler for one session. onTick may be nil; when
// set it is called synchronously after every applied pass.
func NewScheduler(session *Session, source domain.QuoteSource, clock Clock, interval time.Duration, logger *slog.Logger, onTick func(domain.TickSnapshot)) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{
		session:  session,
		source:   source,
		clock:    clock,
		interval: interval,
		logger: logger.With(
			slog.String("component", "scheduler"),
			slog.String("session_id", session.ID()),
		),
		onTick:   onTick,
	}
}

// Run executes the tick loop. Cancellation is checked at the start of every
// tick and again between fetch completion and state commit, so a context
// cancelled mid-fetch discards that fetch without touching the session. A
// failed fetch is logged and the tick still advances with no price updates.
// Run returns ctx.Err() on cancellation and nil on normal termination.
func (s *Scheduler) Run(ctx context.Context) error {
	codes := s.session.Codes()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.session.Terminated() {
			return nil
		}

		started := s.clock.Now()

		quotes := make(map[string]domain.Quote, len(codes))
		fetched, err := s.source.Quotes(ctx, codes)
		if err != nil {
			s.logger.Warn("quote fetch failed, advancing with stale prices",
				slog.String("error", err.Error()),
			)
		} else {
			for _, q := range fetched {
				if !q.Valid() {
					s.logger.Warn("dropping invalid quote",
						slog.String("code", q.Code),
						slog.String("trade_price", q.TradePrice.String()),
					)
					continue
				}
				quotes[q.Code] = q
			}
		}

		// The fetch may have straddled a cancellation; commit nothing.
		if err := ctx.Err(); err != nil {
			return err
		}

		snap := s.session.ApplyQuotes(quotes, s.clock.Now())
		if s.onTick != nil {
			s.onTick(snap)
		}
		if snap.Terminated {
			s.logger.Info("session terminated",
				slog.Int("ticks", snap.Tick),
				slog.String("balance", snap.Balance.String()),
			)
			return nil
		}

		if wait := s.interval - s.clock.Now().Sub(started); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(wait):
			}
		}
	}
}
