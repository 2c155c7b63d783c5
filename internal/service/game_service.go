package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sjlee-dev/coinrush/internal/domain"
	"github.com/sjlee-dev/coinrush/internal/game"
	"github.com/sjlee-dev/coinrush/internal/notify"
)

// Signal bus channels for live game events.
const (
	ChannelTicks       = "game.ticks"
	ChannelSettlements = "game.settlements"
	ChannelSessions    = "game.sessions"

	scoreStream = "stream:game.scores"
)

// sideEffectTimeout bounds the persistence work done after a session ends.
const sideEffectTimeout = 30 * time.Second

// Rules captures the game parameters resolved from config.
type Rules struct {
	Tiers        map[string]decimal.Decimal
	MinLeverage  int64
	MaxLeverage  int64
	MaxTicks     int
	TickInterval time.Duration
}

// StartRequest describes a session start.
type StartRequest struct {
	Player      domain.Player
	Leverage    int64
	Allocations []domain.Allocation
}

// GameService owns the active session runtimes. It starts one scheduler per
// session, fans tick and settlement events out to the signal bus, keeps the
// price cache warm, and settles the final score when a session ends. All
// side-channel dependencies are optional and nil-guarded so the simulate
// mode can run with nothing but a quote source.
type GameService struct {
	rules    Rules
	source   domain.QuoteSource
	prices   domain.PriceCache
	bus      domain.SignalBus
	archiver domain.SessionArchiver
	ranks    *RankService
	notifier *notify.Notifier
	clock    game.Clock
	logger   *slog.Logger

	mu   sync.Mutex
	runs map[string]*sessionRun
	wg   sync.WaitGroup
}

// sessionRun bundles one live session with its scheduler lifetime.
type sessionRun struct {
	session *game.Session
	cancel  context.CancelFunc

	mu      sync.Mutex
	history []domain.TickSnapshot
}

func (r *sessionRun) appendHistory(snap domain.TickSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, snap)
}

func (r *sessionRun) historyCopy() []domain.TickSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TickSnapshot, len(r.history))
	copy(out, r.history)
	return out
}

// NewGameService creates a GameService. prices, bus, archiver, ranks and
// notifier may all be nil; clock may be nil for wall time.
func NewGameService(
	rules Rules,
	source domain.QuoteSource,
	prices domain.PriceCache,
	bus domain.SignalBus,
	archiver domain.SessionArchiver,
	ranks *RankService,
	notifier *notify.Notifier,
	clock game.Clock,
	logger *slog.Logger,
) *GameService {
	if clock == nil {
		clock = game.RealClock()
	}
	return &GameService{
		rules:    rules,
		source:   source,
		prices:   prices,
		bus:      bus,
		archiver: archiver,
		ranks:    ranks,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With(slog.String("component", "game_service")),
		runs:     make(map[string]*sessionRun),
	}
}

// StartSession validates the request, builds the session, and launches its
// tick scheduler. The session runs detached from the caller's context; it
// stops when it terminates on its own or when Cancel / Close is called.
func (s *GameService) StartSession(ctx context.Context, req StartRequest) (string, error) {
	if req.Leverage < s.rules.MinLeverage || req.Leverage > s.rules.MaxLeverage {
		return "", fmt.Errorf("game_service: leverage %d outside [%d, %d]: %w",
			req.Leverage, s.rules.MinLeverage, s.rules.MaxLeverage, domain.ErrInvalidLeverage)
	}

	id := uuid.NewString()
	sess, err := game.NewSession(game.Params{
		ID:          id,
		Player:      req.Player,
		Leverage:    req.Leverage,
		Allocations: req.Allocations,
		Tiers:       s.rules.Tiers,
		MaxTicks:    s.rules.MaxTicks,
		StartedAt:   s.clock.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("game_service: start session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := &sessionRun{session: sess, cancel: cancel}

	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()

	sched := game.NewScheduler(sess, s.tickSource(), s.clock, s.rules.TickInterval, s.logger,
		func(snap domain.TickSnapshot) {
			s.handleTick(runCtx, run, snap)
		})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.finish(run, sched.Run(runCtx))
	}()

	s.logger.InfoContext(ctx, "session started",
		slog.String("session_id", id),
		slog.String("player", req.Player.Name),
		slog.Int64("leverage", req.Leverage),
	)
	return id, nil
}

// Snapshot returns the current observable state of a live session.
func (s *GameService) Snapshot(_ context.Context, sessionID string) (domain.TickSnapshot, error) {
	run, ok := s.run(sessionID)
	if !ok {
		return domain.TickSnapshot{}, domain.ErrNotFound
	}
	return run.session.Snapshot(s.clock.Now()), nil
}

// Sell settles one slot of a live session at its current value. Selling an
// already settled slot is a no-op returning a nil event.
func (s *GameService) Sell(ctx context.Context, sessionID string, slot int) (*domain.SettlementEvent, error) {
	run, ok := s.run(sessionID)
	if !ok {
		return nil, domain.ErrNotFound
	}

	ev, err := run.session.Sell(slot, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("game_service: sell: %w", err)
	}
	if ev != nil {
		s.publishSettlement(ctx, *ev)
		s.logger.InfoContext(ctx, "position sold",
			slog.String("session_id", sessionID),
			slog.Int("slot", slot),
			slog.String("value", ev.Value.String()),
		)
	}
	return ev, nil
}

// Cancel stops a live session's scheduler. It is idempotent: cancelling an
// unknown or already finished session does nothing.
func (s *GameService) Cancel(ctx context.Context, sessionID string) error {
	run, ok := s.run(sessionID)
	if !ok {
		return nil
	}
	run.cancel()
	s.logger.InfoContext(ctx, "session cancel requested",
		slog.String("session_id", sessionID),
	)
	return nil
}

// ReadScoreStream reads finished-session reports back from the durable score
// stream, starting after the given stream id. Pass "0" to read from the
// beginning. Each payload is one JSON-encoded ScoreReport.
func (s *GameService) ReadScoreStream(ctx context.Context, afterID string, count int) ([]domain.StreamMessage, error) {
	if s.bus == nil {
		return nil, nil
	}
	msgs, err := s.bus.StreamRead(ctx, scoreStream, afterID, count)
	if err != nil {
		return nil, fmt.Errorf("game_service: read score stream: %w", err)
	}
	return msgs, nil
}

// ActiveSessions returns the number of sessions currently running.
func (s *GameService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Close cancels all live sessions and waits for their schedulers to drain.
func (s *GameService) Close() error {
	s.mu.Lock()
	for _, run := range s.runs {
		run.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *GameService) run(sessionID string) (*sessionRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[sessionID]
	return run, ok
}

// tickSource wraps the quote source so every successful fetch refreshes the
// price cache on the way through.
func (s *GameService) tickSource() domain.QuoteSource {
	if s.prices == nil {
		return s.source
	}
	return &cachingSource{inner: s.source, prices: s.prices, logger: s.logger}
}

type cachingSource struct {
	inner  domain.QuoteSource
	prices domain.PriceCache
	logger *slog.Logger
}

func (c *cachingSource) Quotes(ctx context.Context, codes []string) ([]domain.Quote, error) {
	quotes, err := c.inner.Quotes(ctx, codes)
	if err != nil {
		return nil, err
	}
	for _, q := range quotes {
		if !q.Valid() {
			continue
		}
		if cacheErr := c.prices.SetQuote(ctx, q); cacheErr != nil {
			c.logger.WarnContext(ctx, "price cache update failed",
				slog.String("code", q.Code),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return quotes, nil
}

// handleTick runs synchronously inside the scheduler loop after every
// applied pass.
func (s *GameService) handleTick(ctx context.Context, run *sessionRun, snap domain.TickSnapshot) {
	run.appendHistory(snap)

	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal tick snapshot failed",
			slog.String("session_id", snap.SessionID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, ChannelTicks, payload); err != nil {
		s.logger.WarnContext(ctx, "publish tick failed",
			slog.String("session_id", snap.SessionID),
			slog.String("error", err.Error()),
		)
	}

	for _, ev := range snap.Settlements {
		s.publishSettlement(ctx, ev)
	}
}

func (s *GameService) publishSettlement(ctx context.Context, ev domain.SettlementEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ChannelSettlements, payload); err != nil {
		s.logger.WarnContext(ctx, "publish settlement failed",
			slog.String("session_id", ev.SessionID),
			slog.Int("slot", ev.Slot),
			slog.String("error", err.Error()),
		)
	}
}

// finish runs once per session, after its scheduler returns. A cancelled
// session is dropped without a score; a terminated one settles its report
// into the store, cache, archive, bus and notifier.
func (s *GameService) finish(run *sessionRun, runErr error) {
	sessionID := run.session.ID()

	// The run stays visible until all side effects land; a finished session's
	// Sell and tick paths are already no-ops.
	defer func() {
		s.mu.Lock()
		delete(s.runs, sessionID)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			s.logger.Info("session cancelled", slog.String("session_id", sessionID))
			s.publishSessionEvent(ctx, map[string]any{
				"event":      "session_cancelled",
				"session_id": sessionID,
			})
			return
		}
		s.logger.Error("session scheduler failed",
			slog.String("session_id", sessionID),
			slog.String("error", runErr.Error()),
		)
		return
	}

	report, ok := run.session.Report(s.clock.Now())
	if !ok {
		// Report is produced exactly once; a second finish cannot happen.
		s.logger.Error("no report for terminated session", slog.String("session_id", sessionID))
		return
	}

	s.logger.Info("session completed",
		slog.String("session_id", sessionID),
		slog.String("player", report.Player.Name),
		slog.String("final_balance", report.FinalBalance.String()),
		slog.Int("ticks", report.Ticks),
	)

	if s.ranks != nil {
		if err := s.ranks.Record(ctx, report); err != nil {
			s.logger.Error("record score failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.archiver != nil {
		path, err := s.archiver.ArchiveSession(ctx, report, run.historyCopy())
		if err != nil {
			s.logger.Warn("archive session failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("session archived",
				slog.String("session_id", sessionID),
				slog.String("path", path),
			)
		}
	}

	s.publishSessionEvent(ctx, map[string]any{
		"event":         "session_completed",
		"session_id":    sessionID,
		"player":        report.Player,
		"final_balance": report.FinalBalance.String(),
		"ticks":         report.Ticks,
	})

	if s.bus != nil {
		if payload, err := json.Marshal(report); err == nil {
			if err := s.bus.StreamAppend(ctx, scoreStream, payload); err != nil {
				s.logger.Warn("score stream append failed",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("%s (%s) finished with %s KRW after %d ticks",
			report.Player.Name, report.Player.StudentID, report.FinalBalance.StringFixed(0), report.Ticks)
		if err := s.notifier.Notify(ctx, "session_completed", "Session completed", msg); err != nil {
			s.logger.Warn("notify failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *GameService) publishSessionEvent(ctx context.Context, event map[string]any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ChannelSessions, payload); err != nil {
		s.logger.Warn("publish session event failed", slog.String("error", err.Error()))
	}
}
