package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

// RankService serves the leaderboard and records final scores. The Postgres
// score store is the source of truth; the Redis rank cache sits in front of
// it. Both are optional so bare modes can run without external services.
type RankService struct {
	scores domain.ScoreStore
	ranks  domain.RankCache
	limit  int
	logger *slog.Logger
}

// NewRankService creates a RankService. scores and ranks may each be nil.
func NewRankService(scores domain.ScoreStore, ranks domain.RankCache, limit int, logger *slog.Logger) *RankService {
	return &RankService{
		scores: scores,
		ranks:  ranks,
		limit:  limit,
		logger: logger.With(slog.String("component", "rank_service")),
	}
}

// Record persists a final score report to the store and mirrors it into the
// cache. A duplicate report for the same session is logged and ignored; a
// session settles its score exactly once, so the first write wins.
func (s *RankService) Record(ctx context.Context, report domain.ScoreReport) error {
	if s.scores != nil {
		if err := s.scores.Insert(ctx, report); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				s.logger.WarnContext(ctx, "score already recorded",
					slog.String("session_id", report.SessionID),
				)
				return nil
			}
			return fmt.Errorf("rank_service: record score: %w", err)
		}
	}

	if s.ranks != nil {
		entry := domain.RankEntry{
			SessionID:    report.SessionID,
			Player:       report.Player,
			FinalBalance: report.FinalBalance,
			RecordedAt:   report.FinishedAt,
		}
		if err := s.ranks.Record(ctx, entry); err != nil {
			// The store has the truth; a cache write failure only costs a
			// repopulation on the next read.
			s.logger.WarnContext(ctx, "rank cache update failed",
				slog.String("session_id", report.SessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// Top returns up to n leaderboard entries, best balance first. Reads hit the
// cache when possible and fall back to the store, repopulating the cache on
// the way out.
func (s *RankService) Top(ctx context.Context, n int) ([]domain.RankEntry, error) {
	if n < 1 || n > s.limit {
		n = s.limit
	}

	if s.ranks != nil {
		entries, err := s.ranks.Top(ctx, n)
		if err != nil {
			s.logger.WarnContext(ctx, "rank cache read failed",
				slog.String("error", err.Error()),
			)
		} else if len(entries) > 0 {
			return entries, nil
		}
	}

	if s.scores == nil {
		return nil, nil
	}

	entries, err := s.scores.Top(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("rank_service: top scores: %w", err)
	}

	if s.ranks != nil {
		for _, e := range entries {
			if err := s.ranks.Record(ctx, e); err != nil {
				s.logger.WarnContext(ctx, "rank cache repopulate failed",
					slog.String("error", err.Error()),
				)
				break
			}
		}
	}

	return entries, nil
}

// Count returns the total number of recorded scores.
func (s *RankService) Count(ctx context.Context) (int64, error) {
	if s.scores == nil {
		return 0, nil
	}
	n, err := s.scores.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("rank_service: count scores: %w", err)
	}
	return n, nil
}

// GetBySession returns the recorded score report for a finished session.
func (s *RankService) GetBySession(ctx context.Context, sessionID string) (domain.ScoreReport, error) {
	if s.scores == nil {
		return domain.ScoreReport{}, domain.ErrNotFound
	}
	report, err := s.scores.GetBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ScoreReport{}, domain.ErrNotFound
		}
		return domain.ScoreReport{}, fmt.Errorf("rank_service: get score: %w", err)
	}
	return report, nil
}
