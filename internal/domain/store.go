package domain

import "context"

// ScoreStore persists final score reports and serves the leaderboard.
type ScoreStore interface {
	Insert(ctx context.Context, report ScoreReport) error
	GetBySession(ctx context.Context, sessionID string) (ScoreReport, error)
	Top(ctx context.Context, limit int) ([]RankEntry, error)
	Count(ctx context.Context) (int64, error)
}
