package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

// ScoreStore implements domain.ScoreStore using PostgreSQL. Balances are
// stored as NUMERIC and moved in and out as decimal strings.
type ScoreStore struct {
	pool *pgxpool.Pool
}

// NewScoreStore creates a new ScoreStore backed by the given connection pool.
func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

const scoreSelectCols = `session_id, player_name, student_id, department,
	leverage, codes, final_balance::text, ticks, started_at, finished_at`

func scanScoreRow(row pgx.Row) (domain.ScoreReport, error) {
	var r domain.ScoreReport
	var balance string

	err := row.Scan(
		&r.SessionID, &r.Player.Name, &r.Player.StudentID, &r.Player.Department,
		&r.Leverage, &r.Codes, &balance, &r.Ticks, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return domain.ScoreReport{}, err
	}

	r.FinalBalance, err = decimal.NewFromString(balance)
	if err != nil {
		return domain.ScoreReport{}, fmt.Errorf("parse final_balance %q: %w", balance, err)
	}
	return r, nil
}

// Insert stores a final score report. A session settles its score exactly
// once, so a duplicate session id is a conflict.
func (s *ScoreStore) Insert(ctx context.Context, report domain.ScoreReport) error {
	const query = `
		INSERT INTO scores (
			session_id, player_name, student_id, department,
			leverage, codes, final_balance, ticks, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		report.SessionID, report.Player.Name, report.Player.StudentID, report.Player.Department,
		report.Leverage, report.Codes, report.FinalBalance.String(), report.Ticks,
		report.StartedAt, report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert score %s: %w", report.SessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: score %s: %w", report.SessionID, domain.ErrAlreadyExists)
	}
	return nil
}

// GetBySession retrieves the score report for one session.
func (s *ScoreStore) GetBySession(ctx context.Context, sessionID string) (domain.ScoreReport, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scoreSelectCols+` FROM scores WHERE session_id = $1`, sessionID)

	r, err := scanScoreRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScoreReport{}, domain.ErrNotFound
		}
		return domain.ScoreReport{}, fmt.Errorf("postgres: get score %s: %w", sessionID, err)
	}
	return r, nil
}

// Top returns the best scores ordered by final balance descending, with
// ranks filled in starting at 1.
func (s *ScoreStore) Top(ctx context.Context, limit int) ([]domain.RankEntry, error) {
	if limit < 1 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT session_id, player_name, student_id, department,
			final_balance::text, created_at
		 FROM scores
		 ORDER BY final_balance DESC, created_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top scores: %w", err)
	}
	defer rows.Close()

	var entries []domain.RankEntry
	for rows.Next() {
		var e domain.RankEntry
		var balance string
		if err := rows.Scan(
			&e.SessionID, &e.Player.Name, &e.Player.StudentID, &e.Player.Department,
			&balance, &e.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan score row: %w", err)
		}
		e.FinalBalance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse final_balance %q: %w", balance, err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: top scores rows: %w", err)
	}
	return entries, nil
}

// Count returns the total number of recorded scores.
func (s *ScoreStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scores`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count scores: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.ScoreStore = (*ScoreStore)(nil)
