package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

// RankService defines the methods that the rank handler requires from the
// service layer.
type RankService interface {
	Top(ctx context.Context, n int) ([]domain.RankEntry, error)
	Count(ctx context.Context) (int64, error)
	GetBySession(ctx context.Context, sessionID string) (domain.ScoreReport, error)
}

// RankHandler serves leaderboard HTTP endpoints.
type RankHandler struct {
	ranks  RankService
	logger *slog.Logger
}

// NewRankHandler creates a RankHandler with the given service and logger.
func NewRankHandler(ranks RankService, logger *slog.Logger) *RankHandler {
	return &RankHandler{
		ranks:  ranks,
		logger: logHandler(logger, "rank"),
	}
}

// rankResponse wraps the leaderboard response.
type rankResponse struct {
	Entries []domain.RankEntry `json:"entries"`
	Total   int64              `json:"total"`
}

// GetRank returns the top final balances, best first.
// GET /api/rank?limit=50
func (h *RankHandler) GetRank(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)

	entries, err := h.ranks.Top(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get rank failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	if entries == nil {
		entries = []domain.RankEntry{}
	}

	total, err := h.ranks.Count(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "count scores failed",
			slog.String("error", err.Error()),
		)
		total = int64(len(entries))
	}

	writeJSON(w, http.StatusOK, rankResponse{Entries: entries, Total: total})
}

// GetScore returns the recorded final score of a finished session.
// GET /api/scores/{id}
func (h *RankHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	report, err := h.ranks.GetBySession(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "score not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get score failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load score")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
