package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

// streamLimits bound one score-stream page.
const (
	defaultStreamLimit = 100
	maxStreamLimit     = 1000
)

// ScoreStream reads back the durable stream of finished-session reports.
type ScoreStream interface {
	ReadScoreStream(ctx context.Context, afterID string, count int) ([]domain.StreamMessage, error)
}

// StreamHandler serves the score stream, letting clients replay finished
// sessions they missed on the live channels.
type StreamHandler struct {
	stream ScoreStream
	logger *slog.Logger
}

// NewStreamHandler creates a StreamHandler over the given stream reader.
func NewStreamHandler(stream ScoreStream, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		stream: stream,
		logger: logHandler(logger, "stream"),
	}
}

// streamEntry is one replayed report with its stream id, usable as the next
// "after" cursor.
type streamEntry struct {
	ID     string          `json:"id"`
	Report json.RawMessage `json:"report"`
}

type streamResponse struct {
	Entries []streamEntry `json:"entries"`
	LastID  string        `json:"last_id,omitempty"`
}

// GetScoreStream returns a page of finished-session reports in stream order.
// GET /api/scores/stream?after=0&limit=100
func (h *StreamHandler) GetScoreStream(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := queryInt(r, "limit", defaultStreamLimit)
	if limit < 1 || limit > maxStreamLimit {
		limit = defaultStreamLimit
	}

	msgs, err := h.stream.ReadScoreStream(r.Context(), after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read score stream failed",
			slog.String("after", after),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read score stream")
		return
	}

	resp := streamResponse{Entries: make([]streamEntry, 0, len(msgs))}
	for _, msg := range msgs {
		resp.Entries = append(resp.Entries, streamEntry{ID: msg.ID, Report: msg.Payload})
		resp.LastID = msg.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
