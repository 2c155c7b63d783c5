package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sjlee-dev/coinrush/internal/domain"
	"github.com/sjlee-dev/coinrush/internal/service"
)

// SessionService defines the methods that the session handler requires from
// the service layer.
type SessionService interface {
	StartSession(ctx context.Context, req service.StartRequest) (string, error)
	Snapshot(ctx context.Context, sessionID string) (domain.TickSnapshot, error)
	Sell(ctx context.Context, sessionID string, slot int) (*domain.SettlementEvent, error)
	Cancel(ctx context.Context, sessionID string) error
}

// SessionHandler serves session lifecycle HTTP endpoints.
type SessionHandler struct {
	sessions SessionService
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler with the given service and logger.
func NewSessionHandler(sessions SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logHandler(logger, "session"),
	}
}

// startSessionRequest is the JSON body for starting a session.
type startSessionRequest struct {
	Player      domain.Player       `json:"player"`
	Leverage    int64               `json:"leverage"`
	Allocations []domain.Allocation `json:"allocations"`
}

// StartSession validates the request body and launches a new game session.
// POST /api/sessions
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Player.Name == "" || req.Player.StudentID == "" {
		writeError(w, http.StatusBadRequest, "player name and student_id are required")
		return
	}

	id, err := h.sessions.StartSession(r.Context(), service.StartRequest{
		Player:      req.Player,
		Leverage:    req.Leverage,
		Allocations: req.Allocations,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidLeverage),
			errors.Is(err, domain.ErrInvalidAllocation),
			errors.Is(err, domain.ErrInvalidSlot):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "start session failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to start session")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// GetSession returns the latest snapshot of a live session.
// GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	snap, err := h.sessions.Snapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get session failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// sellRequest is the JSON body for selling one position slot.
type sellRequest struct {
	Slot int `json:"slot"`
}

// SellPosition settles one slot of a live session at its current value.
// Selling an already settled slot returns 200 with settled=false.
// POST /api/sessions/{id}/sell
func (h *SessionHandler) SellPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ev, err := h.sessions.Sell(r.Context(), id, req.Slot)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, domain.ErrInvalidSlot):
			writeError(w, http.StatusBadRequest, "slot must be between 1 and 3")
		default:
			h.logger.ErrorContext(r.Context(), "sell failed",
				slog.String("session_id", id),
				slog.Int("slot", req.Slot),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to sell position")
		}
		return
	}

	if ev == nil {
		writeJSON(w, http.StatusOK, map[string]any{"settled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settled":    true,
		"settlement": ev,
	})
}

// CancelSession stops a live session. Cancelling an unknown or finished
// session is a no-op.
// DELETE /api/sessions/{id}
func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	if err := h.sessions.Cancel(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "cancel session failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "cancelled",
		"session_id": id,
	})
}
