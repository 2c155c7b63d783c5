package handler

import (
	"net/http"
	"time"

	"github.com/sjlee-dev/coinrush/internal/service"
)

// ActiveCounter reports how many game sessions are currently running.
type ActiveCounter interface {
	ActiveSessions() int
}

// StatusHandler serves the backend status and game rules for the frontend.
type StatusHandler struct {
	mode      string
	rules     service.Rules
	active    ActiveCounter
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler for the given mode and rules.
func NewStatusHandler(mode string, rules service.Rules, active ActiveCounter, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, rules: rules, active: active, startedAt: startedAt}
}

// GetStatus responds with the backend mode, uptime and game rules so the
// frontend can render the setup form without hardcoding them.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	tiers := make(map[string]string, len(h.rules.Tiers))
	for name, amount := range h.rules.Tiers {
		tiers[name] = amount.String()
	}

	active := 0
	if h.active != nil {
		active = h.active.ActiveSessions()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":            h.mode,
		"uptime_seconds":  int64(time.Since(h.startedAt).Seconds()),
		"active_sessions": active,
		"rules": map[string]any{
			"tiers":            tiers,
			"min_leverage":     h.rules.MinLeverage,
			"max_leverage":     h.rules.MaxLeverage,
			"max_ticks":        h.rules.MaxTicks,
			"tick_interval_ms": h.rules.TickInterval.Milliseconds(),
		},
	})
}
