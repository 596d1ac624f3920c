package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/common"
	"github.com/ternarybob/casetrack/internal/tracker"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	manager   *tracker.Manager
	logger    arbor.ILogger
	startedAt time.Time
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(manager *tracker.Manager, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		manager:   manager,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"version":     common.GetVersion(),
		"uptime":      time.Since(h.startedAt).String(),
		"active_jobs": h.manager.ActiveCount(),
		"timestamp":   time.Now(),
	})
}
