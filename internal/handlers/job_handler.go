package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/tracker"
)

// JobHandler handles HTTP requests for individual job records
type JobHandler struct {
	manager *tracker.Manager
	logger  arbor.ILogger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(manager *tracker.Manager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		manager: manager,
		logger:  logger,
	}
}

// JobRoutes dispatches /api/jobs/{id} by method:
// GET returns the job record snapshot, DELETE discards the job.
func (h *JobHandler) JobRoutes(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getJob(w, jobID)
	case http.MethodDelete:
		h.cancelJob(w, jobID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *JobHandler) getJob(w http.ResponseWriter, jobID string) {
	record, err := h.manager.JobSnapshot(jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

func (h *JobHandler) cancelJob(w http.ResponseWriter, jobID string) {
	if err := h.manager.CancelJob(jobID); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteSuccess(w, "Job discarded")
}
