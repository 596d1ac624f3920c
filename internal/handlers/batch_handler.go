package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/models"
	"github.com/ternarybob/casetrack/internal/tracker"
)

// BatchHandler handles HTTP requests for batch lifecycle operations
type BatchHandler struct {
	manager  *tracker.Manager
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(manager *tracker.Manager, logger arbor.ILogger) *BatchHandler {
	return &BatchHandler{
		manager:  manager,
		validate: validator.New(),
		logger:   logger,
	}
}

// startBatchRequest is the wire shape for POST /api/batches
type startBatchRequest struct {
	Name string            `json:"name" validate:"required,max=200"`
	Jobs []startJobRequest `json:"jobs" validate:"required,min=1,max=50,dive"`
}

type startJobRequest struct {
	Kind    string          `json:"kind" validate:"required,oneof=upload analysis"`
	Name    string          `json:"name" validate:"required,max=500"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StartBatchHandler handles POST /api/batches
func (h *BatchHandler) StartBatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req startBatchRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	batchReq := tracker.BatchRequest{Name: req.Name}
	for _, job := range req.Jobs {
		batchReq.Jobs = append(batchReq.Jobs, tracker.JobRequest{
			Kind:    models.JobKind(job.Kind),
			Name:    job.Name,
			Payload: job.Payload,
		})
	}

	batch, err := h.manager.StartBatch(r.Context(), batchReq)
	if err != nil {
		if errors.Is(err, tracker.ErrManagerClosed) {
			WriteError(w, http.StatusServiceUnavailable, "Tracker is shutting down")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to start batch")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, batch)
}

// BatchRoutes dispatches /api/batches/{id} by method:
// GET returns the aggregate plus member snapshots, DELETE cancels the batch.
func (h *BatchHandler) BatchRoutes(w http.ResponseWriter, r *http.Request) {
	batchID := strings.TrimPrefix(r.URL.Path, "/api/batches/")
	if batchID == "" || strings.Contains(batchID, "/") {
		WriteError(w, http.StatusNotFound, "Batch not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getBatch(w, batchID)
	case http.MethodDelete:
		h.cancelBatch(w, batchID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BatchHandler) getBatch(w http.ResponseWriter, batchID string) {
	batch, records, err := h.manager.BatchSnapshot(batchID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batch":     batch,
		"jobs":      records,
		"aggregate": tracker.Aggregate(batch, records),
	})
}

func (h *BatchHandler) cancelBatch(w http.ResponseWriter, batchID string) {
	if err := h.manager.CancelBatch(batchID); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteSuccess(w, "Batch cancelled")
}
