// -----------------------------------------------------------------------
// Backend Client - HTTP adapter over the job backend's three operations
// -----------------------------------------------------------------------

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/interfaces"
	"github.com/ternarybob/casetrack/internal/models"
)

// maxResponseBody caps how much of a backend response is read into memory
const maxResponseBody = 4 * 1024 * 1024

// Client implements interfaces.StatusClient over the backend's REST API:
//
//	POST {base}/api/jobs            - start a job
//	GET  {base}/api/jobs/{id}/status - poll status
//	GET  {base}/api/jobs/{id}/result - fetch result after success
//
// One Client per job kind; uploads and analyses are served by different
// services with the same surface.
type Client struct {
	baseURL    string
	kind       models.JobKind
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewClient creates a backend client for one job kind
func NewClient(kind models.JobKind, baseURL string, timeout time.Duration, logger arbor.ILogger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		kind:    kind,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// startResponse is the backend's wire shape for a start acknowledgement
type startResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// statusResponse is the backend's wire shape for a status poll
type statusResponse struct {
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	Stage           string `json:"stage,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Start submits a job to the backend
func (c *Client) Start(ctx context.Context, req interfaces.StartRequest) (*interfaces.StartResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"kind":    string(req.Kind),
		"name":    req.Name,
		"payload": req.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal start request: %w", err)
	}

	data, err := c.do(ctx, "start", http.MethodPost, c.baseURL+"/api/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp startResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode start response: %w", err)
	}
	if resp.JobID == "" {
		return nil, fmt.Errorf("backend start response missing job_id")
	}

	c.logger.Debug().
		Str("kind", string(c.kind)).
		Str("external_id", resp.JobID).
		Str("status", resp.Status).
		Msg("Backend job started")

	return &interfaces.StartResponse{
		ExternalID:   resp.JobID,
		InitialState: normalizeState(resp.Status),
	}, nil
}

// PollStatus returns the job's current state, normalized into the shared
// JobState vocabulary. A backend-reported job failure arrives inside the
// snapshot, never as a Go error.
func (c *Client) PollStatus(ctx context.Context, externalID string) (*interfaces.StatusSnapshot, error) {
	url := fmt.Sprintf("%s/api/jobs/%s/status", c.baseURL, externalID)
	data, err := c.do(ctx, "poll_status", http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var resp statusResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &interfaces.TransientError{Op: "poll_status", Err: fmt.Errorf("decode status response: %w", err)}
	}

	return &interfaces.StatusSnapshot{
		State:           normalizeState(resp.Status),
		ProgressPercent: resp.ProgressPercent,
		StageLabel:      resp.Stage,
		ErrorMessage:    resp.Error,
	}, nil
}

// FetchResult retrieves the result payload for a succeeded job
func (c *Client) FetchResult(ctx context.Context, externalID string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/api/jobs/%s/result", c.baseURL, externalID)
	data, err := c.do(ctx, "fetch_result", http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// do executes one backend request and classifies the failure modes:
// network errors and 5xx are transient, 409/425 on result fetch means the
// result is not ready yet, other 4xx are hard errors.
func (c *Client) do(ctx context.Context, op, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &interfaces.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &interfaces.TransientError{Op: op, Err: fmt.Errorf("read response body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusTooEarly:
		// The backend reports success and result availability through two
		// separate calls; a result requested between them is not an error
		return nil, interfaces.ErrResultNotReady
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &interfaces.TransientError{Op: op, Err: fmt.Errorf("backend returned %d: %s", resp.StatusCode, truncate(data, 256))}
	default:
		return nil, fmt.Errorf("backend %s failed with %d: %s", op, resp.StatusCode, truncate(data, 256))
	}
}

// normalizeState maps backend status vocabularies onto the shared JobState
// set. Each backend job type uses its own wording ("processing",
// "completed", "error", ...); the tracker only ever sees the shared one.
func normalizeState(status string) models.JobState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "pending", "queued", "accepted", "created":
		return models.JobStatePending
	case "running", "processing", "in_progress", "analyzing", "uploading":
		return models.JobStateRunning
	case "succeeded", "success", "completed", "complete", "done":
		return models.JobStateSucceeded
	case "failed", "error", "cancelled":
		return models.JobStateFailed
	default:
		// Unknown vocabulary: treat as still running rather than inventing
		// a terminal outcome the backend never reported
		return models.JobStateRunning
	}
}

func truncate(data []byte, max int) string {
	s := string(data)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
