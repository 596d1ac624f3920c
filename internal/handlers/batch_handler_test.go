package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/interfaces"
	"github.com/ternarybob/casetrack/internal/models"
	"github.com/ternarybob/casetrack/internal/tracker"
)

// Test helper - fakeClient is a StatusClient whose jobs run forever
type fakeClient struct{}

func (fakeClient) Start(ctx context.Context, req interfaces.StartRequest) (*interfaces.StartResponse, error) {
	return &interfaces.StartResponse{ExternalID: "ext-1", InitialState: models.JobStateRunning}, nil
}

func (fakeClient) PollStatus(ctx context.Context, externalID string) (*interfaces.StatusSnapshot, error) {
	return &interfaces.StatusSnapshot{State: models.JobStateRunning, ProgressPercent: 25}, nil
}

func (fakeClient) FetchResult(ctx context.Context, externalID string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func newTestManager(t *testing.T) *tracker.Manager {
	t.Helper()
	policy := tracker.PollPolicy{Interval: 50 * time.Millisecond, Deadline: time.Minute, MaxTransientFailures: 3}
	m := tracker.NewManager(
		map[models.JobKind]interfaces.StatusClient{
			models.JobKindUpload:   fakeClient{},
			models.JobKindAnalysis: fakeClient{},
		},
		tracker.Options{Policies: map[models.JobKind]tracker.PollPolicy{
			models.JobKindUpload:   policy,
			models.JobKindAnalysis: policy,
		}},
		nil, nil, nil,
		arbor.NewLogger(),
	)
	t.Cleanup(m.Close)
	return m
}

func newTestBatchHandler(t *testing.T) (*BatchHandler, *tracker.Manager) {
	t.Helper()
	m := newTestManager(t)
	return NewBatchHandler(m, arbor.NewLogger()), m
}

func startBatchViaHandler(t *testing.T, h *BatchHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/batches", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.StartBatchHandler(rec, req)
	return rec
}

func TestStartBatchHandler(t *testing.T) {
	h, _ := newTestBatchHandler(t)

	rec := startBatchViaHandler(t, h, `{
		"name": "filing packet",
		"jobs": [
			{"kind": "upload", "name": "contract.pdf"},
			{"kind": "analysis", "name": "risk review", "payload": {"depth": "full"}}
		]
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var batch models.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, "filing packet", batch.Name)
	assert.Len(t, batch.JobIDs, 2)
}

func TestStartBatchHandlerValidation(t *testing.T) {
	h, _ := newTestBatchHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"no jobs", `{"name": "x", "jobs": []}`},
		{"unknown kind", `{"name": "x", "jobs": [{"kind": "export", "name": "y"}]}`},
		{"missing job name", `{"name": "x", "jobs": [{"kind": "upload"}]}`},
		{"unknown field", `{"name": "x", "jobs": [{"kind": "upload", "name": "y"}], "extra": true}`},
		{"malformed json", `{"name": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := startBatchViaHandler(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStartBatchHandlerMethodNotAllowed(t *testing.T) {
	h, _ := newTestBatchHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/batches", nil)
	rec := httptest.NewRecorder()
	h.StartBatchHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartBatchHandlerAfterClose(t *testing.T) {
	h, m := newTestBatchHandler(t)
	m.Close()

	rec := startBatchViaHandler(t, h, `{"name": "late", "jobs": [{"kind": "upload", "name": "a.pdf"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetBatchRoute(t *testing.T) {
	h, _ := newTestBatchHandler(t)

	rec := startBatchViaHandler(t, h, `{"name": "packet", "jobs": [{"kind": "upload", "name": "a.pdf"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var batch models.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))

	req := httptest.NewRequest(http.MethodGet, "/api/batches/"+batch.ID, nil)
	getRec := httptest.NewRecorder()
	h.BatchRoutes(getRec, req)

	require.Equal(t, http.StatusOK, getRec.Code)

	var resp struct {
		Batch     models.Batch           `json:"batch"`
		Jobs      []models.JobRecord     `json:"jobs"`
		Aggregate tracker.BatchAggregate `json:"aggregate"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &resp))
	assert.Equal(t, batch.ID, resp.Batch.ID)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "a.pdf", resp.Jobs[0].Name)
	assert.False(t, resp.Aggregate.IsComplete)
}

func TestCancelBatchRoute(t *testing.T) {
	h, m := newTestBatchHandler(t)

	rec := startBatchViaHandler(t, h, `{"name": "packet", "jobs": [{"kind": "upload", "name": "a.pdf"}]}`)
	var batch models.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))

	req := httptest.NewRequest(http.MethodDelete, "/api/batches/"+batch.ID, nil)
	delRec := httptest.NewRecorder()
	h.BatchRoutes(delRec, req)

	assert.Equal(t, http.StatusOK, delRec.Code)
	_, _, err := m.BatchSnapshot(batch.ID)
	assert.Error(t, err)
}

func TestBatchRoutesUnknownID(t *testing.T) {
	h, _ := newTestBatchHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/batches/batch_missing", nil)
	rec := httptest.NewRecorder()
	h.BatchRoutes(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
