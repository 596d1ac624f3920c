package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ternarybob/casetrack/internal/models"
)

// ErrResultNotReady is returned by FetchResult when the backend has reported
// success but the result payload is not yet retrievable. A soft condition,
// not a job failure: callers retry, they do not escalate.
var ErrResultNotReady = errors.New("job result not ready")

// TransientError wraps a network or server-side failure of a single backend
// call. Transient errors are retried on the next poll tick; only a bounded
// run of consecutive ones escalates to a job failure.
type TransientError struct {
	Op  string // Operation that failed: "start", "poll_status", "fetch_result"
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable backend failure
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StartRequest describes a job to be started on the backend
type StartRequest struct {
	Kind    models.JobKind  `json:"kind"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StartResponse is the backend's acknowledgement of a started job.
// The start call returns sub-second regardless of total job duration;
// that latency guarantee is what makes polling viable.
type StartResponse struct {
	ExternalID   string          `json:"external_id"`
	InitialState models.JobState `json:"initial_state"`
}

// StatusSnapshot is one observation of a job's backend state, already
// normalized into the shared JobState vocabulary
type StatusSnapshot struct {
	State           models.JobState `json:"state"`
	ProgressPercent int             `json:"progress_percent"`
	StageLabel      string          `json:"stage_label,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
}

// StatusClient is the external collaborator boundary for one job kind.
// The backend exposes exactly three operations; everything else in the
// tracker is built above this contract, independent of transport.
type StatusClient interface {
	// Start submits the job and returns quickly with the server-issued ID
	Start(ctx context.Context, req StartRequest) (*StartResponse, error)

	// PollStatus returns the job's latest known state. Idempotent, safe to
	// call repeatedly. Network failures surface as *TransientError, never
	// as a job failure.
	PollStatus(ctx context.Context, externalID string) (*StatusSnapshot, error)

	// FetchResult retrieves the result payload. Callable only once
	// PollStatus has reported success; earlier calls return
	// ErrResultNotReady by contract, not a protocol violation.
	FetchResult(ctx context.Context, externalID string) (json.RawMessage, error)
}
