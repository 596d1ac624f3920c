// -----------------------------------------------------------------------
// Job Record - Client-side state of one backend-tracked job
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/casetrack/internal/common"
)

// JobKind distinguishes job categories. The kind determines which backend
// client and result shape apply.
type JobKind string

const (
	JobKindUpload   JobKind = "upload"
	JobKindAnalysis JobKind = "analysis"
)

// Valid returns true for a known job kind
func (k JobKind) Valid() bool {
	return k == JobKindUpload || k == JobKindAnalysis
}

// JobState represents the lifecycle state of a tracked job. All backend job
// types share this vocabulary even though each backend uses its own; the
// backend client normalizes on the way in.
type JobState string

const (
	JobStatePending   JobState = "pending"   // Created, not yet confirmed by server
	JobStateRunning   JobState = "running"   // Server acknowledged, in progress
	JobStateSucceeded JobState = "succeeded" // Terminal, result retrievable
	JobStateFailed    JobState = "failed"    // Terminal, carries an error message
	JobStateTimedOut  JobState = "timed_out" // Terminal, synthetic failure raised client-side
)

// IsTerminal returns true if no transition leaves this state
func (s JobState) IsTerminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed || s == JobStateTimedOut
}

// Valid returns true for a known job state
func (s JobState) Valid() bool {
	switch s {
	case JobStatePending, JobStateRunning, JobStateSucceeded, JobStateFailed, JobStateTimedOut:
		return true
	}
	return false
}

// TimeoutErrorMessage is the standard message set when a job overruns its
// deadline. Distinct from backend-reported failures so the UI can render
// "this is taking too long" instead of "processing failed".
const TimeoutErrorMessage = "operation exceeded maximum allowed time"

// JobRecord tracks one backend job's identity and observed state.
// Mutated exclusively by its poller (or the deadline guard, or an explicit
// user cancellation); everyone else reads snapshots.
//
// All mutators are no-ops once the record is terminal, which is what makes
// terminal-state immutability a structural property rather than a
// discipline every caller has to remember.
type JobRecord struct {
	// Core identification
	LocalID    string `json:"local_id"`              // Client-generated, stable for the record's lifetime
	ExternalID string `json:"external_id,omitempty"` // Server-issued, empty until the start call returns
	BatchID    string `json:"batch_id,omitempty"`    // Owning batch, empty for standalone jobs

	// Classification
	Kind JobKind `json:"kind"`
	Name string  `json:"name"` // Human-readable job name (e.g., the uploaded filename)

	// Observed state
	State           JobState        `json:"state"`
	ProgressPercent int             `json:"progress_percent"`
	StageLabel      string          `json:"stage_label,omitempty"`   // Free text from the backend, displayed as-is
	ErrorMessage    string          `json:"error_message,omitempty"` // Present only when failed or timed_out
	ResultRef       json.RawMessage `json:"result_ref,omitempty"`    // Populated only after success and a result fetch

	// Timestamps
	CreatedAt     time.Time  `json:"created_at"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewJobRecord creates a new pending job record with a generated local ID
func NewJobRecord(kind JobKind, name, batchID string) *JobRecord {
	now := time.Now()
	return &JobRecord{
		LocalID:       common.NewJobID(),
		BatchID:       batchID,
		Kind:          kind,
		Name:          name,
		State:         JobStatePending,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// IsTerminal returns true if the record reached a terminal state
func (j *JobRecord) IsTerminal() bool {
	return j.State.IsTerminal()
}

// SetExternalID records the server-issued ID after the start call returns
func (j *JobRecord) SetExternalID(externalID string) {
	if j.IsTerminal() || externalID == "" {
		return
	}
	j.ExternalID = externalID
	j.touch()
}

// MarkRunning applies an in-progress status observation. Progress is clamped
// to [0,100] and never decreases; the backend does not guarantee monotonic
// values so the client smooths them out.
func (j *JobRecord) MarkRunning(progressPercent int, stageLabel string) {
	if j.IsTerminal() {
		return
	}
	if j.State != JobStateRunning {
		j.State = JobStateRunning
		now := time.Now()
		j.StartedAt = &now
	}
	j.ProgressPercent = j.nextProgress(progressPercent)
	j.StageLabel = stageLabel
	j.touch()
}

// MarkSucceeded transitions the record into its successful terminal state.
// Called together with SetResult by the poller so readers never observe a
// succeeded record without its result.
func (j *JobRecord) MarkSucceeded(stageLabel string) {
	if j.IsTerminal() {
		return
	}
	j.State = JobStateSucceeded
	j.ProgressPercent = 100
	if stageLabel != "" {
		j.StageLabel = stageLabel
	}
	j.ErrorMessage = ""
	now := time.Now()
	j.CompletedAt = &now
	j.touch()
}

// SetResult stores the fetched result reference. Only valid on a succeeded
// record and only once.
func (j *JobRecord) SetResult(resultRef json.RawMessage) {
	if j.State != JobStateSucceeded || j.ResultRef != nil {
		return
	}
	j.ResultRef = append(json.RawMessage(nil), resultRef...)
	j.touch()
}

// MarkFailed transitions the record into the failed terminal state with the
// backend's error message surfaced verbatim
func (j *JobRecord) MarkFailed(errorMessage string) {
	if j.IsTerminal() {
		return
	}
	j.State = JobStateFailed
	j.ErrorMessage = errorMessage
	now := time.Now()
	j.CompletedAt = &now
	j.touch()
}

// MarkTimedOut transitions the record into the timed_out terminal state.
// A no-op when the job already reached a terminal outcome, so a late
// deadline firing can never overwrite a real result.
func (j *JobRecord) MarkTimedOut() {
	if j.IsTerminal() {
		return
	}
	j.State = JobStateTimedOut
	j.ErrorMessage = TimeoutErrorMessage
	now := time.Now()
	j.CompletedAt = &now
	j.touch()
}

// Clone creates a deep copy of the record for safe reads outside the poller
func (j *JobRecord) Clone() *JobRecord {
	clone := *j
	if j.ResultRef != nil {
		clone.ResultRef = append(json.RawMessage(nil), j.ResultRef...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

// Validate validates the job record
func (j *JobRecord) Validate() error {
	if j.LocalID == "" {
		return fmt.Errorf("job local ID is required")
	}
	if !j.Kind.Valid() {
		return fmt.Errorf("unknown job kind: %s", j.Kind)
	}
	if !j.State.Valid() {
		return fmt.Errorf("unknown job state: %s", j.State)
	}
	if j.ProgressPercent < 0 || j.ProgressPercent > 100 {
		return fmt.Errorf("progress percent out of range: %d", j.ProgressPercent)
	}
	return nil
}

func (j *JobRecord) nextProgress(reported int) int {
	if reported < 0 {
		reported = 0
	}
	if reported > 100 {
		reported = 100
	}
	// Tolerate non-monotonic backends: never walk progress backwards
	if reported < j.ProgressPercent {
		return j.ProgressPercent
	}
	return reported
}

func (j *JobRecord) touch() {
	j.LastUpdatedAt = time.Now()
}
