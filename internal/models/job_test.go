package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobRecord(t *testing.T) {
	record := NewJobRecord(JobKindUpload, "contract.pdf", "batch_1")

	require.NotEmpty(t, record.LocalID)
	assert.Equal(t, JobStatePending, record.State)
	assert.Equal(t, JobKindUpload, record.Kind)
	assert.Equal(t, "contract.pdf", record.Name)
	assert.Equal(t, "batch_1", record.BatchID)
	assert.Equal(t, 0, record.ProgressPercent)
	assert.False(t, record.IsTerminal())
	assert.Nil(t, record.StartedAt)
	assert.Nil(t, record.CompletedAt)
}

func TestJobStateIsTerminal(t *testing.T) {
	assert.False(t, JobStatePending.IsTerminal())
	assert.False(t, JobStateRunning.IsTerminal())
	assert.True(t, JobStateSucceeded.IsTerminal())
	assert.True(t, JobStateFailed.IsTerminal())
	assert.True(t, JobStateTimedOut.IsTerminal())
}

func TestMarkRunningSetsStartedAtOnce(t *testing.T) {
	record := NewJobRecord(JobKindAnalysis, "risk review", "")

	record.MarkRunning(10, "queued")
	require.NotNil(t, record.StartedAt)
	first := *record.StartedAt

	record.MarkRunning(20, "analyzing")
	assert.Equal(t, first, *record.StartedAt, "StartedAt should not move on later observations")
	assert.Equal(t, JobStateRunning, record.State)
	assert.Equal(t, 20, record.ProgressPercent)
	assert.Equal(t, "analyzing", record.StageLabel)
}

func TestMarkRunningClampsProgress(t *testing.T) {
	record := NewJobRecord(JobKindUpload, "doc.pdf", "")

	record.MarkRunning(-5, "")
	assert.Equal(t, 0, record.ProgressPercent)

	record.MarkRunning(150, "")
	assert.Equal(t, 100, record.ProgressPercent)
}

func TestMarkRunningProgressNeverDecreases(t *testing.T) {
	record := NewJobRecord(JobKindUpload, "doc.pdf", "")

	record.MarkRunning(60, "ocr")
	record.MarkRunning(40, "ocr")

	assert.Equal(t, 60, record.ProgressPercent, "progress should not walk backwards on non-monotonic backends")
}

func TestMarkSucceededForcesFullProgress(t *testing.T) {
	record := NewJobRecord(JobKindUpload, "doc.pdf", "")
	record.MarkRunning(42, "ocr")

	record.MarkSucceeded("done")

	assert.Equal(t, JobStateSucceeded, record.State)
	assert.Equal(t, 100, record.ProgressPercent)
	assert.Equal(t, "done", record.StageLabel)
	assert.Empty(t, record.ErrorMessage)
	require.NotNil(t, record.CompletedAt)
}

func TestTerminalRecordIsImmutable(t *testing.T) {
	tests := []struct {
		name     string
		finalize func(r *JobRecord)
		state    JobState
	}{
		{"succeeded", func(r *JobRecord) { r.MarkSucceeded("") }, JobStateSucceeded},
		{"failed", func(r *JobRecord) { r.MarkFailed("backend exploded") }, JobStateFailed},
		{"timed out", func(r *JobRecord) { r.MarkTimedOut() }, JobStateTimedOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := NewJobRecord(JobKindAnalysis, "case", "")
			tt.finalize(record)
			require.Equal(t, tt.state, record.State)

			snapshot := record.Clone()

			record.MarkRunning(50, "late status")
			record.MarkFailed("late failure")
			record.MarkTimedOut()
			record.MarkSucceeded("late success")
			record.SetExternalID("ext-late")

			assert.Equal(t, snapshot.State, record.State)
			assert.Equal(t, snapshot.ProgressPercent, record.ProgressPercent)
			assert.Equal(t, snapshot.ErrorMessage, record.ErrorMessage)
			assert.Equal(t, snapshot.ExternalID, record.ExternalID)
		})
	}
}

func TestLateTimeoutNeverOverwritesSuccess(t *testing.T) {
	record := NewJobRecord(JobKindUpload, "doc.pdf", "")
	record.MarkSucceeded("")
	record.SetResult(json.RawMessage(`{"document_id":"d1"}`))

	record.MarkTimedOut()

	assert.Equal(t, JobStateSucceeded, record.State)
	assert.Empty(t, record.ErrorMessage)
	assert.JSONEq(t, `{"document_id":"d1"}`, string(record.ResultRef))
}

func TestMarkTimedOutSetsStandardMessage(t *testing.T) {
	record := NewJobRecord(JobKindAnalysis, "case", "")
	record.MarkRunning(30, "")

	record.MarkTimedOut()

	assert.Equal(t, JobStateTimedOut, record.State)
	assert.Equal(t, TimeoutErrorMessage, record.ErrorMessage)
	require.NotNil(t, record.CompletedAt)
}

func TestSetResultOnlyOnSucceededAndOnlyOnce(t *testing.T) {
	record := NewJobRecord(JobKindUpload, "doc.pdf", "")

	record.SetResult(json.RawMessage(`{"too":"early"}`))
	assert.Nil(t, record.ResultRef, "result must not attach before success")

	record.MarkSucceeded("")
	record.SetResult(json.RawMessage(`{"document_id":"d1"}`))
	record.SetResult(json.RawMessage(`{"document_id":"d2"}`))

	assert.JSONEq(t, `{"document_id":"d1"}`, string(record.ResultRef))
}

func TestCloneIsDeep(t *testing.T) {
	record := NewJobRecord(JobKindUpload, "doc.pdf", "")
	record.MarkSucceeded("")
	record.SetResult(json.RawMessage(`{"document_id":"d1"}`))

	clone := record.Clone()
	clone.ResultRef[2] = 'X'

	assert.JSONEq(t, `{"document_id":"d1"}`, string(record.ResultRef), "mutating a clone must not touch the original")
}

func TestValidate(t *testing.T) {
	record := NewJobRecord(JobKindUpload, "doc.pdf", "")
	require.NoError(t, record.Validate())

	record.Kind = "export"
	assert.Error(t, record.Validate())

	record = NewJobRecord(JobKindUpload, "doc.pdf", "")
	record.LocalID = ""
	assert.Error(t, record.Validate())

	record = NewJobRecord(JobKindUpload, "doc.pdf", "")
	record.State = "paused"
	assert.Error(t, record.Validate())
}
