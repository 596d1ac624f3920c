package tracker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/casetrack/internal/models"
)

func aggregateFixture() (*models.Batch, []*models.JobRecord) {
	a := models.NewJobRecord(models.JobKindUpload, "a.pdf", "")
	a.MarkSucceeded("")
	a.SetResult(json.RawMessage(`{"document_id":"a"}`))

	b := models.NewJobRecord(models.JobKindUpload, "b.pdf", "")
	b.MarkFailed("corrupt file")

	c := models.NewJobRecord(models.JobKindUpload, "c.pdf", "")
	c.MarkRunning(50, "ocr")

	batch := models.NewBatch("packet", []string{a.LocalID, b.LocalID, c.LocalID})
	for _, r := range []*models.JobRecord{a, b, c} {
		r.BatchID = batch.ID
	}
	return batch, []*models.JobRecord{a, b, c}
}

func TestAggregateCountsStates(t *testing.T) {
	batch, records := aggregateFixture()

	agg := Aggregate(batch, records)

	assert.Equal(t, batch.ID, agg.BatchID)
	assert.Equal(t, 3, agg.Total)
	assert.Equal(t, 1, agg.Succeeded)
	assert.Equal(t, 1, agg.Failed)
	assert.Equal(t, 1, agg.Running)
	assert.Equal(t, 0, agg.Pending)
	assert.Equal(t, 0, agg.TimedOut)
}

func TestAggregateCompletionRequiresAllTerminal(t *testing.T) {
	batch, records := aggregateFixture()

	agg := Aggregate(batch, records)
	assert.False(t, agg.IsComplete, "a running member keeps the batch incomplete")
	assert.True(t, agg.HasAnyFailure)

	records[2].MarkTimedOut()
	agg = Aggregate(batch, records)
	assert.True(t, agg.IsComplete)
	assert.Equal(t, 1, agg.TimedOut)
}

func TestAggregateEmptyBatchIsNotComplete(t *testing.T) {
	batch := models.NewBatch("empty", nil)
	agg := Aggregate(batch, nil)

	assert.Equal(t, 0, agg.Total)
	assert.False(t, agg.IsComplete)
	assert.Equal(t, 0, agg.OverallPercent)
}

func TestAggregateSuccessfulResultsPreserveOrder(t *testing.T) {
	first := models.NewJobRecord(models.JobKindUpload, "a.pdf", "")
	first.MarkSucceeded("")
	first.SetResult(json.RawMessage(`{"document_id":"a"}`))

	second := models.NewJobRecord(models.JobKindUpload, "b.pdf", "")
	second.MarkSucceeded("")
	second.SetResult(json.RawMessage(`{"document_id":"b"}`))

	batch := models.NewBatch("packet", []string{first.LocalID, second.LocalID})
	agg := Aggregate(batch, []*models.JobRecord{first, second})

	require.Len(t, agg.SuccessfulResults, 2)
	assert.JSONEq(t, `{"document_id":"a"}`, string(agg.SuccessfulResults[0]))
	assert.JSONEq(t, `{"document_id":"b"}`, string(agg.SuccessfulResults[1]))

	assert.True(t, agg.IsComplete)
	assert.False(t, agg.HasAnyFailure)
	assert.Equal(t, 100, agg.OverallPercent)
}

func TestAggregateOverallPercentAverages(t *testing.T) {
	a := models.NewJobRecord(models.JobKindUpload, "a.pdf", "")
	a.MarkRunning(100, "")
	b := models.NewJobRecord(models.JobKindUpload, "b.pdf", "")
	b.MarkRunning(50, "")

	batch := models.NewBatch("packet", []string{a.LocalID, b.LocalID})
	agg := Aggregate(batch, []*models.JobRecord{a, b})

	assert.Equal(t, 75, agg.OverallPercent)
}
