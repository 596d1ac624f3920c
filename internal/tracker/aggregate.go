package tracker

import (
	"encoding/json"

	"github.com/ternarybob/casetrack/internal/models"
)

// BatchAggregate is a pure derived view over a batch's job records,
// recomputed whenever any member changes. It supplies raw facts only;
// "can the user proceed" is a caller-side policy built on top of it.
type BatchAggregate struct {
	BatchID string `json:"batch_id"`
	Name    string `json:"name"`

	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`

	// IsComplete is true iff every member is terminal
	IsComplete bool `json:"is_complete"`
	// HasAnyFailure is true if any member failed or timed out
	HasAnyFailure bool `json:"has_any_failure"`
	// OverallPercent averages member progress for a batch-level bar
	OverallPercent int `json:"overall_percent"`

	// SuccessfulResults holds the result refs of succeeded members in
	// batch submission order
	SuccessfulResults []json.RawMessage `json:"successful_results,omitempty"`
}

// Aggregate computes the derived view for a batch. Records must be supplied
// in batch membership order; the successful-results slice preserves it.
func Aggregate(batch *models.Batch, records []*models.JobRecord) *BatchAggregate {
	agg := &BatchAggregate{
		BatchID: batch.ID,
		Name:    batch.Name,
		Total:   len(records),
	}

	progressSum := 0
	terminal := 0

	for _, rec := range records {
		progressSum += rec.ProgressPercent

		switch rec.State {
		case models.JobStatePending:
			agg.Pending++
		case models.JobStateRunning:
			agg.Running++
		case models.JobStateSucceeded:
			agg.Succeeded++
			if rec.ResultRef != nil {
				agg.SuccessfulResults = append(agg.SuccessfulResults, rec.ResultRef)
			}
		case models.JobStateFailed:
			agg.Failed++
			agg.HasAnyFailure = true
		case models.JobStateTimedOut:
			agg.TimedOut++
			agg.HasAnyFailure = true
		}

		if rec.State.IsTerminal() {
			terminal++
		}
	}

	agg.IsComplete = agg.Total > 0 && terminal == agg.Total
	if agg.Total > 0 {
		agg.OverallPercent = progressSum / agg.Total
	}

	return agg
}
