package models

import (
	"fmt"
	"time"

	"github.com/ternarybob/casetrack/internal/common"
)

// Batch is a named, ordered collection of job records created together,
// e.g. one per file in a multi-file upload. Membership order is the order
// jobs were submitted; the successful-results view preserves it.
type Batch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	JobIDs    []string  `json:"job_ids"` // Ordered member local IDs
	CreatedAt time.Time `json:"created_at"`
}

// NewBatch creates a new batch with a generated ID
func NewBatch(name string, jobIDs []string) *Batch {
	return &Batch{
		ID:        common.NewBatchID(),
		Name:      name,
		JobIDs:    append([]string(nil), jobIDs...),
		CreatedAt: time.Now(),
	}
}

// RemoveJob removes a member local ID, preserving order of the rest.
// Used when a single job is explicitly discarded before completion.
func (b *Batch) RemoveJob(localID string) bool {
	for i, id := range b.JobIDs {
		if id == localID {
			b.JobIDs = append(b.JobIDs[:i], b.JobIDs[i+1:]...)
			return true
		}
	}
	return false
}

// Clone creates a copy of the batch
func (b *Batch) Clone() *Batch {
	return &Batch{
		ID:        b.ID,
		Name:      b.Name,
		JobIDs:    append([]string(nil), b.JobIDs...),
		CreatedAt: b.CreatedAt,
	}
}

// Validate validates the batch
func (b *Batch) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("batch ID is required")
	}
	if len(b.JobIDs) == 0 {
		return fmt.Errorf("batch must contain at least one job")
	}
	return nil
}
