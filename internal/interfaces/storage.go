package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/casetrack/internal/models"
)

// JobListOptions contains filtering options for listing job records
type JobListOptions struct {
	BatchID string
	State   models.JobState
	Kind    models.JobKind
	Limit   int
	Offset  int
}

// JobStorage persists job record snapshots. The tracker writes through on
// every transition so the API can serve job history across restarts.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.JobRecord) error
	GetJob(ctx context.Context, localID string) (*models.JobRecord, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.JobRecord, error)
	DeleteJob(ctx context.Context, localID string) error

	// DeleteTerminalBefore removes terminal records last updated before the
	// cutoff. Returns the number of records removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// BatchStorage persists batch membership
type BatchStorage interface {
	SaveBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	ListBatches(ctx context.Context, limit int) ([]*models.Batch, error)
	DeleteBatch(ctx context.Context, batchID string) error
}

// StorageManager provides access to storage implementations
type StorageManager interface {
	JobStorage() JobStorage
	BatchStorage() BatchStorage
	Close() error
}
