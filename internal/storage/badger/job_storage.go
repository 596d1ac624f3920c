package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/interfaces"
	"github.com/ternarybob/casetrack/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.JobRecord) error {
	if job == nil || job.LocalID == "" {
		return fmt.Errorf("job local ID is required")
	}

	if err := s.db.Store().Upsert(job.LocalID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, localID string) (*models.JobRecord, error) {
	var job models.JobRecord
	if err := s.db.Store().Get(localID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", localID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.JobRecord, error) {
	query := badgerhold.Where("LocalID").Ne("")

	if opts != nil {
		if opts.BatchID != "" {
			query = query.And("BatchID").Eq(opts.BatchID)
		}
		if opts.State != "" {
			query = query.And("State").Eq(opts.State)
		}
		if opts.Kind != "" {
			query = query.And("Kind").Eq(opts.Kind)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.JobRecord
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.JobRecord, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, localID string) error {
	if err := s.db.Store().Delete(localID, &models.JobRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // already gone
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// DeleteTerminalBefore removes terminal job records last updated before the
// cutoff. Used by the retention sweeper.
func (s *JobStorage) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	terminalStates := []interface{}{
		models.JobStateSucceeded,
		models.JobStateFailed,
		models.JobStateTimedOut,
	}

	query := badgerhold.Where("State").In(terminalStates...).
		And("LastUpdatedAt").Lt(cutoff)

	var stale []models.JobRecord
	if err := s.db.Store().Find(&stale, query); err != nil {
		return 0, fmt.Errorf("failed to find stale jobs: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := s.db.Store().DeleteMatching(&models.JobRecord{}, query); err != nil {
		return 0, fmt.Errorf("failed to delete stale jobs: %w", err)
	}

	s.logger.Debug().
		Int("count", len(stale)).
		Str("cutoff", cutoff.Format(time.RFC3339)).
		Msg("Deleted stale terminal job records")

	return len(stale), nil
}
