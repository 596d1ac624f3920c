package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/common"
	"github.com/ternarybob/casetrack/internal/interfaces"
)

// Service prunes terminal job records and empty batches past the retention
// window on a cron schedule. Active jobs are never touched: only records
// already in a terminal state age out.
type Service struct {
	jobStorage   interfaces.JobStorage
	batchStorage interfaces.BatchStorage
	cron         *cron.Cron
	logger       arbor.ILogger

	schedule  string
	retention time.Duration

	mu      sync.Mutex
	running bool
}

// NewService creates a maintenance service from configuration
func NewService(config *common.MaintenanceConfig, jobStorage interfaces.JobStorage, batchStorage interfaces.BatchStorage, logger arbor.ILogger) *Service {
	return &Service{
		jobStorage:   jobStorage,
		batchStorage: batchStorage,
		cron:         cron.New(),
		logger:       logger,
		schedule:     config.Schedule,
		retention:    common.ParseDurationOr(config.Retention, 7*24*time.Hour),
	}
}

// Start begins the scheduled sweeps
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("maintenance service already running")
	}

	schedule := s.schedule
	if schedule == "" {
		schedule = "*/15 * * * *" // Default: every 15 minutes
	}

	if _, err := s.cron.AddFunc(schedule, s.runSweep); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Dur("retention", s.retention).
		Msg("Maintenance sweeper started")

	return nil
}

// Stop halts the scheduled sweeps, waiting for an in-flight sweep to finish
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Maintenance sweeper stopped")
}

func (s *Service) runSweep() {
	if err := s.Sweep(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("Maintenance sweep failed")
	}
}

// Sweep removes terminal job records older than the retention window, then
// drops batches that no longer have any member records.
func (s *Service) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention)

	removed, err := s.jobStorage.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete stale jobs: %w", err)
	}

	batchesRemoved, err := s.pruneEmptyBatches(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune batches: %w", err)
	}

	if removed > 0 || batchesRemoved > 0 {
		s.logger.Info().
			Int("jobs_removed", removed).
			Int("batches_removed", batchesRemoved).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("Maintenance sweep completed")
	}

	return nil
}

// pruneEmptyBatches deletes batches created before the cutoff whose member
// records have all been swept
func (s *Service) pruneEmptyBatches(ctx context.Context, cutoff time.Time) (int, error) {
	batches, err := s.batchStorage.ListBatches(ctx, 0)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, batch := range batches {
		if batch.CreatedAt.After(cutoff) {
			continue
		}

		jobs, err := s.jobStorage.ListJobs(ctx, &interfaces.JobListOptions{BatchID: batch.ID, Limit: 1})
		if err != nil {
			return removed, err
		}
		if len(jobs) > 0 {
			continue
		}

		if err := s.batchStorage.DeleteBatch(ctx, batch.ID); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}
