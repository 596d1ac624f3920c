// -----------------------------------------------------------------------
// Lifecycle Manager - Binds pollers to one owning surface's lifetime
// -----------------------------------------------------------------------

package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/common"
	"github.com/ternarybob/casetrack/internal/interfaces"
	"github.com/ternarybob/casetrack/internal/models"
	"golang.org/x/time/rate"
)

// ErrManagerClosed is returned when starting work on a torn-down manager
var ErrManagerClosed = errors.New("tracker manager is closed")

// ErrNotFound is returned when a job or batch is not owned by this manager
var ErrNotFound = errors.New("not found")

// Options configures a Manager
type Options struct {
	// Policies maps each job kind to its polling policy
	Policies map[models.JobKind]PollPolicy
	// PollRate limits backend status calls across all pollers combined
	// (0 = unlimited)
	PollRate rate.Limit
	// PollBurst is the rate limiter burst size
	PollBurst int
}

// OptionsFromConfig builds tracker options from application configuration
func OptionsFromConfig(cfg *common.TrackerConfig) Options {
	return Options{
		Policies: map[models.JobKind]PollPolicy{
			models.JobKindUpload: {
				Interval:             common.ParseDurationOr(cfg.UploadPollInterval, 2*time.Second),
				Deadline:             common.ParseDurationOr(cfg.UploadDeadline, 5*time.Minute),
				MaxTransientFailures: cfg.MaxTransientFailures,
			},
			models.JobKindAnalysis: {
				Interval:             common.ParseDurationOr(cfg.AnalysisPollInterval, 3*time.Second),
				Deadline:             common.ParseDurationOr(cfg.AnalysisDeadline, 2*time.Minute),
				MaxTransientFailures: cfg.MaxTransientFailures,
			},
		},
		PollRate:  rate.Limit(cfg.PollRatePerSecond),
		PollBurst: cfg.PollBurst,
	}
}

// JobRequest describes one job within a batch
type JobRequest struct {
	Kind    models.JobKind
	Name    string
	Payload json.RawMessage
	// Resource is an optional client-local resource tied 1:1 to the job
	// (e.g. a locally held file handle). Released exactly once when the
	// job turns terminal, is discarded, or the manager is torn down.
	Resource io.Closer
}

// BatchRequest describes a batch of jobs created together
type BatchRequest struct {
	Name string
	Jobs []JobRequest
}

// Manager owns every active poller created through it and guarantees that
// all of them (poll tickers and deadline timers both) are cancelled exactly
// once at teardown, regardless of job outcome. The registry is instance
// state bound to one owning surface's lifetime, never a process-wide
// singleton.
//
// Poller creation and registration happen inside a single StartBatch call
// under the manager's lock; the API offers no way to create an
// unregistered poller, which is what makes orphaned timers structurally
// impossible rather than merely discouraged.
type Manager struct {
	clients map[models.JobKind]interfaces.StatusClient
	opts    Options
	limiter *rate.Limiter

	jobStorage   interfaces.JobStorage
	batchStorage interfaces.BatchStorage
	events       interfaces.EventService
	logger       arbor.ILogger

	mu        sync.RWMutex
	pollers   map[string]*poller
	batches   map[string]*models.Batch
	resources map[string]io.Closer
	closed    bool

	ctx       context.Context
	cancelAll context.CancelFunc
	closeOnce sync.Once
}

// NewManager creates a tracker manager. jobStorage, batchStorage and events
// may be nil (library use without persistence or observers).
func NewManager(clients map[models.JobKind]interfaces.StatusClient, opts Options, jobStorage interfaces.JobStorage, batchStorage interfaces.BatchStorage, eventService interfaces.EventService, logger arbor.ILogger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if opts.PollRate > 0 {
		burst := opts.PollBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.PollRate, burst)
	}

	return &Manager{
		clients:      clients,
		opts:         opts,
		limiter:      limiter,
		jobStorage:   jobStorage,
		batchStorage: batchStorage,
		events:       eventService,
		logger:       logger,
		pollers:      make(map[string]*poller),
		batches:      make(map[string]*models.Batch),
		resources:    make(map[string]io.Closer),
		ctx:          ctx,
		cancelAll:    cancel,
	}
}

// StartBatch creates job records for every request, registers and arms one
// poller (with its deadline guard) per record, and returns the batch.
// Returns quickly: backend start calls happen inside the pollers.
func (m *Manager) StartBatch(ctx context.Context, req BatchRequest) (*models.Batch, error) {
	if len(req.Jobs) == 0 {
		return nil, fmt.Errorf("batch must contain at least one job")
	}
	for _, jr := range req.Jobs {
		if _, ok := m.clients[jr.Kind]; !ok {
			return nil, fmt.Errorf("no backend client for job kind %q", jr.Kind)
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}

	jobIDs := make([]string, 0, len(req.Jobs))
	started := make([]*poller, 0, len(req.Jobs))
	records := make([]*models.JobRecord, 0, len(req.Jobs))

	batch := models.NewBatch(req.Name, nil)

	for _, jr := range req.Jobs {
		record := models.NewJobRecord(jr.Kind, jr.Name, batch.ID)
		p := newPoller(record, jr.Payload, m.clients[jr.Kind], m.policyFor(jr.Kind), m.limiter, m.logger, m.handleUpdate)

		m.pollers[record.LocalID] = p
		if jr.Resource != nil {
			m.resources[record.LocalID] = jr.Resource
		}

		jobIDs = append(jobIDs, record.LocalID)
		started = append(started, p)
		records = append(records, record.Clone())
	}
	batch.JobIDs = jobIDs
	m.batches[batch.ID] = batch
	m.mu.Unlock()

	m.persistBatch(batch)
	for _, rec := range records {
		m.persistJob(rec)
	}

	m.logger.Info().
		Str("batch_id", batch.ID).
		Str("name", batch.Name).
		Int("jobs", len(jobIDs)).
		Msg("Batch started")

	m.publish(interfaces.EventBatchStarted, batch.Clone())

	// Arm after registration: a poller racing a concurrent Close simply
	// inherits the already-cancelled manager context and exits
	for _, p := range started {
		p.start(m.ctx)
	}

	return batch.Clone(), nil
}

// CancelJob explicitly discards a single job before completion: the poller
// and its deadline guard stop, the job's local resource is released, and
// the record is removed from its batch and from storage.
func (m *Manager) CancelJob(localID string) error {
	m.mu.Lock()
	p, ok := m.pollers[localID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("job %s: %w", localID, ErrNotFound)
	}
	delete(m.pollers, localID)
	closer := m.resources[localID]
	delete(m.resources, localID)

	var batch *models.Batch
	if batchID := p.snapshot().BatchID; batchID != "" {
		if b, ok := m.batches[batchID]; ok {
			b.RemoveJob(localID)
			batch = b.Clone()
		}
	}
	m.mu.Unlock()

	p.stop()
	m.closeResource(localID, closer)

	if m.jobStorage != nil {
		if err := m.jobStorage.DeleteJob(context.Background(), localID); err != nil {
			m.logger.Warn().Err(err).Str("job_id", localID).Msg("Failed to delete job record")
		}
	}
	if batch != nil {
		m.persistBatch(batch)
	}

	m.logger.Info().Str("job_id", localID).Msg("Job cancelled and discarded")
	return nil
}

// CancelBatch discards a batch: all member pollers and deadline guards are
// cancelled, member resources released, and the records destroyed. Members
// that already finished are simply removed.
func (m *Manager) CancelBatch(batchID string) error {
	m.mu.Lock()
	batch, ok := m.batches[batchID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	delete(m.batches, batchID)

	members := make([]*poller, 0, len(batch.JobIDs))
	closers := make(map[string]io.Closer)
	for _, jobID := range batch.JobIDs {
		if p, ok := m.pollers[jobID]; ok {
			members = append(members, p)
			delete(m.pollers, jobID)
		}
		if c, ok := m.resources[jobID]; ok {
			closers[jobID] = c
			delete(m.resources, jobID)
		}
	}
	jobIDs := append([]string(nil), batch.JobIDs...)
	m.mu.Unlock()

	for _, p := range members {
		p.stop()
	}
	for jobID, closer := range closers {
		m.closeResource(jobID, closer)
	}

	if m.jobStorage != nil {
		for _, jobID := range jobIDs {
			if err := m.jobStorage.DeleteJob(context.Background(), jobID); err != nil {
				m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to delete job record")
			}
		}
	}
	if m.batchStorage != nil {
		if err := m.batchStorage.DeleteBatch(context.Background(), batchID); err != nil {
			m.logger.Warn().Err(err).Str("batch_id", batchID).Msg("Failed to delete batch")
		}
	}

	m.logger.Info().Str("batch_id", batchID).Int("jobs", len(jobIDs)).Msg("Batch cancelled")
	return nil
}

// JobSnapshot returns a copy of one job record for rendering
func (m *Manager) JobSnapshot(localID string) (*models.JobRecord, error) {
	m.mu.RLock()
	p, ok := m.pollers[localID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job %s: %w", localID, ErrNotFound)
	}
	return p.snapshot(), nil
}

// BatchSnapshot returns the batch and its member records in submission order
func (m *Manager) BatchSnapshot(batchID string) (*models.Batch, []*models.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batch, ok := m.batches[batchID]
	if !ok {
		return nil, nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}

	records := make([]*models.JobRecord, 0, len(batch.JobIDs))
	for _, jobID := range batch.JobIDs {
		if p, ok := m.pollers[jobID]; ok {
			records = append(records, p.snapshot())
		}
	}
	return batch.Clone(), records, nil
}

// Aggregate computes the derived completion view for a batch
func (m *Manager) Aggregate(batchID string) (*BatchAggregate, error) {
	batch, records, err := m.BatchSnapshot(batchID)
	if err != nil {
		return nil, err
	}
	return Aggregate(batch, records), nil
}

// ActiveCount returns the number of pollers whose goroutine (and therefore
// whose timers) are still live. Zero after Close, always.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, p := range m.pollers {
		if !p.finished() {
			count++
		}
	}
	return count
}

// Close tears down the manager: every active poll ticker and deadline timer
// across every owned job is cancelled exactly once, all job-local resources
// are released, and the registries are cleared. Idempotent, and infallible
// by contract: teardown must never block an unmount.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		pollers := make([]*poller, 0, len(m.pollers))
		for _, p := range m.pollers {
			pollers = append(pollers, p)
		}
		closers := m.resources
		m.pollers = make(map[string]*poller)
		m.batches = make(map[string]*models.Batch)
		m.resources = make(map[string]io.Closer)
		m.mu.Unlock()

		// One cancellation stops every poller's ticker and deadline pair
		m.cancelAll()
		for _, p := range pollers {
			p.wait()
		}
		for jobID, closer := range closers {
			m.closeResource(jobID, closer)
		}

		m.logger.Info().Int("pollers", len(pollers)).Msg("Tracker manager closed")
	})
}

// handleUpdate observes every record mutation from the pollers: persist the
// snapshot, publish events, release resources on terminal transitions, and
// recompute batch completion.
func (m *Manager) handleUpdate(snapshot *models.JobRecord, terminal bool) {
	m.persistJob(snapshot)
	m.publish(interfaces.EventJobUpdated, snapshot)

	if !terminal {
		return
	}

	m.publish(interfaces.EventJobTerminal, snapshot)

	m.mu.Lock()
	closer := m.resources[snapshot.LocalID]
	delete(m.resources, snapshot.LocalID)
	m.mu.Unlock()
	m.closeResource(snapshot.LocalID, closer)

	if snapshot.BatchID == "" {
		return
	}
	agg, err := m.Aggregate(snapshot.BatchID)
	if err != nil {
		return // batch already discarded
	}
	if agg.IsComplete {
		m.logger.Info().
			Str("batch_id", snapshot.BatchID).
			Int("succeeded", agg.Succeeded).
			Int("failed", agg.Failed).
			Int("timed_out", agg.TimedOut).
			Msg("Batch complete")
		m.publish(interfaces.EventBatchComplete, agg)
	}
}

func (m *Manager) policyFor(kind models.JobKind) PollPolicy {
	if m.opts.Policies != nil {
		if policy, ok := m.opts.Policies[kind]; ok {
			return policy
		}
	}
	return PollPolicy{}
}

func (m *Manager) persistJob(record *models.JobRecord) {
	if m.jobStorage == nil {
		return
	}
	if err := m.jobStorage.SaveJob(context.Background(), record); err != nil {
		m.logger.Warn().Err(err).Str("job_id", record.LocalID).Msg("Failed to persist job record")
	}
}

func (m *Manager) persistBatch(batch *models.Batch) {
	if m.batchStorage == nil {
		return
	}
	if err := m.batchStorage.SaveBatch(context.Background(), batch); err != nil {
		m.logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("Failed to persist batch")
	}
}

func (m *Manager) publish(eventType interfaces.EventType, payload interface{}) {
	if m.events == nil {
		return
	}
	m.events.Publish(context.Background(), interfaces.Event{
		Type:    eventType,
		Payload: payload,
	})
}

// closeResource releases one job-local resource. Release failures are
// logged, never propagated: teardown cannot fail.
func (m *Manager) closeResource(jobID string, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to release job resource")
	}
}
