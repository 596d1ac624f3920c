// -----------------------------------------------------------------------
// Poller - Per-job timer-driven status refresh loop with deadline guard
// -----------------------------------------------------------------------

package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/interfaces"
	"github.com/ternarybob/casetrack/internal/models"
	"golang.org/x/time/rate"
)

// PollPolicy controls one poller's timing and escalation behaviour.
// Observed production values: uploads poll every 2s with a 5m deadline,
// analyses every 3s with a 2m deadline. Both are configuration, not
// constants.
type PollPolicy struct {
	// Interval between status polls
	Interval time.Duration
	// Deadline after which a non-terminal job is forced to timed_out
	Deadline time.Duration
	// MaxTransientFailures is how many consecutive transient poll failures
	// are tolerated before the job escalates to failed
	MaxTransientFailures int
}

func (p PollPolicy) withDefaults() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = 2 * time.Second
	}
	if p.Deadline <= 0 {
		p.Deadline = 5 * time.Minute
	}
	if p.MaxTransientFailures <= 0 {
		p.MaxTransientFailures = 3
	}
	return p
}

// updateFunc observes every record mutation. Called with a snapshot clone,
// never the live record, so observers cannot race the poller.
type updateFunc func(snapshot *models.JobRecord, terminal bool)

// poller owns one job record for its non-terminal lifetime. It runs a
// single goroutine: start call, then a ticker loop polling status until a
// terminal state, the deadline, or cancellation. Because the fetch happens
// synchronously inside the loop, at most one request is ever in flight per
// job, and ticker ticks that arrive mid-fetch are simply dropped.
//
// The deadline timer and the poll ticker are armed and released together;
// there is no code path that stops one without the other.
type poller struct {
	record  *models.JobRecord
	payload json.RawMessage

	client  interfaces.StatusClient
	policy  PollPolicy
	limiter *rate.Limiter
	logger  arbor.ILogger

	onUpdate updateFunc

	mu       sync.RWMutex // guards record
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newPoller(record *models.JobRecord, payload json.RawMessage, client interfaces.StatusClient, policy PollPolicy, limiter *rate.Limiter, logger arbor.ILogger, onUpdate updateFunc) *poller {
	return &poller{
		record:   record,
		payload:  payload,
		client:   client,
		policy:   policy.withDefaults(),
		limiter:  limiter,
		logger:   logger,
		onUpdate: onUpdate,
		done:     make(chan struct{}),
	}
}

// start launches the polling goroutine. The derived context is the only
// stop mechanism: cancelling it tears down ticker and deadline together.
func (p *poller) start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.run(runCtx)
}

// stop cancels the poller. Idempotent: stopping an already-stopped poller
// is a no-op, never an error.
func (p *poller) stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
}

// wait blocks until the polling goroutine has exited
func (p *poller) wait() {
	<-p.done
}

// finished reports whether the polling goroutine has exited
func (p *poller) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// snapshot returns a copy of the record for safe reads
func (p *poller) snapshot() *models.JobRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.record.Clone()
}

// localID is immutable after creation, safe to read without the lock
func (p *poller) localID() string {
	return p.record.LocalID
}

func (p *poller) run(ctx context.Context) {
	defer close(p.done)

	// The deadline covers the whole job lifetime including the start call,
	// and fires independently of poll health: a job that polls fine but
	// never terminates still times out.
	deadline := time.NewTimer(p.policy.Deadline)
	defer deadline.Stop()

	if !p.startJob(ctx) {
		return
	}

	ticker := time.NewTicker(p.policy.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			// Owner-driven cancellation: leave the record as last observed
			return

		case <-deadline.C:
			p.mutate(func(r *models.JobRecord) {
				r.MarkTimedOut()
			})
			p.logger.Warn().
				Str("job_id", p.localID()).
				Dur("deadline", p.policy.Deadline).
				Msg("Job exceeded deadline, marked timed out")
			return

		case <-ticker.C:
			if !p.waitForSlot(ctx) {
				return
			}

			externalID := p.externalID()
			snap, err := p.client.PollStatus(ctx, externalID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				consecutiveFailures++
				p.logger.Warn().
					Err(err).
					Str("job_id", p.localID()).
					Int("consecutive_failures", consecutiveFailures).
					Msg("Status poll failed")

				if consecutiveFailures >= p.policy.MaxTransientFailures {
					p.mutate(func(r *models.JobRecord) {
						r.MarkFailed(fmt.Sprintf("lost contact with the processing service after %d attempts", consecutiveFailures))
					})
					return
				}
				continue
			}
			consecutiveFailures = 0

			switch snap.State {
			case models.JobStateSucceeded:
				p.finishWithResult(ctx, snap.StageLabel)
				return

			case models.JobStateFailed:
				p.mutate(func(r *models.JobRecord) {
					r.MarkFailed(snap.ErrorMessage)
				})
				return

			default:
				p.mutate(func(r *models.JobRecord) {
					r.MarkRunning(snap.ProgressPercent, snap.StageLabel)
				})
			}
		}
	}
}

// startJob performs the backend start call and applies the acknowledgement.
// Returns false when polling should not begin (start failed, job already
// terminal, or cancelled).
func (p *poller) startJob(ctx context.Context) bool {
	p.mu.RLock()
	req := interfaces.StartRequest{
		Kind:    p.record.Kind,
		Name:    p.record.Name,
		Payload: p.payload,
	}
	p.mu.RUnlock()

	resp, err := p.client.Start(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.mutate(func(r *models.JobRecord) {
			r.MarkFailed(fmt.Sprintf("failed to start job: %v", err))
		})
		return false
	}

	switch resp.InitialState {
	case models.JobStateSucceeded:
		// Instantly-finished job: skip polling, go straight to the result
		p.mutate(func(r *models.JobRecord) {
			r.SetExternalID(resp.ExternalID)
		})
		p.finishWithResult(ctx, "")
		return false

	case models.JobStateFailed:
		p.mutate(func(r *models.JobRecord) {
			r.SetExternalID(resp.ExternalID)
			r.MarkFailed("job rejected by backend at start")
		})
		return false

	default:
		p.mutate(func(r *models.JobRecord) {
			r.SetExternalID(resp.ExternalID)
			if resp.InitialState == models.JobStateRunning {
				r.MarkRunning(0, "")
			}
		})
		return true
	}
}

// finishWithResult runs the two-step terminal transition for success:
// success and result availability are reported by two separate backend
// calls, so the record only becomes succeeded together with its result.
// A reader can therefore never observe succeeded without a result ref.
func (p *poller) finishWithResult(ctx context.Context, stageLabel string) {
	externalID := p.externalID()

	ref, err := p.client.FetchResult(ctx, externalID)
	if errors.Is(err, interfaces.ErrResultNotReady) {
		// Soft condition: retry exactly once after one interval
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.policy.Interval):
		}
		ref, err = p.client.FetchResult(ctx, externalID)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.mutate(func(r *models.JobRecord) {
			r.MarkFailed(fmt.Sprintf("job completed but result retrieval failed: %v", err))
		})
		return
	}

	p.mutate(func(r *models.JobRecord) {
		r.MarkSucceeded(stageLabel)
		r.SetResult(ref)
	})
}

// waitForSlot applies the shared backend rate limit. Returns false on
// cancellation.
func (p *poller) waitForSlot(ctx context.Context) bool {
	if p.limiter == nil {
		return true
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}
	return true
}

func (p *poller) externalID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.record.ExternalID
}

// mutate applies fn to the record under the write lock, then notifies the
// owner with a snapshot. Terminal-state immutability is enforced by the
// record's own mutators, so a late mutation after a terminal transition is
// a silent no-op.
func (p *poller) mutate(fn func(*models.JobRecord)) {
	p.mu.Lock()
	before := p.record.State
	fn(p.record)
	changed := p.record.State != before || !p.record.IsTerminal()
	snapshot := p.record.Clone()
	p.mu.Unlock()

	if changed && p.onUpdate != nil {
		p.onUpdate(snapshot, snapshot.IsTerminal())
	}
}
