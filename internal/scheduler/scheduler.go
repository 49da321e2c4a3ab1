// Package scheduler drives the single-flight dispatch pass that claims
// queued jobs and hands them to the runner matching their job_type.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/relay/common/logger"
	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/store"
)

// safetyNetInterval guards against a lost wakeup: even if a signal is
// dropped, the scheduler re-checks the queue on this cadence.
const safetyNetInterval = 2 * time.Second

// Runner executes one job to completion (or failure/cancellation). Runners
// are responsible for persisting the job's terminal state themselves.
type Runner interface {
	Run(ctx context.Context, job model.Job)
}

// Router picks the runner for a job by (job_type, prd_mode, specMode),
// mirroring the table in the component design.
type Router interface {
	Route(job model.Job) Runner
}

// Canceller is implemented by the CLI invoker so the scheduler's cancel
// path can terminate a job's live subprocess.
type Canceller interface {
	Cancel(jobID int64) bool
}

// JobStores is the subset of *store.Stores the dispatch loop needs. Narrowed
// to an interface (rather than depending on the concrete struct) so the
// dispatch pass, claim race, and recovery sweep can be unit tested against a
// fake JobStore.
type JobStores interface {
	Jobs() store.JobStore
}

type Config struct {
	Stores        JobStores
	Router        Router
	Canceller     Canceller
	MaxConcurrent int
	// Wake, if set, is signaled (non-blocking) whenever an external actor
	// wants a dispatch pass to run, e.g. a Redis Pub/Sub subscription.
	Wake <-chan struct{}
}

// Scheduler runs the single-flight dispatch pass described in the job
// scheduler's component design: claim queued jobs up to MaxConcurrent,
// launch each in its own goroutine, and re-run the pass whenever a job
// finishes or a wake signal arrives.
type Scheduler struct {
	stores        JobStores
	router        Router
	canceller     Canceller
	maxConcurrent int
	wake          <-chan struct{}

	mu          sync.Mutex
	dispatching bool
	rerun       bool

	selfWake chan struct{}

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(cfg Config) *Scheduler {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Scheduler{
		stores:        cfg.Stores,
		router:        cfg.Router,
		canceller:     cfg.Canceller,
		maxConcurrent: maxConcurrent,
		wake:          cfg.Wake,
		selfWake:      make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
}

// Recover rewrites every job still "running" to "failed" with
// error="interrupted by restart". Must be called once before Run, before
// any dispatch pass is allowed to claim new work.
func (s *Scheduler) Recover(ctx context.Context) error {
	n, err := s.stores.Jobs().FailRunning(ctx, "interrupted by restart")
	if err != nil {
		return err
	}
	if n > 0 {
		slog.InfoContext(ctx, "recovered jobs interrupted by restart", "count", n)
	}
	return nil
}

// Run drives the dispatch loop until the context is cancelled or Stop is
// called: on startup, on every external Wake signal, on every self-wake
// (emitted after a job finishes), and on the safety-net ticker.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(safetyNetInterval)
	defer ticker.Stop()

	s.triggerDispatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.triggerDispatch(ctx)
		case <-s.selfWake:
			s.triggerDispatch(ctx)
		case _, ok := <-s.wake:
			if !ok {
				// External wake channel closed; fall back to the ticker only.
				s.wake = nil
				continue
			}
			s.triggerDispatch(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

// triggerDispatch enforces the single-flight latch: if a pass is already
// running, it records a trailing-edge rerun request instead of starting a
// second pass.
func (s *Scheduler) triggerDispatch(ctx context.Context) {
	s.mu.Lock()
	if s.dispatching {
		s.rerun = true
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	s.mu.Unlock()

	go s.dispatchLoop(ctx)
}

// dispatchLoop runs dispatchPass, then re-runs it if a rerun was requested
// while it was executing, before releasing the latch.
func (s *Scheduler) dispatchLoop(ctx context.Context) {
	for {
		if err := s.dispatchPass(ctx); err != nil {
			slog.ErrorContext(ctx, "dispatch pass failed", "error", err)
		}

		s.mu.Lock()
		if !s.rerun {
			s.dispatching = false
			s.mu.Unlock()
			return
		}
		s.rerun = false
		s.mu.Unlock()
	}
}

func (s *Scheduler) dispatchPass(ctx context.Context) error {
	running, err := s.stores.Jobs().CountRunning(ctx)
	if err != nil {
		return err
	}
	if running >= s.maxConcurrent {
		return nil
	}

	queued, err := s.stores.Jobs().ListQueued(ctx, s.maxConcurrent-running)
	if err != nil {
		return err
	}

	for _, job := range queued {
		claimed, claimedJob, err := s.stores.Jobs().ClaimQueued(ctx, job.ID)
		if err != nil {
			slog.ErrorContext(ctx, "claiming job", "job_id", job.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		s.launch(ctx, *claimedJob)
	}

	return nil
}

func (s *Scheduler) launch(ctx context.Context, job model.Job) {
	runner := s.router.Route(job)
	jobID := job.ID
	runCtx := logger.WithLogFields(context.Background(), logger.LogFields{
		JobID:     logger.Ptr(jobID),
		Component: "scheduler.runner",
	})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(runCtx, "runner panicked", "job_id", jobID, "panic", r)
			}
			select {
			case s.selfWake <- struct{}{}:
			default:
			}
		}()
		runner.Run(runCtx, job)
	}()
}

// Cancel best-effort terminates a running job's subprocess and marks it
// cancelled. A race with natural completion is resolved by whichever writer
// observes the job still non-terminal first; the scheduler does not retry.
func (s *Scheduler) Cancel(ctx context.Context, jobID int64) error {
	job, err := s.stores.Jobs().GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status == model.JobStatusRunning {
		if s.canceller != nil {
			s.canceller.Cancel(jobID)
		}
	}

	if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusFailed || job.Status == model.JobStatusCancelled {
		return nil
	}

	now := time.Now()
	job.Status = model.JobStatusCancelled
	job.CompletedAt = &now
	return s.stores.Jobs().Update(ctx, job)
}
