package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/amankb/internal/lease"
	"github.com/Aman-CERP/amankb/internal/store"
)

// DefaultPollInterval is the time between scheduler ticks.
const DefaultPollInterval = 5 * time.Second

// Executor runs one job.
type Executor interface {
	Execute(ctx context.Context, job *store.Job) error
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Jobs     store.JobStore
	Lease    lease.Lease
	Executor Executor

	PollInterval time.Duration
	Now          func() time.Time
}

// Scheduler polls for PENDING parse jobs and runs at most one per tick,
// only while holding the lease.
type Scheduler struct {
	jobs     store.JobStore
	lease    lease.Lease
	executor Executor
	interval time.Duration
	now      func() time.Time
	status   *Status

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	running bool
}

// NewScheduler returns a stopped Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		jobs:     cfg.Jobs,
		lease:    cfg.Lease,
		executor: cfg.Executor,
		interval: cfg.PollInterval,
		now:      cfg.Now,
		status:   NewStatus(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Status returns the scheduler's live counters.
func (s *Scheduler) Status() *Status {
	return s.status
}

// IsRunning reports whether the polling loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins polling in a background goroutine. It returns immediately.
// A Scheduler starts at most once; later calls do nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("parse_scheduler_started", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			slog.Info("parse_scheduler_stopped")
			return
		case <-ticker.C:
		}
	}
}

// Stop signals the loop to exit and waits for it.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.Wait()
}

// Wait blocks until the loop exits. It returns at once when Start was
// never called.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.doneCh
	}
}

// Tick runs one scheduling round and reports whether a job was executed.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	s.status.tick()

	acquired, err := s.lease.TryAcquire(ctx)
	if err != nil {
		slog.Warn("parse_tick_lease_error", slog.String("error", err.Error()))
		s.status.skip()
		return false
	}
	if !acquired {
		slog.Debug("parse_tick_skipped", slog.String("reason", "lease held elsewhere"))
		s.status.skip()
		return false
	}
	defer func() {
		if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("parse_tick_lease_release_failed", slog.String("error", err.Error()))
		}
	}()

	if n, err := s.jobs.RequeueExpiredJobs(ctx, s.now()); err != nil {
		slog.Warn("parse_requeue_failed", slog.String("error", err.Error()))
	} else if n > 0 {
		slog.Info("parse_jobs_requeued", slog.Int("count", n))
	}

	jobs, err := s.jobs.ListPendingJobs(ctx, store.JobTypeParseFile, 1)
	if err != nil {
		slog.Warn("parse_list_pending_failed", slog.String("error", err.Error()))
		return false
	}
	if len(jobs) == 0 {
		return false
	}

	job := jobs[0]
	err = s.executor.Execute(ctx, job)
	s.status.record(job.ID, err)
	return true
}

// RunOnce acquires the lease and executes at most one pending job.
func RunOnce(ctx context.Context, cfg SchedulerConfig) (bool, error) {
	s := NewScheduler(cfg)
	ran := s.Tick(ctx)
	return ran, s.status.Snapshot().Err()
}
