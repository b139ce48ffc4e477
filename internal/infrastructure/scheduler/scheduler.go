package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type SchedulerConfig struct {
	Enabled           bool
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: 2,
		QueueSize:         100,
		JobTimeout:        5 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        30 * time.Second,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = d.MaxConcurrentJobs
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	c.RetryDelay = max(c.RetryDelay, 0)
	return c
}

// Scheduler feeds sync jobs to a fixed set of workers. A shop has at most
// one job queued, running or waiting to retry.
type Scheduler struct {
	cfg      SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger
	queue    chan *Job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	shops   map[uuid.UUID]struct{}
}

func NewScheduler(cfg SchedulerConfig, executor JobExecutor, logger *zap.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:      cfg,
		executor: executor,
		logger:   logger.Named("feed-sync"),
		queue:    make(chan *Job, cfg.QueueSize),
		shops:    make(map[uuid.UUID]struct{}),
	}
}

// Start launches the workers. Starting a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.group = &errgroup.Group{}
	for range s.cfg.MaxConcurrentJobs {
		s.group.Go(func() error {
			s.work(ctx)
			return nil
		})
	}
	s.running = true

	s.logger.Info("workers started",
		zap.Int("workers", s.cfg.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.cfg.JobTimeout))
	return nil
}

// Stop cancels running jobs and waits for the workers, at most until ctx
// ends. Queued jobs are dropped; the next cron tick queues them again.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	group := s.group
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("workers stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("workers did not stop in time")
		return ctx.Err()
	}
}

// SubmitJob queues job. It fails when the shop already has a job or the
// queue is full.
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.running:
		return ErrSchedulerNotRunning
	case s.has(job.PartnerID):
		return ErrJobAlreadyQueued
	}

	select {
	case s.queue <- job:
	default:
		return ErrJobQueueFull
	}
	s.shops[job.PartnerID] = struct{}{}
	s.logger.Debug("job queued", zap.Stringer("job_id", job.ID), zap.Stringer("partner_id", job.PartnerID))
	return nil
}

// Pending counts shops with a job queued, running or waiting to retry
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shops)
}

func (s *Scheduler) has(partnerID uuid.UUID) bool {
	_, ok := s.shops[partnerID]
	return ok
}

func (s *Scheduler) done(job *Job) {
	s.mu.Lock()
	delete(s.shops, job.PartnerID)
	s.mu.Unlock()
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.run(ctx, job)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job *Job) {
	log := s.logger.With(zap.Stringer("job_id", job.ID), zap.Stringer("partner_id", job.PartnerID))
	job.Start()
	log.Info("feed sync started", zap.Int("attempt", job.RetryCount+1))

	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	err := s.executor.Execute(jobCtx, job)
	cancel()

	switch {
	case err == nil:
		job.Complete()
		s.done(job)
		log.Info("feed sync completed")
		return
	case errors.Is(err, context.Canceled):
		job.Fail(err.Error())
		s.done(job)
		log.Warn("feed sync cancelled")
		return
	}

	job.Fail(err.Error())
	if !job.ShouldRetry(err) {
		s.done(job)
		log.Error("feed sync failed", zap.Int("retries", job.RetryCount), zap.Error(err))
		return
	}

	job.ScheduleRetry()
	log.Info("feed sync will retry",
		zap.Int("retry", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Duration("delay", s.cfg.RetryDelay))
	s.group.Go(func() error {
		s.retryLater(ctx, job)
		return nil
	})
}

// retryLater requeues job after the retry delay. The shop stays claimed in
// between so cron ticks do not queue a second job.
func (s *Scheduler) retryLater(ctx context.Context, job *Job) {
	timer := time.NewTimer(s.cfg.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		s.done(job)
		return
	}
	select {
	case s.queue <- job:
	case <-ctx.Done():
		s.done(job)
	}
}
