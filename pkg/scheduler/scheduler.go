// Package scheduler runs maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled task.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler wraps a seconds-precision cron instance.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.SugaredLogger
	jobs   []Job
}

// New creates a scheduler. Jobs never overlap with themselves.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	sugar := logger.Sugar().With("component", "scheduler")
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	return &Scheduler{cron: c, logger: sugar}
}

// Register adds a job; invalid schedules are rejected.
func (s *Scheduler) Register(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.Name)
	}
	_, err := s.cron.AddFunc(job.Schedule, func() { s.execute(job) })
	if err != nil {
		return fmt.Errorf("register job %s: %w", job.Name, err)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *Scheduler) execute(job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	s.logger.Infow("cron job started", "job", job.Name)
	if err := job.Run(ctx); err != nil {
		s.logger.Errorw("cron job failed", "job", job.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Infow("cron job completed", "job", job.Name, "duration", time.Since(start))
}

// RunNow executes a registered job synchronously by name.
func (s *Scheduler) RunNow(name string) bool {
	for _, job := range s.jobs {
		if job.Name == name {
			s.execute(job)
			return true
		}
	}
	return false
}

// Start begins dispatching.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Infow("cron jobs started", "count", len(s.jobs))
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Infow("cron jobs stopped")
}
