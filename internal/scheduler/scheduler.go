package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"smart-mail-responder-go/internal/model"
)

// BatchRunner processes one batch of unseen messages.
type BatchRunner interface {
	RunBatch(ctx context.Context, limit int) *model.BatchRunSummary
}

// Config controls the scheduler cadence and batch size.
type Config struct {
	Interval time.Duration
	Limit    int
}

// Scheduler manages the periodic email processing
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    Config
	runner    BatchRunner
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	// runMu serialises batches so a manual run never overlaps a scheduled one.
	runMu   sync.Mutex
	lastRun time.Time
	last    *model.BatchRunSummary
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg Config, runner BatchRunner) *Scheduler {
	return &Scheduler{
		config: cfg,
		runner: runner,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if s.config.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	c := cron.New()
	entryID, err := c.AddFunc(fmt.Sprintf("@every %s", s.config.Interval), s.processEmails)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %s", s.config.Interval)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}

	s.cancel()
	ctx := s.cron.Stop()
	s.isRunning = false
	// Running jobs record their summary under mu, so wait unlocked.
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) processEmails() {
	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping processing cycle")
		return
	}
	// Registered under mu so a Wait after Stop always covers this batch.
	s.wg.Add(1)
	ctx := s.ctx
	s.mu.RUnlock()
	defer s.wg.Done()

	s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) *model.BatchRunSummary {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	logrus.Info("Starting email processing cycle")
	startTime := time.Now()

	summary := s.runner.RunBatch(ctx, s.config.Limit)

	s.mu.Lock()
	s.lastRun = startTime
	s.last = summary
	s.mu.Unlock()

	logrus.WithField("total_processed", summary.TotalProcessed).
		Infof("Email processing cycle completed in %v", time.Since(startTime))
	return summary
}

// RunOnce runs the email processing once and returns its summary.
func (s *Scheduler) RunOnce(ctx context.Context) *model.BatchRunSummary {
	logrus.Info("Running email processing once")

	s.mu.RLock()
	s.wg.Add(1)
	s.mu.RUnlock()
	defer s.wg.Done()

	return s.run(ctx)
}

// NextRun returns the time of the next scheduled run
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// LastRun returns the start time of the most recent batch, scheduled or manual.
func (s *Scheduler) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// LastSummary returns the most recent batch summary, or nil before the first run.
func (s *Scheduler) LastSummary() *model.BatchRunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Interval returns the configured period between batches.
func (s *Scheduler) Interval() time.Duration {
	return s.config.Interval
}

// Wait waits for in-flight batches to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
