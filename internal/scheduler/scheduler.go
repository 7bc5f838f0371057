package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"helpdesk-autoreply/internal/approval"
	"helpdesk-autoreply/internal/config"
	"helpdesk-autoreply/internal/poller"
)

// PollRunner performs one polling pass
type PollRunner interface {
	Run(ctx context.Context, opts poller.Options) (*poller.Report, error)
}

// ApprovedSender delivers every approved draft
type ApprovedSender interface {
	SendAllApproved(ctx context.Context) ([]approval.SendResult, error)
}

// Scheduler triggers polling runs, and optionally batch sends, on cron schedules.
// Runs may overlap; the queue store keeps them from duplicating work.
type Scheduler struct {
	cron        *cron.Cron
	pollEntryID cron.EntryID
	sendEntryID cron.EntryID
	config      *config.SchedulerConfig
	poller      PollRunner
	sender      ApprovedSender
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	isRunning   bool
	lastReport  *poller.Report
	mu          sync.RWMutex
}

// NewScheduler creates a new scheduler. sender may be nil when no send job is wanted.
func NewScheduler(cfg *config.SchedulerConfig, p PollRunner, sender ApprovedSender) *Scheduler {
	return &Scheduler{
		config: cfg,
		poller: p,
		sender: sender,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	c := cron.New(cron.WithSeconds())

	pollID, err := c.AddFunc(s.config.PollCron, s.poll)
	if err != nil {
		return fmt.Errorf("failed to add poll job: %w", err)
	}

	var sendID cron.EntryID
	if s.config.SendCron != "" && s.sender != nil {
		sendID, err = c.AddFunc(s.config.SendCron, s.sendApproved)
		if err != nil {
			return fmt.Errorf("failed to add send job: %w", err)
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	s.pollEntryID = pollID
	s.sendEntryID = sendID
	s.cron.Start()
	s.isRunning = true

	logrus.WithFields(logrus.Fields{
		"poll_cron": s.config.PollCron,
		"send_cron": s.config.SendCron,
	}).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}

	// Cancel context to stop any running operations
	s.cancel()
	ctx := s.cron.Stop()
	s.isRunning = false
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

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// poll is the scheduled polling job
func (s *Scheduler) poll() {
	s.wg.Add(1)
	defer s.wg.Done()

	if !s.IsRunning() {
		logrus.Info("Scheduler not running, skipping polling run")
		return
	}

	if _, err := s.execute(s.runContext(), poller.Options{}); err != nil {
		logrus.WithError(err).Error("Scheduled polling run failed")
	}
}

// sendApproved is the scheduled batch send job
func (s *Scheduler) sendApproved() {
	s.wg.Add(1)
	defer s.wg.Done()

	results, err := s.sender.SendAllApproved(s.runContext())
	if err != nil {
		logrus.WithError(err).Error("Scheduled send failed")
		return
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	logrus.WithFields(logrus.Fields{
		"sent":   len(results) - failed,
		"failed": failed,
	}).Info("Scheduled send completed")
}

func (s *Scheduler) execute(ctx context.Context, opts poller.Options) (*poller.Report, error) {
	report, err := s.poller.Run(ctx, opts)
	if report != nil {
		s.mu.Lock()
		s.lastReport = report
		s.mu.Unlock()
	}
	return report, err
}

// RunOnce runs a polling pass immediately (for manual triggering)
func (s *Scheduler) RunOnce(ctx context.Context, opts poller.Options) (*poller.Report, error) {
	logrus.Info("Running polling pass once")
	s.wg.Add(1)
	defer s.wg.Done()
	return s.execute(ctx, opts)
}

// LastReport returns the report of the most recent run started by this scheduler
func (s *Scheduler) LastReport() *poller.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// GetNextRun returns the time of the next scheduled polling run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.pollEntryID).Next
}

// GetLastRun returns the time of the last scheduled polling run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.pollEntryID).Prev
}

// Wait waits for in-flight jobs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
