package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Writer on a cron schedule.
type Scheduler struct {
	writer   *Writer
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool

	// OnSnapshot, when set before Start, is called after every scheduled run.
	OnSnapshot func(path string, err error)
}

// NewScheduler creates a scheduler for the given cron expression.
//
// Common expressions:
//   - "0 * * * *"   - hourly
//   - "0 0 * * *"   - daily at midnight
//   - "@every 15m"  - every fifteen minutes
func NewScheduler(writer *Writer, schedule string) *Scheduler {
	return &Scheduler{
		writer:   writer,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "evidence.snapshot"),
	}
}

// Start schedules snapshots until ctx is cancelled or Stop is called.
// An empty schedule disables the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("snapshot schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule snapshots: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("snapshot scheduler started",
		"schedule", s.schedule,
		"directory", s.writer.dir,
		"format", s.writer.exporter.Format(),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	path, err := s.writer.Write(ctx)
	if s.OnSnapshot != nil {
		s.OnSnapshot(path, err)
	}
	if err != nil {
		s.logger.Error("scheduled snapshot failed", "error", err)
		return
	}
	s.logger.Info("audit snapshot written", "path", path)
}

// Stop stops the scheduler and waits for a running snapshot to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("snapshot scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled snapshot time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
