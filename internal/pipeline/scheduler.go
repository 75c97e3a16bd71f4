package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/pastagem-atlas-service/internal/observability"
)

// Scheduler runs an Exporter on a cron schedule.
type Scheduler struct {
	exporter *Exporter
	schedule string
	cron     *cron.Cron
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	initial sync.WaitGroup
}

// NewScheduler creates a scheduler for a standard 5-field cron expression,
// e.g. "0 3 * * *" for daily at 3 AM.
func NewScheduler(exporter *Exporter, schedule string, metrics *observability.Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		exporter: exporter,
		schedule: schedule,
		cron:     cron.New(),
		metrics:  metrics,
		logger:   logger.With("component", "export.scheduler"),
	}
}

// Start validates the schedule, runs one export immediately in the
// background, then keeps exporting on schedule until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid export schedule %q: %w", s.schedule, err)
	}
	// The startup run and the cron runs share one wrapped job, so they
	// never overlap.
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).
		Then(cron.FuncJob(func() { s.run(ctx) }))
	if _, err := s.cron.AddJob(s.schedule, job); err != nil {
		return fmt.Errorf("schedule export: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.metrics.ExporterRunning.Set(1)
	s.logger.Info("export scheduler started", "schedule", s.schedule, "jobs", len(s.exporter.jobs))

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		job.Run()
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.exporter.Export(ctx); err != nil {
		s.logger.Error("scheduled export failed", "error", err)
	}
}

// Stop halts the schedule and waits for a running export, including the
// startup run, to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.initial.Wait()
	s.running = false
	s.metrics.ExporterRunning.Set(0)
	s.logger.Info("export scheduler stopped")
}

// NextRun returns the next scheduled export time, or the zero time when the
// scheduler is not running.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
