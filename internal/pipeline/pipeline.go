package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/pastagem-atlas-service/internal/domain"
	"github.com/couchcryptid/pastagem-atlas-service/internal/observability"
)

// Fetcher downloads and converts one report.
type Fetcher interface {
	FetchRecords(ctx context.Context, req domain.SearchRequest) ([]domain.Record, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req domain.SearchRequest) ([]domain.Record, error)

func (f FetcherFunc) FetchRecords(ctx context.Context, req domain.SearchRequest) ([]domain.Record, error) {
	return f(ctx, req)
}

// Loader writes report records to the destination.
type Loader interface {
	LoadBatch(ctx context.Context, records []domain.ReportRecord) error
}

// Result summarizes one export run.
type Result struct {
	Jobs      int
	Failed    int
	Published int
}

const (
	loadAttempts   = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Exporter runs the fetch-convert-load cycle for a fixed set of report queries.
type Exporter struct {
	fetcher Fetcher
	loader  Loader
	jobs    []domain.SearchRequest
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New creates an Exporter for the given jobs.
func New(f Fetcher, l Loader, jobs []domain.SearchRequest, logger *slog.Logger, metrics *observability.Metrics) *Exporter {
	return &Exporter{
		fetcher: f,
		loader:  l,
		jobs:    jobs,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once an export run has published without
// failures, or an error describing why the service is not yet ready.
func (e *Exporter) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("no export run has completed yet")
	}
	return nil
}

// Export runs every job once. A failing job is logged and skipped; the
// returned error joins all job failures and is nil only when every job
// succeeded.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	res := Result{Jobs: len(e.jobs)}
	var errs []error

	for _, job := range e.jobs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n, err := e.exportJob(ctx, job)
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", job.Kind, err))
			e.logger.Warn("export job failed, skipping",
				"report", job.Kind.String(),
				"year", optional(job.Year),
				"municipality_code", optional(job.MunicipalityCode),
				"error", err,
			)
			continue
		}
		res.Published += n
	}

	switch {
	case res.Failed == 0:
		e.metrics.ExportRuns.WithLabelValues("success").Inc()
		e.ready.Store(true)
	case res.Failed < res.Jobs:
		e.metrics.ExportRuns.WithLabelValues("partial").Inc()
	default:
		e.metrics.ExportRuns.WithLabelValues("error").Inc()
	}

	e.logger.Info("export run finished",
		"jobs", res.Jobs,
		"failed", res.Failed,
		"published", res.Published,
	)
	return res, errors.Join(errs...)
}

// exportJob fetches, converts and loads a single report, returning the number
// of records published.
func (e *Exporter) exportJob(ctx context.Context, job domain.SearchRequest) (int, error) {
	rows, err := e.fetcher.FetchRecords(ctx, job)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	records := domain.NewReportRecords(job, rows)
	if err := e.loadWithRetry(ctx, records); err != nil {
		return 0, fmt.Errorf("load: %w", err)
	}

	e.metrics.RecordsPublished.Add(float64(len(records)))
	return len(records), nil
}

// loadWithRetry retries the sink with exponential backoff: start at 200ms,
// double each attempt, cap at 5s.
func (e *Exporter) loadWithRetry(ctx context.Context, records []domain.ReportRecord) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= loadAttempts; attempt++ {
		if err = e.loader.LoadBatch(ctx, records); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == loadAttempts {
			break
		}
		e.logger.Warn("load batch failed, retrying", "error", err, "attempt", attempt, "batch_size", len(records))
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return err
}

func optional(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
