package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/pastagem-atlas-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/pastagem-atlas-service/internal/adapter/kafka"
	"github.com/couchcryptid/pastagem-atlas-service/internal/adapter/pastagem"
	"github.com/couchcryptid/pastagem-atlas-service/internal/config"
	"github.com/couchcryptid/pastagem-atlas-service/internal/domain"
	"github.com/couchcryptid/pastagem-atlas-service/internal/observability"
	"github.com/couchcryptid/pastagem-atlas-service/internal/pipeline"
)

// alwaysReady is used when scheduled export is disabled and the API is the
// only workload.
type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := pastagem.NewClient(cfg.PastagemBaseURL, cfg.PastagemTimeout, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scheduled export to Kafka (feature-flagged via EXPORT_ENABLED).
	var (
		writer    *kafkaadapter.Writer
		scheduler *pipeline.Scheduler
		ready     sharedobs.ReadinessChecker = alwaysReady{}
	)
	if cfg.ExportEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		fetch := pipeline.FetcherFunc(func(ctx context.Context, req domain.SearchRequest) ([]domain.Record, error) {
			return client.FetchRecords(ctx, req)
		})
		exporter := pipeline.New(fetch, writer, cfg.ExportReports, logger, metrics)
		scheduler = pipeline.NewScheduler(exporter, cfg.ExportSchedule, metrics, logger)
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("failed to start export scheduler", "error", err)
			os.Exit(1)
		}
		ready = exporter
		logger.Info("scheduled export enabled", "schedule", cfg.ExportSchedule, "topic", cfg.KafkaSinkTopic, "next_run", scheduler.NextRun())
	} else {
		logger.Info("scheduled export disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, client, ready, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
