package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/pastagem-atlas-service/internal/domain"
)

// DefaultBaseURL is the atlas CSV download endpoint.
const DefaultBaseURL = "https://pastagem.org/atlas/service/map/downloadCSV"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Atlas endpoint configuration.
	PastagemBaseURL string
	PastagemTimeout time.Duration

	KafkaBrokers   []string
	KafkaSinkTopic string

	// Scheduled export configuration.
	ExportEnabled  bool
	ExportSchedule string
	ExportReports  []domain.SearchRequest
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("PASTAGEM_TIMEOUT", "30s"))
	if err != nil || timeout <= 0 {
		return nil, errors.New("invalid PASTAGEM_TIMEOUT")
	}

	baseURL := sharedcfg.EnvOrDefault("PASTAGEM_BASE_URL", DefaultBaseURL)
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid PASTAGEM_BASE_URL %q", baseURL)
	}

	exportReports, err := ParseExportReports(sharedcfg.EnvOrDefault("EXPORT_REPORTS", "pasture_area"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		PastagemBaseURL: baseURL,
		PastagemTimeout: timeout,

		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "pastagem-report-records"),

		ExportEnabled:  os.Getenv("EXPORT_ENABLED") == "true",
		ExportSchedule: sharedcfg.EnvOrDefault("EXPORT_SCHEDULE", "0 3 * * *"),
		ExportReports:  exportReports,
	}

	if cfg.ExportEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when EXPORT_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when EXPORT_ENABLED is true")
		}
		if len(cfg.ExportReports) == 0 {
			return nil, errors.New("EXPORT_REPORTS is required when EXPORT_ENABLED is true")
		}
		if _, err := cron.ParseStandard(cfg.ExportSchedule); err != nil {
			return nil, fmt.Errorf("invalid EXPORT_SCHEDULE %q: %w", cfg.ExportSchedule, err)
		}
	}

	return cfg, nil
}

// ParseExportReports parses a comma-separated list of export jobs. Each job
// is "kind[:year[:municipality]]"; an empty year keeps the year unset, e.g.
// "degradation_classes::3302025".
func ParseExportReports(s string) ([]domain.SearchRequest, error) {
	var out []domain.SearchRequest
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) > 3 {
			return nil, fmt.Errorf("invalid EXPORT_REPORTS entry %q", item)
		}

		var year, municipality string
		if len(parts) > 1 {
			year = parts[1]
		}
		if len(parts) > 2 {
			municipality = parts[2]
		}
		req, err := domain.ParseSearchRequest(parts[0], year, municipality)
		if err != nil {
			return nil, fmt.Errorf("invalid EXPORT_REPORTS entry %q: %w", item, err)
		}
		out = append(out, req)
	}
	return out, nil
}
