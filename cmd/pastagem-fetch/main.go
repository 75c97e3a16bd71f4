// Command pastagem-fetch downloads one atlas report and prints it as JSON
// records (or the raw CSV with -raw).
//
// Usage:
//
//	go run ./cmd/pastagem-fetch -report pasture_area -year 2019 -municipality 3302025
//	go run ./cmd/pastagem-fetch -report degradation_classes -municipality 3302025 -raw
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/couchcryptid/pastagem-atlas-service/internal/adapter/pastagem"
	"github.com/couchcryptid/pastagem-atlas-service/internal/domain"
	"github.com/couchcryptid/pastagem-atlas-service/internal/observability"
)

type options struct {
	report       string
	year         int
	municipality int
	raw          bool
	baseURL      string
	timeout      time.Duration
	verbose      bool
}

func main() {
	var o options
	flag.StringVar(&o.report, "report", "", "report kind: pasture_area, degradation_classes, livestock_capacity, intensification_potential")
	flag.IntVar(&o.year, "year", 0, "year filter (pasture_area and livestock_capacity only)")
	flag.IntVar(&o.municipality, "municipality", 0, "IBGE municipality code filter")
	flag.BoolVar(&o.raw, "raw", false, "print the CSV body instead of JSON records")
	flag.StringVar(&o.baseURL, "base-url", pastagem.DefaultBaseURL, "atlas download endpoint")
	flag.DurationVar(&o.timeout, "timeout", 30*time.Second, "request timeout")
	flag.BoolVar(&o.verbose, "v", false, "log request details to stderr")
	flag.Parse()

	if o.report == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o, observability.NewMetrics(), os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "pastagem-fetch: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, metrics *observability.Metrics, stdout, stderr io.Writer) error {
	req, err := domain.ParseSearchRequest(o.report, optionalFlag(o.year), optionalFlag(o.municipality))
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	client := pastagem.NewClient(o.baseURL, o.timeout, metrics, logger)

	resp, err := client.FetchReport(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("atlas returned status %d", resp.StatusCode)
	}

	if o.raw {
		_, err := stdout.Write(resp.Body)
		return err
	}

	records, err := client.Convert(resp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func optionalFlag(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}
