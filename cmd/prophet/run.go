package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rotormetrics/prophet/internal/aggregate"
	"github.com/rotormetrics/prophet/internal/httpserver"
	"github.com/rotormetrics/prophet/internal/logsource"
	"github.com/rotormetrics/prophet/internal/model"
	"github.com/rotormetrics/prophet/internal/pipeline"
	"github.com/rotormetrics/prophet/internal/publish"
	"github.com/rotormetrics/prophet/internal/report"
	"github.com/rotormetrics/prophet/internal/risk"
	"github.com/rotormetrics/prophet/internal/store"
	"github.com/rotormetrics/prophet/internal/ulog"
	"github.com/rotormetrics/prophet/internal/vehicle"
)

// run executes one full analysis pass and, when the API is enabled, keeps
// serving the results until interrupted. Per-log failures are reported in
// the run summary but do not fail the process.
func run(cfg appConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filter := vehicle.NewFilter(cfg.Vehicles)

	var dead *vehicle.DeadList
	if cfg.DeadList != "" {
		var err error
		dead, err = vehicle.LoadDeadList(cfg.DeadList)
		if err != nil {
			return fmt.Errorf("loading dead list: %w", err)
		}
	}

	source, err := newSource(cfg, filter)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("opening summary store: %w", err)
	}
	defer st.Close()

	metrics := pipeline.NewMetrics(prometheus.DefaultRegisterer)
	pl := pipeline.New(source, ulog.New(), st, pipeline.Config{
		Workers:     cfg.Workers,
		Prefetch:    cfg.Prefetch,
		Resume:      cfg.Resume,
		MaxAttempts: cfg.MaxAttempts,
		RetryBase:   cfg.RetryBase,
	}, metrics)

	stats, err := pl.Run(ctx)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	sums, err := st.Summaries(ctx)
	if err != nil {
		return fmt.Errorf("reading summaries: %w", err)
	}
	aggs := aggregate.ByVehicle(sums)
	recs := risk.Rank(aggs, dead)

	if err := report.WriteAll(cfg.OutputDir, sums, aggs, recs, stats); err != nil {
		return err
	}

	if cfg.PublishURL != "" {
		pub, err := publish.NewPublisher(publish.Config{
			BucketURL: cfg.PublishURL,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return err
		}
		artifacts := []string{
			filepath.Join(cfg.OutputDir, report.MarkdownName),
			filepath.Join(cfg.OutputDir, report.SummariesName),
			filepath.Join(cfg.OutputDir, report.ByVehicleName),
		}
		if _, err := pub.Upload(ctx, artifacts); err != nil {
			return err
		}
	}

	if !cfg.APIEnabled {
		return nil
	}

	srv := httpserver.NewServer(cfg.APIAddr, st, dead, nil)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	log.Printf("prophet: serving analytics API on %s", cfg.APIAddr)
	<-ctx.Done()
	return srv.Stop()
}

func newSource(cfg appConfig, filter *vehicle.Filter) (model.LogSource, error) {
	switch cfg.Source {
	case "fs":
		return logsource.NewFSSource(cfg.FSDir, filter)
	default:
		return logsource.NewS3Source(logsource.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
		}, filter)
	}
}
