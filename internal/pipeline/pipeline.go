// Package pipeline schedules log processing across a bounded worker pool.
// A feeder streams admitted log references to W workers; each worker
// fetches, decodes, and extracts one log at a time, and a single writer
// appends the resulting summaries to the store. At most Workers+queueDepth
// logs are in flight, which bounds memory regardless of fleet size. An
// optional prefetch limit caps how many logs one run schedules at all.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rotormetrics/prophet/internal/extract"
	"github.com/rotormetrics/prophet/internal/logsource"
	"github.com/rotormetrics/prophet/internal/model"
	"github.com/rotormetrics/prophet/internal/store"
	"github.com/rotormetrics/prophet/internal/ulog"
)

const (
	// DefaultMaxAttempts is the per-log fetch attempt limit.
	DefaultMaxAttempts = 3

	// DefaultRetryBase is the first retry delay; later attempts double it.
	DefaultRetryBase = 500 * time.Millisecond

	// queueDepth is how many admitted logs may sit queued ahead of the
	// workers.
	queueDepth = 8
)

// Config controls one pipeline run.
type Config struct {
	Workers     int // worker pool size, 0 = available parallelism
	Prefetch    int // max logs scheduled this run after admission, 0 = unlimited
	Resume      bool // keep existing summary rows and skip their logs
	MaxAttempts int
	RetryBase   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	return c
}

// Pipeline runs the fetch-decode-extract-append loop over a log source.
type Pipeline struct {
	source  model.LogSource
	decoder model.Decoder
	store   model.SummaryStore
	cfg     Config
	metrics *Metrics
}

// New assembles a pipeline. A nil metrics set is replaced with an
// unregistered one.
func New(source model.LogSource, decoder model.Decoder, st model.SummaryStore, cfg Config, m *Metrics) *Pipeline {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Pipeline{
		source:  source,
		decoder: decoder,
		store:   st,
		cfg:     cfg.withDefaults(),
		metrics: m,
	}
}

// Run processes every admitted log once and returns run counters. Per-log
// failures are isolated: they are counted and logged, never fatal. The run
// itself fails only on store reset/append errors, listing errors, or
// context cancellation.
func (p *Pipeline) Run(ctx context.Context) (model.RunStats, error) {
	var stats model.RunStats

	if !p.cfg.Resume {
		if err := p.store.Truncate(ctx); err != nil {
			return stats, fmt.Errorf("pipeline: reset summary store: %w", err)
		}
	}
	done := make(map[string]bool)
	ids, err := p.store.Identifiers(ctx)
	if err != nil {
		return stats, fmt.Errorf("pipeline: read ledger: %w", err)
	}
	for _, id := range ids {
		done[id] = true
	}

	refs, err := p.source.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("pipeline: list logs: %w", err)
	}
	pending := refs[:0:0]
	for _, ref := range refs {
		if done[ref.Identifier] {
			stats.SkippedDone++
			p.metrics.LogsSkipped.Inc()
			continue
		}
		pending = append(pending, ref)
	}
	if p.cfg.Prefetch > 0 && len(pending) > p.cfg.Prefetch {
		log.Printf("pipeline: prefetch limit %d truncates %d pending logs", p.cfg.Prefetch, len(pending))
		pending = pending[:p.cfg.Prefetch]
	}
	log.Printf("pipeline: %d logs listed, %d already summarized, %d to process (workers=%d)",
		len(refs), stats.SkippedDone, len(pending), p.cfg.Workers)

	var mu sync.Mutex // guards stats during the run
	jobs := make(chan model.LogRef, queueDepth)
	results := make(chan *model.LogSummary)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, ref := range pending {
			select {
			case jobs <- ref:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for ref := range jobs {
				sum, err := p.processOne(gctx, ref)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					mu.Lock()
					stats.Failed++
					stats.FailedIDs = append(stats.FailedIDs, ref.Identifier)
					mu.Unlock()
					p.metrics.LogsFailed.Inc()
					log.Printf("pipeline: %s: %v", ref.Identifier, err)
					continue
				}
				select {
				case results <- sum:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error {
		for sum := range results {
			if err := p.store.Append(gctx, sum); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					mu.Lock()
					stats.SkippedDone++
					mu.Unlock()
					p.metrics.LogsSkipped.Inc()
					continue
				}
				return fmt.Errorf("pipeline: append summary %s: %w", sum.Identifier, err)
			}
			mu.Lock()
			stats.Processed++
			mu.Unlock()
			p.metrics.LogsProcessed.Inc()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	sort.Strings(stats.FailedIDs)
	log.Printf("pipeline: run complete: %d processed, %d skipped, %d failed",
		stats.Processed, stats.SkippedDone, stats.Failed)
	return stats, nil
}

// processOne runs the fetch-decode-extract chain for a single log,
// retrying transient fetch failures with doubling delays. Corrupt and
// data-quality errors are never retried.
func (p *Pipeline) processOne(ctx context.Context, ref model.LogRef) (*model.LogSummary, error) {
	start := time.Now()
	var m extract.Metrics
	for attempt := 1; ; attempt++ {
		var err error
		m, err = p.extractOnce(ctx, ref)
		if err == nil {
			break
		}
		if errors.Is(err, ulog.ErrCorrupt) || errors.Is(err, extract.ErrDataQuality) {
			return nil, err
		}
		if !logsource.IsTransient(err) || attempt >= p.cfg.MaxAttempts {
			return nil, err
		}
		delay := p.cfg.RetryBase << (attempt - 1)
		p.metrics.FetchRetries.Inc()
		log.Printf("pipeline: %s: attempt %d/%d failed, retrying in %s: %v",
			ref.Identifier, attempt, p.cfg.MaxAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.metrics.ProcessDuration.Observe(time.Since(start).Seconds())

	return &model.LogSummary{
		Identifier:       ref.Identifier,
		VehicleID:        ref.VehicleID,
		DurationTrackedS: m.DurationTrackedS,
		VibrationBinS:    m.VibrationBinS,
		Motors:           m.Motors,
		PeakAccelCount:   m.PeakAccelCount,
		ClipCount:        m.ClipCount,
		ClipDurationS:    m.ClipDurationS,
		ProcessedAt:      time.Now().UTC(),
	}, nil
}

func (p *Pipeline) extractOnce(ctx context.Context, ref model.LogRef) (extract.Metrics, error) {
	rc, err := p.source.Open(ctx, ref.Identifier)
	if err != nil {
		return extract.Metrics{}, fmt.Errorf("fetch: %w", err)
	}
	defer rc.Close()

	ex := extract.New()
	if err := p.decoder.Decode(ctx, rc, ex.Topics(), ex.Observe); err != nil {
		return extract.Metrics{}, fmt.Errorf("decode: %w", err)
	}
	return ex.Finalize()
}
