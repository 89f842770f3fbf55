package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/models"
	"github.com/martinhill/windburglr-sub000/internal/observability"
)

// OutputHandler receives each accepted observation (e.g. the store's
// insert).
type OutputHandler func(ctx context.Context, obs models.Observation) error

// StatusHandler records a station status write (e.g. the store's
// upsert). Implementations own the retry_count/last_success stamping.
type StatusHandler func(ctx context.Context, station, status, errorMessage string) error

// Collector acquires and classifies one station's observations each
// scheduling tick. Fetch failures and parse failures update the
// station status and propagate; duplicates inside the staleness window
// are benign no-ops.
type Collector struct {
	station      string
	staleTimeout time.Duration
	fetch        Fetcher
	parse        Parser
	output       OutputHandler
	status       StatusHandler
	tracker      *FreshnessTracker
	retry        RetryPolicy
	logger       *zap.Logger

	now func() time.Time
}

// CollectorConfig carries the per-station wiring for NewCollector.
type CollectorConfig struct {
	Station      string
	StaleTimeout time.Duration
	Fetch        Fetcher
	Parse        Parser
	Output       OutputHandler
	Status       StatusHandler
	Tracker      *FreshnessTracker
	Retry        RetryPolicy
}

func NewCollector(cfg CollectorConfig, logger *zap.Logger) *Collector {
	return &Collector{
		station:      cfg.Station,
		staleTimeout: cfg.StaleTimeout,
		fetch:        cfg.Fetch,
		parse:        cfg.Parse,
		output:       cfg.Output,
		status:       cfg.Status,
		tracker:      cfg.Tracker,
		retry:        cfg.Retry,
		logger:       logger.With(zap.String("station", cfg.Station)),
		now:          time.Now,
	}
}

// Station returns the collector's station name.
func (c *Collector) Station() string { return c.station }

// FetchAndProcess runs one acquisition cycle: fetch with retry, parse,
// classify freshness, and write the matching status. Errors other than
// benign duplicates are returned to the scheduler after the status
// write.
func (c *Collector) FetchAndProcess(ctx context.Context) error {
	start := c.now()

	raw, err := c.retry.Execute(ctx, c.fetch)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.reportFailure(ctx, err)
		return err
	}

	obs, err := c.parse(raw)
	if err != nil {
		c.reportFailure(ctx, err)
		return err
	}
	observability.ScrapeDuration.WithLabelValues(c.station).Observe(c.now().Sub(start).Seconds())

	if c.tracker.IsNew(obs) {
		c.tracker.Accept(obs)
		c.logger.Debug("emitting new observation", zap.Time("timestamp", obs.Timestamp))
		if err := c.output(ctx, obs); err != nil {
			if errors.Is(err, models.ErrDuplicateObservation) {
				// Another writer got there first. Expected, not an error.
				c.logger.Info("duplicate observation", zap.Error(err))
			} else {
				c.reportFailure(ctx, err)
				return err
			}
		}
		observability.ObservationsTotal.WithLabelValues(c.station, "new").Inc()
		c.writeStatus(ctx, models.StatusHealthy, "")
		return nil
	}

	last, _ := c.tracker.LastAccepted(c.station)
	elapsed := c.now().Sub(last)
	if elapsed >= c.staleTimeout {
		observability.ObservationsTotal.WithLabelValues(c.station, "stale").Inc()
		msg := fmt.Sprintf("stale data: timestamp=%s, elapsed=%.1fs",
			obs.Timestamp.Format(time.RFC3339), elapsed.Seconds())
		c.writeStatus(ctx, models.StatusStaleData, msg)
		return fmt.Errorf("%w: station=%s timestamp=%s, elapsed=%.1fs",
			models.ErrStaleObservation, c.station, obs.Timestamp.Format(time.RFC3339), elapsed.Seconds())
	}

	observability.ObservationsTotal.WithLabelValues(c.station, "duplicate").Inc()
	c.logger.Debug("duplicate observation within staleness window",
		zap.Duration("elapsed", elapsed), zap.Duration("timeout", c.staleTimeout))
	return nil
}

func (c *Collector) reportFailure(ctx context.Context, err error) {
	status := classifyStatus(err)
	observability.ScrapeErrorsTotal.WithLabelValues(c.station, status).Inc()
	c.writeStatus(ctx, status, err.Error())
}

// writeStatus is best-effort: a failing status write must never break
// the acquisition path.
func (c *Collector) writeStatus(ctx context.Context, status, errorMessage string) {
	if c.status == nil {
		return
	}
	if err := c.status(ctx, c.station, status, errorMessage); err != nil {
		c.logger.Error("status write failed", zap.String("status", status), zap.Error(err))
	}
}
