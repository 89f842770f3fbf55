package scraper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

// Scheduler runs every collector concurrently each tick and gathers
// the results together with a minimum tick duration. One collector's
// failure never blocks its siblings: domain errors log at WARN,
// anything unexpected at ERROR, and the loop continues either way.
type Scheduler struct {
	collectors []*Collector
	interval   time.Duration
	logger     *zap.Logger
}

func NewScheduler(collectors []*Collector, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{collectors: collectors, interval: interval, logger: logger}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		zap.Int("collectors", len(s.collectors)), zap.Duration("interval", s.interval))
	for {
		tick := time.After(s.interval)

		var wg sync.WaitGroup
		for _, c := range s.collectors {
			wg.Add(1)
			go func(c *Collector) {
				defer wg.Done()
				if err := c.FetchAndProcess(ctx); err != nil && ctx.Err() == nil {
					if models.IsDomainError(err) {
						s.logger.Warn("collector failed", zap.String("station", c.Station()), zap.Error(err))
					} else {
						s.logger.Error("collector failed unexpectedly", zap.String("station", c.Station()), zap.Error(err))
					}
				}
			}(c)
		}
		wg.Wait()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
}
