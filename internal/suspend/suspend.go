package suspend

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Detector notices wall-clock jumps caused by host sleep. A tick that
// arrives much later than scheduled means the process was frozen;
// registered callbacks then get a chance to refresh connections and
// invalidate state built on the assumption of continuous time.
type Detector struct {
	checkInterval time.Duration
	threshold     time.Duration
	onResume      []func(gap time.Duration)
	logger        *zap.Logger

	now func() time.Time
}

func NewDetector(checkInterval, threshold time.Duration, logger *zap.Logger) *Detector {
	return &Detector{
		checkInterval: checkInterval,
		threshold:     threshold,
		logger:        logger,
		now:           time.Now,
	}
}

// OnResume registers a callback invoked with the observed gap after a
// suspension. Register all callbacks before calling Run.
func (d *Detector) OnResume(fn func(gap time.Duration)) {
	d.onResume = append(d.onResume, fn)
}

// Run ticks until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.checkInterval)
	defer ticker.Stop()

	last := d.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := d.now()
			gap := now.Sub(last)
			last = now
			if gap > d.checkInterval+d.threshold {
				d.logger.Warn("wall clock jump detected, assuming host suspend",
					zap.Duration("gap", gap))
				for _, fn := range d.onResume {
					fn(gap)
				}
			}
		}
	}
}
