package scraper

import (
	"sync"
	"time"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

// FreshnessTracker records the last accepted observation time per
// station. The first observation for a station always counts as new;
// after that only strictly newer timestamps do.
type FreshnessTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewFreshnessTracker() *FreshnessTracker {
	return &FreshnessTracker{last: make(map[string]time.Time)}
}

// IsNew reports whether obs is fresher than the station's baseline.
func (t *FreshnessTracker) IsNew(obs models.Observation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[obs.Station]
	return !ok || last.Before(obs.Timestamp)
}

// Accept records obs.Timestamp as the station's new baseline.
func (t *FreshnessTracker) Accept(obs models.Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[obs.Station] = obs.Timestamp
}

// LastAccepted returns the station's baseline, and false when no
// observation has been accepted yet.
func (t *FreshnessTracker) LastAccepted(station string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[station]
	return last, ok
}
