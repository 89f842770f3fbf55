package watchdog

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

// Broadcaster receives status updates that actually changed.
type Broadcaster interface {
	BroadcastStatus(station string, status models.ScraperStatus)
}

// Watchdog mirrors per-station scraper status and suppresses redundant
// broadcasts: only a changed (status, retry_count) pair, or a station
// seen for the first time, reaches the sink. Timestamp-only heartbeats
// never do.
type Watchdog struct {
	mu       sync.Mutex
	statuses map[string]models.ScraperStatus

	threshold time.Duration
	sink      Broadcaster
	logger    *zap.Logger

	now func() time.Time
}

// New creates a Watchdog with the given staleness threshold for the
// periodic sweep.
func New(threshold time.Duration, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		statuses:  make(map[string]models.ScraperStatus),
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// SetSink wires the broadcast destination. Optional; without a sink the
// watchdog only mirrors state.
func (w *Watchdog) SetSink(b Broadcaster) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sink = b
}

// Load seeds the mirror from the store at startup, without
// broadcasting.
func (w *Watchdog) Load(statuses []models.ScraperStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, st := range statuses {
		w.statuses[st.Station] = st
	}
	w.logger.Info("loaded initial scraper status", zap.Int("stations", len(statuses)))
}

// HandleUpdate stores the update (latest write wins) and notifies the
// sink when the station is new or its (status, retry_count) changed.
func (w *Watchdog) HandleUpdate(st models.ScraperStatus) {
	w.mu.Lock()
	prev, ok := w.statuses[st.Station]
	shouldBroadcast := !ok || prev.Status != st.Status || prev.RetryCount != st.RetryCount
	w.statuses[st.Station] = st
	sink := w.sink
	w.mu.Unlock()

	if !shouldBroadcast {
		return
	}
	if ok {
		w.logger.Info("station status changed",
			zap.String("station", st.Station),
			zap.String("from", prev.Status), zap.String("to", st.Status),
			zap.Int("retry_count", st.RetryCount))
	} else {
		w.logger.Info("new station status",
			zap.String("station", st.Station), zap.String("status", st.Status))
	}
	if sink != nil {
		sink.BroadcastStatus(st.Station, st)
	}
}

// SweepStale demotes healthy stations whose last attempt is older than
// the threshold to suspended. Each synthesized update flows back
// through HandleUpdate and its change detection.
func (w *Watchdog) SweepStale() {
	now := w.now()
	w.mu.Lock()
	var demoted []models.ScraperStatus
	for _, st := range w.statuses {
		if st.Status != models.StatusHealthy || st.LastAttempt == nil {
			continue
		}
		if now.Sub(*st.LastAttempt) > w.threshold {
			copied := st
			copied.Status = models.StatusSuspended
			copied.ErrorMessage = "no recent status update"
			demoted = append(demoted, copied)
		}
	}
	w.mu.Unlock()

	for _, st := range demoted {
		w.logger.Info("station went quiet, marking suspended", zap.String("station", st.Station))
		w.HandleUpdate(st)
	}
}

// Status returns the mirrored record for one station.
func (w *Watchdog) Status(station string) (models.ScraperStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.statuses[station]
	return st, ok
}

// Statuses returns all mirrored records, ordered by station name.
func (w *Watchdog) Statuses() []models.ScraperStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.ScraperStatus, 0, len(w.statuses))
	for _, st := range w.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Station < out[j].Station })
	return out
}

// Rollup computes the aggregate health summary. Error statuses take
// precedence over stale ones; a fully healthy set reads healthy, and
// any other mix reads unknown.
func (w *Watchdog) Rollup() models.ScraperHealth {
	w.mu.Lock()
	defer w.mu.Unlock()

	h := models.ScraperHealth{TotalStations: len(w.statuses)}
	for _, st := range w.statuses {
		switch st.Status {
		case models.StatusHealthy:
			h.HealthyStations++
		case models.StatusError, models.StatusNetworkError, models.StatusParseError:
			h.ErrorStations++
		case models.StatusStaleData:
			h.StaleStations++
		}
	}
	switch {
	case h.ErrorStations > 0:
		h.OverallStatus = "error"
	case h.StaleStations > 0:
		h.OverallStatus = "warning"
	case h.HealthyStations == h.TotalStations:
		h.OverallStatus = models.StatusHealthy
	default:
		h.OverallStatus = models.StatusUnknown
	}
	return h
}
