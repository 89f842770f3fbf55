package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

// TimeRangeCache holds per-station wind observations as ascending
// series and answers time-range queries without touching the store
// when the cached coverage is sufficient.
//
// A station's series is always sorted ascending by timestamp with no
// duplicate timestamps once a merge completes. A station flagged stale
// misses on every coverage check and discards its prior series on the
// next merge, so a gap introduced while the process was suspended can
// never be served silently.
type TimeRangeCache struct {
	mu        sync.RWMutex
	series    map[string][]models.WindPoint
	oldest    map[string]int64 // unix seconds
	stale     map[string]bool
	retention time.Duration
	hits      int
	misses    int

	now func() time.Time
}

// Stats is a read-only snapshot for health reporting.
type Stats struct {
	Hits          int        `json:"cache_hit_count"`
	Misses        int        `json:"cache_miss_count"`
	HitRatio      float64    `json:"cache_hit_ratio"`
	Stations      int        `json:"stations_cached"`
	TotalEntries  int        `json:"total_cached_entries"`
	StaleStations []string   `json:"stale_stations,omitempty"`
	OldestEntry   *time.Time `json:"oldest_cache_entry,omitempty"`
}

// New creates a TimeRangeCache that keeps observations no older than
// the retention window.
func New(retention time.Duration) *TimeRangeCache {
	return &TimeRangeCache{
		series:    make(map[string][]models.WindPoint),
		oldest:    make(map[string]int64),
		stale:     make(map[string]bool),
		retention: retention,
		now:       time.Now,
	}
}

// Hit reports whether the cached series for station covers a query
// starting at start, and records the outcome in the hit/miss counters.
// Only the start bound is validated against the cached range: a query
// end past the newest entry still counts as a hit and returns a
// truncated result, matching the reference behavior.
func (c *TimeRangeCache) Hit(station string, start time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	hit := c.coveredLocked(station, start)
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	return hit
}

func (c *TimeRangeCache) coveredLocked(station string, start time.Time) bool {
	if c.stale[station] {
		return false
	}
	data := c.series[station]
	if len(data) == 0 {
		return false
	}
	startTS := start.UTC().Unix()
	oldest, ok := c.oldest[station]
	if !ok || startTS < oldest {
		return false
	}
	newest := data[len(data)-1].Time
	return oldest <= startTS && startTS <= newest
}

// Get returns the cached points for station with start <= ts <= end,
// ascending. Empty when the station is absent.
func (c *TimeRangeCache) Get(station string, start, end time.Time) []models.WindPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data := c.series[station]
	if len(data) == 0 {
		return nil
	}
	startTS := start.UTC().Unix()
	endTS := end.UTC().Unix()
	lo := sort.Search(len(data), func(i int) bool { return data[i].Time >= startTS })
	hi := sort.Search(len(data), func(i int) bool { return data[i].Time > endTS })
	if lo >= hi {
		return nil
	}
	out := make([]models.WindPoint, hi-lo)
	copy(out, data[lo:hi])
	return out
}

// Append adds a single live observation to the station's series and
// prunes anything past retention.
func (c *TimeRangeCache) Append(station string, p models.WindPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.series[station]; !ok {
		c.oldest[station] = p.Time
	}
	c.series[station] = append(c.series[station], p)
	if p.Time < c.oldest[station] {
		c.oldest[station] = p.Time
	}
	c.pruneLocked(station)
}

// Merge folds store-fetched points for [start, end] into the station's
// series. Duplicate timestamps resolve last-write-wins; a stale flag on
// the station discards the prior series rather than risking an
// undetected hole, and is cleared on completion.
func (c *TimeRangeCache) Merge(station string, start, end time.Time, points []models.WindPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if oldest, ok := c.oldest[station]; ok && end.UTC().Unix() < oldest {
		// Nothing newer than what we already have; nothing to add.
		return
	}

	incoming := make([]models.WindPoint, len(points))
	copy(incoming, points)
	sort.SliceStable(incoming, func(i, j int) bool { return incoming[i].Time < incoming[j].Time })

	var base []models.WindPoint
	if !c.stale[station] {
		base = c.series[station]
	}

	combined := make([]models.WindPoint, 0, len(base)+len(incoming))
	combined = append(combined, base...)
	combined = append(combined, incoming...)
	sort.SliceStable(combined, func(i, j int) bool { return combined[i].Time < combined[j].Time })

	// Deduplicate by timestamp scanning in reverse so the
	// later-encountered value wins.
	seen := make(map[int64]struct{}, len(combined))
	deduped := make([]models.WindPoint, 0, len(combined))
	for i := len(combined) - 1; i >= 0; i-- {
		if _, ok := seen[combined[i].Time]; ok {
			continue
		}
		seen[combined[i].Time] = struct{}{}
		deduped = append(deduped, combined[i])
	}
	for i, j := 0, len(deduped)-1; i < j; i, j = i+1, j-1 {
		deduped[i], deduped[j] = deduped[j], deduped[i]
	}

	if len(deduped) == 0 {
		c.removeLocked(station)
		return
	}

	c.series[station] = deduped
	startTS := start.UTC().Unix()
	oldest := deduped[0].Time
	if startTS < oldest {
		oldest = startTS
	}
	c.oldest[station] = oldest
	delete(c.stale, station)
	c.pruneLocked(station)
}

// MarkStale flags a single station so the next coverage check misses
// and the next merge discards its prior data.
func (c *TimeRangeCache) MarkStale(station string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.series[station]; ok {
		c.stale[station] = true
	}
}

// MarkAllStale flags every cached station. Used after a detected
// wall-clock gap such as process suspension.
func (c *TimeRangeCache) MarkAllStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for station := range c.series {
		c.stale[station] = true
	}
}

// Prune drops entries older than the retention window for one station.
func (c *TimeRangeCache) Prune(station string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(station)
}

func (c *TimeRangeCache) pruneLocked(station string) {
	data := c.series[station]
	if len(data) == 0 {
		return
	}
	cutoff := c.now().Add(-c.retention).UTC().Unix()
	keep := sort.Search(len(data), func(i int) bool { return data[i].Time >= cutoff })
	if keep == 0 {
		return
	}
	data = data[keep:]
	if len(data) == 0 {
		c.removeLocked(station)
		return
	}
	c.series[station] = data
	c.oldest[station] = data[0].Time
}

func (c *TimeRangeCache) removeLocked(station string) {
	delete(c.series, station)
	delete(c.oldest, station)
	delete(c.stale, station)
}

// Snapshot returns current cache statistics.
func (c *TimeRangeCache) Snapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Stations: len(c.series),
	}
	for _, data := range c.series {
		st.TotalEntries += len(data)
	}
	for station, flagged := range c.stale {
		if flagged {
			st.StaleStations = append(st.StaleStations, station)
		}
	}
	sort.Strings(st.StaleStations)
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRatio = float64(st.Hits) / float64(total)
	}
	var oldest int64
	for _, ts := range c.oldest {
		if oldest == 0 || ts < oldest {
			oldest = ts
		}
	}
	if oldest != 0 {
		t := time.Unix(oldest, 0).UTC()
		st.OldestEntry = &t
	}
	return st
}

// EntryCount reports total cached observations. Backs a metrics gauge.
func (c *TimeRangeCache) EntryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, data := range c.series {
		n += len(data)
	}
	return n
}

// StationCount reports stations with cached observations.
func (c *TimeRangeCache) StationCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.series)
}

// OldestEntry reports the oldest cached observation time across all
// stations, and false when the cache is empty.
func (c *TimeRangeCache) OldestEntry() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var oldest int64
	for _, ts := range c.oldest {
		if oldest == 0 || ts < oldest {
			oldest = ts
		}
	}
	if oldest == 0 {
		return time.Time{}, false
	}
	return time.Unix(oldest, 0).UTC(), true
}
