package cache

import (
	"testing"
	"time"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

func point(ts int64, speed float64) models.WindPoint {
	return models.WindPoint{Time: ts, Speed: speed}
}

func timestamps(points []models.WindPoint) []int64 {
	out := make([]int64, len(points))
	for i, p := range points {
		out[i] = p.Time
	}
	return out
}

// TestHit_CoversStartBoundOnly verifies coverage against the cached
// [oldest, newest] range: a start inside the range hits, a start before
// the oldest entry misses.
func TestHit_CoversStartBoundOnly(t *testing.T) {
	c := New(48 * time.Hour)
	c.now = func() time.Time { return time.Unix(400, 0) }
	c.Merge("X", time.Unix(100, 0), time.Unix(300, 0), []models.WindPoint{
		point(100, 5), point(200, 6), point(300, 7),
	})

	if !c.Hit("X", time.Unix(150, 0)) {
		t.Error("Hit(X, 150) = false, want true")
	}
	if c.Hit("X", time.Unix(50, 0)) {
		t.Error("Hit(X, 50) = true, want false for start before oldest")
	}
	if c.Hit("Y", time.Unix(150, 0)) {
		t.Error("Hit(Y, 150) = true, want false for unknown station")
	}
}

// TestHit_MarkStale verifies that a stale-flagged station misses until
// the next successful merge clears the flag.
func TestHit_MarkStale(t *testing.T) {
	c := New(48 * time.Hour)
	c.now = func() time.Time { return time.Unix(400, 0) }
	c.Merge("X", time.Unix(100, 0), time.Unix(300, 0), []models.WindPoint{
		point(100, 5), point(200, 6), point(300, 7),
	})

	c.MarkStale("X")
	if c.Hit("X", time.Unix(150, 0)) {
		t.Error("Hit() = true after MarkStale, want false")
	}

	c.Merge("X", time.Unix(100, 0), time.Unix(300, 0), []models.WindPoint{
		point(100, 5), point(200, 6), point(300, 7),
	})
	if !c.Hit("X", time.Unix(150, 0)) {
		t.Error("Hit() = false after merge cleared stale flag, want true")
	}
}

// TestGet_InclusiveRange verifies that Get returns exactly the ascending
// slice of points with start <= ts <= end.
func TestGet_InclusiveRange(t *testing.T) {
	c := New(48 * time.Hour)
	c.now = func() time.Time { return time.Unix(500, 0) }
	for _, ts := range []int64{100, 200, 300, 400} {
		c.Append("X", point(ts, float64(ts)))
	}

	got := c.Get("X", time.Unix(200, 0), time.Unix(300, 0))
	if len(got) != 2 || got[0].Time != 200 || got[1].Time != 300 {
		t.Errorf("Get(200, 300) timestamps = %v, want [200 300]", timestamps(got))
	}

	if got := c.Get("X", time.Unix(401, 0), time.Unix(500, 0)); len(got) != 0 {
		t.Errorf("Get(401, 500) = %v, want empty", timestamps(got))
	}
	if got := c.Get("missing", time.Unix(0, 0), time.Unix(500, 0)); len(got) != 0 {
		t.Errorf("Get(missing) = %v, want empty", timestamps(got))
	}
}

// TestMerge_Idempotent verifies that merging identical (start, end, data)
// twice produces the same cache content as merging once.
func TestMerge_Idempotent(t *testing.T) {
	c := New(48 * time.Hour)
	c.now = func() time.Time { return time.Unix(400, 0) }
	data := []models.WindPoint{point(100, 5), point(200, 6), point(300, 7)}

	c.Merge("X", time.Unix(100, 0), time.Unix(300, 0), data)
	once := c.Get("X", time.Unix(0, 0), time.Unix(400, 0))
	c.Merge("X", time.Unix(100, 0), time.Unix(300, 0), data)
	twice := c.Get("X", time.Unix(0, 0), time.Unix(400, 0))

	if len(once) != len(twice) {
		t.Fatalf("merge twice changed entry count: %d != %d", len(twice), len(once))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("entry %d differs after second merge: %+v != %+v", i, twice[i], once[i])
		}
	}
}

// TestMerge_LastWriteWins verifies that duplicate timestamps resolve to
// the later-encountered value.
func TestMerge_LastWriteWins(t *testing.T) {
	c := New(48 * time.Hour)
	c.now = func() time.Time { return time.Unix(400, 0) }
	c.Append("X", models.WindPoint{Time: 200, Speed: 6})

	c.Merge("X", time.Unix(100, 0), time.Unix(300, 0), []models.WindPoint{
		{Time: 200, Speed: 9}, // correction for the appended point
		{Time: 300, Speed: 7},
	})

	got := c.Get("X", time.Unix(200, 0), time.Unix(200, 0))
	if len(got) != 1 {
		t.Fatalf("Get(200, 200) returned %d points, want 1", len(got))
	}
	if got[0].Speed != 9 {
		t.Errorf("duplicate timestamp resolved to speed %g, want 9 (last write wins)", got[0].Speed)
	}
}

// TestMerge_StaleDiscardsPriorSeries verifies that a merge into a
// stale-flagged station drops the previous data instead of combining.
func TestMerge_StaleDiscardsPriorSeries(t *testing.T) {
	c := New(48 * time.Hour)
	c.now = func() time.Time { return time.Unix(600, 0) }
	c.Append("X", point(100, 5))
	c.MarkStale("X")

	c.Merge("X", time.Unix(300, 0), time.Unix(500, 0), []models.WindPoint{
		point(300, 8), point(400, 9),
	})

	got := c.Get("X", time.Unix(0, 0), time.Unix(600, 0))
	if len(got) != 2 || got[0].Time != 300 {
		t.Errorf("stale merge kept prior data: timestamps = %v, want [300 400]", timestamps(got))
	}
}

// TestMerge_EndBeforeOldestIsNoop verifies that a merge entirely before
// the cached range changes nothing.
func TestMerge_EndBeforeOldestIsNoop(t *testing.T) {
	c := New(48 * time.Hour)
	c.now = func() time.Time { return time.Unix(600, 0) }
	c.Append("X", point(400, 5))

	c.Merge("X", time.Unix(100, 0), time.Unix(200, 0), []models.WindPoint{point(150, 3)})

	got := c.Get("X", time.Unix(0, 0), time.Unix(600, 0))
	if len(got) != 1 || got[0].Time != 400 {
		t.Errorf("merge before oldest changed series: timestamps = %v, want [400]", timestamps(got))
	}
}

// TestMerge_EmptyResultRemovesStation verifies that a merge yielding no
// points removes the station entirely.
func TestMerge_EmptyResultRemovesStation(t *testing.T) {
	c := New(48 * time.Hour)
	c.now = func() time.Time { return time.Unix(600, 0) }
	c.Append("X", point(400, 5))
	c.MarkStale("X")

	c.Merge("X", time.Unix(300, 0), time.Unix(500, 0), nil)

	if c.StationCount() != 0 {
		t.Errorf("StationCount() = %d after empty merge, want 0", c.StationCount())
	}
}

// TestPrune_DropsAgedEntries verifies that no point older than
// now - retention survives a prune, and that oldest advances.
func TestPrune_DropsAgedEntries(t *testing.T) {
	c := New(100 * time.Second)
	c.now = func() time.Time { return time.Unix(150, 0) }
	c.Append("X", point(10, 1))
	c.Append("X", point(40, 2))
	c.now = func() time.Time { return time.Unix(200, 0) }

	c.Append("X", point(120, 3))

	got := c.Get("X", time.Unix(0, 0), time.Unix(300, 0))
	cutoff := int64(100) // now - retention
	for _, p := range got {
		if p.Time < cutoff {
			t.Errorf("pruned series retains aged point at %d (cutoff %d)", p.Time, cutoff)
		}
	}
	if len(got) != 1 || got[0].Time != 120 {
		t.Errorf("surviving timestamps = %v, want [120]", timestamps(got))
	}
}

// TestPrune_EmptiedStationRemoved verifies that pruning a fully-aged
// series removes the station's entry.
func TestPrune_EmptiedStationRemoved(t *testing.T) {
	c := New(100 * time.Second)
	c.now = func() time.Time { return time.Unix(150, 0) }
	c.Append("X", point(10, 1))
	c.now = func() time.Time { return time.Unix(1000, 0) }

	c.Prune("X")

	if c.StationCount() != 0 {
		t.Errorf("StationCount() = %d after pruning all data, want 0", c.StationCount())
	}
}

// TestSnapshot verifies hit/miss counters, entry totals and the stale
// station list in the statistics snapshot.
func TestSnapshot(t *testing.T) {
	c := New(48 * time.Hour)
	c.now = func() time.Time { return time.Unix(500, 0) }
	c.Append("X", point(100, 5))
	c.Append("X", point(200, 6))
	c.Append("Y", point(300, 7))

	c.Hit("X", time.Unix(150, 0)) // hit
	c.Hit("X", time.Unix(50, 0))  // miss
	c.MarkStale("Y")

	st := c.Snapshot()
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Snapshot() hits/misses = %d/%d, want 1/1", st.Hits, st.Misses)
	}
	if st.TotalEntries != 3 || st.Stations != 2 {
		t.Errorf("Snapshot() entries/stations = %d/%d, want 3/2", st.TotalEntries, st.Stations)
	}
	if len(st.StaleStations) != 1 || st.StaleStations[0] != "Y" {
		t.Errorf("Snapshot() stale stations = %v, want [Y]", st.StaleStations)
	}
	if st.OldestEntry == nil || st.OldestEntry.Unix() != 100 {
		t.Errorf("Snapshot() oldest = %v, want 100", st.OldestEntry)
	}
}

// TestMarkAllStale verifies that every cached station is flagged.
func TestMarkAllStale(t *testing.T) {
	c := New(48 * time.Hour)
	c.now = func() time.Time { return time.Unix(500, 0) }
	c.Append("X", point(100, 5))
	c.Append("Y", point(200, 6))

	c.MarkAllStale()

	if c.Hit("X", time.Unix(100, 0)) || c.Hit("Y", time.Unix(200, 0)) {
		t.Error("Hit() = true after MarkAllStale, want false for all stations")
	}
}
