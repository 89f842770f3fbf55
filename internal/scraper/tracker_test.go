package scraper

import (
	"testing"
	"time"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

func obsAt(station string, ts time.Time) models.Observation {
	return models.Observation{Station: station, Speed: 10, Timestamp: ts}
}

// TestFreshnessTracker_FirstObservationIsNew verifies that a station
// with no baseline accepts any timestamp.
func TestFreshnessTracker_FirstObservationIsNew(t *testing.T) {
	tr := NewFreshnessTracker()
	obs := obsAt("CYTZ", time.Unix(1000, 0))
	if !tr.IsNew(obs) {
		t.Error("IsNew() = false for first observation, want true")
	}
}

// TestFreshnessTracker_Monotonic verifies that once an observation is
// accepted, no observation with an equal or earlier timestamp is ever
// again considered new for that station.
func TestFreshnessTracker_Monotonic(t *testing.T) {
	tr := NewFreshnessTracker()
	base := time.Unix(1000, 0)
	tr.Accept(obsAt("CYTZ", base))

	if tr.IsNew(obsAt("CYTZ", base)) {
		t.Error("IsNew() = true for equal timestamp, want false")
	}
	if tr.IsNew(obsAt("CYTZ", base.Add(-time.Minute))) {
		t.Error("IsNew() = true for earlier timestamp, want false")
	}
	if !tr.IsNew(obsAt("CYTZ", base.Add(time.Second))) {
		t.Error("IsNew() = false for strictly newer timestamp, want true")
	}
}

// TestFreshnessTracker_StationsIndependent verifies per-station
// baselines do not interfere.
func TestFreshnessTracker_StationsIndependent(t *testing.T) {
	tr := NewFreshnessTracker()
	tr.Accept(obsAt("CYTZ", time.Unix(2000, 0)))

	if !tr.IsNew(obsAt("CYYZ", time.Unix(1000, 0))) {
		t.Error("IsNew() = false for different station's first observation, want true")
	}

	last, ok := tr.LastAccepted("CYTZ")
	if !ok || !last.Equal(time.Unix(2000, 0)) {
		t.Errorf("LastAccepted(CYTZ) = %v, %v; want 2000, true", last, ok)
	}
	if _, ok := tr.LastAccepted("CYYZ"); ok {
		t.Error("LastAccepted(CYYZ) ok = true, want false before any accept")
	}
}
