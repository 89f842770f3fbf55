package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

type statusWrite struct {
	status, message string
}

type statusRecorder struct {
	writes []statusWrite
}

func (r *statusRecorder) handler() StatusHandler {
	return func(ctx context.Context, station, status, errorMessage string) error {
		r.writes = append(r.writes, statusWrite{status, errorMessage})
		return nil
	}
}

func staticObs(obs models.Observation) Parser {
	return func(raw string) (models.Observation, error) { return obs, nil }
}

func fetchOK(ctx context.Context) (string, error) { return "raw", nil }

func newTestCollector(t *testing.T, parse Parser, output OutputHandler, rec *statusRecorder) *Collector {
	t.Helper()
	if output == nil {
		output = func(ctx context.Context, obs models.Observation) error { return nil }
	}
	return NewCollector(CollectorConfig{
		Station:      "X",
		StaleTimeout: 300 * time.Second,
		Fetch:        fetchOK,
		Parse:        parse,
		Output:       output,
		Status:       rec.handler(),
		Tracker:      NewFreshnessTracker(),
		Retry:        RetryPolicy{MaxRetries: 2, Delay: 0},
	}, zap.NewNop())
}

// TestCollector_StaleScenario runs the duplicate/stale classification
// scenario: accept a baseline at t=0, re-see the same observation at
// 30s (benign no-op) and again at 310s (stale_data status and error).
func TestCollector_StaleScenario(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	obs := models.Observation{Station: "X", Speed: 10, Timestamp: base}
	rec := &statusRecorder{}
	c := newTestCollector(t, staticObs(obs), nil, rec)

	c.now = func() time.Time { return base }
	if err := c.FetchAndProcess(ctx); err != nil {
		t.Fatalf("baseline FetchAndProcess() error = %v", err)
	}
	if len(rec.writes) != 1 || rec.writes[0].status != models.StatusHealthy {
		t.Fatalf("baseline status writes = %+v, want one healthy write", rec.writes)
	}

	// Same observation 30s later: inside the staleness window, no-op.
	c.now = func() time.Time { return base.Add(30 * time.Second) }
	if err := c.FetchAndProcess(ctx); err != nil {
		t.Fatalf("duplicate FetchAndProcess() error = %v", err)
	}
	if len(rec.writes) != 1 {
		t.Fatalf("benign duplicate wrote a status: %+v", rec.writes)
	}

	// Same observation 310s later: past the timeout, stale.
	c.now = func() time.Time { return base.Add(310 * time.Second) }
	err := c.FetchAndProcess(ctx)
	if !errors.Is(err, models.ErrStaleObservation) {
		t.Fatalf("stale FetchAndProcess() error = %v, want ErrStaleObservation", err)
	}
	if len(rec.writes) != 2 || rec.writes[1].status != models.StatusStaleData {
		t.Fatalf("stale status writes = %+v, want stale_data appended", rec.writes)
	}
	if rec.writes[1].message == "" {
		t.Error("stale_data status written without a descriptive message")
	}
}

// TestCollector_HealthyWriteOnNewObservation verifies a fresh
// observation is emitted downstream and a healthy status is written
// with an empty error message.
func TestCollector_HealthyWriteOnNewObservation(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	obs := models.Observation{Station: "X", Speed: 10, Timestamp: base}
	rec := &statusRecorder{}
	var emitted []models.Observation
	output := func(ctx context.Context, o models.Observation) error {
		emitted = append(emitted, o)
		return nil
	}
	c := newTestCollector(t, staticObs(obs), output, rec)
	c.now = func() time.Time { return base }

	if err := c.FetchAndProcess(ctx); err != nil {
		t.Fatalf("FetchAndProcess() error = %v", err)
	}
	if len(emitted) != 1 || !emitted[0].Timestamp.Equal(base) {
		t.Errorf("emitted = %+v, want the parsed observation", emitted)
	}
	if len(rec.writes) != 1 || rec.writes[0] != (statusWrite{models.StatusHealthy, ""}) {
		t.Errorf("status writes = %+v, want one healthy write with empty message", rec.writes)
	}
}

// TestCollector_DuplicateInsertNotEscalated verifies a duplicate-write
// conflict from the output handler is logged and the status still goes
// healthy.
func TestCollector_DuplicateInsertNotEscalated(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	obs := models.Observation{Station: "X", Speed: 10, Timestamp: base}
	rec := &statusRecorder{}
	output := func(ctx context.Context, o models.Observation) error {
		return fmt.Errorf("%w: %s", models.ErrDuplicateObservation, o)
	}
	c := newTestCollector(t, staticObs(obs), output, rec)
	c.now = func() time.Time { return base }

	if err := c.FetchAndProcess(ctx); err != nil {
		t.Fatalf("FetchAndProcess() error = %v, want nil for duplicate insert", err)
	}
	if len(rec.writes) != 1 || rec.writes[0].status != models.StatusHealthy {
		t.Errorf("status writes = %+v, want healthy", rec.writes)
	}
}

// TestCollector_ParseFailureWritesParseError verifies parse failures
// write parse_error and propagate.
func TestCollector_ParseFailureWritesParseError(t *testing.T) {
	ctx := context.Background()
	rec := &statusRecorder{}
	parse := func(raw string) (models.Observation, error) {
		return models.Observation{}, fmt.Errorf("%w: bad timestamp", models.ErrMalformedPayload)
	}
	c := newTestCollector(t, parse, nil, rec)

	err := c.FetchAndProcess(ctx)
	if !errors.Is(err, models.ErrMalformedPayload) {
		t.Fatalf("FetchAndProcess() error = %v, want ErrMalformedPayload", err)
	}
	if len(rec.writes) != 1 || rec.writes[0].status != models.StatusParseError {
		t.Errorf("status writes = %+v, want parse_error", rec.writes)
	}
}

// TestCollector_FetchFailureWritesNetworkError verifies that retry
// exhaustion on a transport failure writes network_error and
// propagates the wrapped budget error.
func TestCollector_FetchFailureWritesNetworkError(t *testing.T) {
	ctx := context.Background()
	rec := &statusRecorder{}
	c := newTestCollector(t, staticObs(models.Observation{}), nil, rec)
	c.fetch = func(ctx context.Context) (string, error) {
		return "", errors.New("dial tcp: connection refused")
	}

	err := c.FetchAndProcess(ctx)
	if !errors.Is(err, models.ErrMaxRetriesExceeded) {
		t.Fatalf("FetchAndProcess() error = %v, want ErrMaxRetriesExceeded", err)
	}
	if len(rec.writes) != 1 || rec.writes[0].status != models.StatusNetworkError {
		t.Errorf("status writes = %+v, want network_error", rec.writes)
	}
}
