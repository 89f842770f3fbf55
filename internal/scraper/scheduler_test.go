package scraper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

func countingCollector(station string, calls *atomic.Int32, fetchErr error) *Collector {
	rec := &statusRecorder{}
	return NewCollector(CollectorConfig{
		Station:      station,
		StaleTimeout: 300 * time.Second,
		Fetch: func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "raw", fetchErr
		},
		Parse: func(raw string) (models.Observation, error) {
			return models.Observation{Station: station, Speed: 1, Timestamp: time.Now()}, nil
		},
		Output:  func(ctx context.Context, obs models.Observation) error { return nil },
		Status:  rec.handler(),
		Tracker: NewFreshnessTracker(),
		Retry:   RetryPolicy{MaxRetries: 0, Delay: 0},
	}, zap.NewNop())
}

// TestScheduler_RunsAllCollectorsEachTick verifies concurrent fan-out:
// every collector runs at least once per tick and a failing collector
// does not block its siblings.
func TestScheduler_RunsAllCollectorsEachTick(t *testing.T) {
	var aCalls, bCalls atomic.Int32
	a := countingCollector("A", &aCalls, nil)
	b := countingCollector("B", &bCalls, errors.New("connection refused"))

	s := NewScheduler([]*Collector{a, b}, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}

	if aCalls.Load() < 2 {
		t.Errorf("collector A ran %d times, want at least 2", aCalls.Load())
	}
	if bCalls.Load() < 2 {
		t.Errorf("failing collector B ran %d times, want at least 2", bCalls.Load())
	}
}

// TestScheduler_StopsOnCancel verifies the loop exits promptly on
// context cancellation.
func TestScheduler_StopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	c := countingCollector("A", &calls, nil)
	s := NewScheduler([]*Collector{c}, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
