package suspend

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestDetector_FiresOnClockJump verifies that a simulated wall-clock
// jump larger than the threshold invokes the resume callbacks.
func TestDetector_FiresOnClockJump(t *testing.T) {
	d := NewDetector(10*time.Millisecond, 50*time.Millisecond, zap.NewNop())

	// First call seeds last; subsequent ticks observe a 10 minute jump.
	base := time.Now()
	var calls atomic.Int32
	d.now = func() time.Time {
		if calls.Add(1) == 1 {
			return base
		}
		return base.Add(10 * time.Minute)
	}

	var fired atomic.Int32
	var gotGap atomic.Int64
	d.OnResume(func(gap time.Duration) {
		fired.Add(1)
		gotGap.Store(int64(gap))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if fired.Load() == 0 {
		t.Fatal("expected resume callback after clock jump")
	}
	if time.Duration(gotGap.Load()) < 10*time.Minute {
		t.Fatalf("gap = %v, want at least 10m", time.Duration(gotGap.Load()))
	}
}

// TestDetector_QuietUnderNormalTicking verifies no callbacks fire when
// ticks arrive on schedule.
func TestDetector_QuietUnderNormalTicking(t *testing.T) {
	d := NewDetector(10*time.Millisecond, 50*time.Millisecond, zap.NewNop())

	var fired atomic.Int32
	d.OnResume(func(gap time.Duration) { fired.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if fired.Load() != 0 {
		t.Fatalf("expected no callbacks, got %d", fired.Load())
	}
}
