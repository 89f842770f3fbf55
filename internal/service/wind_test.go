package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/cache"
	"github.com/martinhill/windburglr-sub000/internal/models"
)

type fakeStore struct {
	points     []models.WindPoint
	latest     *models.WindPoint
	err        error
	rangeCalls int
}

func (f *fakeStore) WindRange(ctx context.Context, station string, start, end time.Time) ([]models.WindPoint, error) {
	f.rangeCalls++
	return f.points, f.err
}

func (f *fakeStore) LatestObservation(ctx context.Context, station string) (*models.WindPoint, error) {
	return f.latest, f.err
}

func point(ts time.Time, speed float64) models.WindPoint {
	return models.WindPoint{Time: ts.Unix(), Speed: speed}
}

// TestQuery_MissThenHit verifies the read-through path: the first query
// hits the store and populates the cache, the second is served from
// memory without another store call.
func TestQuery_MissThenHit(t *testing.T) {
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	store := &fakeStore{points: []models.WindPoint{
		point(base.Add(time.Minute), 10),
		point(base.Add(2*time.Minute), 12),
	}}
	svc := NewWindService(cache.New(24*time.Hour), store, zap.NewNop())

	start, end := base, base.Add(5*time.Minute)
	first, hit, err := svc.Query(context.Background(), "CYTZ", start, end)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if hit {
		t.Fatal("first query should miss")
	}
	if len(first) != 2 || store.rangeCalls != 1 {
		t.Fatalf("expected store read with 2 points, got %d points %d calls", len(first), store.rangeCalls)
	}

	second, hit, err := svc.Query(context.Background(), "CYTZ", start, end)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !hit {
		t.Fatal("second query should hit")
	}
	if store.rangeCalls != 1 {
		t.Fatalf("second query hit the store (%d calls)", store.rangeCalls)
	}
	if len(second) != 2 || second[0].Speed != 10 || second[1].Speed != 12 {
		t.Fatalf("cached result mismatch: %+v", second)
	}
}

// TestQuery_StoreErrorPropagates verifies that store failures surface
// without poisoning the cache.
func TestQuery_StoreErrorPropagates(t *testing.T) {
	store := &fakeStore{err: errors.New("pool exhausted")}
	svc := NewWindService(cache.New(24*time.Hour), store, zap.NewNop())

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	if _, _, err := svc.Query(context.Background(), "CYTZ", base, base.Add(time.Hour)); err == nil {
		t.Fatal("expected error")
	}

	// Failure must not have established coverage.
	store.err = nil
	store.points = nil
	if _, _, err := svc.Query(context.Background(), "CYTZ", base, base.Add(time.Hour)); err != nil {
		t.Fatalf("query: %v", err)
	}
	if store.rangeCalls != 2 {
		t.Fatalf("expected a second store read, got %d calls", store.rangeCalls)
	}
}

// TestLatest_PassesThrough verifies Latest always reads the store.
func TestLatest_PassesThrough(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	latest := point(base, 8)
	store := &fakeStore{latest: &latest}
	svc := NewWindService(cache.New(24*time.Hour), store, zap.NewNop())

	got, err := svc.Latest(context.Background(), "CYTZ")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got == nil || got.Speed != 8 {
		t.Fatalf("unexpected latest: %+v", got)
	}
}
