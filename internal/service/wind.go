package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/cache"
	"github.com/martinhill/windburglr-sub000/internal/models"
	"github.com/martinhill/windburglr-sub000/internal/observability"
)

// StoreReader is the store surface the wind service queries on cache
// misses.
type StoreReader interface {
	WindRange(ctx context.Context, station string, start, end time.Time) ([]models.WindPoint, error)
	LatestObservation(ctx context.Context, station string) (*models.WindPoint, error)
}

// WindService answers time-range queries cache-first, falling back to
// the store and merging the result back into the cache.
type WindService struct {
	cache  *cache.TimeRangeCache
	store  StoreReader
	logger *zap.Logger
}

func NewWindService(c *cache.TimeRangeCache, store StoreReader, logger *zap.Logger) *WindService {
	return &WindService{cache: c, store: store, logger: logger}
}

// Query returns the station's observations in [start, end], inclusive,
// and whether the range was served from memory. An uncovered range
// reads through to the store and repopulates the cache.
func (s *WindService) Query(ctx context.Context, station string, start, end time.Time) ([]models.WindPoint, bool, error) {
	if s.cache.Hit(station, start) {
		observability.CacheHitsTotal.Inc()
		s.logger.Debug("wind query served from cache",
			zap.String("station", station),
			zap.Time("start", start), zap.Time("end", end))
		return s.cache.Get(station, start, end), true, nil
	}
	observability.CacheMissesTotal.Inc()

	points, err := s.store.WindRange(ctx, station, start, end)
	if err != nil {
		return nil, false, err
	}
	s.cache.Merge(station, start, end, points)
	s.logger.Debug("wind query served from store",
		zap.String("station", station), zap.Int("points", len(points)))
	return points, false, nil
}

// Latest returns the most recent observation for the station, or nil
// when none exists.
func (s *WindService) Latest(ctx context.Context, station string) (*models.WindPoint, error) {
	return s.store.LatestObservation(ctx, station)
}
