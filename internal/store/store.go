package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

// Store is the relational backing for observations and scraper status.
// The schema and its functions (update_scraper_status, get_scraper_status,
// get_scraper_health, get_wind_data_by_station_range,
// get_latest_wind_observation) and the NOTIFY triggers are the
// database's contract; the Store only calls them.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects a pgx pool and verifies it with a ping.
func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureStation upserts the station row, keeping its timezone current.
func (s *Store) EnsureStation(ctx context.Context, name, timezone string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO station (name, timezone)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET timezone = EXCLUDED.timezone`,
		name, timezone)
	if err != nil {
		return fmt.Errorf("store: ensure station %s: %w", name, err)
	}
	return nil
}

// InsertObservation writes one observation. A conflict on
// (station, timestamp) surfaces as models.ErrDuplicateObservation.
func (s *Store) InsertObservation(ctx context.Context, obs models.Observation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wind_obs (station_id, direction, speed_kts, gust_kts, update_time)
		VALUES ((SELECT id FROM station WHERE name = $1), $2, $3, $4, $5)`,
		obs.Station, obs.Direction, obs.Speed, obs.Gust, obs.Timestamp.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", models.ErrDuplicateObservation, obs)
		}
		return fmt.Errorf("store: insert observation: %w", err)
	}
	return nil
}

// UpdateScraperStatus upserts a station's status. The database function
// stamps last_attempt on every call, last_success only on healthy
// calls, and owns the retry_count increment/reset.
func (s *Store) UpdateScraperStatus(ctx context.Context, station, status, errorMessage string) error {
	var msg *string
	if errorMessage != "" {
		msg = &errorMessage
	}
	_, err := s.pool.Exec(ctx, "SELECT update_scraper_status($1, $2, $3)", station, status, msg)
	if err != nil {
		return fmt.Errorf("store: update scraper status for %s: %w", station, err)
	}
	return nil
}

// ScraperStatuses returns the current per-station status records.
func (s *Store) ScraperStatuses(ctx context.Context) ([]models.ScraperStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			station_name,
			status,
			last_success,
			last_attempt,
			error_message,
			retry_count,
			EXTRACT(EPOCH FROM time_since_last_attempt)::float8,
			EXTRACT(EPOCH FROM time_since_last_success)::float8
		FROM get_scraper_status()`)
	if err != nil {
		return nil, fmt.Errorf("store: query scraper status: %w", err)
	}
	defer rows.Close()

	var statuses []models.ScraperStatus
	for rows.Next() {
		var st models.ScraperStatus
		var errMsg *string
		if err := rows.Scan(&st.Station, &st.Status, &st.LastSuccess, &st.LastAttempt,
			&errMsg, &st.RetryCount, &st.TimeSinceLastAttempt, &st.TimeSinceLastSuccess); err != nil {
			return nil, fmt.Errorf("store: scan scraper status: %w", err)
		}
		if errMsg != nil {
			st.ErrorMessage = *errMsg
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// ScraperHealth returns the aggregate rollup computed by the database.
func (s *Store) ScraperHealth(ctx context.Context) (models.ScraperHealth, error) {
	var h models.ScraperHealth
	err := s.pool.QueryRow(ctx, `
		SELECT total_stations, healthy_stations, error_stations, stale_stations, overall_status
		FROM get_scraper_health()`).
		Scan(&h.TotalStations, &h.HealthyStations, &h.ErrorStations, &h.StaleStations, &h.OverallStatus)
	if err != nil {
		return models.ScraperHealth{}, fmt.Errorf("store: query scraper health: %w", err)
	}
	return h, nil
}

// WindRange returns the station's observations with
// start <= update_time <= end, ascending.
func (s *Store) WindRange(ctx context.Context, station string, start, end time.Time) ([]models.WindPoint, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT update_time, direction, speed_kts, gust_kts FROM get_wind_data_by_station_range($1, $2, $3)",
		station, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: query wind range: %w", err)
	}
	defer rows.Close()

	var points []models.WindPoint
	for rows.Next() {
		var ts time.Time
		var p models.WindPoint
		if err := rows.Scan(&ts, &p.Direction, &p.Speed, &p.Gust); err != nil {
			return nil, fmt.Errorf("store: scan wind point: %w", err)
		}
		p.Time = ts.UTC().Unix()
		points = append(points, p)
	}
	return points, rows.Err()
}

// LatestObservation returns the station's most recent observation, or
// nil when the station has none.
func (s *Store) LatestObservation(ctx context.Context, station string) (*models.WindPoint, error) {
	var ts time.Time
	var p models.WindPoint
	err := s.pool.QueryRow(ctx,
		"SELECT update_time, direction, speed_kts, gust_kts FROM get_latest_wind_observation($1)", station).
		Scan(&ts, &p.Direction, &p.Speed, &p.Gust)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query latest observation: %w", err)
	}
	p.Time = ts.UTC().Unix()
	return &p, nil
}

// StationTimezone returns the station's configured timezone name, or
// empty when the station is unknown.
func (s *Store) StationTimezone(ctx context.Context, station string) (string, error) {
	var tz string
	err := s.pool.QueryRow(ctx, "SELECT timezone FROM station WHERE name = $1", station).Scan(&tz)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: query station timezone: %w", err)
	}
	return tz, nil
}
