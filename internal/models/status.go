package models

import "time"

// Scraper status values as written to the store and mirrored by the
// watchdog.
const (
	StatusHealthy      = "healthy"
	StatusError        = "error"
	StatusNetworkError = "network_error"
	StatusParseError   = "parse_error"
	StatusStaleData    = "stale_data"
	StatusStopped      = "stopped"
	StatusSuspended    = "suspended"
	StatusUnknown      = "unknown"
)

// ScraperStatus is the per-station health record. RetryCount increments
// on consecutive non-healthy writes and resets on a healthy write; both
// transitions happen in the store's upsert.
type ScraperStatus struct {
	Station              string     `json:"station_name"`
	Status               string     `json:"status"`
	LastSuccess          *time.Time `json:"last_success,omitempty"`
	LastAttempt          *time.Time `json:"last_attempt,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	RetryCount           int        `json:"retry_count"`
	TimeSinceLastAttempt *float64   `json:"time_since_last_attempt,omitempty"` // seconds
	TimeSinceLastSuccess *float64   `json:"time_since_last_success,omitempty"` // seconds
}

// ScraperHealth is the aggregate rollup across all stations.
type ScraperHealth struct {
	TotalStations   int    `json:"total_stations"`
	HealthyStations int    `json:"healthy_stations"`
	ErrorStations   int    `json:"error_stations"`
	StaleStations   int    `json:"stale_stations"`
	OverallStatus   string `json:"overall_status"`
}
