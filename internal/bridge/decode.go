package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

// Timestamp layouts seen in notification payloads. The store's triggers
// serialize timestamps without a zone; all values are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

func parseEventTime(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", models.ErrMalformedPayload, s)
}

type windEvent struct {
	Station    string   `json:"station_name"`
	UpdateTime string   `json:"update_time"`
	Direction  *int     `json:"direction"`
	SpeedKts   *float64 `json:"speed_kts"`
	GustKts    *float64 `json:"gust_kts"`
}

// DecodeWindEvent parses an observation-insert notification into the
// station name and a cache point.
func DecodeWindEvent(payload string) (string, models.WindPoint, error) {
	var ev windEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return "", models.WindPoint{}, fmt.Errorf("%w: %w", models.ErrMalformedPayload, err)
	}
	if ev.Station == "" {
		return "", models.WindPoint{}, fmt.Errorf("%w: missing station_name", models.ErrMalformedPayload)
	}
	ts, err := parseEventTime(ev.UpdateTime)
	if err != nil {
		return "", models.WindPoint{}, err
	}

	obs := models.Observation{
		Station:   ev.Station,
		Direction: ev.Direction,
		Gust:      ev.GustKts,
		Timestamp: ts,
	}
	if ev.SpeedKts != nil {
		obs.Speed = *ev.SpeedKts
	}
	return ev.Station, models.PointFromObservation(obs), nil
}

type statusEvent struct {
	Station      string  `json:"station_name"`
	Status       string  `json:"status"`
	LastSuccess  *string `json:"last_success"`
	LastAttempt  *string `json:"last_attempt"`
	ErrorMessage string  `json:"error_message"`
	RetryCount   int     `json:"retry_count"`
}

// DecodeStatusEvent parses a status-change notification. The relative
// time_since fields are derived here from the absolute timestamps and
// now, so payloads only carry absolutes.
func DecodeStatusEvent(payload string, now time.Time) (models.ScraperStatus, error) {
	var ev statusEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return models.ScraperStatus{}, fmt.Errorf("%w: %w", models.ErrMalformedPayload, err)
	}
	if ev.Station == "" {
		return models.ScraperStatus{}, fmt.Errorf("%w: missing station_name", models.ErrMalformedPayload)
	}
	if ev.Status == "" {
		return models.ScraperStatus{}, fmt.Errorf("%w: missing status", models.ErrMalformedPayload)
	}

	st := models.ScraperStatus{
		Station:      ev.Station,
		Status:       ev.Status,
		ErrorMessage: ev.ErrorMessage,
		RetryCount:   ev.RetryCount,
	}
	if ev.LastSuccess != nil {
		t, err := parseEventTime(*ev.LastSuccess)
		if err != nil {
			return models.ScraperStatus{}, err
		}
		st.LastSuccess = &t
		since := now.Sub(t).Seconds()
		st.TimeSinceLastSuccess = &since
	}
	if ev.LastAttempt != nil {
		t, err := parseEventTime(*ev.LastAttempt)
		if err != nil {
			return models.ScraperStatus{}, err
		}
		st.LastAttempt = &t
		since := now.Sub(t).Seconds()
		st.TimeSinceLastAttempt = &since
	}
	return st, nil
}
