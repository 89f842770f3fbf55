package scraper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/martinhill/windburglr-sub000/internal/models"
)

// Parser converts a raw upstream payload into an Observation.
type Parser func(raw string) (models.Observation, error)

// NewJSONParser builds a Parser for the shared sensor feed. The feed
// nests one object per station under v2.sensor_data and reports numeric
// fields loosely typed: a number, a numeric string, or one of the
// sentinels handled by the decode functions below.
//
// observation_time is in the feed's timezone using timeFormat
// ("2006-01-02 15:04" unless the station overrides it).
func NewJSONParser(station string, loc *time.Location, timeFormat string) Parser {
	if timeFormat == "" {
		timeFormat = "2006-01-02 15:04"
	}
	if loc == nil {
		loc = time.UTC
	}
	return func(raw string) (models.Observation, error) {
		var payload struct {
			V2 struct {
				SensorData map[string]struct {
					Direction       any    `json:"wind_magnetic_dir_2_mean"`
					Speed           any    `json:"wind_speed_2_mean"`
					Gust            any    `json:"gust_squall_speed"`
					ObservationTime string `json:"observation_time"`
				} `json:"sensor_data"`
			} `json:"v2"`
		}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return models.Observation{}, fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
		}
		sensor, ok := payload.V2.SensorData[station]
		if !ok {
			return models.Observation{}, fmt.Errorf("%w: no sensor data for station %q", models.ErrMalformedPayload, station)
		}

		direction, err := decodeDirection(sensor.Direction)
		if err != nil {
			return models.Observation{}, err
		}
		speed, err := decodeSpeed(sensor.Speed)
		if err != nil {
			return models.Observation{}, err
		}
		gust, err := decodeGust(sensor.Gust)
		if err != nil {
			return models.Observation{}, err
		}

		ts, err := time.ParseInLocation(timeFormat, sensor.ObservationTime, loc)
		if err != nil {
			return models.Observation{}, fmt.Errorf("%w: observation_time %q: %v", models.ErrMalformedPayload, sensor.ObservationTime, err)
		}

		return models.Observation{
			Station:   station,
			Direction: direction,
			Speed:     speed,
			Gust:      gust,
			Timestamp: ts.UTC(),
		}, nil
	}
}

// decodeDirection coerces a loosely-typed direction field.
// "" and "?" and "--" mean absent; "CALM" means 0.
func decodeDirection(v any) (*int, error) {
	f, absent, err := decodeNumeric(v, "direction", false)
	if err != nil || absent {
		return nil, err
	}
	d := int(f)
	return &d, nil
}

// decodeSpeed coerces a loosely-typed speed field. Absent sentinels
// ("", "?", "--") and null all read as zero speed.
func decodeSpeed(v any) (float64, error) {
	f, absent, err := decodeNumeric(v, "speed", true)
	if err != nil || absent {
		return 0, err
	}
	return f, nil
}

// decodeGust coerces a loosely-typed gust field; sentinels mean absent.
func decodeGust(v any) (*float64, error) {
	f, absent, err := decodeNumeric(v, "gust", false)
	if err != nil || absent {
		return nil, err
	}
	return &f, nil
}

// decodeNumeric handles the feed's numeric-or-sentinel fields. The
// sentinel table: ""/"?" absent, "CALM" zero, "--" absent (zero when
// zeroWhenAbsent, i.e. for speed). nil is treated as absent.
func decodeNumeric(v any, field string, zeroWhenAbsent bool) (value float64, absent bool, err error) {
	switch val := v.(type) {
	case nil:
		return 0, !zeroWhenAbsent, nil
	case float64:
		return val, false, nil
	case string:
		switch val {
		case "", "?", "--":
			return 0, !zeroWhenAbsent, nil
		case "CALM":
			return 0, false, nil
		}
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil {
			return 0, false, fmt.Errorf("%w: %s %q", models.ErrMalformedPayload, field, val)
		}
		return f, false, nil
	default:
		return 0, false, fmt.Errorf("%w: %s has unexpected type %T", models.ErrMalformedPayload, field, v)
	}
}
