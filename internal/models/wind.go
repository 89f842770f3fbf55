package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Observation is a single wind reading for a station. Identity is
// (Station, Timestamp); the store enforces uniqueness on that pair.
// Direction and Gust are nil when the upstream feed reports them as
// absent (calm or unknown).
type Observation struct {
	Station   string
	Direction *int    // degrees, 0-359
	Speed     float64 // knots
	Gust      *float64
	Timestamp time.Time // UTC
}

func (o Observation) String() string {
	dir := "unknown deg"
	if o.Direction != nil {
		dir = fmt.Sprintf("%d deg", *o.Direction)
	}
	speed := fmt.Sprintf("%g", o.Speed)
	if o.Gust != nil {
		speed = fmt.Sprintf("%g-%g", o.Speed, *o.Gust)
	}
	return fmt.Sprintf("%s at %s: %s, %s kts", o.Station, o.Timestamp.Format(time.RFC3339), dir, speed)
}

// WindPoint is one reading in wire form. It marshals as the compact
// array [unix_seconds, direction, speed_kts, gust_kts] used by the
// wind data API and the cache.
type WindPoint struct {
	Time      int64
	Direction *int
	Speed     float64
	Gust      *float64
}

func (p WindPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]any{p.Time, p.Direction, p.Speed, p.Gust})
}

// PointFromObservation converts an Observation to its wire form.
func PointFromObservation(obs Observation) WindPoint {
	return WindPoint{
		Time:      obs.Timestamp.UTC().Unix(),
		Direction: obs.Direction,
		Speed:     obs.Speed,
		Gust:      obs.Gust,
	}
}
