package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/cache"
	"github.com/martinhill/windburglr-sub000/internal/models"
	"github.com/martinhill/windburglr-sub000/internal/service"
	"github.com/martinhill/windburglr-sub000/internal/watchdog"
)

// Query timestamps on the wind endpoint are zone-less UTC.
const queryTimeLayout = "2006-01-02T15:04:05"

// HealthStore is the store surface the health and scraper endpoints use.
type HealthStore interface {
	Ping(ctx context.Context) error
	ScraperHealth(ctx context.Context) (models.ScraperHealth, error)
	StationTimezone(ctx context.Context, station string) (string, error)
}

// ListenerHealth reports whether the notification bridge is connected.
type ListenerHealth interface {
	Healthy() bool
}

// SubscriberCounter reports live websocket subscriber totals.
type SubscriberCounter interface {
	Total() int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	wind           *service.WindService
	watchdog       *watchdog.Watchdog
	store          HealthStore
	listener       ListenerHealth
	subscribers    SubscriberCounter
	cache          *cache.TimeRangeCache
	defaultStation string
	logger         *zap.Logger
}

// NewHandler returns a new Handler.
func NewHandler(
	wind *service.WindService,
	wd *watchdog.Watchdog,
	store HealthStore,
	listener ListenerHealth,
	subscribers SubscriberCounter,
	c *cache.TimeRangeCache,
	defaultStation string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		wind:           wind,
		watchdog:       wd,
		store:          store,
		listener:       listener,
		subscribers:    subscribers,
		cache:          c,
		defaultStation: defaultStation,
		logger:         logger,
	}
}

// GetWind handles GET /api/wind. Accepts either an explicit
// from_time/to_time pair or a relative hours lookback; defaults to the
// last 24 hours.
func (h *Handler) GetWind(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	station := strings.TrimSpace(q.Get("stn"))
	if station == "" {
		station = h.defaultStation
	}

	start, end, err := resolveTimeRange(q.Get("from_time"), q.Get("to_time"), q.Get("hours"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_TIME_RANGE", err.Error())
		return
	}

	points, covered, err := h.wind.Query(r.Context(), station, start, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	tz, err := h.store.StationTimezone(r.Context(), station)
	if err != nil {
		h.logger.Debug("station timezone lookup failed",
			zap.String("station", station), zap.Error(err))
		tz = "UTC"
	}

	if points == nil {
		points = []models.WindPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"station":    station,
		"winddata":   points,
		"timezone":   tz,
		"start_time": start.Format(queryTimeLayout),
		"end_time":   end.Format(queryTimeLayout),
		"cache_hit":  covered,
	})
}

// resolveTimeRange picks the query window: explicit bounds win, then a
// relative lookback, then the 24 hour default.
func resolveTimeRange(fromRaw, toRaw, hoursRaw string) (time.Time, time.Time, error) {
	if fromRaw != "" && toRaw != "" {
		start, err := time.Parse(queryTimeLayout, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := time.Parse(queryTimeLayout, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start.UTC(), end.UTC(), nil
	}

	hours := 24
	if hoursRaw != "" {
		n, err := strconv.Atoi(hoursRaw)
		if err != nil || n <= 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("hours must be a positive integer")
		}
		hours = n
	}
	now := time.Now().UTC()
	return now.Add(-time.Duration(hours) * time.Hour), now, nil
}

// GetScraperStatus handles GET /api/scraper-status. Served from the
// watchdog's in-memory mirror, not the store.
func (h *Handler) GetScraperStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.watchdog.Statuses())
}

// GetScraperHealth handles GET /api/scraper-health.
func (h *Handler) GetScraperHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.store.ScraperHealth(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// GetHealth handles GET /health. Unhealthy when the store or the
// notification listener is down.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	database := "connected"
	if err := h.store.Ping(r.Context()); err != nil {
		database = "error: " + err.Error()
	}
	resp["database"] = database

	listenerHealthy := h.listener.Healthy()
	if listenerHealthy {
		resp["postgresql_listener"] = "healthy"
	} else {
		resp["postgresql_listener"] = "unhealthy"
	}

	if h.subscribers.Total() > 0 {
		resp["websocket"] = "active"
	} else {
		resp["websocket"] = "no_connections"
	}

	resp["cache"] = h.cache.Snapshot()

	status := http.StatusOK
	if database == "connected" && listenerHealthy {
		resp["status"] = "healthy"
	} else {
		resp["status"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response with code, message, and the
// request's correlation ID when available.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 503 for store failures, logging the
// underlying error at DEBUG.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Unable to read wind data")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("store error", zap.Error(err))
	}
}
