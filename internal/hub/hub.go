package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/models"
	"github.com/martinhill/windburglr-sub000/internal/observability"
)

// Conn is the write side of a websocket connection. Satisfied by
// *websocket.Conn from gorilla.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// textMessage matches websocket.TextMessage; duplicated here so the hub
// stays decoupled from gorilla in tests.
const textMessage = 1

// Subscriber is one connected client pinned to a single station. Writes
// are serialized through its own mutex because gorilla connections do
// not tolerate concurrent writers.
type Subscriber struct {
	ID      string
	Station string

	mu   sync.Mutex
	conn Conn
}

// Send writes a text frame to the client.
func (s *Subscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(textMessage, data)
}

// Hub fans notifications out to subscribers grouped by station.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*Subscriber // station -> id -> subscriber
	logger *zap.Logger
}

func New(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[string]*Subscriber),
		logger: logger,
	}
}

// Connect registers a connection for the station and returns its
// subscriber handle.
func (h *Hub) Connect(station string, conn Conn) *Subscriber {
	sub := &Subscriber{ID: uuid.NewString(), Station: station, conn: conn}

	h.mu.Lock()
	set, ok := h.subs[station]
	if !ok {
		set = make(map[string]*Subscriber)
		h.subs[station] = set
	}
	set[sub.ID] = sub
	h.mu.Unlock()

	observability.WebsocketConnections.Inc()
	h.logger.Info("websocket subscribed",
		zap.String("station", station), zap.String("subscriber", sub.ID))
	return sub
}

// Disconnect removes the subscriber and closes its connection. Safe to
// call more than once for the same subscriber.
func (h *Hub) Disconnect(sub *Subscriber) {
	h.mu.Lock()
	set, ok := h.subs[sub.Station]
	if ok {
		if _, present := set[sub.ID]; !present {
			ok = false
		}
		delete(set, sub.ID)
		if len(set) == 0 {
			delete(h.subs, sub.Station)
		}
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = sub.conn.Close()
	observability.WebsocketConnections.Dec()
	h.logger.Info("websocket unsubscribed",
		zap.String("station", sub.Station), zap.String("subscriber", sub.ID))
}

// Broadcast sends an envelope of the given type to every subscriber of
// the station. Subscribers whose send fails are evicted.
func (h *Hub) Broadcast(station, msgType string, data any) {
	payload, err := json.Marshal(map[string]any{"type": msgType, "data": data})
	if err != nil {
		h.logger.Error("broadcast marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs[station]))
	for _, sub := range h.subs[station] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	observability.BroadcastsTotal.WithLabelValues(msgType).Inc()

	for _, sub := range targets {
		if err := sub.Send(payload); err != nil {
			observability.BroadcastSendFailuresTotal.Inc()
			h.logger.Warn("dropping unresponsive subscriber",
				zap.String("station", station),
				zap.String("subscriber", sub.ID), zap.Error(err))
			h.Disconnect(sub)
		}
	}
}

// BroadcastStatus routes watchdog status updates to the station's
// subscribers.
func (h *Hub) BroadcastStatus(station string, st models.ScraperStatus) {
	h.Broadcast(station, "status_update", st)
}

// Connections reports the subscriber count for one station.
func (h *Hub) Connections(station string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[station])
}

// Total reports the subscriber count across all stations.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
