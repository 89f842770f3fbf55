package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/hub"
	"github.com/martinhill/windburglr-sub000/internal/service"
)

// WSHandler upgrades /ws/{station} connections and keeps them fed by
// the hub.
type WSHandler struct {
	hub         *hub.Hub
	wind        *service.WindService
	idleTimeout time.Duration
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

func NewWSHandler(h *hub.Hub, wind *service.WindService, idleTimeout time.Duration, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:         h,
		wind:        wind,
		idleTimeout: idleTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWS handles GET /ws/{station}. The client receives the latest
// observation immediately, then live updates as they arrive.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	station := mux.Vars(r)["station"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.hub.Connect(station, conn)
	defer h.hub.Disconnect(sub)

	latest, err := h.wind.Latest(r.Context(), station)
	if err != nil {
		h.logger.Warn("initial observation lookup failed",
			zap.String("station", station), zap.Error(err))
	} else if latest != nil {
		if err := sub.Send(marshalEnvelope("wind", latest)); err != nil {
			return
		}
	}

	h.readLoop(conn, sub)
}

// readLoop services client keepalives until the connection errors out.
// Every client message gets a pong. A client quiet for the idle
// timeout gets an unsolicited ping; any received message resets that
// timer. The read deadline sits at twice the idle timeout, so a pinged
// client has a full idle window to answer before it is dropped.
func (h *WSHandler) readLoop(conn *websocket.Conn, sub *hub.Subscriber) {
	stop := make(chan struct{})
	activity := make(chan struct{}, 1)
	defer close(stop)

	go func() {
		timer := time.NewTimer(h.idleTimeout)
		defer timer.Stop()
		for {
			select {
			case <-stop:
				return
			case <-activity:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case <-timer.C:
				if err := sub.Send(marshalEnvelope("ping", nil)); err != nil {
					return
				}
			}
			timer.Reset(h.idleTimeout)
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * h.idleTimeout))
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		select {
		case activity <- struct{}{}:
		default:
		}
		if err := sub.Send(marshalEnvelope("pong", nil)); err != nil {
			return
		}
	}
}

func marshalEnvelope(msgType string, data any) []byte {
	env := map[string]any{"type": msgType}
	if data != nil {
		env["data"] = data
	}
	payload, _ := json.Marshal(env)
	return payload
}
