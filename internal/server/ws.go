package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/studio"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// SessionEventsHandler streams a session's change events over WebSocket.
type SessionEventsHandler struct {
	studio *studio.Studio
	log    logrus.FieldLogger
}

// NewSessionEventsHandler creates a new SessionEventsHandler.
func NewSessionEventsHandler(st *studio.Studio, log logrus.FieldLogger) *SessionEventsHandler {
	return &SessionEventsHandler{
		studio: st,
		log:    log.WithField("component", "ws"),
	}
}

// ServeHTTP handles WebSocket upgrade requests. The first message is the
// current session state, then one message per event.
func (h *SessionEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := h.studio.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade error")
		return
	}
	defer conn.Close()

	events, cancel := sess.Subscribe()
	defer cancel()

	state := sess.State()
	if err := h.send(conn, studio.Event{Type: studio.EventMesh, Generation: state.Generation, State: &state}); err != nil {
		return
	}

	// Keep connection alive by reading messages
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := h.send(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *SessionEventsHandler) send(conn *websocket.Conn, ev studio.Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}
