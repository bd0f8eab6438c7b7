package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 2 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients authenticate with the API key; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStatusWS handles GET /api/status/ws. The latest status message is
// sent on connect, then every new one as it is published.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	msgs, cancel := s.hub.Subscribe()
	defer cancel()
	log := s.log.With().Str("rid", getRequestID(r.Context())).Logger()
	log.Debug().Msg("status client connected")

	// The reader notices the client going away; incoming messages are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if latest := s.hub.Latest(); latest.Text != "" {
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := ws.WriteJSON(latest); err != nil {
			return
		}
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			log.Debug().Msg("status client disconnected")
			return
		case m := <-msgs:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteJSON(m); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
