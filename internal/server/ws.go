package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielpatrickdp/focus-monitor/internal/metrics"
)

const wsWriteWait = 5 * time.Second

// wsHandler streams a store snapshot on connect and again whenever the store
// version changes.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.streams.Add(1)
	defer s.streams.Done()
	defer conn.Close()

	metrics.WebsocketClients.Inc()
	defer metrics.WebsocketClients.Dec()

	// Reader: drains control frames and notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()

	var sent uint64
	first := true
	for {
		if v := s.deps.Store.Version(); first || v != sent {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(s.deps.Store.Read()); err != nil {
				s.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
			sent, first = v, false
		}
		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-s.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			conn.Close()
			<-gone
			return
		}
	}
}
