package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// pushInterval is how often the system snapshot is streamed to
// connected dashboard clients.
const pushInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The server binds loopback only; origin checks add nothing there
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket streams the system snapshot until the client
// disconnects. Each connection is independent; a slow client only
// stalls itself.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Debug("WebSocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	// Send an immediate snapshot so clients render without waiting a tick
	if err := conn.WriteJSON(s.svc.GetSystemHealth()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(s.svc.GetSystemHealth()); err != nil {
				s.logger.Debug("WebSocket client dropped", zap.Error(err))
				return
			}
		}
	}
}
