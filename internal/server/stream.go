package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/visvasity/topic"
)

// handleStream upgrades to a WebSocket and pushes the newest store snapshot
// whenever it changes. A slow browser skips intermediate snapshots.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	receiver, err := s.feed.Reader().Subscribe(1)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "feed closed")
		return
	}
	defer receiver.Close()

	updates, err := topic.ReceiveCh(receiver)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "feed closed")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if s.presence != nil {
		release := s.presence.Acquire()
		defer release()
	}

	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Debug("stream client connected")
	defer logger.Debug("stream client disconnected")

	// Browsers only send control frames; reading drives the close handshake.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(s.cfg.WriteTimeout),
				)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteJSON(s.view(snap)); err != nil {
				logger.Debug("stream write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}
