package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/seekerlabs/seekerd/internal/security"
)

// handleEvents upgrades to a WebSocket and streams orchestrator events
// (decisions, responses, feedback, state changes) until the client
// disconnects.
//
// Auth uses a ?token= query param because browsers cannot set headers on
// WebSocket upgrades. Skipped in dev mode (nil secret).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.jwtSecret != nil {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		if _, err := security.ValidateToken(tokenStr, s.jwtSecret); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // accept any Origin for dev convenience
	})
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream ended")

	events, cancel := s.orch.Subscribe()
	defer cancel()

	// CloseRead reads and discards client frames, returning a context that
	// cancels when the connection drops.
	ctx := conn.CloseRead(r.Context())

	s.logger.Info("event stream connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("event stream closed", "remote", r.RemoteAddr)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}
