package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/arenalink/arena-core/internal/auth"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
)

// handleWebSocket upgrades a player connection.
//
// Browsers cannot set headers on WebSocket upgrades, so the access token
// travels as a query parameter and is verified before the upgrade. The
// verified subject and name become the connection's fixed identity.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		writeUnauthorized(w, "missing token")
		return
	}

	claims, err := auth.ParseToken(tokenString, s.secCfg.JWT.Secret)
	if err != nil {
		writeUnauthorized(w, "invalid token")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		// Token auth already gates the upgrade; origins are not restricted
		// because player clients are native apps, not browsers.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := s.hub.NewClient(conn, claims.Subject, claims.Name)
	s.session.Attach(client)
	s.hub.Register(client)
	client.Start(s.wsCfg)

	s.logger.Info("websocket connected",
		"conn_id", client.ConnID,
		"user_id", client.UserID,
		"clients", s.hub.ClientCount(),
	)
}
