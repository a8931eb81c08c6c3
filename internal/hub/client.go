package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/arenalink/arena-core/internal/infrastructure/config"
)

// MessageHandler is invoked for every inbound frame from a client.
// Handlers run on the client's read goroutine; they must not block on the
// same client's send queue (queueing via trySend never blocks).
type MessageHandler func(c *Client, data []byte)

// CloseHandler is invoked once when a client's read pump exits.
type CloseHandler func(c *Client)

// Client is one WebSocket connection and its outbound queue.
//
// All writes to the connection go through the write pump, serialised by
// the send channel. Identity fields are fixed at upgrade time from the
// verified access token.
type Client struct {
	ConnID string
	UserID string
	Name   string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	onMessage MessageHandler
	onClose   CloseHandler
}

// NewClient wraps an upgraded connection. The caller must Register the
// client and then call Start to launch the pumps.
func (h *Hub) NewClient(conn *websocket.Conn, userID, name string) *Client {
	return &Client{
		ConnID: uuid.NewString(),
		UserID: userID,
		Name:   name,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
	}
}

// OnMessage sets the inbound frame handler. Must be set before Start.
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// OnClose sets the close handler. Must be set before Start.
func (c *Client) OnClose(handler CloseHandler) {
	c.onClose = handler
}

// Start launches the read and write pumps.
func (c *Client) Start(cfg config.WebSocketConfig) {
	go c.writePump(cfg)
	go c.readPump(cfg)
}

// readPump reads frames from the connection until it fails or closes.
// It owns connection teardown: unregister, close, and the close handler
// all run exactly once from here.
func (c *Client) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "conn_id", c.ConnID, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "conn_id", c.ConnID, "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection
		// alive even if the client doesn't answer protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		if c.onMessage != nil {
			c.onMessage(c, message)
		}
	}
}

// writePump writes queued frames and periodic pings to the connection.
func (c *Client) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues data without blocking. Returns false when the queue is
// full or already closed (client is being torn down).
func (c *Client) trySend(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false // send on closed channel
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}
