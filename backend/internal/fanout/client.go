package fanout

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings to peer with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
	// Inbound frames are control-only; anything larger is a misbehaving peer
	maxMessageSize = 512
	// Outbound buffer per connection; a peer that falls this far behind is dropped
	sendBufferSize = 16
)

// Client is one live websocket connection, bound to an account at handshake
type Client struct {
	connID    string
	accountID string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the HTTP layer in front
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request to a websocket, binds it to the acting account
// and registers it with the hub. Returns the connection id so callers can
// exclude the originating connection from their own fan-out.
func ServeWS(hub *Hub, c *gin.Context, accountID string) (string, error) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return "", err
	}

	client := &Client{
		connID:    uuid.NewString(),
		accountID: accountID,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}

	hub.Register(client)
	go client.writePump()
	go client.readPump()

	return client.connID, nil
}

// readPump discards inbound frames and tears the client down when the
// connection dies. The event channel is one-way; there is no ack protocol.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Websocket read failed",
					zap.String("account_id", c.accountID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

// writePump drains the send channel to the connection and keeps it alive
// with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub dropped this client
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
