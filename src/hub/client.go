package hub

import (
	"context"
	"time"

	"github.com/orchestra-mcp/listsync/src/types"
)

// Client pumps frames between a WebSocket connection and its session.
type Client struct {
	session      *Session
	conn         types.Conn
	hub          *Hub
	pingInterval time.Duration
	writeTimeout time.Duration
}

// NewClient wraps conn for a registered session.
func NewClient(s *Session, conn types.Conn, h *Hub, pingInterval, writeTimeout time.Duration) *Client {
	return &Client{
		session:      s,
		conn:         conn,
		hub:          h,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
	}
}

// Session returns the client's session.
func (c *Client) Session() *Session { return c.session }

// ReadPump reads commands until the connection fails, then deregisters
// the session.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Deregister(c.session.ID)
		c.conn.Close()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != types.TextMessage {
			continue
		}
		c.hub.HandleCommand(ctx, c.session, data)
	}
}

// WritePump writes queued payloads to the connection and pings it while
// idle.
func (c *Client) WritePump() {
	var tick <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case payload, ok := <-c.session.Outbound():
			if !ok {
				return
			}
			if err := c.write(types.TextMessage, payload); err != nil {
				return
			}
		case <-tick:
			if err := c.write(types.PingMessage, nil); err != nil {
				return
			}
		case <-c.session.Done():
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(messageType, data)
}
