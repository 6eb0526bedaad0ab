package server

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn abstracts one peer connection so the hub can be tested without
// a network.
type Conn interface {
	// Read reads a single message. It honours the deadline of ctx.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single message.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// wsConn adapts a gorilla websocket connection to Conn.
type wsConn struct {
	conn *websocket.Conn
	typ  int
}

func newWSConn(conn *websocket.Conn, messageType int) *wsConn {
	return &wsConn{conn: conn, typ: messageType}
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(dl)
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	dl, ok := ctx.Deadline()
	if !ok {
		dl = time.Time{}
	}
	_ = c.conn.SetWriteDeadline(dl)
	return c.conn.WriteMessage(c.typ, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
