// Package ws implements the per-connection WebSocket transport worker: the
// handshake state machine, the receive loop, the single-writer path and the
// graceful close.
package ws

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// frameConn frames payloads over an upgraded client connection.
// Data frames from the writer and control-frame replies issued by the
// reader are written under one lock so frames never interleave on the wire.
type frameConn struct {
	conn   net.Conn
	reader io.Reader
	mu     sync.Mutex
}

// newFrameConn wraps conn. reader carries any bytes buffered past the
// handshake response and may be nil.
func newFrameConn(conn net.Conn, reader io.Reader) *frameConn {
	if reader == nil {
		reader = conn
	}
	return &frameConn{conn: conn, reader: reader}
}

// ReadMessage returns the next text or binary payload. Ping and close
// frames are answered inline; a close frame ends with wsutil.ClosedError.
func (fc *frameConn) ReadMessage() ([]byte, error) {
	control := fc.lockedControlHandler()
	rd := wsutil.Reader{
		Source:         fc.reader,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: control,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, &rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(&rd)
	}
}

func (fc *frameConn) lockedControlHandler() wsutil.FrameHandlerFunc {
	handler := wsutil.ControlFrameHandler(fc.conn, ws.StateClientSide)
	return func(hdr ws.Header, r io.Reader) error {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return handler(hdr, r)
	}
}

// WriteMessage sends data as one masked binary frame.
func (fc *frameConn) WriteMessage(data []byte) (int, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if err := wsutil.WriteClientMessage(fc.conn, ws.OpBinary, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// WriteClose sends a normal-closure close frame.
func (fc *frameConn) WriteClose() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	return wsutil.WriteClientMessage(fc.conn, ws.OpClose, body)
}

func (fc *frameConn) SetReadDeadline(t time.Time) error {
	return fc.conn.SetReadDeadline(t)
}

func (fc *frameConn) Close() error {
	return fc.conn.Close()
}
