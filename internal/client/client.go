// Package client defines the synchronous connection facade used by the
// registry. Both transport variants satisfy the same interface.
package client

import "context"

// Client defines the interface for one synchronous WebSocket connection.
// Both insecure and secure implementations satisfy this interface.
type Client interface {
	// Connect blocks until the handshake has finished. The returned error
	// carries the failure code; a connected client is disconnected first.
	Connect(ctx context.Context, uri string) error

	// Disconnect closes the connection and blocks until it is closed.
	Disconnect()

	// IsConnected reports whether the connection is open.
	IsConnected() bool

	// Send blocks until message has been written and returns its length.
	Send(message []byte) (int, error)

	// Recv copies the oldest received message into buf without blocking.
	// Messages that do not fit are discarded and 0 is returned.
	Recv(buf []byte) (int, error)
}
