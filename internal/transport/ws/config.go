package ws

import (
	"crypto/tls"
	"net"
	"time"

	"go.uber.org/zap"
)

// Defaults for connection establishment.
const (
	DefaultConnectTimeout   = 30 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultCloseTimeout     = 5 * time.Second
	DefaultSubprotocol      = "hub.bsc.bacnet.org"
	DefaultUserAgent        = "bsc-netlayer websocket-client"
)

// Config controls how a Worker establishes and runs its connection.
type Config struct {
	// ConnectTimeout bounds name resolution plus the TCP connect.
	ConnectTimeout time.Duration
	// HandshakeTimeout bounds each of the TLS and upgrade handshakes.
	HandshakeTimeout time.Duration
	// CloseTimeout bounds how long a graceful close waits for the peer.
	CloseTimeout time.Duration
	// IdleTimeout is the read deadline once open. Zero disables it.
	IdleTimeout time.Duration
	// KeepAlive enables TCP keep-alive probing.
	KeepAlive bool
	// Subprotocol is offered during the upgrade handshake.
	Subprotocol string
	// UserAgent is sent with the upgrade request.
	UserAgent string
	// TLS selects the secure variant when non-nil.
	TLS *tls.Config
	// Resolver overrides net.DefaultResolver.
	Resolver *net.Resolver
}

// DefaultConfig returns the insecure-variant defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   DefaultConnectTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		CloseTimeout:     DefaultCloseTimeout,
		Subprotocol:      DefaultSubprotocol,
		UserAgent:        DefaultUserAgent,
	}
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.Resolver == nil {
		c.Resolver = net.DefaultResolver
	}
	return c
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithID overrides the generated connection id.
func WithID(id string) Option {
	return func(w *Worker) {
		w.id = id
	}
}
