// Package netlayer exposes the connection registry to a single-threaded
// protocol engine through byte-oriented calls that never panic.
package netlayer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/omochice/bsc-netlayer/internal/registry"
)

// Bridge is the boundary between the protocol engine and the registry.
type Bridge struct {
	ctx      context.Context
	registry *registry.Registry
	sink     StatusSink
	logger   *zap.Logger

	mu       sync.Mutex
	statuses map[string]Status
	cursor   int
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithStatusSink forwards every status change to sink.
func WithStatusSink(sink StatusSink) Option {
	return func(b *Bridge) {
		b.sink = sink
	}
}

// WithLogger sets the bridge's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithContext bounds InitiateConnection by ctx.
func WithContext(ctx context.Context) Option {
	return func(b *Bridge) {
		b.ctx = ctx
	}
}

// NewBridge creates a Bridge over reg.
func NewBridge(reg *registry.Registry, opts ...Option) *Bridge {
	b := &Bridge{
		ctx:      context.Background(),
		registry: reg,
		logger:   zap.NewNop(),
		statuses: make(map[string]Status),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// InitiateConnection adds a connection for uri and records Connected or
// Error(code). It blocks until the handshake has finished.
func (b *Bridge) InitiateConnection(uri []byte, opts ...registry.AddOption) bool {
	target := string(uri)
	if err := b.registry.AddConnection(b.ctx, target, opts...); err != nil {
		b.logger.Warn("initiate connection failed", zap.String("uri", target), zap.Error(err))
		b.setStatus(target, statusFromError(err))
		return false
	}
	b.setStatus(target, Status{Kind: StatusConnected})
	return true
}

// TerminateConnection removes the connection for uri.
func (b *Bridge) TerminateConnection(uri []byte) {
	target := string(uri)
	b.registry.RemoveConnection(target)
	b.setStatus(target, Status{Kind: StatusDisconnected})
}

// PollReceive copies at most one pending message into buf and returns its
// length and source URI. Connections are visited round-robin. It returns
// 0 immediately when nothing is pending.
func (b *Bridge) PollReceive(buf []byte) (int, string) {
	uris := b.registry.URIs()
	if len(uris) == 0 {
		return 0, ""
	}

	b.mu.Lock()
	start := b.cursor % len(uris)
	b.mu.Unlock()

	for i := range uris {
		idx := (start + i) % len(uris)
		uri := uris[idx]

		n, err := b.registry.Recv(uri, buf)
		if err != nil {
			b.logger.Debug("receive error", zap.String("uri", uri), zap.Error(err))
			b.setStatus(uri, statusFromError(err))
		}
		if n > 0 {
			b.mu.Lock()
			b.cursor = idx + 1
			b.mu.Unlock()
			return n, uri
		}
	}
	return 0, ""
}

// SendOutbound writes buf to uri and returns the number of bytes sent.
// A 0 result marks the connection disconnected or failed.
func (b *Bridge) SendOutbound(buf []byte, uri []byte) int {
	target := string(uri)
	n, err := b.registry.Send(target, buf)
	if n > 0 {
		if err != nil {
			b.setStatus(target, statusFromError(err))
		}
		return n
	}

	b.logger.Warn("send failed", zap.String("uri", target), zap.Error(err))
	b.setStatus(target, statusFromError(err))
	return 0
}

// Status returns the last status recorded for uri.
func (b *Bridge) Status(uri string) (Status, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.statuses[uri]
	return s, ok
}

func (b *Bridge) setStatus(uri string, s Status) {
	b.mu.Lock()
	prev, ok := b.statuses[uri]
	b.statuses[uri] = s
	b.mu.Unlock()

	if ok && prev == s {
		return
	}
	b.logger.Debug("status changed", zap.String("uri", uri), zap.Stringer("status", s))
	if b.sink != nil {
		b.sink.SetStatus(uri, s)
	}
}
