package client

import (
	"context"
	"crypto/tls"
	"sync"

	"go.uber.org/zap"

	"github.com/omochice/bsc-netlayer/internal/metrics"
	"github.com/omochice/bsc-netlayer/internal/transport/ws"
	"github.com/omochice/bsc-netlayer/pkg/wserr"
	"github.com/omochice/bsc-netlayer/pkg/wsuri"
)

// Facade is the synchronous wrapper around one transport worker.
type Facade struct {
	cfg     ws.Config
	scheme  wsuri.Scheme
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	uri    string
	worker *ws.Worker
}

// Option configures a Facade.
type Option func(*Facade)

// WithLogger sets the facade's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Facade) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics sets the collectors updated by the facade.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Facade) {
		f.metrics = m
	}
}

// NewInsecure creates a facade for ws:// connections.
func NewInsecure(cfg ws.Config, opts ...Option) *Facade {
	cfg.TLS = nil
	return newFacade(cfg, wsuri.SchemeInsecure, opts)
}

// NewSecure creates a facade for wss:// connections using tlsCfg.
func NewSecure(cfg ws.Config, tlsCfg *tls.Config, opts ...Option) *Facade {
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	cfg.TLS = tlsCfg
	return newFacade(cfg, wsuri.SchemeSecure, opts)
}

func newFacade(cfg ws.Config, scheme wsuri.Scheme, opts []Option) *Facade {
	f := &Facade{
		cfg:    cfg,
		scheme: scheme,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect implements Client.
func (f *Facade) Connect(ctx context.Context, uri string) error {
	if f.current() != nil {
		f.Disconnect()
	}

	logger := f.logger.With(zap.String("uri", uri))
	w := ws.NewWorker(wsuri.Parse(uri), f.cfg, ws.WithLogger(logger))

	f.mu.Lock()
	f.uri = uri
	f.worker = w
	f.mu.Unlock()

	// The worker outlives ctx; ctx only bounds the wait for the handshake.
	w.Start(context.WithoutCancel(ctx))

	var err error
	select {
	case <-w.Ready():
		// Errors after Open stay in the slot for the next Send or Recv.
		if err = w.HandshakeErr(); err != nil {
			_ = w.TakeErr()
		}
	case <-ctx.Done():
		_ = w.Close()
		err = wserr.New(wserr.CodeTCPConnectTimeout, "connect", ctx.Err())
	}

	f.metrics.ConnectionAttempt(f.scheme.String(), err)
	f.metrics.Error(err)
	if err != nil {
		logger.Warn("connect failed", zap.Error(err))
		return err
	}
	logger.Info("connected", zap.String("conn_id", w.ID()))
	return nil
}

// Disconnect implements Client.
func (f *Facade) Disconnect() {
	f.mu.Lock()
	w := f.worker
	f.worker = nil
	f.mu.Unlock()

	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		f.logger.Debug("close error", zap.String("uri", f.URI()), zap.Error(err))
	}
}

// IsConnected implements Client.
func (f *Facade) IsConnected() bool {
	w := f.current()
	return w != nil && w.IsConnected()
}

// Send implements Client. It returns 0 without error when no connection
// was ever made.
func (f *Facade) Send(message []byte) (int, error) {
	w := f.current()
	if w == nil {
		return 0, nil
	}

	n, _ := w.Write(message)
	err := w.TakeErr()
	if err != nil {
		f.metrics.Error(err)
		return n, err
	}
	f.metrics.MessageSent(n)
	return n, nil
}

// Recv implements Client. A message whose length is len(buf) or more is
// dropped rather than truncated.
func (f *Facade) Recv(buf []byte) (int, error) {
	w := f.current()
	if w == nil {
		return 0, nil
	}

	err := w.TakeErr()
	f.metrics.Error(err)

	data, ok := w.Pop()
	if !ok {
		return 0, err
	}
	if len(data) >= len(buf) {
		f.metrics.MessageDropped("too_large")
		f.logger.Debug("dropped oversized message",
			zap.String("uri", f.URI()),
			zap.Int("size", len(data)),
			zap.Int("max", len(buf)),
		)
		return 0, err
	}

	n := copy(buf, data)
	f.metrics.MessageReceived(n)
	return n, err
}

// URI returns the URI of the last Connect.
func (f *Facade) URI() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.uri
}

// Scheme returns the transport variant of the facade.
func (f *Facade) Scheme() wsuri.Scheme {
	return f.scheme
}

// State returns the worker state, or StateIdle without a worker.
func (f *Facade) State() ws.State {
	if w := f.current(); w != nil {
		return w.State()
	}
	return ws.StateIdle
}

// Pending returns the number of queued inbound messages.
func (f *Facade) Pending() int {
	if w := f.current(); w != nil {
		return w.Pending()
	}
	return 0
}

// LastError returns the pending error without clearing it.
func (f *Facade) LastError() error {
	if w := f.current(); w != nil {
		return w.Err()
	}
	return nil
}

// ConnID returns the worker's connection id.
func (f *Facade) ConnID() string {
	if w := f.current(); w != nil {
		return w.ID()
	}
	return ""
}

func (f *Facade) current() *ws.Worker {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.worker
}

var _ Client = (*Facade)(nil)
