// Package registry keeps one client facade per URI and selects the
// transport variant from the URI scheme.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/omochice/bsc-netlayer/internal/client"
	"github.com/omochice/bsc-netlayer/internal/metrics"
	"github.com/omochice/bsc-netlayer/internal/transport/ws"
	"github.com/omochice/bsc-netlayer/pkg/wserr"
	"github.com/omochice/bsc-netlayer/pkg/wsuri"
)

// Factory builds the facade for one scheme.
type Factory func(cfg ws.Config, tlsOpts ws.TLSOptions, opts ...client.Option) (*client.Facade, error)

// DefaultFactories maps ws to the insecure facade and wss to the secure one.
func DefaultFactories() map[wsuri.Scheme]Factory {
	return map[wsuri.Scheme]Factory{
		wsuri.SchemeInsecure: newInsecure,
		wsuri.SchemeSecure:   newSecure,
	}
}

func newInsecure(cfg ws.Config, _ ws.TLSOptions, opts ...client.Option) (*client.Facade, error) {
	return client.NewInsecure(cfg, opts...), nil
}

func newSecure(cfg ws.Config, tlsOpts ws.TLSOptions, opts ...client.Option) (*client.Facade, error) {
	tlsCfg, err := ws.NewTLSConfig(tlsOpts)
	if err != nil {
		return nil, err
	}
	return client.NewSecure(cfg, tlsCfg, opts...), nil
}

// ConnectionInfo describes one registry entry.
type ConnectionInfo struct {
	URI       string `json:"uri"`
	Scheme    string `json:"scheme"`
	ConnID    string `json:"conn_id"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Pending   int    `json:"pending"`
	LastError string `json:"last_error,omitempty"`
}

// Registry manages all connections of the process.
// Entries exist only for connections whose Connect succeeded.
type Registry struct {
	cfg       ws.Config
	tls       ws.TLSOptions
	factories map[wsuri.Scheme]Factory
	logger    *zap.Logger
	metrics   *metrics.Metrics

	group singleflight.Group

	mu    sync.RWMutex
	conns map[string]*client.Facade
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger. Facades log through it too.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the collectors shared by all connections.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithTLS sets the TLS defaults of secure connections.
func WithTLS(opts ws.TLSOptions) Option {
	return func(r *Registry) {
		r.tls = opts
	}
}

// WithFactory overrides the facade constructor for a scheme.
func WithFactory(scheme wsuri.Scheme, f Factory) Option {
	return func(r *Registry) {
		r.factories[scheme] = f
	}
}

// New creates an empty Registry.
func New(cfg ws.Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:       cfg,
		factories: DefaultFactories(),
		logger:    zap.NewNop(),
		conns:     make(map[string]*client.Facade),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddOption configures a single AddConnection call.
type AddOption func(*ws.TLSOptions)

// WithCertificate presents the certificate/key pair on a secure connection.
func WithCertificate(certFile, keyFile string) AddOption {
	return func(o *ws.TLSOptions) {
		o.CertFile = certFile
		o.KeyFile = keyFile
	}
}

// AddConnection opens a connection to uri unless one is already registered.
// An existing entry is reported as success without checking its health.
// Concurrent calls for the same uri share a single connection attempt.
func (r *Registry) AddConnection(ctx context.Context, uri string, opts ...AddOption) error {
	if r.lookup(uri) != nil {
		return nil
	}

	_, err, shared := r.group.Do(uri, func() (any, error) {
		if r.lookup(uri) != nil {
			return nil, nil
		}
		return nil, r.add(ctx, uri, opts)
	})
	if shared {
		r.logger.Debug("joined pending connection attempt", zap.String("uri", uri))
	}
	return err
}

func (r *Registry) add(ctx context.Context, uri string, opts []AddOption) error {
	addr := wsuri.Parse(uri)
	factory, ok := r.factories[addr.Scheme]
	if !ok {
		err := wserr.New(wserr.CodeUnsupportedScheme, "add connection",
			fmt.Errorf("unsupported scheme %q", addr.Protocol))
		r.metrics.Error(err)
		r.logger.Warn("rejected connection", zap.String("uri", uri), zap.Error(err))
		return err
	}

	tlsOpts := r.tls
	for _, opt := range opts {
		opt(&tlsOpts)
	}

	f, err := factory(r.cfg, tlsOpts, client.WithLogger(r.logger), client.WithMetrics(r.metrics))
	if err != nil {
		r.metrics.Error(err)
		return err
	}
	if err := f.Connect(ctx, uri); err != nil {
		f.Disconnect()
		return err
	}

	r.mu.Lock()
	r.conns[uri] = f
	n := len(r.conns)
	r.mu.Unlock()

	r.metrics.SetConnections(n)
	return nil
}

// RemoveConnection disconnects and forgets uri. Unknown URIs are ignored.
func (r *Registry) RemoveConnection(uri string) {
	r.mu.Lock()
	f, ok := r.conns[uri]
	delete(r.conns, uri)
	n := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.metrics.SetConnections(n)
	f.Disconnect()
	r.logger.Info("connection removed", zap.String("uri", uri))
}

// IsConnected reports whether uri is registered and open.
func (r *Registry) IsConnected(uri string) bool {
	f := r.lookup(uri)
	return f != nil && f.IsConnected()
}

// Send writes message to uri. It returns 0 for unknown URIs.
func (r *Registry) Send(uri string, message []byte) (int, error) {
	f := r.lookup(uri)
	if f == nil {
		return 0, nil
	}
	return f.Send(message)
}

// Recv pops one message received from uri. It returns 0 for unknown URIs.
func (r *Registry) Recv(uri string, buf []byte) (int, error) {
	f := r.lookup(uri)
	if f == nil {
		return 0, nil
	}
	return f.Recv(buf)
}

// URIs returns the registered URIs in sorted order.
func (r *Registry) URIs() []string {
	r.mu.RLock()
	uris := make([]string, 0, len(r.conns))
	for uri := range r.conns {
		uris = append(uris, uri)
	}
	r.mu.RUnlock()

	sort.Strings(uris)
	return uris
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Connection describes the entry for uri.
func (r *Registry) Connection(uri string) (ConnectionInfo, bool) {
	f := r.lookup(uri)
	if f == nil {
		return ConnectionInfo{}, false
	}
	return describe(uri, f), true
}

// Connections describes every entry, sorted by URI.
func (r *Registry) Connections() []ConnectionInfo {
	uris := r.URIs()
	infos := make([]ConnectionInfo, 0, len(uris))
	for _, uri := range uris {
		if info, ok := r.Connection(uri); ok {
			infos = append(infos, info)
		}
	}
	return infos
}

// Close disconnects every connection and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*client.Facade)
	r.mu.Unlock()

	var g errgroup.Group
	for _, f := range conns {
		g.Go(func() error {
			f.Disconnect()
			return nil
		})
	}
	err := g.Wait()
	r.metrics.SetConnections(0)
	return err
}

func (r *Registry) lookup(uri string) *client.Facade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[uri]
}

func describe(uri string, f *client.Facade) ConnectionInfo {
	info := ConnectionInfo{
		URI:       uri,
		Scheme:    f.Scheme().String(),
		ConnID:    f.ConnID(),
		State:     f.State().String(),
		Connected: f.IsConnected(),
		Pending:   f.Pending(),
	}
	if err := f.LastError(); err != nil {
		info.LastError = err.Error()
	}
	return info
}
