// Package server implements the WebSocket peer used to exercise the
// connection manager: every received message is echoed to all connected
// peers and a "[n]" counter is pushed to every peer on each tick.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Defaults of the peer server.
const (
	DefaultListen       = ":8080"
	DefaultTickInterval = time.Second
	DefaultWriteTimeout = 5 * time.Second
	DefaultSniffTimeout = 5 * time.Second
	outgoingBuffer      = 16
)

// Config controls the peer server.
type Config struct {
	Listen       string
	TickInterval time.Duration
	// TLS serves wss when set.
	TLS *tls.Config
	// AllowPlain also accepts ws on the same port when TLS is set.
	AllowPlain bool
	// Subprotocols are selected during the upgrade when offered.
	Subprotocols []string
	// Text sends frames as text instead of binary.
	Text bool
}

// Server is the WebSocket peer server.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	hub      *Hub
	upgrader websocket.Upgrader

	listener net.Listener
	http     *http.Server
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new Server instance.
func New(cfg Config, opts ...Option) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	s := &Server{
		cfg:    cfg,
		logger: zap.NewNop(),
		hub:    NewHub(),
		quit:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		Subprotocols: cfg.Subprotocols,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens and serves in the background. It returns once the
// listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	switch {
	case s.cfg.TLS != nil && s.cfg.AllowPlain:
		ln = newSniffListener(ln, s.cfg.TLS, DefaultSniffTimeout, s.logger)
	case s.cfg.TLS != nil:
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("peer server started",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", s.cfg.TLS != nil),
		zap.Bool("plain", s.cfg.TLS == nil || s.cfg.AllowPlain),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", zap.Error(err))
		}
	}()

	if s.cfg.TickInterval > 0 {
		s.wg.Add(1)
		go s.tick()
	}
	return nil
}

// Stop closes the listener and every peer and waits for all goroutines.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.http != nil {
			_ = s.http.Close()
		}

		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.hub.CloseAll()
		s.wg.Wait()
		s.logger.Info("peer server stopped")
	})
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	return s.hub.PeerCount()
}

// ServeHTTP upgrades every request regardless of its path.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("failed to upgrade connection", zap.Error(err))
		return
	}

	typ := websocket.BinaryMessage
	if s.cfg.Text {
		typ = websocket.TextMessage
	}
	peer := &Peer{
		Conn:     newWSConn(conn, typ),
		Outgoing: make(chan []byte, outgoingBuffer),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		_ = conn.Close()
		return
	}
	s.hub.Register(peer)
	s.wg.Add(1)
	go s.handlePeer(peer)
}

func (s *Server) handlePeer(peer *Peer) {
	defer s.wg.Done()
	logger := s.logger.With(zap.String("remote", peer.Conn.RemoteAddr()))
	logger.Info("peer connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for data := range peer.Outgoing {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
			err := peer.Conn.Write(ctx, data)
			cancel()
			if err != nil {
				logger.Debug("failed to send message to peer", zap.Error(err))
				_ = peer.Conn.Close()
				return
			}
		}
	}()

	defer func() {
		s.hub.Unregister(peer)
		close(peer.Outgoing)
		<-writerDone
		_ = peer.Conn.Close()
		logger.Info("peer disconnected")
	}()

	for {
		data, err := peer.Conn.Read(context.Background())
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		logger.Info("message", zap.ByteString("data", data))
		s.hub.Broadcast(data)
	}
}

func (s *Server) tick() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.hub.Tick()
		case <-s.quit:
			return
		}
	}
}

// NewTLSConfig loads the server certificate/key pair.
func NewTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificates: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
