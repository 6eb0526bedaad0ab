// Package status serves a read-only HTTP view of the connection registry
// and the prometheus metrics.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/omochice/bsc-netlayer/internal/registry"
)

// Source lists the connections to report.
type Source interface {
	Connections() []registry.ConnectionInfo
	Connection(uri string) (registry.ConnectionInfo, bool)
}

// NewRouter builds the status routes:
//
//	GET /healthz
//	GET /connections
//	GET /connection?uri=<uri>
//	GET /metrics
func NewRouter(src Source, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/connections", func(c *gin.Context) {
		infos := src.Connections()
		c.JSON(http.StatusOK, gin.H{
			"count":       len(infos),
			"connections": infos,
		})
	})

	r.GET("/connection", func(c *gin.Context) {
		uri := c.Query("uri")
		if uri == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "uri is required"})
			return
		}
		info, ok := src.Connection(uri)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown connection"})
			return
		}
		c.JSON(http.StatusOK, info)
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("status request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Server runs the status router on its own listener.
type Server struct {
	http     *http.Server
	listener net.Listener
	logger   *zap.Logger
	done     chan struct{}
}

// Start listens on addr and serves handler in the background.
func Start(addr string, handler http.Handler, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", zap.Error(err))
		}
	}()
	logger.Info("status server started", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	<-s.done
	return err
}
