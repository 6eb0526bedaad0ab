package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/omochice/bsc-netlayer/internal/config"
	"github.com/omochice/bsc-netlayer/internal/database"
	"github.com/omochice/bsc-netlayer/internal/metrics"
	"github.com/omochice/bsc-netlayer/internal/netlayer"
	"github.com/omochice/bsc-netlayer/internal/observability"
	"github.com/omochice/bsc-netlayer/internal/registry"
	"github.com/omochice/bsc-netlayer/internal/status"
)

func main() {
	var uris []string
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Func("uri", "Server URI (repeatable, e.g., ws://localhost:8080/)", func(s string) error {
		uris = append(uris, s)
		return nil
	})
	certFile := flag.String("cert", "", "Client certificate for wss connections")
	keyFile := flag.String("key", "", "Client private key for wss connections")
	message := flag.String("message", "", "Message sent after connecting")
	statusAddr := flag.String("status", "", "Status API listen address (e.g., :9090)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if len(uris) > 0 {
		cfg.Connections = uris
	}
	if *certFile != "" || *keyFile != "" {
		cfg.TLS.CertFile = *certFile
		cfg.TLS.KeyFile = *keyFile
	}
	if *message != "" {
		cfg.Client.Message = *message
	}
	if *statusAddr != "" {
		cfg.Status.Listen = *statusAddr
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("client stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	codec, err := database.NewCodec(cfg.Client.Codec)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(promReg)
	if err != nil {
		return err
	}

	reg := registry.New(cfg.WorkerConfig(),
		registry.WithLogger(logger),
		registry.WithMetrics(m),
		registry.WithTLS(cfg.TLSOptions()),
	)
	defer reg.Close()

	bridge := netlayer.NewBridge(reg,
		netlayer.WithLogger(logger),
		netlayer.WithContext(ctx),
		netlayer.WithStatusSink(netlayer.StatusFunc(func(uri string, s netlayer.Status) {
			logger.Info("connection status", zap.String("uri", uri), zap.Stringer("status", s))
		})),
	)

	if cfg.Status.Listen != "" {
		srv, err := status.Start(cfg.Status.Listen, status.NewRouter(reg, promReg, logger), logger)
		if err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	policy := netlayer.RetryPolicy{
		Attempts: cfg.Client.Reconnect.Attempts,
		Delay:    cfg.Client.Reconnect.Delay,
		MaxDelay: cfg.Client.Reconnect.MaxDelay,
	}

	for _, uri := range cfg.Connections {
		if err := bridge.InitiateWithRetry(ctx, []byte(uri), policy); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", uri, err)
		}
		logger.Info("connected", zap.String("uri", uri))

		if n := bridge.SendOutbound([]byte(cfg.Client.Message), []byte(uri)); n == 0 {
			logger.Warn("could not send message", zap.String("uri", uri))
		}
	}

	db := database.New()
	return loop(ctx, cfg, bridge, reg, db, codec, policy, logger)
}

// loop polls for inbound messages while any connection is open, advancing
// the database and publishing snapshots on the configured interval.
func loop(
	ctx context.Context,
	cfg *config.Config,
	bridge *netlayer.Bridge,
	reg *registry.Registry,
	db *database.Database,
	codec database.Codec,
	policy netlayer.RetryPolicy,
	logger *zap.Logger,
) error {
	buf := make([]byte, cfg.Client.RecvBuffer)
	poll := time.NewTicker(cfg.Client.PollInterval)
	defer poll.Stop()

	var publish <-chan time.Time
	if cfg.Client.PublishInterval > 0 {
		t := time.NewTicker(cfg.Client.PublishInterval)
		defer t.Stop()
		publish = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-publish:
			data, err := codec.Encode(db.Snapshot())
			if err != nil {
				logger.Warn("failed to encode snapshot", zap.Error(err))
				continue
			}
			for _, uri := range reg.URIs() {
				bridge.SendOutbound(data, []byte(uri))
			}

		case <-poll.C:
			db.Loop()
			for {
				n, uri := bridge.PollReceive(buf)
				if n == 0 {
					break
				}
				fmt.Printf("%s: %s\n", uri, buf[:n])
			}

			for _, uri := range cfg.Connections {
				if reg.IsConnected(uri) {
					continue
				}
				logger.Warn("connection lost, reconnecting", zap.String("uri", uri))
				if err := bridge.Reconnect(ctx, []byte(uri), policy); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("failed to reconnect to %s: %w", uri, err)
				}
			}
		}
	}
}
