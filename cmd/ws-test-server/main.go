package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/omochice/bsc-netlayer/internal/config"
	"github.com/omochice/bsc-netlayer/internal/observability"
	"github.com/omochice/bsc-netlayer/internal/server"
	"github.com/omochice/bsc-netlayer/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	listen := flag.String("listen", "", "Address to listen on (e.g., :8080)")
	certFile := flag.String("cert", "", "Server certificate; enables wss")
	keyFile := flag.String("key", "", "Server private key")
	allowPlain := flag.Bool("allow-plain", false, "Also accept ws on the wss port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *certFile != "" || *keyFile != "" {
		cfg.Server.CertFile = *certFile
		cfg.Server.KeyFile = *keyFile
	}
	if *allowPlain {
		cfg.Server.AllowPlain = true
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	defer logger.Sync()

	srvCfg := server.Config{
		Listen:       cfg.Server.Listen,
		TickInterval: cfg.Server.TickInterval,
		AllowPlain:   cfg.Server.AllowPlain,
		Subprotocols: []string{ws.DefaultSubprotocol},
	}
	if cfg.Server.CertFile != "" {
		srvCfg.TLS, err = server.NewTLSConfig(cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			logger.Fatal("failed to load server certificate", zap.Error(err))
		}
	}

	srv := server.New(srvCfg, server.WithLogger(logger))
	if err := srv.Start(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", zap.Stringer("signal", sig))

	srv.Stop()
}
