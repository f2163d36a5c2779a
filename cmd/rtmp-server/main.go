package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alxayo/go-rtmp/internal/config"
	"github.com/alxayo/go-rtmp/internal/logger"
	srv "github.com/alxayo/go-rtmp/internal/rtmp/server"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		// flag package already printed usage/error
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	// Initialize global logger and set level based on flag
	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	serverCfg, err := buildServerConfig(cfg)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	server := srv.New(serverCfg)

	if err := server.Start(); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	log.Info("server started", "addr", server.Addr().String(), "version", version)

	// Set up signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Perform shutdown in a separate goroutine in case it blocks; we just wait or force exit on timeout.
	done := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Error("server stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}

// buildServerConfig maps CLI flags to srv.Config, or, when -config points at
// a YAML file, loads it via internal/config and lets it take precedence over
// the protocol-level flags (chunk size, window ack size, peer bandwidth,
// FMS version aren't independently flag-settable today). With -config the
// listen address and log level also come from the file. Recording and relay
// destinations stay CLI-driven either way since they're the flags a human
// actually reaches for at the command line.
func buildServerConfig(cfg *cliConfig) (srv.Config, error) {
	if cfg.configFile == "" {
		return srv.Config{
			ListenAddr:             cfg.listenAddr,
			ChunkSize:              uint32(cfg.chunkSize),
			WindowAckSize:          2_500_000,
			PeerBandwidth:          2_500_000,
			PeerBandwidthLimitType: 2,
			FMSVersion:             "FMS/5,0,17,0",
			RecordAll:              cfg.recordAll,
			RecordDir:              cfg.recordDir,
			LogLevel:               cfg.logLevel,
			RelayDestinations:      cfg.relayDestinations,
		}, nil
	}

	fileCfg, err := config.Load(cfg.configFile)
	if err != nil {
		return srv.Config{}, err
	}
	sessionCfg := fileCfg.Session.ToSessionConfig()
	return srv.Config{
		ListenAddr:             fileCfg.Server.ListenAddr,
		ChunkSize:              sessionCfg.ChunkSize,
		WindowAckSize:          sessionCfg.WindowAckSize,
		PeerBandwidth:          sessionCfg.PeerBandwidth,
		PeerBandwidthLimitType: sessionCfg.PeerBandwidthLimitType,
		FMSVersion:             sessionCfg.FMSVersion,
		RecordAll:              cfg.recordAll,
		RecordDir:              cfg.recordDir,
		LogLevel:               fileCfg.Server.LogLevel,
		RelayDestinations:      cfg.relayDestinations,
	}, nil
}
