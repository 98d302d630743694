// SPDX-License-Identifier: MIT

// axtld bridges a COBS-framed serial peer to an HTTP surface with health
// probes, Prometheus metrics and a live status endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sun-lab-nbb/axtl/internal/api"
	"github.com/sun-lab-nbb/axtl/internal/bridge"
	"github.com/sun-lab-nbb/axtl/internal/config"
	"github.com/sun-lab-nbb/axtl/internal/health"
	"github.com/sun-lab-nbb/axtl/internal/log"
	"github.com/sun-lab-nbb/axtl/internal/serialmock"
	"github.com/sun-lab-nbb/axtl/internal/serialport"
	"github.com/sun-lab-nbb/axtl/internal/transport"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the configuration is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Service: "axtl",
		Version: version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	// Re-configure with the loaded settings.
	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version,
	})

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.checks.failed").
			Msg("pre-flight checks failed")
	}

	port, portName, err := openPort(cfg)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "port.open_failed").
			Str("device", cfg.Device).
			Msg("failed to open serial port")
	}
	defer func() {
		if err := port.Close(); err != nil {
			logger.Warn().Err(err).Str("event", "port.close_failed").Msg("port close failed")
		}
	}()

	engine, err := buildTransport(cfg, port)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "transport.init_failed").
			Msg("failed to initialize transport engine")
	}

	b := bridge.New(engine)

	manager := health.NewManager(version)
	manager.RegisterChecker(health.NewPortChecker(portName, port))
	manager.RegisterChecker(health.NewLastExchangeChecker(0, b.LastExchange))

	server := api.New(api.Config{
		Version:      version,
		RateLimitRPS: cfg.RateLimitRPS,
		Health:       manager,
		Bridge:       b,
	})

	logger.Info().
		Str("event", "daemon.start").
		Str("version", version).
		Str("device", portName).
		Str("listen_addr", cfg.ListenAddr).
		Str("session_id", b.SessionID()).
		Msg("starting serial bridge daemon")

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(runCtx) })
	g.Go(func() error { return server.Run(runCtx, cfg.ListenAddr) })
	if *configPath != "" {
		g.Go(func() error { return config.Watch(runCtx, *configPath) })
	}

	if err := g.Wait(); err != nil {
		logger.Error().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon exited with error")
		os.Exit(1)
	}

	logger.Info().Str("event", "daemon.stopped").Msg("shutdown complete")
}

// openPort opens the configured serial device, or an in-memory loopback
// when no device is set.
func openPort(cfg config.Config) (transport.Port, string, error) {
	if cfg.Device == "" {
		return serialmock.New(), "loopback", nil
	}
	port, err := serialport.Open(cfg.Device, cfg.BaudRate)
	if err != nil {
		return nil, "", err
	}
	return port, cfg.Device, nil
}

func buildTransport(cfg config.Config, port transport.Port) (*transport.TransportLayer, error) {
	params, err := cfg.CRCParameters()
	if err != nil {
		return nil, err
	}
	return transport.New(port,
		transport.WithStartByte(cfg.StartByte),
		transport.WithDelimiter(cfg.DelimiterByte),
		transport.WithTimeout(cfg.Timeout),
		transport.WithMinPayloadSize(cfg.MinPayloadSize),
		transport.WithMaxTxPayloadSize(cfg.MaxTxPayloadSize),
		transport.WithMaxRxPayloadSize(cfg.MaxRxPayloadSize),
		transport.WithCRC(params),
		transport.WithStartByteErrors(cfg.AllowStartByteErrors),
	)
}
