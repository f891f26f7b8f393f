package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openfne/zello-gateway/pkg/config"
	"github.com/openfne/zello-gateway/pkg/gatewayhost"
	"github.com/openfne/zello-gateway/pkg/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("zello-gateway %s (built %s)\n", version, buildTime)
		return 0
	}

	log := logger.New(logger.Config{Level: "info", Format: "text"})
	log.Info("starting zello-gateway",
		logger.String("version", version),
		logger.String("build_time", buildTime))

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("failed to load configuration", logger.Error(err))
		return 1
	}

	if *validate {
		log.Info("configuration is valid")
		return 0
	}

	log = logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Info("configuration loaded successfully", logger.String("config_file", *configFile))

	host, err := gatewayhost.New(*cfg, log)
	if err != nil {
		log.Error("failed to build gateway", logger.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
		cancel()
	}()

	if err := host.Run(ctx); err != nil && err != context.Canceled {
		log.Error("gateway stopped with error", logger.Error(err))
		return 1
	}

	log.Info("zello-gateway stopped")
	return 0
}
