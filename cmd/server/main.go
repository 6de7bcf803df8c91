package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sant470/loganalyzer/internal/config"
	"github.com/sant470/loganalyzer/internal/ingest"
	"github.com/sant470/loganalyzer/internal/log"
	"github.com/sant470/loganalyzer/internal/metrics"
	"github.com/sant470/loganalyzer/internal/server"
)

const (
	exitOK    = 0
	exitServe = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args, os.Stdout)
	if errors.Is(err, config.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		return exitUsage
	}

	logger, flush := log.New()
	defer flush()
	appLogger := logger.Named(log.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvCfg := &server.Config{
		Server: cfg,
		Sink:   ingest.NewLogSink(appLogger),
		Logger: appLogger,
	}
	if cfg.MetricsAddr != "" {
		srvCfg.Metrics = metrics.New()
	}

	if err := server.Run(ctx, srvCfg); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return exitServe
	}
	logger.Info("server stopped")
	return exitOK
}
