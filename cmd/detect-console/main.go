package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/persondetect/detect-console/internal/cache"
	"github.com/persondetect/detect-console/internal/config"
	"github.com/persondetect/detect-console/internal/console"
	"github.com/persondetect/detect-console/internal/dialog"
	"github.com/persondetect/detect-console/internal/metrics"
	"github.com/persondetect/detect-console/internal/preview"
	"github.com/persondetect/detect-console/internal/repo"
	"github.com/persondetect/detect-console/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, os.Stderr)
	logger.Info("starting detect-console", slog.String("api", cfg.API.BaseURL))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
			}
		}()
	}

	client := repo.NewDetectionClient(cfg.API.BaseURL, cfg.API.Timeout, logger.With(slog.String("component", "api")))
	previews := preview.NewStore(cache.NewMemoryProvider(), cfg.Preview.TTL, logger)
	defer previews.Close()

	// Unblock a pending read so the shell notices the signal.
	go func() {
		<-ctx.Done()
		_ = os.Stdin.Close()
	}()

	in := bufio.NewReader(os.Stdin)
	term := dialog.NewTerminal(in, os.Stdout)
	page := console.NewPage(client, previews, term, term, logger)
	defer page.Close()

	shell := console.NewShell(page, console.NewRenderer(client.ImageURL), in, os.Stdout, logger)
	if err := shell.Run(ctx); err != nil {
		logger.Error("console exited", slog.Any("error", err))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancel()
	}
	logger.Info("detect-console stopped")
}
