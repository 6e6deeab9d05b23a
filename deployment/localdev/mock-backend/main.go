package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/persondetect/detect-console/internal/config"
	"github.com/persondetect/detect-console/internal/localdev"
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
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, os.Stderr).With(slog.String("service", "mock-backend"))

	store, err := localdev.NewSQLiteStore(cfg.Mock.DatabasePath)
	if err != nil {
		logger.Error("failed to open store", slog.String("path", cfg.Mock.DatabasePath), slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	backend, err := localdev.NewServer(store, localdev.HashDetector{}, cfg.Mock.UploadDir, logger)
	if err != nil {
		logger.Error("failed to create server", slog.Any("error", err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Mock.Address,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", slog.String("address", cfg.Mock.Address), slog.String("uploads", cfg.Mock.UploadDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", slog.Any("error", err))
	}
	logger.Info("mock-backend stopped")
}
