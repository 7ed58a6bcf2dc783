// Command realtime runs the presence and message fan-out service backing
// the Mingle chat feature.
package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/minglehq/realtime/internal/server"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)
	logger.Info("starting realtime service",
		zap.String("port", cfg.Port),
		zap.Strings("allowed_origins", cfg.AllowedOrigins))

	server.StartHub()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server exited", zap.Error(err))
		}
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
		if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
			logger.Warn("http shutdown incomplete", zap.Error(err))
		}
		if err := server.GetHub().Shutdown(cfg.ShutdownTimeout); err != nil {
			logger.Warn("hub shutdown incomplete", zap.Error(err))
		}
	}
}
