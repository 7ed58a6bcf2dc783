// HTTP server construction and graceful shutdown for the realtime service.
package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CreateServer builds the http.Server with production timeout defaults.
// Read/write timeouts apply to the plain HTTP endpoints; upgraded websocket
// connections manage their own deadlines in the pumps.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer begins listening and blocks until the server exits.
func StartServer(server *http.Server) error {
	zap.L().Info("server listening", zap.String("addr", server.Addr))
	return server.ListenAndServe()
}

// ShutdownServer gracefully stops the HTTP server, waiting up to timeout
// for in-flight requests to finish.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	zap.L().Info("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zap.L().Warn("http server shutdown error", zap.Error(err))
		return err
	}
	return nil
}
