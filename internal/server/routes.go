package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes returns the service mux: health check at the root, the
// websocket endpoint, prometheus metrics, and the manual test page.
func SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
