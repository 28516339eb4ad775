// Package server wires HTTP handlers into a ServeMux and applies the CORS
// policy configured for the deployment.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// SetupRoutes configures the relay's HTTP routes and wraps them with the
// configured CORS policy. Static file serving is only mounted when a static
// directory is configured.
func SetupRoutes(h *Handlers) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.Health)
	mux.HandleFunc("/ws", h.WebSocket)
	mux.HandleFunc("/notify-new-messages", h.NotifyNewMessages)
	mux.Handle("/metrics", promhttp.Handler())

	if h.cfg.StaticDir != "" {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(h.cfg.StaticDir))))
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}
