package server

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/mivac/internal/core"
)

// NewRouter mounts the core endpoints and every plugin's HTTP routes.
func NewRouter(plugins []core.Plugin, registry *prometheus.Registry, logger *log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", HealthHandler(plugins))
	r.Handle("/metrics", MetricsHandler(registry, logger))
	r.Mount("/plugins", PluginsHandler(core.NewRegistry(plugins)))
	r.Handle("/dashboards/*", DashboardsHandler(core.DashboardsMap(plugins)))

	for _, p := range plugins {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(r)
		}
	}
	return r
}
