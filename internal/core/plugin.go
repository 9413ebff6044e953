package core

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

// HealthStatus represents plugin health states for registry reporting.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Dashboard is a Grafana dashboard asset embedded by the plugin.
type Dashboard struct {
	Name string
	JSON []byte
}

// Manifest describes a plugin for discovery and registry metadata.
type Manifest struct {
	PluginID    string   `json:"plugin_id"`
	DisplayName string   `json:"display_name"`
	Version     string   `json:"version"`
	Services    []string `json:"services"`
}

// Plugin is the compile-time contract for all mivac plugins.
type Plugin interface {
	ID() string
	Manifest() Manifest
	Dashboards() []Dashboard
	RegisterGRPC(*grpc.Server)
	Collectors() []prometheus.Collector
	Health() HealthStatus
	HealthMessage() string
}

// HTTPRegistrant allows plugins to expose HTTP handlers.
type HTTPRegistrant interface {
	RegisterHTTP(chi.Router)
}

// Runner is implemented by plugins with background work. Run blocks
// until ctx is done.
type Runner interface {
	Run(ctx context.Context)
}
