package router

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/mivac/internal/core"
)

type stubPlugin struct {
	services []string
	register bool
}

func (s stubPlugin) ID() string { return "demo" }

func (s stubPlugin) Manifest() core.Manifest {
	return core.Manifest{PluginID: "demo", Version: "0.1.0", Services: s.services}
}

func (s stubPlugin) Dashboards() []core.Dashboard { return nil }

func (s stubPlugin) RegisterGRPC(server *grpc.Server) {
	if s.register {
		healthpb.RegisterHealthServer(server, health.NewServer())
	}
}

func (s stubPlugin) Collectors() []prometheus.Collector { return nil }

func (s stubPlugin) Health() core.HealthStatus { return core.HealthHealthy }

func (s stubPlugin) HealthMessage() string { return "" }

func TestRegisterPlugins(t *testing.T) {
	plugin := stubPlugin{services: []string{"grpc.health.v1.Health"}, register: true}
	names, err := RegisterPlugins(grpc.NewServer(), []core.Plugin{plugin})
	if err != nil {
		t.Fatalf("RegisterPlugins error: %v", err)
	}
	if len(names) != 1 || names[0] != "grpc.health.v1.Health" {
		t.Fatalf("unexpected services %v", names)
	}
}

func TestRegisterPluginsMissingService(t *testing.T) {
	plugin := stubPlugin{services: []string{"grpc.health.v1.Health"}}
	if _, err := RegisterPlugins(grpc.NewServer(), []core.Plugin{plugin}); err == nil {
		t.Fatalf("expected error for unregistered service")
	}
}
