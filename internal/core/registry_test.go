package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

type stubPlugin struct {
	id            string
	name          string
	version       string
	services      []string
	dashboards    []Dashboard
	health        HealthStatus
	healthMessage string
	collectors    []prometheus.Collector
}

func (s stubPlugin) ID() string { return s.id }

func (s stubPlugin) Manifest() Manifest {
	return Manifest{
		PluginID:    s.id,
		DisplayName: s.name,
		Version:     s.version,
		Services:    s.services,
	}
}

func (s stubPlugin) Dashboards() []Dashboard { return s.dashboards }

func (s stubPlugin) RegisterGRPC(*grpc.Server) {}

func (s stubPlugin) Collectors() []prometheus.Collector { return s.collectors }

func (s stubPlugin) Health() HealthStatus { return s.health }

func (s stubPlugin) HealthMessage() string { return s.healthMessage }

func newStubPlugin(id string) stubPlugin {
	return stubPlugin{
		id:         id,
		name:       "Demo",
		version:    "0.1.0",
		services:   []string{"grpc.health.v1.Health"},
		health:     HealthHealthy,
		dashboards: []Dashboard{{Name: "demo", JSON: []byte("{}")}},
	}
}

func TestRegistryList(t *testing.T) {
	registry := NewRegistry([]Plugin{newStubPlugin("demo")})

	got := registry.List()
	if len(got) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(got))
	}
	if got[0].PluginID != "demo" || got[0].DisplayName != "Demo" || got[0].Version != "0.1.0" {
		t.Fatalf("unexpected plugin summary: %+v", got[0])
	}
	if got[0].Status != string(HealthHealthy) {
		t.Fatalf("unexpected health status: %s", got[0].Status)
	}
}

func TestRegistryDescribe(t *testing.T) {
	plugin := newStubPlugin("demo")
	plugin.health = HealthDegraded
	plugin.healthMessage = "kitchen: timeout"
	registry := NewRegistry([]Plugin{plugin})

	desc, ok := registry.Describe("demo")
	if !ok {
		t.Fatalf("expected plugin descriptor")
	}
	if desc.HealthMessage != "kitchen: timeout" || desc.Status != string(HealthDegraded) {
		t.Fatalf("unexpected health: %+v", desc)
	}
	if len(desc.Dashboards) != 1 || desc.Dashboards[0] != "/dashboards/demo/demo.json" {
		t.Fatalf("unexpected dashboards: %v", desc.Dashboards)
	}

	if _, ok := registry.Describe("missing"); ok {
		t.Fatalf("expected missing plugin")
	}
}

func TestFilterPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo"), newStubPlugin("extra")}

	active := FilterPlugins(compiled, map[string]bool{"demo": true}, false)
	if len(active) != 1 || active[0].ID() != "demo" {
		t.Fatalf("unexpected active plugins: %v", active)
	}

	active = FilterPlugins(compiled, map[string]bool{}, true)
	if len(active) != 2 {
		t.Fatalf("expected all plugins, got %d", len(active))
	}
}

func TestValidateEnabledPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo")}

	if err := ValidateEnabledPlugins(compiled, map[string]bool{"demo": true}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ValidateEnabledPlugins(compiled, map[string]bool{"missing": true}, false); err == nil {
		t.Fatalf("expected error for missing plugin")
	}
}

func TestValidatePlugins(t *testing.T) {
	if err := ValidatePlugins([]Plugin{newStubPlugin("demo"), newStubPlugin("extra")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidatePlugins([]Plugin{newStubPlugin("demo"), newStubPlugin("demo")}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if err := ValidatePlugins([]Plugin{newStubPlugin("Demo")}); err == nil {
		t.Fatalf("expected pattern error")
	}

	noVersion := newStubPlugin("demo")
	noVersion.version = ""
	if err := ValidatePlugins([]Plugin{noVersion}); err == nil {
		t.Fatalf("expected version error")
	}

	dupDash := newStubPlugin("demo")
	dupDash.dashboards = append(dupDash.dashboards, Dashboard{Name: "demo", JSON: []byte("{}")})
	if err := ValidatePlugins([]Plugin{dupDash}); err == nil {
		t.Fatalf("expected duplicate dashboard error")
	}

	badDash := newStubPlugin("demo")
	badDash.dashboards = []Dashboard{{Name: "Overview", JSON: []byte("{}")}}
	if err := ValidatePlugins([]Plugin{badDash}); err == nil {
		t.Fatalf("expected dashboard name error")
	}
}

func TestMetricsRegistry(t *testing.T) {
	plugin := newStubPlugin("demo")
	plugin.collectors = []prometheus.Collector{prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "demo_gauge",
		Help: "demo",
	})}

	families, err := MetricsRegistry([]Plugin{plugin}).Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "demo_gauge" {
		t.Fatalf("unexpected families: %v", families)
	}
}

func TestDashboardsMap(t *testing.T) {
	got := DashboardsMap([]Plugin{newStubPlugin("demo")})
	if string(got["/dashboards/demo/demo.json"]) != "{}" {
		t.Fatalf("unexpected dashboards map: %v", got)
	}
}

func TestWriteDashboards(t *testing.T) {
	dir := t.TempDir()
	plugins := []Plugin{newStubPlugin("demo")}
	if err := WriteDashboards(dir, plugins); err != nil {
		t.Fatalf("WriteDashboards error: %v", err)
	}
	path := filepath.Join(dir, "demo", "demo.json")
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "{}" {
		t.Fatalf("dashboard on disk = %q, %v", data, err)
	}

	broken := newStubPlugin("broken")
	broken.dashboards = []Dashboard{{Name: "bad", JSON: []byte("{")}}
	if err := WriteDashboards(dir, []Plugin{broken}); err == nil {
		t.Fatalf("expected invalid JSON error")
	}
	if err := WriteDashboards("", plugins); err != nil {
		t.Fatalf("empty dir should be a no-op: %v", err)
	}
}
