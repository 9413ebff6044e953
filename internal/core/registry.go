package core

import (
	"fmt"
	"sort"
	"sync"
)

// PluginSummary is the registry listing entry for one plugin.
type PluginSummary struct {
	PluginID    string `json:"plugin_id"`
	DisplayName string `json:"display_name"`
	Version     string `json:"version"`
	Status      string `json:"status"`
}

// PluginDescriptor is the detailed registry view of one plugin.
type PluginDescriptor struct {
	PluginSummary
	Services      []string `json:"services"`
	HealthMessage string   `json:"health_message,omitempty"`
	Dashboards    []string `json:"dashboards"`
}

// Registry provides plugin discovery to clients.
type Registry struct {
	plugins []Plugin
	mu      sync.RWMutex
}

func NewRegistry(plugins []Plugin) *Registry {
	return &Registry{plugins: plugins}
}

func (r *Registry) List() []PluginSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PluginSummary, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, summarize(p))
	}
	return out
}

func (r *Registry) Describe(id string) (PluginDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		manifest := p.Manifest()
		if manifest.PluginID != id {
			continue
		}
		descriptor := PluginDescriptor{
			PluginSummary: summarize(p),
			Services:      manifest.Services,
			HealthMessage: p.HealthMessage(),
		}
		for _, d := range p.Dashboards() {
			descriptor.Dashboards = append(descriptor.Dashboards, DashboardPath(manifest.PluginID, d.Name))
		}
		return descriptor, true
	}
	return PluginDescriptor{}, false
}

func summarize(p Plugin) PluginSummary {
	manifest := p.Manifest()
	return PluginSummary{
		PluginID:    manifest.PluginID,
		DisplayName: manifest.DisplayName,
		Version:     manifest.Version,
		Status:      string(p.Health()),
	}
}

// FilterPlugins keeps the plugins enabled in config, or all of them.
func FilterPlugins(compiled []Plugin, enabled map[string]bool, all bool) []Plugin {
	if all {
		return compiled
	}
	var active []Plugin
	for _, p := range compiled {
		if enabled[p.ID()] {
			active = append(active, p)
		}
	}
	return active
}

// ValidateEnabledPlugins fails when config enables a plugin that is not
// compiled in.
func ValidateEnabledPlugins(compiled []Plugin, enabled map[string]bool, all bool) error {
	if all {
		return nil
	}
	known := make(map[string]bool, len(compiled))
	for _, p := range compiled {
		known[p.ID()] = true
	}
	var missing []string
	for id, on := range enabled {
		if on && !known[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("enabled plugins not compiled in: %v", missing)
	}
	return nil
}
