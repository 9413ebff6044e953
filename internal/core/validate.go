package core

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var (
	pluginIDPattern      = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)
	dashboardNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// ValidatePlugins checks the plugin contract at startup: ids match their
// manifests and are unique, versions are set, and dashboards have URL-safe
// unique names with JSON content.
func ValidatePlugins(plugins []Plugin) error {
	seen := make(map[string]bool)
	for _, plugin := range plugins {
		id := plugin.ID()
		manifest := plugin.Manifest()
		switch {
		case id == "":
			return fmt.Errorf("plugin id is empty")
		case !pluginIDPattern.MatchString(id):
			return fmt.Errorf("plugin id %q does not match %s", id, pluginIDPattern.String())
		case manifest.PluginID != id:
			return fmt.Errorf("plugin id mismatch: id=%q manifest=%q", id, manifest.PluginID)
		case manifest.Version == "":
			return fmt.Errorf("plugin %s has no version", id)
		case seen[id]:
			return fmt.Errorf("duplicate plugin id: %s", id)
		}
		seen[id] = true

		names := make(map[string]bool)
		for _, dash := range plugin.Dashboards() {
			if !dashboardNamePattern.MatchString(dash.Name) {
				return fmt.Errorf("plugin %s: dashboard name %q does not match %s", id, dash.Name, dashboardNamePattern.String())
			}
			if names[dash.Name] {
				return fmt.Errorf("plugin %s: duplicate dashboard %s", id, dash.Name)
			}
			names[dash.Name] = true
			if !json.Valid(dash.JSON) {
				return fmt.Errorf("plugin %s: dashboard %s is not valid JSON", id, dash.Name)
			}
		}
	}
	return nil
}
