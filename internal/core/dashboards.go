package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DashboardPath is the URL path a dashboard is served under.
func DashboardPath(pluginID, name string) string {
	return "/dashboards/" + pluginID + "/" + name + ".json"
}

// DashboardsMap materializes dashboard content to URL paths.
func DashboardsMap(plugins []Plugin) map[string][]byte {
	result := make(map[string][]byte)
	for _, plugin := range plugins {
		id := plugin.Manifest().PluginID
		for _, dash := range plugin.Dashboards() {
			result[DashboardPath(id, dash.Name)] = dash.JSON
		}
	}
	return result
}

// WriteDashboards writes dashboards to disk for Grafana provisioning.
// Files whose content is unchanged are left alone so Grafana does not
// reload them; changed files are replaced atomically.
func WriteDashboards(dir string, plugins []Plugin) error {
	if dir == "" {
		return nil
	}

	for _, plugin := range plugins {
		id := plugin.Manifest().PluginID
		for _, dash := range plugin.Dashboards() {
			if !json.Valid(dash.JSON) {
				return fmt.Errorf("dashboard %s/%s is not valid JSON", id, dash.Name)
			}
			pluginDir := filepath.Join(dir, id)
			if err := os.MkdirAll(pluginDir, 0o755); err != nil {
				return fmt.Errorf("create dashboard dir: %w", err)
			}
			path := filepath.Join(pluginDir, dash.Name+".json")
			if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, dash.JSON) {
				continue
			}
			if err := writeFileAtomic(path, dash.JSON); err != nil {
				return fmt.Errorf("write dashboard %s: %w", path, err)
			}
		}
	}

	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dashboard-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
