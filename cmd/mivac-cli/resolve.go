package main

import (
	"fmt"
	"sort"
	"strings"
)

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

type deviceSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// resolveDevice matches input against device ids and names. An empty
// input selects the only device when exactly one is configured.
func resolveDevice(input string, devices []deviceSummary) (string, error) {
	if input == "" {
		if len(devices) == 1 {
			return devices[0].ID, nil
		}
		return "", fmt.Errorf("%d devices configured; pass --device", len(devices))
	}
	options := make(map[string]string, len(devices)*2)
	for _, d := range devices {
		options[d.ID] = d.ID
		if d.Name != "" {
			options[d.Name] = d.ID
		}
	}
	return resolveNamedID("device", input, options)
}

func resolveNamedID(kind, input string, options map[string]string) (string, error) {
	needle := normalizeName(input)
	for label, id := range options {
		if normalizeName(label) == needle {
			return id, nil
		}
	}
	available := make([]string, 0, len(options))
	for label := range options {
		available = append(available, label)
	}
	sort.Strings(available)
	return "", fmt.Errorf("%s %q not found. Available: %s", kind, input, strings.Join(available, ", "))
}
