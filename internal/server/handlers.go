package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joshp123/mivac/internal/core"
)

type healthResponse struct {
	Status  string            `json:"status"`
	Plugins map[string]string `json:"plugins"`
}

// HealthHandler reports the health of every plugin. It answers 503 once
// any plugin is in ERROR.
func HealthHandler(plugins []core.Plugin) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok", Plugins: make(map[string]string, len(plugins))}
		status := http.StatusOK
		for _, p := range plugins {
			health := p.Health()
			resp.Plugins[p.ID()] = string(health)
			if health == core.HealthError {
				resp.Status = "error"
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, resp)
	}
}

// PluginsHandler lists the registry, or describes one plugin under /{id}.
func PluginsHandler(registry *core.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, registry.List())
	})
	r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
		desc, ok := registry.Describe(chi.URLParam(req, "id"))
		if !ok {
			http.NotFound(w, req)
			return
		}
		writeJSON(w, http.StatusOK, desc)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
