package server

import (
	"bytes"
	"net/http"
	"sort"
	"time"
)

// DashboardsHandler serves dashboard JSON from an in-memory map keyed by
// URL path. The directory path itself lists what is available.
func DashboardsHandler(dashboards map[string][]byte) http.Handler {
	paths := make([]string, 0, len(dashboards))
	for path := range dashboards {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dashboards" || r.URL.Path == "/dashboards/" {
			writeJSON(w, http.StatusOK, paths)
			return
		}
		data, ok := dashboards[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		http.ServeContent(w, r, r.URL.Path, time.Time{}, bytes.NewReader(data))
	})
}
