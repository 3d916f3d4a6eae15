package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are reported under their own path.
var staticRoutes = map[string]bool{
	"/":            true,
	"/health":      true,
	"/ready":       true,
	"/metrics":     true,
	"/snapshot":    true,
	"/territories": true,
}

// unmetered paths are polled constantly and would drown the real traffic.
var unmetered = map[string]bool{
	"/health": true,
	"/ready":  true,
}

// normalizePath maps a request path to the route it was served by so the
// path label stays bounded.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 3 && parts[1] == "territories" && parts[2] != "":
		return "/territories/{id}"
	case len(parts) == 4 && parts[1] == "owners" && parts[2] != "" && parts[3] == "territories":
		return "/owners/{owner}/territories"
	}
	return "other"
}

// HTTPMetrics records duration, sizes and a count for every request except
// the health checks.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if unmetered[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			var requestSize int64
			if r.ContentLength > 0 {
				requestSize = r.ContentLength
			}
			metrics.ObserveHTTPRequest(r.Method, normalizePath(r.URL.Path), strconv.Itoa(rec.status),
				time.Since(start).Seconds(), requestSize, rec.written)
		})
	}
}
