package main

import (
	"encoding/json"
	"net/http"

	"github.com/charithmadhuranga/fledge/health"
)

// healthHandler mirrors the health package's own documented HTTP example:
// the package stays transport-agnostic and callers translate
// AggregateHealth into an HTTP response.
func healthHandler(monitor *health.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		system := monitor.AggregateHealth(appName)

		status := http.StatusOK
		if system.IsUnhealthy() {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(system)
	}
}
