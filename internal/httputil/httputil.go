// Package httputil provides HTTP helpers for the ingestion API.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/symdex/symdex/internal/log"
)

// RenderJSON writes v as a JSON response with the given status code.
func RenderJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("httputil: failed to encode response")
	}
}

// HealthCheck is a simple healthcheck handler that responds to GET and HEAD
// http requests.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte(http.StatusText(http.StatusOK)))
	}
}
