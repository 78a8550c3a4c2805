package controller

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter creates and configures the Gorilla mux router
func (c *Controller) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	r.Use(loggingMiddleware)

	// Tracking table
	r.HandleFunc("/api/fingerprints", c.HandleListFingerprints).Methods("GET")
	r.HandleFunc("/api/fingerprints", c.HandleResetFingerprints).Methods("DELETE")
	r.HandleFunc("/api/fingerprints/{id}", c.HandleGetFingerprint).Methods("GET")
	r.HandleFunc("/api/fingerprints/{id}/events", c.HandleFingerprintEvents).Methods("GET")
	r.HandleFunc("/api/fingerprints/{id}/history", c.HandleFingerprintHistory).Methods("GET")
	r.HandleFunc("/api/dump", c.HandleDump).Methods("GET")

	// Event ingestion
	r.HandleFunc("/api/events", c.HandleRecentEvents).Methods("GET")
	r.HandleFunc("/api/events", c.HandleIngestEvents).Methods("POST")

	// Snapshots
	r.HandleFunc("/api/snapshots", c.HandleListSnapshots).Methods("GET")
	r.HandleFunc("/api/snapshots", c.HandleCreateSnapshot).Methods("POST")
	r.HandleFunc("/api/snapshots/{id}", c.HandleGetSnapshot).Methods("GET")

	r.HandleFunc("/api/notion", c.HandleNotionExport).Methods("POST")
	r.HandleFunc("/api/ws", c.HandleWebSocket).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})).Methods("GET")

	return r
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		next.ServeHTTP(w, r)

		slog.Info(fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[http] failed to encode response", "error", err)
	}
}
