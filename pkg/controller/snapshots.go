package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"sql-tracker/pkg/store"

	"github.com/gorilla/mux"
)

// HandleListSnapshots lists saved snapshots, newest first
func (c *Controller) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if c.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	limit, err := parseLimit(r, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snaps, err := c.store.ListSnapshots(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []store.Snapshot{}
	}
	writeJSON(w, snaps)
}

// HandleCreateSnapshot saves the current tracking table
func (c *Controller) HandleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if c.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	var input struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := c.store.SaveSnapshot(r.Context(), input.Label, c.handler.Data())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"id":           snap.ID,
		"takenAt":      snap.TakenAt,
		"fingerprints": snap.Fingerprints,
		"queries":      snap.Queries,
	})
}

// HandleGetSnapshot returns a snapshot with its stats
func (c *Controller) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if c.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid snapshot ID", http.StatusBadRequest)
		return
	}

	snap, err := c.store.GetSnapshot(r.Context(), uint(id))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "Snapshot not found", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

// HandleFingerprintHistory returns one fingerprint's totals across snapshots
func (c *Controller) HandleFingerprintHistory(w http.ResponseWriter, r *http.Request) {
	if c.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	points, err := c.store.FingerprintHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []store.HistoryPoint{}
	}
	writeJSON(w, points)
}
