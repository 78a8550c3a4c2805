package controller

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sql-tracker/pkg/report"
	"sql-tracker/pkg/tracker"

	"github.com/gorilla/mux"
)

// ListQuery holds the query string of GET /api/fingerprints.
type ListQuery struct {
	Sort    string `schema:"sort"`
	Limit   int    `schema:"limit"`
	Command string `schema:"command"`
}

// FingerprintView is the JSON form of a tracked fingerprint.
type FingerprintView struct {
	ID              string    `json:"id"`
	Key             string    `json:"key"`
	SQL             string    `json:"sql"`
	Command         string    `json:"command"`
	Count           int64     `json:"count"`
	TotalDurationMS float64   `json:"totalDurationMs"`
	AvgDurationMS   float64   `json:"avgDurationMs"`
	LastDurationMS  float64   `json:"lastDurationMs"`
	Sources         []string  `json:"sources,omitempty"`
	FirstSeen       time.Time `json:"firstSeen"`
	LastSeen        time.Time `json:"lastSeen"`
}

// FingerprintList is the response of GET /api/fingerprints.
type FingerprintList struct {
	Fingerprints    int               `json:"fingerprints"`
	Queries         int64             `json:"queries"`
	TotalDurationMS float64           `json:"totalDurationMs"`
	Entries         []FingerprintView `json:"entries"`
}

func toMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func newFingerprintView(e tracker.Entry) FingerprintView {
	rec := e.Record
	return FingerprintView{
		ID:              e.ID,
		Key:             e.Key,
		SQL:             rec.SQL,
		Command:         tracker.Command(rec.SQL),
		Count:           rec.Count,
		TotalDurationMS: toMS(rec.TotalDuration),
		AvgDurationMS:   toMS(rec.AvgDuration()),
		LastDurationMS:  toMS(rec.LastDuration),
		Sources:         rec.Sources,
		FirstSeen:       rec.FirstSeen,
		LastSeen:        rec.LastSeen,
	}
}

// buildList ranks data and keeps the first limit entries matching command.
func buildList(data map[string]tracker.Record, sortBy string, limit int, command string) (FingerprintList, error) {
	entries, err := tracker.Sort(data, sortBy)
	if err != nil {
		return FingerprintList{}, err
	}

	count, total := report.Totals(data)
	list := FingerprintList{
		Fingerprints:    len(data),
		Queries:         count,
		TotalDurationMS: toMS(total),
		Entries:         []FingerprintView{},
	}
	for _, e := range entries {
		if command != "" && !strings.EqualFold(tracker.Command(e.Record.SQL), command) {
			continue
		}
		list.Entries = append(list.Entries, newFingerprintView(e))
		if limit > 0 && len(list.Entries) >= limit {
			break
		}
	}
	return list, nil
}

// HandleListFingerprints returns the ranked tracking table
func (c *Controller) HandleListFingerprints(w http.ResponseWriter, r *http.Request) {
	q := ListQuery{Sort: c.sortBy}
	if err := c.decoder.Decode(&q, r.URL.Query()); err != nil {
		http.Error(w, "Invalid query: "+err.Error(), http.StatusBadRequest)
		return
	}
	if q.Limit < 0 {
		http.Error(w, "limit must not be negative", http.StatusBadRequest)
		return
	}

	list, err := buildList(c.handler.Data(), q.Sort, q.Limit, q.Command)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, list)
}

// HandleGetFingerprint returns one fingerprint by id
func (c *Controller) HandleGetFingerprint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	key, rec, ok := c.handler.Lookup(id)
	if !ok {
		http.Error(w, "Fingerprint not found", http.StatusNotFound)
		return
	}
	writeJSON(w, newFingerprintView(tracker.Entry{Key: key, ID: id, Record: rec}))
}

// HandleResetFingerprints clears the tracking table and the recent events
func (c *Controller) HandleResetFingerprints(w http.ResponseWriter, r *http.Request) {
	c.handler.Reset()
	c.events.Reset()
	slog.Info("[http] tracking table cleared")

	c.broadcast(WSMessage{Type: "reset"})

	writeJSON(w, map[string]string{
		"message": "Tracking table cleared",
	})
}

// HandleDump returns the tracking table in dump file format
func (c *Controller) HandleDump(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, report.NewDump(c.handler.Data(), time.Now()))
}
