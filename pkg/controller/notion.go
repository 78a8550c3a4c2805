package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sql-tracker/pkg/tracker"
)

// HandleNotionExport exports the ranked tracking table to Notion
func (c *Controller) HandleNotionExport(w http.ResponseWriter, r *http.Request) {
	if c.exporter == nil {
		http.Error(w, "Notion not configured. Set NOTION_API_KEY and NOTION_DATABASE_ID.", http.StatusServiceUnavailable)
		return
	}

	var input struct {
		Title  string `json:"title"`
		SortBy string `json:"sortBy"`
		Limit  int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if input.SortBy == "" {
		input.SortBy = c.sortBy
	}
	if input.Limit <= 0 {
		input.Limit = c.topN
	}
	if input.Title == "" {
		input.Title = fmt.Sprintf("SQL tracker report %s", time.Now().UTC().Format("2006-01-02 15:04"))
	}

	entries, err := tracker.Sort(c.handler.Data(), input.SortBy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(entries) > input.Limit {
		entries = entries[:input.Limit]
	}

	pageURL, err := c.exporter.Export(r.Context(), input.Title, entries)
	if err != nil {
		slog.Error("[notion] export failed", "error", err)
		http.Error(w, fmt.Sprintf("Failed to create Notion page: %v", err), http.StatusBadGateway)
		return
	}

	writeJSON(w, map[string]string{
		"url":     pageURL,
		"message": "Successfully exported to Notion",
	})
}
