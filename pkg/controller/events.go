package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"sql-tracker/pkg/eventstore"
	"sql-tracker/pkg/tracker"

	"github.com/gorilla/mux"
)

// maxIngestBody bounds the size of a POST /api/events body.
const maxIngestBody = 8 << 20

// EventInput is one statement execution posted by an external process.
type EventInput struct {
	Name          string    `json:"name"`
	SQL           string    `json:"sql"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	DurationMS    *float64  `json:"durationMs,omitempty"`
	TransactionID string    `json:"transactionId"`
	Source        []string  `json:"source"`
	Connection    string    `json:"connection"`
}

// Event converts the input, defaulting a missing start to now and deriving
// the finish from DurationMS when it is set.
func (in EventInput) Event(now time.Time) tracker.Event {
	start := in.StartedAt
	if start.IsZero() {
		start = now
	}
	finish := in.FinishedAt
	if in.DurationMS != nil {
		finish = start.Add(time.Duration(*in.DurationMS * float64(time.Millisecond)))
	} else if finish.IsZero() {
		finish = start
	}

	name := in.Name
	if name == "" {
		name = "sql.http"
	}

	return tracker.Event{
		Name:          name,
		StartedAt:     start,
		FinishedAt:    finish,
		TransactionID: in.TransactionID,
		Payload: &tracker.Payload{
			SQL:        in.SQL,
			Source:     in.Source,
			Connection: in.Connection,
		},
	}
}

// decodeEventInputs accepts either a single object or an array of objects.
func decodeEventInputs(r io.Reader) ([]EventInput, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		var inputs []EventInput
		if err := json.Unmarshal(body, &inputs); err != nil {
			return nil, err
		}
		return inputs, nil
	}

	var in EventInput
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}
	return []EventInput{in}, nil
}

// HandleIngestEvents records posted statement executions
func (c *Controller) HandleIngestEvents(w http.ResponseWriter, r *http.Request) {
	inputs, err := decodeEventInputs(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		http.Error(w, "Invalid event body: "+err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now()
	accepted := 0
	for _, in := range inputs {
		if c.handler.Handle(in.Event(now)) {
			accepted++
		}
	}

	writeJSON(w, map[string]int{
		"accepted": accepted,
		"rejected": len(inputs) - accepted,
	})
}

// HandleRecentEvents returns the most recently tracked executions
func (c *Controller) HandleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, c.events.Recent(limit))
}

// HandleFingerprintEvents returns recent executions of one fingerprint
func (c *Controller) HandleFingerprintEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events := c.events.ByFingerprint(mux.Vars(r)["id"], limit)
	if events == nil {
		events = []*eventstore.Event{}
	}
	writeJSON(w, events)
}

func parseLimit(r *http.Request, def int) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	return n, nil
}
