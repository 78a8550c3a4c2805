// Package sqlutil turns parsed log entries into tracker events.
package sqlutil

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"sql-tracker/pkg/logs"
	"sql-tracker/pkg/tracker"
)

// EventName is the name given to events recovered from logs.
const EventName = "sql.log"

var (
	jsonSQLKeys      = []string{"sql", "query", "statement"}
	jsonDurationKeys = []string{"duration_ms", "duration"}
	transactionKeys  = []string{"request_id", "trace_id", "transaction_id", logs.FieldPID}
)

// ExtractEvent builds an event from a log message carrying an executed
// statement. The start time comes from the entry's timestamp (falling back to
// the time the message was read) and the finish time is start plus the
// logged duration in milliseconds.
func ExtractEvent(msg logs.LogMessage) (tracker.Event, bool) {
	e := msg.Entry
	if e == nil {
		return tracker.Event{}, false
	}

	var (
		sql        string
		durationMS float64
		sources    []string
	)

	switch {
	case e.IsJSON:
		sql = firstJSONString(e.JSONFields, jsonSQLKeys)
		durationMS = firstJSONNumber(e.JSONFields, jsonDurationKeys)
		if loc, ok := e.JSONFields["location"].([]interface{}); ok {
			for _, v := range loc {
				if s, ok := v.(string); ok {
					sources = append(sources, s)
				}
			}
		}
	case e.Fields[logs.FieldType] == logs.TypeQuery:
		sql = e.Message
		durationMS = parseMS(e.Fields[logs.FieldDurationMS])
	default:
		idx := strings.Index(e.Message, "[sql]:")
		if idx < 0 {
			return tracker.Event{}, false
		}
		sql = e.Message[idx+len("[sql]:"):]
		durationMS = parseMS(e.Fields["duration"])
		if durationMS == 0 {
			durationMS = parseMS(e.Fields[logs.FieldDurationMS])
		}
		sources = parseLocation(e.Fields["location"])
		if len(sources) == 0 && e.File != "" {
			sources = []string{e.File}
		}
	}

	sql = strings.TrimSpace(sql)
	if sql == "" {
		return tracker.Event{}, false
	}

	start, ok := logs.ParseTimestamp(e.Timestamp)
	if !ok {
		start = msg.Timestamp
	}
	if start.IsZero() {
		start = time.Now()
	}
	finish := start.Add(time.Duration(durationMS * float64(time.Millisecond)))

	return tracker.Event{
		Name:          EventName,
		StartedAt:     start,
		FinishedAt:    finish,
		TransactionID: transactionID(e),
		Payload: &tracker.Payload{
			SQL:        sql,
			Source:     sources,
			Connection: msg.ContainerID,
		},
	}, true
}

// ExtractEvents returns the events found in messages, in order.
func ExtractEvents(messages []logs.LogMessage) []tracker.Event {
	events := []tracker.Event{}
	for _, msg := range messages {
		if ev, ok := ExtractEvent(msg); ok {
			events = append(events, ev)
		}
	}
	return events
}

func parseMS(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "ms"), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// parseLocation reads a location=["file:line",...] field.
func parseLocation(s string) []string {
	if s == "" {
		return nil
	}
	var locs []string
	if err := json.Unmarshal([]byte(s), &locs); err != nil {
		return []string{s}
	}
	return locs
}

func transactionID(e *logs.LogEntry) string {
	for _, key := range transactionKeys {
		if v := e.Fields[key]; v != "" {
			return v
		}
		if v, ok := e.JSONFields[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func firstJSONString(m map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstJSONNumber(m map[string]interface{}, keys []string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case string:
			if ms := parseMS(v); ms != 0 {
				return ms
			}
		}
	}
	return 0
}
