package sqlutil

import (
	"testing"
	"time"

	"sql-tracker/pkg/logs"
)

func TestExtractEvents(t *testing.T) {
	tests := []struct {
		name     string
		messages []logs.LogMessage
		expected int
	}{
		{
			name:     "empty messages",
			messages: []logs.LogMessage{},
			expected: 0,
		},
		{
			name: "message with sql format",
			messages: []logs.LogMessage{
				{Entry: &logs.LogEntry{Message: "[sql]: SELECT * FROM users", Fields: map[string]string{}}},
			},
			expected: 1,
		},
		{
			name: "message with query type",
			messages: []logs.LogMessage{
				{Entry: &logs.LogEntry{Message: "SELECT * FROM users", Fields: map[string]string{"type": "query"}}},
			},
			expected: 1,
		},
		{
			name: "non-SQL message",
			messages: []logs.LogMessage{
				{Entry: &logs.LogEntry{Message: "regular log message", Fields: map[string]string{}}},
			},
			expected: 0,
		},
		{
			name: "empty statement",
			messages: []logs.LogMessage{
				{Entry: &logs.LogEntry{Message: "[sql]:   ", Fields: map[string]string{}}},
				{Entry: nil},
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractEvents(tt.messages); len(got) != tt.expected {
				t.Errorf("ExtractEvents() returned %d events, want %d", len(got), tt.expected)
			}
		})
	}
}

func TestExtractEventPostgres(t *testing.T) {
	entry := logs.ParseLogLine("2024-03-01 10:00:00.000 UTC [4242] LOG:  duration: 12.5 ms  statement: SELECT * FROM users WHERE id = 5")

	ev, ok := ExtractEvent(logs.LogMessage{ContainerID: "db", Entry: entry})
	if !ok {
		t.Fatal("ExtractEvent() found no event")
	}

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !ev.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", ev.StartedAt, start)
	}
	if ev.Duration() != 12500*time.Microsecond {
		t.Errorf("Duration() = %v, want 12.5ms", ev.Duration())
	}
	if ev.Payload.SQL != "SELECT * FROM users WHERE id = 5" {
		t.Errorf("SQL = %q", ev.Payload.SQL)
	}
	if ev.Payload.Connection != "db" {
		t.Errorf("Connection = %q, want db", ev.Payload.Connection)
	}
	if ev.TransactionID != "4242" {
		t.Errorf("TransactionID = %q, want 4242", ev.TransactionID)
	}
	if ev.Name != EventName {
		t.Errorf("Name = %q, want %q", ev.Name, EventName)
	}
}

func TestExtractEventApplicationLog(t *testing.T) {
	entry := logs.ParseLogLine(`Oct  3 21:53:30.924888 TRC pkg/repository/user/repository.go:108 > [sql]: SELECT * FROM users WHERE id = $1 db.operation=select duration=2.5 location=["/app/pkg/repository/user/repository.go:108","/app/pkg/handlers/user.go:40"] request_id=abc`)
	read := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ev, ok := ExtractEvent(logs.LogMessage{Timestamp: read, Entry: entry})
	if !ok {
		t.Fatal("ExtractEvent() found no event")
	}
	if ev.Payload.SQL != "SELECT * FROM users WHERE id = $1" {
		t.Errorf("SQL = %q", ev.Payload.SQL)
	}
	if ev.Duration() != 2500*time.Microsecond {
		t.Errorf("Duration() = %v, want 2.5ms", ev.Duration())
	}
	if len(ev.Payload.Source) != 2 || ev.Payload.Source[1] != "/app/pkg/handlers/user.go:40" {
		t.Errorf("Source = %v", ev.Payload.Source)
	}
	if ev.TransactionID != "abc" {
		t.Errorf("TransactionID = %q, want abc", ev.TransactionID)
	}
	if ev.StartedAt.Month() != time.October || ev.StartedAt.Day() != 3 {
		t.Errorf("StartedAt = %v, want the logged timestamp", ev.StartedAt)
	}
}

func TestExtractEventJSON(t *testing.T) {
	entry := logs.ParseLogLine(`{"msg":"query","sql":"UPDATE t SET a = 1","duration_ms":"0.75","request_id":"r1"}`)
	read := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ev, ok := ExtractEvent(logs.LogMessage{Timestamp: read, Entry: entry})
	if !ok {
		t.Fatal("ExtractEvent() found no event")
	}
	if ev.Payload.SQL != "UPDATE t SET a = 1" {
		t.Errorf("SQL = %q", ev.Payload.SQL)
	}
	if !ev.StartedAt.Equal(read) {
		t.Errorf("StartedAt = %v, want read time %v", ev.StartedAt, read)
	}
	if ev.Duration() != 750*time.Microsecond {
		t.Errorf("Duration() = %v, want 750µs", ev.Duration())
	}
	if ev.TransactionID != "r1" {
		t.Errorf("TransactionID = %q, want r1", ev.TransactionID)
	}
}

func TestParseMS(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"1.5", 1.5},
		{" 3 ", 3},
		{"2ms", 2},
		{"", 0},
		{"abc", 0},
		{"NaN", 0},
	}

	for _, tt := range tests {
		if got := parseMS(tt.input); got != tt.expected {
			t.Errorf("parseMS(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}
