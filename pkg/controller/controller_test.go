package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sql-tracker/pkg/eventstore"
	"sql-tracker/pkg/report"
	"sql-tracker/pkg/store"
	"sql-tracker/pkg/tracker"

	"github.com/gorilla/websocket"
)

type fakeExporter struct {
	title   string
	entries []tracker.Entry
}

func (f *fakeExporter) Export(ctx context.Context, title string, entries []tracker.Entry) (string, error) {
	f.title = title
	f.entries = entries
	return "https://notion.so/report", nil
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *tracker.Handler) {
	t.Helper()
	events := eventstore.New(100, 0)
	h := tracker.NewHandler(&tracker.Config{
		Enabled:           true,
		TrackedSQLCommand: []string{"SELECT", "INSERT", "UPDATE", "DELETE"},
	}, tracker.WithObserver(events))

	c := NewController(h, events, opts)
	srv := httptest.NewServer(c.SetupRouter())
	t.Cleanup(srv.Close)
	return srv, h
}

func record(h *tracker.Handler, sql string, d time.Duration) {
	now := time.Now()
	h.Call("sql.query", now, now.Add(d), "tx", &tracker.Payload{SQL: sql})
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode error = %v", err)
	}
}

func TestListFingerprints(t *testing.T) {
	srv, h := newTestServer(t, Options{})

	for i := 0; i < 3; i++ {
		record(h, "SELECT * FROM users WHERE id = 1", 4*time.Millisecond)
	}
	record(h, "INSERT INTO logs VALUES (1)", 20*time.Millisecond)

	tests := []struct {
		name      string
		query     string
		status    int
		wantFirst string
		wantLen   int
	}{
		{"default count order", "", http.StatusOK, "SELECT * FROM users WHERE id = ???", 2},
		{"duration order", "?sort=duration", http.StatusOK, "INSERT INTO logs VALUES (???)", 2},
		{"limit", "?limit=1", http.StatusOK, "SELECT * FROM users WHERE id = ???", 1},
		{"command filter", "?command=insert", http.StatusOK, "INSERT INTO logs VALUES (???)", 1},
		{"unknown sort", "?sort=name", http.StatusBadRequest, "", 0},
		{"bad limit", "?limit=abc", http.StatusBadRequest, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, "GET", srv.URL+"/api/fingerprints"+tt.query, "")
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}

			var list FingerprintList
			decode(t, resp, &list)
			if list.Fingerprints != 2 || list.Queries != 4 {
				t.Errorf("totals = %d fingerprints, %d queries", list.Fingerprints, list.Queries)
			}
			if len(list.Entries) != tt.wantLen {
				t.Fatalf("len(Entries) = %d, want %d", len(list.Entries), tt.wantLen)
			}
			if list.Entries[0].SQL != tt.wantFirst {
				t.Errorf("first SQL = %q, want %q", list.Entries[0].SQL, tt.wantFirst)
			}
		})
	}
}

func TestGetFingerprintAndEvents(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	record(h, "UPDATE users SET name = 'a' WHERE id = 3", 2*time.Millisecond)
	record(h, "UPDATE users SET name = 'b' WHERE id = 4", 4*time.Millisecond)

	id := tracker.FingerprintID("update users set name = ??? where id = ???")

	resp := do(t, "GET", srv.URL+"/api/fingerprints/"+id, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var view FingerprintView
	decode(t, resp, &view)
	if view.Count != 2 || view.AvgDurationMS != 3 || view.LastDurationMS != 4 || view.Command != "UPDATE" {
		t.Errorf("view = %+v", view)
	}

	resp = do(t, "GET", srv.URL+"/api/fingerprints/"+id+"/events?limit=1", "")
	var events []eventstore.Event
	decode(t, resp, &events)
	if len(events) != 1 || !strings.Contains(events[0].SQL, "'b'") {
		t.Errorf("events = %+v, want the newest raw statement", events)
	}

	resp = do(t, "GET", srv.URL+"/api/fingerprints/0000000000000000", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/api/fingerprints/0000000000000000/events", "")
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("unknown id events = %s, want []", body)
	}
}

func TestIngestEvents(t *testing.T) {
	srv, h := newTestServer(t, Options{})

	body := `[
		{"sql": "SELECT * FROM a WHERE id = 1", "durationMs": 2.5, "source": ["app/a.go:1"]},
		{"sql": "select * from A where id = 2", "startedAt": "2024-01-01T00:00:00Z", "finishedAt": "2024-01-01T00:00:00.004Z"},
		{"sql": "SHOW TABLES"},
		{"sql": ""}
	]`
	resp := do(t, "POST", srv.URL+"/api/events", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result map[string]int
	decode(t, resp, &result)
	if result["accepted"] != 2 || result["rejected"] != 2 {
		t.Errorf("result = %v, want 2 accepted, 2 rejected", result)
	}

	rec, ok := h.Data()["select * from a where id = ???"]
	if !ok {
		t.Fatalf("record missing: %v", h.Data())
	}
	if rec.Count != 2 || rec.TotalDuration != 6500*time.Microsecond || rec.LastDuration != 4*time.Millisecond {
		t.Errorf("record = %+v", rec)
	}

	resp = do(t, "POST", srv.URL+"/api/events", `{"sql": "DELETE FROM a"}`)
	decode(t, resp, &result)
	if result["accepted"] != 1 {
		t.Errorf("single object result = %v", result)
	}

	resp = do(t, "POST", srv.URL+"/api/events", `{"sql":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/api/events?limit=2", "")
	var recent []eventstore.Event
	decode(t, resp, &recent)
	if len(recent) != 2 || recent[0].SQL != "DELETE FROM a" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestResetFingerprints(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	record(h, "SELECT 1 FROM a WHERE b = 1", time.Millisecond)

	resp := do(t, "DELETE", srv.URL+"/api/fingerprints", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d after reset, want 0", h.Len())
	}

	resp = do(t, "GET", srv.URL+"/api/events", "")
	var recent []eventstore.Event
	decode(t, resp, &recent)
	if len(recent) != 0 {
		t.Errorf("events after reset = %d, want 0", len(recent))
	}
}

func TestDump(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	record(h, "SELECT * FROM users WHERE id = 1", 3*time.Millisecond)

	resp := do(t, "GET", srv.URL+"/api/dump", "")
	var dump report.Dump
	decode(t, resp, &dump)
	if dump.FormatVersion != report.FormatVersion {
		t.Errorf("FormatVersion = %q", dump.FormatVersion)
	}
	rec, ok := dump.Data["select * from users where id = ???"]
	if !ok || rec.Count != 1 || rec.TotalDurationMS != 3 {
		t.Errorf("dump record = %+v, %v", rec, ok)
	}
}

func TestSnapshots(t *testing.T) {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv, h := newTestServer(t, Options{Store: st})
	record(h, "SELECT * FROM users WHERE id = 1", time.Millisecond)
	record(h, "SELECT * FROM users WHERE id = 2", time.Millisecond)

	resp := do(t, "POST", srv.URL+"/api/snapshots", `{"label": "before deploy"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID      uint  `json:"id"`
		Queries int64 `json:"queries"`
	}
	decode(t, resp, &created)
	if created.ID == 0 || created.Queries != 2 {
		t.Errorf("created = %+v", created)
	}

	resp = do(t, "POST", srv.URL+"/api/snapshots", "")
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("create without body status = %d, want 201", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/api/snapshots", "")
	var snaps []store.Snapshot
	decode(t, resp, &snaps)
	if len(snaps) != 2 {
		t.Errorf("len(snapshots) = %d, want 2", len(snaps))
	}

	resp = do(t, "GET", srv.URL+"/api/snapshots/"+jsonNumber(created.ID), "")
	var snap store.Snapshot
	decode(t, resp, &snap)
	if snap.Label != "before deploy" || len(snap.Stats) != 1 || snap.Stats[0].Count != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	id := tracker.FingerprintID("select * from users where id = ???")
	resp = do(t, "GET", srv.URL+"/api/fingerprints/"+id+"/history", "")
	var history []store.HistoryPoint
	decode(t, resp, &history)
	if len(history) != 2 {
		t.Errorf("len(history) = %d, want 2", len(history))
	}

	for path, want := range map[string]int{
		"/api/snapshots/999": http.StatusNotFound,
		"/api/snapshots/abc": http.StatusBadRequest,
	} {
		if resp := do(t, "GET", srv.URL+path, ""); resp.StatusCode != want {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func jsonNumber(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestEndpointsWithoutBackends(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	tests := []struct {
		method, path string
	}{
		{"GET", "/api/snapshots"},
		{"POST", "/api/snapshots"},
		{"GET", "/api/snapshots/1"},
		{"GET", "/api/fingerprints/abc/history"},
		{"POST", "/api/notion"},
	}
	for _, tt := range tests {
		resp := do(t, tt.method, srv.URL+tt.path, "")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s %s status = %d, want 503", tt.method, tt.path, resp.StatusCode)
		}
	}
}

func TestNotionExport(t *testing.T) {
	exp := &fakeExporter{}
	srv, h := newTestServer(t, Options{Exporter: exp, TopN: 1})
	record(h, "SELECT * FROM a WHERE id = 1", time.Millisecond)
	record(h, "SELECT * FROM a WHERE id = 2", time.Millisecond)
	record(h, "SELECT * FROM b WHERE id = 1", 10*time.Millisecond)

	resp := do(t, "POST", srv.URL+"/api/notion", `{"title": "weekly"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result map[string]string
	decode(t, resp, &result)
	if result["url"] != "https://notion.so/report" {
		t.Errorf("url = %q", result["url"])
	}
	if exp.title != "weekly" {
		t.Errorf("title = %q, want weekly", exp.title)
	}
	if len(exp.entries) != 1 || exp.entries[0].Key != "select * from a where id = ???" {
		t.Errorf("entries = %+v, want top fingerprint by count", exp.entries)
	}

	resp = do(t, "POST", srv.URL+"/api/notion", `{"sortBy": "duration", "limit": 5}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(exp.entries) != 2 || exp.entries[0].Key != "select * from b where id = ???" {
		t.Errorf("entries = %+v, want duration order", exp.entries)
	}
	if !strings.HasPrefix(exp.title, "SQL tracker report ") {
		t.Errorf("default title = %q", exp.title)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	record(h, "SELECT * FROM a WHERE id = 1", time.Millisecond)

	resp := do(t, "GET", srv.URL+"/metrics", "")
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`sql_tracker_queries_total{command="select",fingerprint="` + tracker.FingerprintID("select * from a where id = ???") + `"} 1`,
		"sql_tracker_fingerprints 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestWebSocketPush(t *testing.T) {
	srv, h := newTestServer(t, Options{TopN: 5})
	record(h, "SELECT * FROM a WHERE id = 1", time.Millisecond)
	record(h, "SELECT * FROM b WHERE id = 1", 9*time.Millisecond)
	record(h, "SELECT * FROM b WHERE id = 2", 9*time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() FingerprintList {
		t.Helper()
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg.Type != "fingerprints" {
			t.Fatalf("message type = %q, want fingerprints", msg.Type)
		}
		var list FingerprintList
		if err := json.Unmarshal(msg.Data, &list); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		return list
	}

	list := read()
	if len(list.Entries) != 2 || list.Entries[0].Count != 2 {
		t.Fatalf("initial push = %+v", list)
	}

	view, _ := json.Marshal(ClientView{SortBy: "avg", Limit: 1})
	if err := conn.WriteJSON(WSMessage{Type: "view", Data: view}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	list = read()
	if len(list.Entries) != 1 || list.Entries[0].Key != "select * from b where id = ???" {
		t.Errorf("view push = %+v", list.Entries)
	}
}
