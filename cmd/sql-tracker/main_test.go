package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sql-tracker/pkg/report"
	"sql-tracker/pkg/tracker"
)

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SQL_TRACKER_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	cfgFile = ""
	debug = false

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSplitStatements(t *testing.T) {
	input := `
-- seed data
CREATE TABLE t (id INTEGER);
INSERT INTO t
  VALUES (1);

SELECT * FROM t WHERE id = 1;
SELECT 2`

	got, err := splitStatements(strings.NewReader(input))
	if err != nil {
		t.Fatalf("splitStatements() error = %v", err)
	}
	want := []string{
		"CREATE TABLE t (id INTEGER)",
		"INSERT INTO t VALUES (1)",
		"SELECT * FROM t WHERE id = 1",
		"SELECT 2",
	}
	if len(got) != len(want) {
		t.Fatalf("splitStatements() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statement %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeCmd(t *testing.T) {
	out, err := runCmd(t, "", "normalize", "SELECT * FROM a WHERE id = 5")
	if err != nil {
		t.Fatalf("normalize error = %v", err)
	}
	if strings.TrimSpace(out) != "SELECT * FROM a WHERE id = ???" {
		t.Errorf("output = %q", out)
	}

	out, err = runCmd(t, "select 1 from b where x in (1,2)\n\n", "normalize", "--id")
	if err != nil {
		t.Fatalf("normalize --id error = %v", err)
	}
	want := tracker.FingerprintID("select 1 from b where x in (???)") + "\tselect 1 from b where x in (???)"
	if strings.TrimSpace(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestExecCmd(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "exec.db")
	script := `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
INSERT INTO users (name) VALUES ('a');
INSERT INTO users (name) VALUES ('b');
SELECT * FROM users WHERE id = 1;
SELECT * FROM missing_table WHERE id = 1;
`
	out, err := runCmd(t, script, "exec", "--dsn", dsn, "--sort-by", "count")
	if err != nil {
		t.Fatalf("exec error = %v", err)
	}
	for _, want := range []string{
		"SQL tracker report: 3 fingerprints, 4 queries",
		"INSERT INTO users (name) VALUES (???)",
		"SELECT * FROM users WHERE id = ???",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestIngestCmd(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")
	lines := strings.Join([]string{
		`2024-01-15 10:30:45.123 UTC [42] LOG:  duration: 1.500 ms  statement: SELECT * FROM users WHERE id = 1`,
		`2024-01-15 10:30:46.123 UTC [42] LOG:  duration: 2.500 ms  statement: SELECT * FROM users WHERE id = 2`,
		`2024-01-15 10:30:47.000 UTC [42] LOG:  checkpoint starting: time`,
	}, "\n")
	if err := os.WriteFile(logFile, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "", "ingest", logFile)
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}
	if !strings.Contains(out, "SQL tracker report: 1 fingerprints, 2 queries, 4 ms total") {
		t.Errorf("output = %s", out)
	}
}

func TestIngestCmdStdin(t *testing.T) {
	lines := strings.Join([]string{
		`2024-01-15 10:30:45.123 UTC [42] LOG:  duration: 1.000 ms  statement: DELETE FROM sessions WHERE id = 1`,
		`2024-01-15 10:30:46.123 UTC [42] LOG:  duration: 2.000 ms  statement: DELETE FROM sessions WHERE id = 2`,
		`2024-01-15 10:30:47.123 UTC [42] LOG:  duration: 3.000 ms  statement: DELETE FROM sessions WHERE id = 3`,
	}, "\n") + "\n"

	tests := []struct {
		name string
		args []string
	}{
		{name: "dash", args: []string{"ingest", "-"}},
		{name: "no arguments", args: []string{"ingest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCmd(t, lines, tt.args...)
			if err != nil {
				t.Fatalf("ingest error = %v", err)
			}
			if !strings.Contains(out, "SQL tracker report: 1 fingerprints, 3 queries, 6 ms total") {
				t.Errorf("output = %s", out)
			}
		})
	}
}

func TestReportCmd(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	rec := tracker.Record{SQL: "SELECT 1", Count: 2, TotalDuration: 3 * time.Millisecond, LastDuration: time.Millisecond, LastSeen: now}
	if err := report.Save(a, map[string]tracker.Record{"select 1": rec}); err != nil {
		t.Fatal(err)
	}
	if err := report.Save(b, map[string]tracker.Record{"select 1": rec}); err != nil {
		t.Fatal(err)
	}
	merged := filepath.Join(dir, "merged.json")

	out, err := runCmd(t, "", "report", a, b, "--output", merged)
	if err != nil {
		t.Fatalf("report error = %v", err)
	}
	if !strings.Contains(out, "SQL tracker report: 1 fingerprints, 4 queries, 6 ms total") {
		t.Errorf("output = %s", out)
	}

	data, err := report.Load(merged)
	if err != nil {
		t.Fatalf("Load(merged) error = %v", err)
	}
	if data["select 1"].Count != 4 {
		t.Errorf("merged count = %d, want 4", data["select 1"].Count)
	}

	if _, err := runCmd(t, "", "report", filepath.Join(dir, "nope.json")); err == nil {
		t.Error("report with missing file returned no error")
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "sql-tracker dev") {
		t.Errorf("output = %q", out)
	}
}
