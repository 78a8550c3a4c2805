package tracker

import (
	"strings"
	"testing"
)

func squish(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestCleanSQLQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{
			name: "in lists in nested subqueries",
			query: `
				SELECT * FROM a
				WHERE a.id IN (
				  SELECT b.id FROM b WHERE b.id IN (1,2,3,4)
				  AND b.uid IN ('aaaa', 'bbbb')
				) AND a.xid IN (11, 22, 33)
			`,
			expected: `
				SELECT * FROM a
				WHERE a.id IN (
				  SELECT b.id FROM b WHERE b.id IN (???)
				  AND b.uid IN (???)
				) AND a.xid IN (???)
			`,
		},
		{
			name: "comparison operators",
			query: `
				SELECT * FROM a
				WHERE a.id = 1 AND a.uid != 'bbb'
				(a.num > 1 AND a.num < 3) AND
				(start_date >= '2010-01-01' AND end_date <= '2010-10-01') AND
				a.total BETWEEN 0 AND 100 LIMIT 25 OFFSET 0
			`,
			expected: `
				SELECT * FROM a
				WHERE a.id = ??? AND a.uid != ???
				(a.num > ??? AND a.num < ???) AND
				(start_date >= ??? AND end_date <= ???) AND
				a.total BETWEEN ??? AND ??? LIMIT ??? OFFSET ???
			`,
		},
		{
			name: "floating point numbers",
			query: `
				SELECT * FROM a
				WHERE (a.lat BETWEEN 12.4567 AND 38.0678) AND
				(a.lng BETWEEN -70.487 AND -87.790)
			`,
			expected: `
				SELECT * FROM a
				WHERE (a.lat BETWEEN ??? AND ???) AND
				(a.lng BETWEEN ??? AND ???)
			`,
		},
		{
			name: "keywords are matched case-insensitively",
			query: `
				SELECT * FROM a
				where a.id = 1 AND a.uid != 'bbb'
				(a.num > 1 AND a.num < 3) AND
				(start_date >= '2010-01-01' AND end_date <= '2010-10-01') AND
				a.total between 0 and 100
			`,
			expected: `
				SELECT * FROM a
				where a.id = ??? AND a.uid != ???
				(a.num > ??? AND a.num < ???) AND
				(start_date >= ??? AND end_date <= ???) AND
				a.total between ??? and ???
			`,
		},
		{
			name: "multi-row values",
			query: `
				INSERT INTO users VALUES
				(nextval('id_seq'), 'a', 105, DEFAULT),
				(nextval('id_seq'), 'b', 9100, DEFAULT);
			`,
			expected: `INSERT INTO users VALUES (nextval(???), ???, ???, DEFAULT), (nextval(???), ???, ???, DEFAULT);`,
		},
		{
			name: "values tuples keep their arity",
			query:    `INSERT INTO t (a, b) VALUES (1, 'x')`,
			expected: `INSERT INTO t (a, b) VALUES (???, ???)`,
		},
		{
			name: "pattern matching",
			query: `
				SELECT users.* FROM users
				WHERE users.name LIKE '%test%' AND NOT SIMILAR TO '%test ppp'
			`,
			expected: `
				SELECT users.* FROM users
				WHERE users.name LIKE ??? AND NOT SIMILAR TO ???
			`,
		},
		{
			name:     "identifiers are not literals",
			query:    `SELECT t.oid FROM pg_type AS t WHERE t.typname IN (test1, test2) AND a.id = b.id`,
			expected: `SELECT t.oid FROM pg_type AS t WHERE t.typname IN (test1, test2) AND a.id = b.id`,
		},
		{
			name:     "escaped quotes inside strings",
			query:    `SELECT * FROM notes WHERE body = 'it''s here' LIMIT 5, 10`,
			expected: `SELECT * FROM notes WHERE body = ??? LIMIT ???, ???`,
		},
		{
			name:     "operators without spaces",
			query:    `SELECT * FROM a WHERE a.x=-1.5e3 AND a.y<>'q'`,
			expected: `SELECT * FROM a WHERE a.x=??? AND a.y<>???`,
		},
		{
			name:     "bind parameters are kept",
			query:    `SELECT * FROM users WHERE id = $1 AND name = ?`,
			expected: `SELECT * FROM users WHERE id = $1 AND name = ?`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := squish(tt.expected)
			if got := CleanSQLQuery(tt.query); got != want {
				t.Errorf("CleanSQLQuery() = %q, want %q", got, want)
			}
		})
	}
}

func TestCleanSQLQueryIsIdempotent(t *testing.T) {
	queries := []string{
		"SELECT * FROM a WHERE a.id IN (1,2,3) AND b = 'x'",
		"INSERT INTO users VALUES (nextval('id_seq'), 'a', 105, DEFAULT), (1, 2, 3, 4)",
		"SELECT * FROM a WHERE a.lng BETWEEN -70.487 AND -87.790 LIMIT 10 OFFSET 20",
		"select * from users where name ilike '%bob%'",
		"UPDATE t SET a = 1, b = 'two' WHERE c IN ('x') AND d >= 4",
		"SELECT ???",
		"",
	}

	for _, q := range queries {
		once := CleanSQLQuery(q)
		twice := CleanSQLQuery(once)
		if once != twice {
			t.Errorf("CleanSQLQuery not idempotent for %q: %q then %q", q, once, twice)
		}
	}
}

func TestRulesOrder(t *testing.T) {
	expected := []string{
		"collapse-whitespace",
		"values-tuples",
		"literal-lists",
		"comparison-operands",
		"between-operands",
		"limit-offset",
		"pattern-operands",
	}

	got := Rules()
	if len(got) != len(expected) {
		t.Fatalf("Rules() returned %d rules, want %d", len(got), len(expected))
	}
	for i, r := range got {
		if r.Name != expected[i] {
			t.Errorf("rule %d = %q, want %q", i, r.Name, expected[i])
		}
	}
}

func TestRulesIndividually(t *testing.T) {
	byName := make(map[string]Rule)
	for _, r := range Rules() {
		byName[r.Name] = r
	}

	tests := []struct {
		rule     string
		input    string
		expected string
	}{
		{"collapse-whitespace", "  SELECT\n\t1  ", "SELECT 1"},
		{"values-tuples", "VALUES (1, DEFAULT), ('a', now())", "VALUES (???, DEFAULT), (???, now())"},
		{"literal-lists", "f(1) IN ('a', 2)", "f(???) IN (???)"},
		{"comparison-operands", "a >= 3 AND b != 'c'", "a >= ??? AND b != ???"},
		{"between-operands", "x BETWEEN '2010-01-01' AND '2011-01-01'", "x BETWEEN ??? AND ???"},
		{"limit-offset", "LIMIT 1 OFFSET 2", "LIMIT ??? OFFSET ???"},
		{"pattern-operands", "a ILIKE 'x%'", "a ILIKE ???"},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			r, ok := byName[tt.rule]
			if !ok {
				t.Fatalf("rule %q not found", tt.rule)
			}
			if got := r.Apply(tt.input); got != tt.expected {
				t.Errorf("%s.Apply() = %q, want %q", tt.rule, got, tt.expected)
			}
		})
	}
}

func TestFingerprintFoldsCase(t *testing.T) {
	a := Fingerprint("SELECT * FROM users WHERE id = 1")
	b := Fingerprint("select  *  from Users where ID = 42")
	if a != b {
		t.Errorf("Fingerprint() = %q and %q, want equal", a, b)
	}
	if FingerprintID(a) != FingerprintID(b) {
		t.Errorf("FingerprintID() differs for equal keys")
	}
	if len(FingerprintID(a)) != 16 {
		t.Errorf("FingerprintID() length = %d, want 16", len(FingerprintID(a)))
	}
}
