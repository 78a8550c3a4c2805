// Package logs turns database and application log output into structured
// entries from which executed statements can be extracted.
package logs

import (
	"encoding/json"
	"regexp"
	"strings"
)

// LogEntry is one parsed log record. Continuation lines are already folded
// into Raw.
type LogEntry struct {
	Raw        string                 `json:"raw"`
	Timestamp  string                 `json:"timestamp"`
	Level      string                 `json:"level"`
	File       string                 `json:"file"`
	Message    string                 `json:"message"`
	Fields     map[string]string      `json:"fields"`
	IsJSON     bool                   `json:"isJson"`
	JSONFields map[string]interface{} `json:"jsonFields,omitempty"`
}

// Field values set on entries recognized as PostgreSQL statement logs.
const (
	FieldType       = "type"
	FieldDurationMS = "duration_ms"
	FieldPID        = "pid"
	FieldCommand    = "command"
	TypeQuery       = "query"
)

var (
	timestampRegex = regexp.MustCompile(`(\d{1,2}\s+\w+\s+\d{4}\s+\d{2}:\d{2}:\d{2}(?:\.\d+)?|\d{4}[-/]\d{2}[-/]\d{2}[T\s]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?|\w+\s+\d+\s+\d+:\d+:\d+(?:\.\d+)?|\d{2}:\d{2}:\d{2}(?:\.\d+)?|\d{10,13})`)
	levelRegex     = regexp.MustCompile(`\b(FATAL|DEBUG|INFO|WARN|ERROR|DBG|TRC|INF|WRN|ERR)\b`)
	fileRegex      = regexp.MustCompile(`([\w/]+\.go:\d+)`)
	ansiRegex      = regexp.MustCompile(`\x1b\[[0-9;]*[mGKHfABCDsuJSTlh]|\x1b\][^\x07]*\x07|\x1b[>=]|\x1b\[?[\d;]*[a-zA-Z]`)

	// log_min_duration_statement output, e.g.
	// 2024-03-01 10:00:00.123 UTC [4242] LOG:  duration: 1.250 ms  statement: SELECT 1
	postgresDurationRegex = regexp.MustCompile(`(?s)\b(LOG|WARNING|NOTICE|DEBUG\d?):\s+duration:\s+(\d+(?:\.\d+)?)\s+ms\s+(statement|execute\s+[^:\s]*):\s*(.*)$`)
	postgresPIDRegex      = regexp.MustCompile(`\[(\d+)\]`)
)

func stripANSI(s string) string {
	cleaned := ansiRegex.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, cleaned)
}

func isKeyChar(c byte) bool {
	return c == '_' || c == '.' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// scanBalanced returns the index just past the bracket that closes s[start].
func scanBalanced(s string, start int, open, close byte) int {
	depth := 0
	i := start
	for i < len(s) {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
		}
		i++
		if depth == 0 {
			break
		}
	}
	return i
}

// parseKeyValuePairs extracts key=value fields. Values may be bare words,
// double-quoted strings, or balanced {...} / [...] blocks.
func parseKeyValuePairs(s string) (map[string]string, int) {
	fields := make(map[string]string)
	first := -1
	i := 0

	for i < len(s) {
		keyStart := i
		for i < len(s) && isKeyChar(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != '=' || i == keyStart {
			i++
			continue
		}
		if keyStart > 0 && !isSpace(s[keyStart-1]) {
			i++
			continue
		}

		key := s[keyStart:i]
		i++
		if i >= len(s) {
			break
		}

		var value string
		switch s[i] {
		case '"':
			i++
			valueStart := i
			for i < len(s) && s[i] != '"' {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				i++
			}
			value = s[valueStart:i]
			if i < len(s) {
				i++
			}
		case '{':
			end := scanBalanced(s, i, '{', '}')
			value = s[i:end]
			i = end
		case '[':
			end := scanBalanced(s, i, '[', ']')
			value = s[i:end]
			i = end
		default:
			valueStart := i
			for i < len(s) && !isSpace(s[i]) {
				i++
			}
			value = s[valueStart:i]
		}

		if first < 0 {
			first = keyStart
		}
		fields[key] = value
	}

	return fields, first
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ParseLogLine parses one (possibly multi-line) log record.
func ParseLogLine(line string) *LogEntry {
	entry := &LogEntry{
		Raw:    line,
		Fields: make(map[string]string),
	}

	if strings.TrimSpace(line) == "" {
		return entry
	}

	line = stripANSI(line)

	if json.Valid([]byte(line)) {
		parseJSON(entry, line)
		return entry
	}

	if m := postgresDurationRegex.FindStringSubmatchIndex(line); m != nil {
		parsePostgres(entry, line, m)
		return entry
	}

	remaining := line

	if loc := timestampRegex.FindStringSubmatchIndex(line); loc != nil {
		entry.Timestamp = line[loc[2]:loc[3]]
		remaining = strings.TrimSpace(line[loc[3]:])
	}

	if matches := levelRegex.FindStringSubmatch(remaining); len(matches) > 1 {
		entry.Level = matches[1]
		remaining = strings.TrimSpace(strings.Replace(remaining, matches[1], "", 1))
	}

	if matches := fileRegex.FindStringSubmatch(remaining); len(matches) > 1 {
		entry.File = matches[1]
		remaining = strings.TrimSpace(strings.Replace(remaining, matches[0], "", 1))
	}

	remaining = strings.TrimSpace(strings.TrimPrefix(remaining, ">"))

	fields, first := parseKeyValuePairs(remaining)
	if len(fields) == 0 {
		entry.Message = remaining
		return entry
	}
	entry.Fields = fields
	entry.Message = strings.TrimSpace(remaining[:first])
	return entry
}

func parseJSON(entry *LogEntry, line string) {
	entry.IsJSON = true
	entry.JSONFields = make(map[string]interface{})
	if err := json.Unmarshal([]byte(line), &entry.JSONFields); err != nil {
		return
	}

	entry.Timestamp = firstString(entry.JSONFields, "timestamp", "@timestamp", "time", "ts", "datetime", "date")
	entry.Level = firstString(entry.JSONFields, "level", "severity", "log_level", "loglevel", "lvl")
	entry.Message = firstString(entry.JSONFields, "message", "msg", "text", "log", "event")
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok {
			return s
		}
	}
	return ""
}

func parsePostgres(entry *LogEntry, line string, m []int) {
	prefix := line[:m[0]]
	if loc := timestampRegex.FindStringSubmatchIndex(prefix); loc != nil {
		entry.Timestamp = prefix[loc[2]:loc[3]]
	}
	if pid := postgresPIDRegex.FindStringSubmatch(prefix); len(pid) > 1 {
		entry.Fields[FieldPID] = pid[1]
	}

	command := line[m[6]:m[7]]
	if strings.HasPrefix(command, "execute") {
		command = "execute"
	}

	entry.Level = line[m[2]:m[3]]
	entry.Message = strings.TrimSpace(line[m[8]:m[9]])
	entry.Fields[FieldType] = TypeQuery
	entry.Fields[FieldDurationMS] = line[m[4]:m[5]]
	entry.Fields[FieldCommand] = command
}

// IsQuery reports whether the entry carries an executed statement.
func (e *LogEntry) IsQuery() bool {
	if e == nil {
		return false
	}
	return e.Fields[FieldType] == TypeQuery || strings.Contains(e.Message, "[sql]")
}
