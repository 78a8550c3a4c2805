package tracker

import (
	"strings"
)

// DefaultMaxSources bounds how many distinct caller locations a record keeps.
const DefaultMaxSources = 10

// Config controls which events a Handler tracks. A Handler only reads it.
type Config struct {
	Enabled bool
	// TrackedSQLCommand lists statement keywords (SELECT, INSERT, ...) to track,
	// compared case-insensitively. An empty list tracks nothing.
	TrackedSQLCommand []string
	// TrackedPaths restricts tracking to events whose caller locations contain
	// one of these substrings. Nil disables the check.
	TrackedPaths []string
	MaxSources   int
}

// Filter decides whether an event is eligible for tracking.
type Filter struct {
	enabled  bool
	commands map[string]bool
	paths    []string
}

// NewFilter builds a Filter from cfg. A nil cfg produces a filter that rejects
// every event.
func NewFilter(cfg *Config) *Filter {
	f := &Filter{commands: make(map[string]bool)}
	if cfg == nil {
		return f
	}
	f.enabled = cfg.Enabled
	for _, cmd := range cfg.TrackedSQLCommand {
		cmd = strings.ToUpper(strings.TrimSpace(cmd))
		if cmd != "" {
			f.commands[cmd] = true
		}
	}
	if cfg.TrackedPaths != nil {
		f.paths = make([]string, 0, len(cfg.TrackedPaths))
		for _, p := range cfg.TrackedPaths {
			if p != "" {
				f.paths = append(f.paths, p)
			}
		}
	}
	return f
}

// Accepts reports whether ev should be recorded.
func (f *Filter) Accepts(ev Event) bool {
	if !f.enabled {
		return false
	}
	sql, ok := ev.Payload.Statement()
	if !ok {
		return false
	}
	if !f.commands[Command(sql)] {
		return false
	}
	if f.paths != nil && len(f.MatchedSources(ev)) == 0 {
		return false
	}
	return true
}

// MatchedSources returns the event's caller locations that satisfy the path
// restriction. Without a restriction every location matches.
func (f *Filter) MatchedSources(ev Event) []string {
	if ev.Payload == nil {
		return nil
	}
	if f.paths == nil {
		return ev.Payload.Source
	}
	var matched []string
	for _, src := range ev.Payload.Source {
		for _, p := range f.paths {
			if strings.Contains(src, p) {
				matched = append(matched, src)
				break
			}
		}
	}
	return matched
}

// Command returns the upper-cased leading keyword of sql, or "" when the
// statement does not start with one.
func Command(sql string) string {
	sql = strings.TrimLeft(sql, " \t\r\n(")
	end := 0
	for end < len(sql) {
		c := sql[end]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			end++
			continue
		}
		break
	}
	return strings.ToUpper(sql[:end])
}
