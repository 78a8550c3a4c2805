// Package report writes tracked statistics to JSON dump files, merges dumps
// written by several processes and renders them as a ranked text table.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sql-tracker/pkg/tracker"
)

// FormatVersion is written into every dump.
const FormatVersion = "1.0"

// ErrFormatVersion is returned by Load for dumps written in another format.
var ErrFormatVersion = errors.New("unsupported dump format version")

// Dump is the on-disk layout. Durations are milliseconds.
type Dump struct {
	FormatVersion string                `json:"format_version"`
	GeneratedAt   time.Time             `json:"generated_at"`
	Data          map[string]DumpRecord `json:"data"`
}

// DumpRecord is one fingerprint in a dump.
type DumpRecord struct {
	SQL             string   `json:"sql"`
	Count           int64    `json:"count"`
	TotalDurationMS float64  `json:"total_duration_ms"`
	LastDurationMS  float64  `json:"last_duration_ms"`
	Source          []string `json:"source,omitempty"`
}

func toMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMS(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// NewDump converts a tracking table into its dump form.
func NewDump(data map[string]tracker.Record, generatedAt time.Time) Dump {
	d := Dump{
		FormatVersion: FormatVersion,
		GeneratedAt:   generatedAt.UTC(),
		Data:          make(map[string]DumpRecord, len(data)),
	}
	for key, rec := range data {
		d.Data[key] = DumpRecord{
			SQL:             rec.SQL,
			Count:           rec.Count,
			TotalDurationMS: toMS(rec.TotalDuration),
			LastDurationMS:  toMS(rec.LastDuration),
			Source:          rec.Sources,
		}
	}
	return d
}

// Records converts the dump back into tracker records.
func (d Dump) Records() map[string]tracker.Record {
	out := make(map[string]tracker.Record, len(d.Data))
	for key, rec := range d.Data {
		out[key] = tracker.Record{
			SQL:           rec.SQL,
			Count:         rec.Count,
			TotalDuration: fromMS(rec.TotalDurationMS),
			LastDuration:  fromMS(rec.LastDurationMS),
			Sources:       append([]string(nil), rec.Source...),
			FirstSeen:     d.GeneratedAt,
			LastSeen:      d.GeneratedAt,
		}
	}
	return out
}

// Save writes data to path, creating parent directories. The file is
// replaced atomically.
func Save(path string, data map[string]tracker.Record) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dump directory: %w", err)
		}
	}

	content, err := json.MarshalIndent(NewDump(data, time.Now()), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dump: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write dump: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write dump: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write dump: %w", err)
	}
	return nil
}

// ReadDump reads and validates a single dump file.
func ReadDump(path string) (Dump, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Dump{}, fmt.Errorf("failed to read dump %s: %w", path, err)
	}

	var d Dump
	if err := json.Unmarshal(content, &d); err != nil {
		return Dump{}, fmt.Errorf("failed to decode dump %s: %w", path, err)
	}
	if d.FormatVersion != FormatVersion {
		return Dump{}, fmt.Errorf("%s: %w %q", path, ErrFormatVersion, d.FormatVersion)
	}
	return d, nil
}

// Load reads every dump in paths and merges them.
func Load(paths ...string) (map[string]tracker.Record, error) {
	merged := make(map[string]tracker.Record)
	for _, path := range paths {
		d, err := ReadDump(path)
		if err != nil {
			return nil, err
		}
		Merge(merged, d.Records(), tracker.DefaultMaxSources)
	}
	return merged, nil
}

// Merge adds src into dst. Counts and durations add, sources are unioned up
// to maxSources, the SQL text already in dst is kept, and the last duration
// follows the most recent LastSeen.
func Merge(dst, src map[string]tracker.Record, maxSources int) {
	for key, rec := range src {
		cur, ok := dst[key]
		if !ok {
			rec.Sources = mergeSources(nil, rec.Sources, maxSources)
			dst[key] = rec
			continue
		}

		cur.Count += rec.Count
		cur.TotalDuration += rec.TotalDuration
		if !rec.LastSeen.Before(cur.LastSeen) {
			cur.LastDuration = rec.LastDuration
			cur.LastSeen = rec.LastSeen
		}
		if rec.FirstSeen.Before(cur.FirstSeen) {
			cur.FirstSeen = rec.FirstSeen
		}
		cur.Sources = mergeSources(cur.Sources, rec.Sources, maxSources)
		dst[key] = cur
	}
}

func mergeSources(a, b []string, max int) []string {
	out := append([]string(nil), a...)
	for _, s := range b {
		if max > 0 && len(out) >= max {
			break
		}
		found := false
		for _, v := range out {
			if v == s {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	return out
}
