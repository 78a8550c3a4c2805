package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"sql-tracker/pkg/tracker"
)

// Options control PrintText.
type Options struct {
	SortBy string // count, duration or avg
	Limit  int    // rows to print; zero prints all
	Width  int    // SQL column width; zero disables truncation
	// ShowSources prints the recorded caller locations under each row.
	ShowSources bool
}

func formatMS(d time.Duration) string {
	return humanize.CommafWithDigits(toMS(d), 2)
}

// Truncate shortens sql to width runes, marking the cut with "...".
func Truncate(sql string, width int) string {
	if width <= 0 {
		return sql
	}
	r := []rune(sql)
	if len(r) <= width {
		return sql
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// Totals sums counts and durations over data.
func Totals(data map[string]tracker.Record) (count int64, total time.Duration) {
	for _, rec := range data {
		count += rec.Count
		total += rec.TotalDuration
	}
	return count, total
}

// PrintText writes a ranked table of data to w.
func PrintText(w io.Writer, data map[string]tracker.Record, opts Options) error {
	entries, err := tracker.Sort(data, opts.SortBy)
	if err != nil {
		return err
	}

	count, total := Totals(data)
	if _, err := fmt.Fprintf(w, "SQL tracker report: %s fingerprints, %s queries, %s ms total\n\n",
		humanize.Comma(int64(len(data))), humanize.Comma(count), formatMS(total)); err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "(no queries tracked)")
		return err
	}

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	if _, err := fmt.Fprintf(w, "%4s  %10s  %14s  %10s  %10s  %s\n", "#", "COUNT", "TOTAL (ms)", "AVG (ms)", "LAST (ms)", "SQL"); err != nil {
		return err
	}
	for i, e := range entries {
		sql := Truncate(strings.Join(strings.Fields(e.Record.SQL), " "), opts.Width)
		if _, err := fmt.Fprintf(w, "%4d  %10s  %14s  %10s  %10s  %s\n",
			i+1,
			humanize.Comma(e.Record.Count),
			formatMS(e.Record.TotalDuration),
			formatMS(e.Record.AvgDuration()),
			formatMS(e.Record.LastDuration),
			sql); err != nil {
			return err
		}
		if opts.ShowSources {
			for _, src := range e.Record.Sources {
				if _, err := fmt.Fprintf(w, "%58s %s\n", "<-", src); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
