package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"sql-tracker/pkg/report"

	"github.com/spf13/cobra"
)

type reportFlags struct {
	sortBy  string
	limit   int
	width   int
	sources bool
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.sortBy, "sort-by", "s", "", "Order by count, duration or avg (default from config)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 20, "Rows to print, 0 for all")
	cmd.Flags().IntVarP(&f.width, "width", "w", 100, "SQL column width, 0 to disable truncation")
	cmd.Flags().BoolVar(&f.sources, "sources", false, "Print caller locations under each row")
}

func (f *reportFlags) options(defaultSort string) report.Options {
	sortBy := f.sortBy
	if sortBy == "" {
		sortBy = defaultSort
	}
	return report.Options{
		SortBy:      sortBy,
		Limit:       f.limit,
		Width:       f.width,
		ShowSources: f.sources,
	}
}

func newReportCmd() *cobra.Command {
	var flags reportFlags
	var output string

	cmd := &cobra.Command{
		Use:   "report [DUMP...]",
		Short: "Merge dump files and print a ranked report",
		Long: `Merge one or more dump files written by tracked processes and print the
fingerprints ranked by count, total duration or average duration.

Without arguments every sql_tracker-*.json next to the configured output path
is merged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			paths := args
			if len(paths) == 0 {
				pattern := filepath.Join(filepath.Dir(cfg.Tracker.OutputPath), "sql_tracker-*.json")
				paths, err = filepath.Glob(pattern)
				if err != nil {
					return fmt.Errorf("invalid dump pattern: %w", err)
				}
				if len(paths) == 0 {
					return fmt.Errorf("no dump files match %s", pattern)
				}
			}

			data, err := report.Load(paths...)
			if err != nil {
				return err
			}
			slog.Debug("[report] merged dumps", "files", len(paths), "fingerprints", len(data))

			if output != "" {
				if err := report.Save(output, data); err != nil {
					return err
				}
				slog.Info("[report] wrote merged dump", "path", output)
			}

			return report.PrintText(cmd.OutOrStdout(), data, flags.options(cfg.Server.SortBy))
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the merged table to this dump file")
	return cmd
}
