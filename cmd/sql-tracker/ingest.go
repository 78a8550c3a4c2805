package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"sql-tracker/pkg/logs"
	"sql-tracker/pkg/report"
	"sql-tracker/pkg/sqlutil"
	"sql-tracker/pkg/store"
	"sql-tracker/pkg/tracker"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var flags reportFlags
	var dump bool
	var snapshot string

	cmd := &cobra.Command{
		Use:   "ingest [LOGFILE|-]...",
		Short: "Track the SQL statements found in log files",
		Long: `Read application or PostgreSQL logs, track every SQL statement they
contain and print the resulting report. Reads stdin when no file or "-" is
given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = []string{"-"}
			}

			h := tracker.NewHandler(cfg.Tracker.Core())
			ctx := cmd.Context()

			for _, path := range args {
				n, err := ingestFile(ctx, h, path, cmd.InOrStdin())
				if err != nil {
					return err
				}
				slog.Info("[ingest] read log", "path", path, "statements", n)
			}

			data := h.Data()
			if dump {
				if err := report.Save(cfg.Tracker.OutputPath, data); err != nil {
					return err
				}
				slog.Info("[ingest] wrote dump", "path", cfg.Tracker.OutputPath)
			}
			if snapshot != "" {
				if err := saveSnapshot(ctx, cfg.Storage.DatabasePath, snapshot, data); err != nil {
					return err
				}
			}

			return report.PrintText(cmd.OutOrStdout(), data, flags.options(cfg.Server.SortBy))
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&dump, "dump", false, "Write the table to the configured output path")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Save the table as a snapshot with this label")
	return cmd
}

// ingestFile feeds every statement in path to h and returns how many were
// found. A path of "-" reads stdin.
func ingestFile(ctx context.Context, h *tracker.Handler, path string, stdin io.Reader) (int, error) {
	r, err := openInput(path, stdin)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer r.Close()

	found := 0
	err = logs.ScanEntries(ctx, r, func(entry *logs.LogEntry) error {
		ev, ok := sqlutil.ExtractEvent(logs.LogMessage{
			ContainerID: path,
			Timestamp:   time.Now(),
			Entry:       entry,
		})
		if !ok {
			return nil
		}
		found++
		h.Handle(ev)
		return nil
	})
	if err != nil {
		return found, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return found, nil
}

func saveSnapshot(ctx context.Context, dbPath, label string, data map[string]tracker.Record) error {
	if dbPath == "" {
		return fmt.Errorf("storage.database_path is not set")
	}
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.SaveSnapshot(ctx, label, data)
	if err != nil {
		return err
	}
	slog.Info("[ingest] saved snapshot", "id", snap.ID, "label", label)
	return nil
}
