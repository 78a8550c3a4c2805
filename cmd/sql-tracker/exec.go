package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"sql-tracker/pkg/instrument"
	"sql-tracker/pkg/report"
	"sql-tracker/pkg/tracker"

	"github.com/spf13/cobra"
)

func newExecCmd() *cobra.Command {
	var flags reportFlags
	var driverName, dsn string
	var repeat int
	var dump bool

	cmd := &cobra.Command{
		Use:   "exec [SQLFILE|-]",
		Short: "Run SQL statements through a tracked database driver",
		Long: `Run the semicolon-terminated statements of SQLFILE (or stdin) against a
PostgreSQL or SQLite database through an instrumented driver, then print the
report of what was tracked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dsn == "" {
				return fmt.Errorf("--dsn is required")
			}

			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			r, err := openInput(path, cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer r.Close()

			statements, err := splitStatements(r)
			if err != nil {
				return err
			}

			h := tracker.NewHandler(cfg.Tracker.Core())
			tracked, err := instrument.RegisterParent(driverName, h)
			if err != nil {
				return err
			}

			db, err := sql.Open(tracked, dsn)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			failed := 0
			for i := 0; i < repeat; i++ {
				for _, stmt := range statements {
					if err := runStatement(ctx, db, stmt); err != nil {
						failed++
						slog.Warn("[exec] statement failed", "sql", report.Truncate(stmt, 80), "error", err)
					}
				}
			}
			slog.Info("[exec] done", "statements", len(statements)*repeat, "failed", failed)

			data := h.Data()
			if dump {
				if err := report.Save(cfg.Tracker.OutputPath, data); err != nil {
					return err
				}
				slog.Info("[exec] wrote dump", "path", cfg.Tracker.OutputPath)
			}
			return report.PrintText(cmd.OutOrStdout(), data, flags.options(cfg.Server.SortBy))
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&driverName, "driver", instrument.SQLite, "Database driver: postgres or sqlite3")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Data source name passed to the driver")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "Run the statements this many times")
	cmd.Flags().BoolVar(&dump, "dump", false, "Write the table to the configured output path")
	return cmd
}

// runStatement queries statements that return rows and executes the rest.
func runStatement(ctx context.Context, db *sql.DB, stmt string) error {
	switch tracker.Command(stmt) {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "PRAGMA", "VALUES":
		rows, err := db.QueryContext(ctx, stmt)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
		}
		return rows.Err()
	default:
		_, err := db.ExecContext(ctx, stmt)
		return err
	}
}

// splitStatements reads semicolon-terminated statements, skipping blank lines
// and "--" comments. A trailing statement without a semicolon is kept.
func splitStatements(r io.Reader) ([]string, error) {
	var statements []string
	var cur strings.Builder

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(line)
		if strings.HasSuffix(line, ";") {
			statements = append(statements, strings.TrimSuffix(cur.String(), ";"))
			cur.Reset()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read statements: %w", err)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		statements = append(statements, s)
	}
	return statements, nil
}
