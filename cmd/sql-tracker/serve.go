package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sql-tracker/pkg/config"
	"sql-tracker/pkg/controller"
	"sql-tracker/pkg/eventstore"
	"sql-tracker/pkg/instrument"
	"sql-tracker/pkg/logs"
	"sql-tracker/pkg/notion"
	"sql-tracker/pkg/report"
	"sql-tracker/pkg/sqlutil"
	"sql-tracker/pkg/store"
	"sql-tracker/pkg/tracker"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and tail Docker containers",
		Long: `Serve the tracking table over HTTP and WebSocket, accept statements posted
to /api/events, tail the logs of the configured Docker containers and save
periodic snapshots. The table is dumped to the output path on shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := eventstore.New(cfg.Server.RecentEvents, 0)
	h := tracker.NewHandler(cfg.Tracker.Core(), tracker.WithObserver(events))

	var st *store.Store
	if cfg.Storage.DatabasePath != "" {
		var opts []store.Option
		if cfg.Storage.TrackQueries {
			name, err := instrument.RegisterParent(instrument.SQLite, h)
			if err != nil {
				return err
			}
			opts = append(opts, store.WithDriverName(name))
		}

		opened, err := store.Open(ctx, cfg.Storage.DatabasePath, opts...)
		if err != nil {
			slog.Warn("failed to open database, snapshots disabled", "error", err)
		} else {
			st = opened
			defer st.Close()
		}
	}

	var exporter controller.Exporter
	if cfg.Notion.Enabled() {
		exp, err := notion.NewExporter(cfg.Notion.APIKey, cfg.Notion.DatabaseID)
		if err != nil {
			return err
		}
		exporter = exp
	}

	c := controller.NewController(h, events, controller.Options{
		Store:    st,
		Exporter: exporter,
		TopN:     cfg.Server.TopN,
		SortBy:   cfg.Server.SortBy,
	})

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { c.Run(ctx, cfg.Server.PushInterval()) })
	if st != nil {
		run(func() { snapshotLoop(ctx, st, h, cfg.Storage) })
	}
	if len(cfg.Docker.Containers) > 0 {
		if err := tailContainers(ctx, h, cfg.Docker.Containers, run); err != nil {
			slog.Warn("docker tailing disabled", "error", err)
		}
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           c.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case serveErr = <-errChan:
		slog.Error("server error", "error", serveErr)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	wg.Wait()

	data := h.Data()
	if err := report.Save(cfg.Tracker.OutputPath, data); err != nil {
		slog.Error("failed to write dump", "error", err)
	} else {
		slog.Info("wrote dump", "path", cfg.Tracker.OutputPath, "fingerprints", len(data))
	}
	if st != nil && len(data) > 0 {
		if _, err := st.SaveSnapshot(shutdownCtx, "shutdown", data); err != nil {
			slog.Error("failed to save final snapshot", "error", err)
		}
	}

	return serveErr
}

// snapshotLoop saves the table every interval and prunes snapshots past the
// retention period.
func snapshotLoop(ctx context.Context, st *store.Store, h *tracker.Handler, cfg config.StorageConfig) {
	interval := cfg.SnapshotInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data := h.Data()
			if len(data) > 0 {
				if _, err := st.SaveSnapshot(ctx, "", data); err != nil {
					slog.Error("[store] periodic snapshot failed", "error", err)
				}
			}
			if retention := cfg.Retention(); retention > 0 {
				n, err := st.DeleteSnapshotsBefore(ctx, time.Now().Add(-retention))
				if err != nil {
					slog.Error("[store] pruning failed", "error", err)
				} else if n > 0 {
					slog.Info("[store] pruned snapshots", "count", n)
				}
			}
		}
	}
}

// tailContainers streams the logs of the running containers matching names
// into h until ctx ends.
func tailContainers(ctx context.Context, h *tracker.Handler, names []string, run func(func())) error {
	docker, err := logs.NewDockerClient()
	if err != nil {
		return err
	}

	running, err := docker.ListRunningContainers(ctx)
	if err != nil {
		docker.Close()
		return err
	}
	matched := logs.MatchContainers(running, names)
	if len(matched) == 0 {
		docker.Close()
		return fmt.Errorf("no running container matches %v", names)
	}

	logChan := make(chan logs.LogMessage, 1000)

	var streams sync.WaitGroup
	for _, ctr := range matched {
		ctr := ctr
		streams.Add(1)
		go func() {
			defer streams.Done()
			slog.Info("[docker] tailing container", "name", ctr.Name, "id", ctr.ID)
			if err := docker.StreamLogs(ctx, ctr.ID, logChan); err != nil && ctx.Err() == nil {
				slog.Error("[docker] stream ended", "container", ctr.Name, "error", err)
			}
		}()
	}

	go func() {
		streams.Wait()
		close(logChan)
		docker.Close()
	}()

	run(func() {
		for msg := range logChan {
			if ev, ok := sqlutil.ExtractEvent(msg); ok {
				h.Handle(ev)
			}
		}
	})
	return nil
}
