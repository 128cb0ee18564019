package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rendis/streamflow/internal/logging"
	"github.com/rendis/streamflow/internal/store"
	"github.com/rendis/streamflow/pkg/analysis"
	"github.com/rendis/streamflow/pkg/health"
	"github.com/rendis/streamflow/pkg/mcp"
	"github.com/rendis/streamflow/pkg/pipeline"
	"github.com/rendis/streamflow/pkg/registry"
	"github.com/rendis/streamflow/pkg/stdflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "streamflow:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	reg := registry.New()
	if err := stdflows.Register(reg); err != nil {
		return fmt.Errorf("register catalogue: %w", err)
	}

	monitor := health.NewMonitor(cfg.HistoryLimit, logger).WithDefaultChecks()
	cron, err := health.NewCron(monitor, cfg.HealthCron, snapshotRecorder{store: st}, logger)
	if err != nil {
		return err
	}
	if err := cron.Start(ctx); err != nil {
		return err
	}
	defer cron.Stop()

	runner := pipeline.NewRunner(reg, st, logger)

	srv := mcp.NewServer(mcp.ServerDeps{
		Registry: reg,
		Analyzer: analysis.NewAnalyzer(),
		Monitor:  monitor,
		Store:    st,
		Runner:   runner,
		Logger:   logger,
	})

	logger.Info("streamflow server starting",
		"db_path", cfg.DBPath,
		"flows", reg.Count(),
		"health_cron", cfg.HealthCron,
	)

	err = srv.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(logging.NewCorrelationHandler(handler))
	slog.SetDefault(logger)
	return logger
}

// snapshotRecorder adapts the store to the health cron's Recorder.
type snapshotRecorder struct {
	store store.Store
}

func (r snapshotRecorder) RecordHealthSnapshot(ctx context.Context, s health.SystemHealth) error {
	report, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.store.RecordHealthSnapshot(ctx, &store.HealthSnapshot{
		Status:     s.Status,
		Report:     report,
		RecordedAt: s.Timestamp,
	})
}
