package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/openftth/gdb-integrator/internal/config"
	"github.com/openftth/gdb-integrator/internal/dispatch"
	"github.com/openftth/gdb-integrator/internal/events"
	"github.com/openftth/gdb-integrator/internal/observability"
	"github.com/openftth/gdb-integrator/internal/poller"
	"github.com/openftth/gdb-integrator/internal/publish"
	"github.com/openftth/gdb-integrator/internal/reconcile"
	"github.com/openftth/gdb-integrator/internal/store"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the integrator pipeline",
		Long: `Start the edit-log integrator.

Connects to Postgres and NATS, seeds the command-id store from the event
stream, and runs the poller and dispatcher until interrupted.

Example:
  gdb-integrator run --config integrator.yaml
  PGDSN=postgres://... NATS_URL=nats://... gdb-integrator run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntegrator(rootOpts, cmd)
		},
	}

	return cmd
}

func runIntegrator(opts *RootOptions, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	slog.Info("opening database")
	st, err := store.Open(cfg.Database.DSN, cfg.Tolerance, cfg.Database.SRID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	slog.Info("connecting to message bus", "url", cfg.Events.NATSURL)
	nc, err := nats.Connect(cfg.Events.NATSURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to NATS", err)
	}
	defer nc.Drain()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	publisher, err := publish.NewJetStreamPublisher(ctx, nc, cfg.Events.Stream, cfg.Events.SubjectPrefix, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare event stream", err)
	}

	// Replayed edit-log rows whose command id already appears on the stream
	// must not publish twice, so the id store is seeded from the stream's
	// own headers before the first poll.
	seedIDs, err := publisher.EmittedCommandIDs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read emitted command ids", err)
	}
	seen := publish.NewCommandIDStore(seedIDs)
	slog.Info("command-id store seeded", "count", seen.Len())

	metrics, err := observability.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	ids := events.UUIDv7Generator{}
	validator := reconcile.AllowAllValidator{}
	minter := reconcile.Minter{IDs: ids, AppName: cfg.ApplicationName}

	nodes := reconcile.NewNodeFactory(st, st, validator, cfg.ApplicationName, cfg.Tolerance, logger)
	segments := reconcile.NewSegmentFactory(st, st, validator, minter, cfg.ApplicationName, cfg.Tolerance, logger)
	splits := reconcile.NewSplitHandler(st, st.Routes(), st, ids, cfg.ApplicationName, cfg.Tolerance, logger)

	queue := poller.NewQueue()
	poll := poller.New(st, queue, cfg.Poll.Interval, cfg.Poll.BatchSize, logger)

	disp := dispatch.New(dispatch.Config{
		Queue:      queue,
		Nodes:      nodes,
		Segments:   segments,
		Splits:     splits,
		Spatial:    st,
		Routes:     st.Routes(),
		Shadow:     st,
		Checkpoint: st,
		Publisher:  publisher,
		Seen:       seen,
		IDs:        ids,
		Metrics:    metrics,
		Log:        logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: metrics.Handler()}
		go func() {
			slog.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	slog.Info("integrator starting",
		"application", cfg.ApplicationName,
		"tolerance", cfg.Tolerance,
		"stream", cfg.Events.Stream,
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Integrator started. Tailing edit log...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	errCh := make(chan error, 2)
	go func() {
		errCh <- poll.Run(ctx)
	}()
	go func() {
		errCh <- disp.Run(ctx)
	}()

	// The poller closes the queue on shutdown and the dispatcher drains it,
	// so both goroutines are collected before returning.
	var runErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			cancel()
			if runErr == nil {
				runErr = err
			}
		}
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "pipeline error", runErr)
	}

	slog.Info("integrator stopped gracefully")
	return nil
}

// loadConfig reads the YAML file when a path is given, and falls back to
// defaults plus environment variables otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}
