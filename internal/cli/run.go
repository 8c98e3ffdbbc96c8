package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/vacc/internal/api"
	"github.com/roach88/vacc/internal/channels"
	"github.com/roach88/vacc/internal/engine"
	"github.com/roach88/vacc/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Version is reported by the health endpoint. Set at build time.
var Version = "dev"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Settings string
	FromDeck string
	Database string
	Listen   string
	Solver   string
	WorkRoot string
	DataDir  string
	Interval time.Duration

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, the runtime uses UUIDv7Generator.
	RunIDs engine.RunIDGenerator

	// Ready, if set, receives the bound listen address once the twin is
	// running (for testing).
	Ready func(addr string)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <layout>",
		Short: "Start the twin on a layout",
		Long: `Start the virtual accelerator on a beamline layout.

The layout's channels are published on an in-process host, served over
HTTP when --listen is given. The simulation loop runs until SIGINT or
SIGTERM, then the twin stops and removes its working directory.

Example:
  vacc run fe.cue --settings fe.yaml --listen :8080
  vacc run fe.cue --from-deck test.in --db history.db --solver "mpirun -n 4 ImpactZexe"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTwin(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Settings, "settings", "", "initial settings (YAML)")
	cmd.Flags().StringVar(&opts.FromDeck, "from-deck", "", "reconstruct initial settings from a deck")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "HTTP listen address for the host (e.g. :8080)")
	cmd.Flags().StringVar(&opts.Solver, "solver", "", "solver command line, overrides the layout's twin.solver.command")
	cmd.Flags().StringVar(&opts.WorkRoot, "work-root", "", "directory for the working directory, overrides twin.work_root")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "static solver inputs, overrides twin.data_dir")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "pause between successful cycles")

	return cmd
}

func runTwin(opts *RunOptions, layoutPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	layout, err := loadLayout(layoutPath)
	if err != nil {
		return formatter.failLoad(err)
	}
	cfg := layout.Config
	if opts.Solver != "" {
		cfg.Solver.Command = strings.Fields(opts.Solver)
	}
	if opts.WorkRoot != "" {
		cfg.WorkRoot = opts.WorkRoot
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}

	settings, err := loadSettings(layout.Elements, opts.Settings, opts.FromDeck)
	if err != nil {
		return formatter.failLoad(err)
	}
	formatter.VerboseLog("Loaded %d element(s) and %d setting(s) from %s", len(layout.Elements), len(settings), layoutPath)

	registry, err := channels.NewRegistry(layout.Elements)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLayout, "deriving channels", err)
	}
	host, err := channels.NewServer(registry.Definitions())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLayout, "publishing channels", err)
	}
	defer host.Close()

	runtimeOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithCycleInterval(opts.Interval),
	}
	if opts.RunIDs != nil {
		runtimeOpts = append(runtimeOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}

	var history api.History
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "opening history database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		runtimeOpts = append(runtimeOpts, engine.WithRecorder(st))
		history = st
	}

	rt, err := engine.New(cfg, layout.Elements, settings, host, runtimeOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeRuntime, "configuring twin", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRuntime, "starting twin", err)
	}

	var (
		srv    *http.Server
		served = make(chan error, 1)
		addr   string
	)
	if opts.Listen != "" {
		ln, err := net.Listen("tcp", opts.Listen)
		if err != nil {
			_ = rt.Stop()
			return formatter.Fail(ExitCommandError, ErrCodeUsage, "listening on "+opts.Listen, err)
		}
		addr = ln.Addr().String()
		srv = &http.Server{
			Handler: api.New(api.Dependencies{
				Host:    host,
				Status:  rt,
				History: history,
				Logger:  logger,
				Version: Version,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() { served <- srv.Serve(ln) }()
	}

	status := rt.Status()
	logger.Info("twin running",
		"run", status.RunID,
		"layout", cfg.Layout,
		"channels", registry.Len(),
		"workdir", status.WorkDir,
		"listen", addr,
	)
	if err := formatter.Success(runSummary{
		RunID:    status.RunID,
		Layout:   cfg.Layout,
		Channels: registry.Len(),
		WorkDir:  status.WorkDir,
		Listen:   addr,
	}, func(w io.Writer) error {
		fmt.Fprintf(w, "Twin %s started on layout %s (%d channels)\n", status.RunID, cfg.Layout, registry.Len())
		if addr != "" {
			fmt.Fprintf(w, "Serving channels on http://%s\n", addr)
		}
		_, err := fmt.Fprintln(w, "Press Ctrl-C to stop.")
		return err
	}); err != nil {
		logger.Warn("write summary", "error", err)
	}
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx))
	case serveErr = <-served:
		logger.Error("http server failed", "error", serveErr)
	}

	return shutdown(rt, host, srv, logger, formatter, serveErr)
}

func shutdown(rt *engine.Runtime, host *channels.Server, srv *http.Server, logger *slog.Logger, formatter *OutputFormatter, serveErr error) error {
	var errs []error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	// Monitors end before the runtime stops so websocket clients see a
	// clean close.
	host.Close()

	if err := rt.Stop(); err != nil {
		errs = append(errs, err)
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		errs = append(errs, serveErr)
	}

	status := rt.Status()
	logger.Info("twin stopped", "run", status.RunID, "cycles", status.Cycles, "failures", status.Failures)

	if err := errors.Join(errs...); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRuntime, "stopping twin", err)
	}
	return nil
}

type runSummary struct {
	RunID    string `json:"run_id"`
	Layout   string `json:"layout"`
	Channels int    `json:"channels"`
	WorkDir  string `json:"work_dir"`
	Listen   string `json:"listen,omitempty"`
}
