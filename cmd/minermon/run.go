package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/minermon"
	"github.com/loykin/minermon/internal/console"
	"github.com/loykin/minermon/internal/instance"
)

// RunFlags holds flags for the run command.
type RunFlags struct {
	NoConsole bool
}

func createRunCommand(global *GlobalFlags) *cobra.Command {
	flags := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run [config]",
		Short: "Start watching the miner",
		Long: `Start the watchdog. Keys K, R and X force kill, restart the miner or exit the
monitor. Exiting never kills the miner.

Examples:
  minermon run                         # uses ./minermon.toml
  minermon run /etc/minermon.toml
  minermon run --no-console            # as a service, stop with SIGTERM`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := global.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			var in *os.File
			if !flags.NoConsole {
				in = os.Stdin
			}
			return runWatchdog(ctx, path, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&flags.NoConsole, "no-console", false, "do not read operator keys from stdin")
	return cmd
}

// runWatchdog runs the supervisor loop and the key listener until the operator exits,
// ctx is canceled or the loop ends on its own. in may be nil to disable keys.
func runWatchdog(ctx context.Context, path string, in *os.File, out io.Writer) error {
	cfg, err := minermon.LoadConfig(path)
	if err != nil {
		return err
	}

	var keys io.Reader
	if in != nil {
		restore, raw := console.MakeRaw(in)
		defer restore()
		if raw {
			out = &console.CRLFWriter{W: out}
		}
		keys = in
	}
	logCloser := setupLogging(cfg, out)
	defer func() { _ = logCloser.Close() }()

	slog.Info("MinerMon", "version", version, "monitor", cfg.MonitorName)
	if !cfg.PoolMonitoringEnabled() {
		slog.Warn("PoolStatsAddressUrl not set in configuration file, ignoring pool monitoring")
	}

	lock, err := instance.Acquire(cfg.LockFile)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	if err := minermon.RegisterMetricsDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	mon := minermon.New(cfg)
	defer func() {
		if err := mon.Close(); err != nil {
			slog.Warn("Failed to close history sink", "error", err)
		}
	}()
	slog.Debug("Watchdog session", "session", mon.Session())

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()

	var srv *http.Server
	if cfg.HTTP.Listen != "" {
		srv = minermon.NewHTTPServer(loopCtx, cfg.HTTP.Listen, "", mon)
		slog.Info("HTTP server listening", "addr", cfg.HTTP.Listen)
	}

	console.PrintHelp(out)

	loopDone := make(chan struct{})
	var loopErr error
	go func() {
		defer close(loopDone)
		loopErr = mon.Run(loopCtx)
	}()

	listener := &console.Listener{In: keys, Out: out, Commands: mon}
	reason := listener.Run(ctx, loopDone)

	if reason != console.ReasonLoopEnded {
		cancelLoop()
		slog.Info("Please wait, stopping monitoring")
		waitLoop(loopDone, cfg.ExitGrace)
	}
	if srv != nil {
		cancelLoop()
		shutdownServer(srv, cfg.ExitGrace)
	}
	slog.Info("Exited", "reason", reason.String())

	if reason == console.ReasonPanic {
		return console.ErrCommandPanic
	}
	select {
	case <-loopDone:
		return loopErr
	default:
		return nil
	}
}

// waitLoop waits up to grace for the supervisor loop to unwind and reports whether it did.
func waitLoop(loopDone <-chan struct{}, grace time.Duration) bool {
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-loopDone:
		return true
	case <-t.C:
		slog.Warn("Supervisor loop did not stop in time, exiting anyway", "grace", grace)
		return false
	}
}

func shutdownServer(srv *http.Server, grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("HTTP server shutdown failed", "error", err)
	}
}
