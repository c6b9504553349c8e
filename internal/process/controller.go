package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/minermon/internal/detector"
	"github.com/loykin/minermon/internal/metrics"
)

var (
	// ErrCanceled is returned when the watchdog is shutting down mid-operation.
	ErrCanceled = errors.New("operation canceled")
	// ErrNotStarted means the start command ran but the miner was not found afterwards.
	ErrNotStarted = errors.New("miner not running after start")
	// ErrStillRunning means the stop command ran but the miner is still present.
	ErrStillRunning = errors.New("miner still running after stop")
)

// Controller starts and stops the miner through the configured shell commands and
// verifies the effect with a Detector. It holds no lock; callers serialize access.
type Controller struct {
	StartCommand string
	StopCommand  string
	Detector     detector.Detector
	StartGrace   time.Duration // wait after the start command before re-probing
	StopGrace    time.Duration // wait after the stop command before re-probing
	StopTimeout  time.Duration // how long the stop command may run
	// Env is the environment for both commands in "K=V" form; nil inherits ours.
	Env []string
}

// Start launches the start command detached from the watchdog, waits StartGrace and
// succeeds iff the miner is then found.
func (c *Controller) Start(ctx context.Context) error {
	err := c.start(ctx)
	metrics.IncAction("start", resultLabel(err))
	return err
}

func (c *Controller) start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}
	slog.Info("Starting miner", "command", c.StartCommand)
	// The miner must outlive the watchdog, so the launch is not bound to ctx.
	cmd := shellCommand(context.Background(), c.StartCommand)
	cmd.Env = c.Env
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	if !Wait(ctx, c.StartGrace) {
		return ErrCanceled
	}
	p, err := c.detect(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		slog.Error("Miner start failed", "executable", c.Detector.Describe())
		return ErrNotStarted
	}
	slog.Info("Miner started", "pid", p.PID)
	return nil
}

// Stop succeeds immediately when no miner is running. Otherwise it runs the stop command
// (bounded by StopTimeout), waits StopGrace and succeeds iff the miner is gone.
func (c *Controller) Stop(ctx context.Context) error {
	err := c.stop(ctx)
	metrics.IncAction("stop", resultLabel(err))
	return err
}

func (c *Controller) stop(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}
	slog.Info("Stopping miner", "command", c.StopCommand)
	p, err := c.detect(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		slog.Info("Miner not running, nothing to stop")
		return nil
	}

	c.runStopCommand(ctx)
	if ctx.Err() != nil {
		return ErrCanceled
	}
	if !Wait(ctx, c.StopGrace) {
		return ErrCanceled
	}
	p, err = c.detect(ctx)
	if err != nil {
		return err
	}
	if p != nil {
		slog.Error("Miner stop failed", "pid", p.PID)
		return ErrStillRunning
	}
	slog.Info("Miner stopped")
	return nil
}

func (c *Controller) runStopCommand(ctx context.Context) {
	timeout := c.StopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := shellCommand(runCtx, c.StopCommand)
	cmd.Env = c.Env
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		// Only the re-probe decides success; the exit status is informational.
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			slog.Warn("Stop command did not finish in time", "timeout", timeout)
			return
		}
		slog.Warn("Stop command failed", "error", err)
	}
}

func (c *Controller) detect(ctx context.Context) (*detector.Process, error) {
	p, err := c.Detector.Detect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		return nil, fmt.Errorf("detect miner: %w", err)
	}
	return p, nil
}

// Wait blocks for d or until ctx is done. It reports whether the full duration elapsed.
func Wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "failed"
	}
}
