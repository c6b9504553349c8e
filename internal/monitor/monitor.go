package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/loykin/minermon/internal/detector"
	"github.com/loykin/minermon/internal/history"
	"github.com/loykin/minermon/internal/metrics"
	"github.com/loykin/minermon/internal/notify"
	"github.com/loykin/minermon/internal/pool"
	"github.com/loykin/minermon/internal/process"
)

// ErrFatal ends the supervisor loop after a recovery attempt failed.
var ErrFatal = errors.New("miner recovery failed, manual intervention required")

// Notification subjects.
const (
	EventStarted          = "Started"
	EventRecovered        = "Miner executable was not running, miner started."
	EventRecoverFailed    = "Miner executable was not running, failed to restart miner!"
	EventStopFailed       = "Miner pool not updating, failed to stop miner!"
	EventRestarted        = "Miner pool not updating, miner re-started."
	EventRestartFailed    = "Miner pool not updating, failed to restart miner!"
	EventTestNotification = "Test notification"
)

// Controller starts and stops the miner. *process.Controller satisfies it.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// PoolChecker reduces the pool stats endpoint to a verdict. *pool.Checker satisfies it.
type PoolChecker interface {
	Check(ctx context.Context) pool.Status
}

// Options wires a Monitor to its collaborators.
type Options struct {
	Detector      detector.Detector
	Pool          PoolChecker
	Controller    Controller
	Notifier      notify.Notifier // nil disables notifications
	History       *history.Recorder
	StartupGrace  time.Duration
	CheckInterval time.Duration
	// NotifyOnStartup sends EventStarted before the first cycle.
	NotifyOnStartup bool
}

// Status is a snapshot of the most recent cycle.
type Status struct {
	Outcome         Outcome   `json:"outcome"`
	CheckedAt       time.Time `json:"checked_at"`
	MinerWasRunning bool      `json:"miner_was_running"`
	PID             int32     `json:"pid"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	PoolStatus      string    `json:"pool_status"`
	Stopped         bool      `json:"stopped"`
}

// Monitor runs the check/decide/act cycle. One mutex serializes whole cycles and
// whole manual commands, so the two never interleave start/stop actions.
type Monitor struct {
	opts Options
	now  func() time.Time

	mu         sync.Mutex
	wasRunning bool // once true never reverts

	statusMu sync.RWMutex
	status   Status
}

func New(opts Options) *Monitor {
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	return &Monitor{opts: opts, now: time.Now, status: Status{PoolStatus: pool.StatusUnknown.String()}}
}

// Status returns the last cycle snapshot.
func (m *Monitor) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// WasRunning reports whether the miner was ever seen running past its startup grace.
func (m *Monitor) WasRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wasRunning
}

// Run executes cycles until ctx is canceled or a cycle ends fatally. It returns nil on
// cancellation, an error wrapping ErrFatal on a failed recovery, and any other error for
// a probe failure or a recovered panic.
func (m *Monitor) Run(ctx context.Context) (err error) {
	if ctx.Err() != nil {
		return nil
	}
	m.opts.History.Record(ctx, history.EventStarted, 0, "")
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Supervisor loop panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("supervisor loop panic: %v", r)
		}
		m.setStopped()
		m.opts.History.Record(ctx, history.EventStopped, 0, errString(err))
	}()

	if m.opts.NotifyOnStartup {
		m.opts.Notifier.Notify(ctx, EventStarted)
	}
	for {
		outcome, cerr := m.RunCycle(ctx)
		if cerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("An error occurred while monitoring", "error", cerr)
			return cerr
		}
		if outcome.Fatal() {
			return fmt.Errorf("%w: %s", ErrFatal, outcome)
		}
		if outcome == OutcomeCanceled || !process.Wait(ctx, m.opts.CheckInterval) {
			return nil
		}
	}
}

// RunCycle performs one check cycle under the monitor lock.
func (m *Monitor) RunCycle(ctx context.Context) (Outcome, error) {
	if ctx.Err() != nil {
		return OutcomeCanceled, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Status{CheckedAt: m.now(), PoolStatus: pool.StatusUnknown.String()}
	outcome, err := m.cycle(ctx, &snap)
	if err == nil {
		snap.Outcome = outcome
		snap.MinerWasRunning = m.wasRunning
		m.setStatus(snap)
		metrics.IncCycle(outcome.String())
	}
	return outcome, err
}

func (m *Monitor) cycle(ctx context.Context, snap *Status) (Outcome, error) {
	slog.Info("Checking if miner is running", "miner", m.opts.Detector.Describe())
	p, err := m.opts.Detector.Detect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCanceled, nil
		}
		return OutcomeNone, fmt.Errorf("detect miner: %w", err)
	}
	if ctx.Err() != nil {
		return OutcomeCanceled, nil
	}

	if p == nil {
		metrics.SetMinerRunning(false, 0)
		if !m.wasRunning {
			slog.Info("Miner is not running (was not running before), skipping check")
			return OutcomeSkipNotSeen, nil
		}
		slog.Warn("Miner is not running (was running before), restarting miner")
		return m.recover(ctx), nil
	}

	uptime := p.Uptime(m.now())
	snap.PID = p.PID
	snap.UptimeSeconds = uptime.Seconds()
	metrics.SetMinerRunning(true, uptime.Seconds())
	metrics.RecordMinerResources(ctx, p.PID)
	if uptime < m.opts.StartupGrace {
		slog.Info("Miner is running but was started recently, skipping check",
			"pid", p.PID, "uptime", uptime.Round(time.Second))
		return OutcomeSkipGrace, nil
	}
	m.wasRunning = true
	slog.Info("Miner is running", "pid", p.PID, "uptime", uptime.Round(time.Second))

	slog.Info("Checking the miner pool last update")
	st := m.opts.Pool.Check(ctx)
	snap.PoolStatus = st.String()
	metrics.SetPoolStatus(st.String())
	if ctx.Err() != nil {
		return OutcomeCanceled, nil
	}
	switch st {
	case pool.StatusFresh:
		slog.Info("Miner pool is updated, all OK")
		return OutcomeHealthy, nil
	case pool.StatusStale:
		slog.Warn("Miner pool is not updated, restarting miner")
		return m.restart(ctx, p.PID), nil
	default:
		slog.Info("Could not determine pool status, skipping check")
		return OutcomeSkipPoolUnknown, nil
	}
}

func (m *Monitor) recover(ctx context.Context) Outcome {
	if err := m.opts.Controller.Start(ctx); err != nil {
		if canceled(ctx, err) {
			return OutcomeCanceled
		}
		slog.Error("Failed to restart miner", "error", err)
		m.opts.History.Record(ctx, history.EventRecoverFailed, 0, err.Error())
		m.opts.Notifier.Notify(ctx, EventRecoverFailed)
		return OutcomeRecoverFailed
	}
	m.opts.History.Record(ctx, history.EventRecovered, 0, "")
	m.opts.Notifier.Notify(ctx, EventRecovered)
	return OutcomeRecovered
}

func (m *Monitor) restart(ctx context.Context, pid int32) Outcome {
	if err := m.opts.Controller.Stop(ctx); err != nil {
		if canceled(ctx, err) {
			return OutcomeCanceled
		}
		slog.Error("Failed to stop miner", "pid", pid, "error", err)
		m.opts.History.Record(ctx, history.EventStopFailed, pid, err.Error())
		m.opts.Notifier.Notify(ctx, EventStopFailed)
		return OutcomeStopFailed
	}
	if err := m.opts.Controller.Start(ctx); err != nil {
		if canceled(ctx, err) {
			return OutcomeCanceled
		}
		slog.Error("Failed to restart miner", "error", err)
		m.opts.History.Record(ctx, history.EventRestartFailed, pid, err.Error())
		m.opts.Notifier.Notify(ctx, EventRestartFailed)
		return OutcomeRestartFailed
	}
	m.opts.History.Record(ctx, history.EventRestarted, pid, "pool stale")
	m.opts.Notifier.Notify(ctx, EventRestarted)
	return OutcomeRestarted
}

// Kill stops the miner unconditionally. The result is returned for callers that
// report it but has no effect on the supervisor loop.
func (m *Monitor) Kill(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slog.Info("Force killing miner")
	err := m.opts.Controller.Stop(ctx)
	m.opts.History.Record(ctx, history.EventManualKill, 0, errString(err))
	return err
}

// Restart stops and then starts the miner, aborting if the stop fails.
func (m *Monitor) Restart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slog.Info("Restarting miner")
	err := m.opts.Controller.Stop(ctx)
	if err == nil {
		err = m.opts.Controller.Start(ctx)
	}
	m.opts.History.Record(ctx, history.EventManualRestart, 0, errString(err))
	return err
}

func (m *Monitor) setStatus(s Status) {
	m.statusMu.Lock()
	m.status = s
	m.statusMu.Unlock()
}

func (m *Monitor) setStopped() {
	m.statusMu.Lock()
	m.status.Stopped = true
	m.statusMu.Unlock()
}

func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, process.ErrCanceled)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) {}
