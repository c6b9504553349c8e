package minermon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/minermon/internal/config"
	"github.com/loykin/minermon/internal/detector"
	"github.com/loykin/minermon/internal/history"
	"github.com/loykin/minermon/internal/history/factory"
	"github.com/loykin/minermon/internal/metrics"
	"github.com/loykin/minermon/internal/monitor"
	"github.com/loykin/minermon/internal/notify"
	"github.com/loykin/minermon/internal/pool"
	"github.com/loykin/minermon/internal/process"
	iapi "github.com/loykin/minermon/internal/server"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Status = monitor.Status

type Outcome = monitor.Outcome

type Process = detector.Process

type PoolResult = pool.Result

type HistorySink = history.Sink

// ErrFatal is returned by Run when a recovery attempt failed.
var ErrFatal = monitor.ErrFatal

// LoadConfig loads and validates the config file at path.
func LoadConfig(path string) (*Config, error) {
	c, err := cfg.Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Watchdog is a facade over internal/monitor wired from a Config.
type Watchdog struct {
	cfg      *Config
	inner    *monitor.Monitor
	det      *detector.ExecutableDetector
	pool     *pool.Checker
	notifier *notify.EmailNotifier
	session  string
	sink     history.Sink
}

// New wires a Watchdog. A history sink that cannot be opened is logged and skipped.
func New(c *Config) *Watchdog {
	sink, err := openHistory(c.History.DSN)
	if err != nil {
		slog.Warn("History disabled", "error", err)
	}
	return NewWithHistory(c, sink)
}

// NewWithHistory wires a Watchdog that records events to sink; nil disables history.
func NewWithHistory(c *Config, sink HistorySink) *Watchdog {
	w := &Watchdog{
		cfg:     c,
		det:     detector.NewExecutableDetector(c.MinerExecutable),
		pool:    pool.NewChecker(c.PoolStatsAddressURL, c.PoolMaximumLastUpdateTimeout, c.PoolRequestTimeout),
		session: uuid.NewString(),
		sink:    sink,
	}
	w.notifier = &notify.EmailNotifier{
		MonitorName: c.MonitorName,
		Server:      c.SMTP.Server,
		From:        c.SMTP.Sender,
		Recipients:  c.SMTP.RecipientList(),
		DevMode:     c.DevMode,
		Sender: &notify.SMTPSender{
			Host:     c.SMTP.Server,
			Port:     c.SMTP.Port,
			Username: c.SMTP.Username,
			Password: c.SMTP.Password,
			TLS:      c.SMTP.TLS,
		},
	}
	ctl := &process.Controller{
		StartCommand: c.StartMinerCommand,
		StopCommand:  c.StopMinerCommand,
		Detector:     w.det,
		StartGrace:   c.StartGrace,
		StopGrace:    c.StopGrace,
		StopTimeout:  c.StopTimeout,
		Env:          c.CommandEnv(),
	}
	w.inner = monitor.New(monitor.Options{
		Detector:        w.det,
		Pool:            w.pool,
		Controller:      ctl,
		Notifier:        w.notifier,
		History:         history.NewRecorder(sink, c.MonitorName, w.session),
		StartupGrace:    c.StartupGrace,
		CheckInterval:   c.CheckInterval(),
		NotifyOnStartup: c.NotifyOnStartup,
	})
	return w
}

// Session identifies this watchdog run in history events.
func (w *Watchdog) Session() string { return w.session }

// Run executes the supervisor loop until ctx is canceled or recovery fails.
func (w *Watchdog) Run(ctx context.Context) error { return w.inner.Run(ctx) }

func (w *Watchdog) Kill(ctx context.Context) error    { return w.inner.Kill(ctx) }
func (w *Watchdog) Restart(ctx context.Context) error { return w.inner.Restart(ctx) }
func (w *Watchdog) Status() Status                    { return w.inner.Status() }

// Close releases the history sink.
func (w *Watchdog) Close() error {
	if c, ok := w.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CheckResult is a one-off probe of the miner and the pool.
type CheckResult struct {
	Process     *Process // nil when not running
	InGrace     bool
	PoolEnabled bool
	Pool        PoolResult
}

// Check probes the miner and the pool once without acting or notifying.
func (w *Watchdog) Check(ctx context.Context) (CheckResult, error) {
	var res CheckResult
	p, err := w.det.Detect(ctx)
	if err != nil {
		return res, fmt.Errorf("detect miner: %w", err)
	}
	res.Process = p
	if p != nil {
		res.InGrace = p.Uptime(time.Now()) < w.cfg.StartupGrace
	}
	res.PoolEnabled = w.cfg.PoolMonitoringEnabled()
	res.Pool = w.pool.Probe(ctx)
	return res, nil
}

// NotifyTest sends a test notification and reports why it was not sent, if it was not.
func (w *Watchdog) NotifyTest(ctx context.Context) error {
	return w.notifier.Deliver(ctx, monitor.EventTestNotification)
}

// NotificationSubject returns the subject line used for event.
func (w *Watchdog) NotificationSubject(event string) string { return w.notifier.Subject(event) }

// NewHTTPServer starts an HTTP server exposing status, metrics and manual commands.
// Manual commands in flight are canceled when ctx is done.
func NewHTTPServer(ctx context.Context, addr, basePath string, w *Watchdog) *http.Server {
	return iapi.NewServer(ctx, addr, basePath, w.inner)
}

// HTTPHandler returns the same API as NewHTTPServer for mounting in an existing server.
func HTTPHandler(ctx context.Context, basePath string, w *Watchdog) http.Handler {
	return iapi.NewRouter(ctx, w.inner, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

func openHistory(dsn string) (history.Sink, error) {
	if dsn == "" {
		return nil, nil
	}
	sink, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("history sink: %w", err)
	}
	return sink, nil
}
