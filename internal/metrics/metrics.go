package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	monitorCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minermon",
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Number of completed check cycles by outcome.",
		}, []string{"outcome"},
	)
	minerActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minermon",
			Subsystem: "miner",
			Name:      "actions_total",
			Help:      "Number of start/stop actions taken on the miner by result.",
		}, []string{"action", "result"},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minermon",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Number of notification attempts by result (sent, skipped, failed).",
		}, []string{"result"},
	)
	poolStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "minermon",
			Subsystem: "pool",
			Name:      "status",
			Help:      "Last pool verdict (1 = current status, 0 = other).",
		}, []string{"status"},
	)
	minerRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "minermon",
			Subsystem: "miner",
			Name:      "running",
			Help:      "Whether the miner process was found on the last check (1/0).",
		},
	)
	minerUptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "minermon",
			Subsystem: "miner",
			Name:      "uptime_seconds",
			Help:      "Uptime of the miner process at the last check.",
		},
	)
	minerCPU = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "minermon",
			Subsystem: "miner",
			Name:      "cpu_percent",
			Help:      "CPU usage of the miner process at the last check.",
		},
	)
	minerRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "minermon",
			Subsystem: "miner",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the miner process at the last check.",
		},
	)
)

var poolStatuses = []string{"fresh", "stale", "unknown"}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{monitorCycles, minerActions, notifications, poolStatus, minerRunning, minerUptime, minerCPU, minerRSS}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncCycle(outcome string) {
	if regOK.Load() {
		monitorCycles.WithLabelValues(outcome).Inc()
	}
}

func IncAction(action, result string) {
	if regOK.Load() {
		minerActions.WithLabelValues(action, result).Inc()
	}
}

func IncNotification(result string) {
	if regOK.Load() {
		notifications.WithLabelValues(result).Inc()
	}
}

func SetPoolStatus(status string) {
	if !regOK.Load() {
		return
	}
	for _, s := range poolStatuses {
		var v float64
		if s == status {
			v = 1
		}
		poolStatus.WithLabelValues(s).Set(v)
	}
}

func SetMinerRunning(running bool, uptimeSeconds float64) {
	if !regOK.Load() {
		return
	}
	if !running {
		minerRunning.Set(0)
		minerUptime.Set(0)
		minerCPU.Set(0)
		minerRSS.Set(0)
		return
	}
	minerRunning.Set(1)
	minerUptime.Set(uptimeSeconds)
}

func SetMinerResources(cpuPercent float64, rssBytes uint64) {
	if regOK.Load() {
		minerCPU.Set(cpuPercent)
		minerRSS.Set(float64(rssBytes))
	}
}
