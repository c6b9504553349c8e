package monitor

// Outcome is the named result of one check cycle.
type Outcome int

const (
	OutcomeNone            Outcome = iota // no cycle has run yet
	OutcomeSkipNotSeen                    // absent and never seen running
	OutcomeSkipGrace                      // running but younger than the startup grace
	OutcomeSkipPoolUnknown                // pool status could not be determined
	OutcomeHealthy                        // pool is fresh
	OutcomeRecovered                      // was absent, started again
	OutcomeRecoverFailed                  // was absent, start failed
	OutcomeRestarted                      // pool stale, stopped and started
	OutcomeStopFailed                     // pool stale, stop failed
	OutcomeRestartFailed                  // pool stale, stopped but start failed
	OutcomeCanceled                       // shutdown observed mid-cycle
)

var outcomeNames = map[Outcome]string{
	OutcomeNone:            "none",
	OutcomeSkipNotSeen:     "skip_not_seen",
	OutcomeSkipGrace:       "skip_grace",
	OutcomeSkipPoolUnknown: "skip_pool_unknown",
	OutcomeHealthy:         "healthy",
	OutcomeRecovered:       "recovered",
	OutcomeRecoverFailed:   "recover_failed",
	OutcomeRestarted:       "restarted",
	OutcomeStopFailed:      "stop_failed",
	OutcomeRestartFailed:   "restart_failed",
	OutcomeCanceled:        "canceled",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Fatal reports whether the outcome ends the supervisor loop.
func (o Outcome) Fatal() bool {
	switch o {
	case OutcomeRecoverFailed, OutcomeStopFailed, OutcomeRestartFailed:
		return true
	}
	return false
}

// MarshalText lets Outcome render by name in JSON.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }
