package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType names an action the watchdog took.
type EventType string

const (
	EventStarted       EventType = "started" // watchdog session began
	EventStopped       EventType = "stopped" // watchdog session ended
	EventRecovered     EventType = "recovered"
	EventRecoverFailed EventType = "recover_failed"
	EventRestarted     EventType = "restarted"
	EventStopFailed    EventType = "stop_failed"
	EventRestartFailed EventType = "restart_failed"
	EventManualKill    EventType = "manual_kill"
	EventManualRestart EventType = "manual_restart"
)

// Event is one audit entry exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Monitor    string    `json:"monitor"`
	Session    string    `json:"session"`
	PID        int32     `json:"pid"`
	Detail     string    `json:"detail"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Recorder stamps events with the monitor name and session id and forwards them to a Sink.
// Write failures are logged and never returned. A nil Recorder or nil sink records nothing.
type Recorder struct {
	sink    Sink
	monitor string
	session string
	now     func() time.Time
}

func NewRecorder(sink Sink, monitor, session string) *Recorder {
	return &Recorder{sink: sink, monitor: monitor, session: session, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, typ EventType, pid int32, detail string) {
	if r == nil || r.sink == nil {
		return
	}
	e := Event{
		Type:       typ,
		OccurredAt: r.now().UTC(),
		Monitor:    r.monitor,
		Session:    r.session,
		PID:        pid,
		Detail:     detail,
	}
	// Audit entries are written even while shutting down.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.sink.Send(wctx, e); err != nil {
		slog.Warn("Failed to write history event", "type", typ, "error", err)
	}
}
