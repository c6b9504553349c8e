package detector

import (
	"context"
	"time"
)

// Process identifies a live instance of the supervised executable.
type Process struct {
	Name      string
	PID       int32
	StartTime time.Time
}

// Uptime returns how long the process has been running at now.
func (p Process) Uptime(now time.Time) time.Duration {
	if p.StartTime.IsZero() {
		return 0
	}
	return now.Sub(p.StartTime)
}

// Detector locates the supervised process. Detect returns nil when no matching process is
// running. It must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context) (*Process, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}
