package detector

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Candidate is one entry of the OS process table.
type Candidate interface {
	PID() int32
	Name(ctx context.Context) (string, error)
	Exe(ctx context.Context) (string, error)
	// CreateTime returns the start time in milliseconds since the epoch.
	CreateTime(ctx context.Context) (int64, error)
}

// Lister enumerates the process table.
type Lister func(ctx context.Context) ([]Candidate, error)

// ExecutableDetector finds the first process whose executable base name matches
// Executable, ignoring case.
type ExecutableDetector struct {
	Executable string
	list       Lister
}

func NewExecutableDetector(executable string) *ExecutableDetector {
	return &ExecutableDetector{Executable: executable, list: listSystem}
}

// NewExecutableDetectorWithLister is used by tests to replace the process table.
func NewExecutableDetectorWithLister(executable string, l Lister) *ExecutableDetector {
	return &ExecutableDetector{Executable: executable, list: l}
}

func (d *ExecutableDetector) Describe() string { return "exe:" + d.Executable }

// Detect walks the process table. Processes whose name and image path cannot be read are
// skipped. A match whose start time cannot be read is returned with a zero StartTime.
func (d *ExecutableDetector) Detect(ctx context.Context) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	procs, err := d.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, ok := d.match(ctx, p)
		if !ok {
			continue
		}
		proc := &Process{Name: name, PID: p.PID()}
		// A zero StartTime reads as uptime 0, so the miner is treated as still starting.
		if ms, err := p.CreateTime(ctx); err != nil {
			slog.Debug("Miner start time unreadable", "pid", p.PID(), "error", err)
		} else {
			proc.StartTime = time.UnixMilli(ms)
		}
		return proc, nil
	}
	return nil, nil
}

func (d *ExecutableDetector) match(ctx context.Context, p Candidate) (string, bool) {
	want := strings.TrimSpace(d.Executable)
	if want == "" {
		return "", false
	}
	name, err := p.Name(ctx)
	if err == nil && strings.EqualFold(name, want) {
		return name, true
	}
	// Names may be truncated (Linux comm) or lack the extension; fall back to the image path.
	exe, err := p.Exe(ctx)
	if err != nil || exe == "" {
		return "", false
	}
	base := filepath.Base(exe)
	if strings.EqualFold(base, want) {
		return base, true
	}
	return "", false
}

type systemProcess struct{ p *gopsproc.Process }

func (s systemProcess) PID() int32 { return s.p.Pid }

func (s systemProcess) Name(ctx context.Context) (string, error) { return s.p.NameWithContext(ctx) }

func (s systemProcess) Exe(ctx context.Context) (string, error) { return s.p.ExeWithContext(ctx) }

func (s systemProcess) CreateTime(ctx context.Context) (int64, error) {
	return s.p.CreateTimeWithContext(ctx)
}

func listSystem(ctx context.Context) ([]Candidate, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(procs))
	for _, p := range procs {
		out = append(out, systemProcess{p: p})
	}
	return out, nil
}
