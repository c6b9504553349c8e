package metrics

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/process"
)

// RecordMinerResources samples CPU and memory of the miner process. Errors are expected when
// the process exits between detection and sampling and are only logged at debug level.
func RecordMinerResources(ctx context.Context, pid int32) {
	if !regOK.Load() || pid <= 0 {
		return
	}
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		slog.Debug("Failed to open miner process for sampling", "pid", pid, "error", err)
		return
	}
	cpuPercent, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		slog.Debug("Failed to get CPU percent", "pid", pid, "error", err)
		cpuPercent = 0
	}
	var rss uint64
	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil {
		rss = memInfo.RSS
	} else {
		slog.Debug("Failed to get memory info", "pid", pid, "error", err)
	}
	SetMinerResources(cpuPercent, rss)
}
