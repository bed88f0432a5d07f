package supervisor

import (
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats is a best-effort resource reading of the encoder process.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// collectStats returns nil when the process cannot be inspected.
func collectStats(pid int) *ProcessStats {
	if pid <= 0 {
		return nil
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	stats := &ProcessStats{PID: proc.Pid}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	return stats
}
