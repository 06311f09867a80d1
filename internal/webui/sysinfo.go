package webui

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// systemInfo is the host snapshot shown by /api/status. Fields a platform
// cannot report are left zero.
type systemInfo struct {
	Goroutines       int     `json:"goroutines"`
	ProcessRSSBytes  uint64  `json:"process_rss_bytes,omitempty"`
	HostMemUsedPct   float64 `json:"host_mem_used_percent,omitempty"`
	HostMemAvailable uint64  `json:"host_mem_available_bytes,omitempty"`
}

func readSystemInfo(ctx context.Context) systemInfo {
	info := systemInfo{Goroutines: runtime.NumGoroutine()}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.HostMemUsedPct = vm.UsedPercent
		info.HostMemAvailable = vm.Available
	}
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			info.ProcessRSSBytes = mi.RSS
		}
	}
	return info
}
