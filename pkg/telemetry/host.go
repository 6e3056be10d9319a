package telemetry

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo describes the static hardware of this machine.
type HostInfo struct {
	CPUModel         string `json:"cpu_model"`
	CPUThreads       int    `json:"cpu_threads"`
	MemoryTotalBytes uint64 `json:"memory_total_bytes"`
	OS               string `json:"os"`
	Architecture     string `json:"architecture"`
}

// Detect samples static host facts once, without a running probe.
func Detect() (HostInfo, error) {
	info := HostInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}

	threads, err := cpu.Counts(true)
	if err != nil {
		return info, fmt.Errorf("failed to count CPUs: %w", err)
	}
	info.CPUThreads = threads

	// Model name is informational; some platforms report nothing
	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}

	vmem, err := mem.VirtualMemory()
	if err != nil {
		return info, fmt.Errorf("failed to read memory: %w", err)
	}
	info.MemoryTotalBytes = vmem.Total

	return info, nil
}

// FormatBytes renders a byte count as gigabytes for display.
func FormatBytes(b uint64) string {
	return fmt.Sprintf("%.1f GB", float64(b)/(1024*1024*1024))
}
