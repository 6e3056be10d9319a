package scheduler

import (
	"log"
)

// Telemetry supplies host resource readings for admission decisions.
// Implementations should return cached values; Admit runs on every dispatch.
type Telemetry interface {
	CPUPercent() (float64, error)
	MemoryPercent() (float64, error)
}

// ResourceGovernor gates dispatch on host resource headroom. A probe failure
// admits the request: scheduling proceeds on missing telemetry rather than
// stalling the queue.
type ResourceGovernor struct {
	telemetry Telemetry
	maxCPU    float64
	maxMemory float64
	enabled   bool
}

// NewResourceGovernor builds a governor from the scheduler configuration.
// With adaptive scaling disabled, or no telemetry source, every request is
// admitted.
func NewResourceGovernor(cfg *Config, telemetry Telemetry) *ResourceGovernor {
	return &ResourceGovernor{
		telemetry: telemetry,
		maxCPU:    cfg.MaxCPUPercent,
		maxMemory: cfg.MaxMemoryPercent,
		enabled:   cfg.EnableAdaptiveScaling && telemetry != nil,
	}
}

// Admit reports whether the host has headroom for another dispatch.
func (g *ResourceGovernor) Admit() bool {
	if !g.enabled {
		return true
	}

	cpu, err := g.telemetry.CPUPercent()
	if err != nil {
		log.Printf("[Governor] CPU probe failed, admitting: %v", err)
		return true
	}
	if cpu >= g.maxCPU {
		log.Printf("[Governor] CPU at %.1f%% (ceiling %.1f%%), holding dispatch", cpu, g.maxCPU)
		return false
	}

	mem, err := g.telemetry.MemoryPercent()
	if err != nil {
		log.Printf("[Governor] Memory probe failed, admitting: %v", err)
		return true
	}
	if mem >= g.maxMemory {
		log.Printf("[Governor] Memory at %.1f%% (ceiling %.1f%%), holding dispatch", mem, g.maxMemory)
		return false
	}

	return true
}
