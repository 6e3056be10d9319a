package telemetry

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// sampleWindow is the blocking window handed to gopsutil per CPU sample.
const sampleWindow = 100 * time.Millisecond

// DefaultSampleInterval is how often the probe refreshes host readings.
const DefaultSampleInterval = 2 * time.Second

// ErrNotSampled is returned before the first background sample lands.
var ErrNotSampled = errors.New("telemetry: no sample collected yet")

// HostStats is a point-in-time view of host pressure.
type HostStats struct {
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	MemoryUsedBytes  uint64  `json:"memory_used_bytes"`
	MemoryTotalBytes uint64  `json:"memory_total_bytes"`
}

// Probe samples host CPU and memory in the background and serves the cached
// readings, so admission checks never block on collection.
type Probe struct {
	interval time.Duration

	mu      sync.RWMutex
	stats   HostStats
	sampled bool
	lastErr error

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewProbe builds a probe refreshing at the given interval. Non-positive
// intervals fall back to the default.
func NewProbe(interval time.Duration) *Probe {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Probe{
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sampling loop. Safe to call once; later calls are no-ops.
func (p *Probe) Start() {
	p.startOnce.Do(func() {
		go p.loop()
	})
}

// Stop halts sampling and waits for the loop to exit.
func (p *Probe) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	select {
	case <-p.doneCh:
	case <-time.After(2 * sampleWindow):
		// Loop was never started; nothing to join.
	}
}

func (p *Probe) loop() {
	defer close(p.doneCh)

	log.Printf("[Telemetry] Host probe started (interval %v)", p.interval)
	p.refresh()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.refresh()
		case <-p.stopCh:
			log.Println("[Telemetry] Host probe stopped")
			return
		}
	}
}

func (p *Probe) refresh() {
	var stats HostStats

	cpuPercent, err := cpu.Percent(sampleWindow, false)
	if err == nil && len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	} else if err == nil {
		err = errors.New("telemetry: empty cpu sample")
	}

	if err == nil {
		var vmem *mem.VirtualMemoryStat
		vmem, err = mem.VirtualMemory()
		if err == nil {
			stats.MemoryPercent = vmem.UsedPercent
			stats.MemoryUsedBytes = vmem.Used
			stats.MemoryTotalBytes = vmem.Total
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		log.Printf("[Telemetry] Host sample failed: %v", err)
		p.lastErr = err
		return
	}
	p.stats = stats
	p.sampled = true
	p.lastErr = nil
}

// CPUPercent returns the most recent CPU reading.
func (p *Probe) CPUPercent() (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.sampled {
		if p.lastErr != nil {
			return 0, p.lastErr
		}
		return 0, ErrNotSampled
	}
	return p.stats.CPUPercent, nil
}

// MemoryPercent returns the most recent memory reading.
func (p *Probe) MemoryPercent() (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.sampled {
		if p.lastErr != nil {
			return 0, p.lastErr
		}
		return 0, ErrNotSampled
	}
	return p.stats.MemoryPercent, nil
}

// Stats returns the full cached host view for health reporting.
func (p *Probe) Stats() (HostStats, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.sampled {
		if p.lastErr != nil {
			return HostStats{}, p.lastErr
		}
		return HostStats{}, ErrNotSampled
	}
	return p.stats, nil
}
