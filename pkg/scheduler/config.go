package scheduler

import (
	"fmt"
	"time"
)

// Config holds scheduler configuration
type Config struct {
	MaxQueueSize  int           // Max pending requests (queued + active) before Submit rejects
	MaxWorkers    int           // Fixed worker pool size
	WorkerTimeout time.Duration // Execution deadline handed to the executor
	QueueTimeout  time.Duration // Max time a request may wait before expiring; 0 expires everything on the next tick
	TickInterval  time.Duration // Dispatcher cadence

	BoostThreshold         time.Duration // Wait time before a request is raised one tier
	EnablePriorityBoosting bool

	MaxCPUPercent         float64 // Admission ceiling for host CPU usage
	MaxMemoryPercent      float64 // Admission ceiling for host memory usage
	EnableAdaptiveScaling bool    // When false the governor admits unconditionally
	ResourceBackoff       time.Duration

	CleanupInterval time.Duration // Reaper cadence
	RetentionPeriod time.Duration // How long completed requests are retained
	HistoryLimit    int           // Hard cap on retained completed requests
	StatsWindow     int           // History entries used for average wait/processing times
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxQueueSize:           100,
		MaxWorkers:             3,
		WorkerTimeout:          5 * time.Minute,
		QueueTimeout:           10 * time.Minute,
		TickInterval:           1 * time.Second,
		BoostThreshold:         60 * time.Second,
		EnablePriorityBoosting: true,
		MaxCPUPercent:          80.0,
		MaxMemoryPercent:       85.0,
		EnableAdaptiveScaling:  true,
		ResourceBackoff:        5 * time.Second,
		CleanupInterval:        5 * time.Minute,
		RetentionPeriod:        24 * time.Hour,
		HistoryLimit:           1000,
		StatsWindow:            100,
	}
}

// Validate checks the configuration for values the scheduler cannot run with
func (c *Config) Validate() error {
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max queue size must be positive, got %d", c.MaxQueueSize)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive, got %d", c.MaxWorkers)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	if c.QueueTimeout < 0 {
		return fmt.Errorf("queue timeout must not be negative, got %v", c.QueueTimeout)
	}
	if c.WorkerTimeout < 0 {
		return fmt.Errorf("worker timeout must not be negative, got %v", c.WorkerTimeout)
	}
	if c.EnablePriorityBoosting && c.BoostThreshold <= 0 {
		return fmt.Errorf("boost threshold must be positive when boosting is enabled, got %v", c.BoostThreshold)
	}
	if c.MaxCPUPercent <= 0 || c.MaxCPUPercent > 100 {
		return fmt.Errorf("max cpu percent must be in (0, 100], got %v", c.MaxCPUPercent)
	}
	if c.MaxMemoryPercent <= 0 || c.MaxMemoryPercent > 100 {
		return fmt.Errorf("max memory percent must be in (0, 100], got %v", c.MaxMemoryPercent)
	}
	if c.ResourceBackoff < 0 {
		return fmt.Errorf("resource backoff must not be negative, got %v", c.ResourceBackoff)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %v", c.CleanupInterval)
	}
	if c.RetentionPeriod <= 0 {
		return fmt.Errorf("retention period must be positive, got %v", c.RetentionPeriod)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive, got %d", c.HistoryLimit)
	}
	if c.StatsWindow <= 0 {
		return fmt.Errorf("stats window must be positive, got %d", c.StatsWindow)
	}
	return nil
}
