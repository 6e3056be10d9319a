package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psilva81/inferq/pkg/telemetry"
)

var (
	recommendEnvironment string
	recommendOutput      string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management and recommendations",
	Long:  `Commands for generating scheduler configuration based on host hardware.`,
}

var configRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Generate recommended scheduler configuration",
	Long: `Inspects host hardware (CPU threads, RAM) and suggests worker pool and
queue settings. Analysis work is endpoint-bound, so worker count scales
modestly with CPU; the admission ceilings protect interactive use of the host.`,
	RunE: runConfigRecommend,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configRecommendCmd)

	configRecommendCmd.Flags().StringVarP(&recommendEnvironment, "environment", "e", "development",
		"Deployment environment: development, staging, production")
	configRecommendCmd.Flags().StringVarP(&recommendOutput, "output", "o", "text",
		"Output format: text, json, yaml")
}

type SchedulerRecommendation struct {
	Hardware        HardwareInfo      `json:"hardware" yaml:"hardware"`
	Recommendations RecommendedConfig `json:"recommendations" yaml:"recommendations"`
	Rationale       string            `json:"rationale" yaml:"rationale"`
}

type HardwareInfo struct {
	CPUModel     string `json:"cpu_model" yaml:"cpu_model"`
	CPUThreads   int    `json:"cpu_threads" yaml:"cpu_threads"`
	RAMBytes     uint64 `json:"ram_bytes" yaml:"ram_bytes"`
	RAMGB        string `json:"ram_gb" yaml:"ram_gb"`
	OS           string `json:"os" yaml:"os"`
	Architecture string `json:"architecture" yaml:"architecture"`
}

type RecommendedConfig struct {
	MaxWorkers       int     `json:"max_workers" yaml:"max_workers"`
	MaxQueueSize     int     `json:"max_queue_size" yaml:"max_queue_size"`
	MaxCPUPercent    float64 `json:"max_cpu_percent" yaml:"max_cpu_percent"`
	MaxMemoryPercent float64 `json:"max_memory_percent" yaml:"max_memory_percent"`
}

func runConfigRecommend(cmd *cobra.Command, args []string) error {
	host, err := telemetry.Detect()
	if err != nil {
		return fmt.Errorf("failed to detect hardware: %w", err)
	}

	hardware := HardwareInfo{
		CPUModel:     host.CPUModel,
		CPUThreads:   host.CPUThreads,
		RAMBytes:     host.MemoryTotalBytes,
		RAMGB:        telemetry.FormatBytes(host.MemoryTotalBytes),
		OS:           host.OS,
		Architecture: host.Architecture,
	}

	config := calculateRecommendations(hardware, recommendEnvironment)
	rationale := generateRationale(hardware, config, recommendEnvironment)

	recommendation := SchedulerRecommendation{
		Hardware:        hardware,
		Recommendations: config,
		Rationale:       rationale,
	}

	return outputRecommendation(recommendation, recommendOutput)
}

func calculateRecommendations(hw HardwareInfo, environment string) RecommendedConfig {
	// Workers spend their time waiting on the model endpoint, not the CPU,
	// so half the thread count is plenty
	workers := hw.CPUThreads / 2
	if environment == "development" {
		workers = workers / 2
	}
	if workers < 1 {
		workers = 1
	}
	if workers > 12 {
		workers = 12
	}

	queueSize := workers * 32
	if queueSize > 512 {
		queueSize = 512
	}

	// Tighter ceilings on shared development machines
	cpuCeiling, memCeiling := 80.0, 85.0
	if environment == "development" {
		cpuCeiling, memCeiling = 70.0, 75.0
	}

	return RecommendedConfig{
		MaxWorkers:       workers,
		MaxQueueSize:     queueSize,
		MaxCPUPercent:    cpuCeiling,
		MaxMemoryPercent: memCeiling,
	}
}

func generateRationale(hw HardwareInfo, config RecommendedConfig, env string) string {
	envFactor := "100%"
	if env == "development" {
		envFactor = "50% (development environment)"
	}

	return fmt.Sprintf(
		"Based on %d CPU threads and %s: recommended %d workers with queue capacity %d "+
			"(capacity factor: %s, admission ceilings: %.0f%% CPU / %.0f%% memory)",
		hw.CPUThreads,
		hw.RAMGB,
		config.MaxWorkers,
		config.MaxQueueSize,
		envFactor,
		config.MaxCPUPercent,
		config.MaxMemoryPercent,
	)
}

func outputRecommendation(rec SchedulerRecommendation, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rec)

	case "yaml":
		// Emit a config file scheduler section ready for inferqd -config
		section := map[string]interface{}{
			"scheduler": map[string]interface{}{
				"max_workers":        rec.Recommendations.MaxWorkers,
				"max_queue_size":     rec.Recommendations.MaxQueueSize,
				"max_cpu_percent":    rec.Recommendations.MaxCPUPercent,
				"max_memory_percent": rec.Recommendations.MaxMemoryPercent,
			},
		}
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(section)

	default: // text
		fmt.Println("Hardware Configuration:")
		if rec.Hardware.CPUModel != "" {
			fmt.Printf("  CPU: %s (%d threads)\n", rec.Hardware.CPUModel, rec.Hardware.CPUThreads)
		} else {
			fmt.Printf("  CPU: %d threads\n", rec.Hardware.CPUThreads)
		}
		fmt.Printf("  RAM: %s\n", rec.Hardware.RAMGB)
		fmt.Printf("  OS: %s/%s\n", rec.Hardware.OS, rec.Hardware.Architecture)
		fmt.Println()

		fmt.Println("Recommended Scheduler Configuration:")
		fmt.Printf("  --workers %d\n", rec.Recommendations.MaxWorkers)
		fmt.Printf("  --queue-size %d\n", rec.Recommendations.MaxQueueSize)
		fmt.Printf("  max_cpu_percent: %.0f\n", rec.Recommendations.MaxCPUPercent)
		fmt.Printf("  max_memory_percent: %.0f\n", rec.Recommendations.MaxMemoryPercent)
		fmt.Println()

		fmt.Println("Rationale:")
		fmt.Printf("  %s\n", rec.Rationale)
		fmt.Println()

		fmt.Println("Example command:")
		fmt.Printf("  inferqd --workers %d --queue-size %d\n",
			rec.Recommendations.MaxWorkers, rec.Recommendations.MaxQueueSize)

		return nil
	}
}
