package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon health",
	Long:  `Probe the daemon's health endpoint. Exits non-zero when the daemon is unreachable.`,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	if err := GetClient().Health(); err != nil {
		return fmt.Errorf("daemon unhealthy: %w", err)
	}
	fmt.Printf("✓ %s is healthy\n", serverURL)
	return nil
}
