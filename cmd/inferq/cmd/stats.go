package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psilva81/inferq/pkg/models"
	"github.com/psilva81/inferq/pkg/scheduler"
)

var statsFollow bool

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scheduler statistics",
	Long:  `Display queue depths, worker utilization, and lifetime request counters for the scheduler.`,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().BoolVar(&statsFollow, "follow", false, "refresh statistics every 2 seconds")
}

func runStats(cmd *cobra.Command, args []string) error {
	if !statsFollow {
		stats, err := GetClient().Stats()
		if err != nil {
			return err
		}
		displayStats(stats)
		return nil
	}

	fmt.Println("Watching scheduler statistics (press Ctrl+C to stop)...")
	for {
		stats, err := GetClient().Stats()
		if err != nil {
			return err
		}
		fmt.Print("\033[H\033[2J")
		displayStats(stats)
		time.Sleep(2 * time.Second)
	}
}

func displayStats(stats *scheduler.Stats) {
	if IsJSONOutput() {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")

	table.Append("Queue Length", fmt.Sprintf("%d", stats.CurrentQueueSize))
	table.Append("Peak Queue Length", fmt.Sprintf("%d", stats.PeakQueueSize))
	table.Append("Active Workers", fmt.Sprintf("%d / %d", stats.ActiveWorkers, stats.MaxWorkers))
	table.Append("Utilization", fmt.Sprintf("%.0f%%", stats.Utilization*100))
	table.Append("Submitted", fmt.Sprintf("%d", stats.Submitted))
	table.Append("Completed", fmt.Sprintf("%d", stats.Completed))
	table.Append("Failed", fmt.Sprintf("%d", stats.Failed))
	table.Append("Canceled", fmt.Sprintf("%d", stats.Canceled))
	table.Append("Timed Out", fmt.Sprintf("%d", stats.TimedOut))
	table.Append("Completed Last Hour", fmt.Sprintf("%d", stats.CompletedLastHour))
	table.Append("Avg Wait", fmt.Sprintf("%.1fs", stats.AvgWaitSeconds))
	table.Append("Avg Processing", fmt.Sprintf("%.1fs", stats.AvgProcessingSeconds))
	table.Render()

	// Lane depths in priority order
	fmt.Println()
	lanes := tablewriter.NewWriter(os.Stdout)
	lanes.Header("Priority Lane", "Queued")
	for _, p := range models.Priorities {
		lanes.Append(p.String(), fmt.Sprintf("%d", stats.LaneDepths[p.String()]))
	}
	lanes.Render()
}
