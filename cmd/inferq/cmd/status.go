package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psilva81/inferq/pkg/models"
)

var statusFollow bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Get the status of an analysis request",
	Long:  `Retrieve the current state of an analysis request, including its result once completed.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusFollow, "follow", false, "poll request status every 2 seconds until completion")
}

func runStatus(cmd *cobra.Command, args []string) error {
	requestID := args[0]

	if statusFollow {
		return followRequest(requestID)
	}

	snap, err := GetClient().Status(requestID)
	if err != nil {
		return err
	}
	displayRequest(snap)
	return nil
}

// followRequest polls every 2 seconds until the request reaches a terminal state
func followRequest(requestID string) error {
	fmt.Printf("Following request %s (press Ctrl+C to stop)...\n\n", requestID)
	for {
		snap, err := GetClient().Status(requestID)
		if err != nil {
			return err
		}

		// Clear screen and display status
		fmt.Print("\033[H\033[2J")
		displayRequest(snap)

		if models.IsTerminalState(snap.Status) {
			fmt.Println("\n✓ Request reached terminal state")
			return nil
		}

		time.Sleep(2 * time.Second)
	}
}

func displayRequest(snap *models.RequestSnapshot) {
	if IsJSONOutput() {
		output, _ := json.MarshalIndent(snap, "", "  ")
		fmt.Println(string(output))
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")

	table.Append("Request ID", snap.ID)
	table.Append("User", snap.UserID)
	table.Append("Priority", snap.Priority.String())
	table.Append("Status", string(snap.Status))

	if snap.WorkerID != "" {
		table.Append("Worker", snap.WorkerID)
	}
	if snap.Boosts > 0 {
		table.Append("Priority Boosts", fmt.Sprintf("%d", snap.Boosts))
	}

	table.Append("Created At", snap.CreatedAt.Format(time.RFC3339))
	if snap.StartedAt != nil {
		table.Append("Started At", snap.StartedAt.Format(time.RFC3339))
	}
	if snap.CompletedAt != nil {
		table.Append("Completed At", snap.CompletedAt.Format(time.RFC3339))
	}

	table.Append("Wait", fmt.Sprintf("%.1fs", snap.WaitSeconds))
	if snap.ProcessingSeconds > 0 {
		table.Append("Processing", fmt.Sprintf("%.1fs", snap.ProcessingSeconds))
	}

	if snap.Result != nil {
		if snap.Result.Model != "" {
			table.Append("Model", snap.Result.Model)
		}
		if snap.Result.Summary != "" {
			table.Append("Summary", snap.Result.Summary)
		}
		for name, value := range snap.Result.Counters {
			table.Append(name, fmt.Sprintf("%.0f", value))
		}
	}

	if snap.Error != "" {
		table.Append("Error", snap.Error)
	}

	if len(snap.Metadata) > 0 {
		metaJSON, _ := json.MarshalIndent(snap.Metadata, "", "  ")
		table.Append("Metadata", string(metaJSON))
	}

	table.Render()
}
