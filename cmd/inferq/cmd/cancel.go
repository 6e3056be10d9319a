package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// cancelCmd represents the cancel command
var cancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "Cancel an analysis request",
	Long:  `Cancel a queued or processing request. Requests that already finished cannot be canceled.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	requestID := args[0]

	canceled, err := GetClient().Cancel(requestID)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(map[string]interface{}{
			"request_id": requestID,
			"canceled":   canceled,
		}, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if canceled {
		fmt.Printf("✓ Request %s canceled\n", requestID)
	} else {
		fmt.Printf("Request %s was not canceled (already finished)\n", requestID)
	}
	return nil
}
