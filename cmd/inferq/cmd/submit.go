package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psilva81/inferq/pkg/models"
)

var (
	submitPayload  string
	submitFile     string
	submitUser     string
	submitPriority string
	submitMeta     []string
	submitFollow   bool
)

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an analysis request",
	Long: `Submit a payload for analysis. The payload comes from --payload, --file,
or stdin, checked in that order.`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitPayload, "payload", "", "payload text to analyze")
	submitCmd.Flags().StringVar(&submitFile, "file", "", "file whose contents are the payload")
	submitCmd.Flags().StringVar(&submitUser, "user", "", "user the request is attributed to (required)")
	submitCmd.Flags().StringVar(&submitPriority, "priority", "normal", "priority: low, normal, high, urgent")
	submitCmd.Flags().StringArrayVar(&submitMeta, "meta", nil, "metadata as key=value (repeatable)")
	submitCmd.Flags().BoolVar(&submitFollow, "follow", false, "poll request status every 2 seconds until completion")
	submitCmd.MarkFlagRequired("user")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	payload, err := resolvePayload()
	if err != nil {
		return err
	}

	metadata, err := parseMetadata(submitMeta)
	if err != nil {
		return err
	}

	req := &models.SubmitRequest{
		Payload:  payload,
		UserID:   submitUser,
		Priority: submitPriority,
		Metadata: metadata,
	}

	requestID, err := GetClient().Submit(req)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(map[string]string{
			"request_id": requestID,
			"status":     "queued",
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Field", "Value")
		table.Append("Request ID", requestID)
		table.Append("User", submitUser)
		table.Append("Priority", submitPriority)
		table.Append("Status", "queued")
		table.Render()
		fmt.Printf("\nRequest submitted successfully! ID: %s\n", requestID)
	}

	if submitFollow {
		fmt.Println()
		return followRequest(requestID)
	}
	return nil
}

// resolvePayload picks the payload source: --payload, then --file, then stdin
func resolvePayload() (string, error) {
	if submitPayload != "" {
		return submitPayload, nil
	}
	if submitFile != "" {
		data, err := os.ReadFile(submitFile)
		if err != nil {
			return "", fmt.Errorf("failed to read payload file: %w", err)
		}
		return string(data), nil
	}

	info, err := os.Stdin.Stat()
	if err == nil && (info.Mode()&os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		if len(data) > 0 {
			return string(data), nil
		}
	}

	return "", fmt.Errorf("no payload provided (use --payload, --file, or pipe to stdin)")
}

// parseMetadata converts repeated key=value flags into a map
func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid metadata %q (expected key=value)", pair)
		}
		metadata[parts[0]] = parts[1]
	}
	return metadata, nil
}
