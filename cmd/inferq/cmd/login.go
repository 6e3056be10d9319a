package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	loginUser string
	loginSave bool
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Create a session token",
	Long: `Exchange the configured API key for a per-user session token. Subsequent
commands can authenticate with the session instead of the shared key.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&loginUser, "user", "", "user to create the session for (required)")
	loginCmd.Flags().BoolVar(&loginSave, "save", false, "write the session to the config file")
	loginCmd.MarkFlagRequired("user")
}

func runLogin(cmd *cobra.Command, args []string) error {
	session, err := GetClient().CreateSession(loginUser)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(session, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("✓ Session created for %s\n", session.UserID)
		fmt.Printf("  Token:   %s\n", session.Token)
		fmt.Printf("  Expires: %s\n", session.ExpiresAt.Format(time.RFC3339))
	}

	if !loginSave {
		if !IsJSONOutput() {
			fmt.Println("\nRe-run with --save to store the session in the config file")
		}
		return nil
	}

	path, err := configFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settings := map[string]string{
		"server_url":    serverURL,
		"session_user":  session.UserID,
		"session_token": session.Token,
	}
	if apiKey != "" {
		settings["api_key"] = apiKey
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if !IsJSONOutput() {
		fmt.Printf("\n✓ Session saved to %s\n", path)
	}
	return nil
}
