package cmd

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psilva81/inferq/pkg/client"
	tlsutil "github.com/psilva81/inferq/pkg/tls"
)

var (
	serverURL    string
	outputFormat string
	cfgFile      string
	apiKey       string
	sessionUser  string
	sessionToken string
	caCert       string
	insecureTLS  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "inferq",
	Short: "CLI for the inferq analysis scheduler",
	Long:  `inferq is a command line interface for submitting and managing analysis requests on an inferqd scheduler daemon.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.inferq/config)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "inferqd API URL (default from config or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&caCert, "ca-cert", "", "CA certificate for verifying a self-signed daemon")
	rootCmd.PersistentFlags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		// Search config in home directory with name ".inferq/config" (without extension)
		configDir := filepath.Join(home, ".inferq")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// Bind specific environment variables
	viper.BindEnv("api_key", "INFERQ_API_KEY")
	viper.BindEnv("server_url", "INFERQ_SERVER")

	// Config file is optional; flags win over file and environment values
	viper.ReadInConfig()

	if serverURL == "" {
		serverURL = viper.GetString("server_url")
	}
	if apiKey == "" {
		apiKey = viper.GetString("api_key")
	}
	if sessionUser == "" {
		sessionUser = viper.GetString("session_user")
	}
	if sessionToken == "" {
		sessionToken = viper.GetString("session_token")
	}

	// Set default if still empty
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// GetClient returns an API client configured from flags, config file, and environment
func GetClient() *client.Client {
	c := client.New(serverURL, apiKey)
	if sessionUser != "" && sessionToken != "" {
		c.SetSession(sessionUser, sessionToken)
	}
	if caCert != "" {
		tlsConfig, err := tlsutil.LoadClientConfig("", "", caCert)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading CA certificate: %v\n", err)
			os.Exit(1)
		}
		c.SetTLSConfig(tlsConfig)
	} else if insecureTLS {
		c.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}
	return c
}

// configFilePath returns the default config file location
func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	return filepath.Join(home, ".inferq", "config"), nil
}
