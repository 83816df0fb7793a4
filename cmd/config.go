package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var configJSON bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the active configuration",
	Long: `Show the active configuration after merging the config file, environment
variables (ASKDB_ prefix), and command-line flags.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configJSON, "json", false, "Print the configuration as JSON")

	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	// Copy so the API key is never printed.
	cfg := *activeConfig
	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = "***"
	}

	if configJSON {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}

		fmt.Println(string(data))

		return nil
	}

	fmt.Println("Database:")
	fmt.Printf("  Dialect:         %s\n", cfg.Database.Dialect)
	fmt.Printf("  DSN:             %s\n", cfg.Database.DSN)
	fmt.Printf("  Max Connections: %d\n", cfg.Database.MaxConnections)
	fmt.Printf("  Query Timeout:   %s\n", cfg.Database.QueryTimeout)
	fmt.Printf("  Max Rows:        %d\n", cfg.Database.MaxRows)

	fmt.Println("\nSchema Cache:")
	fmt.Printf("  Capacity: %d\n", cfg.Cache.Capacity)
	fmt.Printf("  TTL:      %s\n", cfg.Cache.TTL)

	fmt.Println("\nLLM:")
	fmt.Printf("  Provider:       %s\n", cfg.LLM.Provider)
	fmt.Printf("  Model:          %s\n", cfg.LLM.Model)
	fmt.Printf("  Max Tokens:     %d\n", cfg.LLM.MaxTokens)
	fmt.Printf("  Temperature:    %.2f\n", cfg.LLM.Temperature)
	fmt.Printf("  Timeout:        %s\n", cfg.LLM.Timeout)
	fmt.Printf("  Retry Attempts: %d\n", cfg.LLM.RetryAttempts)
	fmt.Printf("  Retry Delay:    %s\n", cfg.LLM.RetryDelay)

	fmt.Println("\nHistory:")
	fmt.Printf("  Backend:     %s\n", cfg.History.Backend)
	fmt.Printf("  Path:        %s\n", cfg.History.Path)
	fmt.Printf("  Max Entries: %d\n", cfg.History.MaxEntries)

	fmt.Println("\nLogging:")
	fmt.Printf("  Level:  %s\n", cfg.Logging.Level)
	fmt.Printf("  Format: %s\n", cfg.Logging.Format)
	fmt.Printf("  Output: %s\n", cfg.Logging.Output)

	if cfg.Logging.Output == "file" {
		fmt.Printf("  File:   %s\n", cfg.Logging.File)
	}

	return nil
}
