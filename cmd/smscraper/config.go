package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"smscraper/pkg/config"
)

// configCmd groups configuration management commands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage smscraper configuration files.

Configuration is loaded with the following precedence:
  - Command line flags (highest priority)
  - Environment variables (SMSCRAPER_*)
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default settings",
	Long: `Create a configuration file seeded with the default settings, including
the per-platform rate limit table.

The file is created as 'smscraper.yaml' in the current directory unless a
different path is given with the --config flag.`,
	Run: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Run:   runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Run:   runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = "smscraper.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintln(os.Stderr, "Configuration file already exists:", configPath)
		os.Exit(1)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to create configuration file:", err)
		os.Exit(1)
	}

	fmt.Println("Configuration file created:", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Adjust the rate limit table and proxy settings to taste")
	fmt.Println("2. Run 'smscraper config validate' to check the configuration")
	fmt.Println("3. Start with 'smscraper fetch <destination> <url>'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to format configuration:", err)
		os.Exit(1)
	}
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (SMSCRAPER_*)")
	if configFile != "" {
		fmt.Println("3. Configuration file:", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in default locations)")
	}
	fmt.Println("4. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	// Load already validates; reaching this point means the config is usable.
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Configuration validation failed:", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid")
	fmt.Println("\nSummary:")
	fmt.Printf("  Rate limit entries:    %d destinations\n", len(cfg.RateLimits))
	fmt.Printf("  Proxies enabled:       %v\n", cfg.Proxy.Enabled)
	fmt.Printf("  Concurrent requests:   %d\n", cfg.Dispatcher.MaxConcurrentRequests)
	fmt.Printf("  Max attempts:          %d\n", cfg.Dispatcher.MaxAttempts)
	fmt.Printf("  Output directory:      %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Log level:             %s\n", cfg.Logging.Level)
}
