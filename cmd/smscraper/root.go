package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"smscraper/pkg/config"
	"smscraper/pkg/logger"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile  string
	logLevel    string
	outputDir   string
	useProxies  bool
	concurrent  int
	maxAttempts int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smscraper",
	Short: "A resilient social media scraping toolkit",
	Long: `smscraper is a command-line tool for scraping public social media content
through a resilient outbound-request core.

Features:
  - Per-platform sliding-window rate limiting with adaptive backoff
  - Proxy pool with concurrent validation, health tracking and rotation
  - Automatic retry with exponential backoff and jitter
  - Rotating browser identities per platform
  - JSON record storage with duplicate detection`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.smscraper.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory for scraped records")
	rootCmd.PersistentFlags().BoolVar(&useProxies, "proxies", false, "route requests through the proxy pool")
	rootCmd.PersistentFlags().IntVar(&concurrent, "concurrent", 0, "maximum concurrent requests")
	rootCmd.PersistentFlags().IntVar(&maxAttempts, "max-attempts", 0, "maximum attempts per request")

	rootCmd.SetVersionTemplate(`smscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig builds the effective configuration from defaults, config file,
// environment and the global flags, then initializes the global logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if concurrent > 0 {
		flags["concurrent"] = concurrent
	}
	if maxAttempts > 0 {
		flags["max-attempts"] = maxAttempts
	}
	if cmd.Flags().Changed("proxies") {
		flags["proxies"] = useProxies
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
