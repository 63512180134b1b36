package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"smscraper/pkg/logger"
)

// proxiesCmd groups proxy pool maintenance commands.
var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Manage the proxy pool",
}

var proxiesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch, validate and cache a fresh proxy set",
	Long: `Refresh fetches candidates from every configured source, validates them
concurrently against the test endpoints and writes the resulting set to the
proxy cache file.`,
	Run: runProxiesRefresh,
}

var proxiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the cached proxy set and its health",
	Run:   runProxiesList,
}

func init() {
	rootCmd.AddCommand(proxiesCmd)
	proxiesCmd.AddCommand(proxiesRefreshCmd)
	proxiesCmd.AddCommand(proxiesListCmd)
}

func runProxiesRefresh(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := newPool(cfg, logger.GetLogger())
	fmt.Println("Fetching and validating proxies, this can take a while...")
	if err := pool.Initialize(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Proxy refresh failed:", err)
		os.Exit(1)
	}

	stats := pool.GetStats()
	fmt.Printf("Done: %d candidates, %d working\n", stats.Total, stats.Working)
	if stats.Working == 0 {
		fmt.Println("Warning: no working proxies; requests will fail while proxies are required")
	}
}

func runProxiesList(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	// List never touches the network: build the pool and load the cache only.
	pool := newPool(cfg, logger.GetLogger())
	if err := pool.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load proxy cache:", err)
		os.Exit(1)
	}

	proxies := pool.Snapshot()
	if len(proxies) == 0 {
		fmt.Println("Proxy cache is empty; run 'smscraper proxies refresh' first")
		return
	}

	for _, p := range proxies {
		state := "down"
		if p.Working {
			state = "up"
		}
		fmt.Printf("%-5s %-40s fails=%d successes=%d country=%s\n",
			state, p.Address, p.FailCount, p.SuccessCount, p.Country)
	}

	stats := pool.GetStats()
	fmt.Printf("\n%d total, %d working, %d evicted\n", stats.Total, stats.Working, stats.Evicted)
}
