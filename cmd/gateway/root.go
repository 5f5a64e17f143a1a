package main

import (
	"github.com/spf13/cobra"

	"tool_gateway/internal/config"
	"tool_gateway/internal/utils"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Tool-call gateway with per-request cost tracking",
		Long: `Runs metered tool calls over HTTP, synchronously or as Server-Sent Events,
and records an estimate and an itemized cost breakdown for every request.

Configuration is read from the environment (DATABASE_URL, REDIS_ADDRESS,
PRICING_FILE, JWT_SECRET, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newEstimateCmd(),
		newTokenCmd(),
		newSeedCmd(),
	)
	return root
}

// loadConfig reads the environment and applies the configured log level
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	utils.SetDefaultLogLevel(utils.ParseLogLevel(cfg.LogLevel))
	return cfg, nil
}
