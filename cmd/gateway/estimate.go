package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"tool_gateway/internal/pricing"
	"tool_gateway/internal/tools"
)

type estimateOptions struct {
	tool        string
	arguments   string
	queryLength int
	tier        string
	volume      int64
	pricingFile string
}

func newEstimateCmd() *cobra.Command {
	opts := estimateOptions{}

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Print the up-front cost estimate for a call without running it",
		Example: `  gateway estimate --tool search_entities --args '{"query":"acme"}'
  gateway estimate --tool get_entity_details --tier deep --volume 25000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.pricingFile == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				opts.pricingFile = cfg.Pricing.File
			}
			return runEstimate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.tool, "tool", "", "tool name")
	cmd.Flags().StringVar(&opts.arguments, "args", "", "tool arguments as a JSON object")
	cmd.Flags().IntVar(&opts.queryLength, "query-length", -1, "query length in characters (overrides --args)")
	cmd.Flags().StringVar(&opts.tier, "tier", string(pricing.TierStandard), "reasoning tier")
	cmd.Flags().Int64Var(&opts.volume, "volume", 0, "caller's monthly call volume")
	cmd.Flags().StringVar(&opts.pricingFile, "pricing-file", "", "YAML pricing file (default $PRICING_FILE)")
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}

func runEstimate(cmd *cobra.Command, opts estimateOptions) error {
	if _, err := tools.ParseToolID(opts.tool); err != nil {
		return err
	}
	if opts.volume < 0 {
		return fmt.Errorf("--volume must not be negative")
	}

	model, err := pricing.LoadModel(opts.pricingFile)
	if err != nil {
		return err
	}

	queryLength := opts.queryLength
	if queryLength < 0 {
		arguments := map[string]any{}
		if opts.arguments != "" {
			if err := json.Unmarshal([]byte(opts.arguments), &arguments); err != nil {
				return fmt.Errorf("invalid --args: %w", err)
			}
		}
		queryLength = tools.QueryLength(arguments)
	}

	estimate := model.Estimate(opts.tool, queryLength, pricing.ReasoningTier(opts.tier), opts.volume)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(estimate)
}
