package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/livefeed/internal/api"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Send commands to the trading backend",
}

var (
	mindFile    string
	mindBy      string
	mindSummary string
	mindLimit   int
)

func init() {
	controlCmd.AddCommand(
		commandCmd("trigger", "Run an analysis cycle now", (*api.Client).TriggerAnalysis),
		commandCmd("pause", "Pause trading", (*api.Client).Pause),
		commandCmd("resume", "Resume trading", (*api.Client).Resume),
	)

	mindCmd := &cobra.Command{
		Use:   "mind",
		Short: "Show the market mind document",
		RunE: withClient(func(ctx context.Context, c *api.Client, cmd *cobra.Command) error {
			resp, err := c.MarketMind(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		}),
	}

	mindSetCmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the market mind document from a JSON file",
		RunE: withClient(func(ctx context.Context, c *api.Client, cmd *cobra.Command) error {
			data, err := os.ReadFile(mindFile)
			if err != nil {
				return fmt.Errorf("read market mind: %w", err)
			}
			var doc api.MarketMind
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse market mind: %w", err)
			}
			resp, err := c.UpdateMarketMind(ctx, doc, mindBy, mindSummary)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		}),
	}
	mindSetCmd.Flags().StringVarP(&mindFile, "file", "f", "", "JSON document to upload")
	mindSetCmd.Flags().StringVar(&mindBy, "by", api.DefaultChangedBy, "changed_by recorded with the revision")
	mindSetCmd.Flags().StringVar(&mindSummary, "summary", api.DefaultChangeSummary, "change summary recorded with the revision")
	mindSetCmd.MarkFlagRequired("file")

	mindHistoryCmd := &cobra.Command{
		Use:   "history",
		Short: "List past market mind revisions",
		RunE: withClient(func(ctx context.Context, c *api.Client, cmd *cobra.Command) error {
			items, err := c.MarketMindHistory(ctx, mindLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), items)
		}),
	}
	mindHistoryCmd.Flags().IntVarP(&mindLimit, "limit", "n", api.DefaultMindHistoryLimit, "revisions to list")

	mindCmd.AddCommand(mindSetCmd, mindHistoryCmd)
	controlCmd.AddCommand(mindCmd)

	rootCmd.AddCommand(controlCmd)
}

// withClient loads config and hands a REST client to run.
func withClient(run func(ctx context.Context, c *api.Client, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newAPIClient(cfg, newLogger(cfg))

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout)
		defer cancel()

		return run(ctx, client, cmd)
	}
}

func commandCmd(use, short string, call func(*api.Client, context.Context) (api.CommandResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: withClient(func(ctx context.Context, c *api.Client, cmd *cobra.Command) error {
			result, err := call(c, ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
}
