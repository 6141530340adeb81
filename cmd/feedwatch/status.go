package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/livefeed/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the backend's system status and health",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusReport struct {
	Status *api.SystemStatus `json:"status"`
	Health *api.SystemHealth `json:"health"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg, newLogger(cfg))

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout*2)
	defer cancel()

	var report statusReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := client.SystemStatus(gctx)
		report.Status = s
		return err
	})
	g.Go(func() error {
		h, err := client.SystemHealth(gctx)
		report.Health = h
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), report)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
