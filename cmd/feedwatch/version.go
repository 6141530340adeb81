package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickgao/livefeed/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "feedwatch %s\n", info.Version)
		fmt.Fprintf(out, "  Git commit: %s\n", info.Commit)
		fmt.Fprintf(out, "  Build time: %s\n", info.BuildTime)
		fmt.Fprintf(out, "  Go version: %s\n", info.GoVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
