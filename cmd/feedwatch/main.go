// Command feedwatch follows the trading backend's live feed, relays it to
// browsers and drives the backend's control endpoints.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/livefeed/internal/api"
	"github.com/rickgao/livefeed/internal/config"
	"github.com/rickgao/livefeed/internal/logging"
)

var (
	cfgFile string
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "feedwatch",
	Short: "Live feed client and relay for the trading backend",
	Long: `feedwatch keeps a reconnecting WebSocket to the backend's live feed,
re-serves it to browsers, records ticks to TimescaleDB and exposes the
backend's dashboard and control endpoints.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the dotenv file and the config, applying defaults.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := config.LoadEnv(envFile); err != nil {
			return nil, err
		}
	}

	if cfgFile == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}

	return config.LoadAndValidate(cfgFile)
}

func newLogger(cfg *config.Config) *slog.Logger {
	logCfg := cfg.Logging
	if debug {
		logCfg.Level = "debug"
	}
	logger := logging.New(logCfg)
	slog.SetDefault(logger)
	return logger
}

func newAPIClient(cfg *config.Config, logger *slog.Logger) *api.Client {
	return api.NewClient(
		cfg.API.RestURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.Retries(), time.Second),
		api.WithRateLimit(cfg.API.RateLimit),
	)
}
