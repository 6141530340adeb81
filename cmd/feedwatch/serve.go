package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/livefeed/internal/api"
	"github.com/rickgao/livefeed/internal/connection"
	"github.com/rickgao/livefeed/internal/database"
	"github.com/rickgao/livefeed/internal/livefeed"
	"github.com/rickgao/livefeed/internal/metrics"
	"github.com/rickgao/livefeed/internal/poller"
	"github.com/rickgao/livefeed/internal/server"
	"github.com/rickgao/livefeed/internal/version"
	"github.com/rickgao/livefeed/internal/visibility"
	"github.com/rickgao/livefeed/internal/writer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live feed, dashboard poller, tick recorder and relay",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	logger.Info("starting feedwatch",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.RestURL,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
	}

	// Live feed
	feedCfg, err := livefeed.FromConfig(cfg.API, cfg.Stream)
	if err != nil {
		return err
	}

	var presence *visibility.Presence
	gate := visibility.Always()
	if cfg.Relay.SuspendWhenIdle {
		presence = visibility.NewPresence()
		defer presence.Close()
		gate = presence
	}

	var feedOpts []livefeed.Option
	if reg != nil {
		feedOpts = append(feedOpts, livefeed.WithControllerOptions(connection.WithObserver(reg)))
	}
	feed := livefeed.New(feedCfg, gate, logger, feedOpts...)
	defer feed.Close()

	if reg != nil {
		reg.BindReconnectCount(feed.Reader())
	}

	logger.Info("live feed configured",
		"feed_id", feed.ID(),
		"url", feedCfg.Controller.Client.URL,
		"enabled", feedCfg.Enabled,
		"suspend_when_idle", cfg.Relay.SuspendWhenIdle,
	)

	var srvOpts []server.Option
	if presence != nil {
		srvOpts = append(srvOpts, server.WithPresence(presence))
	}
	if reg != nil {
		srvOpts = append(srvOpts, server.WithMetrics(reg))
	}

	// Dashboard poller
	var dash *poller.Poller
	if cfg.Poller.Enabled {
		var pollOpts []poller.Option
		if reg != nil {
			pollOpts = append(pollOpts, poller.WithObserver(reg))
		}
		dash = poller.New(poller.Config{
			Interval:      cfg.Poller.Interval,
			Timeframe:     api.Timeframe(cfg.Poller.Timeframe),
			KlineLimit:    cfg.Poller.KlineLimit,
			DecisionLimit: cfg.Poller.DecisionLimit,
			Timeout:       cfg.API.Timeout,
		}, newAPIClient(cfg, logger), nil, logger, pollOpts...)
		srvOpts = append(srvOpts, server.WithDashboard(dash))
	}

	// Tick recorder
	var (
		pool *pgxpool.Pool
		tw   *writer.TickWriter
	)
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Timescale.Host,
			"port", cfg.Database.Timescale.Port,
			"database", cfg.Database.Timescale.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database.Timescale)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		var writerOpts []writer.TickOption
		if reg != nil {
			writerOpts = append(writerOpts, writer.WithObserver(reg))
		}
		tw = writer.NewTickWriter(writer.WriterConfig{
			BatchSize:     cfg.Writers.BatchSize,
			FlushInterval: cfg.Writers.FlushInterval,
		}, feed.Reader(), pool, logger, writerOpts...)
		srvOpts = append(srvOpts, server.WithDatabase(pool))
	}

	srv := server.New(server.Config{
		Addr:         cfg.Relay.Addr,
		WriteTimeout: cfg.Stream.WriteTimeout,
		MetricsPath:  cfg.Metrics.Path,
	}, feed, logger, srvOpts...)

	g, gctx := errgroup.WithContext(ctx)

	if tw != nil {
		if err := tw.Start(gctx); err != nil {
			return fmt.Errorf("start tick writer: %w", err)
		}
	}
	if dash != nil {
		if err := dash.Start(gctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
	}

	g.Go(func() error {
		return feed.Run(gctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("feedwatch running",
		"relay_addr", srv.Addr(),
		"poller", dash != nil,
		"recorder", tw != nil,
		"metrics", reg != nil,
	)

	err = g.Wait()

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if dash != nil {
		if err := dash.Stop(shutdownCtx); err != nil {
			logger.Warn("poller stop", "error", err)
		}
	}
	feed.Close()
	if tw != nil {
		tw.Stop(shutdownCtx)
		stats := tw.Stats()
		logger.Info("tick writer totals",
			"inserts", stats.Inserts,
			"conflicts", stats.Conflicts,
			"errors", stats.Errors,
			"dropped", stats.Dropped,
		)
	}

	logger.Info("feedwatch stopped")
	return err
}
