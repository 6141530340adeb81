package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/visvasity/topic"

	"github.com/rickgao/livefeed/internal/feedstore"
	"github.com/rickgao/livefeed/internal/livefeed"
)

var (
	tailJSON  bool
	tailCount int
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Connect to the live feed and print every update",
	RunE:  runTail,
}

func init() {
	tailCmd.Flags().BoolVar(&tailJSON, "json", false, "print snapshots as JSON lines")
	tailCmd.Flags().IntVarP(&tailCount, "count", "n", 0, "exit after this many payloads (0 = run until interrupted)")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	feedCfg, err := livefeed.FromConfig(cfg.API, cfg.Stream)
	if err != nil {
		return err
	}
	feedCfg.Enabled = true

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feed := livefeed.New(feedCfg, nil, logger)
	defer feed.Close()

	receiver, err := feed.Reader().Subscribe(0)
	if err != nil {
		return err
	}
	defer receiver.Close()

	updates, err := topic.ReceiveCh(receiver)
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- feed.Run(ctx) }()

	out := cmd.OutOrStdout()
	seen := 0
	var last feedstore.Snapshot
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			return err
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			newPayload := snap.Latest != nil && (last.Latest == nil || !snap.Latest.Equal(*last.Latest))
			if err := printSnapshot(out, snap); err != nil {
				return err
			}
			last = snap
			if newPayload {
				seen++
				if tailCount > 0 && seen >= tailCount {
					return nil
				}
			}
		}
	}
}

func printSnapshot(w io.Writer, snap feedstore.Snapshot) error {
	if tailJSON {
		return json.NewEncoder(w).Encode(snap)
	}

	line := fmt.Sprintf("%s [%s] reconnects=%d", snap.UpdatedAt.Format("15:04:05.000"), snap.Label(), snap.ReconnectCount)
	if p := snap.Latest; p != nil {
		line += fmt.Sprintf(" %s %s", p.Symbol, p.Price.String())
		if label, ok := p.DecisionLabel(); ok {
			id, _ := p.DecisionID()
			line += fmt.Sprintf(" decision=%s#%d", label, id)
		}
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
