package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"

	"worldsync.gg/internal/capture"
	"worldsync.gg/internal/config"
	"worldsync.gg/internal/netsync"
	"worldsync.gg/internal/outbound"
	"worldsync.gg/internal/tick"
	"worldsync.gg/internal/world"
)

var captureDir string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Feed a captured session through an offline engine",
	Long: `replay reads packets-*.jsonl.zst files written by "probe run" with
debug.capture_dir set, feeds every inbound packet through a fresh engine at
the tick it arrived and prints the resulting session state.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir := captureDir
		if dir == "" {
			dir = cfg.Debug.CaptureDir
		}
		if dir == "" {
			return errors.New("missing --capture (or debug.capture_dir)")
		}
		logger, err := newLogger(os.Stderr, cfg.Log)
		if err != nil {
			return err
		}
		stats, err := replayCapture(cmd.Context(), dir, cfg, logger)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	replayCmd.Flags().StringVar(&captureDir, "capture", "", "capture directory (defaults to debug.capture_dir)")
}

type replayStats struct {
	Files    int            `json:"files"`
	Inbound  int            `json:"inbound"`
	Captured int            `json:"captured_outbound"`
	Sent     int64          `json:"sent"`
	Steps    int            `json:"steps"`
	Status   netsync.Status `json:"status"`
}

// replayCapture re-runs the inbound side of a capture. The engine is stepped
// up to each record's tick before the record is handled; outbound packets
// are counted and discarded.
func replayCapture(ctx context.Context, dir string, cfg config.Config, logger *slog.Logger) (replayStats, error) {
	var stats replayStats
	files, err := capture.ListFiles(dir)
	if err != nil {
		return stats, fmt.Errorf("list captures: %w", err)
	}
	if len(files) == 0 {
		return stats, fmt.Errorf("no capture files in %s", dir)
	}
	stats.Files = len(files)

	var sent atomic.Int64
	discard := outbound.SenderFunc(func(context.Context, []byte) error {
		sent.Add(1)
		return nil
	})
	opts := engineOptions(cfg, logger)
	opts.SendLatency = 0
	eng := netsync.New(ctx, world.NewMemory(), discard, tick.NewClock(cfg.TickStep()), opts)
	defer eng.Teardown(context.WithoutCancel(ctx))

	for _, f := range files {
		err := capture.ReadFile(f, func(r capture.Record) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.Dir != capture.In {
				stats.Captured++
				return nil
			}
			for eng.Clock().Now() < r.Tick {
				eng.Step()
				stats.Steps++
			}
			eng.HandleMessage(ctx, []byte(r.Payload))
			stats.Inbound++
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("replay %s: %w", f, err)
		}
	}

	stats.Status = eng.Status()
	stats.Sent = sent.Load()
	logger.Info("replay done", "files", stats.Files, "inbound", stats.Inbound, "steps", stats.Steps, "tick", stats.Status.Tick)
	return stats, nil
}
