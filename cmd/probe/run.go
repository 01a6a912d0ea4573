package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"worldsync.gg/internal/capture"
	"worldsync.gg/internal/config"
	"worldsync.gg/internal/localstore"
	"worldsync.gg/internal/netsync"
	"worldsync.gg/internal/script"
	"worldsync.gg/internal/tick"
	"worldsync.gg/internal/transport/ws"
	"worldsync.gg/internal/world"
)

var (
	serverURL      string
	sendLatency    time.Duration
	statusInterval time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a server and run a session until it ends",
	RunE:  runSession,
}

func init() {
	runCmd.Flags().StringVar(&serverURL, "url", "", "server websocket url (overrides server_url)")
	runCmd.Flags().DurationVar(&sendLatency, "send-latency", 0, "artificial send latency to set and persist")
	runCmd.Flags().DurationVar(&statusInterval, "status-every", 10*time.Second, "session status log interval (0 disables)")
}

func runSession(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := engineOptions(cfg, logger)

	if cfg.Storage.Path != "" {
		store, err := localstore.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		defer store.Close()
		opts.Store = store
	}
	if cfg.Debug.CaptureDir != "" {
		rec := capture.NewRecorder(cfg.Debug.CaptureDir)
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn("closing capture", "error", err)
			}
		}()
		opts.Capture = rec
	}

	logger.Info("connecting", "url", cfg.ServerURL, "version", version)
	client, err := ws.Dial(ctx, cfg.ServerURL, ws.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	step := cfg.TickStep()
	eng := netsync.New(ctx, world.NewMemory(), client, tick.NewClock(step), opts)
	if cmd.Flags().Changed("send-latency") {
		if err := eng.SetSendLatency(ctx, sendLatency); err != nil {
			logger.Warn("persisting send latency", "error", err)
		}
	}

	go watchSession(ctx, eng, logger)

	ticker := time.NewTicker(step)
	defer ticker.Stop()

	err = eng.Run(ctx, client.Messages(), ticker.C)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("interrupted")
		return nil
	case errors.Is(err, netsync.ErrTransportClosed):
		if cerr := client.Err(); cerr != nil && !errors.Is(cerr, ws.ErrClosed) {
			return fmt.Errorf("connection lost: %w", cerr)
		}
		logger.Info("server closed the connection")
		return nil
	}
	return err
}

// watchSession asks for a full snapshot once the session is ready, then
// logs the session status periodically.
func watchSession(ctx context.Context, eng *netsync.Engine, logger *slog.Logger) {
	if err := eng.WaitReady(ctx); err != nil {
		return
	}
	if err := eng.Out().RequestFullSnapshot(); err != nil {
		logger.Warn("requesting full snapshot", "error", err)
	}
	if statusInterval <= 0 {
		return
	}
	t := time.NewTicker(statusInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := eng.Status()
			logger.Info("session status",
				"state", st.State,
				"tick", st.Tick,
				"entities", st.Entities,
				"players", st.Players,
				"leases", st.Leases,
				"send_latency", st.Latency,
			)
		}
	}
}

func engineOptions(cfg config.Config, logger *slog.Logger) netsync.Options {
	return netsync.Options{
		ProtocolVersion: cfg.ProtocolVersion,
		ProximityRadius: cfg.Control.ProximityRadius,
		LookaheadTicks:  cfg.Control.LookaheadTicks,
		LeaseGCTicks:    cfg.Control.LeaseGCTicks,
		MaxParallel:     cfg.Reconcile.MaxParallel,
		SendLatency:     cfg.SendLatency(),
		RequestRateHz:   cfg.Control.RequestRateHz,
		RequestBurst:    cfg.Control.RequestBurst,
		Scripts:         script.NewRunner(cfg.Scripts.Dir, logger),
		Logger:          logger,
	}
}
