// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/animstate"
	"github.com/holomush/animstate/internal/feather"
	"github.com/holomush/animstate/internal/observability"
	"github.com/holomush/animstate/internal/script"
	"github.com/holomush/animstate/internal/sim"
	"github.com/holomush/animstate/internal/snapshot"
	"github.com/holomush/animstate/internal/statedb"
)

const metricsShutdownTimeout = 5 * time.Second

// NewSimulateCmd creates the simulate subcommand.
func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <graph.yaml>",
		Short: "Step simulated characters through a state graph",
		Long: `Simulate loads a state graph and steps one or more characters through
a timeline of requests, fades and info changes, then prints what the
layers did. Without --timeline each character idles in the start state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSimulate(cmd, cfg, args[0])
		},
	}

	flags := cmd.Flags()
	flags.String("timeline", "", "timeline file (yaml)")
	flags.String("start", "", "start state when no timeline is given (default: first state)")
	flags.Int("characters", 1, "number of simulated characters")
	flags.Int("frames", sim.DefaultFrames, "frames to step each character")
	flags.Float64("dt", float64(sim.DefaultDeltaTime), "seconds per frame")
	flags.Int("workers", 0, "characters stepped at once (default: GOMAXPROCS)")
	flags.Uint64("seed", 0, "random seed for start phases")
	flags.Int("max-instances", 0, "instance pool size (default: layer default)")
	flags.Int("max-tracks", 0, "track pool size (default: layer default)")
	flags.Int("max-instances-per-track", 0, "instances kept on one track (default: layer default)")
	flags.String("blend-mode", "", "layer blend mode (slerp, lerp, additive)")
	flags.Float64("frame-rate", 0, "animation frame rate for phase rounding (default: 30)")
	flags.Bool("transitions-from-all-tracks", false, "evaluate transitions on every track, not only the newest")
	flags.Bool("dump-cmds", false, "print every frame's commands of the first character")
	flags.String("metrics-addr", "", "serve metrics and health probes on this address while running")

	return cmd
}

func runSimulate(cmd *cobra.Command, cfg *cliConfig, graphPath string) error {
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	blendMode, err := animcmd.ParseBlendMode(cfg.BlendMode)
	if err != nil {
		return fmt.Errorf("invalid blend-mode: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table := feather.NewTable()
	scripts := script.NewEngine(script.Options{Logger: logger})
	defer scripts.Close()

	g, err := statedb.LoadFile(graphPath, statedb.Options{Scripts: scripts, Feather: table, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to load state graph: %w", err)
	}
	defer g.Close()

	timeline, err := loadTimeline(cfg, g)
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		server := observability.NewServer(cfg.MetricsAddr, nil)
		errCh, err := server.Start()
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if err := server.Stop(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", "error", err)
			}
		}()
		go watchServer(logger, errCh)
		logger.Info("metrics server listening", "addr", server.Addr())
		metrics = server.Metrics()
	}

	report, err := sim.Run(ctx, sim.Config{
		Provider:             g,
		Snapshots:            snapshot.NewBuilder(g.Library(), logger),
		Feather:              table,
		Timeline:             timeline,
		Characters:           cfg.Characters,
		Frames:               cfg.Frames,
		DeltaTime:            float32(cfg.DeltaTime),
		Workers:              cfg.Workers,
		Seed:                 cfg.Seed,
		MaxInstances:         cfg.MaxInstances,
		MaxTracks:            cfg.MaxTracks,
		MaxInstancesPerTrack: cfg.MaxInstancesPerTrack,
		BlendMode:            blendMode,
		Options: animstate.Options{
			FrameRate:                float32(cfg.FrameRate),
			TransitionsFromAllTracks: cfg.AllTracks,
		},
		KeepCommands: cfg.DumpCmds,
		Logger:       logger,
	})
	if metrics != nil {
		var elapsed time.Duration
		if report != nil {
			elapsed = report.Elapsed
		}
		metrics.ObserveRun(cfg.Characters, cfg.Frames, elapsed, err)
	}
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := report.WriteSummary(out); err != nil {
		return err
	}
	if cfg.DumpCmds && len(report.Characters) > 0 {
		return dumpCommands(out, report.Characters[0].CommandFrames)
	}
	return nil
}

// loadTimeline reads --timeline, or builds an empty timeline that starts in
// --start or the graph's first state.
func loadTimeline(cfg *cliConfig, g *statedb.Graph) (*sim.Timeline, error) {
	if cfg.Timeline != "" {
		tl, err := sim.LoadTimeline(cfg.Timeline)
		if err != nil {
			return nil, fmt.Errorf("failed to load timeline: %w", err)
		}
		return tl, nil
	}
	start := cfg.Start
	if start == "" {
		names := g.StateNames()
		if len(names) == 0 {
			return nil, fmt.Errorf("state graph %q has no states", g.Name())
		}
		start = names[0]
	}
	return &sim.Timeline{Start: start}, nil
}

func watchServer(logger *slog.Logger, errCh <-chan error) {
	for err := range errCh {
		logger.Error("metrics server error", "error", err)
	}
}

func dumpCommands(w io.Writer, frames [][]animcmd.Cmd) error {
	for k, cmds := range frames {
		if _, err := fmt.Fprintf(w, "frame %d:\n", k); err != nil {
			return err
		}
		for _, c := range cmds {
			if _, err := fmt.Fprintf(w, "  %s\n", c); err != nil {
				return err
			}
		}
	}
	return nil
}
