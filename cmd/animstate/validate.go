// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/animstate/internal/feather"
	"github.com/holomush/animstate/internal/logging"
	"github.com/holomush/animstate/internal/observability"
	"github.com/holomush/animstate/internal/script"
	"github.com/holomush/animstate/internal/statedb"
	"github.com/holomush/animstate/pkg/errutil"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph.yaml>...",
		Short: "Check state graph files",
		Long: `Validate loads each state graph file, checks it against the graph
schema and compiles it. Every problem of a graph is reported at once.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			return runValidate(cmd.OutOrStdout(), logger, args)
		},
	}
}

// newLogger builds the command logger. Logs go to stderr so command output
// stays clean.
func newLogger(cmd *cobra.Command, cfg *cliConfig) (*slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.Setup("animstate", cmd.Root().Version, cfg.LogFormat, level, cmd.ErrOrStderr()), nil
}

func runValidate(out io.Writer, logger *slog.Logger, paths []string) error {
	scripts := script.NewEngine(script.Options{Logger: logger})
	defer scripts.Close()

	failed := 0
	for _, path := range paths {
		g, err := statedb.LoadFile(path, statedb.Options{
			Scripts: scripts,
			Feather: feather.NewTable(),
			Logger:  logger,
		})
		if err != nil {
			failed++
			code := errutil.Code(err)
			observability.RecordGraphLoadFailure(code)
			errutil.LogWarn(logger, "state graph invalid", err)
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s: %s v%s, %d state(s), %d anim(s), %d overlay rule(s)\n",
			path, g.Name(), g.Version(), len(g.StateNames()), len(g.Library().Names()), g.Overlay().Len())
		g.Close()
	}

	if failed > 0 {
		return fmt.Errorf("validation failed: %d of %d graph(s) invalid", failed, len(paths))
	}
	return nil
}
