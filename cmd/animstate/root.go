// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// Default values for global flags.
const (
	defaultLogFormat = "json"
	defaultLogLevel  = "info"
)

// NewRootCmd creates the root command for the animstate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "animstate",
		Short: "animstate - animation state graph tooling",
		Long: `animstate loads animation state graphs, checks them against the
graph schema, and steps simulated characters through scripted timelines
to show the transitions and evaluation commands a layer produces.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.PersistentFlags().String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")

	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewSimulateCmd())

	return cmd
}
