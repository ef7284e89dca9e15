// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sim steps many characters through a scripted timeline, each
// character owning one layer, and reports what the layers produced.
package sim

import (
	"log/slog"
	"runtime"

	"github.com/samber/oops"

	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/animstate"
	"github.com/holomush/animstate/internal/feather"
)

// Defaults for Config.
const (
	DefaultFrames    = 120
	DefaultDeltaTime = float32(1.0 / 30.0)
	DefaultLayerName = "full_body"
)

// Config configures a simulation run.
type Config struct {
	Provider  animstate.StateProvider
	Snapshots animstate.SnapshotBuilder
	Feather   *feather.Table
	Timeline  *Timeline

	Characters int
	Frames     int
	DeltaTime  float32
	// Workers bounds how many characters step at once. Zero uses GOMAXPROCS.
	Workers int
	Seed    uint64

	LayerName            string
	MaxInstances         int
	MaxTracks            int
	MaxInstancesPerTrack int
	BlendMode            animcmd.BlendMode
	Options              animstate.Options

	// KeepCommands stores every frame's command list in the report.
	KeepCommands bool
	Logger       *slog.Logger
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	errb := oops.Code(CodeInvalidConfig)
	if c.Provider == nil {
		return errb.Errorf("state provider is required")
	}
	if c.Snapshots == nil {
		return errb.Errorf("snapshot builder is required")
	}
	if c.Timeline == nil {
		return errb.Errorf("timeline is required")
	}
	if err := c.Timeline.Validate(); err != nil {
		return err
	}
	for _, s := range c.Timeline.States() {
		if _, ok := c.Provider.State(s); !ok {
			return errb.With("state", s).Errorf("timeline refers to unknown state %q", s)
		}
	}
	if c.Characters == 0 {
		c.Characters = 1
	}
	if c.Frames == 0 {
		c.Frames = DefaultFrames
	}
	if c.DeltaTime == 0 {
		c.DeltaTime = DefaultDeltaTime
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Characters < 0 || c.Frames < 0 || c.Workers < 0 {
		return errb.With("characters", c.Characters).
			With("frames", c.Frames).
			With("workers", c.Workers).
			Errorf("characters, frames and workers must be positive")
	}
	if c.DeltaTime < 0 {
		return errb.With("dt", c.DeltaTime).Errorf("frame time must be positive")
	}
	c.Workers = min(c.Workers, c.Characters)
	if c.LayerName == "" {
		c.LayerName = DefaultLayerName
	}
	if c.Feather == nil {
		c.Feather = feather.Default()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}
