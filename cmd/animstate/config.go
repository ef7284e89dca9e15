// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"

	"github.com/holomush/animstate/internal/logging"
	"github.com/holomush/animstate/internal/xdg"
)

// cliConfig holds the merged configuration of a command. Values come from
// flag defaults, then the config file, then flags set on the command line.
type cliConfig struct {
	LogFormat string `koanf:"log-format"`
	LogLevel  string `koanf:"log-level"`

	Timeline   string  `koanf:"timeline"`
	Start      string  `koanf:"start"`
	Characters int     `koanf:"characters"`
	Frames     int     `koanf:"frames"`
	DeltaTime  float64 `koanf:"dt"`
	Workers    int     `koanf:"workers"`
	Seed       uint64  `koanf:"seed"`

	MaxInstances         int     `koanf:"max-instances"`
	MaxTracks            int     `koanf:"max-tracks"`
	MaxInstancesPerTrack int     `koanf:"max-instances-per-track"`
	BlendMode            string  `koanf:"blend-mode"`
	FrameRate            float64 `koanf:"frame-rate"`
	AllTracks            bool    `koanf:"transitions-from-all-tracks"`

	DumpCmds    bool   `koanf:"dump-cmds"`
	MetricsAddr string `koanf:"metrics-addr"`
}

// Validate checks that the configuration is valid.
func (cfg *cliConfig) Validate() error {
	if err := logging.ValidateFormat(cfg.LogFormat); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.Characters < 0 || cfg.Frames < 0 || cfg.Workers < 0 {
		return fmt.Errorf("characters, frames and workers must not be negative")
	}
	if cfg.DeltaTime < 0 {
		return fmt.Errorf("dt must not be negative, got %v", cfg.DeltaTime)
	}
	if cfg.MaxInstances < 0 || cfg.MaxTracks < 0 || cfg.MaxInstancesPerTrack < 0 {
		return fmt.Errorf("pool limits must not be negative")
	}
	if cfg.FrameRate < 0 {
		return fmt.Errorf("frame-rate must not be negative, got %v", cfg.FrameRate)
	}
	return nil
}

// loadConfig merges the config file and the command's flags. An explicit
// --config must exist; the default file under the config directory is
// optional.
func loadConfig(cmd *cobra.Command) (*cliConfig, error) {
	k := koanf.New(".")

	path := configFile
	if path == "" {
		path = xdg.ConfigFile()
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg cliConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}
