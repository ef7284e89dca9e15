// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/animstate"
)

// CharacterReport is what one character produced.
type CharacterReport struct {
	ID            ulid.ULID           `json:"id" yaml:"id"`
	Index         int                 `json:"index" yaml:"index"`
	Frames        int                 `json:"frames" yaml:"frames"`
	Commands      int                 `json:"commands" yaml:"commands"`
	StateChanges  int                 `json:"state_changes" yaml:"state_changes"`
	PeakInstances int                 `json:"peak_instances" yaml:"peak_instances"`
	PeakTracks    int                 `json:"peak_tracks" yaml:"peak_tracks"`
	Errors        int                 `json:"errors" yaml:"errors"`
	Requests      map[string]int      `json:"requests" yaml:"requests"`
	Effects       map[string]int      `json:"effects" yaml:"effects"`
	Final         animstate.LayerView `json:"final" yaml:"final"`
	// CommandFrames holds each frame's commands when Config.KeepCommands is set.
	CommandFrames [][]animcmd.Cmd `json:"-" yaml:"-"`
}

// Totals sums the counters of every character.
type Totals struct {
	Commands     int
	StateChanges int
	Errors       int
	Requests     map[string]int
	Effects      map[string]int
}

// Report is the result of a run.
type Report struct {
	RunID      ulid.ULID
	Frames     int
	DeltaTime  float32
	Elapsed    time.Duration
	Characters []CharacterReport
}

// Totals sums the character reports.
func (r *Report) Totals() Totals {
	t := Totals{Requests: map[string]int{}, Effects: map[string]int{}}
	for _, c := range r.Characters {
		t.Commands += c.Commands
		t.StateChanges += c.StateChanges
		t.Errors += c.Errors
		for k, v := range c.Requests {
			t.Requests[k] += v
		}
		for k, v := range c.Effects {
			t.Effects[k] += v
		}
	}
	return t
}

// WriteSummary prints a human readable summary of the run.
func (r *Report) WriteSummary(w io.Writer) error {
	t := r.Totals()
	if _, err := fmt.Fprintf(w, "run %s: %d character(s), %d frame(s) of %.4fs in %s\n",
		r.RunID, len(r.Characters), r.Frames, r.DeltaTime, r.Elapsed.Round(time.Millisecond)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "commands: %d  state changes: %d  errors: %d\n",
		t.Commands, t.StateChanges, t.Errors); err != nil {
		return err
	}
	if err := writeCounts(w, "requests", t.Requests); err != nil {
		return err
	}
	if err := writeCounts(w, "effects", t.Effects); err != nil {
		return err
	}
	for _, c := range r.Characters {
		if _, err := fmt.Fprintf(w, "  #%d %s: %s (peak %d instance(s), %d track(s))\n",
			c.Index, c.ID, c.Final.Current, c.PeakInstances, c.PeakTracks); err != nil {
			return err
		}
	}
	return nil
}

func writeCounts(w io.Writer, label string, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "%s:", label); err != nil {
		return err
	}
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		if _, err := fmt.Fprintf(w, " %s=%d", k, counts[k]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
