// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Event is one scripted input to every character, fired on the first frame
// whose time reaches At. An event carries at most one action; Info values are
// applied before the action.
type Event struct {
	At float32 `yaml:"at"`
	// Request queues a named transition.
	Request string `yaml:"request,omitempty"`
	// Persistent queues a named transition that stays queued until it is taken.
	Persistent string `yaml:"persistent,omitempty"`
	// Final queues a request for any route to the named state.
	Final string `yaml:"final,omitempty"`
	// Fade starts the named state directly, bypassing transitions.
	Fade      string  `yaml:"fade,omitempty"`
	FadeTime  float32 `yaml:"fade_time,omitempty"`
	Immediate bool    `yaml:"immediate,omitempty"`
	// Trap sets the transition trap pattern; an empty string clears it.
	Trap *string `yaml:"trap,omitempty"`
	// LayerFade sets the layer fade.
	LayerFade *float32 `yaml:"layer_fade,omitempty"`

	Info map[string]float64 `yaml:"info,omitempty"`
}

func (e *Event) actions() int {
	n := 0
	for _, s := range []string{e.Request, e.Persistent, e.Final, e.Fade} {
		if s != "" {
			n++
		}
	}
	if e.Trap != nil {
		n++
	}
	if e.LayerFade != nil {
		n++
	}
	return n
}

// Timeline is the input script of a simulation.
type Timeline struct {
	// Start is the state every character enters on frame zero.
	Start  string  `yaml:"start"`
	Events []Event `yaml:"events,omitempty"`
}

// ParseTimeline decodes and checks a timeline. Events are ordered by time,
// keeping file order for equal times.
func ParseTimeline(data []byte) (*Timeline, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, oops.Code(CodeInvalidTimeline).Errorf("timeline is empty")
	}
	var tl Timeline
	if err := yaml.Unmarshal(data, &tl); err != nil {
		return nil, oops.Code(CodeInvalidTimeline).Wrapf(err, "invalid YAML")
	}
	if err := tl.Validate(); err != nil {
		return nil, err
	}
	return &tl, nil
}

// LoadTimeline reads and parses the timeline at path.
func LoadTimeline(path string) (*Timeline, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.Code(CodeInvalidTimeline).With("path", path).Wrapf(err, "read timeline")
	}
	tl, err := ParseTimeline(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return tl, nil
}

// Validate checks the events and sorts them by time.
func (tl *Timeline) Validate() error {
	if tl.Start == "" {
		return oops.Code(CodeInvalidTimeline).Errorf("timeline start state is required")
	}
	for k := range tl.Events {
		e := &tl.Events[k]
		if e.At < 0 {
			return oops.Code(CodeInvalidTimeline).With("event", k).Errorf("event %d: negative time %v", k, e.At)
		}
		if n := e.actions(); n > 1 {
			return oops.Code(CodeInvalidTimeline).With("event", k).Errorf("event %d: %d actions, want at most one", k, n)
		} else if n == 0 && len(e.Info) == 0 {
			return oops.Code(CodeInvalidTimeline).With("event", k).Errorf("event %d does nothing", k)
		}
		if e.LayerFade != nil && (*e.LayerFade < 0 || *e.LayerFade > 1) {
			return oops.Code(CodeInvalidTimeline).With("event", k).Errorf("event %d: layer_fade outside [0, 1]", k)
		}
	}
	slices.SortStableFunc(tl.Events, func(a, b Event) int {
		switch {
		case a.At < b.At:
			return -1
		case a.At > b.At:
			return 1
		}
		return 0
	})
	return nil
}

// States returns every state name the timeline refers to directly.
func (tl *Timeline) States() []string {
	out := []string{tl.Start}
	for _, e := range tl.Events {
		for _, s := range []string{e.Final, e.Fade} {
			if s != "" && !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}
