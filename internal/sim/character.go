// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/animstate"
	"github.com/holomush/animstate/pkg/errutil"
)

// Character is one simulated character. It owns its layer exclusively and
// must only be stepped from one goroutine at a time.
type Character struct {
	id     ulid.ULID
	index  int
	cfg    *Config
	layer  *animstate.Layer
	info   *animstate.InfoCollection
	uctx   *animstate.UpdateContext
	cmds   *animcmd.List
	next   int
	logger *slog.Logger
	report CharacterReport

	// pending holds queued request ids whose outcome is not yet counted.
	pending []animstate.RequestID
}

// NewCharacter creates character index of a run and enters the timeline's
// start state.
func NewCharacter(index int, cfg *Config) (*Character, error) {
	id := NewID()
	logger := cfg.Logger.With("character_id", id.String(), "character", index)
	layer, err := animstate.NewLayer(animstate.LayerConfig{
		Name:                 cfg.LayerName,
		Provider:             cfg.Provider,
		Snapshots:            cfg.Snapshots,
		Logger:               logger,
		MaxInstances:         cfg.MaxInstances,
		MaxTracks:            cfg.MaxTracks,
		MaxInstancesPerTrack: cfg.MaxInstancesPerTrack,
		BlendMode:            cfg.BlendMode,
		Feather:              cfg.Feather,
	})
	if err != nil {
		return nil, oops.With("character", index).Wrap(err)
	}
	info := animstate.NewInfoCollection()
	c := &Character{
		id:    id,
		index: index,
		cfg:   cfg,
		layer: layer,
		info:  info,
		uctx: &animstate.UpdateContext{
			Feather: cfg.Feather,
			Options: cfg.Options,
			Clock:   &animstate.FrameClock{},
			Rand:    rand.New(rand.NewPCG(cfg.Seed, uint64(index))),
			Info:    info,
		},
		cmds:   animcmd.NewList(64),
		logger: logger,
		report: CharacterReport{
			ID:       id,
			Index:    index,
			Requests: map[string]int{},
			Effects:  map[string]int{},
		},
	}
	if _, err := layer.FadeToStateImmediate(c.uctx, cfg.Timeline.Start, nil); err != nil {
		return nil, oops.Code(CodeCharacterFailed).
			With("character", index).
			With("state", cfg.Timeline.Start).
			Wrapf(err, "enter start state")
	}
	return c, nil
}

// ID returns the character id.
func (c *Character) ID() ulid.ULID { return c.id }

// Layer returns the character's layer.
func (c *Character) Layer() *animstate.Layer { return c.layer }

// Run steps the character for frames frames, then releases its layer.
func (c *Character) Run(ctx context.Context, frames int) (err error) {
	_, span := tracer.Start(ctx, "sim.character",
		trace.WithAttributes(
			attribute.String("character.id", c.id.String()),
			attribute.Int("character.index", c.index),
			attribute.Int("sim.frames", frames),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	defer c.Close()

	for range frames {
		if err := ctx.Err(); err != nil {
			return oops.With("character", c.index).Wrap(err)
		}
		if err := c.Step(c.cfg.DeltaTime); err != nil {
			return err
		}
	}
	span.SetAttributes(attribute.Int("sim.commands", c.report.Commands))
	return nil
}

// Step fires due timeline events, updates the layer by dt and generates the
// frame's commands.
func (c *Character) Step(dt float32) error {
	before := c.layer.CurrentStateName()
	if err := c.fireEvents(); err != nil {
		return err
	}
	effects := &animstate.EffectList{}
	c.uctx.Clock.Advance(dt)
	c.layer.BeginStep(c.uctx, dt, effects)

	r := &c.report
	r.Frames++
	if c.layer.CurrentStateName() != before {
		r.StateChanges++
	}
	for _, e := range effects.All() {
		r.Effects[e.Name]++
	}
	c.pending = slices.DeleteFunc(c.pending, func(id animstate.RequestID) bool {
		st := c.layer.GetTransitionStatus(id)
		if st.Has(animstate.StatusPending) {
			return false
		}
		r.Requests[outcomeOf(st)]++
		return true
	})
	r.PeakInstances = max(r.PeakInstances, c.layer.NumUsedInstances())
	r.PeakTracks = max(r.PeakTracks, c.layer.NumTracks())

	c.cmds.Reset()
	c.layer.CreateAnimCmds(&animstate.CmdGenContext{
		Feather: c.cfg.Feather,
		Options: c.cfg.Options,
		Info:    c.info,
	}, c.cmds, -1)
	r.Commands += c.cmds.Len()
	if c.cfg.KeepCommands {
		r.CommandFrames = append(r.CommandFrames, slices.Clone(c.cmds.Cmds()))
	}
	r.Final = c.layer.View()
	return nil
}

func (c *Character) fireEvents() error {
	events := c.cfg.Timeline.Events
	now := float32(c.uctx.Clock.Time)
	for c.next < len(events) && events[c.next].At <= now {
		if err := c.apply(&events[c.next]); err != nil {
			return oops.Code(CodeCharacterFailed).
				With("character", c.index).
				With("event", c.next).
				Wrap(err)
		}
		c.next++
	}
	return nil
}

func (c *Character) apply(e *Event) error {
	for k, v := range e.Info {
		c.info.Set(k, v)
	}
	switch {
	case e.Request != "":
		c.track(c.layer.RequestTransition(e.Request, nil))
	case e.Persistent != "":
		c.track(c.layer.RequestPersistentTransition(e.Persistent, nil))
	case e.Final != "":
		c.track(c.layer.RequestTransitionByFinalState(e.Final, nil))
	case e.Fade != "":
		var params *animstate.FadeToStateParams
		if e.FadeTime > 0 {
			params = &animstate.FadeToStateParams{
				Fade: &animstate.FadeParams{AnimFadeTime: e.FadeTime, MotionFadeTime: -1},
			}
		}
		fade := c.layer.FadeToState
		if e.Immediate {
			fade = c.layer.FadeToStateImmediate
		}
		if _, err := fade(c.uctx, e.Fade, params); err != nil {
			c.report.Errors++
			errutil.LogWarn(c.logger, "fade to state failed", err)
		}
	case e.Trap != nil:
		return c.layer.SetTransitionTrap(*e.Trap)
	case e.LayerFade != nil:
		c.layer.SetFade(*e.LayerFade)
	}
	return nil
}

func (c *Character) track(id animstate.RequestID) {
	if st := c.layer.GetTransitionStatus(id); st.Has(animstate.StatusQueueFull) {
		c.report.Requests[outcomeOf(st)]++
		return
	}
	c.pending = append(c.pending, id)
}

// Report returns what the character has produced so far.
func (c *Character) Report() CharacterReport { return c.report }

// Close releases every instance of the layer.
func (c *Character) Close() {
	c.layer.Reset()
}

func outcomeOf(s animstate.StatusFlags) string {
	switch {
	case s.Has(animstate.StatusTaken):
		return animstate.OutcomeTaken
	case s.Has(animstate.StatusIgnored):
		return animstate.OutcomeIgnored
	case s.Has(animstate.StatusQueueFull):
		return animstate.OutcomeQueueFull
	default:
		return animstate.OutcomeFailed
	}
}
