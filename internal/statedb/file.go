// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package statedb loads state graph files: the states, transitions, clips,
// blends, feather blends and fade overlays a layer runs on.
package statedb

import (
	"bytes"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// File is a state graph file as written on disk.
type File struct {
	FormatVersion string            `yaml:"format_version" jsonschema:"pattern=^[0-9]+\\.[0-9]+(\\.[0-9]+)?$"`
	Name          string            `yaml:"name" jsonschema:"minLength=1"`
	Description   string            `yaml:"description,omitempty"`
	FeatherBlends []FeatherBlendDef `yaml:"feather_blends,omitempty"`
	Clips         []ClipDef         `yaml:"clips,omitempty"`
	Blends        []BlendDef        `yaml:"blends,omitempty"`
	States        []StateDef        `yaml:"states" jsonschema:"minItems=1"`
	Overlays      []OverlayDef      `yaml:"overlays,omitempty"`
}

// FadeDef is a fade description. An omitted motion time follows the anim time.
type FadeDef struct {
	Anim   float32  `yaml:"anim" jsonschema:"minimum=0"`
	Motion *float32 `yaml:"motion,omitempty" jsonschema:"minimum=0"`
	Curve  string   `yaml:"curve,omitempty" jsonschema:"enum=linear,enum=ease-in,enum=ease-out,enum=ease-in-out,enum=uniform-s"`
}

// FeatherBlendDef registers per-joint fade scales under a name.
type FeatherBlendDef struct {
	Name   string    `yaml:"name" jsonschema:"minLength=1"`
	Scales []float32 `yaml:"scales" jsonschema:"minItems=1"`
}

// KeyDef is a channel keyframe. Yaw is in radians.
type KeyDef struct {
	Frame float32    `yaml:"frame" jsonschema:"minimum=0"`
	Pos   [3]float32 `yaml:"pos,omitempty"`
	Yaw   float32    `yaml:"yaw,omitempty"`
}

// EffectDef is an effect marker on a clip.
type EffectDef struct {
	Name   string            `yaml:"name" jsonschema:"minLength=1"`
	Mirror string            `yaml:"mirror,omitempty"`
	Phase  float32           `yaml:"phase" jsonschema:"minimum=0,maximum=1"`
	Params map[string]string `yaml:"params,omitempty"`
}

// ClipDef is a clip with its channel keys.
type ClipDef struct {
	Name       string              `yaml:"name" jsonschema:"minLength=1"`
	Frames     int                 `yaml:"frames" jsonschema:"minimum=2"`
	Additive   bool                `yaml:"additive,omitempty"`
	Channels   map[string][]KeyDef `yaml:"channels,omitempty"`
	Effects    []EffectDef         `yaml:"effects,omitempty"`
	CameraCuts []float32           `yaml:"camera_cuts,omitempty"`
}

// BlendDef mixes two anims by an info parameter.
type BlendDef struct {
	Name  string  `yaml:"name" jsonschema:"minLength=1"`
	Left  string  `yaml:"left" jsonschema:"minLength=1"`
	Right string  `yaml:"right" jsonschema:"minLength=1"`
	Param string  `yaml:"param" jsonschema:"minLength=1"`
	Min   float32 `yaml:"min,omitempty"`
	Max   float32 `yaml:"max"`
	Mode  string  `yaml:"mode,omitempty" jsonschema:"enum=slerp,enum=lerp,enum=additive"`
}

// StartPhaseDef picks the first phase of new instances.
type StartPhaseDef struct {
	Mode   string  `yaml:"mode" jsonschema:"enum=fixed,enum=random,enum=script"`
	Value  float32 `yaml:"value,omitempty" jsonschema:"minimum=0,maximum=1"`
	Script string  `yaml:"script,omitempty"`
}

// StateDef is one state of the graph.
type StateDef struct {
	Name                     string          `yaml:"name" jsonschema:"minLength=1"`
	Anim                     string          `yaml:"anim,omitempty"`
	Duration                 float32         `yaml:"duration,omitempty" jsonschema:"minimum=0"`
	Looping                  bool            `yaml:"looping,omitempty"`
	ExtrapolateAlign         bool            `yaml:"extrapolate_align,omitempty"`
	BlendChannelDeltasInTree bool            `yaml:"blend_channel_deltas_in_tree,omitempty"`
	FreezeDuringFadeIn       bool            `yaml:"freeze_during_fade_in,omitempty"`
	FreezeFadingOutStates    bool            `yaml:"freeze_fading_out_states,omitempty"`
	DisableAutoTransitions   bool            `yaml:"disable_auto_transitions,omitempty"`
	Additive                 bool            `yaml:"additive,omitempty"`
	Fade                     *FadeDef        `yaml:"fade,omitempty"`
	StartPhase               *StartPhaseDef  `yaml:"start_phase,omitempty"`
	PhaseScript              string          `yaml:"phase_script,omitempty"`
	FeatherBlend             string          `yaml:"feather_blend,omitempty"`
	Transitions              []TransitionDef `yaml:"transitions,omitempty"`
}

// TransitionDef is an edge out of a state. When is a predicate; an empty
// predicate is always active.
type TransitionDef struct {
	Name        string   `yaml:"name" jsonschema:"minLength=1"`
	To          string   `yaml:"to" jsonschema:"minLength=1"`
	Auto        bool     `yaml:"auto,omitempty"`
	When        string   `yaml:"when,omitempty"`
	Fade        *FadeDef `yaml:"fade,omitempty"`
	NewInstance string   `yaml:"new_instance,omitempty" jsonschema:"enum=use_previous_track,enum=spawn_new_track"`
}

// OverlayDef overrides the default fade between anims matching the patterns.
type OverlayDef struct {
	From string  `yaml:"from" jsonschema:"minLength=1"`
	To   string  `yaml:"to" jsonschema:"minLength=1"`
	Fade FadeDef `yaml:"fade"`
}

// ParseFile decodes a state graph file without validating it against the schema.
func ParseFile(data []byte) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, oops.Code(CodeInvalidGraph).Errorf("state graph data is empty")
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code(CodeInvalidGraph).Wrapf(err, "invalid YAML")
	}
	return &f, nil
}
