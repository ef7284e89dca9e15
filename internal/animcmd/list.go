// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package animcmd provides the append-only command list consumed by the pose
// evaluation backend. The animation runtime only appends; the backend reads.
package animcmd

import (
	"fmt"
	"strings"
)

// BlendMode selects how two poses are combined.
type BlendMode uint8

// Blend modes understood by the evaluation backend.
const (
	BlendSlerp BlendMode = iota
	BlendLerp
	BlendAdditive
)

// String returns the blend mode name.
func (m BlendMode) String() string {
	switch m {
	case BlendSlerp:
		return "slerp"
	case BlendLerp:
		return "lerp"
	case BlendAdditive:
		return "additive"
	default:
		return fmt.Sprintf("blend(%d)", m)
	}
}

// ParseBlendMode converts a name to a BlendMode.
func ParseBlendMode(s string) (BlendMode, error) {
	switch s {
	case "", "slerp":
		return BlendSlerp, nil
	case "lerp":
		return BlendLerp, nil
	case "additive":
		return BlendAdditive, nil
	default:
		return BlendSlerp, fmt.Errorf("unknown blend mode %q", s)
	}
}

// Kind identifies a command type.
type Kind uint8

// Command kinds.
const (
	KindEvaluateClip Kind = iota
	KindEvaluateBlend
	KindEvaluateFeatherBlend
	KindEvaluateFlip
	KindState
	KindLayerMarker
)

var kindNames = [...]string{
	KindEvaluateClip:         "EvaluateClip",
	KindEvaluateBlend:        "EvaluateBlend",
	KindEvaluateFeatherBlend: "EvaluateFeatherBlend",
	KindEvaluateFlip:         "EvaluateFlip",
	KindState:                "State",
	KindLayerMarker:          "LayerMarker",
}

// String returns the command kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ChannelFactor is a per-joint blend factor attached to a feather blend.
type ChannelFactor struct {
	Joint  int
	Factor float32
}

// Cmd is a single pose command. Which fields are meaningful depends on Kind.
type Cmd struct {
	Kind    Kind
	Left    int
	Right   int
	Dest    int
	Mode    BlendMode
	Weight  float32
	Factors []ChannelFactor

	// EvaluateClip
	Anim  string
	Phase float32

	// State / LayerMarker
	Name     string
	FadeTime float32
}

// String formats the command for debug dumps.
func (c Cmd) String() string {
	switch c.Kind {
	case KindEvaluateClip:
		return fmt.Sprintf("EvaluateClip(%s @%.3f -> %d)", c.Anim, c.Phase, c.Dest)
	case KindEvaluateBlend:
		return fmt.Sprintf("EvaluateBlend(%d, %d -> %d, %s, %.3f)", c.Left, c.Right, c.Dest, c.Mode, c.Weight)
	case KindEvaluateFeatherBlend:
		return fmt.Sprintf("EvaluateFeatherBlend(%d, %d -> %d, %s, %.3f, %d joints)", c.Left, c.Right, c.Dest, c.Mode, c.Weight, len(c.Factors))
	case KindEvaluateFlip:
		return fmt.Sprintf("EvaluateFlip(%d)", c.Dest)
	case KindState:
		return fmt.Sprintf("State(%s, %.3f)", c.Name, c.FadeTime)
	case KindLayerMarker:
		return fmt.Sprintf("Layer(%s)", c.Name)
	default:
		return c.Kind.String()
	}
}

// List is an append-only command list. The zero value is ready to use.
type List struct {
	cmds []Cmd
}

// NewList creates a list with preallocated capacity.
func NewList(capacity int) *List {
	return &List{cmds: make([]Cmd, 0, capacity)}
}

// AddEvaluateClip samples an animation at phase into slot.
func (l *List) AddEvaluateClip(anim string, phase float32, slot int) {
	l.cmds = append(l.cmds, Cmd{Kind: KindEvaluateClip, Anim: anim, Phase: phase, Dest: slot})
}

// AddEvaluateBlend blends left and right into dest. Weight 0 yields left, 1 yields right.
func (l *List) AddEvaluateBlend(left, right, dest int, mode BlendMode, weight float32) {
	l.cmds = append(l.cmds, Cmd{Kind: KindEvaluateBlend, Left: left, Right: right, Dest: dest, Mode: mode, Weight: weight})
}

// AddEvaluateFeatherBlend blends with per-joint factors. The factors slice is retained.
func (l *List) AddEvaluateFeatherBlend(left, right, dest int, mode BlendMode, weight float32, factors []ChannelFactor) {
	l.cmds = append(l.cmds, Cmd{
		Kind:    KindEvaluateFeatherBlend,
		Left:    left,
		Right:   right,
		Dest:    dest,
		Mode:    mode,
		Weight:  weight,
		Factors: factors,
	})
}

// AddEvaluateFlip mirrors the pose in slot.
func (l *List) AddEvaluateFlip(slot int) {
	l.cmds = append(l.cmds, Cmd{Kind: KindEvaluateFlip, Dest: slot})
}

// AddState records a state marker used for remote playback reconstruction.
func (l *List) AddState(name string, fadeTime float32) {
	l.cmds = append(l.cmds, Cmd{Kind: KindState, Name: name, FadeTime: fadeTime})
}

// AddLayerMarker records the start of a layer's command block.
func (l *List) AddLayerMarker(name string) {
	l.cmds = append(l.cmds, Cmd{Kind: KindLayerMarker, Name: name})
}

// Len returns the number of commands.
func (l *List) Len() int {
	return len(l.cmds)
}

// At returns the i-th command.
func (l *List) At(i int) Cmd {
	return l.cmds[i]
}

// Cmds returns the underlying commands. Callers must not modify the slice.
func (l *List) Cmds() []Cmd {
	return l.cmds
}

// Count returns the number of commands of the given kind.
func (l *List) Count(kind Kind) int {
	n := 0
	for i := range l.cmds {
		if l.cmds[i].Kind == kind {
			n++
		}
	}
	return n
}

// Reset clears the list, keeping its storage.
func (l *List) Reset() {
	l.cmds = l.cmds[:0]
}

// String dumps the list one command per line.
func (l *List) String() string {
	var b strings.Builder
	for i, c := range l.cmds {
		fmt.Fprintf(&b, "%3d %s\n", i, c)
	}
	return b.String()
}
