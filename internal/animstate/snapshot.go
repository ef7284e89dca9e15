// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"math/bits"

	"github.com/holomush/animstate/internal/animcmd"
)

// ChannelMask reports which channels an evaluation found and wrote.
// Bit i set means channel i was written; a clear bit means the channel is absent,
// which is different from a channel that evaluated to identity.
type ChannelMask uint32

// Has reports whether channel i is set.
func (m ChannelMask) Has(i int) bool {
	return m&(1<<uint(i)) != 0
}

// Set returns m with channel i set.
func (m ChannelMask) Set(i int) ChannelMask {
	return m | 1<<uint(i)
}

// Count returns the number of channels set.
func (m ChannelMask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// EvaluateParams controls a channel evaluation at a single phase.
type EvaluateParams struct {
	Phase   float32
	Flipped bool
	Info    *InfoCollection
}

// DeltaParams controls a delta evaluation between two phases. Wrapped means the
// range crosses the loop point in the play direction.
type DeltaParams struct {
	From     float32
	To       float32
	Wrapped  bool
	Reversed bool
	Flipped  bool
	Info     *InfoCollection
}

// EffectQuery selects effects whose trigger phase lies in (From, To] in the play
// direction. Duration converts phases to seconds.
type EffectQuery struct {
	From     float32
	To       float32
	Wrapped  bool
	Reversed bool
	Flipped  bool
	Duration float32
}

// CmdGenInfo is handed to the snapshot tree while it emits pose commands.
type CmdGenInfo struct {
	StateName string
	Phase     float32
	Flipped   bool
	Info      *InfoCollection
}

// Snapshot is the pose snapshot tree bound to one instance.
type Snapshot interface {
	// RefreshPhasesAndBlends propagates a new phase through the tree.
	RefreshPhasesAndBlends(phase float32, isTop bool, info *InfoCollection)
	// StepNodes advances time-dependent custom nodes.
	StepNodes(deltaTime float32)
	// Evaluate samples channels at params.Phase into out.
	Evaluate(channels []string, params EvaluateParams, out []Locator) ChannelMask
	// EvaluateDelta samples per-channel joint-space deltas over a phase range.
	EvaluateDelta(channels []string, params DeltaParams, out []Locator) ChannelMask
	// DetectCameraCut reports whether a camera cut lies in (from, to].
	DetectCameraCut(from, to float32, wrapped bool) bool
	// CollectEffects appends effects triggered in the query range.
	CollectEffects(q EffectQuery, out *EffectList)
	// GenerateAnimCommands emits pose commands leaving the result in outputSlot.
	GenerateAnimCommands(cmds *animcmd.List, outputSlot int, info *CmdGenInfo)
	// RootIsAdditive reports whether the tree produces an additive pose.
	RootIsAdditive() bool
	// NumFrames returns the authored frame count, at least 2.
	NumFrames() int
	// Release returns tree resources.
	Release()
}

// SnapshotBuilder binds a snapshot tree to a state.
type SnapshotBuilder interface {
	Build(state *State, info *InfoCollection) (Snapshot, error)
}
