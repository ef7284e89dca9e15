// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/feather"
)

// baseSlot holds the combined pose of lower layers when CmdGenContext.BaseValid is set.
const baseSlot = 0

// CreateAnimCmds emits the commands that evaluate every instance of the track
// oldest to newest and blend them together. Each instance takes a fresh slot
// from ctx and every blend gives one back, so the track nets exactly one slot.
// A non-negative fadeOverride replaces the newest instance's blend weight.
// It returns the slot holding the track result, or -1 for an empty track.
func (t *Track) CreateAnimCmds(l *Layer, ctx *CmdGenContext, cmds *animcmd.List, fadeOverride float32) int {
	if len(t.instances) == 0 {
		return -1
	}
	table := ctx.featherTable()
	evaluated := 0
	for k := len(t.instances) - 1; k >= 0; k-- {
		inst := t.instances[k]
		slot := ctx.FirstUnusedInstance
		ctx.FirstUnusedInstance++

		mode := l.cfg.BlendMode
		if mode == animcmd.BlendSlerp && inst.isAdditive() {
			mode = animcmd.BlendAdditive
		}
		info := &CmdGenInfo{
			StateName: inst.StateName(),
			Phase:     inst.phase,
			Flipped:   inst.flags.Flipped,
			Info:      ctx.Info,
		}
		switch {
		case inst.flags.Flipped && mode == animcmd.BlendAdditive && ctx.BaseValid:
			// Additive trees read the base pose, so mirror the base instead of the result.
			cmds.AddEvaluateFlip(baseSlot)
			inst.snapshot.GenerateAnimCommands(cmds, slot, info)
			cmds.AddEvaluateFlip(baseSlot)
			cmds.AddEvaluateFlip(slot)
		case inst.flags.Flipped:
			inst.snapshot.GenerateAnimCommands(cmds, slot, info)
			cmds.AddEvaluateFlip(slot)
		default:
			inst.snapshot.GenerateAnimCommands(cmds, slot, info)
		}

		fh := t.featherFor(l, inst)
		if ctx.BaseValid && mode != animcmd.BlendAdditive {
			if fh != feather.InvalidHandle {
				factors, w := table.CreateChannelFactors(fh, 1, 1)
				cmds.AddEvaluateFeatherBlend(baseSlot, slot, slot, mode, w, factors)
			} else {
				cmds.AddEvaluateBlend(baseSlot, slot, slot, mode, 1)
			}
		}

		evaluated++
		if evaluated >= 2 {
			w := inst.AnimFade()
			if k == 0 && fadeOverride >= 0 {
				w = clamp01(fadeOverride)
			}
			left := slot - 1
			if fh != feather.InvalidHandle && ctx.Options.BrokenInstanceFeatherBlends {
				factors, adj := table.CreateChannelFactors(fh, w, 1)
				cmds.AddEvaluateFeatherBlend(left, slot, left, mode, adj, factors)
			} else {
				cmds.AddEvaluateBlend(left, slot, left, mode, w)
			}
			ctx.FirstUnusedInstance--
		}

		result := ctx.FirstUnusedInstance - 1
		l.hooks.OnInstanceBlend(l, inst, cmds, result)
		if ctx.Options.GenerateNetCommands {
			cmds.AddState(inst.StateName(), inst.AnimFadeTime())
		}
	}
	return ctx.FirstUnusedInstance - 1
}

func (i *Instance) isAdditive() bool {
	return (i.state != nil && i.state.Flags.Additive) || i.snapshot.RootIsAdditive()
}

// featherFor returns the feather blend for inst, falling back to the layer's.
func (t *Track) featherFor(l *Layer, inst *Instance) feather.Handle {
	if inst.flags.DisableFeatherBlend {
		return feather.InvalidHandle
	}
	if inst.featherHandle != feather.InvalidHandle {
		return inst.featherHandle
	}
	return l.featherHandle
}
