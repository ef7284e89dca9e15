// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import "github.com/holomush/animstate/internal/animcmd"

// CreateAnimCmds emits the commands for every track and composites them newest
// over oldest by effective fade. The layer nets one slot, which is returned,
// or -1 when the layer has no tracks. A non-negative fadeOverride replaces the
// newest instance's blend weight and the layer fade passed to the post-blend hook.
func (l *Layer) CreateAnimCmds(ctx *CmdGenContext, cmds *animcmd.List, fadeOverride float32) int {
	if len(l.trackList) == 0 {
		return -1
	}
	cmds.AddLayerMarker(l.name)
	l.hooks.OnLayerPreBlend(l, ctx, cmds)

	accSlot := -1
	var accWeight float32
	for k, t := range l.trackList {
		override := float32(-1)
		if k == 0 {
			override = fadeOverride
		}
		slot := t.CreateAnimCmds(l, ctx, cmds, override)
		eff := t.EffectiveFade()
		if accSlot < 0 {
			accSlot, accWeight = slot, eff
			continue
		}
		total := accWeight + eff
		w := float32(1)
		if total > 0 {
			w = accWeight / total
		}
		cmds.AddEvaluateBlend(slot, accSlot, accSlot, l.cfg.BlendMode, w)
		ctx.FirstUnusedInstance--
		accWeight = total
	}

	fade := l.fade
	if fadeOverride >= 0 {
		fade = clamp01(fadeOverride)
	}
	l.hooks.OnLayerPostBlend(l, ctx, cmds, accSlot, fade)
	return accSlot
}
