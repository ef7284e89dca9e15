// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import "github.com/holomush/animstate/internal/animcmd"

// LayerHooks is implemented by the owner of a layer (usually the character) to
// observe instance lifetime and take part in command generation.
// Embed NopHooks to implement only the methods you need.
type LayerHooks interface {
	OnInstanceCreate(l *Layer, inst *Instance)
	OnInstanceRelease(l *Layer, inst *Instance)
	OnInstanceBlend(l *Layer, inst *Instance, cmds *animcmd.List, slot int)
	OnLayerPreBlend(l *Layer, ctx *CmdGenContext, cmds *animcmd.List)
	OnLayerPostBlend(l *Layer, ctx *CmdGenContext, cmds *animcmd.List, slot int, fade float32)
}

// NopHooks implements LayerHooks with no-ops.
type NopHooks struct{}

var _ LayerHooks = NopHooks{}

// OnInstanceCreate does nothing.
func (NopHooks) OnInstanceCreate(*Layer, *Instance) {}

// OnInstanceRelease does nothing.
func (NopHooks) OnInstanceRelease(*Layer, *Instance) {}

// OnInstanceBlend does nothing.
func (NopHooks) OnInstanceBlend(*Layer, *Instance, *animcmd.List, int) {}

// OnLayerPreBlend does nothing.
func (NopHooks) OnLayerPreBlend(*Layer, *CmdGenContext, *animcmd.List) {}

// OnLayerPostBlend does nothing.
func (NopHooks) OnLayerPostBlend(*Layer, *CmdGenContext, *animcmd.List, int, float32) {}
