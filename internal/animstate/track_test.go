// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/feather"
)

// newTrack allocates a track from the fixture layer and makes it the newest.
func (f *layerFixture) newTrack(t *testing.T) *Track {
	t.Helper()
	tr := f.layer.allocTrackSlot()
	require.NotNil(t, tr)
	f.layer.pushTrack(tr)
	return tr
}

// newInstance allocates and initialises an instance of state without placing it.
func (f *layerFixture) newInstance(t *testing.T, state string, fadeTime float32) *Instance {
	t.Helper()
	st, ok := f.provider.State(state)
	require.True(t, ok, "state %q", state)
	snap, err := f.builder.Build(st, nil)
	require.NoError(t, err)
	inst := f.layer.allocInstanceSlot()
	require.NotNil(t, inst)
	inst.Init(f.uctx, f.layer.newInstanceID(), st, snap, "", nil, &FadeToStateParams{Fade: fadeOf(fadeTime)})
	return inst
}

func TestTrack_PushOrderAndCapacity(t *testing.T) {
	f := newFixture(t, func(c *LayerConfig) { c.MaxInstancesPerTrack = 3 })
	for _, n := range []string{"a", "b", "c", "d"} {
		f.loop(n, 0.2)
	}
	tr := f.newTrack(t)

	var pushed []*Instance
	for _, n := range []string{"a", "b", "c"} {
		inst := f.newInstance(t, n, 0.2)
		require.True(t, tr.PushInstance(inst))
		pushed = append(pushed, inst)
		assert.Same(t, inst, tr.Instance(0), "newest must be at index 0")
		assert.Same(t, pushed[0], tr.Instance(tr.NumInstances()-1), "oldest must be last")
	}

	extra := f.newInstance(t, "d", 0.2)
	assert.False(t, tr.CanPushInstance())
	assert.False(t, tr.PushInstance(extra))
	assert.Equal(t, 3, tr.NumInstances())
	assert.Same(t, pushed[2], tr.Newest())
	assert.Nil(t, tr.Instance(3))
	assert.Nil(t, tr.Instance(-1))
}

func TestTrack_ReclaimInstancePopsOldest(t *testing.T) {
	f := newFixture(t, nil)
	f.loop("a", 0.2)
	f.loop("b", 0.2)
	tr := f.newTrack(t)
	a := f.newInstance(t, "a", 0.2)
	b := f.newInstance(t, "b", 0.2)
	tr.PushInstance(a)
	tr.PushInstance(b)
	aID := a.ID()

	got := tr.ReclaimInstance()

	assert.Same(t, a, got)
	assert.Equal(t, 1, f.hooks.released[aID])
	assert.Equal(t, 1, tr.NumInstances())
	assert.Same(t, b, tr.Newest())
}

func TestTrack_UpdateEffectiveFadeSumsToTrackFade(t *testing.T) {
	tests := []struct {
		name      string
		fades     []float32 // per instance after the fade step, newest first
		trackFade float32
		want      []float32
	}{
		{"single", []float32{0.3}, 1, []float32{1}},
		{"two", []float32{0.5, 1}, 1, []float32{0.5, 0.5}},
		{"three", []float32{0.5, 0.5, 1}, 1, []float32{0.5, 0.25, 0.25}},
		{"scaled", []float32{0.5, 1}, 0.4, []float32{0.2, 0.2}},
		{"opaque top", []float32{1, 0.2}, 1, []float32{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.loop("s", 1)
			tr := f.newTrack(t)
			for k := len(tt.fades) - 1; k >= 0; k-- {
				// A fade of 1s advanced by x seconds has a linear weight of x.
				inst := f.newInstance(t, "s", 1)
				inst.FadeUpdate(tt.fades[k], false)
				require.True(t, tr.PushInstance(inst))
			}

			tr.UpdateEffectiveFade(tt.trackFade)

			var sum float32
			for k, want := range tt.want {
				assert.InDelta(t, want, tr.Instance(k).EffectiveFade(), 1e-5, "instance %d", k)
				sum += tr.Instance(k).EffectiveFade()
			}
			assert.InDelta(t, tt.trackFade, sum, 1e-5)
			assert.InDelta(t, tt.trackFade, tr.EffectiveFade(), 1e-6)
		})
	}
}

func TestTrack_EndToEndFadeAndCleanup(t *testing.T) {
	f := newFixture(t, nil)
	f.loop("A", 0.5)
	f.loop("B", 0.2)
	tr := f.newTrack(t)

	a := f.newInstance(t, "A", 0.5)
	aID := a.ID()
	require.True(t, tr.PushInstance(a))
	tr.UpdateFades(0.25, false)
	assert.InDelta(t, 0.5, a.AnimFade(), 1e-6)

	b := f.newInstance(t, "B", 0.2)
	require.True(t, tr.PushInstance(b))
	tr.UpdateFades(0.2, false)
	assert.InDelta(t, 1, b.AnimFade(), 1e-6)
	assert.InDelta(t, 0.9, a.MasterFade(), 1e-5)

	released := tr.DeleteNonContributingInstances(f.layer)

	assert.Equal(t, 1, released)
	require.Equal(t, 1, tr.NumInstances())
	assert.Same(t, b, tr.Newest())
	assert.Equal(t, 1, f.hooks.released[aID])
	assert.Equal(t, 1, f.layer.NumUsedInstances())
}

func TestTrack_DeleteNonContributingConverges(t *testing.T) {
	// Instance k (newest first) is the first fully faded in one.
	for n := 2; n <= 5; n++ {
		for k := 0; k < n; k++ {
			f := newFixture(t, func(c *LayerConfig) {
				c.MaxInstances = 8
				c.MaxInstancesPerTrack = 8
			})
			f.loop("s", 1)
			tr := f.newTrack(t)
			ids := make([]InstanceID, n)
			for idx := n - 1; idx >= 0; idx-- {
				inst := f.newInstance(t, "s", 1)
				if idx == k {
					inst.FadeUpdate(1, false)
				} else {
					inst.FadeUpdate(0.5, false)
				}
				ids[idx] = inst.ID()
				require.True(t, tr.PushInstance(inst))
			}

			tr.DeleteNonContributingInstances(f.layer)

			assert.LessOrEqual(t, tr.NumInstances(), k+2, "n=%d k=%d", n, k)
			live := map[InstanceID]bool{}
			for _, inst := range tr.instances {
				live[inst.ID()] = true
			}
			for idx, id := range ids {
				if idx <= k {
					assert.True(t, live[id], "n=%d k=%d: instance %d above the opaque one must survive", n, k, idx)
				}
				if !live[id] {
					assert.Equal(t, 1, f.hooks.released[id], "n=%d k=%d: released once", n, k)
				} else {
					assert.Zero(t, f.hooks.released[id])
				}
			}
			assert.Equal(t, tr.NumInstances(), f.layer.NumUsedInstances())
		}
	}
}

func TestTrack_KeepsFadingOldestAboveOlderTracks(t *testing.T) {
	f := newFixture(t, nil)
	f.loop("s", 1)
	bottom := f.newTrack(t)
	require.True(t, bottom.PushInstance(f.newInstance(t, "s", 0)))

	top := f.newTrack(t)
	oldest := f.newInstance(t, "s", 1)
	oldest.FadeUpdate(0.5, false)
	mid := f.newInstance(t, "s", 1)
	mid.FadeUpdate(0.5, false)
	opaque := f.newInstance(t, "s", 0)
	top.PushInstance(oldest)
	top.PushInstance(mid)
	top.PushInstance(opaque)

	released := top.DeleteNonContributingInstances(f.layer)

	assert.Equal(t, 1, released)
	require.Equal(t, 2, top.NumInstances())
	assert.Same(t, opaque, top.Newest())
	assert.Same(t, oldest, top.Oldest(), "oldest carries the track fade")
}

func TestTrack_NothingOpaqueKeepsAll(t *testing.T) {
	f := newFixture(t, nil)
	f.loop("s", 1)
	tr := f.newTrack(t)
	tr.PushInstance(f.newInstance(t, "s", 1))
	tr.PushInstance(f.newInstance(t, "s", 1))

	assert.Zero(t, tr.DeleteNonContributingInstances(f.layer))
	assert.Equal(t, 2, tr.NumInstances())
}

func TestTrack_UpdateFadesPropagatesFreezeToOlder(t *testing.T) {
	f := newFixture(t, nil)
	f.loop("s", 1)
	tr := f.newTrack(t)
	older := f.newInstance(t, "s", 0)
	newer := f.newInstance(t, "s", 1)
	newer.flags.FreezeFadingOutChildren = true
	tr.PushInstance(older)
	tr.PushInstance(newer)

	tr.UpdateFades(0.1, false)

	assert.False(t, newer.IsPhaseFrozen())
	assert.True(t, older.IsPhaseFrozen())
}

func TestTrack_CreateAnimCmdsSlotAccounting(t *testing.T) {
	for n := 1; n <= 4; n++ {
		f := newFixture(t, nil)
		f.loop("s", 1)
		tr := f.newTrack(t)
		for k := 0; k < n; k++ {
			tr.PushInstance(f.newInstance(t, "s", 1))
		}
		ctx := &CmdGenContext{FirstUnusedInstance: 3}
		cmds := animcmd.NewList(16)

		slot := tr.CreateAnimCmds(f.layer, ctx, cmds, -1)

		assert.Equal(t, 4, ctx.FirstUnusedInstance, "n=%d", n)
		assert.Equal(t, 3, slot, "n=%d", n)
		assert.Equal(t, n-1, cmds.Count(animcmd.KindEvaluateBlend), "n=%d", n)
		assert.Equal(t, n, cmds.Count(animcmd.KindEvaluateClip), "n=%d", n)
		assert.Equal(t, n, f.hooks.blends, "n=%d", n)
	}
}

func TestTrack_CreateAnimCmdsBlendOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.loop("old", 1)
	f.loop("new", 1)
	tr := f.newTrack(t)
	tr.PushInstance(f.newInstance(t, "old", 1))
	newer := f.newInstance(t, "new", 1)
	newer.FadeUpdate(0.25, false)
	tr.PushInstance(newer)
	ctx := &CmdGenContext{FirstUnusedInstance: 1}
	cmds := animcmd.NewList(8)

	tr.CreateAnimCmds(f.layer, ctx, cmds, -1)

	require.Equal(t, 3, cmds.Len())
	assert.Equal(t, "old", cmds.At(0).Anim)
	assert.Equal(t, 1, cmds.At(0).Dest)
	assert.Equal(t, "new", cmds.At(1).Anim)
	assert.Equal(t, 2, cmds.At(1).Dest)
	blend := cmds.At(2)
	assert.Equal(t, animcmd.KindEvaluateBlend, blend.Kind)
	assert.Equal(t, 1, blend.Left)
	assert.Equal(t, 2, blend.Right)
	assert.Equal(t, 1, blend.Dest)
	assert.InDelta(t, 0.25, blend.Weight, 1e-6)
}

func TestTrack_CreateAnimCmdsFadeOverride(t *testing.T) {
	f := newFixture(t, nil)
	f.loop("s", 1)
	tr := f.newTrack(t)
	tr.PushInstance(f.newInstance(t, "s", 1))
	tr.PushInstance(f.newInstance(t, "s", 1))
	ctx := &CmdGenContext{FirstUnusedInstance: 1}
	cmds := animcmd.NewList(8)

	tr.CreateAnimCmds(f.layer, ctx, cmds, 0.7)

	assert.InDelta(t, 0.7, cmds.At(cmds.Len()-1).Weight, 1e-6)
}

func TestTrack_CreateAnimCmdsBaseFillAndFeather(t *testing.T) {
	table := feather.NewTable()
	_, err := table.Register("upper", []float32{0, 0.5, 1})
	require.NoError(t, err)

	f := newFixture(t, nil)
	f.uctx.Feather = table
	st := f.loop("s", 1)
	st.FeatherBlend = "upper"
	tr := f.newTrack(t)
	tr.PushInstance(f.newInstance(t, "s", 1))
	half := f.newInstance(t, "s", 1)
	half.FadeUpdate(0.5, false)
	tr.PushInstance(half)

	ctx := &CmdGenContext{
		FirstUnusedInstance: 1,
		BaseValid:           true,
		Feather:             table,
		Options:             Options{BrokenInstanceFeatherBlends: true},
	}
	cmds := animcmd.NewList(16)
	slot := tr.CreateAnimCmds(f.layer, ctx, cmds, -1)

	assert.Equal(t, 1, slot)
	assert.Equal(t, 3, cmds.Count(animcmd.KindEvaluateFeatherBlend), "two base fills and one instance blend")
	last := cmds.At(cmds.Len() - 1)
	require.Equal(t, animcmd.KindEvaluateFeatherBlend, last.Kind)
	require.Len(t, last.Factors, 3)
	assert.InDelta(t, 1, last.Factors[0].Factor, 1e-6)
	assert.InDelta(t, 1, last.Factors[1].Factor, 1e-6)
	assert.InDelta(t, 0.5, last.Factors[2].Factor, 1e-6)
}

func TestTrack_CreateAnimCmdsFlip(t *testing.T) {
	f := newFixture(t, nil)
	f.loop("s", 1)
	f.builder.clips["add"] = fakeClip{additive: true}
	f.provider.add(&State{Name: "add", Duration: 1})

	t.Run("plain", func(t *testing.T) {
		tr := f.newTrack(t)
		inst := f.newInstance(t, "s", 0)
		inst.SetFlipped(true)
		tr.PushInstance(inst)
		cmds := animcmd.NewList(8)

		tr.CreateAnimCmds(f.layer, &CmdGenContext{FirstUnusedInstance: 1}, cmds, -1)

		require.Equal(t, 2, cmds.Len())
		assert.Equal(t, animcmd.KindEvaluateFlip, cmds.At(1).Kind)
		assert.Equal(t, 1, cmds.At(1).Dest)
	})

	t.Run("additive flips base", func(t *testing.T) {
		tr := f.newTrack(t)
		inst := f.newInstance(t, "add", 0)
		inst.SetFlipped(true)
		tr.PushInstance(inst)
		cmds := animcmd.NewList(8)

		tr.CreateAnimCmds(f.layer, &CmdGenContext{FirstUnusedInstance: 1, BaseValid: true}, cmds, -1)

		kinds := make([]animcmd.Kind, 0, cmds.Len())
		dests := make([]int, 0, cmds.Len())
		for _, c := range cmds.Cmds() {
			kinds = append(kinds, c.Kind)
			dests = append(dests, c.Dest)
		}
		assert.Equal(t, []animcmd.Kind{
			animcmd.KindEvaluateFlip, animcmd.KindEvaluateClip,
			animcmd.KindEvaluateFlip, animcmd.KindEvaluateFlip,
		}, kinds)
		assert.Equal(t, []int{0, 1, 0, 1}, dests)
	})
}

func TestTrack_CreateAnimCmdsAdditiveStateFlag(t *testing.T) {
	f := newFixture(t, nil)
	f.loop("s", 1)
	f.provider.add(&State{Name: "forced", Anim: "s", Duration: 1, Flags: StateFlags{Additive: true}})

	t.Run("no base fill", func(t *testing.T) {
		tr := f.newTrack(t)
		tr.PushInstance(f.newInstance(t, "forced", 0))
		cmds := animcmd.NewList(8)

		tr.CreateAnimCmds(f.layer, &CmdGenContext{FirstUnusedInstance: 1, BaseValid: true}, cmds, -1)

		assert.Equal(t, 1, cmds.Len())
		assert.Zero(t, cmds.Count(animcmd.KindEvaluateBlend))
	})

	t.Run("blends onto older instance additively", func(t *testing.T) {
		tr := f.newTrack(t)
		tr.PushInstance(f.newInstance(t, "s", 0))
		tr.PushInstance(f.newInstance(t, "forced", 0))
		cmds := animcmd.NewList(8)

		tr.CreateAnimCmds(f.layer, &CmdGenContext{FirstUnusedInstance: 1}, cmds, -1)

		require.Equal(t, 1, cmds.Count(animcmd.KindEvaluateBlend))
		last := cmds.At(cmds.Len() - 1)
		assert.Equal(t, animcmd.KindEvaluateBlend, last.Kind)
		assert.Equal(t, animcmd.BlendAdditive, last.Mode)
	})
}

func TestTrack_CreateAnimCmdsNetCommands(t *testing.T) {
	f := newFixture(t, nil)
	f.loop("s", 1)
	tr := f.newTrack(t)
	tr.PushInstance(f.newInstance(t, "s", 0.4))
	cmds := animcmd.NewList(8)

	tr.CreateAnimCmds(f.layer, &CmdGenContext{FirstUnusedInstance: 1, Options: Options{GenerateNetCommands: true}}, cmds, -1)

	require.Equal(t, 1, cmds.Count(animcmd.KindState))
	st := cmds.At(cmds.Len() - 1)
	assert.Equal(t, "s", st.Name)
	assert.InDelta(t, 0.4, st.FadeTime, 1e-6)
}
