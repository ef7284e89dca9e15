// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package snapshot

import (
	"maps"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/animstate"
)

// node is one clip or blend of a bound tree. Blend weights are per tree.
type node struct {
	clip        *Clip
	blend       *Blend
	left, right *node
	weight      float32
}

func (n *node) refresh(info *animstate.InfoCollection) {
	if n.blend == nil {
		return
	}
	n.weight = 0
	if v, ok := info.Get(n.blend.Param); ok {
		n.weight = clamp01((float32(v) - n.blend.Min) / (n.blend.Max - n.blend.Min))
	}
	n.left.refresh(info)
	n.right.refresh(info)
}

// sample evaluates channel at phase. It reports false when no clip under n has the channel.
func (n *node) sample(channel string, phase float32) (animstate.Locator, bool) {
	if n.clip != nil {
		return sampleClip(n.clip, channel, phase)
	}
	l, lok := n.left.sample(channel, phase)
	r, rok := n.right.sample(channel, phase)
	switch {
	case lok && rok:
		return l.Lerp(r, n.weight), true
	case lok:
		return l, true
	case rok:
		return r, true
	}
	return animstate.Locator{}, false
}

func sampleClip(c *Clip, channel string, phase float32) (animstate.Locator, bool) {
	keys := c.Channels[channel]
	if len(keys) == 0 {
		return animstate.Locator{}, false
	}
	frame := clamp01(phase) * float32(c.Frames-1)
	if frame <= keys[0].Frame {
		return keys[0].Loc, true
	}
	last := keys[len(keys)-1]
	if frame >= last.Frame {
		return last.Loc, true
	}
	i := sort.Search(len(keys), func(k int) bool { return keys[k].Frame > frame })
	a, b := keys[i-1], keys[i]
	return a.Loc.Lerp(b.Loc, (frame-a.Frame)/(b.Frame-a.Frame)), true
}

// dominant follows the heavier child down to a clip.
func (n *node) dominant() *Clip {
	for n.clip == nil {
		if n.weight >= 0.5 {
			n = n.right
		} else {
			n = n.left
		}
	}
	return n.clip
}

func (n *node) walkClips(fn func(*Clip)) {
	if n.clip != nil {
		fn(n.clip)
		return
	}
	n.left.walkClips(fn)
	n.right.walkClips(fn)
}

func (n *node) additive() bool {
	if n.clip != nil {
		return n.clip.Additive
	}
	return n.left.additive() && n.right.additive()
}

func (n *node) frames() int {
	if n.clip != nil {
		return n.clip.Frames
	}
	return max(n.left.frames(), n.right.frames())
}

// generate leaves the result of n in slot, using slot+1 and up as scratch.
func (n *node) generate(cmds *animcmd.List, slot int, phase float32) {
	if n.clip != nil {
		cmds.AddEvaluateClip(n.clip.Name, phase, slot)
		return
	}
	n.left.generate(cmds, slot, phase)
	n.right.generate(cmds, slot+1, phase)
	cmds.AddEvaluateBlend(slot, slot+1, slot, n.blend.Mode, n.weight)
}

// Tree is a blend tree bound to one instance.
type Tree struct {
	builder  *Builder
	anim     string
	root     *node
	phase    float32
	isTop    bool
	elapsed  float32
	released bool
}

// Anim returns the anim the tree was built from.
func (t *Tree) Anim() string { return t.anim }

// Phase returns the phase last propagated through the tree.
func (t *Tree) Phase() float32 { return t.phase }

// Elapsed returns the time the tree has been stepped for.
func (t *Tree) Elapsed() float32 { return t.elapsed }

// RefreshPhasesAndBlends stores phase and recomputes blend weights from info.
func (t *Tree) RefreshPhasesAndBlends(phase float32, isTop bool, info *animstate.InfoCollection) {
	t.phase = phase
	t.isTop = isTop
	t.root.refresh(info)
}

// StepNodes advances the tree clock.
func (t *Tree) StepNodes(dt float32) { t.elapsed += dt }

// Evaluate samples each channel at params.Phase.
func (t *Tree) Evaluate(channels []string, params animstate.EvaluateParams, out []animstate.Locator) animstate.ChannelMask {
	var mask animstate.ChannelMask
	for k, ch := range channels {
		if k >= len(out) {
			break
		}
		loc, ok := t.root.sample(ch, params.Phase)
		if !ok {
			continue
		}
		if params.Flipped {
			loc = mirror(loc)
		}
		out[k] = loc
		mask = mask.Set(k)
	}
	return mask
}

// EvaluateDelta computes each channel's motion over the range, expressed in
// the channel's frame at From. A wrapped range is split at the loop point.
func (t *Tree) EvaluateDelta(channels []string, p animstate.DeltaParams, out []animstate.Locator) animstate.ChannelMask {
	var mask animstate.ChannelMask
	for k, ch := range channels {
		if k >= len(out) {
			break
		}
		from, ok := t.root.sample(ch, p.From)
		if !ok {
			continue
		}
		to, _ := t.root.sample(ch, p.To)
		var d animstate.Locator
		if p.Wrapped {
			end, start := float32(1), float32(0)
			if p.Reversed {
				end, start = 0, 1
			}
			e, _ := t.root.sample(ch, end)
			s, _ := t.root.sample(ch, start)
			d = from.UntransformLocator(e).TransformLocator(s.UntransformLocator(to))
		} else {
			d = from.UntransformLocator(to)
		}
		if p.Flipped {
			d = mirror(d)
		}
		out[k] = d
		mask = mask.Set(k)
	}
	return mask
}

// DetectCameraCut reports whether any clip in the tree has a cut in the range.
// A wrapped range with from < to, or an unwrapped one with from > to, runs backwards.
func (t *Tree) DetectCameraCut(from, to float32, wrapped bool) bool {
	reversed := (wrapped && from < to) || (!wrapped && from > to)
	found := false
	t.root.walkClips(func(c *Clip) {
		for _, cut := range c.CameraCuts {
			if inRange(cut, from, to, wrapped, reversed) {
				found = true
			}
		}
	})
	return found
}

// CollectEffects adds the markers of the dominant clip crossed by the query.
func (t *Tree) CollectEffects(q animstate.EffectQuery, out *animstate.EffectList) {
	if out == nil {
		return
	}
	for _, m := range t.root.dominant().Effects {
		if !inRange(m.Phase, q.From, q.To, q.Wrapped, q.Reversed) {
			continue
		}
		name := m.Name
		if q.Flipped && m.MirrorName != "" {
			name = m.MirrorName
		}
		out.Add(animstate.Effect{
			Name:   name,
			Phase:  m.Phase,
			Time:   m.Phase * q.Duration,
			Params: maps.Clone(m.Params),
		})
	}
}

// GenerateAnimCommands emits the tree's pose commands into outputSlot.
func (t *Tree) GenerateAnimCommands(cmds *animcmd.List, outputSlot int, info *animstate.CmdGenInfo) {
	phase := t.phase
	if info != nil {
		phase = info.Phase
	}
	t.root.generate(cmds, outputSlot, phase)
}

// RootIsAdditive reports whether every clip in the tree is additive.
func (t *Tree) RootIsAdditive() bool { return t.root.additive() }

// NumFrames returns the frame count of the longest clip.
func (t *Tree) NumFrames() int { return max(2, t.root.frames()) }

// Release returns the tree to its builder. Further releases are ignored.
func (t *Tree) Release() {
	if t.released {
		return
	}
	t.released = true
	t.builder.live.Add(-1)
}

// inRange reports whether p lies in the half-open range (from, to] taken in
// the play direction.
func inRange(p, from, to float32, wrapped, reversed bool) bool {
	switch {
	case !wrapped && !reversed:
		return p > from && p <= to
	case !wrapped && reversed:
		return p < from && p >= to
	case !reversed:
		return p > from || p <= to
	default:
		return p < from || p >= to
	}
}

// mirror reflects a locator across the YZ plane.
func mirror(l animstate.Locator) animstate.Locator {
	return animstate.Locator{
		Pos: mgl32.Vec3{-l.Pos.X(), l.Pos.Y(), l.Pos.Z()},
		Rot: mgl32.Quat{W: l.Rot.W, V: mgl32.Vec3{l.Rot.V.X(), -l.Rot.V.Y(), -l.Rot.V.Z()}},
	}
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

var _ animstate.Snapshot = (*Tree)(nil)
