// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"fmt"
	"strings"
)

// Track is an ordered stack of instances blended newest over oldest.
// Index 0 is the newest instance. The oldest instance's fade is the fade of the
// whole track against older tracks.
type Track struct {
	slot          int
	instances     []*Instance
	max           int
	effectiveFade float32
}

func (t *Track) reset(max int) {
	for k := range t.instances {
		t.instances[k] = nil
	}
	if cap(t.instances) < max {
		t.instances = make([]*Instance, 0, max)
	}
	t.instances = t.instances[:0]
	t.max = max
	t.effectiveFade = 0
}

// Slot returns the pool slot of the track.
func (t *Track) Slot() int { return t.slot }

// NumInstances returns the number of live instances.
func (t *Track) NumInstances() int { return len(t.instances) }

// MaxInstances returns the capacity of the track.
func (t *Track) MaxInstances() int { return t.max }

// Instance returns the instance at idx, newest first, or nil.
func (t *Track) Instance(idx int) *Instance {
	if idx < 0 || idx >= len(t.instances) {
		return nil
	}
	return t.instances[idx]
}

// Newest returns the newest instance, or nil.
func (t *Track) Newest() *Instance { return t.Instance(0) }

// Oldest returns the oldest instance, or nil.
func (t *Track) Oldest() *Instance { return t.Instance(len(t.instances) - 1) }

// IndexOf returns the position of inst in the track, or -1.
func (t *Track) IndexOf(inst *Instance) int {
	for k, in := range t.instances {
		if in == inst {
			return k
		}
	}
	return -1
}

// CanPushInstance reports whether another instance fits.
func (t *Track) CanPushInstance() bool {
	return len(t.instances) < t.max
}

// PushInstance puts inst on top of the track.
func (t *Track) PushInstance(inst *Instance) bool {
	if inst == nil || !t.CanPushInstance() {
		return false
	}
	t.instances = append(t.instances, nil)
	copy(t.instances[1:], t.instances)
	t.instances[0] = inst
	return true
}

// ReclaimInstance pops the oldest instance and tears it down. The caller
// returns it to the pool.
func (t *Track) ReclaimInstance() *Instance {
	n := len(t.instances)
	if n == 0 {
		return nil
	}
	inst := t.instances[n-1]
	t.instances[n-1] = nil
	t.instances = t.instances[:n-1]
	inst.OnRelease()
	return inst
}

// Fade is the track's aggregate anim fade, taken from its oldest instance.
func (t *Track) Fade() float32 {
	if o := t.Oldest(); o != nil {
		return o.AnimFade()
	}
	return 0
}

// MasterFade is the master fade of the oldest instance.
func (t *Track) MasterFade() float32 {
	if o := t.Oldest(); o != nil {
		return o.MasterFade()
	}
	return 0
}

// EffectiveFade returns the track's share of its layer.
func (t *Track) EffectiveFade() float32 { return t.effectiveFade }

// UpdateEffectiveFade splits trackFade across the instances: each instance
// takes its anim fade of what newer instances left over and the oldest takes
// the rest. The effective fades sum to trackFade.
func (t *Track) UpdateEffectiveFade(trackFade float32) {
	t.effectiveFade = trackFade
	budget := trackFade
	last := len(t.instances) - 1
	for k, inst := range t.instances {
		if k == last {
			inst.effectiveFade = budget
			break
		}
		f := inst.AnimFade()
		inst.effectiveFade = budget * f
		budget *= 1 - f
	}
}

// UpdateFades advances the fades newest to oldest. A freeze requested by a
// newer instance propagates to every older one.
func (t *Track) UpdateFades(dt float32, forceFreeze bool) {
	freeze := forceFreeze
	for _, inst := range t.instances {
		freeze = inst.FadeUpdate(dt, freeze)
	}
}

// PhaseUpdate advances every instance oldest to newest.
func (t *Track) PhaseUpdate(uctx *UpdateContext, dt float32, effects *EffectList) {
	for k := len(t.instances) - 1; k >= 0; k-- {
		t.instances[k].PhaseUpdate(uctx, dt, k == 0, effects)
	}
}

// ResetChannelDeltas clears the per-frame deltas of every instance.
func (t *Track) ResetChannelDeltas() {
	for _, inst := range t.instances {
		inst.ResetChannelDeltas()
	}
}

// DeleteNonContributingInstances releases instances hidden behind a fully
// faded-in newer one. The oldest instance stays while its own fade is still
// running and older tracks sit below this one, since it carries the track fade.
func (t *Track) DeleteNonContributingInstances(l *Layer) int {
	n := len(t.instances)
	first := -1
	for k, inst := range t.instances {
		if inst.MasterFade() >= 1 {
			first = k
			break
		}
	}
	if first < 0 || first == n-1 {
		return 0
	}

	oldest := t.instances[n-1]
	keepOldest := oldest.MasterFade() < 1 && !l.isBottomTrack(t)
	released := 0
	for k := first + 1; k < n-1; k++ {
		l.releaseInstance(t.instances[k])
		released++
	}
	size := first + 1
	if keepOldest {
		t.instances[size] = oldest
		size++
	} else {
		l.releaseInstance(oldest)
		released++
	}
	for k := size; k < n; k++ {
		t.instances[k] = nil
	}
	t.instances = t.instances[:size]
	return released
}

// WalkNewToOld calls fn for each instance newest first until fn returns false.
func (t *Track) WalkNewToOld(fn func(*Instance) bool) {
	for _, inst := range t.instances {
		if !fn(inst) {
			return
		}
	}
}

// WalkOldToNew calls fn for each instance oldest first until fn returns false.
func (t *Track) WalkOldToNew(fn func(*Instance) bool) {
	for k := len(t.instances) - 1; k >= 0; k-- {
		if !fn(t.instances[k]) {
			return
		}
	}
}

// String lists the instances newest first.
func (t *Track) String() string {
	parts := make([]string, 0, len(t.instances))
	for _, inst := range t.instances {
		parts = append(parts, inst.String())
	}
	return fmt.Sprintf("track[%d eff=%.3f] {%s}", t.slot, t.effectiveFade, strings.Join(parts, ", "))
}
