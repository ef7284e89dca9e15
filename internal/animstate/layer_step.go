// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

// BeginStep runs one frame of the layer: phases, queued and automatic
// transitions, fades, effective fades and cleanup, in that order.
func (l *Layer) BeginStep(uctx *UpdateContext, dt float32, effects *EffectList) {
	if uctx != nil && uctx.Info != nil {
		l.info = uctx.Info
	}
	l.frameEffects = effects
	defer func() { l.frameEffects = nil }()

	for _, t := range l.trackList {
		t.ResetChannelDeltas()
	}
	l.UpdateInstancePhases(uctx, dt, effects)
	l.TakeTransitions(uctx)
	l.TakeAutoTransitions(uctx, false)
	l.UpdateInstanceFadeEffects(dt)
	l.UpdateEffectiveFade()
	l.DeleteNonContributingInstances()
	l.DeleteNonContributingTracks()
	l.updateGauges()
}

// UpdateInstancePhases advances every instance, oldest track first.
func (l *Layer) UpdateInstancePhases(uctx *UpdateContext, dt float32, effects *EffectList) {
	for k := len(l.trackList) - 1; k >= 0; k-- {
		l.trackList[k].PhaseUpdate(uctx, dt, effects)
	}
}

// UpdateInstanceFadeEffects advances the fades of every track.
func (l *Layer) UpdateInstanceFadeEffects(dt float32) {
	for _, t := range l.trackList {
		t.UpdateFades(dt, false)
	}
}

// UpdateEffectiveFade shares the layer fade out over the tracks newest first
// and then over each track's instances. The effective fades sum to the layer fade.
func (l *Layer) UpdateEffectiveFade() {
	budget := l.fade
	last := len(l.trackList) - 1
	for k, t := range l.trackList {
		if k == last {
			t.UpdateEffectiveFade(budget)
			break
		}
		f := t.Fade()
		t.UpdateEffectiveFade(budget * f)
		budget *= 1 - f
	}
}

// DeleteNonContributingInstances runs instance cleanup on every track.
func (l *Layer) DeleteNonContributingInstances() int {
	released := 0
	for _, t := range l.trackList {
		released += t.DeleteNonContributingInstances(l)
	}
	return released
}

// DeleteNonContributingTracks releases every track older than the newest
// track that has fully faded in.
func (l *Layer) DeleteNonContributingTracks() int {
	first := -1
	for k, t := range l.trackList {
		if t.MasterFade() >= 1 {
			first = k
			break
		}
	}
	if first < 0 {
		return 0
	}
	released := 0
	for len(l.trackList) > first+1 {
		l.releaseTrack(l.trackList[len(l.trackList)-1])
		released++
	}
	return released
}

// ChannelDelta blends the named channel's delta over every instance by
// effective fade, newest first. It reports false when no instance has the channel.
func (l *Layer) ChannelDelta(name string) (Locator, bool) {
	acc := IdentityLocator()
	var weight float32
	found := false
	l.WalkInstances(func(_ *Track, inst *Instance) bool {
		d, ok := inst.ChannelDelta(name)
		if !ok {
			return true
		}
		w := inst.EffectiveFade()
		if w <= 0 {
			return true
		}
		weight += w
		acc = acc.Lerp(d, w/weight)
		found = true
		return true
	})
	return acc, found
}
