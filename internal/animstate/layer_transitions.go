// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"github.com/samber/oops"

	"github.com/holomush/animstate/pkg/errutil"
)

// FadeToState starts stateName on the layer, bypassing the transition graph.
func (l *Layer) FadeToState(uctx *UpdateContext, stateName string, params *FadeToStateParams) (*Instance, error) {
	state, ok := l.provider.State(stateName)
	if !ok {
		return nil, ErrUnknownState(l.name, stateName)
	}
	return l.fadeToState(uctx, state, params, nil, nil)
}

// FadeToStateImmediate starts stateName with no fade.
func (l *Layer) FadeToStateImmediate(uctx *UpdateContext, stateName string, params *FadeToStateParams) (*Instance, error) {
	p := FadeToStateParams{}
	if params != nil {
		p = *params
	}
	p.Fade = ImmediateFade()
	return l.FadeToState(uctx, stateName, &p)
}

// ApplyTransition takes trans out of src. Time src ran past its end is carried
// into the new instance as its first phase update.
func (l *Layer) ApplyTransition(uctx *UpdateContext, src *Instance, trans *Transition, params *FadeToStateParams) (*Instance, error) {
	state, ok := l.provider.State(trans.To)
	if !ok {
		return nil, oops.Code(CodeUnknownState).
			With("layer", l.name).
			With("transition", trans.Name).
			With("state", trans.To).
			Errorf("transition %q leads to unknown state %q", trans.Name, trans.To)
	}
	var carry float32
	if src != nil {
		carry = src.remainderTime
	}
	inst, err := l.fadeToState(uctx, state, params, trans, src)
	if err != nil {
		return nil, err
	}
	if carry > 0 {
		inst.PhaseUpdate(uctx, carry, true, l.frameEffects)
	}
	return inst, nil
}

func (l *Layer) fadeToState(uctx *UpdateContext, state *State, params *FadeToStateParams, trans *Transition, src *Instance) (*Instance, error) {
	p := FadeToStateParams{}
	if params != nil {
		p = *params
	}
	if p.Fade == nil && trans != nil && trans.Fade != nil {
		f := *trans.Fade
		p.Fade = &f
	}
	behavior := p.NewInstanceBehavior
	if behavior == NewInstanceUnspecified && trans != nil {
		behavior = trans.NewInstanceBehavior
	}
	if behavior == NewInstanceUnspecified {
		behavior = NewInstanceUsePreviousTrack
	}

	prevAnim := ""
	if cur := l.CurrentInstance(); cur != nil {
		prevAnim = cur.state.Anim
	}

	snap, err := l.builder.Build(state, uctx.info())
	if err != nil {
		return nil, oops.Code(CodeSnapshotFailed).
			With("layer", l.name).
			With("state", state.Name).
			Wrapf(err, "build snapshot")
	}

	// A full target track makes room from its own oldest instance. A track that
	// holds a single instance cannot, so the new instance gets a track of its own.
	target := l.targetTrack(behavior, src)
	if target != nil && !target.CanPushInstance() {
		if target.NumInstances() > 1 {
			inst := target.ReclaimInstance()
			l.instUsed.clear(inst.slot)
			PoolReclaims.WithLabelValues(l.name, "track_instance").Inc()
		} else {
			target = nil
		}
	}

	if !l.canPlace(target) {
		snap.Release()
		err := ErrPoolExhausted(l.name, "track", l.cfg.MaxTracks)
		PoolExhausted.WithLabelValues(l.name, "track").Inc()
		errutil.LogWarn(l.logger, "no track for new instance", err)
		return nil, err
	}
	inst, err := l.AllocateOrReclaimInstance()
	if err != nil {
		snap.Release()
		return nil, err
	}
	target = l.liveTrack(target)

	if target == nil || !target.CanPushInstance() {
		t, terr := l.AllocateOrReclaimInstanceTrack()
		switch {
		case terr == nil:
			l.pushTrack(t)
			target = t
		case len(l.trackList) > 0 && l.trackList[0].CanPushInstance():
			target = l.trackList[0]
		default:
			l.instUsed.clear(inst.slot)
			snap.Release()
			return nil, terr
		}
	}

	overlay := l.provider.BlendOverlay()
	if ok := inst.Init(uctx, l.newInstanceID(), state, snap, prevAnim, overlay, &p); !ok {
		l.logger.Warn("instance started with clamped phase", "state", state.Name, "instance_id", inst.id)
	}
	target.PushInstance(inst)
	l.hooks.OnInstanceCreate(l, inst)
	l.updateGauges()
	l.logger.Debug("instance created", "state", state.Name, "instance_id", inst.id,
		"track", target.slot, "fade", inst.AnimFadeTime())
	return inst, nil
}

// targetTrack picks the track a new instance should join, or nil for a new track.
func (l *Layer) targetTrack(behavior NewInstanceBehavior, src *Instance) *Track {
	if behavior == NewInstanceSpawnNewTrack || len(l.trackList) == 0 {
		return nil
	}
	if src != nil {
		if t, _ := l.GetTrackForInstance(src); t != nil && t.Newest() == src {
			return t
		}
	}
	return l.trackList[0]
}

// canPlace reports whether a new instance will find a track once an instance
// slot is taken, so a spawn that cannot complete fails before anything is
// evicted. A non-nil target already has room.
func (l *Layer) canPlace(target *Track) bool {
	if target != nil {
		return true
	}
	if _, ok := l.trackUsed.firstFree(); ok || len(l.trackList) > 1 {
		return true
	}
	if len(l.trackList) == 0 {
		return false
	}
	newest := l.trackList[0]
	if newest.CanPushInstance() {
		return true
	}
	// Evicting for the instance slot can only take from the newest track here,
	// which then has room.
	_, freeInstance := l.instUsed.firstFree()
	return !freeInstance && newest.NumInstances() > 1
}

// liveTrack returns t if it is still in the track list.
func (l *Layer) liveTrack(t *Track) *Track {
	for _, lt := range l.trackList {
		if lt == t {
			return t
		}
	}
	return nil
}

func (l *Layer) newInstanceID() InstanceID {
	l.nextInstanceID++
	if l.nextInstanceID == InvalidInstanceID {
		l.nextInstanceID++
	}
	return l.nextInstanceID
}

// AllocateOrReclaimInstance takes a free instance slot, evicting the oldest
// instance of the least visible track when the pool is full. The current
// instance is never evicted.
func (l *Layer) AllocateOrReclaimInstance() (*Instance, error) {
	if inst := l.allocInstanceSlot(); inst != nil {
		return inst, nil
	}
	var victim *Track
	for k, t := range l.trackList {
		if k == 0 && t.NumInstances() < 2 {
			continue
		}
		if victim == nil || t.Oldest().EffectiveFade() <= victim.Oldest().EffectiveFade() {
			victim = t
		}
	}
	if victim == nil {
		err := ErrPoolExhausted(l.name, "instance", l.cfg.MaxInstances)
		PoolExhausted.WithLabelValues(l.name, "instance").Inc()
		errutil.LogWarn(l.logger, "instance allocation failed", err)
		return nil, err
	}
	inst := victim.ReclaimInstance()
	l.instUsed.clear(inst.slot)
	PoolReclaims.WithLabelValues(l.name, "instance").Inc()
	l.logger.Debug("instance reclaimed", "track", victim.slot)
	if victim.NumInstances() == 0 {
		l.releaseTrack(victim)
	}
	return l.allocInstanceSlot(), nil
}

// AllocateOrReclaimInstanceTrack takes a free track slot, releasing the least
// visible older track when the pool is full. The newest track is never released.
func (l *Layer) AllocateOrReclaimInstanceTrack() (*Track, error) {
	if t := l.allocTrackSlot(); t != nil {
		return t, nil
	}
	var victim *Track
	for k := len(l.trackList) - 1; k > 0; k-- {
		t := l.trackList[k]
		if victim == nil || t.EffectiveFade() < victim.EffectiveFade() {
			victim = t
		}
	}
	if victim == nil {
		err := ErrPoolExhausted(l.name, "track", l.cfg.MaxTracks)
		PoolExhausted.WithLabelValues(l.name, "track").Inc()
		errutil.LogWarn(l.logger, "track allocation failed", err)
		return nil, err
	}
	l.releaseTrack(victim)
	PoolReclaims.WithLabelValues(l.name, "track").Inc()
	return l.allocTrackSlot(), nil
}

// TakeAutoTransitions applies the first active auto transition of the newest
// instance of every track. It returns the newest instance created.
func (l *Layer) TakeAutoTransitions(uctx *UpdateContext, disable bool) (*Instance, bool) {
	if disable {
		return nil, false
	}
	type source struct {
		inst *Instance
		id   InstanceID
	}
	var sources []source
	for _, t := range l.trackList {
		if inst := t.Newest(); inst != nil {
			sources = append(sources, source{inst: inst, id: inst.id})
		}
	}
	var newest *Instance
	for k := len(sources) - 1; k >= 0; k-- {
		src := sources[k].inst
		if src.id != sources[k].id {
			continue
		}
		if t, _ := l.GetTrackForInstance(src); t == nil || t.Newest() != src {
			continue
		}
		trans := src.ActiveAutoTransition()
		if trans == nil {
			continue
		}
		inst, err := l.ApplyTransition(uctx, src, trans, nil)
		if err != nil {
			errutil.LogWarn(l.logger, "auto transition failed", err)
			continue
		}
		AutoTransitions.WithLabelValues(l.name).Inc()
		l.logger.Debug("auto transition taken", "transition", trans.Name,
			"from", src.StateName(), "to", inst.StateName(), "instance_id", inst.ID())
		newest = inst
	}
	return newest, newest != nil
}
