// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

// InstanceView is a copy of the observable state of one instance.
type InstanceView struct {
	ID            InstanceID `json:"id" yaml:"id"`
	State         string     `json:"state" yaml:"state"`
	Phase         float32    `json:"phase" yaml:"phase"`
	AnimFade      float32    `json:"anim_fade" yaml:"anim_fade"`
	MotionFade    float32    `json:"motion_fade" yaml:"motion_fade"`
	EffectiveFade float32    `json:"effective_fade" yaml:"effective_fade"`
	Frozen        bool       `json:"frozen,omitempty" yaml:"frozen,omitempty"`
	Flipped       bool       `json:"flipped,omitempty" yaml:"flipped,omitempty"`
}

// TrackView is a copy of one track, newest instance first.
type TrackView struct {
	EffectiveFade float32        `json:"effective_fade" yaml:"effective_fade"`
	Instances     []InstanceView `json:"instances" yaml:"instances"`
}

// LayerView is a copy of a layer that can be read while the layer keeps updating.
type LayerView struct {
	Name    string      `json:"name" yaml:"name"`
	Current string      `json:"current" yaml:"current"`
	Tracks  []TrackView `json:"tracks" yaml:"tracks"`
}

// View copies the layer state.
func (l *Layer) View() LayerView {
	v := LayerView{Name: l.name, Current: l.CurrentStateName()}
	for _, t := range l.trackList {
		tv := TrackView{EffectiveFade: t.effectiveFade}
		for _, inst := range t.instances {
			tv.Instances = append(tv.Instances, InstanceView{
				ID:            inst.id,
				State:         inst.StateName(),
				Phase:         inst.phase,
				AnimFade:      inst.AnimFade(),
				MotionFade:    inst.MotionFade(),
				EffectiveFade: inst.effectiveFade,
				Frozen:        inst.flags.PhaseFrozen,
				Flipped:       inst.flags.Flipped,
			})
		}
		v.Tracks = append(v.Tracks, tv)
	}
	return v
}

// TotalEffectiveFade sums the effective fades of every instance.
func (v LayerView) TotalEffectiveFade() float32 {
	var sum float32
	for _, t := range v.Tracks {
		for _, inst := range t.Instances {
			sum += inst.EffectiveFade
		}
	}
	return sum
}
