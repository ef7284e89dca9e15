// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

// Effect is an authored event whose trigger phase was crossed during a phase update.
type Effect struct {
	Name       string
	Phase      float32
	Time       float32
	Params     map[string]string
	StateName  string
	InstanceID InstanceID
}

// EffectList collects triggered effects. The runtime appends and never reads back.
type EffectList struct {
	effects []Effect
}

// Add appends an effect.
func (l *EffectList) Add(e Effect) {
	l.effects = append(l.effects, e)
}

// Len returns the number of effects.
func (l *EffectList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.effects)
}

// All returns the collected effects.
func (l *EffectList) All() []Effect {
	if l == nil {
		return nil
	}
	return l.effects
}

// Names returns the effect names in order.
func (l *EffectList) Names() []string {
	names := make([]string, 0, l.Len())
	for _, e := range l.All() {
		names = append(names, e.Name)
	}
	return names
}

// Reset empties the list, keeping its storage.
func (l *EffectList) Reset() {
	l.effects = l.effects[:0]
}

// stamp tags every effect added since from with the owning instance.
func (l *EffectList) stamp(from int, inst *Instance) {
	for k := from; k < len(l.effects); k++ {
		l.effects[k].StateName = inst.StateName()
		l.effects[k].InstanceID = inst.ID()
	}
}
