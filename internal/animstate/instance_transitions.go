// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

// StateMatcher matches state names. A compiled gobwas glob satisfies it.
type StateMatcher interface {
	Match(s string) bool
}

// QueryInfo builds the view transition conditions evaluate against.
func (i *Instance) QueryInfo() TransitionQueryInfo {
	q := TransitionQueryInfo{
		StateName:     i.StateName(),
		Phase:         i.phase,
		PrevPhase:     i.prevPhase,
		Frame:         i.Frame(),
		AnimFade:      i.animFade.current,
		MotionFade:    i.motionFade.current,
		Looping:       i.IsLooping(),
		RemainderTime: i.remainderTime,
		Elapsed:       i.elapsed,
	}
	if l := i.layer; l != nil {
		q.Info = l.info
		if t, idx := l.GetTrackForInstance(i); t != nil {
			q.TopTrack = idx == 0
			q.TopOfTrack = t.Instance(0) == i
		}
		_, q.FreeInstance = l.instUsed.firstFree()
		_, q.FreeTrack = l.trackUsed.firstFree()
	}
	return q
}

// ActiveTransitionByName returns the first active transition out of this
// instance's state with the given name.
func (i *Instance) ActiveTransitionByName(name string) *Transition {
	if i.state == nil {
		return nil
	}
	q := i.QueryInfo()
	for _, t := range i.state.Transitions {
		if t.Name == name && t.Active(&q) {
			return t
		}
	}
	return nil
}

// ActiveTransitionByStateName returns the first active transition leading directly to dest.
func (i *Instance) ActiveTransitionByStateName(dest string) *Transition {
	if i.state == nil {
		return nil
	}
	q := i.QueryInfo()
	for _, t := range i.state.Transitions {
		if t.To == dest && t.Active(&q) {
			return t
		}
	}
	return nil
}

// ActiveTransitionByStateFilter returns the first active transition whose
// destination matches filter.
func (i *Instance) ActiveTransitionByStateFilter(filter StateMatcher) *Transition {
	if i.state == nil || filter == nil {
		return nil
	}
	q := i.QueryInfo()
	for _, t := range i.state.Transitions {
		if filter.Match(t.To) && t.Active(&q) {
			return t
		}
	}
	return nil
}

// ActiveAutoTransition returns the first active auto transition.
func (i *Instance) ActiveAutoTransition() *Transition {
	if i.state == nil || i.flags.DisableAutoTransitions {
		return nil
	}
	q := i.QueryInfo()
	for _, t := range i.state.Transitions {
		if t.Auto && t.Active(&q) {
			return t
		}
	}
	return nil
}

// ActiveTransitionByDestState searches the graph breadth first for the
// shortest route to final and returns its first hop. Only the first hop is
// evaluated against this instance; when it is inactive an active transition
// with the same name is used instead, otherwise the next route is tried.
func (i *Instance) ActiveTransitionByDestState(final string) *Transition {
	if i.state == nil || i.layer == nil {
		return nil
	}
	q := i.QueryInfo()
	provider := i.layer.provider

	type node struct {
		state string
		first *Transition
	}
	visited := map[string]bool{i.state.Name: true}
	var queue []node
	for _, t := range i.state.Transitions {
		if !t.Auto {
			queue = append(queue, node{state: t.To, first: t})
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.state == final {
			if t := i.firstHop(n.first, &q); t != nil {
				return t
			}
			continue
		}
		if visited[n.state] {
			continue
		}
		visited[n.state] = true
		st, ok := provider.State(n.state)
		if !ok {
			continue
		}
		for _, t := range st.Transitions {
			if !visited[t.To] || t.To == final {
				queue = append(queue, node{state: t.To, first: n.first})
			}
		}
	}
	return nil
}

func (i *Instance) firstHop(t *Transition, q *TransitionQueryInfo) *Transition {
	if t.Active(q) {
		return t
	}
	for _, alt := range i.state.Transitions {
		if alt != t && alt.Name == t.Name && !alt.Auto && alt.Active(q) {
			return alt
		}
	}
	return nil
}
