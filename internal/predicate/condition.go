// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package predicate

import (
	"strings"

	"github.com/holomush/animstate/internal/animstate"
)

// infoPrefix selects values from the character's info collection.
const infoPrefix = "info."

// QueryCondition adapts a predicate to animstate.TransitionCondition.
type QueryCondition struct {
	*Predicate
}

// NewCondition compiles src into a transition condition.
func NewCondition(src string) (*QueryCondition, error) {
	p, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return &QueryCondition{Predicate: p}, nil
}

// Holds evaluates the predicate against the query.
func (c *QueryCondition) Holds(q *animstate.TransitionQueryInfo) bool {
	if q == nil {
		return false
	}
	return c.Eval(QueryAttributes{Query: q})
}

// QueryAttributes exposes a transition query to predicates.
//
//	state, phase, prev_phase, frame, anim_fade, motion_fade, looping,
//	top_of_track, top_track, free_instance, free_track, remainder, elapsed,
//	info.<key>
type QueryAttributes struct {
	Query *animstate.TransitionQueryInfo
}

// Lookup resolves path against the query.
func (a QueryAttributes) Lookup(path string) (any, bool) {
	q := a.Query
	switch path {
	case "state":
		return q.StateName, true
	case "phase":
		return q.Phase, true
	case "prev_phase":
		return q.PrevPhase, true
	case "frame":
		return q.Frame, true
	case "anim_fade":
		return q.AnimFade, true
	case "motion_fade":
		return q.MotionFade, true
	case "looping":
		return q.Looping, true
	case "top_of_track":
		return q.TopOfTrack, true
	case "top_track":
		return q.TopTrack, true
	case "free_instance":
		return q.FreeInstance, true
	case "free_track":
		return q.FreeTrack, true
	case "remainder":
		return q.RemainderTime, true
	case "elapsed":
		return q.Elapsed, true
	}
	if key, ok := strings.CutPrefix(path, infoPrefix); ok {
		v, found := q.Info.Get(key)
		return v, found
	}
	return nil, false
}

var _ animstate.TransitionCondition = (*QueryCondition)(nil)
