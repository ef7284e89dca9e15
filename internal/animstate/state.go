// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

// StateFlags are per-state behaviour switches from the state graph.
type StateFlags struct {
	Looping                  bool
	ExtrapolateAlign         bool
	BlendChannelDeltasInTree bool
	FreezeDuringFadeIn       bool
	FreezeFadingOutStates    bool
	DisableAutoTransitions   bool
	// Additive blends the state additively even when its tree is not.
	Additive bool
}

// FadeParams describes a fade: how long the anim and motion fades take and the curve.
// A negative MotionFadeTime follows AnimFadeTime.
type FadeParams struct {
	AnimFadeTime   float32
	MotionFadeTime float32
	Curve          Curve
}

// MotionTime returns the effective motion fade time.
func (f FadeParams) MotionTime() float32 {
	if f.MotionFadeTime < 0 {
		return f.AnimFadeTime
	}
	return f.MotionFadeTime
}

// StartPhaseMode selects how a new instance picks its first phase.
type StartPhaseMode uint8

// Start phase modes.
const (
	StartPhaseFixed StartPhaseMode = iota
	StartPhaseRandom
	StartPhaseFunc
)

// StartPhase is the start-phase rule of a state.
type StartPhase struct {
	Mode  StartPhaseMode
	Value float32
	Func  PhaseFunc
}

// PhaseFuncInput is the read-only context handed to phase functions.
type PhaseFuncInput struct {
	StateName string
	Phase     float32
	PrevPhase float32
	DeltaTime float32
	PhaseRate float32
	Info      *InfoCollection
}

// PhaseFunc computes a phase from context. As a state's phase function it
// replaces the linear advance; as a start-phase function it picks the first phase.
type PhaseFunc interface {
	EvalPhase(in PhaseFuncInput) (float32, error)
}

// PhaseFuncOf adapts a Go function to PhaseFunc.
type PhaseFuncOf func(in PhaseFuncInput) (float32, error)

// EvalPhase calls f.
func (f PhaseFuncOf) EvalPhase(in PhaseFuncInput) (float32, error) {
	return f(in)
}

// State is one node of the state graph.
type State struct {
	Name         string
	Anim         string
	Duration     float32
	Flags        StateFlags
	PhaseFunc    PhaseFunc
	StartPhase   StartPhase
	Fade         FadeParams
	FeatherBlend string
	Transitions  []*Transition
}

// PhaseRate returns the phase advance per second. A state without a duration holds its pose.
func (s *State) PhaseRate() float32 {
	if s.Duration <= 0 {
		return 0
	}
	return 1 / s.Duration
}

// TransitionCondition decides whether a transition is currently active.
type TransitionCondition interface {
	Holds(q *TransitionQueryInfo) bool
}

// ConditionFunc adapts a function to TransitionCondition.
type ConditionFunc func(q *TransitionQueryInfo) bool

// Holds calls f.
func (f ConditionFunc) Holds(q *TransitionQueryInfo) bool {
	return f(q)
}

// Transition is a named edge of the state graph.
type Transition struct {
	Name                string
	To                  string
	Auto                bool
	Condition           TransitionCondition
	Fade                *FadeParams
	NewInstanceBehavior NewInstanceBehavior
}

// Active reports whether the transition can be taken given q.
func (t *Transition) Active(q *TransitionQueryInfo) bool {
	return t.Condition == nil || t.Condition.Holds(q)
}

// BlendOverlay overrides default fades for specific (previous anim, new anim) pairs.
type BlendOverlay interface {
	Lookup(prevAnim, newAnim string) (FadeParams, bool)
}

// StateProvider resolves state definitions by name.
type StateProvider interface {
	State(name string) (*State, bool)
	BlendOverlay() BlendOverlay
}
