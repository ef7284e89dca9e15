// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"strconv"
	"strings"
)

// InstanceID identifies a state instance for the lifetime of its layer. Zero is invalid.
type InstanceID uint32

// InvalidInstanceID is never assigned.
const InvalidInstanceID InstanceID = 0

// Valid reports whether id was assigned by a layer.
func (id InstanceID) Valid() bool {
	return id != InvalidInstanceID
}

// String returns the numeric id.
func (id InstanceID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// RequestID identifies a transition request. Zero is invalid.
type RequestID uint32

// InvalidRequestID is never assigned.
const InvalidRequestID RequestID = 0

// InstanceFlags are runtime flags of one instance.
type InstanceFlags struct {
	PhaseFrozen              bool
	PhaseFrozenRequested     bool
	FreezeDuringFadeIn       bool
	FreezeFadingOutChildren  bool
	SkipPhaseUpdateThisFrame bool
	DisableAutoTransitions   bool
	DisableFeatherBlend      bool
	Flipped                  bool
	PlayReversed             bool
	SavedAlign               bool
	CameraCutThisFrame       bool
	NetSkipPending           bool
	PhaseInvalid             bool
}

// NewInstanceBehavior decides where a new instance is placed.
type NewInstanceBehavior uint8

// New instance behaviours. Unspecified defers to the transition and then to
// UsePreviousTrack.
const (
	NewInstanceUnspecified NewInstanceBehavior = iota
	NewInstanceUsePreviousTrack
	NewInstanceSpawnNewTrack
)

var newInstanceBehaviorNames = map[NewInstanceBehavior]string{
	NewInstanceUnspecified:      "",
	NewInstanceUsePreviousTrack: "use_previous_track",
	NewInstanceSpawnNewTrack:    "spawn_new_track",
}

// String returns the graph-file name of the behaviour.
func (b NewInstanceBehavior) String() string {
	return newInstanceBehaviorNames[b]
}

// ParseNewInstanceBehavior parses a graph-file behaviour name.
func ParseNewInstanceBehavior(s string) (NewInstanceBehavior, bool) {
	for b, name := range newInstanceBehaviorNames {
		if name == s {
			return b, true
		}
	}
	return NewInstanceUnspecified, false
}

// FadeToStateParams are the caller's overrides for a state change.
type FadeToStateParams struct {
	// Fade replaces the transition or state fade. Nil keeps the defaults.
	Fade *FadeParams
	// StartPhase replaces the state's start phase. Nil keeps the state rule.
	StartPhase          *float32
	NewInstanceBehavior NewInstanceBehavior
	FreezeSrcState      bool
	FreezeDstState      bool
	SkipFirstFrame      bool
	DisableAutoTrans    bool
	DisableFeatherBlend bool
	Flipped             bool
	PlayReversed        bool
	// PhaseRateScale multiplies the state's phase rate. Zero means 1.
	PhaseRateScale float32
	// NetSkipPhase is applied before the first phase update to catch up with a remote peer.
	NetSkipPhase float32
	ApRef        *Locator
}

// PhaseAt returns a pointer for FadeToStateParams.StartPhase.
func PhaseAt(p float32) *float32 {
	return &p
}

// ImmediateFade returns a zero-length fade.
func ImmediateFade() *FadeParams {
	return &FadeParams{}
}

// StatusFlags is the status of a transition request.
type StatusFlags uint32

// Request status flags. StatusInvalid means the request is unknown.
const (
	StatusInvalid StatusFlags = 0
	StatusPending StatusFlags = 1 << iota
	StatusTaken
	StatusFailed
	StatusIgnored
	StatusQueueFull
	StatusDontRemove
)

// Has reports whether all of f are set.
func (s StatusFlags) Has(f StatusFlags) bool {
	return f != 0 && s&f == f
}

var statusNames = []struct {
	flag StatusFlags
	name string
}{
	{StatusPending, "pending"},
	{StatusTaken, "taken"},
	{StatusFailed, "failed"},
	{StatusIgnored, "ignored"},
	{StatusQueueFull, "queue_full"},
	{StatusDontRemove, "dont_remove"},
}

// String returns the set flags joined by '|'.
func (s StatusFlags) String() string {
	if s == StatusInvalid {
		return "invalid"
	}
	var parts []string
	for _, n := range statusNames {
		if s&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// TransitionQueryInfo is the snapshot of an instance that transition conditions see.
type TransitionQueryInfo struct {
	StateName     string
	Phase         float32
	PrevPhase     float32
	Frame         float32
	AnimFade      float32
	MotionFade    float32
	Looping       bool
	TopOfTrack    bool
	TopTrack      bool
	FreeInstance  bool
	FreeTrack     bool
	RemainderTime float32
	Elapsed       float32
	Info          *InfoCollection
}
