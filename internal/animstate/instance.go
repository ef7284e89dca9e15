// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/holomush/animstate/internal/feather"
)

// MaxTrackedChannels is the number of named channels an instance can track.
const MaxTrackedChannels = 4

// DefaultChannels are tracked when a layer does not name its own.
var DefaultChannels = []string{"align", "apReference"}

type channelState struct {
	prev         Locator
	cur          Locator
	delta        Locator
	valid        bool
	accumulating bool
}

func (c *channelState) reset() {
	c.prev = IdentityLocator()
	c.cur = IdentityLocator()
	c.delta = IdentityLocator()
	c.valid = false
	c.accumulating = false
}

// Instance is one running occurrence of a state. Instances live in a layer's
// pool and are owned by exactly one track while active.
type Instance struct {
	layer *Layer
	slot  int

	id            InstanceID
	state         *State
	snapshot      Snapshot
	prevAnim      string
	featherHandle feather.Handle
	startFrame    int64

	phase              float32
	prevPhase          float32
	remainderTime      float32
	phaseRateScale     float32
	phaseRateEstimate  float32
	estimatedAnimScale float32
	netSkipPhase       float32
	elapsed            float32

	animFade      fade
	motionFade    fade
	effectiveFade float32

	flags      InstanceFlags
	apRef      Locator
	apRefValid bool
	savedAlign Locator
	channels   [MaxTrackedChannels]channelState
}

// Init prepares the instance to run state. Fades come from params, then the
// blend overlay for (prevAnim, state.Anim), then the state defaults.
// It returns false when the start phase was out of range and had to be clamped.
func (i *Instance) Init(uctx *UpdateContext, id InstanceID, state *State, snap Snapshot,
	prevAnim string, overlay BlendOverlay, params *FadeToStateParams,
) bool {
	if params == nil {
		params = &FadeToStateParams{}
	}
	*i = Instance{layer: i.layer, slot: i.slot}
	i.id = id
	i.state = state
	i.snapshot = snap
	i.prevAnim = prevAnim
	i.startFrame = uctx.frame()
	i.estimatedAnimScale = 1
	i.phaseRateScale = 1
	if params.PhaseRateScale > 0 {
		i.phaseRateScale = params.PhaseRateScale
	}

	fp := state.Fade
	if params.Fade != nil {
		fp = *params.Fade
	} else if overlay != nil && prevAnim != "" {
		if o, ok := overlay.Lookup(prevAnim, state.Anim); ok {
			fp = o
		}
	}
	i.animFade.start(fp.AnimFadeTime, fp.Curve)
	i.motionFade.start(fp.MotionTime(), fp.Curve)
	i.effectiveFade = i.animFade.current

	i.flags.FreezeDuringFadeIn = state.Flags.FreezeDuringFadeIn || params.FreezeDstState
	i.flags.FreezeFadingOutChildren = state.Flags.FreezeFadingOutStates || params.FreezeSrcState
	i.flags.SkipPhaseUpdateThisFrame = params.SkipFirstFrame
	i.flags.DisableAutoTransitions = state.Flags.DisableAutoTransitions || params.DisableAutoTrans
	i.flags.DisableFeatherBlend = params.DisableFeatherBlend
	i.flags.Flipped = params.Flipped
	i.flags.PlayReversed = params.PlayReversed

	i.featherHandle = feather.InvalidHandle
	if state.FeatherBlend != "" {
		if h, ok := uctx.feather().Login(state.FeatherBlend); ok {
			i.featherHandle = h
		} else {
			i.logger().Warn("unknown feather blend", "state", state.Name, "feather_blend", state.FeatherBlend)
		}
	}

	i.apRef = IdentityLocator()
	if params.ApRef != nil {
		i.apRef = *params.ApRef
		i.apRefValid = true
	}
	i.savedAlign = IdentityLocator()
	for k := range i.channels {
		i.channels[k].reset()
	}

	start := i.startPhase(uctx, params)
	if params.NetSkipPhase != 0 {
		i.netSkipPhase = params.NetSkipPhase
		i.flags.NetSkipPending = true
	}
	phase, ok := normalizePhase(start, state.Flags.Looping)
	if !ok {
		i.flags.PhaseInvalid = true
		i.logger().Warn("start phase out of range, clamped",
			"state", state.Name, "phase", start, "clamped", phase, "code", CodeInvalidPhase)
	}
	i.phase = phase
	i.prevPhase = phase

	info := uctx.info()
	i.snapshot.RefreshPhasesAndBlends(phase, true, info)
	i.seedChannels(info)
	return ok
}

func (i *Instance) startPhase(uctx *UpdateContext, params *FadeToStateParams) float32 {
	if params.StartPhase != nil {
		return *params.StartPhase
	}
	sp := i.state.StartPhase
	switch sp.Mode {
	case StartPhaseRandom:
		return uctx.random()
	case StartPhaseFunc:
		if sp.Func == nil {
			return sp.Value
		}
		p, err := sp.Func.EvalPhase(PhaseFuncInput{
			StateName: i.state.Name,
			PhaseRate: i.PhaseRate(),
			Info:      uctx.info(),
		})
		if err != nil {
			i.logger().Warn("start phase function failed",
				"state", i.state.Name, "code", CodePhaseFuncFailed, "error", err)
			return sp.Value
		}
		return p
	default:
		return sp.Value
	}
}

// normalizePhase wraps looping phases into [0,1) and clamps the rest into [0,1].
// The bool is false when the input was not a usable phase.
func normalizePhase(p float32, looping bool) (float32, bool) {
	f := float64(p)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if looping {
		if p >= 0 && p < 1 {
			return p, true
		}
		return p - float32(math.Floor(f)), true
	}
	if p < 0 || p > 1 {
		return clamp01(p), false
	}
	return p, true
}

// OnRelease tears the instance down before its pool slot is freed.
func (i *Instance) OnRelease() {
	if i.layer != nil {
		i.layer.hooks.OnInstanceRelease(i.layer, i)
	}
	if i.snapshot != nil {
		i.snapshot.Release()
	}
	*i = Instance{layer: i.layer, slot: i.slot}
}

func (i *Instance) logger() *slog.Logger {
	if i.layer == nil {
		return slog.New(slog.DiscardHandler)
	}
	return i.layer.logger
}

// ID returns the instance id.
func (i *Instance) ID() InstanceID { return i.id }

// Slot returns the pool slot.
func (i *Instance) Slot() int { return i.slot }

// Layer returns the owning layer.
func (i *Instance) Layer() *Layer { return i.layer }

// State returns the state definition.
func (i *Instance) State() *State { return i.state }

// StateName returns the state name, or "" for a free instance.
func (i *Instance) StateName() string {
	if i.state == nil {
		return ""
	}
	return i.state.Name
}

// Snapshot returns the bound snapshot tree.
func (i *Instance) Snapshot() Snapshot { return i.snapshot }

// PrevAnim returns the anim that was on top when this instance was created.
func (i *Instance) PrevAnim() string { return i.prevAnim }

// FeatherBlend returns the feather blend handle, or feather.InvalidHandle.
func (i *Instance) FeatherBlend() feather.Handle { return i.featherHandle }

// StartFrame returns the frame the instance was created on.
func (i *Instance) StartFrame() int64 { return i.startFrame }

// Phase returns the current phase in [0,1].
func (i *Instance) Phase() float32 { return i.phase }

// PrevPhase returns the phase before the last update.
func (i *Instance) PrevPhase() float32 { return i.prevPhase }

// SetPhase moves the phase. Out-of-range values are clamped and reported.
func (i *Instance) SetPhase(p float32) bool {
	phase, ok := normalizePhase(p, i.IsLooping())
	if !ok {
		i.flags.PhaseInvalid = true
		i.logger().Warn("phase out of range, clamped",
			"state", i.StateName(), "phase", p, "clamped", phase, "code", CodeInvalidPhase)
	}
	i.phase = phase
	return ok
}

// Frame returns the phase expressed in authored frames.
func (i *Instance) Frame() float32 {
	if i.snapshot == nil {
		return 0
	}
	return i.phase * float32(i.snapshot.NumFrames()-1)
}

// Duration returns the playback duration in seconds at the current rate scale.
func (i *Instance) Duration() float32 {
	r := i.PhaseRate()
	if r <= 0 {
		return 0
	}
	return 1 / r
}

// PhaseRate returns the phase advance per second.
func (i *Instance) PhaseRate() float32 {
	if i.state == nil {
		return 0
	}
	return i.state.PhaseRate() * i.phaseRateScale
}

// SetPhaseRateScale changes the playback speed multiplier.
func (i *Instance) SetPhaseRateScale(s float32) {
	if s <= 0 {
		s = 1
	}
	i.phaseRateScale = s
}

// PhaseRateEstimate returns the phase rate observed over the last update.
func (i *Instance) PhaseRateEstimate() float32 { return i.phaseRateEstimate }

// EstimatedAnimScale returns the ratio of the phase function advance to the linear advance.
func (i *Instance) EstimatedAnimScale() float32 { return i.estimatedAnimScale }

// RemainderTime returns the time left over when a non-looping phase hit its end.
func (i *Instance) RemainderTime() float32 { return i.remainderTime }

// Elapsed returns the unfrozen playback time.
func (i *Instance) Elapsed() float32 { return i.elapsed }

// IsLooping reports whether the state loops.
func (i *Instance) IsLooping() bool {
	return i.state != nil && i.state.Flags.Looping
}

// Flags returns a copy of the runtime flags.
func (i *Instance) Flags() InstanceFlags { return i.flags }

// IsFlipped reports whether the instance plays mirrored.
func (i *Instance) IsFlipped() bool { return i.flags.Flipped }

// SetFlipped mirrors the instance.
func (i *Instance) SetFlipped(f bool) { i.flags.Flipped = f }

// IsPhaseFrozen reports whether the phase was frozen by the last fade update.
func (i *Instance) IsPhaseFrozen() bool { return i.flags.PhaseFrozen }

// SetPhaseFrozen requests the phase be frozen until cleared.
func (i *Instance) SetPhaseFrozen(f bool) {
	i.flags.PhaseFrozenRequested = f
	if f {
		i.flags.PhaseFrozen = true
	}
}

// SetDisableAutoTransitions toggles auto transitions out of this instance.
func (i *Instance) SetDisableAutoTransitions(d bool) { i.flags.DisableAutoTransitions = d }

// ApRef returns the apReference locator and whether it was set.
func (i *Instance) ApRef() (Locator, bool) { return i.apRef, i.apRefValid }

// SetApRef sets the apReference locator.
func (i *Instance) SetApRef(l Locator) {
	i.apRef = l
	i.apRefValid = true
}

// SavedAlign returns the saved align locator and whether it is tracked.
func (i *Instance) SavedAlign() (Locator, bool) { return i.savedAlign, i.flags.SavedAlign }

// SetSavedAlign starts tracking align from l; phase updates move it by the align delta.
func (i *Instance) SetSavedAlign(l Locator) {
	i.savedAlign = l
	i.flags.SavedAlign = true
}

// ClearSavedAlign stops tracking the saved align.
func (i *Instance) ClearSavedAlign() {
	i.savedAlign = IdentityLocator()
	i.flags.SavedAlign = false
}

// String returns a short debug form.
func (i *Instance) String() string {
	return fmt.Sprintf("%s#%d phase=%.3f fade=%.3f/%.3f eff=%.3f",
		i.StateName(), i.id, i.phase, i.animFade.current, i.motionFade.current, i.effectiveFade)
}
