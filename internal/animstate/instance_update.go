// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// fade is a one-way 0→1 fade driven by remaining time.
type fade struct {
	total   float32
	left    float32
	curve   Curve
	current float32
}

func (f *fade) start(total float32, curve Curve) {
	if total < 0 {
		total = 0
	}
	f.total = total
	f.left = total
	f.curve = curve
	f.refresh()
}

func (f *fade) update(dt float32) {
	if f.left > 0 {
		f.left -= dt
		if f.left < 0 {
			f.left = 0
		}
	}
	f.refresh()
}

func (f *fade) refresh() {
	if f.total <= 0 {
		f.current = 1
		return
	}
	f.current = f.curve.Eval(1 - f.left/f.total)
}

func (f *fade) inProgress() bool {
	return f.left > 0
}

// AnimFade returns the pose fade in [0,1].
func (i *Instance) AnimFade() float32 { return i.animFade.current }

// MotionFade returns the motion fade in [0,1].
func (i *Instance) MotionFade() float32 { return i.motionFade.current }

// MasterFade returns the lesser of the anim and motion fades.
func (i *Instance) MasterFade() float32 {
	return min(i.animFade.current, i.motionFade.current)
}

// EffectiveFade returns the absolute contribution of the instance to its layer.
func (i *Instance) EffectiveFade() float32 { return i.effectiveFade }

// AnimFadeTime returns the total anim fade time.
func (i *Instance) AnimFadeTime() float32 { return i.animFade.total }

// AnimFadeLeft returns the remaining anim fade time.
func (i *Instance) AnimFadeLeft() float32 { return i.animFade.left }

// MotionFadeTime returns the total motion fade time.
func (i *Instance) MotionFadeTime() float32 { return i.motionFade.total }

// MotionFadeLeft returns the remaining motion fade time.
func (i *Instance) MotionFadeLeft() float32 { return i.motionFade.left }

// FadeCurve returns the fade curve.
func (i *Instance) FadeCurve() Curve { return i.animFade.curve }

// IsFadeUpToDate reports whether both fades are complete.
func (i *Instance) IsFadeUpToDate() bool {
	return !i.animFade.inProgress() && !i.motionFade.inProgress()
}

// FadeUpdate advances both fades by dt and decides whether the phase is frozen
// this frame. It returns whether older instances of the same track must freeze too.
func (i *Instance) FadeUpdate(dt float32, forceFreeze bool) bool {
	i.animFade.update(dt)
	i.motionFade.update(dt)
	fading := i.animFade.inProgress() || i.motionFade.inProgress()
	i.flags.PhaseFrozen = forceFreeze || i.flags.PhaseFrozenRequested ||
		(i.flags.FreezeDuringFadeIn && fading)
	return forceFreeze || i.flags.FreezeFadingOutChildren
}

// PhaseUpdate advances the phase by dt, accumulates channel deltas and
// collects effects crossed on the way. isTop is true for the newest instance of its track.
func (i *Instance) PhaseUpdate(uctx *UpdateContext, dt float32, isTop bool, effects *EffectList) {
	info := uctx.info()
	looping := i.IsLooping()

	if i.flags.NetSkipPending {
		i.phase, _ = normalizePhase(i.phase+i.netSkipPhase, looping)
		i.prevPhase, _ = normalizePhase(i.prevPhase+i.netSkipPhase, looping)
		i.netSkipPhase = 0
		i.flags.NetSkipPending = false
	}

	oldPhase := i.phase
	lastPrev := i.prevPhase
	i.prevPhase = oldPhase
	i.remainderTime = 0
	i.flags.CameraCutThisFrame = false

	names := i.channelNames()
	var pre [MaxTrackedChannels]Locator
	preMask := i.snapshot.Evaluate(names, EvaluateParams{Phase: oldPhase, Flipped: i.flags.Flipped, Info: info}, pre[:len(names)])

	frozen := i.flags.PhaseFrozen || i.flags.SkipPhaseUpdateThisFrame
	i.flags.SkipPhaseUpdateThisFrame = false

	rate := i.PhaseRate()
	raw := oldPhase
	i.estimatedAnimScale = 1
	if !frozen {
		dir := float32(1)
		if i.flags.PlayReversed {
			dir = -1
		}
		linear := oldPhase + dir*dt*rate
		raw = linear
		if pf := i.state.PhaseFunc; pf != nil {
			custom, err := pf.EvalPhase(PhaseFuncInput{
				StateName: i.state.Name,
				Phase:     oldPhase,
				PrevPhase: lastPrev,
				DeltaTime: dt,
				PhaseRate: rate,
				Info:      info,
			})
			switch {
			case err != nil:
				i.logger().Warn("phase function failed", "state", i.state.Name, "code", CodePhaseFuncFailed, "error", err)
			case math.IsNaN(float64(custom)) || math.IsInf(float64(custom), 0):
				i.flags.PhaseInvalid = true
				i.logger().Warn("phase function returned non-finite phase", "state", i.state.Name, "code", CodeInvalidPhase)
			default:
				if d := linear - oldPhase; d != 0 {
					i.estimatedAnimScale = (custom - oldPhase) / d
				}
				raw = custom
			}
		}
		i.elapsed += dt
	}
	if dt > 0 {
		i.phaseRateEstimate = (raw - oldPhase) / dt
	}

	newPhase, wrapped := i.resolvePhase(raw, rate)

	i.snapshot.RefreshPhasesAndBlends(newPhase, isTop, info)
	i.snapshot.StepNodes(dt)

	if !frozen && i.snapshot.DetectCameraCut(oldPhase, newPhase, wrapped) {
		cut := i.quantizeUp(newPhase)
		if rate > 0 {
			i.remainderTime += (cut - newPhase) / rate
		}
		newPhase = cut
		i.flags.CameraCutThisFrame = true
		i.snapshot.RefreshPhasesAndBlends(newPhase, isTop, info)
	}
	i.phase = newPhase

	var post [MaxTrackedChannels]Locator
	postMask := i.snapshot.Evaluate(names, EvaluateParams{Phase: newPhase, Flipped: i.flags.Flipped, Info: info}, post[:len(names)])

	var step [MaxTrackedChannels]Locator
	var stepMask ChannelMask
	if i.state.Flags.BlendChannelDeltasInTree {
		stepMask = i.snapshot.EvaluateDelta(names, DeltaParams{
			From:     oldPhase,
			To:       newPhase,
			Wrapped:  wrapped,
			Reversed: i.flags.PlayReversed,
			Flipped:  i.flags.Flipped,
			Info:     info,
		}, step[:len(names)])
	} else {
		stepMask = i.sampleDeltas(names, oldPhase, newPhase, wrapped, preMask, postMask, pre[:], post[:], step[:], info)
	}
	if i.state.Flags.ExtrapolateAlign && !looping && i.remainderTime > 0 && !i.flags.CameraCutThisFrame {
		i.extrapolateAlign(names, rate, stepMask, step[:], info)
	}

	for k := range names {
		ch := &i.channels[k]
		if postMask.Has(k) {
			if !ch.accumulating {
				ch.prev = ch.cur
				if preMask.Has(k) {
					ch.prev = pre[k]
				}
			}
			ch.cur = post[k]
			ch.valid = true
		}
		if stepMask.Has(k) {
			ch.delta = ch.delta.TransformLocator(step[k])
			ch.accumulating = true
		}
	}

	if i.flags.SavedAlign {
		if k := i.channelIndex("align"); k >= 0 && stepMask.Has(k) {
			i.savedAlign = i.savedAlign.TransformLocator(step[k])
		}
	}

	if effects != nil && !frozen && newPhase != oldPhase {
		from := effects.Len()
		i.snapshot.CollectEffects(EffectQuery{
			From:     oldPhase,
			To:       newPhase,
			Wrapped:  wrapped,
			Reversed: i.flags.PlayReversed,
			Flipped:  i.flags.Flipped,
			Duration: i.Duration(),
		}, effects)
		effects.stamp(from, i)
	}
}

// resolvePhase maps a raw advanced phase into range. Looping phases wrap;
// others clamp and keep the overshoot as remainder time.
func (i *Instance) resolvePhase(raw, rate float32) (float32, bool) {
	if math.IsNaN(float64(raw)) || math.IsInf(float64(raw), 0) {
		i.flags.PhaseInvalid = true
		return i.phase, false
	}
	if i.IsLooping() {
		if raw >= 0 && raw < 1 {
			return raw, false
		}
		return raw - float32(math.Floor(float64(raw))), true
	}
	switch {
	case raw > 1:
		if rate > 0 {
			i.remainderTime = (raw - 1) / rate
		}
		return 1, false
	case raw < 0:
		if rate > 0 {
			i.remainderTime = -raw / rate
		}
		return 0, false
	}
	return raw, false
}

// quantizeUp moves phase forward to the next authored frame boundary.
func (i *Instance) quantizeUp(phase float32) float32 {
	frames := i.snapshot.NumFrames()
	if frames < 2 {
		return phase
	}
	step := 1 / float32(frames-1)
	q := float32(math.Ceil(float64(phase/step)-1e-4)) * step
	return clamp01(max(q, phase))
}

// sampleDeltas derives per-channel step deltas from sampled locators. A wrapped
// range is split at the loop point.
func (i *Instance) sampleDeltas(names []string, from, to float32, wrapped bool,
	preMask, postMask ChannelMask, pre, post, out []Locator, info *InfoCollection,
) ChannelMask {
	mask := preMask & postMask
	if !wrapped {
		for k := range names {
			if mask.Has(k) {
				out[k] = pre[k].UntransformLocator(post[k])
			}
		}
		return mask
	}

	exitPhase, enterPhase := float32(1), float32(0)
	if i.flags.PlayReversed {
		exitPhase, enterPhase = 0, 1
	}
	var exit, enter [MaxTrackedChannels]Locator
	exitMask := i.snapshot.Evaluate(names, EvaluateParams{Phase: exitPhase, Flipped: i.flags.Flipped, Info: info}, exit[:len(names)])
	enterMask := i.snapshot.Evaluate(names, EvaluateParams{Phase: enterPhase, Flipped: i.flags.Flipped, Info: info}, enter[:len(names)])
	mask &= exitMask & enterMask
	for k := range names {
		if mask.Has(k) {
			out[k] = pre[k].UntransformLocator(exit[k]).TransformLocator(enter[k].UntransformLocator(post[k]))
		}
	}
	return mask
}

// extrapolateAlign continues the align motion of the final frame over the remainder time.
func (i *Instance) extrapolateAlign(names []string, rate float32, mask ChannelMask, step []Locator, info *InfoCollection) {
	k := i.channelIndex("align")
	frames := i.snapshot.NumFrames()
	if k < 0 || !mask.Has(k) || frames < 2 || rate <= 0 {
		return
	}
	frameStep := 1 / float32(frames-1)
	var a, b [MaxTrackedChannels]Locator
	ma := i.snapshot.Evaluate(names, EvaluateParams{Phase: 1 - frameStep, Flipped: i.flags.Flipped, Info: info}, a[:len(names)])
	mb := i.snapshot.Evaluate(names, EvaluateParams{Phase: 1, Flipped: i.flags.Flipped, Info: info}, b[:len(names)])
	if !ma.Has(k) || !mb.Has(k) {
		return
	}
	last := a[k].UntransformLocator(b[k])
	scale := i.remainderTime * rate / frameStep
	extra := Locator{
		Pos: last.Pos.Mul(scale),
		Rot: mgl32.QuatSlerp(mgl32.QuatIdent(), last.Rot, min(scale, 1)),
	}
	step[k] = step[k].TransformLocator(extra)
}
