// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/holomush/animstate/internal/animcmd"
)

// fakeClip describes what a fake snapshot produces.
type fakeClip struct {
	alignDist   float32
	frames      int
	additive    bool
	noChannels  bool
	effects     map[float32]string
	cameraCuts  []float32
	failToBuild bool
}

type fakeSnapshot struct {
	clip      fakeClip
	phase     float32
	refreshes int
	stepped   float32
	released  *int
}

func (s *fakeSnapshot) RefreshPhasesAndBlends(phase float32, _ bool, _ *InfoCollection) {
	s.phase = phase
	s.refreshes++
}

func (s *fakeSnapshot) StepNodes(dt float32) { s.stepped += dt }

func (s *fakeSnapshot) Evaluate(channels []string, p EvaluateParams, out []Locator) ChannelMask {
	var mask ChannelMask
	if s.clip.noChannels {
		return mask
	}
	for k, name := range channels {
		switch name {
		case "align":
			out[k] = Locator{Pos: mgl32.Vec3{p.Phase * s.clip.alignDist, 0, 0}, Rot: mgl32.QuatIdent()}
			mask = mask.Set(k)
		case "apReference":
			out[k] = IdentityLocator()
			mask = mask.Set(k)
		}
	}
	return mask
}

func (s *fakeSnapshot) EvaluateDelta(channels []string, p DeltaParams, out []Locator) ChannelMask {
	var mask ChannelMask
	for k, name := range channels {
		if name != "align" {
			continue
		}
		span := p.To - p.From
		if p.Wrapped {
			span += 1
		}
		out[k] = Locator{Pos: mgl32.Vec3{span * s.clip.alignDist, 0, 0}, Rot: mgl32.QuatIdent()}
		mask = mask.Set(k)
	}
	return mask
}

func (s *fakeSnapshot) DetectCameraCut(from, to float32, wrapped bool) bool {
	for _, c := range s.clip.cameraCuts {
		if (!wrapped && c > from && c <= to) || (wrapped && (c > from || c <= to)) {
			return true
		}
	}
	return false
}

func (s *fakeSnapshot) CollectEffects(q EffectQuery, out *EffectList) {
	for phase, name := range s.clip.effects {
		hit := phase > q.From && phase <= q.To
		if q.Wrapped {
			hit = phase > q.From || phase <= q.To
		}
		if hit {
			out.Add(Effect{Name: name, Phase: phase, Time: phase * q.Duration})
		}
	}
}

func (s *fakeSnapshot) GenerateAnimCommands(cmds *animcmd.List, slot int, info *CmdGenInfo) {
	cmds.AddEvaluateClip(info.StateName, info.Phase, slot)
}

func (s *fakeSnapshot) RootIsAdditive() bool { return s.clip.additive }

func (s *fakeSnapshot) NumFrames() int {
	if s.clip.frames < 2 {
		return 31
	}
	return s.clip.frames
}

func (s *fakeSnapshot) Release() {
	if s.released != nil {
		*s.released++
	}
}

type fakeBuilder struct {
	clips    map[string]fakeClip
	built    int
	released int
}

func (b *fakeBuilder) Build(state *State, _ *InfoCollection) (Snapshot, error) {
	clip := b.clips[state.Anim]
	if clip.failToBuild {
		return nil, errors.New("clip missing")
	}
	b.built++
	return &fakeSnapshot{clip: clip, released: &b.released}, nil
}

type fakeOverlay map[[2]string]FadeParams

func (o fakeOverlay) Lookup(prev, next string) (FadeParams, bool) {
	f, ok := o[[2]string{prev, next}]
	return f, ok
}

type fakeProvider struct {
	states  map[string]*State
	overlay BlendOverlay
}

func (p *fakeProvider) State(name string) (*State, bool) {
	s, ok := p.states[name]
	return s, ok
}

func (p *fakeProvider) BlendOverlay() BlendOverlay { return p.overlay }

func (p *fakeProvider) add(s *State) *State {
	if s.Anim == "" {
		s.Anim = s.Name
	}
	p.states[s.Name] = s
	return s
}

// recordingHooks counts lifecycle callbacks per instance id.
type recordingHooks struct {
	NopHooks
	created  map[InstanceID]int
	released map[InstanceID]int
	blends   int
	post     []float32
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{created: map[InstanceID]int{}, released: map[InstanceID]int{}}
}

func (h *recordingHooks) OnInstanceCreate(_ *Layer, inst *Instance) { h.created[inst.ID()]++ }

func (h *recordingHooks) OnInstanceRelease(_ *Layer, inst *Instance) { h.released[inst.ID()]++ }

func (h *recordingHooks) OnInstanceBlend(*Layer, *Instance, *animcmd.List, int) { h.blends++ }

func (h *recordingHooks) OnLayerPostBlend(_ *Layer, _ *CmdGenContext, _ *animcmd.List, _ int, fade float32) {
	h.post = append(h.post, fade)
}

func fadeOf(d float32) *FadeParams {
	return &FadeParams{AnimFadeTime: d, MotionFadeTime: -1}
}

type layerFixture struct {
	layer    *Layer
	provider *fakeProvider
	builder  *fakeBuilder
	hooks    *recordingHooks
	uctx     *UpdateContext
}

func newFixture(t *testing.T, mutate func(*LayerConfig)) *layerFixture {
	t.Helper()
	f := &layerFixture{
		provider: &fakeProvider{states: map[string]*State{}},
		builder:  &fakeBuilder{clips: map[string]fakeClip{}},
		hooks:    newRecordingHooks(),
		uctx:     &UpdateContext{Clock: &FrameClock{}, Info: NewInfoCollection()},
	}
	cfg := LayerConfig{
		Name:      "base",
		Provider:  f.provider,
		Snapshots: f.builder,
		Hooks:     f.hooks,
		Logger:    slog.New(slog.DiscardHandler),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := NewLayer(cfg)
	require.NoError(t, err)
	f.layer = l
	return f
}

// loop adds a looping state with a one second duration and the given fade.
func (f *layerFixture) loop(name string, fadeTime float32) *State {
	return f.provider.add(&State{
		Name:     name,
		Duration: 1,
		Flags:    StateFlags{Looping: true},
		Fade:     FadeParams{AnimFadeTime: fadeTime, MotionFadeTime: -1},
	})
}

func (f *layerFixture) step(dt float32) *EffectList {
	effects := &EffectList{}
	f.uctx.Clock.Advance(dt)
	f.layer.BeginStep(f.uctx, dt, effects)
	return effects
}

func (f *layerFixture) fadeTo(t *testing.T, state string, fadeTime float32) *Instance {
	t.Helper()
	inst, err := f.layer.FadeToState(f.uctx, state, &FadeToStateParams{Fade: fadeOf(fadeTime)})
	require.NoError(t, err)
	return inst
}

// checkInvariants asserts the structural invariants that must hold after every step.
func (f *layerFixture) checkInvariants(t *testing.T) {
	t.Helper()
	l := f.layer
	owned := map[*Instance]int{}
	for _, tr := range l.trackList {
		require.LessOrEqual(t, tr.NumInstances(), tr.MaxInstances())
		require.Positive(t, tr.NumInstances(), "live track must hold an instance")
		for _, inst := range tr.instances {
			owned[inst]++
			require.True(t, l.instUsed.isSet(inst.slot), "instance %s not marked used", inst)
		}
	}
	for inst, n := range owned {
		require.Equal(t, 1, n, "instance %s owned by %d tracks", inst, n)
	}
	require.Equal(t, len(owned), l.NumUsedInstances(), "leaked instance slots")
	require.Equal(t, len(l.trackList), l.NumUsedTracks(), "leaked track slots")

	var sum float32
	l.WalkInstances(func(_ *Track, inst *Instance) bool {
		sum += inst.EffectiveFade()
		return true
	})
	if len(l.trackList) > 0 {
		require.InDelta(t, l.Fade(), sum, 1e-4, "effective fades must sum to the layer fade\n%s", l)
	}
}

func (f *layerFixture) states() []string {
	var out []string
	f.layer.WalkInstances(func(_ *Track, inst *Instance) bool {
		out = append(out, inst.StateName())
		return true
	})
	return out
}

func (f *layerFixture) String() string {
	return fmt.Sprint(f.layer)
}
