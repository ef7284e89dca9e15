// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package statedb

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/animstate"
	"github.com/holomush/animstate/internal/feather"
	"github.com/holomush/animstate/internal/predicate"
	"github.com/holomush/animstate/internal/script"
	"github.com/holomush/animstate/internal/snapshot"
)

// SupportedFormats is the range of format_version values this loader reads.
const SupportedFormats = "^1.0"

// Options configures graph compilation.
type Options struct {
	// Scripts runs phase scripts. Nil creates an engine owned by the graph.
	Scripts *script.Engine
	// Feather receives the graph's feather blends. Nil uses feather.Default().
	Feather *feather.Table
	Logger  *slog.Logger
	// SkipSchema skips JSON schema validation in Load.
	SkipSchema bool
}

// Graph is a compiled state graph. It implements animstate.StateProvider and is
// safe for concurrent reads.
type Graph struct {
	name        string
	version     *semver.Version
	states      map[string]*animstate.State
	order       []string
	library     *snapshot.Library
	overlay     *Overlay
	scripts     *script.Engine
	ownsScripts bool
}

// LoadFile reads and compiles the graph at path.
func LoadFile(path string, opts Options) (*Graph, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.Code(CodeReadFailed).With("path", path).Wrapf(err, "read state graph")
	}
	g, err := Load(data, opts)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return g, nil
}

// Load validates data against the schema, decodes it and compiles it.
func Load(data []byte, opts Options) (*Graph, error) {
	if !opts.SkipSchema {
		if err := ValidateSchema(data); err != nil {
			return nil, err
		}
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	return Compile(f, opts)
}

// Compile checks f and builds the runtime graph. Every problem found is reported
// in one CodeInvalidGraph error.
func Compile(f *File, opts Options) (*Graph, error) {
	version, err := checkFormat(f.FormatVersion)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	table := opts.Feather
	if table == nil {
		table = feather.Default()
	}
	g := &Graph{
		name:    f.Name,
		version: version,
		states:  make(map[string]*animstate.State, len(f.States)),
		library: snapshot.NewLibrary(),
		overlay: &Overlay{},
		scripts: opts.Scripts,
	}
	if g.scripts == nil {
		g.scripts = script.NewEngine(script.Options{Logger: logger})
		g.ownsScripts = true
	}

	var probs problems
	if f.Name == "" {
		probs.addf("name is required")
	}
	staged := g.compileFeather(f, table, &probs)
	g.compileLibrary(f, &probs)
	for k := range f.States {
		g.compileState(&f.States[k], table, staged, &probs)
	}
	g.checkTransitions(&probs)
	g.compileOverlays(f, &probs)
	if len(g.states) == 0 {
		probs.addf("graph has no states")
	}

	if err := probs.err(f.Name); err != nil {
		g.Close()
		return nil, err
	}
	for _, fb := range f.FeatherBlends {
		if _, err := table.Register(fb.Name, fb.Scales); err != nil {
			g.Close()
			return nil, oops.Code(CodeInvalidGraph).With("graph", f.Name).Wrapf(err, "register feather blend %q", fb.Name)
		}
	}
	logger.Info("state graph loaded", "graph", g.name, "version", g.version.String(),
		"states", len(g.states), "anims", len(g.library.Names()))
	return g, nil
}

func checkFormat(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, oops.Code(CodeUnsupportedFormat).With("format_version", raw).Wrapf(err, "parse format_version")
	}
	c, err := semver.NewConstraint(SupportedFormats)
	if err != nil {
		return nil, oops.Code(CodeUnsupportedFormat).Wrapf(err, "parse supported formats")
	}
	if !c.Check(v) {
		return nil, oops.Code(CodeUnsupportedFormat).
			With("format_version", raw).
			With("supported", SupportedFormats).
			Errorf("format_version %s is not supported, want %s", v, SupportedFormats)
	}
	return v, nil
}

// compileFeather checks the graph's feather blends against table. Nothing is
// registered until the whole graph compiles.
func (g *Graph) compileFeather(f *File, table *feather.Table, probs *problems) map[string]bool {
	staged := make(map[string]bool, len(f.FeatherBlends))
	for _, fb := range f.FeatherBlends {
		if staged[fb.Name] {
			probs.addf("feather blend %q defined twice", fb.Name)
			continue
		}
		staged[fb.Name] = true
		if err := table.Check(fb.Name, fb.Scales); err != nil {
			probs.addf("feather blend %q: %v", fb.Name, err)
		}
	}
	return staged
}

func (g *Graph) compileLibrary(f *File, probs *problems) {
	for _, cd := range f.Clips {
		if err := g.library.AddClip(clipFromDef(cd)); err != nil {
			probs.addf("clip %q: %v", cd.Name, err)
		}
	}
	for _, bd := range f.Blends {
		mode, err := animcmd.ParseBlendMode(bd.Mode)
		if err != nil {
			probs.addf("blend %q: %v", bd.Name, err)
			continue
		}
		b := &snapshot.Blend{
			Name: bd.Name, Left: bd.Left, Right: bd.Right,
			Param: bd.Param, Min: bd.Min, Max: bd.Max, Mode: mode,
		}
		if err := g.library.AddBlend(b); err != nil {
			probs.addf("blend %q: %v", bd.Name, err)
		}
	}
	if err := g.library.Check(); err != nil {
		probs.addf("%v", err)
	}
}

func clipFromDef(cd ClipDef) *snapshot.Clip {
	c := &snapshot.Clip{
		Name:       cd.Name,
		Frames:     cd.Frames,
		Additive:   cd.Additive,
		Channels:   make(map[string][]snapshot.Key, len(cd.Channels)),
		CameraCuts: slices.Clone(cd.CameraCuts),
	}
	for ch, keys := range cd.Channels {
		out := make([]snapshot.Key, len(keys))
		for k, key := range keys {
			out[k] = snapshot.Key{
				Frame: key.Frame,
				Loc:   animstate.NewLocator(mgl32.Vec3{key.Pos[0], key.Pos[1], key.Pos[2]}, key.Yaw),
			}
		}
		c.Channels[ch] = out
	}
	for _, e := range cd.Effects {
		c.Effects = append(c.Effects, snapshot.Marker{
			Name: e.Name, MirrorName: e.Mirror, Phase: e.Phase, Params: e.Params,
		})
	}
	return c
}

func (g *Graph) compileState(sd *StateDef, table *feather.Table, staged map[string]bool, probs *problems) {
	if _, dup := g.states[sd.Name]; dup {
		probs.addf("state %q defined twice", sd.Name)
		return
	}
	st := &animstate.State{
		Name:     sd.Name,
		Anim:     sd.Anim,
		Duration: sd.Duration,
		Flags: animstate.StateFlags{
			Looping:                  sd.Looping,
			ExtrapolateAlign:         sd.ExtrapolateAlign,
			BlendChannelDeltasInTree: sd.BlendChannelDeltasInTree,
			FreezeDuringFadeIn:       sd.FreezeDuringFadeIn,
			FreezeFadingOutStates:    sd.FreezeFadingOutStates,
			DisableAutoTransitions:   sd.DisableAutoTransitions,
			Additive:                 sd.Additive,
		},
		FeatherBlend: sd.FeatherBlend,
	}
	if st.Anim == "" {
		st.Anim = sd.Name
	}
	if !g.library.Has(st.Anim) {
		probs.addf("state %q: unknown anim %q", sd.Name, st.Anim)
	}
	if sd.FeatherBlend != "" {
		if _, ok := table.Login(sd.FeatherBlend); !ok && !staged[sd.FeatherBlend] {
			probs.addf("state %q: unknown feather blend %q", sd.Name, sd.FeatherBlend)
		}
	}
	if sd.Fade != nil {
		fade, err := fadeFromDef(*sd.Fade)
		if err != nil {
			probs.addf("state %q: %v", sd.Name, err)
		}
		st.Fade = fade
	} else {
		st.Fade = animstate.FadeParams{MotionFadeTime: -1}
	}
	g.compileStartPhase(sd, st, probs)
	if sd.PhaseScript != "" {
		fn, err := g.scripts.Compile(sd.Name+"/phase_script", sd.PhaseScript)
		if err != nil {
			probs.addf("state %q phase_script: %v", sd.Name, err)
		} else {
			st.PhaseFunc = fn
		}
	}
	for _, td := range sd.Transitions {
		if t := g.compileTransition(sd.Name, td, probs); t != nil {
			st.Transitions = append(st.Transitions, t)
		}
	}
	g.states[sd.Name] = st
	g.order = append(g.order, sd.Name)
}

func (g *Graph) compileStartPhase(sd *StateDef, st *animstate.State, probs *problems) {
	spd := sd.StartPhase
	if spd == nil {
		return
	}
	st.StartPhase.Value = spd.Value
	switch spd.Mode {
	case "", "fixed":
		st.StartPhase.Mode = animstate.StartPhaseFixed
	case "random":
		st.StartPhase.Mode = animstate.StartPhaseRandom
	case "script":
		st.StartPhase.Mode = animstate.StartPhaseFunc
		fn, err := g.scripts.Compile(sd.Name+"/start_phase", spd.Script)
		if err != nil {
			probs.addf("state %q start_phase: %v", sd.Name, err)
			return
		}
		st.StartPhase.Func = fn
	default:
		probs.addf("state %q: unknown start_phase mode %q", sd.Name, spd.Mode)
	}
}

func (g *Graph) compileTransition(from string, td TransitionDef, probs *problems) *animstate.Transition {
	t := &animstate.Transition{Name: td.Name, To: td.To, Auto: td.Auto}
	ok := true
	if td.When != "" {
		c, err := predicate.NewCondition(td.When)
		if err != nil {
			probs.addf("state %q transition %q: %v", from, td.Name, err)
			ok = false
		} else {
			t.Condition = c
		}
	}
	if td.Fade != nil {
		fade, err := fadeFromDef(*td.Fade)
		if err != nil {
			probs.addf("state %q transition %q: %v", from, td.Name, err)
			ok = false
		}
		t.Fade = &fade
	}
	if td.NewInstance != "" {
		b, known := animstate.ParseNewInstanceBehavior(td.NewInstance)
		if !known {
			probs.addf("state %q transition %q: unknown new_instance %q", from, td.Name, td.NewInstance)
			ok = false
		}
		t.NewInstanceBehavior = b
	}
	if !ok {
		return nil
	}
	return t
}

// checkTransitions runs once every state is known.
func (g *Graph) checkTransitions(probs *problems) {
	for _, name := range g.order {
		for _, t := range g.states[name].Transitions {
			if _, ok := g.states[t.To]; !ok {
				probs.addf("state %q transition %q: unknown destination %q", name, t.Name, t.To)
			}
		}
	}
}

func (g *Graph) compileOverlays(f *File, probs *problems) {
	for k, od := range f.Overlays {
		from, err := glob.Compile(od.From)
		if err != nil {
			probs.addf("overlay %d: from %q: %v", k, od.From, err)
			continue
		}
		to, err := glob.Compile(od.To)
		if err != nil {
			probs.addf("overlay %d: to %q: %v", k, od.To, err)
			continue
		}
		fade, err := fadeFromDef(od.Fade)
		if err != nil {
			probs.addf("overlay %d: %v", k, err)
			continue
		}
		g.overlay.rules = append(g.overlay.rules, overlayRule{from: from, to: to, fade: fade})
	}
}

func fadeFromDef(fd FadeDef) (animstate.FadeParams, error) {
	curve, err := animstate.ParseCurve(fd.Curve)
	if err != nil {
		return animstate.FadeParams{}, err
	}
	motion := float32(-1)
	if fd.Motion != nil {
		motion = *fd.Motion
	}
	return animstate.FadeParams{AnimFadeTime: fd.Anim, MotionFadeTime: motion, Curve: curve}, nil
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Version returns the graph's format version.
func (g *Graph) Version() *semver.Version { return g.version }

// State returns the named state.
func (g *Graph) State(name string) (*animstate.State, bool) {
	s, ok := g.states[name]
	return s, ok
}

// StateNames returns the state names in file order.
func (g *Graph) StateNames() []string { return slices.Clone(g.order) }

// BlendOverlay returns the graph's fade overrides.
func (g *Graph) BlendOverlay() animstate.BlendOverlay { return g.overlay }

// Overlay returns the graph's fade overrides with their concrete type.
func (g *Graph) Overlay() *Overlay { return g.overlay }

// Library returns the clips and blends of the graph.
func (g *Graph) Library() *snapshot.Library { return g.library }

// Close releases the script engine when the graph owns it.
func (g *Graph) Close() {
	if g.ownsScripts && g.scripts != nil {
		g.scripts.Close()
	}
}

var _ animstate.StateProvider = (*Graph)(nil)

// Overlay holds fade overrides keyed by glob patterns over (previous anim,
// new anim). The first matching rule wins.
type Overlay struct {
	rules []overlayRule
}

type overlayRule struct {
	from, to glob.Glob
	fade     animstate.FadeParams
}

// Lookup returns the fade of the first rule matching both anims.
func (o *Overlay) Lookup(prevAnim, newAnim string) (animstate.FadeParams, bool) {
	if o == nil {
		return animstate.FadeParams{}, false
	}
	for _, r := range o.rules {
		if r.from.Match(prevAnim) && r.to.Match(newAnim) {
			return r.fade, true
		}
	}
	return animstate.FadeParams{}, false
}

// Len returns the number of rules.
func (o *Overlay) Len() int { return len(o.rules) }
