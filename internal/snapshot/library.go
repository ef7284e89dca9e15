// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package snapshot evaluates animation clips and blend trees for the
// animation state runtime. A Builder binds a tree to a state; the resulting
// Tree implements animstate.Snapshot.
package snapshot

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/animstate"
)

// Error codes.
const (
	CodeInvalidClip  = "SNAPSHOT_INVALID_CLIP"
	CodeInvalidBlend = "SNAPSHOT_INVALID_BLEND"
	CodeUnknownAnim  = "SNAPSHOT_UNKNOWN_ANIM"
	CodeDuplicate    = "SNAPSHOT_DUPLICATE"
)

// maxTreeDepth bounds blend nesting.
const maxTreeDepth = 16

// Key is a channel keyframe.
type Key struct {
	Frame float32
	Loc   animstate.Locator
}

// Marker is an authored effect at a phase. MirrorName replaces Name when the
// instance plays flipped.
type Marker struct {
	Name       string
	MirrorName string
	Phase      float32
	Params     map[string]string
}

// Clip is sampled channel data. Frames counts authored frames, phase 0 is
// frame 0 and phase 1 is frame Frames-1.
type Clip struct {
	Name       string
	Frames     int
	Additive   bool
	Channels   map[string][]Key
	Effects    []Marker
	CameraCuts []float32
}

// Blend mixes two anims by a parameter read from the info collection. The
// weight is (info[Param]-Min)/(Max-Min) clamped to [0, 1]; 0 plays Left.
type Blend struct {
	Name  string
	Left  string
	Right string
	Param string
	Min   float32
	Max   float32
	Mode  animcmd.BlendMode
}

// Library holds the clips and blends trees are built from. Add methods must
// not be called once the library is shared between builders.
type Library struct {
	mu     sync.RWMutex
	clips  map[string]*Clip
	blends map[string]*Blend
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{clips: map[string]*Clip{}, blends: map[string]*Blend{}}
}

// AddClip validates and stores c.
func (lib *Library) AddClip(c *Clip) error {
	if err := validateClip(c); err != nil {
		return err
	}
	lib.mu.Lock()
	defer lib.mu.Unlock()
	if lib.has(c.Name) {
		return oops.Code(CodeDuplicate).With("anim", c.Name).Errorf("anim %q already defined", c.Name)
	}
	lib.clips[c.Name] = c
	return nil
}

// AddBlend stores b. Children are resolved when trees are built, so blends may
// be added before the anims they reference.
func (lib *Library) AddBlend(b *Blend) error {
	if b.Name == "" || b.Left == "" || b.Right == "" {
		return oops.Code(CodeInvalidBlend).With("anim", b.Name).Errorf("blend needs a name and two children")
	}
	if b.Max <= b.Min {
		return oops.Code(CodeInvalidBlend).With("anim", b.Name).
			Errorf("blend %q range [%v, %v] is empty", b.Name, b.Min, b.Max)
	}
	lib.mu.Lock()
	defer lib.mu.Unlock()
	if lib.has(b.Name) {
		return oops.Code(CodeDuplicate).With("anim", b.Name).Errorf("anim %q already defined", b.Name)
	}
	lib.blends[b.Name] = b
	return nil
}

// Has reports whether name is a clip or blend.
func (lib *Library) Has(name string) bool {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return lib.has(name)
}

func (lib *Library) has(name string) bool {
	_, c := lib.clips[name]
	_, b := lib.blends[name]
	return c || b
}

// Names returns every anim name, sorted.
func (lib *Library) Names() []string {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	names := slices.Collect(maps.Keys(lib.clips))
	names = slices.AppendSeq(names, maps.Keys(lib.blends))
	slices.Sort(names)
	return names
}

// Check resolves every blend and reports the first missing child or cycle.
func (lib *Library) Check() error {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	for _, name := range slices.Sorted(maps.Keys(lib.blends)) {
		if _, err := lib.resolve(name, 0); err != nil {
			return err
		}
	}
	return nil
}

// resolve builds the node tree for name. Callers hold the read lock.
func (lib *Library) resolve(name string, depth int) (*node, error) {
	if depth > maxTreeDepth {
		return nil, oops.Code(CodeInvalidBlend).With("anim", name).
			Errorf("blend tree deeper than %d, possible cycle at %q", maxTreeDepth, name)
	}
	if c, ok := lib.clips[name]; ok {
		return &node{clip: c}, nil
	}
	b, ok := lib.blends[name]
	if !ok {
		return nil, oops.Code(CodeUnknownAnim).With("anim", name).Errorf("unknown anim %q", name)
	}
	left, err := lib.resolve(b.Left, depth+1)
	if err != nil {
		return nil, err
	}
	right, err := lib.resolve(b.Right, depth+1)
	if err != nil {
		return nil, err
	}
	return &node{blend: b, left: left, right: right}, nil
}

func validateClip(c *Clip) error {
	if c == nil || c.Name == "" {
		return oops.Code(CodeInvalidClip).Errorf("clip needs a name")
	}
	if c.Frames < 2 {
		return oops.Code(CodeInvalidClip).With("anim", c.Name).
			Errorf("clip %q has %d frames, need at least 2", c.Name, c.Frames)
	}
	for ch, keys := range c.Channels {
		if len(keys) == 0 {
			return oops.Code(CodeInvalidClip).With("anim", c.Name).With("channel", ch).
				Errorf("channel %q has no keys", ch)
		}
		for k, key := range keys {
			if !key.Loc.IsFinite() {
				return oops.Code(CodeInvalidClip).With("anim", c.Name).With("channel", ch).
					Errorf("key %d is not finite", k)
			}
			if k > 0 && key.Frame <= keys[k-1].Frame {
				return oops.Code(CodeInvalidClip).With("anim", c.Name).With("channel", ch).
					Errorf("keys must be in increasing frame order")
			}
		}
	}
	for _, m := range c.Effects {
		if err := checkPhase(m.Phase); err != nil {
			return oops.Code(CodeInvalidClip).With("anim", c.Name).With("effect", m.Name).Wrap(err)
		}
	}
	for _, p := range c.CameraCuts {
		if err := checkPhase(p); err != nil {
			return oops.Code(CodeInvalidClip).With("anim", c.Name).Wrap(err)
		}
	}
	return nil
}

func checkPhase(p float32) error {
	if !(p >= 0 && p <= 1) {
		return fmt.Errorf("phase %v outside [0, 1]", p)
	}
	return nil
}
