// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package feather provides the process-wide feather-blend table: named sets of
// per-joint blend time scales that let a fade progress at different rates across
// the skeleton.
//
// The table is read-mostly. The only mutation is the "login" that happens the
// first time a feather blend is referenced.
package feather

import (
	"math"
	"slices"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/animstate/internal/animcmd"
)

// Handle identifies a registered feather blend.
type Handle int32

// InvalidHandle is returned when no feather blend is bound.
const InvalidHandle Handle = -1

// Valid reports whether h refers to a registered feather blend.
func (h Handle) Valid() bool {
	return h >= 0
}

// Error codes for rejected registrations.
const (
	CodeInvalidWeights = "FEATHER_INVALID_WEIGHTS"
	CodeDuplicate      = "FEATHER_DUPLICATE"
)

type entry struct {
	name   string
	scales []float32
}

// Table is a registry of feather blends. The zero value is ready to use.
type Table struct {
	mu      sync.RWMutex
	entries []entry
	byName  map[string]Handle
}

var defaultTable = &Table{}

// Default returns the process-wide table.
func Default() *Table {
	return defaultTable
}

// NewTable creates an empty table, mainly for tests.
func NewTable() *Table {
	return &Table{}
}

// Register logs in a feather blend under name. Registering an existing name
// with the same scales returns the existing handle; different scales fail with
// CodeDuplicate.
//
// Each scale is the fraction of the fade duration the joint needs to reach full
// weight: 1 follows the fade exactly, 0.5 arrives twice as fast, 0 is instant.
func (t *Table) Register(name string, scales []float32) (Handle, error) {
	if err := checkScales(name, scales); err != nil {
		return InvalidHandle, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.byName[name]; ok {
		if err := t.conflict(h, scales); err != nil {
			return InvalidHandle, err
		}
		return h, nil
	}
	if t.byName == nil {
		t.byName = make(map[string]Handle)
	}
	h := Handle(len(t.entries))
	t.entries = append(t.entries, entry{name: name, scales: append([]float32(nil), scales...)})
	t.byName[name] = h
	return h, nil
}

// Check reports whether Register(name, scales) would succeed, without
// registering anything.
func (t *Table) Check(name string, scales []float32) error {
	if err := checkScales(name, scales); err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h, ok := t.byName[name]; ok {
		return t.conflict(h, scales)
	}
	return nil
}

func checkScales(name string, scales []float32) error {
	if name == "" {
		return oops.Code(CodeInvalidWeights).Errorf("feather blend name is empty")
	}
	for i, s := range scales {
		if s < 0 || s > 1 || math.IsNaN(float64(s)) {
			return oops.Code(CodeInvalidWeights).
				With("feather_blend", name).
				With("joint", i).
				Errorf("joint scale %v out of range [0,1]", s)
		}
	}
	return nil
}

// conflict must be called with t.mu held.
func (t *Table) conflict(h Handle, scales []float32) error {
	if slices.Equal(t.entries[h].scales, scales) {
		return nil
	}
	return oops.Code(CodeDuplicate).
		With("feather_blend", t.entries[h].name).
		With("registered", t.entries[h].scales).
		With("scales", scales).
		Errorf("feather blend %q is already registered with different scales", t.entries[h].name)
}

// Login returns the handle for a previously registered name.
func (t *Table) Login(name string) (Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.byName[name]
	return h, ok
}

// Lookup returns the joint scales for h. The returned slice must not be modified.
func (t *Table) Lookup(h Handle) ([]float32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !h.Valid() || int(h) >= len(t.entries) {
		return nil, false
	}
	return t.entries[h].scales, true
}

// Name returns the registered name for h.
func (t *Table) Name(h Handle) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !h.Valid() || int(h) >= len(t.entries) {
		return ""
	}
	return t.entries[h].name
}

// CreateChannelFactors computes the per-joint factors for a blend at the given
// fade and returns them with the adjusted fade to put on the blend command.
// The adjusted fade is the mean joint factor, used by the backend for joints the
// table does not cover. An unknown handle yields no factors and fade*blendWeight.
func (t *Table) CreateChannelFactors(h Handle, fade, blendWeight float32) ([]animcmd.ChannelFactor, float32) {
	scales, ok := t.Lookup(h)
	if !ok || len(scales) == 0 {
		return nil, clamp01(fade) * blendWeight
	}

	factors := make([]animcmd.ChannelFactor, len(scales))
	var sum float32
	for j, s := range scales {
		var f float32
		if s <= 0 {
			f = 1
		} else {
			f = clamp01(fade / s)
		}
		f *= blendWeight
		factors[j] = animcmd.ChannelFactor{Joint: j, Factor: f}
		sum += f
	}
	return factors, sum / float32(len(scales))
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
