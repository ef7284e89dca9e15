// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"math/rand/v2"
	"sort"

	"github.com/holomush/animstate/internal/feather"
)

// DefaultFrameRate is the authoring frame rate used when Options leaves it unset.
const DefaultFrameRate = 30

// Options are the animation options shared by every layer of a character.
type Options struct {
	FrameRate                   float32
	BrokenInstanceFeatherBlends bool
	GenerateNetCommands         bool
	TransitionsFromAllTracks    bool
}

func (o Options) frameRate() float32 {
	if o.FrameRate <= 0 {
		return DefaultFrameRate
	}
	return o.FrameRate
}

// FrameClock counts frames and accumulated time for one character.
type FrameClock struct {
	Frame int64
	Time  float64
}

// Advance moves the clock forward one frame of dt seconds.
func (c *FrameClock) Advance(dt float32) {
	c.Frame++
	c.Time += float64(dt)
}

// UpdateContext carries what used to be process-wide state into an update.
type UpdateContext struct {
	Feather *feather.Table
	Options Options
	Clock   *FrameClock
	Rand    *rand.Rand
	Info    *InfoCollection
}

func (u *UpdateContext) feather() *feather.Table {
	if u == nil || u.Feather == nil {
		return feather.Default()
	}
	return u.Feather
}

func (u *UpdateContext) options() Options {
	if u == nil {
		return Options{}
	}
	return u.Options
}

func (u *UpdateContext) info() *InfoCollection {
	if u == nil {
		return nil
	}
	return u.Info
}

func (u *UpdateContext) frame() int64 {
	if u == nil || u.Clock == nil {
		return 0
	}
	return u.Clock.Frame
}

func (u *UpdateContext) random() float32 {
	if u == nil || u.Rand == nil {
		return rand.Float32()
	}
	return u.Rand.Float32()
}

// CmdGenContext is the command generation state for one pass over a character.
// FirstUnusedInstance is a cursor into the backend's scratch pose slots; slot 0
// holds the combined result of lower layers when BaseValid is set.
type CmdGenContext struct {
	FirstUnusedInstance int
	BaseValid           bool
	Feather             *feather.Table
	Options             Options
	Info                *InfoCollection
}

func (c *CmdGenContext) featherTable() *feather.Table {
	if c.Feather == nil {
		return feather.Default()
	}
	return c.Feather
}

// InfoCollection is the character information visible to phase functions,
// transition conditions and snapshot trees. The runtime only reads it.
type InfoCollection struct {
	values map[string]float64
}

// NewInfoCollection creates an empty collection.
func NewInfoCollection() *InfoCollection {
	return &InfoCollection{values: make(map[string]float64)}
}

// Set stores a value.
func (c *InfoCollection) Set(key string, v float64) {
	if c.values == nil {
		c.values = make(map[string]float64)
	}
	c.values[key] = v
}

// Get returns a value.
func (c *InfoCollection) Get(key string) (float64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the keys in sorted order.
func (c *InfoCollection) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy.
func (c *InfoCollection) Clone() *InfoCollection {
	out := NewInfoCollection()
	if c == nil {
		return out
	}
	for k, v := range c.values {
		out.values[k] = v
	}
	return out
}
