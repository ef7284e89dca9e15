// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator_TransformRoundTrip(t *testing.T) {
	parent := NewLocator(mgl32.Vec3{1, 2, 3}, math.Pi/3)
	local := NewLocator(mgl32.Vec3{-4, 0, 2}, -math.Pi/5)

	world := parent.TransformLocator(local)
	back := parent.UntransformLocator(world)

	assert.True(t, back.ApproxEqual(local, 1e-4), "got %+v want %+v", back, local)
	assert.True(t, world.IsNormalized())
}

func TestLocator_Inverse(t *testing.T) {
	l := NewLocator(mgl32.Vec3{5, -1, 2}, 1.2)

	id := l.TransformLocator(l.Inverse())

	assert.True(t, id.ApproxEqual(IdentityLocator(), 1e-4), "got %+v", id)
}

func TestLocator_IdentityIsNeutral(t *testing.T) {
	l := NewLocator(mgl32.Vec3{3, 0, 0}, 0.4)

	assert.True(t, IdentityLocator().TransformLocator(l).ApproxEqual(l, 1e-5))
	assert.True(t, l.TransformLocator(IdentityLocator()).ApproxEqual(l, 1e-5))
}

func TestLocator_Lerp(t *testing.T) {
	a := IdentityLocator()
	b := NewLocator(mgl32.Vec3{2, 0, 0}, 0)

	mid := a.Lerp(b, 0.5)

	assert.InDelta(t, 1.0, mid.Pos.X(), 1e-6)
	assert.True(t, mid.IsNormalized())
}

func TestLocator_IsFinite(t *testing.T) {
	l := IdentityLocator()
	require.True(t, l.IsFinite())

	l.Pos[1] = float32(math.NaN())
	assert.False(t, l.IsFinite())
}

func TestCurve_Eval(t *testing.T) {
	tests := []struct {
		curve Curve
		at    float32
		want  float32
	}{
		{CurveLinear, 0.25, 0.25},
		{CurveEaseIn, 0.5, 0.25},
		{CurveEaseOut, 0.5, 0.75},
		{CurveEaseInOut, 0.5, 0.5},
		{CurveUniformS, 0.5, 0.5},
		{CurveLinear, -1, 0},
		{CurveEaseIn, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.curve.String(), func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.curve.Eval(tt.at), 1e-6)
		})
	}
}

func TestCurve_EndpointsAndMonotonic(t *testing.T) {
	for _, name := range CurveNames() {
		c, err := ParseCurve(name)
		require.NoError(t, err)
		assert.InDelta(t, 0, c.Eval(0), 1e-6, name)
		assert.InDelta(t, 1, c.Eval(1), 1e-6, name)
		prev := float32(0)
		for k := 1; k <= 20; k++ {
			v := c.Eval(float32(k) / 20)
			assert.GreaterOrEqual(t, v, prev, "%s not monotonic at %d", name, k)
			prev = v
		}
	}
}

func TestParseCurve(t *testing.T) {
	c, err := ParseCurve("")
	require.NoError(t, err)
	assert.Equal(t, CurveLinear, c)

	_, err = ParseCurve("bouncy")
	assert.Error(t, err)
}

func TestSlotMask(t *testing.T) {
	m := newSlotMask(70)
	for k := 0; k < 70; k++ {
		i, ok := m.firstFree()
		require.True(t, ok)
		require.Equal(t, k, i)
		m.set(i)
	}
	_, ok := m.firstFree()
	assert.False(t, ok)
	assert.Equal(t, 70, m.count())

	m.clear(65)
	i, ok := m.firstFree()
	require.True(t, ok)
	assert.Equal(t, 65, i)
	assert.False(t, m.isSet(65))
	assert.False(t, m.isSet(-1))
	assert.False(t, m.isSet(70))

	m.reset()
	assert.Zero(t, m.count())
}

func TestStatusFlags_String(t *testing.T) {
	assert.Equal(t, "invalid", StatusInvalid.String())
	assert.Equal(t, "taken", StatusTaken.String())
	assert.Equal(t, "pending|dont_remove", (StatusPending | StatusDontRemove).String())
	assert.True(t, (StatusPending | StatusDontRemove).Has(StatusDontRemove))
	assert.False(t, StatusTaken.Has(StatusInvalid))
}
