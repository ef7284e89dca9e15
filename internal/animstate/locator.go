// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Locator is a rigid transform: a position and an orientation.
type Locator struct {
	Pos mgl32.Vec3
	Rot mgl32.Quat
}

// IdentityLocator returns the origin with no rotation.
func IdentityLocator() Locator {
	return Locator{Rot: mgl32.QuatIdent()}
}

// NewLocator builds a locator from a position and a yaw angle in radians.
func NewLocator(pos mgl32.Vec3, yaw float32) Locator {
	return Locator{Pos: pos, Rot: mgl32.QuatRotate(yaw, mgl32.Vec3{0, 1, 0})}
}

// TransformLocator maps local, expressed in l's space, into the space l is expressed in.
func (l Locator) TransformLocator(local Locator) Locator {
	return Locator{
		Pos: l.Pos.Add(l.Rot.Rotate(local.Pos)),
		Rot: l.Rot.Mul(local.Rot).Normalize(),
	}
}

// UntransformLocator expresses world in l's local space. It is the inverse of TransformLocator.
func (l Locator) UntransformLocator(world Locator) Locator {
	inv := l.Rot.Inverse()
	return Locator{
		Pos: inv.Rotate(world.Pos.Sub(l.Pos)),
		Rot: inv.Mul(world.Rot).Normalize(),
	}
}

// Inverse returns the locator that undoes l.
func (l Locator) Inverse() Locator {
	inv := l.Rot.Inverse()
	return Locator{Pos: inv.Rotate(l.Pos.Mul(-1)), Rot: inv}
}

// Lerp interpolates position linearly and rotation spherically.
func (l Locator) Lerp(to Locator, t float32) Locator {
	return Locator{
		Pos: l.Pos.Add(to.Pos.Sub(l.Pos).Mul(t)),
		Rot: mgl32.QuatSlerp(l.Rot, to.Rot, t),
	}
}

// IsFinite reports whether every component is a finite number.
func (l Locator) IsFinite() bool {
	for _, v := range [...]float32{l.Pos[0], l.Pos[1], l.Pos[2], l.Rot.W, l.Rot.V[0], l.Rot.V[1], l.Rot.V[2]} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// IsNormalized reports whether the rotation is a unit quaternion.
func (l Locator) IsNormalized() bool {
	return mgl32.FloatEqualThreshold(l.Rot.Len(), 1, 1e-3)
}

// ApproxEqual compares two locators within eps.
func (l Locator) ApproxEqual(o Locator, eps float32) bool {
	if !l.Pos.ApproxEqualThreshold(o.Pos, eps) {
		return false
	}
	return l.Rot.OrientationEqualThreshold(o.Rot, eps)
}
