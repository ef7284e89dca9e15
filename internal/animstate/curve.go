// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import "fmt"

// Curve shapes how a fade progresses over its duration.
type Curve uint8

// Fade curves.
const (
	CurveLinear Curve = iota
	CurveEaseIn
	CurveEaseOut
	CurveEaseInOut
	CurveUniformS
)

var curveNames = map[Curve]string{
	CurveLinear:    "linear",
	CurveEaseIn:    "ease-in",
	CurveEaseOut:   "ease-out",
	CurveEaseInOut: "ease-in-out",
	CurveUniformS:  "uniform-s",
}

// String returns the curve name used in state-graph files.
func (c Curve) String() string {
	if s, ok := curveNames[c]; ok {
		return s
	}
	return fmt.Sprintf("curve(%d)", c)
}

// ParseCurve converts a curve name. The empty string selects CurveLinear.
func ParseCurve(s string) (Curve, error) {
	if s == "" {
		return CurveLinear, nil
	}
	for c, name := range curveNames {
		if name == s {
			return c, nil
		}
	}
	return CurveLinear, fmt.Errorf("unknown fade curve %q", s)
}

// CurveNames lists every accepted curve name.
func CurveNames() []string {
	return []string{"linear", "ease-in", "ease-out", "ease-in-out", "uniform-s"}
}

// Eval maps the elapsed fraction t to a fade weight. Both are in [0,1].
func (c Curve) Eval(t float32) float32 {
	t = clamp01(t)
	switch c {
	case CurveEaseIn:
		return t * t
	case CurveEaseOut:
		return t * (2 - t)
	case CurveEaseInOut:
		return t * t * (3 - 2*t)
	case CurveUniformS:
		return t * t * t * (t*(t*6-15) + 10)
	default:
		return t
	}
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
