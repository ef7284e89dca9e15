// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package predicate

import "strings"

// Attributes resolves dotted attribute paths to values. Supported value types
// are the Go numeric types, string and bool.
type Attributes interface {
	Lookup(path string) (any, bool)
}

// Attrs is a flat attribute map keyed by dotted path.
type Attrs map[string]any

// Lookup returns the value stored under path.
func (a Attrs) Lookup(path string) (any, bool) {
	v, ok := a[path]
	return v, ok
}

// Eval evaluates the predicate. Missing attributes and type mismatches make
// the enclosing test false.
func (p *Predicate) Eval(attrs Attributes) bool {
	return p.evalExpr(attrs, p.expr)
}

func (p *Predicate) evalExpr(attrs Attributes, e *Expr) bool {
	for _, conj := range e.Disjunctions {
		if p.evalConjunction(attrs, conj) {
			return true
		}
	}
	return false
}

func (p *Predicate) evalConjunction(attrs Attributes, conj *Conjunction) bool {
	for _, c := range conj.Conditions {
		if !p.evalCondition(attrs, c) {
			return false
		}
	}
	return true
}

func (p *Predicate) evalCondition(attrs Attributes, c *Condition) bool {
	switch {
	case c.Negation != nil:
		return !p.evalCondition(attrs, c.Negation)
	case c.Parenthesized != nil:
		return p.evalExpr(attrs, c.Parenthesized)
	case c.Test != nil:
		return p.evalTest(attrs, c.Test)
	default:
		return false
	}
}

func (p *Predicate) evalTest(attrs Attributes, t *Test) bool {
	left, ok := resolveOperand(attrs, t.Left)
	if !ok {
		return false
	}
	switch t.Op {
	case "":
		return truthy(left)
	case "like":
		s, isStr := left.(string)
		g := p.globs[t]
		return isStr && g != nil && g.Match(s)
	}
	right, ok := resolveOperand(attrs, t.Right)
	if !ok {
		return false
	}
	return compare(left, right, t.Op)
}

func resolveOperand(attrs Attributes, o *Operand) (any, bool) {
	switch {
	case o == nil:
		return nil, false
	case o.Literal != nil:
		return resolveLiteral(o.Literal)
	case o.AttrRef != nil:
		if attrs == nil {
			return nil, false
		}
		return attrs.Lookup(strings.Join(o.AttrRef.Path, "."))
	default:
		return nil, false
	}
}

func resolveLiteral(l *Literal) (any, bool) {
	switch {
	case l.Str != nil:
		return *l.Str, true
	case l.Number != nil:
		return *l.Number, true
	case l.Bool != nil:
		return *l.Bool == "true", true
	default:
		return nil, false
	}
}

func truthy(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if n, ok := toFloat64(v); ok {
		return n != 0
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return false
}

func compare(left, right any, op string) bool {
	if l, ok := toFloat64(left); ok {
		if r, ok := toFloat64(right); ok {
			return compareNumbers(l, r, op)
		}
		return false
	}
	if l, ok := left.(string); ok {
		if r, ok := right.(string); ok {
			return compareStrings(l, r, op)
		}
		return false
	}
	if l, ok := left.(bool); ok {
		if r, ok := right.(bool); ok {
			switch op {
			case "==":
				return l == r
			case "!=":
				return l != r
			}
		}
	}
	return false
}

func compareNumbers(l, r float64, op string) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "<":
		return l < r
	case "<=":
		return l <= r
	default:
		return false
	}
}

func compareStrings(l, r, op string) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "<":
		return l < r
	case "<=":
		return l <= r
	default:
		return false
	}
}

// toFloat64 converts the numeric types that appear in attribute bags.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
