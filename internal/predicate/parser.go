// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package predicate

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Error codes returned by Compile.
const (
	CodeSyntax  = "PREDICATE_SYNTAX"
	CodeInvalid = "PREDICATE_INVALID"
)

// MaxNestingDepth is the maximum nesting of negations and parentheses.
const MaxNestingDepth = 32

// Glob pattern limits for like.
const (
	maxGlobPatternLen = 100
	maxGlobWildcards  = 5
)

var parser *participle.Parser[Expr]

func init() {
	var err error
	parser, err = newParser()
	if err != nil {
		panic(fmt.Sprintf("failed to build predicate parser: %v", err))
	}
}

// Predicate is a compiled expression ready for evaluation. It is immutable and
// safe for concurrent use.
type Predicate struct {
	src   string
	expr  *Expr
	globs map[*Test]glob.Glob
}

// Parse parses src into an AST without validating it.
func Parse(src string) (*Expr, error) {
	expr, err := parser.ParseString("", src)
	if err != nil {
		return nil, oops.Code(CodeSyntax).With("predicate", src).Wrapf(err, "parsing predicate")
	}
	return expr, nil
}

// Compile parses and validates src. Patterns used with like are compiled once here.
func Compile(src string) (*Predicate, error) {
	if strings.TrimSpace(src) == "" {
		return nil, oops.Code(CodeSyntax).Errorf("predicate is empty")
	}
	expr, err := Parse(src)
	if err != nil {
		return nil, err
	}
	p := &Predicate{src: src, expr: expr, globs: map[*Test]glob.Glob{}}
	if err := p.validateExpr(expr, 0); err != nil {
		return nil, oops.Code(CodeInvalid).With("predicate", src).Wrap(err)
	}
	return p, nil
}

// MustCompile is Compile for predicates known to be valid.
func MustCompile(src string) *Predicate {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source text.
func (p *Predicate) String() string { return p.src }

func (p *Predicate) validateExpr(e *Expr, depth int) error {
	if depth > MaxNestingDepth {
		return fmt.Errorf("nesting depth exceeds maximum of %d", MaxNestingDepth)
	}
	for _, conj := range e.Disjunctions {
		for _, c := range conj.Conditions {
			if err := p.validateCondition(c, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Predicate) validateCondition(c *Condition, depth int) error {
	switch {
	case c.Negation != nil:
		if depth+1 > MaxNestingDepth {
			return fmt.Errorf("nesting depth exceeds maximum of %d", MaxNestingDepth)
		}
		return p.validateCondition(c.Negation, depth+1)
	case c.Parenthesized != nil:
		return p.validateExpr(c.Parenthesized, depth+1)
	case c.Test != nil:
		return p.validateTest(c.Test)
	}
	return nil
}

func (p *Predicate) validateTest(t *Test) error {
	if t.Op != "like" {
		return nil
	}
	if t.Right == nil || t.Right.Literal == nil || t.Right.Literal.Str == nil {
		return fmt.Errorf("%s: like needs a string pattern", t.Pos)
	}
	pattern := *t.Right.Literal.Str
	if err := validateGlobPattern(pattern); err != nil {
		return fmt.Errorf("%s: %w", t.Pos, err)
	}
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return fmt.Errorf("%s: invalid pattern %q: %w", t.Pos, pattern, err)
	}
	p.globs[t] = g
	return nil
}

// validateGlobPattern rejects patterns with classes, alternation or too many wildcards.
func validateGlobPattern(pattern string) error {
	if len(pattern) > maxGlobPatternLen {
		return fmt.Errorf("pattern longer than %d characters", maxGlobPatternLen)
	}
	if strings.ContainsAny(pattern, "[{") || strings.Contains(pattern, "**") {
		return fmt.Errorf("pattern %q uses unsupported syntax", pattern)
	}
	wildcards := strings.Count(pattern, "*") + strings.Count(pattern, "?")
	if wildcards > maxGlobWildcards {
		return fmt.Errorf("pattern %q has more than %d wildcards", pattern, maxGlobWildcards)
	}
	return nil
}
