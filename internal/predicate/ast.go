// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package predicate implements the transition activation language used by
// state graph files. A predicate is a boolean expression over the attributes of
// the instance being queried, for example:
//
//	phase >= 0.5 && info.speed > 2 || state like "run_*"
//
// The AST is built with participle.
package predicate

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// predicateLexer keeps multi-character operators whole.
var predicateLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Number", Pattern: `-?\d+(\.\d+)?`},
	{Name: "Op", Pattern: `==|!=|>=|<=|&&|\|\||[<>!]`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Ident", Pattern: `[a-zA-Z_]\w*`},
	{Name: "Punct", Pattern: `[()]`},
	{Name: "whitespace", Pattern: `\s+`},
})

// Expr is a disjunction of conjunctions.
//
// Grammar: conjunction { "||" conjunction }
type Expr struct {
	Pos          lexer.Position `parser:""`
	Disjunctions []*Conjunction `parser:"@@ ( '||' @@ )*"`
}

// Conjunction holds conditions joined by "&&".
type Conjunction struct {
	Pos        lexer.Position `parser:""`
	Conditions []*Condition   `parser:"@@ ( '&&' @@ )*"`
}

// Condition is a negation, a parenthesized expression or a test.
type Condition struct {
	Pos           lexer.Position `parser:""`
	Negation      *Condition     `parser:"  '!' @@"`
	Parenthesized *Expr          `parser:"| '(' @@ ')'"`
	Test          *Test          `parser:"| @@"`
}

// Test compares two operands. Without an operator the left operand is tested
// for truthiness.
type Test struct {
	Pos   lexer.Position `parser:""`
	Left  *Operand       `parser:"@@"`
	Op    string         `parser:"( @( '==' | '!=' | '>=' | '<=' | '>' | '<' | 'like' )"`
	Right *Operand       `parser:"  @@ )?"`
}

// Operand is a literal or a dotted attribute reference.
type Operand struct {
	Pos     lexer.Position `parser:""`
	Literal *Literal       `parser:"  @@"`
	AttrRef *AttrRef       `parser:"| @@"`
}

// Literal is a string, number or boolean.
type Literal struct {
	Pos    lexer.Position `parser:""`
	Str    *string        `parser:"  @String"`
	Number *float64       `parser:"| @Number"`
	Bool   *string        `parser:"| @( 'true' | 'false' )"`
}

// AttrRef is a dotted attribute path such as info.speed.
type AttrRef struct {
	Pos  lexer.Position `parser:""`
	Path []string       `parser:"@Ident ( Dot @Ident )*"`
}

func newParser() (*participle.Parser[Expr], error) {
	return participle.Build[Expr](
		participle.Lexer(predicateLexer),
		participle.Unquote("String"),
	)
}
