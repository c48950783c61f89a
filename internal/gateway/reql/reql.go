// Package reql builds the filter and booster expressions sent with
// recommendation queries. Callers compose a small expression tree and the
// gateway renders it to ReQL text when it builds the request.
package reql

import (
	"strconv"
	"strings"
)

// Expr is a node of an expression tree.
type Expr interface {
	Render() string
	prec() int
}

// Binding strength, loosest first. A child binding looser than its
// parent requires is parenthesized.
const (
	precIf = iota
	precOr
	precAnd
	precCmp
	precMul
	precAtom
)

func wrap(e Expr, min int) string {
	if e.prec() < min {
		return "(" + e.Render() + ")"
	}
	return e.Render()
}

type prop string

// Prop references an item property, rendered as 'name'.
func Prop(name string) Expr { return prop(name) }

func (p prop) Render() string {
	return "'" + strings.ReplaceAll(string(p), "'", `\'`) + "'"
}
func (prop) prec() int { return precAtom }

type str string

// Str is a string literal, rendered in double quotes.
func Str(s string) Expr { return str(s) }

func (s str) Render() string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(string(s)) + `"`
}
func (str) prec() int { return precAtom }

type num float64

// Num is a numeric literal.
func Num(v float64) Expr { return num(v) }

func (n num) Render() string { return strconv.FormatFloat(float64(n), 'f', -1, 64) }
func (num) prec() int        { return precAtom }

type in struct {
	value, set Expr
}

// In tests set membership: value in set.
func In(value, set Expr) Expr { return in{value: value, set: set} }

func (e in) Render() string {
	return wrap(e.value, precMul) + " in " + wrap(e.set, precMul)
}
func (in) prec() int { return precCmp }

// Op is a comparison operator.
type Op string

const (
	Eq Op = "=="
	Ne Op = "!="
	Lt Op = "<"
	Le Op = "<="
	Gt Op = ">"
	Ge Op = ">="
)

type cmp struct {
	lhs Expr
	op  Op
	rhs Expr
}

// Cmp compares two operands.
func Cmp(lhs Expr, op Op, rhs Expr) Expr { return cmp{lhs: lhs, op: op, rhs: rhs} }

func (c cmp) Render() string {
	return wrap(c.lhs, precMul) + " " + string(c.op) + " " + wrap(c.rhs, precMul)
}
func (cmp) prec() int { return precCmp }

type logical struct {
	word  string
	level int
	terms []Expr
}

// And joins terms with "and". A single term is returned unchanged.
func And(terms ...Expr) Expr { return join("and", precAnd, terms) }

// Or joins terms with "or". A single term is returned unchanged.
func Or(terms ...Expr) Expr { return join("or", precOr, terms) }

func join(word string, level int, terms []Expr) Expr {
	if len(terms) == 1 {
		return terms[0]
	}
	return logical{word: word, level: level, terms: terms}
}

func (l logical) Render() string {
	parts := make([]string, len(l.terms))
	for i, t := range l.terms {
		parts[i] = wrap(t, l.level)
	}
	return strings.Join(parts, " "+l.word+" ")
}
func (l logical) prec() int { return l.level }

type mul struct {
	lhs, rhs Expr
}

// Mul multiplies two numeric expressions.
func Mul(lhs, rhs Expr) Expr { return mul{lhs: lhs, rhs: rhs} }

func (m mul) Render() string {
	return wrap(m.lhs, precMul) + " * " + wrap(m.rhs, precAtom)
}
func (mul) prec() int { return precMul }

type cond struct {
	when, then, otherwise Expr
}

// If is the conditional "if when then x else y". Chained conditions nest
// in the else branch without parentheses.
func If(when, then, otherwise Expr) Expr { return cond{when: when, then: then, otherwise: otherwise} }

func (c cond) Render() string {
	return "if " + wrap(c.when, precOr) + " then " + c.then.Render() + " else " + c.otherwise.Render()
}
func (cond) prec() int { return precIf }

// Render renders e, or "" for a nil expression.
func Render(e Expr) string {
	if e == nil {
		return ""
	}
	return e.Render()
}
