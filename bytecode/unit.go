package bytecode

import (
	"fmt"
	"math/big"
	"strconv"
)

// ---------------------------------------------------------------------------
// Unit: a finalized compilation unit
// ---------------------------------------------------------------------------

// Kind identifies what a unit was compiled from.
type Kind uint8

const (
	KindTopLevel Kind = iota
	KindMethod
	KindClosure
)

func (k Kind) String() string {
	switch k {
	case KindTopLevel:
		return "toplevel"
	case KindMethod:
		return "method"
	case KindClosure:
		return "closure"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Flags are calling-convention hints derived from static analysis.
type Flags uint8

const (
	// FlagNoHeapScope: no closures or scope-aware calls, locals may live
	// on the stack.
	FlagNoHeapScope Flags = 1 << iota
	// FlagSimpleArgs: only required positional arguments.
	FlagSimpleArgs
)

// LiteralKind tags a literal pool entry.
type LiteralKind uint8

const (
	LitFixnum LiteralKind = iota
	LitFloat
	LitBignum // decimal digits in Str
	LitString
	LitSymbol
	LitRegexp // pattern in Str, options in Int, language in Lang
	LitName   // variable, constant or method name
)

// Literal is an entry in a unit's literal pool.
type Literal struct {
	Kind  LiteralKind `cbor:"1,keyasint"`
	Int   int64       `cbor:"2,keyasint,omitempty"`
	Float float64     `cbor:"3,keyasint"`
	Str   string      `cbor:"4,keyasint,omitempty"`
	Lang  string      `cbor:"5,keyasint,omitempty"` // regexp source language
}

// Bignum parses a LitBignum literal.
func (l Literal) Bignum() (*big.Int, bool) {
	return new(big.Int).SetString(l.Str, 10)
}

func (l Literal) String() string {
	switch l.Kind {
	case LitFixnum:
		return strconv.FormatInt(l.Int, 10)
	case LitFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LitBignum:
		return l.Str
	case LitString:
		return strconv.Quote(l.Str)
	case LitSymbol:
		return ":" + l.Str
	case LitRegexp:
		return fmt.Sprintf("/%s/%d", l.Str, l.Int)
	case LitName:
		return l.Str
	}
	return fmt.Sprintf("literal(%d)", l.Kind)
}

// Handler is an exception table entry. Failures raised in [Start, End)
// transfer to Target with the stack cut back to Depth and the failure
// pushed. Class is the literal index of the class name a rescue filters
// on, or -1 for an ensure handler.
type Handler struct {
	Start  int `cbor:"1,keyasint"`
	End    int `cbor:"2,keyasint"`
	Target int `cbor:"3,keyasint"`
	Depth  int `cbor:"4,keyasint"`
	Class  int `cbor:"5,keyasint"`
}

// Ensure reports whether the handler runs for every failure.
func (h Handler) Ensure() bool {
	return h.Class < 0
}

// LineEntry maps a code position to a source line.
type LineEntry struct {
	Pos  int `cbor:"1,keyasint"`
	Line int `cbor:"2,keyasint"`
}

// Unit is a finalized instruction stream with everything needed to run it.
type Unit struct {
	Name     string      `cbor:"1,keyasint"`
	File     string      `cbor:"2,keyasint,omitempty"`
	Kind     Kind        `cbor:"3,keyasint"`
	Arity    int         `cbor:"4,keyasint"`
	Locals   []string    `cbor:"5,keyasint,omitempty"`
	Code     []byte      `cbor:"6,keyasint"`
	Literals []Literal   `cbor:"7,keyasint,omitempty"`
	Units    []*Unit     `cbor:"8,keyasint,omitempty"`
	Handlers []Handler   `cbor:"9,keyasint,omitempty"`
	Lines    []LineEntry `cbor:"10,keyasint,omitempty"`
	Labels   []int       `cbor:"11,keyasint,omitempty"` // bound label positions
	MaxStack int         `cbor:"12,keyasint"`
	Flags    Flags       `cbor:"13,keyasint"`
}

// NumLocals returns the number of local variable slots.
func (u *Unit) NumLocals() int {
	return len(u.Locals)
}

// LineAt returns the source line for a code position, or 0.
func (u *Unit) LineAt(pos int) int {
	line := 0
	for _, e := range u.Lines {
		if e.Pos > pos {
			break
		}
		line = e.Line
	}
	return line
}

// LiteralName returns the string payload of a literal, or "" if out of range.
func (u *Unit) LiteralName(idx int) string {
	if idx < 0 || idx >= len(u.Literals) {
		return ""
	}
	return u.Literals[idx].Str
}

// Walk calls fn for u and every nested unit, depth first.
func (u *Unit) Walk(fn func(*Unit)) {
	fn(u)
	for _, child := range u.Units {
		child.Walk(fn)
	}
}
