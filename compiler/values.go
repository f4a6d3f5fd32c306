package compiler

import (
	"math"

	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// ValueBuilder
// ---------------------------------------------------------------------------

func (c *MethodCompiler) elements(op string, source any, count, delta int, callback ArrayCallback) {
	if count < 0 || count > math.MaxUint16 {
		c.fail(op, bytecode.ErrOperandRange, "count %d", count)
	}
	if count > 0 && callback == nil {
		c.fail(op, ErrNilCallback, "")
	}
	for i := 0; i < count; i++ {
		c.call(op, func(mc *MethodCompiler) { callback(mc, source, i) }, delta)
	}
}

// CreateObjectArray pushes count elements, one callback each, and folds
// them into a value array.
func (c *MethodCompiler) CreateObjectArray(source any, count int, callback ArrayCallback) {
	const op = "CreateObjectArray"
	c.elements(op, source, count, 1, callback)
	c.b.EmitUint16(bytecode.OpObjectArray, count)
}

// CreateObjectArrayN folds the top count values into a value array.
func (c *MethodCompiler) CreateObjectArrayN(count int) {
	c.b.EmitUint16(bytecode.OpObjectArray, count)
}

// CreateNewArray turns the value array on top into an array object. A
// lightweight array shares its storage and must not be mutated.
func (c *MethodCompiler) CreateNewArray(lightweight bool) {
	c.b.EmitByte(bytecode.OpNewArray, flag(lightweight))
}

// CreateEmptyArray pushes a new empty array object.
func (c *MethodCompiler) CreateEmptyArray() { c.b.Emit(bytecode.OpEmptyArray) }

// CreateEmptyHash pushes a new empty hash.
func (c *MethodCompiler) CreateEmptyHash() { c.b.Emit(bytecode.OpEmptyHash) }

// CreateNewHash builds a hash from keyCount pairs; each callback pushes a
// key and then its value.
func (c *MethodCompiler) CreateNewHash(elements any, callback ArrayCallback, keyCount int) {
	const op = "CreateNewHash"
	c.elements(op, elements, keyCount, 2, callback)
	c.b.EmitUint16(bytecode.OpNewHash, keyCount)
}

// CreateNewRange builds a range from begin (below) and end (top).
func (c *MethodCompiler) CreateNewRange(isExclusive bool) {
	c.b.EmitByte(bytecode.OpNewRange, flag(isExclusive))
}

// CreateNewDynamicString concatenates count pieces, one callback each.
func (c *MethodCompiler) CreateNewDynamicString(callback ArrayCallback, count int) {
	const op = "CreateNewDynamicString"
	c.elements(op, nil, count, 1, callback)
	c.b.EmitUint16(bytecode.OpConcatStrings, count)
}

// CreateNewRegexp pushes a regexp. Options 1 ignores case and 4 lets dot
// match a newline; lang names the source dialect.
func (c *MethodCompiler) CreateNewRegexp(pattern string, options int, lang string) {
	lit := bytecode.Literal{Kind: bytecode.LitRegexp, Str: pattern, Int: int64(options), Lang: lang}
	c.b.EmitUint16(bytecode.OpNewRegexp, c.literal(lit))
}

// SplatCurrentValue converts the value on top into a value array: an array
// gives its elements, nil gives none, anything else gives itself.
func (c *MethodCompiler) SplatCurrentValue() { c.b.Emit(bytecode.OpSplat) }

// SingleifySplattedValue reduces a value array to its first element, or
// nil when it is empty.
func (c *MethodCompiler) SingleifySplattedValue() { c.b.Emit(bytecode.OpSingleify) }

// EnsureRubyArray wraps a value that is not a value array.
func (c *MethodCompiler) EnsureRubyArray() { c.b.Emit(bytecode.OpEnsureArray) }

// EnsureMultipleAssignableRubyArray prepares the right-hand side of a
// multiple assignment. With a head, an array is unpacked into its elements;
// otherwise the value is wrapped.
func (c *MethodCompiler) EnsureMultipleAssignableRubyArray(hasHead bool) {
	c.b.EmitByte(bytecode.OpEnsureMasgn, flag(hasHead))
}

// ForEachInValueArray calls callback with element i of the value array on
// top pushed, for i in [start, start+count). The callback must consume the
// element; the value array stays on the stack.
func (c *MethodCompiler) ForEachInValueArray(count, start int, source any, callback ArrayCallback) {
	const op = "ForEachInValueArray"
	if count > 0 && callback == nil {
		c.fail(op, ErrNilCallback, "")
	}
	if start < 0 || count < 0 || start+count > math.MaxUint16 {
		c.fail(op, bytecode.ErrOperandRange, "elements %d..%d", start, start+count)
	}
	for i := start; i < start+count; i++ {
		c.b.Emit(bytecode.OpDUP)
		c.b.EmitUint16(bytecode.OpArrayEntry, i)
		c.call(op, func(mc *MethodCompiler) { callback(mc, source, i) }, -1)
	}
}

// LoadRubyArraySize pushes the size of the value array on top, keeping it.
func (c *MethodCompiler) LoadRubyArraySize() { c.b.Emit(bytecode.OpArraySize) }

// ConcatArrays appends the value array on top to the one beneath it.
func (c *MethodCompiler) ConcatArrays() { c.b.Emit(bytecode.OpConcatArrays) }

// UnwrapRubyArray turns an array object into a value array.
func (c *MethodCompiler) UnwrapRubyArray() { c.b.Emit(bytecode.OpUnwrapArray) }

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}
