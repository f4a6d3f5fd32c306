package compiler

import (
	"math"
	"math/big"

	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// StackEmitter
// ---------------------------------------------------------------------------

// ConsumeCurrentValue drops the value on top.
func (c *MethodCompiler) ConsumeCurrentValue() { c.b.Emit(bytecode.OpPOP) }

// DuplicateCurrentValue pushes a second copy of the value on top.
func (c *MethodCompiler) DuplicateCurrentValue() { c.b.Emit(bytecode.OpDUP) }

// SwapValues exchanges the two topmost values.
func (c *MethodCompiler) SwapValues() { c.b.Emit(bytecode.OpSWAP) }

// LoadTrue pushes true.
func (c *MethodCompiler) LoadTrue() { c.b.Emit(bytecode.OpPushTrue) }

// LoadFalse pushes false.
func (c *MethodCompiler) LoadFalse() { c.b.Emit(bytecode.OpPushFalse) }

// LoadNil pushes nil.
func (c *MethodCompiler) LoadNil() { c.b.Emit(bytecode.OpPushNil) }

// PushNull pushes the engine's "no value" marker, distinct from nil.
func (c *MethodCompiler) PushNull() { c.b.Emit(bytecode.OpPushNull) }

// LoadSelf pushes the frame's receiver.
func (c *MethodCompiler) LoadSelf() { c.b.Emit(bytecode.OpPushSelf) }

// RetrieveSelf is LoadSelf.
func (c *MethodCompiler) RetrieveSelf() { c.b.Emit(bytecode.OpPushSelf) }

// RetrieveSelfClass pushes the class of self.
func (c *MethodCompiler) RetrieveSelfClass() { c.b.Emit(bytecode.OpPushSelfClass) }

// LoadObject pushes the root class Object.
func (c *MethodCompiler) LoadObject() { c.b.Emit(bytecode.OpPushObject) }

// LoadCurrentModule pushes the innermost lexical module, the definee of
// method definitions.
func (c *MethodCompiler) LoadCurrentModule() { c.b.Emit(bytecode.OpPushModule) }

// CreateNewFixnum pushes an integer; small values are encoded inline.
func (c *MethodCompiler) CreateNewFixnum(v int64) {
	if v >= math.MinInt8 && v <= math.MaxInt8 {
		c.b.EmitInt8(bytecode.OpPushInt8, int8(v))
		return
	}
	c.b.EmitUint16(bytecode.OpPushLiteral, c.literal(bytecode.Literal{Kind: bytecode.LitFixnum, Int: v}))
}

// LoadInteger pushes a 32-bit integer.
func (c *MethodCompiler) LoadInteger(v int) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		c.CreateNewFixnum(int64(v))
		return
	}
	c.b.EmitInt32(bytecode.OpPushInt32, int32(v))
}

// CreateNewFloat pushes a float literal.
func (c *MethodCompiler) CreateNewFloat(v float64) {
	c.b.EmitUint16(bytecode.OpPushLiteral, c.literal(bytecode.Literal{Kind: bytecode.LitFloat, Float: v}))
}

// CreateNewBignum pushes an arbitrary-precision integer literal.
func (c *MethodCompiler) CreateNewBignum(v *big.Int) {
	c.b.EmitUint16(bytecode.OpPushLiteral, c.literal(bytecode.Literal{Kind: bytecode.LitBignum, Str: v.String()}))
}

// CreateNewString pushes a fresh mutable string each time it executes.
func (c *MethodCompiler) CreateNewString(v []byte) {
	c.b.EmitUint16(bytecode.OpNewString, c.literal(bytecode.Literal{Kind: bytecode.LitString, Str: string(v)}))
}

// PushString pushes a shared frozen string.
func (c *MethodCompiler) PushString(s string) {
	c.b.EmitUint16(bytecode.OpPushLiteral, c.literal(bytecode.Literal{Kind: bytecode.LitString, Str: s}))
}

// CreateNewSymbol pushes a symbol. The name must not be empty.
func (c *MethodCompiler) CreateNewSymbol(name string) {
	if name == "" {
		c.fail("CreateNewSymbol", ErrEmptyName, "")
	}
	c.b.EmitUint16(bytecode.OpPushLiteral, c.literal(bytecode.Literal{Kind: bytecode.LitSymbol, Str: name}))
}

// LoadSymbol is CreateNewSymbol.
func (c *MethodCompiler) LoadSymbol(name string) { c.CreateNewSymbol(name) }

// RetrieveInstanceVariable pushes an instance variable of self, nil when
// unset.
func (c *MethodCompiler) RetrieveInstanceVariable(name string) {
	c.emitName("RetrieveInstanceVariable", bytecode.OpPushIvar, name)
}

// GetInstanceVariable pushes an instance variable, or null when unset.
func (c *MethodCompiler) GetInstanceVariable(name string) {
	c.emitName("GetInstanceVariable", bytecode.OpPushIvarRaw, name)
}

// AssignInstanceVariable stores the value on top in an instance variable
// of self. The value stays on the stack.
func (c *MethodCompiler) AssignInstanceVariable(name string) {
	c.emitName("AssignInstanceVariable", bytecode.OpStoreIvar, name)
}

// AssignInstanceVariableBlockArg assigns incoming argument index to an
// instance variable.
func (c *MethodCompiler) AssignInstanceVariableBlockArg(index int, name string) {
	c.blockArg("AssignInstanceVariableBlockArg", index, bytecode.OpStoreIvar, name)
}

// RetrieveGlobalVariable pushes a global, nil when unset.
func (c *MethodCompiler) RetrieveGlobalVariable(name string) {
	c.emitName("RetrieveGlobalVariable", bytecode.OpPushGlobal, name)
}

// AssignGlobalVariable stores the value on top in a global, leaving it.
func (c *MethodCompiler) AssignGlobalVariable(name string) {
	c.emitName("AssignGlobalVariable", bytecode.OpStoreGlobal, name)
}

// AssignGlobalVariableBlockArg assigns incoming argument index to a global.
func (c *MethodCompiler) AssignGlobalVariableBlockArg(index int, name string) {
	c.blockArg("AssignGlobalVariableBlockArg", index, bytecode.OpStoreGlobal, name)
}

func (c *MethodCompiler) blockArg(op string, index int, store bytecode.Opcode, name string) {
	if index < 0 || index > math.MaxUint8 {
		c.fail(op, ErrUnknownVariable, "argument %d", index)
	}
	c.b.EmitByte(bytecode.OpPushBlockArg, byte(index))
	c.emitName(op, store, name)
	c.b.Emit(bytecode.OpPOP)
}

// RetrieveClassVariable pushes a class variable of the current module or
// its superclasses.
func (c *MethodCompiler) RetrieveClassVariable(name string) {
	c.emitName("RetrieveClassVariable", bytecode.OpPushCvar, name)
}

// AssignClassVariable stores the value on top in a class variable, leaving
// it.
func (c *MethodCompiler) AssignClassVariable(name string) {
	c.emitName("AssignClassVariable", bytecode.OpStoreCvar, name)
}

// NegateCurrentValue replaces the value on top with its boolean negation.
func (c *MethodCompiler) NegateCurrentValue() { c.b.Emit(bytecode.OpNot) }

// NullToNil replaces the null marker on top with nil.
func (c *MethodCompiler) NullToNil() { c.b.Emit(bytecode.OpNullToNil) }

// StringOrNil replaces the null marker on top with nil and any other value
// with its to_s.
func (c *MethodCompiler) StringOrNil() { c.b.Emit(bytecode.OpStringOrNil) }

// AsString replaces the value on top with its to_s.
func (c *MethodCompiler) AsString() { c.b.Emit(bytecode.OpToS) }

// Metaclass replaces the value on top with its class.
func (c *MethodCompiler) Metaclass() { c.b.Emit(bytecode.OpMetaclass) }

// SuperClass replaces the class on top with its superclass, or nil.
func (c *MethodCompiler) SuperClass() { c.b.Emit(bytecode.OpSuperclass) }

// GetFrameName pushes the name of the running method as a symbol, or nil
// outside a method.
func (c *MethodCompiler) GetFrameName() { c.b.Emit(bytecode.OpPushFrameName) }

// GetFrameKlazz pushes the class that owns the running method.
func (c *MethodCompiler) GetFrameKlazz() { c.b.Emit(bytecode.OpPushFrameClass) }

// Backref pushes the last match ($~).
func (c *MethodCompiler) Backref() { c.b.Emit(bytecode.OpPushBackref) }

// BackrefMethod pushes a derived match value: "$&", "$`", "$'" or "$+".
func (c *MethodCompiler) BackrefMethod(name string) {
	c.emitName("BackrefMethod", bytecode.OpBackrefMethod, name)
}

// NthRef pushes match group n ($1..$255).
func (c *MethodCompiler) NthRef(n int) {
	if n < 0 || n > math.MaxUint8 {
		c.fail("NthRef", ErrUnknownVariable, "$%d", n)
	}
	c.b.EmitByte(bytecode.OpNthRef, byte(n))
}

// Match matches the regexp on top against $_ and replaces it with the
// match position or nil.
func (c *MethodCompiler) Match() { c.b.Emit(bytecode.OpMatch) }

// Match2 matches a regexp (below) against a value (top): regexp =~ value.
func (c *MethodCompiler) Match2() { c.b.Emit(bytecode.OpMatch2) }

// Match3 matches a value (below) against a regexp (top): value =~ regexp.
func (c *MethodCompiler) Match3() { c.b.Emit(bytecode.OpMatch3) }

// PollThreadEvents gives the engine a chance to observe cancellation.
func (c *MethodCompiler) PollThreadEvents() { c.b.Emit(bytecode.OpPoll) }

// Debug emits a trace instruction carrying msg.
func (c *MethodCompiler) Debug(msg string) {
	c.b.EmitUint16(bytecode.OpTrace, c.literal(bytecode.Literal{Kind: bytecode.LitString, Str: msg}))
}
