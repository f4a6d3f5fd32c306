package compiler

import (
	"math"

	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// InvokeMethod sends name to the receiver beneath argc arguments. With
// bytecode.CallWithBlock in kind a closure sits on top of the arguments.
// The receiver, arguments and block are replaced by the result. Private
// methods are reachable only through CallFunctional and CallVariable.
func (c *MethodCompiler) InvokeMethod(name string, argc int, kind bytecode.CallKind) {
	const op = "InvokeMethod"
	if argc < 0 || argc > math.MaxUint8 {
		c.fail(op, bytecode.ErrOperandRange, "argc %d", argc)
	}
	c.b.EmitSend(c.name(op, name), argc, kind)
}

// InvokeFunctional sends name to self: LoadSelf must precede the arguments.
func (c *MethodCompiler) InvokeFunctional(name string, argc int) {
	c.InvokeMethod(name, argc, bytecode.CallFunctional)
}

// InvokeSuper calls the superclass implementation of the current method
// with argc arguments.
func (c *MethodCompiler) InvokeSuper(argc int) {
	if argc < 0 || argc > math.MaxUint8 {
		c.fail("InvokeSuper", bytecode.ErrOperandRange, "argc %d", argc)
	}
	c.b.EmitByte(bytecode.OpSendSuper, byte(argc))
}

// YieldBlock calls the current frame's block with argc arguments.
func (c *MethodCompiler) YieldBlock(argc int) {
	if argc < 0 || argc > math.MaxUint8 {
		c.fail("YieldBlock", bytecode.ErrOperandRange, "argc %d", argc)
	}
	c.b.EmitByte(bytecode.OpYield, byte(argc))
}
