package compiler

import (
	"math"

	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// defined? queries
// ---------------------------------------------------------------------------

// InDefined opens a defined? check. A failure raised by the code up to the
// matching OutDefined is suppressed: every value the check would have left
// is nil instead, and $! keeps the value it had at InDefined.
func (c *MethodCompiler) InDefined() {
	c.b.Emit(bytecode.OpInDefined)
	r := c.openRegion(nil, c.name("InDefined", "Exception"))
	c.ctx.checks = append(c.ctx.checks, r)
}

// OutDefined closes the innermost check. It must be called in the same
// callback as its InDefined, with no other region opened in between.
func (c *MethodCompiler) OutDefined() {
	const op = "OutDefined"
	n := len(c.ctx.checks)
	if n == 0 {
		c.fail(op, ErrDefinedNesting, "no open check")
	}
	r := c.ctx.checks[n-1]
	if m := len(c.ctx.regions); m == 0 || c.ctx.regions[m-1] != r {
		c.fail(op, ErrDefinedNesting, "check closed inside another region")
	}
	c.ctx.checks = c.ctx.checks[:n-1]

	left := 1
	if d := c.b.Depth(); d != bytecode.Unreachable {
		left = d - r.depth
		if left < 0 {
			c.fail(op, ErrCallbackDepth, "check consumed %d values", -left)
		}
	}
	c.closeRegion(r)

	out := c.b.NewLabel()
	if c.b.Reachable() {
		c.b.EmitJump(bytecode.OpJump, out)
	}
	c.b.Mark(r.handler)
	c.b.EnterAt(r.depth + 1)
	c.b.Emit(bytecode.OpPOP)
	for i := 0; i < left; i++ {
		c.b.Emit(bytecode.OpPushNil)
	}
	c.b.Mark(out)
	c.b.Emit(bytecode.OpOutDefined)
}

// test emits a one-instruction test that leaves a boolean and branches on
// it.
func (c *MethodCompiler) test(op string, code bytecode.Opcode, name string, trueBranch, falseBranch BranchCallback) {
	if code.OperandBytes() == 2 {
		c.emitName(op, code, name)
	} else {
		c.b.Emit(code)
	}
	c.branch(op, bytecode.OpJumpFalse, trueBranch, falseBranch)
}

// IsMethodBound consumes a receiver and branches on whether it responds to
// name.
func (c *MethodCompiler) IsMethodBound(name string, trueBranch, falseBranch BranchCallback) {
	c.test("IsMethodBound", bytecode.OpMethodBound, name, trueBranch, falseBranch)
}

// HasBlock branches on whether the current frame received a block.
func (c *MethodCompiler) HasBlock(trueBranch, falseBranch BranchCallback) {
	c.test("HasBlock", bytecode.OpHasBlock, "", trueBranch, falseBranch)
}

// IsGlobalDefined branches on whether global name has been assigned.
func (c *MethodCompiler) IsGlobalDefined(name string, trueBranch, falseBranch BranchCallback) {
	c.test("IsGlobalDefined", bytecode.OpGlobalDefined, name, trueBranch, falseBranch)
}

// IsConstantDefined branches on whether constant name resolves from the
// current lexical scope.
func (c *MethodCompiler) IsConstantDefined(name string, trueBranch, falseBranch BranchCallback) {
	c.test("IsConstantDefined", bytecode.OpConstDefined, name, trueBranch, falseBranch)
}

// IsInstanceVariableDefined branches on whether self has instance variable
// name.
func (c *MethodCompiler) IsInstanceVariableDefined(name string, trueBranch, falseBranch BranchCallback) {
	c.test("IsInstanceVariableDefined", bytecode.OpIvarDefined, name, trueBranch, falseBranch)
}

// IsClassVarDefined branches on whether the current module or one of its
// superclasses has class variable name.
func (c *MethodCompiler) IsClassVarDefined(name string, trueBranch, falseBranch BranchCallback) {
	c.test("IsClassVarDefined", bytecode.OpCvarDefined, name, trueBranch, falseBranch)
}

// IsCaptured branches on whether match group number matched.
func (c *MethodCompiler) IsCaptured(number int, trueBranch, falseBranch BranchCallback) {
	const op = "IsCaptured"
	if number < 0 || number > math.MaxUint8 {
		c.fail(op, bytecode.ErrOperandRange, "$%d", number)
	}
	c.b.EmitByte(bytecode.OpCaptured, byte(number))
	c.branch(op, bytecode.OpJumpFalse, trueBranch, falseBranch)
}

// IsConstantBranch evaluates setup to get a module, then runs isConstant if
// the module has a constant name, isMethod if it responds to name, and none
// otherwise. The module is consumed.
func (c *MethodCompiler) IsConstantBranch(setup, isConstant, isMethod, none BranchCallback, name string) {
	const op = "IsConstantBranch"
	idx := c.name(op, name)
	c.call(op, setup, 1)

	notConst := c.b.NewLabel()
	noMethod := c.b.NewLabel()
	end := c.b.NewLabel()
	depth := bytecode.Unreachable

	c.b.Emit(bytecode.OpDUP)
	c.b.EmitUint16(bytecode.OpConstDefinedIn, idx)
	c.b.EmitJump(bytecode.OpJumpFalse, notConst)
	c.b.Emit(bytecode.OpPOP)
	c.arm(op, isConstant, &depth)
	c.b.EmitJump(bytecode.OpJump, end)

	c.b.Mark(notConst)
	c.b.EmitUint16(bytecode.OpMethodBound, idx)
	c.b.EmitJump(bytecode.OpJumpFalse, noMethod)
	c.arm(op, isMethod, &depth)
	c.b.EmitJump(bytecode.OpJump, end)

	c.b.Mark(noMethod)
	c.arm(op, none, &depth)
	c.b.Mark(end)
}

// GetVisibilityFor replaces the class on top with the visibility of its
// method name.
func (c *MethodCompiler) GetVisibilityFor(name string) {
	c.emitName("GetVisibilityFor", bytecode.OpVisibility, name)
}

// IsPrivate consumes a visibility; when it is private, toConsume more
// values are dropped and control jumps to l.
func (c *MethodCompiler) IsPrivate(l bytecode.Label, toConsume int) {
	c.b.Emit(bytecode.OpIsPrivate)
	c.consumeAndJump(bytecode.OpJumpFalse, l, toConsume)
}

// IsNotProtected is IsPrivate for "not protected".
func (c *MethodCompiler) IsNotProtected(l bytecode.Label, toConsume int) {
	c.b.Emit(bytecode.OpIsProtected)
	c.consumeAndJump(bytecode.OpJumpTrue, l, toConsume)
}

// consumeAndJump pops a boolean; unless skip's condition holds it pops
// toConsume values and jumps to l.
func (c *MethodCompiler) consumeAndJump(skip bytecode.Opcode, l bytecode.Label, toConsume int) {
	cont := c.b.NewLabel()
	c.b.EmitJump(skip, cont)
	for ; toConsume > 0; toConsume-- {
		c.b.Emit(bytecode.OpPOP)
	}
	c.b.EmitJump(bytecode.OpJump, l)
	c.b.Mark(cont)
}

// SelfIsKindOf consumes a class and jumps to l when self is a kind of it.
func (c *MethodCompiler) SelfIsKindOf(l bytecode.Label) {
	c.b.Emit(bytecode.OpSelfKindOf)
	c.b.EmitJump(bytecode.OpJumpTrue, l)
}

// NotIsModuleAndClassVarDefined consumes a value and jumps to l unless it
// is a module with class variable name.
func (c *MethodCompiler) NotIsModuleAndClassVarDefined(name string, l bytecode.Label) {
	c.emitName("NotIsModuleAndClassVarDefined", bytecode.OpCvarDefinedIn, name)
	c.b.EmitJump(bytecode.OpJumpFalse, l)
}

// IfSingleton consumes a class and jumps to l when it is a singleton class.
func (c *MethodCompiler) IfSingleton(l bytecode.Label) {
	c.b.Emit(bytecode.OpIsSingleton)
	c.b.EmitJump(bytecode.OpJumpTrue, l)
}

// IfNotSuperMethodBound jumps to l when the current method has no super
// method.
func (c *MethodCompiler) IfNotSuperMethodBound(l bytecode.Label) {
	c.b.Emit(bytecode.OpSuperBound)
	c.b.EmitJump(bytecode.OpJumpFalse, l)
}
