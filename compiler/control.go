package compiler

import (
	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// Branches
// ---------------------------------------------------------------------------

// branch emits a two-way branch: jump pops its operands and transfers to
// the taken arm, otherwise the fall arm runs. Both arms must end at the
// same depth.
func (c *MethodCompiler) branch(op string, jump bytecode.Opcode, fall, taken BranchCallback) {
	other := c.b.NewLabel()
	end := c.b.NewLabel()
	c.b.EmitJump(jump, other)
	depth := bytecode.Unreachable
	c.arm(op, fall, &depth)
	c.b.EmitJump(bytecode.OpJump, end)
	c.b.Mark(other)
	c.arm(op, taken, &depth)
	c.b.Mark(end)
}

// PerformBooleanBranch consumes the condition and runs trueBranch when it
// is truthy (neither nil nor false), falseBranch otherwise.
func (c *MethodCompiler) PerformBooleanBranch(trueBranch, falseBranch BranchCallback) {
	c.branch("PerformBooleanBranch", bytecode.OpJumpFalse, trueBranch, falseBranch)
}

// PerformLogicalAnd keeps a falsy value on the stack; a truthy one is
// replaced by the result of longBranch.
func (c *MethodCompiler) PerformLogicalAnd(longBranch BranchCallback) {
	c.logical("PerformLogicalAnd", bytecode.OpJumpFalse, longBranch)
}

// PerformLogicalOr keeps a truthy value on the stack; a falsy one is
// replaced by the result of longBranch.
func (c *MethodCompiler) PerformLogicalOr(longBranch BranchCallback) {
	c.logical("PerformLogicalOr", bytecode.OpJumpTrue, longBranch)
}

func (c *MethodCompiler) logical(op string, jump bytecode.Opcode, long BranchCallback) {
	end := c.b.NewLabel()
	c.b.Emit(bytecode.OpDUP)
	c.b.EmitJump(jump, end)
	c.b.Emit(bytecode.OpPOP)
	c.call(op, long, 1)
	c.b.Mark(end)
}

// PerformGEBranch consumes a (below) and b (top) and branches on a >= b.
func (c *MethodCompiler) PerformGEBranch(trueBranch, falseBranch BranchCallback) {
	c.branch("PerformGEBranch", bytecode.OpJumpNotGE, trueBranch, falseBranch)
}

// PerformGTBranch branches on a > b.
func (c *MethodCompiler) PerformGTBranch(trueBranch, falseBranch BranchCallback) {
	c.branch("PerformGTBranch", bytecode.OpJumpNotGT, trueBranch, falseBranch)
}

// PerformLEBranch branches on a <= b.
func (c *MethodCompiler) PerformLEBranch(trueBranch, falseBranch BranchCallback) {
	c.branch("PerformLEBranch", bytecode.OpJumpNotLE, trueBranch, falseBranch)
}

// PerformLTBranch branches on a < b.
func (c *MethodCompiler) PerformLTBranch(trueBranch, falseBranch BranchCallback) {
	c.branch("PerformLTBranch", bytecode.OpJumpNotLT, trueBranch, falseBranch)
}

// IsNil consumes a value and runs trueBranch when it is nil.
func (c *MethodCompiler) IsNil(trueBranch, falseBranch BranchCallback) {
	c.branch("IsNil", bytecode.OpJumpNil, falseBranch, trueBranch)
}

// IsNull consumes a value and runs trueBranch when it is the null marker.
func (c *MethodCompiler) IsNull(trueBranch, falseBranch BranchCallback) {
	c.branch("IsNull", bytecode.OpJumpNull, falseBranch, trueBranch)
}

// IsInstanceOf consumes a value and runs trueBranch when it is an instance
// of the named class.
func (c *MethodCompiler) IsInstanceOf(class string, trueBranch, falseBranch BranchCallback) {
	const op = "IsInstanceOf"
	c.emitName(op, bytecode.OpInstanceOf, class)
	c.branch(op, bytecode.OpJumpFalse, trueBranch, falseBranch)
}

// BranchIfModule evaluates receiver and runs module or notModule depending
// on whether the result is a module. The receiver value is consumed.
func (c *MethodCompiler) BranchIfModule(receiver, module, notModule BranchCallback) {
	const op = "BranchIfModule"
	c.call(op, receiver, 1)
	c.b.Emit(bytecode.OpIsModule)
	c.branch(op, bytecode.OpJumpFalse, module, notModule)
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// NewEnding creates an unbound label.
func (c *MethodCompiler) NewEnding() bytecode.Label { return c.b.NewLabel() }

// SetEnding binds a label at the current position. Binding twice is fatal.
func (c *MethodCompiler) SetEnding(l bytecode.Label) { c.b.Mark(l) }

// Go jumps unconditionally.
func (c *MethodCompiler) Go(l bytecode.Label) { c.b.EmitJump(bytecode.OpJump, l) }

// IfNull consumes a value and jumps when it is the null marker.
func (c *MethodCompiler) IfNull(l bytecode.Label) { c.b.EmitJump(bytecode.OpJumpNull, l) }

// IfNotNull consumes a value and jumps unless it is the null marker.
func (c *MethodCompiler) IfNotNull(l bytecode.Label) { c.b.EmitJump(bytecode.OpJumpNotNull, l) }

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

type loopContext struct {
	next    bytecode.Label // condition check
	redo    bytecode.Label // body start
	exit    bytecode.Label // loop value on the stack
	depth   int            // stack depth when the loop began
	regions int            // protected regions open when the loop began
}

func (c *MethodCompiler) innermostLoop() *loopContext {
	if n := len(c.ctx.loops); n > 0 {
		return c.ctx.loops[n-1]
	}
	return nil
}

// PerformBooleanLoop emits a while loop. With checkFirst the condition is
// tested before every iteration; otherwise the body runs once before the
// first test. The body's value is discarded. The loop leaves nil, or the
// value given to a break.
func (c *MethodCompiler) PerformBooleanLoop(condition, body BranchCallback, checkFirst bool) {
	const op = "PerformBooleanLoop"
	if condition == nil || body == nil {
		c.fail(op, ErrNilCallback, "")
	}
	lc := &loopContext{
		next:    c.b.NewLabel(),
		redo:    c.b.NewLabel(),
		exit:    c.b.NewLabel(),
		depth:   c.b.Depth(),
		regions: len(c.ctx.regions),
	}
	done := c.b.NewLabel()
	c.ctx.loops = append(c.ctx.loops, lc)

	if checkFirst {
		c.b.Mark(lc.next)
		c.call(op, condition, 1)
		c.b.EmitJump(bytecode.OpJumpFalse, done)
		c.b.Mark(lc.redo)
		c.call(op, body, 1)
		c.b.Emit(bytecode.OpPOP)
		c.backEdge(lc.next)
	} else {
		c.b.Mark(lc.redo)
		c.call(op, body, 1)
		c.b.Emit(bytecode.OpPOP)
		c.b.Mark(lc.next)
		c.call(op, condition, 1)
		c.b.EmitJump(bytecode.OpJumpFalse, done)
		c.backEdge(lc.redo)
	}

	c.ctx.loops = c.ctx.loops[:len(c.ctx.loops)-1]
	c.b.Mark(done)
	c.b.Emit(bytecode.OpPushNil)
	c.b.Mark(lc.exit)
}

func (c *MethodCompiler) backEdge(target bytecode.Label) {
	if c.opts.PollLoops {
		c.b.Emit(bytecode.OpPoll)
	}
	c.b.EmitJump(bytecode.OpJump, target)
}

// slide drops every operand between base and the value on top.
func (c *MethodCompiler) slide(base int) {
	d := c.b.Depth()
	if d == bytecode.Unreachable {
		return
	}
	for n := d - 1 - base; n > 0; {
		k := min(n, 0xFF)
		c.b.EmitByte(bytecode.OpSLIDE, byte(k))
		n -= k
	}
}

// discard drops the value on top and every operand down to base.
func (c *MethodCompiler) discard(base int) {
	c.slide(base)
	c.b.Emit(bytecode.OpPOP)
}

// IssueBreakEvent leaves the innermost loop with the value on the stack as
// the loop's value. In a closure outside any loop it breaks out of the
// call that yielded to the closure.
func (c *MethodCompiler) IssueBreakEvent() {
	const op = "IssueBreakEvent"
	lc := c.innermostLoop()
	if lc == nil {
		if c.unit.Kind != bytecode.KindClosure {
			c.fail(op, ErrNoLoop, "break")
		}
		c.exitTo(0, func() { c.b.Emit(bytecode.OpBreakNonLocal) })
		return
	}
	c.slide(lc.depth)
	c.exitTo(lc.regions, func() { c.b.EmitJump(bytecode.OpJump, lc.exit) })
}

// IssueNextEvent discards the value on the stack and continues with the
// innermost loop's condition. In a closure outside any loop the value is
// returned from the closure.
func (c *MethodCompiler) IssueNextEvent() {
	const op = "IssueNextEvent"
	lc := c.innermostLoop()
	if lc == nil {
		if c.unit.Kind != bytecode.KindClosure {
			c.fail(op, ErrNoLoop, "next")
		}
		c.exitTo(0, func() { c.b.Emit(bytecode.OpReturn) })
		return
	}
	c.discard(lc.depth)
	c.exitTo(lc.regions, func() { c.b.EmitJump(bytecode.OpJump, lc.next) })
}

// IssueRedoEvent discards the value on the stack and restarts the body of
// the innermost loop, or of the closure outside any loop.
func (c *MethodCompiler) IssueRedoEvent() {
	const op = "IssueRedoEvent"
	lc := c.innermostLoop()
	if lc == nil {
		if c.unit.Kind != bytecode.KindClosure || c.ctx.restart.IsZero() {
			c.fail(op, ErrNoLoop, "redo")
		}
		c.discard(0)
		c.exitTo(0, func() { c.b.EmitJump(bytecode.OpJump, c.ctx.restart) })
		return
	}
	c.discard(lc.depth)
	c.exitTo(lc.regions, func() { c.b.EmitJump(bytecode.OpJump, lc.redo) })
}

// PerformReturn returns the value on the stack. In a closure the return
// leaves the method that created the closure.
func (c *MethodCompiler) PerformReturn() {
	exit := bytecode.OpReturn
	if c.unit.Kind == bytecode.KindClosure {
		exit = bytecode.OpReturnNonLocal
	}
	c.exitTo(0, func() { c.b.Emit(exit) })
}

// ---------------------------------------------------------------------------
// Protected regions
// ---------------------------------------------------------------------------

// region is an open protect or rescue. Its coverage is a list of code
// ranges: inlined ensure code at an exit is not covered by the regions it
// belongs to.
type region struct {
	ensure  BranchCallback // nil for a rescue
	class   int            // literal index of the rescued class, -1 for ensure
	depth   int
	handler bytecode.Label
	ranges  [][2]int
	open    int // start of the current range, -1 while suspended
}

func (c *MethodCompiler) openRegion(ensure BranchCallback, class int) *region {
	r := &region{
		ensure:  ensure,
		class:   class,
		depth:   c.b.Depth(),
		handler: c.b.NewLabel(),
		open:    c.b.Len(),
	}
	c.ctx.regions = append(c.ctx.regions, r)
	return r
}

func (c *MethodCompiler) suspend(r *region) {
	if r.open >= 0 && c.b.Len() > r.open {
		r.ranges = append(r.ranges, [2]int{r.open, c.b.Len()})
	}
	r.open = -1
}

func (c *MethodCompiler) resume(r *region) {
	r.open = c.b.Len()
}

// closeRegion pops r and records its exception table entries.
func (c *MethodCompiler) closeRegion(r *region) {
	c.ctx.regions = c.ctx.regions[:len(c.ctx.regions)-1]
	c.suspend(r)
	for _, rg := range r.ranges {
		c.handlers = append(c.handlers, pendingHandler{
			start:  rg[0],
			end:    rg[1],
			target: r.handler,
			depth:  r.depth,
			class:  r.class,
		})
	}
}

// runEnsure emits a region's ensure code and discards its value.
func (c *MethodCompiler) runEnsure(r *region) {
	c.call("Protect", r.ensure, 1)
	c.b.Emit(bytecode.OpPOP)
}

// exitTo emits a non-local exit that leaves every region above index from:
// their ensure code runs innermost first, outside their own coverage, and
// then emit writes the exit instruction.
func (c *MethodCompiler) exitTo(from int, emit func()) {
	crossed := append([]*region(nil), c.ctx.regions[from:]...)
	saved := c.ctx.regions
	for i := len(crossed) - 1; i >= 0; i-- {
		r := crossed[i]
		c.suspend(r)
		if r.ensure != nil {
			c.ctx.regions = saved[: from+i : from+i]
			c.runEnsure(r)
			c.ctx.regions = saved
		}
	}
	emit()
	for _, r := range crossed {
		c.resume(r)
	}
}

// Protect runs protected after regular however regular completes: normally,
// through a return, break, next or redo that leaves the region, or by a
// raised failure, which is re-raised afterwards. protected must leave one
// value, which is discarded.
func (c *MethodCompiler) Protect(regular, protected BranchCallback, ret ResultType) {
	const op = "Protect"
	if protected == nil {
		c.fail(op, ErrNilCallback, "protected")
	}
	r := c.openRegion(protected, -1)
	c.call(op, regular, ret.delta())
	c.closeRegion(r)

	end := c.b.NewLabel()
	if c.b.Reachable() {
		c.runEnsure(r)
		c.b.EmitJump(bytecode.OpJump, end)
	}
	c.b.Mark(r.handler)
	c.b.EnterAt(r.depth + 1)
	c.runEnsure(r)
	c.b.Emit(bytecode.OpReraise)
	c.b.Mark(end)
}

// Rescue runs regular; a failure raised inside it that is an instance of
// exceptionClass is handled by protected, with $! set to the failure. Other
// failures propagate. Both callbacks produce the region's value.
func (c *MethodCompiler) Rescue(regular BranchCallback, exceptionClass string, protected BranchCallback, ret ResultType) {
	const op = "Rescue"
	if protected == nil {
		c.fail(op, ErrNilCallback, "protected")
	}
	r := c.openRegion(nil, c.name(op, exceptionClass))
	c.call(op, regular, ret.delta())
	c.closeRegion(r)

	end := c.b.NewLabel()
	if c.b.Reachable() {
		c.b.EmitJump(bytecode.OpJump, end)
	}
	c.b.Mark(r.handler)
	c.b.EnterAt(r.depth + 1)
	c.b.Emit(bytecode.OpPOP)
	c.call(op, protected, ret.delta())
	c.b.Mark(end)
}
