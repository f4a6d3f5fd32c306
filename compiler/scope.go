package compiler

import (
	"fmt"

	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// Scope arena
// ---------------------------------------------------------------------------

// NoFrame is the parent of a frame that resolves no outer variables.
const NoFrame = -1

type frame struct {
	parent int
	kind   bytecode.Kind
	names  []string
	index  map[string]int
	chain  int // frames above this one on the resolution chain
}

// ScopeArena holds the lexical frames of one root compilation. Frames are
// addressed by id; depth 0 is the frame itself and depth n is reached by
// following n parent links.
type ScopeArena struct {
	frames   []frame
	maxDepth int
}

// NewScopeArena creates an arena whose parent chains are at most maxDepth
// long.
func NewScopeArena(maxDepth int) *ScopeArena {
	return &ScopeArena{maxDepth: maxDepth}
}

// Push adds a frame for scope below parent and returns its id.
func (a *ScopeArena) Push(parent int, kind bytecode.Kind, scope *StaticScope) (int, error) {
	f := frame{parent: NoFrame, kind: kind, index: make(map[string]int)}
	if parent != NoFrame {
		if parent < 0 || parent >= len(a.frames) {
			return NoFrame, fmt.Errorf("frame %d: %w", parent, ErrScopeDepth)
		}
		f.parent = parent
		f.chain = a.frames[parent].chain + 1
		if f.chain > a.maxDepth {
			return NoFrame, fmt.Errorf("nesting %d exceeds %d: %w", f.chain, a.maxDepth, ErrScopeDepth)
		}
	}
	a.frames = append(a.frames, f)
	id := len(a.frames) - 1
	if scope != nil {
		for _, name := range scope.Variables {
			a.Declare(id, name)
		}
	}
	return id, nil
}

// Len returns the number of frames.
func (a *ScopeArena) Len() int {
	return len(a.frames)
}

// Parent returns the parent of a frame, or NoFrame.
func (a *ScopeArena) Parent(id int) int {
	return a.frames[id].parent
}

// At walks depth parent links from id.
func (a *ScopeArena) At(id, depth int) (int, bool) {
	if depth < 0 || depth > a.maxDepth {
		return NoFrame, false
	}
	for ; depth > 0; depth-- {
		id = a.frames[id].parent
		if id == NoFrame {
			return NoFrame, false
		}
	}
	return id, true
}

// Declare adds a variable to a frame, returning its slot. Declaring an
// existing name returns the existing slot.
func (a *ScopeArena) Declare(id int, name string) int {
	f := &a.frames[id]
	if slot, ok := f.index[name]; ok {
		return slot
	}
	f.names = append(f.names, name)
	f.index[name] = len(f.names) - 1
	return len(f.names) - 1
}

// Resolve finds name starting at frame id and walking outward.
func (a *ScopeArena) Resolve(id int, name string) (slot, depth int, ok bool) {
	for depth = 0; id != NoFrame && depth <= a.maxDepth; depth++ {
		if slot, ok := a.frames[id].index[name]; ok {
			return slot, depth, true
		}
		id = a.frames[id].parent
	}
	return 0, 0, false
}

// Slots returns the number of variables in a frame.
func (a *ScopeArena) Slots(id int) int {
	return len(a.frames[id].names)
}

// Names returns a copy of a frame's variable names in slot order.
func (a *ScopeArena) Names(id int) []string {
	if len(a.frames[id].names) == 0 {
		return nil
	}
	return append([]string(nil), a.frames[id].names...)
}

// ---------------------------------------------------------------------------
// ScopeCompiler
// ---------------------------------------------------------------------------

// checkSlot validates an (index, depth) pair against the frame chain.
func (c *MethodCompiler) checkSlot(op string, index, depth int) {
	if depth < 0 || depth > c.opts.MaxScopeDepth {
		c.fail(op, ErrScopeDepth, "depth %d", depth)
	}
	id, ok := c.ctx.arena.At(c.ctx.frame, depth)
	if !ok {
		c.fail(op, ErrScopeDepth, "depth %d is beyond the scope chain", depth)
	}
	if index < 0 || index >= c.ctx.arena.Slots(id) || index > 0xFF {
		c.fail(op, ErrUnknownVariable, "slot %d at depth %d", index, depth)
	}
}

// RetrieveLocalVariable pushes local slot index of the frame depth levels
// out.
func (c *MethodCompiler) RetrieveLocalVariable(index, depth int) {
	c.checkSlot("RetrieveLocalVariable", index, depth)
	c.b.EmitPair(bytecode.OpPushLocal, index, depth)
}

// AssignLocalVariable stores the top of stack into a local slot. The value
// stays on the stack.
func (c *MethodCompiler) AssignLocalVariable(index, depth int) {
	c.checkSlot("AssignLocalVariable", index, depth)
	c.b.EmitPair(bytecode.OpStoreLocal, index, depth)
}

// RetrieveLocal pushes a local resolved by name through the frame chain.
func (c *MethodCompiler) RetrieveLocal(name string) {
	const op = "RetrieveLocal"
	if name == "" {
		c.fail(op, ErrEmptyName, "")
	}
	slot, depth, ok := c.ctx.arena.Resolve(c.ctx.frame, name)
	if !ok {
		c.fail(op, ErrUnknownVariable, "%s", name)
	}
	c.RetrieveLocalVariable(slot, depth)
}

// AssignLocal assigns a local resolved by name; an unknown name is declared
// in the current frame.
func (c *MethodCompiler) AssignLocal(name string) {
	const op = "AssignLocal"
	if name == "" {
		c.fail(op, ErrEmptyName, "")
	}
	slot, depth, ok := c.ctx.arena.Resolve(c.ctx.frame, name)
	if !ok {
		slot, depth = c.ctx.arena.Declare(c.ctx.frame, name), 0
	}
	c.AssignLocalVariable(slot, depth)
}

// AssignLocalVariableBlockArg assigns incoming argument argIndex, or nil
// when it was not passed, to slot varIndex of the current frame.
func (c *MethodCompiler) AssignLocalVariableBlockArg(argIndex, varIndex int) {
	c.AssignLocalVariableBlockArgAt(argIndex, varIndex, 0)
}

// AssignLocalVariableBlockArgAt is AssignLocalVariableBlockArg for a slot
// depth frames out.
func (c *MethodCompiler) AssignLocalVariableBlockArgAt(argIndex, varIndex, depth int) {
	const op = "AssignLocalVariableBlockArg"
	if argIndex < 0 || argIndex > 0xFF {
		c.fail(op, ErrUnknownVariable, "argument %d", argIndex)
	}
	c.checkSlot(op, varIndex, depth)
	c.b.EmitByte(bytecode.OpPushBlockArg, byte(argIndex))
	c.b.EmitPair(bytecode.OpStoreLocal, varIndex, depth)
	c.b.Emit(bytecode.OpPOP)
}

// RetrieveConstant pushes a constant. The engine searches the lexical
// module chain, then the current module, then the ancestors of the current
// class, then Object.
func (c *MethodCompiler) RetrieveConstant(name string) {
	c.emitName("RetrieveConstant", bytecode.OpPushConst, name)
}

// RetrieveConstantFromModule replaces the module on the stack with its
// constant.
func (c *MethodCompiler) RetrieveConstantFromModule(name string) {
	c.emitName("RetrieveConstantFromModule", bytecode.OpPushConstFrom, name)
}

// AssignConstantInCurrent assigns the top of stack in the current module.
func (c *MethodCompiler) AssignConstantInCurrent(name string) {
	c.emitName("AssignConstantInCurrent", bytecode.OpStoreConst, name)
}

// AssignConstantInModule assigns the value on top in the module beneath it,
// leaving the value.
func (c *MethodCompiler) AssignConstantInModule(name string) {
	c.emitName("AssignConstantInModule", bytecode.OpStoreConstIn, name)
}

// AssignConstantInObject assigns the top of stack as a constant of Object.
func (c *MethodCompiler) AssignConstantInObject(name string) {
	c.emitName("AssignConstantInObject", bytecode.OpStoreConstObject, name)
}

func simpleArgs(scope *StaticScope) bool {
	return scope == nil || (scope.OptionalArgs == 0 && !scope.Rest)
}

// CreateNewClosure compiles a closure body as a child unit and pushes the
// closure. The child frame resolves outer variables through the current
// frame. args, when given, emits argument binding and must leave the stack
// unchanged; body must leave the closure's value.
func (c *MethodCompiler) CreateNewClosure(scope *StaticScope, arity int, body, args ClosureCallback) {
	const op = "CreateNewClosure"
	if body == nil {
		c.fail(op, ErrNilCallback, "body")
	}
	frame, err := c.ctx.arena.Push(c.ctx.frame, bytecode.KindClosure, scope)
	if err != nil {
		c.fail(op, ErrScopeDepth, "%v", err)
	}
	child := c.newChild(fmt.Sprintf("%s{%d}", c.unit.Name, len(c.unit.Units)), bytecode.KindClosure, frame)
	child.unit.Arity = arity
	if simpleArgs(scope) {
		child.unit.Flags |= bytecode.FlagSimpleArgs
	}
	if args != nil {
		child.call(op, BranchCallback(args), 0)
	}
	child.ctx.restart = child.b.NewLabel()
	child.b.Mark(child.ctx.restart)
	child.call(op, BranchCallback(body), 1)
	u := child.EndMethod()
	c.b.EmitUint16(bytecode.OpCreateClosure, c.addUnit(u))
}

// DefineNewMethod compiles a method body as a child unit with its own
// frame chain and binds it to name in the current definee. Pushes nil.
func (c *MethodCompiler) DefineNewMethod(name string, scope *StaticScope, body, args ClosureCallback, inspector ASTInspector) {
	const op = "DefineNewMethod"
	if name == "" {
		c.fail(op, ErrEmptyName, "")
	}
	if body == nil {
		c.fail(op, ErrNilCallback, "body")
	}
	frame, _ := c.ctx.arena.Push(NoFrame, bytecode.KindMethod, scope)
	child := c.newChild(name, bytecode.KindMethod, frame)
	if scope != nil {
		child.unit.Arity = scope.RequiredArgs
	}
	child.unit.Flags = methodFlags(scope, inspector)
	if args != nil {
		child.call(op, BranchCallback(args), 0)
	}
	child.call(op, BranchCallback(body), 1)
	u := child.EndMethod()
	c.b.EmitUint16(bytecode.OpDefineMethod, c.addUnit(u))
}

func methodFlags(scope *StaticScope, inspector ASTInspector) bytecode.Flags {
	var flags bytecode.Flags
	simple := simpleArgs(scope)
	if inspector != nil {
		if !inspector.HasClosure() && !inspector.HasScopeAwareMethods() {
			flags |= bytecode.FlagNoHeapScope
		}
		simple = simple && inspector.HasSimpleArgs()
	}
	if simple {
		flags |= bytecode.FlagSimpleArgs
	}
	return flags
}

// DefineAlias makes newName an alias of oldName in the current definee.
// Pushes nil.
func (c *MethodCompiler) DefineAlias(newName, oldName string) {
	const op = "DefineAlias"
	c.b.EmitUint16Pair(bytecode.OpDefineAlias, c.name(op, newName), c.name(op, oldName))
}
