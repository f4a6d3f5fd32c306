package compiler

import (
	"math/big"

	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// Upstream collaborators
// ---------------------------------------------------------------------------

// SourcePosition locates the node being compiled.
type SourcePosition struct {
	File string
	Line int
}

// StaticScope describes the variables of a method or closure body. Slot i
// holds Variables[i]; arguments occupy the first slots.
type StaticScope struct {
	Variables    []string
	RequiredArgs int
	OptionalArgs int
	Rest         bool // a *rest argument follows the optional ones
}

// ASTInspector summarizes static properties of a method body.
type ASTInspector interface {
	HasClosure() bool
	HasScopeAwareMethods() bool
	HasSimpleArgs() bool
}

// Inspection is a plain ASTInspector.
type Inspection struct {
	Closure          bool
	ScopeAware       bool
	NonSimpleArgList bool
}

func (i Inspection) HasClosure() bool           { return i.Closure }
func (i Inspection) HasScopeAwareMethods() bool { return i.ScopeAware }
func (i Inspection) HasSimpleArgs() bool        { return !i.NonSimpleArgList }

// ---------------------------------------------------------------------------
// Callbacks
// ---------------------------------------------------------------------------

// BranchCallback emits one arm or region of code.
type BranchCallback func(c *MethodCompiler)

// ClosureCallback emits a closure body or its argument handling.
type ClosureCallback func(c *MethodCompiler)

// ArrayCallback emits element index of an aggregate built from source.
type ArrayCallback func(c *MethodCompiler, source any, index int)

// ResultType says whether a protected region produces a value.
type ResultType int

const (
	ResultValue ResultType = iota // the region leaves one value
	ResultVoid                    // the region leaves nothing
)

func (r ResultType) delta() int {
	if r == ResultVoid {
		return 0
	}
	return 1
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

// StackEmitter is primitive stack manipulation and variable access.
type StackEmitter interface {
	ConsumeCurrentValue()
	DuplicateCurrentValue()
	SwapValues()
	LoadTrue()
	LoadFalse()
	LoadNil()
	PushNull()
	LoadSelf()
	RetrieveSelf()
	RetrieveSelfClass()
	LoadObject()
	LoadCurrentModule()
	CreateNewFixnum(v int64)
	LoadInteger(v int)
	CreateNewFloat(v float64)
	CreateNewBignum(v *big.Int)
	CreateNewString(v []byte)
	PushString(s string)
	CreateNewSymbol(name string)
	LoadSymbol(name string)
	RetrieveInstanceVariable(name string)
	GetInstanceVariable(name string)
	AssignInstanceVariable(name string)
	AssignInstanceVariableBlockArg(index int, name string)
	RetrieveGlobalVariable(name string)
	AssignGlobalVariable(name string)
	AssignGlobalVariableBlockArg(index int, name string)
	RetrieveClassVariable(name string)
	AssignClassVariable(name string)
	NegateCurrentValue()
	NullToNil()
	StringOrNil()
	AsString()
	Metaclass()
	SuperClass()
	GetFrameName()
	GetFrameKlazz()
	Backref()
	BackrefMethod(name string)
	NthRef(n int)
	Match()
	Match2()
	Match3()
	PollThreadEvents()
	Debug(msg string)
	LineNumber(pos SourcePosition)
}

// ControlFlowBuilder is branches, loops, labels and protected regions.
type ControlFlowBuilder interface {
	PerformBooleanBranch(trueBranch, falseBranch BranchCallback)
	PerformLogicalAnd(longBranch BranchCallback)
	PerformLogicalOr(longBranch BranchCallback)
	PerformBooleanLoop(condition, body BranchCallback, checkFirst bool)
	PerformReturn()
	PerformGEBranch(trueBranch, falseBranch BranchCallback)
	PerformGTBranch(trueBranch, falseBranch BranchCallback)
	PerformLEBranch(trueBranch, falseBranch BranchCallback)
	PerformLTBranch(trueBranch, falseBranch BranchCallback)
	IssueBreakEvent()
	IssueNextEvent()
	IssueRedoEvent()
	NewEnding() bytecode.Label
	SetEnding(l bytecode.Label)
	Go(l bytecode.Label)
	IfNull(l bytecode.Label)
	IfNotNull(l bytecode.Label)
	IsNil(trueBranch, falseBranch BranchCallback)
	IsNull(trueBranch, falseBranch BranchCallback)
	IsInstanceOf(class string, trueBranch, falseBranch BranchCallback)
	BranchIfModule(receiver, module, notModule BranchCallback)
	Protect(regular, protected BranchCallback, ret ResultType)
	Rescue(regular BranchCallback, exceptionClass string, protected BranchCallback, ret ResultType)
}

// ScopeCompiler is local slots, constants, closures and method definition.
type ScopeCompiler interface {
	RetrieveLocalVariable(index, depth int)
	AssignLocalVariable(index, depth int)
	RetrieveLocal(name string)
	AssignLocal(name string)
	AssignLocalVariableBlockArg(argIndex, varIndex int)
	AssignLocalVariableBlockArgAt(argIndex, varIndex, depth int)
	RetrieveConstant(name string)
	RetrieveConstantFromModule(name string)
	AssignConstantInCurrent(name string)
	AssignConstantInModule(name string)
	AssignConstantInObject(name string)
	CreateNewClosure(scope *StaticScope, arity int, body, args ClosureCallback)
	DefineNewMethod(name string, scope *StaticScope, body, args ClosureCallback, inspector ASTInspector)
	DefineAlias(newName, oldName string)
}

// ValueBuilder constructs aggregates from emitted elements.
type ValueBuilder interface {
	CreateObjectArray(source any, count int, callback ArrayCallback)
	CreateObjectArrayN(count int)
	CreateNewArray(lightweight bool)
	CreateEmptyArray()
	CreateEmptyHash()
	CreateNewHash(elements any, callback ArrayCallback, keyCount int)
	CreateNewRange(isExclusive bool)
	CreateNewDynamicString(callback ArrayCallback, count int)
	CreateNewRegexp(pattern string, options int, lang string)
	SplatCurrentValue()
	SingleifySplattedValue()
	EnsureRubyArray()
	EnsureMultipleAssignableRubyArray(hasHead bool)
	ForEachInValueArray(count, start int, source any, callback ArrayCallback)
	LoadRubyArraySize()
	ConcatArrays()
	UnwrapRubyArray()
}

var (
	_ StackEmitter       = (*MethodCompiler)(nil)
	_ ControlFlowBuilder = (*MethodCompiler)(nil)
	_ ScopeCompiler      = (*MethodCompiler)(nil)
	_ ValueBuilder       = (*MethodCompiler)(nil)
)
